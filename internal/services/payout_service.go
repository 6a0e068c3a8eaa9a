// internal/services/payout_service.go
package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/account"
	"github.com/stripe/stripe-go/v74/accountlink"
	"gorm.io/gorm"

	"github.com/coursehub/backend/internal/config"
	"github.com/coursehub/backend/internal/database"
	"github.com/coursehub/backend/internal/models"
)

// PayoutService records administrative payouts against unpaid balances and
// manages the connected payout account lifecycle with the processor.
// Payouts are recorded after money has moved externally; nothing here
// triggers a transfer.
type PayoutService struct {
	db     *gorm.DB
	cfg    *config.Config
	notify *NotificationService
}

type RecordPayoutRequest struct {
	Amount        int64                `json:"amount" validate:"required,min=1"`
	PaymentMethod models.PaymentMethod `json:"payment_method" validate:"required"`
	TransactionID *string              `json:"transaction_id,omitempty"`
	Notes         *string              `json:"notes,omitempty"`
}

type ConnectAccountResponse struct {
	AccountID     string `json:"account_id"`
	OnboardingURL string `json:"onboarding_url"`
}

func NewPayoutService(db *gorm.DB, cfg *config.Config, notify *NotificationService) *PayoutService {
	// Initialize Stripe
	stripe.Key = cfg.Payment.StripeSecretKey

	return &PayoutService{
		db:     db,
		cfg:    cfg,
		notify: notify,
	}
}

// RecordPayout writes the payout row, moves the balances and flips the
// covered manual referrals to paid, all in one transaction so a
// half-applied payout can never be observed.
func (s *PayoutService) RecordPayout(affiliateID uuid.UUID, req *RecordPayoutRequest, paidBy uuid.UUID) (*models.Payout, error) {
	var admin models.User
	if err := s.db.First(&admin, "id = ?", paidBy).Error; err != nil {
		return nil, fmt.Errorf("failed to load paying user: %w", err)
	}
	if !admin.IsAdmin() {
		return nil, ErrAdminRequired
	}

	if req.Amount < s.cfg.Affiliate.MinimumPayout {
		return nil, newAffiliateError(CodeMinimumPayoutNotMet,
			fmt.Sprintf("payout amount must be at least %d cents", s.cfg.Affiliate.MinimumPayout))
	}

	var payout *models.Payout

	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var affiliate models.Affiliate
		if err := tx.First(&affiliate, "id = ?", affiliateID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newAffiliateError(CodeNotAffiliate, "affiliate not found")
			}
			return fmt.Errorf("failed to load affiliate: %w", err)
		}

		if req.Amount > affiliate.UnpaidBalance {
			return newAffiliateError(CodeInsufficientBalance,
				fmt.Sprintf("payout of %d exceeds unpaid balance of %d", req.Amount, affiliate.UnpaidBalance))
		}

		// Guarded update: concurrent payouts against the same affiliate
		// cannot both pass the balance check and double-decrement.
		res := tx.Model(&models.Affiliate{}).
			Where("id = ? AND unpaid_balance >= ?", affiliate.ID, req.Amount).
			Updates(map[string]interface{}{
				"paid_amount":    gorm.Expr("paid_amount + ?", req.Amount),
				"unpaid_balance": gorm.Expr("unpaid_balance - ?", req.Amount),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update affiliate balances: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return newAffiliateError(CodeInsufficientBalance, "unpaid balance changed concurrently")
		}

		row := &models.Payout{
			AffiliateID:   affiliate.ID,
			Amount:        req.Amount,
			PaymentMethod: req.PaymentMethod,
			TransactionID: req.TransactionID,
			Notes:         req.Notes,
			PaidBy:        paidBy,
		}
		if err := tx.Create(row).Error; err != nil {
			return fmt.Errorf("failed to create payout: %w", err)
		}

		if err := s.markReferralsPaid(tx, affiliate.ID, req.Amount); err != nil {
			return err
		}

		payout = row
		return nil
	})

	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"affiliate_id": affiliateID,
		"payout_id":    payout.ID,
		"amount":       req.Amount,
		"paid_by":      paidBy,
	}).Info("Payout recorded")

	if s.notify != nil {
		go s.notify.SendPayoutRecordedEmail(affiliateID, payout)
	}

	return payout, nil
}

// markReferralsPaid flips outstanding manual referrals to paid,
// oldest-first, until the payout amount is exhausted. A referral is only
// flipped when the remaining amount fully covers its commission.
func (s *PayoutService) markReferralsPaid(tx *gorm.DB, affiliateID uuid.UUID, amount int64) error {
	var outstanding []models.Referral
	if err := tx.Where("affiliate_id = ? AND payment_method = ? AND is_paid = ?",
		affiliateID, models.PaymentMethodManual, false).
		Order("created_at ASC").
		Find(&outstanding).Error; err != nil {
		return fmt.Errorf("failed to fetch outstanding referrals: %w", err)
	}

	remaining := amount
	for _, r := range outstanding {
		if r.CommissionAmount > remaining {
			break
		}
		if err := tx.Model(&models.Referral{}).Where("id = ?", r.ID).
			Update("is_paid", true).Error; err != nil {
			return fmt.Errorf("failed to mark referral paid: %w", err)
		}
		remaining -= r.CommissionAmount
	}

	return nil
}

// CreateConnectedAccount creates an Express account with the processor and
// returns an onboarding link. The provider call happens strictly before
// the persistence write; no transaction is held across it.
func (s *PayoutService) CreateConnectedAccount(userID uuid.UUID) (*ConnectAccountResponse, error) {
	var affiliate models.Affiliate
	if err := s.db.Where("user_id = ?", userID).First(&affiliate).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newAffiliateError(CodeNotAffiliate, "user is not an affiliate")
		}
		return nil, fmt.Errorf("failed to load affiliate: %w", err)
	}

	if affiliate.StripeAccountID != "" {
		return nil, newAffiliateError(CodeAlreadyConnected, "affiliate already has a connected payout account")
	}

	acct, err := account.New(&stripe.AccountParams{
		Type: stripe.String(string(stripe.AccountTypeExpress)),
	})
	if err != nil {
		return nil, newAffiliateError(CodePayoutProviderError, fmt.Sprintf("failed to create connected account: %v", err))
	}

	link, err := accountlink.New(&stripe.AccountLinkParams{
		Account:    stripe.String(acct.ID),
		RefreshURL: stripe.String(s.cfg.Frontend.BaseURL + "/affiliate/connect/refresh"),
		ReturnURL:  stripe.String(s.cfg.Frontend.BaseURL + "/affiliate/connect/return"),
		Type:       stripe.String("account_onboarding"),
	})
	if err != nil {
		return nil, newAffiliateError(CodePayoutProviderError, fmt.Sprintf("failed to create onboarding link: %v", err))
	}

	// Persist the identifier only after both provider calls succeeded.
	if err := s.db.Model(&models.Affiliate{}).Where("id = ?", affiliate.ID).
		Update("stripe_account_id", acct.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to persist connected account id: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"affiliate_id":      affiliate.ID,
		"stripe_account_id": acct.ID,
	}).Info("Connected payout account created")

	return &ConnectAccountResponse{
		AccountID:     acct.ID,
		OnboardingURL: link.URL,
	}, nil
}

// RefreshAccountStatus polls the processor for the onboarding status flags
// and persists them. Call-then-persist; never inside a transaction.
func (s *PayoutService) RefreshAccountStatus(userID uuid.UUID) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	if err := s.db.Where("user_id = ?", userID).First(&affiliate).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newAffiliateError(CodeNotAffiliate, "user is not an affiliate")
		}
		return nil, fmt.Errorf("failed to load affiliate: %w", err)
	}

	if affiliate.StripeAccountID == "" {
		return nil, newAffiliateError(CodeNotAffiliate, "affiliate has no connected payout account")
	}

	acct, err := account.GetByID(affiliate.StripeAccountID, nil)
	if err != nil {
		return nil, newAffiliateError(CodePayoutProviderError, fmt.Sprintf("failed to fetch account status: %v", err))
	}

	affiliate.DetailsSubmitted = acct.DetailsSubmitted
	affiliate.ChargesEnabled = acct.ChargesEnabled
	affiliate.PayoutsEnabled = acct.PayoutsEnabled

	if err := s.db.Save(&affiliate).Error; err != nil {
		return nil, fmt.Errorf("failed to persist account status: %w", err)
	}

	return &affiliate, nil
}
