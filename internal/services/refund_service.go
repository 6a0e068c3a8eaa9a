// internal/services/refund_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/coursehub/backend/internal/config"
	"github.com/coursehub/backend/internal/database"
	"github.com/coursehub/backend/internal/models"
)

// RefundService reverses commission when the underlying purchase is
// refunded, and evaluates the read-only abuse heuristic afterwards.
type RefundService struct {
	db  *gorm.DB
	cfg *config.Config
}

type ReverseRequest struct {
	ExternalTransactionID string `json:"external_transaction_id" validate:"required"`
	ExternalRefundID      string `json:"external_refund_id" validate:"required"`
	RefundAmount          int64  `json:"refund_amount" validate:"required,min=1"`
}

// AbuseSignal is a heuristic flag over refund history. It informs
// administrators and never acts on its own.
type AbuseSignal struct {
	AffiliateID   uuid.UUID `json:"affiliate_id"`
	Flagged       bool      `json:"flagged"`
	RefundCount   int64     `json:"refund_count"`
	ReferralCount int64     `json:"referral_count"`
	WindowDays    int       `json:"window_days"`
	Reason        string    `json:"reason,omitempty"`
}

func NewRefundService(db *gorm.DB, cfg *config.Config) *RefundService {
	return &RefundService{
		db:  db,
		cfg: cfg,
	}
}

// Reverse records a commission reversal for a refunded purchase. A refund
// for a sale this ledger never attributed, or one already recorded, is a
// logged no-op: the refund happened externally either way.
//
// The reversal amount is proportional to the commission stored on the
// original referral, not the affiliate's current rate, so a rate change
// between sale and refund cannot reverse more than was credited. It is
// additionally clamped to the commission not yet reversed.
func (s *RefundService) Reverse(req *ReverseRequest) (*models.Refund, error) {
	log := logrus.WithFields(logrus.Fields{
		"external_transaction_id": req.ExternalTransactionID,
		"external_refund_id":      req.ExternalRefundID,
	})

	var refund *models.Refund
	var affiliateID uuid.UUID

	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var referral models.Referral
		if err := tx.Where("external_transaction_id = ?", req.ExternalTransactionID).
			First(&referral).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				log.Info("Refund skipped: no referral for external transaction")
				return nil
			}
			return fmt.Errorf("failed to look up referral: %w", err)
		}

		var duplicate int64
		if err := tx.Model(&models.Refund{}).
			Where("external_refund_id = ?", req.ExternalRefundID).
			Count(&duplicate).Error; err != nil {
			return fmt.Errorf("failed to check for duplicate refund: %w", err)
		}
		if duplicate > 0 {
			log.Info("Refund skipped: external refund already recorded")
			return nil
		}

		var affiliate models.Affiliate
		if err := tx.First(&affiliate, "id = ?", referral.AffiliateID).Error; err != nil {
			return fmt.Errorf("failed to load affiliate: %w", err)
		}

		commissionRefund := proportionalReversal(req.RefundAmount, &referral)

		var alreadyReversed int64
		if err := tx.Model(&models.Refund{}).
			Where("referral_id = ?", referral.ID).
			Select("COALESCE(SUM(commission_refund), 0)").
			Scan(&alreadyReversed).Error; err != nil {
			return fmt.Errorf("failed to sum prior reversals: %w", err)
		}
		if remaining := referral.CommissionAmount - alreadyReversed; commissionRefund > remaining {
			commissionRefund = remaining
		}
		if commissionRefund < 0 {
			commissionRefund = 0
		}

		reversalStatus := models.ReversalStatusCompleted
		if referral.PaymentMethod == models.PaymentMethodConnectedAccount {
			// The transfer reversal on the connected account is tracked to
			// completion out of band.
			reversalStatus = models.ReversalStatusPending
		}

		row := &models.Refund{
			ReferralID:       referral.ID,
			AffiliateID:      affiliate.ID,
			ExternalRefundID: req.ExternalRefundID,
			RefundAmount:     req.RefundAmount,
			CommissionRefund: commissionRefund,
			ReversalStatus:   reversalStatus,
		}
		if err := tx.Create(row).Error; err != nil {
			if isUniqueViolation(err) {
				log.Info("Refund skipped: concurrent duplicate delivery")
				return nil
			}
			return fmt.Errorf("failed to create refund: %w", err)
		}

		updates := map[string]interface{}{
			"total_earnings": gorm.Expr("total_earnings - ?", commissionRefund),
		}
		if referral.PaymentMethod == models.PaymentMethodManual {
			// Clamped at zero: the platform absorbs the shortfall when the
			// commission was already paid out before the refund arrived.
			unpaidDelta := commissionRefund
			if unpaidDelta > affiliate.UnpaidBalance {
				unpaidDelta = affiliate.UnpaidBalance
			}
			updates["unpaid_balance"] = gorm.Expr("unpaid_balance - ?", unpaidDelta)
		}
		if err := tx.Model(&models.Affiliate{}).Where("id = ?", affiliate.ID).
			Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update affiliate balances: %w", err)
		}

		refund = row
		affiliateID = affiliate.ID
		log.WithFields(logrus.Fields{
			"affiliate_id":      affiliate.ID,
			"referral_id":       referral.ID,
			"commission_refund": commissionRefund,
		}).Info("Commission reversal recorded")

		return nil
	})

	if err != nil {
		return nil, err
	}

	if refund != nil {
		// Heuristic only; evaluated after commit and never able to block or
		// undo the reversal itself.
		s.evaluateAbuseSignal(affiliateID)
	}

	return refund, nil
}

// proportionalReversal scales the stored commission by the refunded share
// of the sale, truncating. A full refund reverses the full commission.
func proportionalReversal(refundAmount int64, referral *models.Referral) int64 {
	if referral.SaleAmount <= 0 {
		return 0
	}
	if refundAmount >= referral.SaleAmount {
		return referral.CommissionAmount
	}
	return refundAmount * referral.CommissionAmount / referral.SaleAmount
}

// GetAbuseSignal computes the current heuristic for one affiliate.
func (s *RefundService) GetAbuseSignal(affiliateID uuid.UUID) (*AbuseSignal, error) {
	var affiliate models.Affiliate
	if err := s.db.First(&affiliate, "id = ?", affiliateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newAffiliateError(CodeNotAffiliate, "affiliate not found")
		}
		return nil, fmt.Errorf("failed to load affiliate: %w", err)
	}

	return s.computeAbuseSignal(affiliateID)
}

func (s *RefundService) computeAbuseSignal(affiliateID uuid.UUID) (*AbuseSignal, error) {
	windowStart := time.Now().AddDate(0, 0, -s.cfg.Affiliate.AbuseWindowDays)

	var refundCount, referralCount int64
	if err := s.db.Model(&models.Refund{}).
		Where("affiliate_id = ? AND created_at >= ?", affiliateID, windowStart).
		Count(&refundCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count refunds: %w", err)
	}
	if err := s.db.Model(&models.Referral{}).
		Where("affiliate_id = ? AND created_at >= ?", affiliateID, windowStart).
		Count(&referralCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count referrals: %w", err)
	}

	signal := &AbuseSignal{
		AffiliateID:   affiliateID,
		RefundCount:   refundCount,
		ReferralCount: referralCount,
		WindowDays:    s.cfg.Affiliate.AbuseWindowDays,
	}

	if refundCount >= int64(s.cfg.Affiliate.AbuseRefundCount) {
		if referralCount > 0 && refundCount*100/referralCount >= int64(s.cfg.Affiliate.AbuseRefundRate) {
			signal.Flagged = true
			signal.Reason = fmt.Sprintf("%d of %d referrals refunded within %d days",
				refundCount, referralCount, s.cfg.Affiliate.AbuseWindowDays)
		} else if referralCount == 0 {
			signal.Flagged = true
			signal.Reason = fmt.Sprintf("%d refunds with no new referrals within %d days",
				refundCount, s.cfg.Affiliate.AbuseWindowDays)
		}
	}

	return signal, nil
}

func (s *RefundService) evaluateAbuseSignal(affiliateID uuid.UUID) {
	signal, err := s.computeAbuseSignal(affiliateID)
	if err != nil {
		logrus.WithError(err).WithField("affiliate_id", affiliateID).
			Error("Failed to evaluate abuse signal")
		return
	}

	if !signal.Flagged {
		return
	}

	logrus.WithFields(logrus.Fields{
		"affiliate_id":   affiliateID,
		"refund_count":   signal.RefundCount,
		"referral_count": signal.ReferralCount,
	}).Warn("Affiliate refund pattern flagged for review")

	id := affiliateID
	notification := &models.AdminNotification{
		Type:                "affiliate_abuse_signal",
		Title:               "Affiliate refund pattern flagged",
		Message:             signal.Reason,
		Priority:            "high",
		RelatedResourceType: "affiliate",
		RelatedResourceID:   &id,
	}
	if err := s.db.Create(notification).Error; err != nil {
		logrus.WithError(err).Error("Failed to create abuse signal notification")
	}
}
