// internal/services/affiliate_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/coursehub/backend/internal/cache"
	"github.com/coursehub/backend/internal/config"
	"github.com/coursehub/backend/internal/models"
	"github.com/coursehub/backend/internal/utils"
)

// ErrAdminRequired is returned when a privileged ledger write is attempted
// by a non-administrator. The HTTP layer has its own gate; services
// re-check before writing regardless.
var ErrAdminRequired = errors.New("administrator privileges required")

// AffiliateService owns affiliate identity: registration, code issuance,
// profile updates and revocation state.
type AffiliateService struct {
	db     *gorm.DB
	cfg    *config.Config
	cache  *cache.Client
	notify *NotificationService
}

type RegisterAffiliateRequest struct {
	PaymentLink string `json:"payment_link" validate:"required,payment_link"`
}

type UpdateAffiliateProfileRequest struct {
	PaymentLink      *string `json:"payment_link,omitempty"`
	IsActive         *bool   `json:"is_active,omitempty"`
	DetailsSubmitted *bool   `json:"details_submitted,omitempty"`
	ChargesEnabled   *bool   `json:"charges_enabled,omitempty"`
	PayoutsEnabled   *bool   `json:"payouts_enabled,omitempty"`
}

type AffiliateStats struct {
	TotalEarnings int64 `json:"total_earnings"`
	PaidAmount    int64 `json:"paid_amount"`
	UnpaidBalance int64 `json:"unpaid_balance"`
	ReferralCount int64 `json:"referral_count"`
	RefundCount   int64 `json:"refund_count"`
}

type MonthlyEarning struct {
	Month  string `json:"month"` // YYYY-MM
	Amount int64  `json:"amount"`
}

type AffiliateAnalytics struct {
	Affiliate       *models.Affiliate `json:"affiliate"`
	Stats           AffiliateStats    `json:"stats"`
	RecentReferrals []models.Referral `json:"recent_referrals"`
	Payouts         []models.Payout   `json:"payouts"`
	MonthlyEarnings []MonthlyEarning  `json:"monthly_earnings"`
}

type AffiliateWithStats struct {
	models.Affiliate
	ReferralCount int64 `json:"referral_count"`
	RefundCount   int64 `json:"refund_count"`
}

func NewAffiliateService(db *gorm.DB, cfg *config.Config, cacheClient *cache.Client, notify *NotificationService) *AffiliateService {
	return &AffiliateService{
		db:     db,
		cfg:    cfg,
		cache:  cacheClient,
		notify: notify,
	}
}

// Register creates the affiliate record for a user: one per user, with a
// freshly issued code, the configured default commission rate and zero
// balances.
func (s *AffiliateService) Register(userID uuid.UUID, req *RegisterAffiliateRequest) (*models.Affiliate, error) {
	if !utils.IsValidPaymentLink(req.PaymentLink) {
		return nil, newAffiliateError(CodeInvalidPaymentLink, "payment link must be a valid http(s) URL")
	}

	var existing models.Affiliate
	if err := s.db.Where("user_id = ?", userID).First(&existing).Error; err == nil {
		return nil, newAffiliateError(CodeAlreadyRegistered, "user already has an affiliate account")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check existing affiliate: %w", err)
	}

	code, err := s.generateUniqueCode()
	if err != nil {
		return nil, err
	}

	affiliate := &models.Affiliate{
		UserID:         userID,
		AffiliateCode:  code,
		CommissionRate: s.cfg.Affiliate.DefaultCommissionRate,
		IsActive:       true,
		PaymentLink:    req.PaymentLink,
	}

	// The unique constraints on user_id and affiliate_code close the race
	// against a concurrent registration for the same user or code.
	if err := s.db.Create(affiliate).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, newAffiliateError(CodeAlreadyRegistered, "user already has an affiliate account")
		}
		return nil, fmt.Errorf("failed to create affiliate: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"affiliate_id": affiliate.ID,
		"user_id":      userID,
		"code":         affiliate.AffiliateCode,
	}).Info("Affiliate registered")

	if s.notify != nil {
		go s.notify.SendAffiliateWelcomeEmail(affiliate)
	}

	return affiliate, nil
}

// generateUniqueCode pulls random codes until one is free, bounded by the
// configured attempt count. A race between the check and the insert is
// closed by the unique index, not here.
func (s *AffiliateService) generateUniqueCode() (string, error) {
	for attempt := 0; attempt < s.cfg.Affiliate.CodeMaxAttempts; attempt++ {
		code, err := utils.GenerateAffiliateCode(s.cfg.Affiliate.CodeLength)
		if err != nil {
			return "", fmt.Errorf("failed to generate affiliate code: %w", err)
		}

		var count int64
		if err := s.db.Model(&models.Affiliate{}).Where("affiliate_code = ?", code).Count(&count).Error; err != nil {
			return "", fmt.Errorf("failed to check affiliate code: %w", err)
		}
		if count == 0 {
			return code, nil
		}
	}

	return "", newAffiliateError(CodeGenerationFailed, "could not generate a unique affiliate code")
}

// UpdateProfile applies a partial update to the affiliate's own fields.
func (s *AffiliateService) UpdateProfile(affiliateID uuid.UUID, req *UpdateAffiliateProfileRequest) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	if err := s.db.First(&affiliate, "id = ?", affiliateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newAffiliateError(CodeNotAffiliate, "affiliate not found")
		}
		return nil, fmt.Errorf("failed to load affiliate: %w", err)
	}

	if req.PaymentLink != nil {
		if !utils.IsValidPaymentLink(*req.PaymentLink) {
			return nil, newAffiliateError(CodeInvalidPaymentLink, "payment link must be a valid http(s) URL")
		}
		affiliate.PaymentLink = *req.PaymentLink
	}
	if req.IsActive != nil {
		affiliate.IsActive = *req.IsActive
	}
	if req.DetailsSubmitted != nil {
		affiliate.DetailsSubmitted = *req.DetailsSubmitted
	}
	if req.ChargesEnabled != nil {
		affiliate.ChargesEnabled = *req.ChargesEnabled
	}
	if req.PayoutsEnabled != nil {
		affiliate.PayoutsEnabled = *req.PayoutsEnabled
	}

	if err := s.db.Save(&affiliate).Error; err != nil {
		return nil, fmt.Errorf("failed to update affiliate: %w", err)
	}

	// A deactivated affiliate must stop validating at checkout immediately.
	s.cache.InvalidateCode(context.Background(), affiliate.AffiliateCode)

	return &affiliate, nil
}

// ValidateCode resolves an affiliate code at checkout time, before any
// sale exists. Missing and inactive codes are soft: checkout proceeds
// without attribution. A revoked code fails loudly so it can never
// silently attribute new sales.
func (s *AffiliateService) ValidateCode(ctx context.Context, code string) (*models.Affiliate, error) {
	if code == "" {
		return nil, nil
	}

	// Positive cache: only active, non-revoked codes are ever stored, so a
	// hit can skip the state checks but still loads the current row.
	var affiliate models.Affiliate
	if id := s.cache.GetAffiliateID(ctx, code); id != "" {
		if err := s.db.First(&affiliate, "id = ?", id).Error; err == nil {
			if affiliate.IsRevoked {
				return nil, newAffiliateError(CodeAffiliateRevoked, "affiliate code has been revoked")
			}
			if affiliate.IsActive {
				return &affiliate, nil
			}
			return nil, nil
		}
	}

	if err := s.db.Where("affiliate_code = ?", code).First(&affiliate).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up affiliate code: %w", err)
	}

	if affiliate.IsRevoked {
		return nil, newAffiliateError(CodeAffiliateRevoked, "affiliate code has been revoked")
	}
	if !affiliate.IsActive {
		return nil, nil
	}

	s.cache.SetAffiliateID(ctx, code, affiliate.ID.String())
	return &affiliate, nil
}

// Revoke terminally disables an affiliate code. Idempotent: a repeat call
// overwrites the audit fields (reason is last-write-wins).
func (s *AffiliateService) Revoke(affiliateID uuid.UUID, reason string, revokedBy uuid.UUID) (*models.Affiliate, error) {
	var admin models.User
	if err := s.db.First(&admin, "id = ?", revokedBy).Error; err != nil {
		return nil, fmt.Errorf("failed to load revoking user: %w", err)
	}
	if !admin.IsAdmin() {
		return nil, ErrAdminRequired
	}

	var affiliate models.Affiliate
	if err := s.db.First(&affiliate, "id = ?", affiliateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newAffiliateError(CodeNotAffiliate, "affiliate not found")
		}
		return nil, fmt.Errorf("failed to load affiliate: %w", err)
	}

	now := time.Now()
	affiliate.IsRevoked = true
	affiliate.RevokedReason = reason
	affiliate.RevokedBy = &revokedBy
	affiliate.RevokedAt = &now

	if err := s.db.Save(&affiliate).Error; err != nil {
		return nil, fmt.Errorf("failed to revoke affiliate: %w", err)
	}

	s.cache.InvalidateCode(context.Background(), affiliate.AffiliateCode)

	logrus.WithFields(logrus.Fields{
		"affiliate_id": affiliate.ID,
		"revoked_by":   revokedBy,
		"reason":       reason,
	}).Info("Affiliate revoked")

	if s.notify != nil {
		go s.notify.SendRevocationEmail(&affiliate, reason)
	}

	return &affiliate, nil
}

// GetByUserID returns a user's affiliate record.
func (s *AffiliateService) GetByUserID(userID uuid.UUID) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	if err := s.db.Where("user_id = ?", userID).First(&affiliate).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newAffiliateError(CodeNotAffiliate, "user is not an affiliate")
		}
		return nil, fmt.Errorf("failed to load affiliate: %w", err)
	}
	return &affiliate, nil
}

// GetAnalytics builds the affiliate's own dashboard rollup: balances,
// counts, recent activity and a six month earnings series.
func (s *AffiliateService) GetAnalytics(userID uuid.UUID) (*AffiliateAnalytics, error) {
	affiliate, err := s.GetByUserID(userID)
	if err != nil {
		return nil, err
	}

	var referralCount, refundCount int64
	if err := s.db.Model(&models.Referral{}).Where("affiliate_id = ?", affiliate.ID).Count(&referralCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count referrals: %w", err)
	}
	if err := s.db.Model(&models.Refund{}).Where("affiliate_id = ?", affiliate.ID).Count(&refundCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count refunds: %w", err)
	}

	var recent []models.Referral
	if err := s.db.Where("affiliate_id = ?", affiliate.ID).
		Order("created_at DESC").Limit(10).Find(&recent).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch recent referrals: %w", err)
	}

	var payouts []models.Payout
	if err := s.db.Where("affiliate_id = ?", affiliate.ID).
		Order("created_at DESC").Limit(10).Find(&payouts).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch payouts: %w", err)
	}

	monthly, err := s.monthlyEarnings(affiliate.ID, 6)
	if err != nil {
		return nil, err
	}

	return &AffiliateAnalytics{
		Affiliate: affiliate,
		Stats: AffiliateStats{
			TotalEarnings: affiliate.TotalEarnings,
			PaidAmount:    affiliate.PaidAmount,
			UnpaidBalance: affiliate.UnpaidBalance,
			ReferralCount: referralCount,
			RefundCount:   refundCount,
		},
		RecentReferrals: recent,
		Payouts:         payouts,
		MonthlyEarnings: monthly,
	}, nil
}

// monthlyEarnings aggregates commission credited minus commission reversed
// per calendar month over the trailing window, oldest month first.
func (s *AffiliateService) monthlyEarnings(affiliateID uuid.UUID, months int) ([]MonthlyEarning, error) {
	since := time.Now().AddDate(0, -(months - 1), 0)
	since = time.Date(since.Year(), since.Month(), 1, 0, 0, 0, 0, since.Location())

	var referrals []models.Referral
	if err := s.db.Where("affiliate_id = ? AND created_at >= ?", affiliateID, since).
		Find(&referrals).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch referrals for earnings: %w", err)
	}

	var refunds []models.Refund
	if err := s.db.Where("affiliate_id = ? AND created_at >= ?", affiliateID, since).
		Find(&refunds).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch refunds for earnings: %w", err)
	}

	byMonth := make(map[string]int64)
	for _, r := range referrals {
		byMonth[r.CreatedAt.Format("2006-01")] += r.CommissionAmount
	}
	for _, r := range refunds {
		byMonth[r.CreatedAt.Format("2006-01")] -= r.CommissionRefund
	}

	result := make([]MonthlyEarning, 0, months)
	cursor := since
	now := time.Now()
	for !cursor.After(now) {
		key := cursor.Format("2006-01")
		result = append(result, MonthlyEarning{Month: key, Amount: byMonth[key]})
		cursor = cursor.AddDate(0, 1, 0)
	}

	return result, nil
}

// ListAllWithStats is the admin-only roster with referral/refund counts.
func (s *AffiliateService) ListAllWithStats(params utils.PaginationParams) ([]AffiliateWithStats, int64, error) {
	query := s.db.Model(&models.Affiliate{}).Preload("User")

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count affiliates: %w", err)
	}

	allowedSortFields := []string{"created_at", "total_earnings", "unpaid_balance"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var affiliates []models.Affiliate
	if err := query.Find(&affiliates).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch affiliates: %w", err)
	}

	result := make([]AffiliateWithStats, 0, len(affiliates))
	for _, a := range affiliates {
		var referralCount, refundCount int64
		if err := s.db.Model(&models.Referral{}).Where("affiliate_id = ?", a.ID).Count(&referralCount).Error; err != nil {
			return nil, 0, fmt.Errorf("failed to count referrals: %w", err)
		}
		if err := s.db.Model(&models.Refund{}).Where("affiliate_id = ?", a.ID).Count(&refundCount).Error; err != nil {
			return nil, 0, fmt.Errorf("failed to count refunds: %w", err)
		}
		result = append(result, AffiliateWithStats{
			Affiliate:     a,
			ReferralCount: referralCount,
			RefundCount:   refundCount,
		})
	}

	return result, total, nil
}
