// internal/services/commission_service.go
package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/coursehub/backend/internal/config"
	"github.com/coursehub/backend/internal/database"
	"github.com/coursehub/backend/internal/models"
)

// CommissionService records referral events idempotently and maintains the
// affiliate balance columns.
type CommissionService struct {
	db  *gorm.DB
	cfg *config.Config
}

// RecordReferralRequest mirrors the payment processor's sale confirmation.
// ExternalTransactionID is the idempotency key.
type RecordReferralRequest struct {
	AffiliateCode         string    `json:"affiliate_code" validate:"required"`
	PurchaserID           uuid.UUID `json:"purchaser_id" validate:"required"`
	ExternalTransactionID string    `json:"external_transaction_id" validate:"required"`
	GrossAmount           int64     `json:"gross_amount" validate:"required,min=1"`
	ConnectedAccountUsed  bool      `json:"connected_account_used"`
	ExternalTransferID    *string   `json:"external_transfer_id,omitempty"`
}

func NewCommissionService(db *gorm.DB, cfg *config.Config) *CommissionService {
	return &CommissionService{
		db:  db,
		cfg: cfg,
	}
}

// ComputeCommission is the single commission formula: integer percentage
// with truncation. Refund reversal proportionality depends on this being
// deterministic, so it must never go through floating point.
func ComputeCommission(grossAmount int64, rate int) int64 {
	return grossAmount * int64(rate) / 100
}

// RecordReferral runs after the processor has confirmed a sale. The sale
// already happened and cannot be undone here, so every non-attributable
// case is a logged no-op returning (nil, nil) rather than an error.
//
// The whole operation is one transaction: the referral insert and the
// balance update commit together or not at all.
func (s *CommissionService) RecordReferral(req *RecordReferralRequest) (*models.Referral, error) {
	log := logrus.WithFields(logrus.Fields{
		"affiliate_code":          req.AffiliateCode,
		"external_transaction_id": req.ExternalTransactionID,
	})

	var referral *models.Referral

	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		// Revoked affiliates must be loaded too: revocation is a distinct
		// skip reason from "code not found".
		var affiliate models.Affiliate
		if err := tx.Where("affiliate_code = ?", req.AffiliateCode).First(&affiliate).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				log.Info("Referral skipped: affiliate code not found")
				return nil
			}
			return fmt.Errorf("failed to look up affiliate: %w", err)
		}

		if affiliate.IsRevoked {
			log.WithField("affiliate_id", affiliate.ID).Info("Referral skipped: affiliate revoked")
			return nil
		}
		if !affiliate.IsActive {
			log.WithField("affiliate_id", affiliate.ID).Info("Referral skipped: affiliate inactive")
			return nil
		}
		if affiliate.UserID == req.PurchaserID {
			log.WithField("affiliate_id", affiliate.ID).Info("Referral skipped: self-referral")
			return nil
		}

		// Idempotency pre-check; the unique index on the column is the
		// backstop for two concurrent deliveries of the same event.
		var existing int64
		if err := tx.Model(&models.Referral{}).
			Where("external_transaction_id = ?", req.ExternalTransactionID).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("failed to check for duplicate referral: %w", err)
		}
		if existing > 0 {
			log.Info("Referral skipped: external transaction already recorded")
			return nil
		}

		commission := ComputeCommission(req.GrossAmount, affiliate.CommissionRate)

		row := &models.Referral{
			AffiliateID:           affiliate.ID,
			PurchaserID:           req.PurchaserID,
			ExternalTransactionID: req.ExternalTransactionID,
			SaleAmount:            req.GrossAmount,
			CommissionAmount:      commission,
			PaymentMethod:         models.PaymentMethodManual,
			IsPaid:                false,
		}
		if req.ConnectedAccountUsed {
			// The transfer already happened on the connected account by the
			// time this runs; this row only records it.
			completed := models.TransferStatusCompleted
			row.PaymentMethod = models.PaymentMethodConnectedAccount
			row.IsPaid = true
			row.TransferStatus = &completed
			row.ExternalTransferID = req.ExternalTransferID
		}

		if err := tx.Create(row).Error; err != nil {
			if isUniqueViolation(err) {
				// Lost the race against a concurrent delivery of the same
				// event: identical outcome to "already recorded".
				log.Info("Referral skipped: concurrent duplicate delivery")
				return nil
			}
			return fmt.Errorf("failed to create referral: %w", err)
		}

		updates := map[string]interface{}{
			"total_earnings": gorm.Expr("total_earnings + ?", commission),
		}
		if !req.ConnectedAccountUsed {
			updates["unpaid_balance"] = gorm.Expr("unpaid_balance + ?", commission)
		}
		if err := tx.Model(&models.Affiliate{}).Where("id = ?", affiliate.ID).
			Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update affiliate balances: %w", err)
		}

		referral = row
		log.WithFields(logrus.Fields{
			"affiliate_id": affiliate.ID,
			"commission":   commission,
			"gross_amount": req.GrossAmount,
		}).Info("Referral recorded")

		return nil
	})

	if err != nil {
		return nil, err
	}

	return referral, nil
}

// isUniqueViolation recognizes a unique-constraint failure from Postgres
// (SQLSTATE 23505) or from GORM's translated error.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	return false
}
