// internal/models/affiliate.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Affiliate is the commission ledger's root record. The three balance
// columns are denormalized and must only ever be adjusted inside the same
// transaction as the referral/payout/refund row that moves them.
// TotalEarnings >= PaidAmount holds after every commit.
type Affiliate struct {
	BaseModel
	UserID         uuid.UUID `json:"user_id" gorm:"type:uuid;not null;uniqueIndex"`
	AffiliateCode  string    `json:"affiliate_code" gorm:"size:32;not null;uniqueIndex"`
	CommissionRate int       `json:"commission_rate" gorm:"not null"`
	TotalEarnings  int64     `json:"total_earnings" gorm:"not null;default:0"`
	PaidAmount     int64     `json:"paid_amount" gorm:"not null;default:0"`
	UnpaidBalance  int64     `json:"unpaid_balance" gorm:"not null;default:0"`
	IsActive       bool      `json:"is_active" gorm:"not null;default:true"`

	// Revocation is terminal and admin-only; rows outlive it.
	IsRevoked     bool       `json:"is_revoked" gorm:"not null;default:false;index"`
	RevokedReason string     `json:"revoked_reason,omitempty" gorm:"type:text"`
	RevokedBy     *uuid.UUID `json:"revoked_by" gorm:"type:uuid"`
	RevokedAt     *time.Time `json:"revoked_at"`

	// Payout destination: a manual payment link, or a connected payout
	// account with the processor's onboarding status flags.
	PaymentLink      string `json:"payment_link" gorm:"size:500"`
	StripeAccountID  string `json:"stripe_account_id,omitempty" gorm:"size:255;index"`
	DetailsSubmitted bool   `json:"details_submitted" gorm:"not null;default:false"`
	ChargesEnabled   bool   `json:"charges_enabled" gorm:"not null;default:false"`
	PayoutsEnabled   bool   `json:"payouts_enabled" gorm:"not null;default:false"`

	// Relationships
	User      User       `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Referrals []Referral `json:"referrals,omitempty" gorm:"foreignKey:AffiliateID"`
	Payouts   []Payout   `json:"payouts,omitempty" gorm:"foreignKey:AffiliateID"`
	Refunds   []Refund   `json:"refunds,omitempty" gorm:"foreignKey:AffiliateID"`
}

// Referral is one attributed external sale. ExternalTransactionID is the
// idempotency key: the unique index is the backstop against duplicate
// webhook deliveries racing each other.
type Referral struct {
	BaseModel
	AffiliateID           uuid.UUID       `json:"affiliate_id" gorm:"type:uuid;not null;index"`
	PurchaserID           uuid.UUID       `json:"purchaser_id" gorm:"type:uuid;not null;index"`
	ExternalTransactionID string          `json:"external_transaction_id" gorm:"size:255;not null;uniqueIndex"`
	SaleAmount            int64           `json:"sale_amount" gorm:"not null"`
	CommissionAmount      int64           `json:"commission_amount" gorm:"not null"`
	PaymentMethod         PaymentMethod   `json:"payment_method" gorm:"type:varchar(20);not null"`
	IsPaid                bool            `json:"is_paid" gorm:"not null;default:false;index"`
	TransferStatus        *TransferStatus `json:"transfer_status" gorm:"type:varchar(20)"`
	ExternalTransferID    *string         `json:"external_transfer_id" gorm:"size:255"`

	// Relationships
	Affiliate Affiliate `json:"affiliate,omitempty" gorm:"foreignKey:AffiliateID"`
	Purchaser User      `json:"purchaser,omitempty" gorm:"foreignKey:PurchaserID"`
}

// Payout records money that already moved to an affiliate. Creation is the
// only action that increments PaidAmount and decrements UnpaidBalance.
// Rows are immutable once created.
type Payout struct {
	BaseModel
	AffiliateID   uuid.UUID     `json:"affiliate_id" gorm:"type:uuid;not null;index"`
	Amount        int64         `json:"amount" gorm:"not null"`
	PaymentMethod PaymentMethod `json:"payment_method" gorm:"type:varchar(20);not null"`
	TransactionID *string       `json:"transaction_id" gorm:"size:255"`
	Notes         *string       `json:"notes" gorm:"type:text"`
	PaidBy        uuid.UUID     `json:"paid_by" gorm:"type:uuid;not null"`

	// Relationships
	Affiliate  Affiliate `json:"affiliate,omitempty" gorm:"foreignKey:AffiliateID"`
	PaidByUser User      `json:"paid_by_user,omitempty" gorm:"foreignKey:PaidBy"`
}

// Refund is an overlay record reversing commission for a prior referral.
// It never mutates the referral row it points at.
type Refund struct {
	BaseModel
	ReferralID       uuid.UUID      `json:"referral_id" gorm:"type:uuid;not null;index"`
	AffiliateID      uuid.UUID      `json:"affiliate_id" gorm:"type:uuid;not null;index"`
	ExternalRefundID string         `json:"external_refund_id" gorm:"size:255;not null;uniqueIndex"`
	RefundAmount     int64          `json:"refund_amount" gorm:"not null"`
	CommissionRefund int64          `json:"commission_refund" gorm:"not null"`
	ReversalStatus   ReversalStatus `json:"reversal_status" gorm:"type:varchar(20);not null"`

	// Relationships
	Referral  Referral  `json:"referral,omitempty" gorm:"foreignKey:ReferralID"`
	Affiliate Affiliate `json:"affiliate,omitempty" gorm:"foreignKey:AffiliateID"`
}
