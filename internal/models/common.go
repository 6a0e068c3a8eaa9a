// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

func (m *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		if str, ok := value.(string); ok {
			bytes = []byte(str)
		} else {
			return nil
		}
	}

	return json.Unmarshal(bytes, j)
}

// Enums
type UserType string

const (
	UserTypeStudent    UserType = "student"
	UserTypeInstructor UserType = "instructor"
	UserTypeAdmin      UserType = "admin"
)

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
	UserStatusBanned    UserStatus = "banned"
)

// PaymentMethod distinguishes how commission for a referral reaches the
// affiliate: via a processor-managed connected account at sale time, or a
// manual payout recorded later by an administrator.
type PaymentMethod string

const (
	PaymentMethodConnectedAccount PaymentMethod = "connected_account"
	PaymentMethodManual           PaymentMethod = "manual"
)

type TransferStatus string

const (
	TransferStatusCompleted TransferStatus = "completed"
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusFailed    TransferStatus = "failed"
)

type ReversalStatus string

const (
	ReversalStatusPending   ReversalStatus = "pending"
	ReversalStatusCompleted ReversalStatus = "completed"
	ReversalStatusFailed    ReversalStatus = "failed"
)
