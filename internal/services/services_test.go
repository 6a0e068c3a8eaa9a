// internal/services/services_test.go
package services

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/coursehub/backend/internal/config"
	"github.com/coursehub/backend/internal/models"
)

// newTestDB opens a fresh in-memory database per test. The shared cache
// name keeps GORM's pooled connections on the same database.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Affiliate{},
		&models.Referral{},
		&models.Payout{},
		&models.Refund{},
		&models.AdminSettings{},
		&models.AuditLog{},
		&models.AdminNotification{},
	))

	return db
}

func newTestConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Affiliate: config.AffiliateConfig{
			DefaultCommissionRate: 20,
			MinimumPayout:         2000,
			CodeLength:            8,
			CodeMaxAttempts:       5,
			AbuseWindowDays:       30,
			AbuseRefundCount:      3,
			AbuseRefundRate:       50,
		},
	}
}

func createTestUser(t *testing.T, db *gorm.DB, userType models.UserType) *models.User {
	t.Helper()

	suffix := uuid.New().String()[:8]
	user := &models.User{
		Username: "user_" + suffix,
		Email:    "user_" + suffix + "@example.com",
		UserType: userType,
		Status:   models.UserStatusActive,
	}
	require.NoError(t, user.SetPassword("TestPass123!"))
	require.NoError(t, db.Create(user).Error)

	return user
}

func createTestAffiliate(t *testing.T, db *gorm.DB, user *models.User, code string) *models.Affiliate {
	t.Helper()

	affiliate := &models.Affiliate{
		UserID:         user.ID,
		AffiliateCode:  code,
		CommissionRate: 20,
		IsActive:       true,
		PaymentLink:    "https://pay.example.com/" + code,
	}
	require.NoError(t, db.Create(affiliate).Error)

	return affiliate
}

func reloadAffiliate(t *testing.T, db *gorm.DB, id uuid.UUID) *models.Affiliate {
	t.Helper()

	var affiliate models.Affiliate
	require.NoError(t, db.First(&affiliate, "id = ?", id).Error)
	return &affiliate
}
