// internal/services/payout_service_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/coursehub/backend/internal/config"
	"github.com/coursehub/backend/internal/models"
)

type PayoutServiceTestSuite struct {
	suite.Suite
	db         *gorm.DB
	cfg        *config.Config
	svc        *PayoutService
	commission *CommissionService
	admin      *models.User
	student    *models.User
	affiliate  *models.Affiliate
}

func (suite *PayoutServiceTestSuite) SetupTest() {
	suite.db = newTestDB(suite.T())
	suite.cfg = newTestConfig()
	suite.svc = NewPayoutService(suite.db, suite.cfg, nil)
	suite.commission = NewCommissionService(suite.db, suite.cfg)

	suite.admin = createTestUser(suite.T(), suite.db, models.UserTypeAdmin)
	suite.student = createTestUser(suite.T(), suite.db, models.UserTypeStudent)
	owner := createTestUser(suite.T(), suite.db, models.UserTypeInstructor)
	suite.affiliate = createTestAffiliate(suite.T(), suite.db, owner, "PAYOUT01")
}

// seedReferral credits a manual commission through the regular recording
// path so the balances move like production.
func (suite *PayoutServiceTestSuite) seedReferral(txnID string, amount int64) *models.Referral {
	referral, err := suite.commission.RecordReferral(&RecordReferralRequest{
		AffiliateCode:         suite.affiliate.AffiliateCode,
		PurchaserID:           suite.student.ID,
		ExternalTransactionID: txnID,
		GrossAmount:           amount,
	})
	suite.Require().NoError(err)
	suite.Require().NotNil(referral)
	return referral
}

func (suite *PayoutServiceTestSuite) TestRecordPayoutMovesBalances() {
	suite.seedReferral("txn_a", 10000) // 2000 commission
	suite.seedReferral("txn_b", 15000) // 3000 commission

	payout, err := suite.svc.RecordPayout(suite.affiliate.ID, &RecordPayoutRequest{
		Amount:        5000,
		PaymentMethod: models.PaymentMethodManual,
	}, suite.admin.ID)
	suite.NoError(err)
	suite.NotNil(payout)
	suite.Equal(int64(5000), payout.Amount)
	suite.Equal(suite.admin.ID, payout.PaidBy)

	affiliate := reloadAffiliate(suite.T(), suite.db, suite.affiliate.ID)
	suite.Equal(int64(5000), affiliate.TotalEarnings)
	suite.Equal(int64(5000), affiliate.PaidAmount)
	suite.Equal(int64(0), affiliate.UnpaidBalance)

	var unpaid int64
	suite.db.Model(&models.Referral{}).Where("is_paid = ?", false).Count(&unpaid)
	suite.Equal(int64(0), unpaid)
}

func (suite *PayoutServiceTestSuite) TestPartialPayoutFlipsOldestFirst() {
	older := suite.seedReferral("txn_old", 10000) // 2000
	newer := suite.seedReferral("txn_new", 15000) // 3000

	payout, err := suite.svc.RecordPayout(suite.affiliate.ID, &RecordPayoutRequest{
		Amount:        2000,
		PaymentMethod: models.PaymentMethodManual,
	}, suite.admin.ID)
	suite.NoError(err)
	suite.NotNil(payout)

	var reloaded models.Referral
	suite.NoError(suite.db.First(&reloaded, "id = ?", older.ID).Error)
	suite.True(reloaded.IsPaid)

	reloaded = models.Referral{}
	suite.NoError(suite.db.First(&reloaded, "id = ?", newer.ID).Error)
	suite.False(reloaded.IsPaid)

	affiliate := reloadAffiliate(suite.T(), suite.db, suite.affiliate.ID)
	suite.Equal(int64(3000), affiliate.UnpaidBalance)
}

func (suite *PayoutServiceTestSuite) TestBelowMinimumRejected() {
	suite.seedReferral("txn_min", 10000)

	_, err := suite.svc.RecordPayout(suite.affiliate.ID, &RecordPayoutRequest{
		Amount:        1999,
		PaymentMethod: models.PaymentMethodManual,
	}, suite.admin.ID)
	suite.True(IsAffiliateErrorCode(err, CodeMinimumPayoutNotMet))
}

func (suite *PayoutServiceTestSuite) TestExceedingBalanceRejected() {
	suite.seedReferral("txn_bal", 10000) // 2000 unpaid

	_, err := suite.svc.RecordPayout(suite.affiliate.ID, &RecordPayoutRequest{
		Amount:        2001,
		PaymentMethod: models.PaymentMethodManual,
	}, suite.admin.ID)
	suite.True(IsAffiliateErrorCode(err, CodeInsufficientBalance))

	// The failed payout must leave nothing behind.
	var count int64
	suite.db.Model(&models.Payout{}).Count(&count)
	suite.Equal(int64(0), count)

	affiliate := reloadAffiliate(suite.T(), suite.db, suite.affiliate.ID)
	suite.Equal(int64(2000), affiliate.UnpaidBalance)
}

func (suite *PayoutServiceTestSuite) TestNonAdminRejected() {
	suite.seedReferral("txn_priv", 10000)

	_, err := suite.svc.RecordPayout(suite.affiliate.ID, &RecordPayoutRequest{
		Amount:        2000,
		PaymentMethod: models.PaymentMethodManual,
	}, suite.student.ID)
	suite.ErrorIs(err, ErrAdminRequired)
}

func (suite *PayoutServiceTestSuite) TestUnknownAffiliateRejected() {
	_, err := suite.svc.RecordPayout(suite.student.ID, &RecordPayoutRequest{
		Amount:        2000,
		PaymentMethod: models.PaymentMethodManual,
	}, suite.admin.ID)
	suite.True(IsAffiliateErrorCode(err, CodeNotAffiliate))
}

func TestPayoutServiceSuite(t *testing.T) {
	suite.Run(t, new(PayoutServiceTestSuite))
}
