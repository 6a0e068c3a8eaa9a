// internal/services/refund_service_test.go
package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/coursehub/backend/internal/config"
	"github.com/coursehub/backend/internal/models"
)

type RefundServiceTestSuite struct {
	suite.Suite
	db         *gorm.DB
	cfg        *config.Config
	svc        *RefundService
	commission *CommissionService
	payout     *PayoutService
	admin      *models.User
	student    *models.User
	affiliate  *models.Affiliate
}

func (suite *RefundServiceTestSuite) SetupTest() {
	suite.db = newTestDB(suite.T())
	suite.cfg = newTestConfig()
	suite.svc = NewRefundService(suite.db, suite.cfg)
	suite.commission = NewCommissionService(suite.db, suite.cfg)
	suite.payout = NewPayoutService(suite.db, suite.cfg, nil)

	suite.admin = createTestUser(suite.T(), suite.db, models.UserTypeAdmin)
	suite.student = createTestUser(suite.T(), suite.db, models.UserTypeStudent)
	owner := createTestUser(suite.T(), suite.db, models.UserTypeInstructor)
	suite.affiliate = createTestAffiliate(suite.T(), suite.db, owner, "REFUND01")
}

func (suite *RefundServiceTestSuite) seedReferral(txnID string, amount int64) *models.Referral {
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

func (suite *RefundServiceTestSuite) TestFullRefundReversesFullCommission() {
	suite.seedReferral("txn_full", 10000) // 2000 commission

	refund, err := suite.svc.Reverse(&ReverseRequest{
		ExternalTransactionID: "txn_full",
		ExternalRefundID:      "re_full",
		RefundAmount:          10000,
	})
	suite.NoError(err)
	suite.NotNil(refund)
	suite.Equal(int64(2000), refund.CommissionRefund)
	suite.Equal(models.ReversalStatusCompleted, refund.ReversalStatus)

	affiliate := reloadAffiliate(suite.T(), suite.db, suite.affiliate.ID)
	suite.Equal(int64(0), affiliate.TotalEarnings)
	suite.Equal(int64(0), affiliate.UnpaidBalance)
}

func (suite *RefundServiceTestSuite) TestPartialRefundIsProportional() {
	suite.seedReferral("txn_part", 10000) // 2000 commission

	refund, err := suite.svc.Reverse(&ReverseRequest{
		ExternalTransactionID: "txn_part",
		ExternalRefundID:      "re_part",
		RefundAmount:          2500,
	})
	suite.NoError(err)
	suite.NotNil(refund)
	suite.Equal(int64(500), refund.CommissionRefund)

	affiliate := reloadAffiliate(suite.T(), suite.db, suite.affiliate.ID)
	suite.Equal(int64(1500), affiliate.TotalEarnings)
	suite.Equal(int64(1500), affiliate.UnpaidBalance)
}

func (suite *RefundServiceTestSuite) TestReversalScalesStoredCommissionNotCurrentRate() {
	suite.seedReferral("txn_rate", 10000) // recorded at 20% = 2000

	// A rate change after the sale must not change what gets reversed.
	suite.db.Model(&models.Affiliate{}).Where("id = ?", suite.affiliate.ID).
		Update("commission_rate", 50)

	refund, err := suite.svc.Reverse(&ReverseRequest{
		ExternalTransactionID: "txn_rate",
		ExternalRefundID:      "re_rate",
		RefundAmount:          10000,
	})
	suite.NoError(err)
	suite.NotNil(refund)
	suite.Equal(int64(2000), refund.CommissionRefund)
}

func (suite *RefundServiceTestSuite) TestRepeatedRefundsClampedToCommission() {
	suite.seedReferral("txn_clamp", 10000) // 2000 commission

	first, err := suite.svc.Reverse(&ReverseRequest{
		ExternalTransactionID: "txn_clamp",
		ExternalRefundID:      "re_clamp_1",
		RefundAmount:          7500,
	})
	suite.NoError(err)
	suite.Equal(int64(1500), first.CommissionRefund)

	// 7500 more would map to another 1500, but only 500 remains.
	second, err := suite.svc.Reverse(&ReverseRequest{
		ExternalTransactionID: "txn_clamp",
		ExternalRefundID:      "re_clamp_2",
		RefundAmount:          7500,
	})
	suite.NoError(err)
	suite.Equal(int64(500), second.CommissionRefund)

	affiliate := reloadAffiliate(suite.T(), suite.db, suite.affiliate.ID)
	suite.Equal(int64(0), affiliate.TotalEarnings)
	suite.Equal(int64(0), affiliate.UnpaidBalance)
}

func (suite *RefundServiceTestSuite) TestDuplicateRefundIsNoOp() {
	suite.seedReferral("txn_dup", 10000)

	first, err := suite.svc.Reverse(&ReverseRequest{
		ExternalTransactionID: "txn_dup",
		ExternalRefundID:      "re_dup",
		RefundAmount:          10000,
	})
	suite.NoError(err)
	suite.NotNil(first)

	second, err := suite.svc.Reverse(&ReverseRequest{
		ExternalTransactionID: "txn_dup",
		ExternalRefundID:      "re_dup",
		RefundAmount:          10000,
	})
	suite.NoError(err)
	suite.Nil(second)

	var count int64
	suite.db.Model(&models.Refund{}).Count(&count)
	suite.Equal(int64(1), count)

	affiliate := reloadAffiliate(suite.T(), suite.db, suite.affiliate.ID)
	suite.Equal(int64(0), affiliate.TotalEarnings)
}

func (suite *RefundServiceTestSuite) TestUnknownTransactionIsNoOp() {
	refund, err := suite.svc.Reverse(&ReverseRequest{
		ExternalTransactionID: "txn_never_seen",
		ExternalRefundID:      "re_never",
		RefundAmount:          10000,
	})
	suite.NoError(err)
	suite.Nil(refund)
}

func (suite *RefundServiceTestSuite) TestUnpaidBalanceClampedAfterPayout() {
	suite.seedReferral("txn_paid", 10000) // 2000 unpaid

	_, err := suite.payout.RecordPayout(suite.affiliate.ID, &RecordPayoutRequest{
		Amount:        2000,
		PaymentMethod: models.PaymentMethodManual,
	}, suite.admin.ID)
	suite.Require().NoError(err)

	// The commission was already paid out: total earnings reverse, but the
	// unpaid balance cannot go below zero.
	refund, err := suite.svc.Reverse(&ReverseRequest{
		ExternalTransactionID: "txn_paid",
		ExternalRefundID:      "re_paid",
		RefundAmount:          10000,
	})
	suite.NoError(err)
	suite.NotNil(refund)

	affiliate := reloadAffiliate(suite.T(), suite.db, suite.affiliate.ID)
	suite.Equal(int64(0), affiliate.TotalEarnings)
	suite.Equal(int64(0), affiliate.UnpaidBalance)
	suite.Equal(int64(2000), affiliate.PaidAmount)
}

func (suite *RefundServiceTestSuite) TestConnectedReferralReversalPending() {
	transferID := "tr_1"
	_, err := suite.commission.RecordReferral(&RecordReferralRequest{
		AffiliateCode:         suite.affiliate.AffiliateCode,
		PurchaserID:           suite.student.ID,
		ExternalTransactionID: "txn_conn",
		GrossAmount:           10000,
		ConnectedAccountUsed:  true,
		ExternalTransferID:    &transferID,
	})
	suite.Require().NoError(err)

	refund, err := suite.svc.Reverse(&ReverseRequest{
		ExternalTransactionID: "txn_conn",
		ExternalRefundID:      "re_conn",
		RefundAmount:          10000,
	})
	suite.NoError(err)
	suite.NotNil(refund)
	suite.Equal(models.ReversalStatusPending, refund.ReversalStatus)
}

func (suite *RefundServiceTestSuite) TestAbuseSignalFlagsRefundHeavyAffiliate() {
	for i := 0; i < 4; i++ {
		suite.seedReferral(fmt.Sprintf("txn_ab_%d", i), 10000)
	}

	for i := 0; i < 3; i++ {
		_, err := suite.svc.Reverse(&ReverseRequest{
			ExternalTransactionID: fmt.Sprintf("txn_ab_%d", i),
			ExternalRefundID:      fmt.Sprintf("re_ab_%d", i),
			RefundAmount:          10000,
		})
		suite.Require().NoError(err)
	}

	signal, err := suite.svc.GetAbuseSignal(suite.affiliate.ID)
	suite.NoError(err)
	suite.True(signal.Flagged)
	suite.Equal(int64(3), signal.RefundCount)
	suite.Equal(int64(4), signal.ReferralCount)

	// The third reversal crossed the threshold and should have left a
	// notification for the admin dashboard.
	var notifications int64
	suite.db.Model(&models.AdminNotification{}).
		Where("type = ?", "affiliate_abuse_signal").Count(&notifications)
	suite.GreaterOrEqual(notifications, int64(1))
}

func (suite *RefundServiceTestSuite) TestAbuseSignalNotFlaggedBelowThreshold() {
	for i := 0; i < 10; i++ {
		suite.seedReferral(fmt.Sprintf("txn_ok_%d", i), 10000)
	}

	for i := 0; i < 2; i++ {
		_, err := suite.svc.Reverse(&ReverseRequest{
			ExternalTransactionID: fmt.Sprintf("txn_ok_%d", i),
			ExternalRefundID:      fmt.Sprintf("re_ok_%d", i),
			RefundAmount:          10000,
		})
		suite.Require().NoError(err)
	}

	signal, err := suite.svc.GetAbuseSignal(suite.affiliate.ID)
	suite.NoError(err)
	suite.False(signal.Flagged)
}

func TestRefundServiceSuite(t *testing.T) {
	suite.Run(t, new(RefundServiceTestSuite))
}
