// internal/services/affiliate_service_test.go
package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/coursehub/backend/internal/config"
	"github.com/coursehub/backend/internal/models"
	"github.com/coursehub/backend/internal/utils"
)

type AffiliateServiceTestSuite struct {
	suite.Suite
	db  *gorm.DB
	cfg *config.Config
	svc *AffiliateService
}

func (suite *AffiliateServiceTestSuite) SetupTest() {
	suite.db = newTestDB(suite.T())
	suite.cfg = newTestConfig()
	suite.svc = NewAffiliateService(suite.db, suite.cfg, nil, nil)
}

func (suite *AffiliateServiceTestSuite) TestRegisterIssuesCode() {
	user := createTestUser(suite.T(), suite.db, models.UserTypeInstructor)

	affiliate, err := suite.svc.Register(user.ID, &RegisterAffiliateRequest{
		PaymentLink: "https://pay.example.com/me",
	})
	suite.NoError(err)
	suite.NotNil(affiliate)

	suite.Len(affiliate.AffiliateCode, suite.cfg.Affiliate.CodeLength)
	for _, r := range affiliate.AffiliateCode {
		suite.True((r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			"unexpected character %q in affiliate code", r)
	}

	suite.Equal(suite.cfg.Affiliate.DefaultCommissionRate, affiliate.CommissionRate)
	suite.True(affiliate.IsActive)
	suite.False(affiliate.IsRevoked)
	suite.Equal(int64(0), affiliate.TotalEarnings)
	suite.Equal(int64(0), affiliate.UnpaidBalance)
}

func (suite *AffiliateServiceTestSuite) TestRegisterTwiceRejected() {
	user := createTestUser(suite.T(), suite.db, models.UserTypeInstructor)

	_, err := suite.svc.Register(user.ID, &RegisterAffiliateRequest{
		PaymentLink: "https://pay.example.com/me",
	})
	suite.Require().NoError(err)

	_, err = suite.svc.Register(user.ID, &RegisterAffiliateRequest{
		PaymentLink: "https://pay.example.com/me",
	})
	suite.True(IsAffiliateErrorCode(err, CodeAlreadyRegistered))
}

func (suite *AffiliateServiceTestSuite) TestRegisterRejectsBadPaymentLink() {
	user := createTestUser(suite.T(), suite.db, models.UserTypeInstructor)

	for _, link := range []string{"", "short", "ftp://pay.example.com/me", "not a url at all"} {
		_, err := suite.svc.Register(user.ID, &RegisterAffiliateRequest{PaymentLink: link})
		suite.True(IsAffiliateErrorCode(err, CodeInvalidPaymentLink), "link %q should be rejected", link)
	}
}

func (suite *AffiliateServiceTestSuite) TestRegisterWithNotifierSucceeds() {
	user := createTestUser(suite.T(), suite.db, models.UserTypeInstructor)
	svc := NewAffiliateService(suite.db, suite.cfg, nil, NewNotificationService(suite.db, suite.cfg))

	affiliate, err := svc.Register(user.ID, &RegisterAffiliateRequest{
		PaymentLink: "https://pay.example.com/me",
	})
	suite.NoError(err)
	suite.NotNil(affiliate)
}

func (suite *AffiliateServiceTestSuite) TestValidateCode() {
	ctx := context.Background()
	user := createTestUser(suite.T(), suite.db, models.UserTypeInstructor)
	affiliate := createTestAffiliate(suite.T(), suite.db, user, "VALID001")

	found, err := suite.svc.ValidateCode(ctx, "VALID001")
	suite.NoError(err)
	suite.NotNil(found)
	suite.Equal(affiliate.ID, found.ID)

	// Unknown codes are soft misses, not errors.
	found, err = suite.svc.ValidateCode(ctx, "MISSING1")
	suite.NoError(err)
	suite.Nil(found)

	// Inactive codes behave like unknown codes.
	suite.db.Model(&models.Affiliate{}).Where("id = ?", affiliate.ID).Update("is_active", false)
	found, err = suite.svc.ValidateCode(ctx, "VALID001")
	suite.NoError(err)
	suite.Nil(found)
}

func (suite *AffiliateServiceTestSuite) TestValidateRevokedCodeFailsLoudly() {
	user := createTestUser(suite.T(), suite.db, models.UserTypeInstructor)
	affiliate := createTestAffiliate(suite.T(), suite.db, user, "REVOKED1")
	admin := createTestUser(suite.T(), suite.db, models.UserTypeAdmin)

	_, err := suite.svc.Revoke(affiliate.ID, "terms violation", admin.ID)
	suite.Require().NoError(err)

	found, err := suite.svc.ValidateCode(context.Background(), "REVOKED1")
	suite.Nil(found)
	suite.True(IsAffiliateErrorCode(err, CodeAffiliateRevoked))
}

func (suite *AffiliateServiceTestSuite) TestRevokeRequiresAdmin() {
	user := createTestUser(suite.T(), suite.db, models.UserTypeInstructor)
	affiliate := createTestAffiliate(suite.T(), suite.db, user, "PRIV0001")
	student := createTestUser(suite.T(), suite.db, models.UserTypeStudent)

	_, err := suite.svc.Revoke(affiliate.ID, "nope", student.ID)
	suite.ErrorIs(err, ErrAdminRequired)
}

func (suite *AffiliateServiceTestSuite) TestRevokeSetsAuditFields() {
	user := createTestUser(suite.T(), suite.db, models.UserTypeInstructor)
	affiliate := createTestAffiliate(suite.T(), suite.db, user, "AUDIT001")
	admin := createTestUser(suite.T(), suite.db, models.UserTypeAdmin)

	revoked, err := suite.svc.Revoke(affiliate.ID, "fraudulent referrals", admin.ID)
	suite.NoError(err)
	suite.True(revoked.IsRevoked)
	suite.Equal("fraudulent referrals", revoked.RevokedReason)
	suite.NotNil(revoked.RevokedBy)
	suite.Equal(admin.ID, *revoked.RevokedBy)
	suite.NotNil(revoked.RevokedAt)

	// Revocation is idempotent; the reason is last-write-wins.
	again, err := suite.svc.Revoke(affiliate.ID, "second reason", admin.ID)
	suite.NoError(err)
	suite.True(again.IsRevoked)
	suite.Equal("second reason", again.RevokedReason)
}

func (suite *AffiliateServiceTestSuite) TestUpdateProfilePartial() {
	user := createTestUser(suite.T(), suite.db, models.UserTypeInstructor)
	affiliate := createTestAffiliate(suite.T(), suite.db, user, "PROF0001")

	newLink := "https://pay.example.com/new"
	inactive := false
	updated, err := suite.svc.UpdateProfile(affiliate.ID, &UpdateAffiliateProfileRequest{
		PaymentLink: &newLink,
		IsActive:    &inactive,
	})
	suite.NoError(err)
	suite.Equal(newLink, updated.PaymentLink)
	suite.False(updated.IsActive)

	// Untouched fields survive a partial update.
	suite.Equal("PROF0001", updated.AffiliateCode)
	suite.Equal(20, updated.CommissionRate)
}

func (suite *AffiliateServiceTestSuite) TestGetAnalytics() {
	user := createTestUser(suite.T(), suite.db, models.UserTypeInstructor)
	affiliate := createTestAffiliate(suite.T(), suite.db, user, "STATS001")
	student := createTestUser(suite.T(), suite.db, models.UserTypeStudent)

	commission := NewCommissionService(suite.db, suite.cfg)
	_, err := commission.RecordReferral(&RecordReferralRequest{
		AffiliateCode:         affiliate.AffiliateCode,
		PurchaserID:           student.ID,
		ExternalTransactionID: "txn_stats",
		GrossAmount:           10000,
	})
	suite.Require().NoError(err)

	analytics, err := suite.svc.GetAnalytics(user.ID)
	suite.NoError(err)
	suite.Equal(int64(2000), analytics.Stats.TotalEarnings)
	suite.Equal(int64(2000), analytics.Stats.UnpaidBalance)
	suite.Equal(int64(1), analytics.Stats.ReferralCount)
	suite.Equal(int64(0), analytics.Stats.RefundCount)
	suite.Len(analytics.RecentReferrals, 1)
	suite.NotEmpty(analytics.MonthlyEarnings)

	current := analytics.MonthlyEarnings[len(analytics.MonthlyEarnings)-1]
	suite.Equal(int64(2000), current.Amount)
}

func (suite *AffiliateServiceTestSuite) TestListAllWithStats() {
	student := createTestUser(suite.T(), suite.db, models.UserTypeStudent)
	commission := NewCommissionService(suite.db, suite.cfg)
	refund := NewRefundService(suite.db, suite.cfg)

	first := createTestAffiliate(suite.T(), suite.db,
		createTestUser(suite.T(), suite.db, models.UserTypeInstructor), "LIST0001")
	createTestAffiliate(suite.T(), suite.db,
		createTestUser(suite.T(), suite.db, models.UserTypeInstructor), "LIST0002")

	_, err := commission.RecordReferral(&RecordReferralRequest{
		AffiliateCode:         first.AffiliateCode,
		PurchaserID:           student.ID,
		ExternalTransactionID: "txn_list",
		GrossAmount:           10000,
	})
	suite.Require().NoError(err)

	_, err = refund.Reverse(&ReverseRequest{
		ExternalTransactionID: "txn_list",
		ExternalRefundID:      "re_list",
		RefundAmount:          10000,
	})
	suite.Require().NoError(err)

	result, total, err := suite.svc.ListAllWithStats(utils.PaginationParams{
		Page: 1, Limit: 20, Sort: "created_at", Order: "asc",
	})
	suite.NoError(err)
	suite.Equal(int64(2), total)
	suite.Require().Len(result, 2)

	suite.Equal("LIST0001", result[0].AffiliateCode)
	suite.Equal(int64(1), result[0].ReferralCount)
	suite.Equal(int64(1), result[0].RefundCount)
	suite.Equal(int64(0), result[1].ReferralCount)
	suite.Equal(int64(0), result[1].RefundCount)
}

func TestAffiliateServiceSuite(t *testing.T) {
	suite.Run(t, new(AffiliateServiceTestSuite))
}
