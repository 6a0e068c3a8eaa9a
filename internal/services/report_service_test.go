// internal/services/report_service_test.go
package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/coursehub/backend/internal/config"
	"github.com/coursehub/backend/internal/models"
)

type ReportServiceTestSuite struct {
	suite.Suite
	db         *gorm.DB
	cfg        *config.Config
	svc        *ReportService
	commission *CommissionService
	refund     *RefundService
	student    *models.User
	affiliate  *models.Affiliate
}

func (suite *ReportServiceTestSuite) SetupTest() {
	suite.db = newTestDB(suite.T())
	suite.cfg = newTestConfig()
	suite.svc = NewReportService(suite.db, suite.cfg)
	suite.commission = NewCommissionService(suite.db, suite.cfg)
	suite.refund = NewRefundService(suite.db, suite.cfg)

	suite.student = createTestUser(suite.T(), suite.db, models.UserTypeStudent)
	owner := createTestUser(suite.T(), suite.db, models.UserTypeInstructor)
	suite.affiliate = createTestAffiliate(suite.T(), suite.db, owner, "REPORT01")
}

func (suite *ReportServiceTestSuite) TestConstructionWithoutCredentials() {
	// No AWS credentials configured: the service must still be usable,
	// it just never archives.
	suite.Require().NotNil(suite.svc)
	suite.Nil(suite.svc.s3Client)
}

func (suite *ReportServiceTestSuite) TestGenerateEarningsReportWithoutArchive() {
	referral, err := suite.commission.RecordReferral(&RecordReferralRequest{
		AffiliateCode:         suite.affiliate.AffiliateCode,
		PurchaserID:           suite.student.ID,
		ExternalTransactionID: "txn_report",
		GrossAmount:           10000,
	})
	suite.Require().NoError(err)
	suite.Require().NotNil(referral)

	_, err = suite.refund.Reverse(&ReverseRequest{
		ExternalTransactionID: "txn_report",
		ExternalRefundID:      "re_report",
		RefundAmount:          2500,
	})
	suite.Require().NoError(err)

	periodStart := time.Now().Add(-24 * time.Hour)
	periodEnd := time.Now().Add(24 * time.Hour)

	report, err := suite.svc.GenerateEarningsReport(periodStart, periodEnd)
	suite.Require().NoError(err)
	suite.Require().Len(report.Rows, 1)

	row := report.Rows[0]
	suite.Equal(suite.affiliate.AffiliateCode, row.AffiliateCode)
	suite.Equal(int64(1), row.ReferralCount)
	suite.Equal(int64(10000), row.GrossSales)
	suite.Equal(int64(2000), row.Commission)
	suite.Equal(int64(1), row.RefundCount)
	suite.Equal(int64(500), row.Reversed)
	suite.Equal(int64(1500), row.TotalEarnings)
	suite.Equal(int64(1500), row.UnpaidBalance)

	// Without S3 the archive step is skipped, never attempted.
	suite.Empty(report.ArchiveURL)
}

func (suite *ReportServiceTestSuite) TestGenerateEarningsReportExcludesOtherPeriods() {
	_, err := suite.commission.RecordReferral(&RecordReferralRequest{
		AffiliateCode:         suite.affiliate.AffiliateCode,
		PurchaserID:           suite.student.ID,
		ExternalTransactionID: "txn_outside",
		GrossAmount:           10000,
	})
	suite.Require().NoError(err)

	periodStart := time.Now().Add(-48 * time.Hour)
	periodEnd := time.Now().Add(-24 * time.Hour)

	report, err := suite.svc.GenerateEarningsReport(periodStart, periodEnd)
	suite.Require().NoError(err)
	suite.Require().Len(report.Rows, 1)

	// Balances are point-in-time, activity columns are period-scoped.
	row := report.Rows[0]
	suite.Equal(int64(0), row.ReferralCount)
	suite.Equal(int64(0), row.GrossSales)
	suite.Equal(int64(2000), row.TotalEarnings)
}

func TestReportServiceSuite(t *testing.T) {
	suite.Run(t, new(ReportServiceTestSuite))
}
