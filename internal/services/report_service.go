// internal/services/report_service.go
package services

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/coursehub/backend/internal/config"
	"github.com/coursehub/backend/internal/models"
)

// ReportService generates per-affiliate earnings reports and archives the
// CSV export to S3. Without AWS credentials it still generates reports,
// it just skips the archive step.
type ReportService struct {
	db       *gorm.DB
	s3Client *s3.S3
	config   *config.Config
}

// EarningsRow is one affiliate's line in the earnings report. All amounts
// are minor units.
type EarningsRow struct {
	AffiliateID   string `json:"affiliate_id"`
	AffiliateCode string `json:"affiliate_code"`
	Username      string `json:"username"`
	ReferralCount int64  `json:"referral_count"`
	RefundCount   int64  `json:"refund_count"`
	GrossSales    int64  `json:"gross_sales"`
	Commission    int64  `json:"commission"`
	Reversed      int64  `json:"reversed"`
	TotalEarnings int64  `json:"total_earnings"`
	PaidAmount    int64  `json:"paid_amount"`
	UnpaidBalance int64  `json:"unpaid_balance"`
}

type EarningsReport struct {
	PeriodStart time.Time     `json:"period_start"`
	PeriodEnd   time.Time     `json:"period_end"`
	Rows        []EarningsRow `json:"rows"`
	ArchiveURL  string        `json:"archive_url,omitempty"`
}

// NewReportService always returns a usable service. A failed AWS session
// only disables the archive step; reports must stay available to admins
// regardless of S3 health.
func NewReportService(db *gorm.DB, config *config.Config) *ReportService {
	svc := &ReportService{db: db, config: config}

	if config.AWS.AccessKeyID == "" {
		// No archive in local development
		return svc
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(config.AWS.Region),
		Credentials: credentials.NewStaticCredentials(
			config.AWS.AccessKeyID,
			config.AWS.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		logrus.WithError(err).Error("Failed to create AWS session, earnings reports will not be archived")
		return svc
	}

	svc.s3Client = s3.New(sess)
	return svc
}

// GenerateEarningsReport builds the earnings report for the given period
// and, when S3 is configured, archives the CSV export.
func (s *ReportService) GenerateEarningsReport(periodStart, periodEnd time.Time) (*EarningsReport, error) {
	var affiliates []models.Affiliate
	if err := s.db.Order("created_at ASC").Find(&affiliates).Error; err != nil {
		return nil, fmt.Errorf("failed to load affiliates: %w", err)
	}

	report := &EarningsReport{
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Rows:        make([]EarningsRow, 0, len(affiliates)),
	}

	for _, a := range affiliates {
		row := EarningsRow{
			AffiliateID:   a.ID.String(),
			AffiliateCode: a.AffiliateCode,
			TotalEarnings: a.TotalEarnings,
			PaidAmount:    a.PaidAmount,
			UnpaidBalance: a.UnpaidBalance,
		}

		var user models.User
		if err := s.db.Select("username").First(&user, "id = ?", a.UserID).Error; err == nil {
			row.Username = user.Username
		}

		type sums struct {
			Count int64
			Gross int64
			Comm  int64
		}
		var rs sums
		if err := s.db.Model(&models.Referral{}).
			Where("affiliate_id = ? AND created_at >= ? AND created_at < ?", a.ID, periodStart, periodEnd).
			Select("COUNT(*) AS count, COALESCE(SUM(sale_amount), 0) AS gross, COALESCE(SUM(commission_amount), 0) AS comm").
			Scan(&rs).Error; err != nil {
			return nil, fmt.Errorf("failed to aggregate referrals: %w", err)
		}
		row.ReferralCount = rs.Count
		row.GrossSales = rs.Gross
		row.Commission = rs.Comm

		type refundSums struct {
			Count    int64
			Reversed int64
		}
		var fs refundSums
		if err := s.db.Model(&models.Refund{}).
			Where("affiliate_id = ? AND created_at >= ? AND created_at < ?", a.ID, periodStart, periodEnd).
			Select("COUNT(*) AS count, COALESCE(SUM(commission_refund), 0) AS reversed").
			Scan(&fs).Error; err != nil {
			return nil, fmt.Errorf("failed to aggregate refunds: %w", err)
		}
		row.RefundCount = fs.Count
		row.Reversed = fs.Reversed

		report.Rows = append(report.Rows, row)
	}

	if s.s3Client != nil {
		url, err := s.archiveCSV(report)
		if err != nil {
			// The report itself is still usable; archiving is best effort.
			logrus.WithError(err).Error("Failed to archive earnings report")
		} else {
			report.ArchiveURL = url
		}
	}

	return report, nil
}

func (s *ReportService) archiveCSV(report *EarningsReport) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"affiliate_id", "affiliate_code", "username", "referral_count",
		"refund_count", "gross_sales", "commission", "reversed",
		"total_earnings", "paid_amount", "unpaid_balance"}
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, r := range report.Rows {
		record := []string{
			r.AffiliateID,
			r.AffiliateCode,
			r.Username,
			strconv.FormatInt(r.ReferralCount, 10),
			strconv.FormatInt(r.RefundCount, 10),
			strconv.FormatInt(r.GrossSales, 10),
			strconv.FormatInt(r.Commission, 10),
			strconv.FormatInt(r.Reversed, 10),
			strconv.FormatInt(r.TotalEarnings, 10),
			strconv.FormatInt(r.PaidAmount, 10),
			strconv.FormatInt(r.UnpaidBalance, 10),
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush CSV: %w", err)
	}

	key := fmt.Sprintf("reports/earnings_%s_%s.csv",
		report.PeriodStart.Format("20060102"), report.PeriodEnd.Format("20060102"))

	_, err := s.s3Client.PutObject(&s3.PutObjectInput{
		Bucket:        aws.String(s.config.AWS.S3Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentType:   aws.String("text/csv"),
		ContentLength: aws.Int64(int64(buf.Len())),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload report to S3: %w", err)
	}

	return s.getS3URL(key), nil
}

func (s *ReportService) getS3URL(key string) string {
	if s.config.AWS.CloudFrontURL != "" {
		return fmt.Sprintf("%s/%s", s.config.AWS.CloudFrontURL, key)
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s",
		s.config.AWS.S3Bucket, s.config.AWS.Region, key)
}
