// internal/services/notification_service.go
package services

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/coursehub/backend/internal/config"
	"github.com/coursehub/backend/internal/models"
)

// NotificationService sends affiliate lifecycle emails and writes in-app
// admin notifications. Callers fire the email methods from goroutines;
// failures are logged and never surface to ledger operations.
type NotificationService struct {
	db     *gorm.DB
	config *config.Config
}

type EmailTemplate struct {
	Subject string
	Body    string
}

func NewNotificationService(db *gorm.DB, config *config.Config) *NotificationService {
	return &NotificationService{
		db:     db,
		config: config,
	}
}

// Authentication notifications
func (s *NotificationService) SendWelcomeEmail(user *models.User) error {
	tmpl := s.getEmailTemplate("welcome")

	data := map[string]interface{}{
		"Username":     user.Username,
		"PlatformName": "CourseHub",
		"DashboardURL": fmt.Sprintf("%s/dashboard", s.config.Frontend.BaseURL),
	}

	body, err := s.renderTemplate(tmpl.Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return s.sendEmail(user.Email, tmpl.Subject, body)
}

// SendAffiliateWelcomeEmail sends the new affiliate their code and rate.
// Safe to call from a goroutine after commit; errors are logged only.
func (s *NotificationService) SendAffiliateWelcomeEmail(affiliate *models.Affiliate) {
	var user models.User
	if err := s.db.First(&user, "id = ?", affiliate.UserID).Error; err != nil {
		logrus.WithError(err).WithField("affiliate_id", affiliate.ID).
			Error("Failed to load user for affiliate welcome email")
		return
	}

	tmpl := s.getEmailTemplate("affiliate_welcome")

	data := map[string]interface{}{
		"Username":       user.Username,
		"AffiliateCode":  affiliate.AffiliateCode,
		"CommissionRate": affiliate.CommissionRate,
		"DashboardURL":   fmt.Sprintf("%s/affiliate/dashboard", s.config.Frontend.BaseURL),
	}

	body, err := s.renderTemplate(tmpl.Body, data)
	if err != nil {
		logrus.WithError(err).Error("Failed to render affiliate welcome email")
		return
	}

	if err := s.sendEmail(user.Email, tmpl.Subject, body); err != nil {
		logrus.WithError(err).WithField("affiliate_id", affiliate.ID).
			Error("Failed to send affiliate welcome email")
	}
}

// SendRevocationEmail notifies the affiliate that their code was revoked.
// Safe to call from a goroutine after commit; errors are logged only.
func (s *NotificationService) SendRevocationEmail(affiliate *models.Affiliate, reason string) {
	var user models.User
	if err := s.db.First(&user, "id = ?", affiliate.UserID).Error; err != nil {
		logrus.WithError(err).WithField("affiliate_id", affiliate.ID).
			Error("Failed to load user for revocation email")
		return
	}

	tmpl := s.getEmailTemplate("affiliate_revoked")

	data := map[string]interface{}{
		"Username":      user.Username,
		"AffiliateCode": affiliate.AffiliateCode,
		"Reason":        reason,
	}

	body, err := s.renderTemplate(tmpl.Body, data)
	if err != nil {
		logrus.WithError(err).Error("Failed to render revocation email")
		return
	}

	if err := s.sendEmail(user.Email, tmpl.Subject, body); err != nil {
		logrus.WithError(err).WithField("affiliate_id", affiliate.ID).
			Error("Failed to send revocation email")
	}
}

// SendPayoutRecordedEmail notifies the affiliate that a payout was
// recorded against their balance. Same fire-and-forget contract as
// SendRevocationEmail.
func (s *NotificationService) SendPayoutRecordedEmail(affiliateID uuid.UUID, payout *models.Payout) {
	var affiliate models.Affiliate
	if err := s.db.First(&affiliate, "id = ?", affiliateID).Error; err != nil {
		logrus.WithError(err).WithField("affiliate_id", affiliateID).
			Error("Failed to load affiliate for payout email")
		return
	}

	var user models.User
	if err := s.db.First(&user, "id = ?", affiliate.UserID).Error; err != nil {
		logrus.WithError(err).WithField("affiliate_id", affiliateID).
			Error("Failed to load user for payout email")
		return
	}

	tmpl := s.getEmailTemplate("payout_recorded")

	data := map[string]interface{}{
		"Username":     user.Username,
		"Amount":       formatMinorUnits(payout.Amount),
		"DashboardURL": fmt.Sprintf("%s/affiliate/dashboard", s.config.Frontend.BaseURL),
	}

	body, err := s.renderTemplate(tmpl.Body, data)
	if err != nil {
		logrus.WithError(err).Error("Failed to render payout email")
		return
	}

	if err := s.sendEmail(user.Email, tmpl.Subject, body); err != nil {
		logrus.WithError(err).WithField("affiliate_id", affiliateID).
			Error("Failed to send payout email")
	}
}

// NotifyAdmins writes an in-app notification for the admin dashboard.
func (s *NotificationService) NotifyAdmins(notifType, title, message, priority string, resourceType string, resourceID *uuid.UUID) error {
	notification := &models.AdminNotification{
		Type:                notifType,
		Title:               title,
		Message:             message,
		Priority:            priority,
		RelatedResourceType: resourceType,
		RelatedResourceID:   resourceID,
	}

	if err := s.db.Create(notification).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	return nil
}

// Helper methods
func (s *NotificationService) sendEmail(to, subject, body string) error {
	if s.config.Email.SMTPHost == "" {
		// Email not configured, just log
		logrus.WithFields(logrus.Fields{
			"to":      to,
			"subject": subject,
		}).Info("Email delivery skipped: SMTP not configured")
		return nil
	}

	auth := smtp.PlainAuth("", s.config.Email.SMTPUsername, s.config.Email.SMTPPassword, s.config.Email.SMTPHost)

	msg := []byte(fmt.Sprintf("To: %s\r\nSubject: %s\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s", to, subject, body))

	addr := fmt.Sprintf("%s:%s", s.config.Email.SMTPHost, s.config.Email.SMTPPort)
	return smtp.SendMail(addr, auth, s.config.Email.FromEmail, []string{to}, msg)
}

func (s *NotificationService) renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("email").Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func formatMinorUnits(amount int64) string {
	return fmt.Sprintf("$%d.%02d", amount/100, amount%100)
}

func (s *NotificationService) getEmailTemplate(templateType string) EmailTemplate {
	templates := map[string]EmailTemplate{
		"welcome": {
			Subject: "Welcome to CourseHub",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Welcome {{.Username}}!</h2>
	<p>Thank you for joining {{.PlatformName}}.</p>
	<a href="{{.DashboardURL}}">Go to your dashboard</a>
	<p>Best regards,<br>{{.PlatformName}} Team</p>
</body>
</html>`,
		},
		"affiliate_welcome": {
			Subject: "Your CourseHub Affiliate Code",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Welcome to the affiliate program, {{.Username}}!</h2>
	<p>Your affiliate code is <strong>{{.AffiliateCode}}</strong>.</p>
	<p>You earn {{.CommissionRate}}% commission on every course purchase made with your code.</p>
	<a href="{{.DashboardURL}}">View your earnings</a>
	<p>Best regards,<br>CourseHub Team</p>
</body>
</html>`,
		},
		"affiliate_revoked": {
			Subject: "Your Affiliate Code Has Been Revoked",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Hello {{.Username}},</h2>
	<p>Your affiliate code <strong>{{.AffiliateCode}}</strong> has been revoked and will no longer earn commission.</p>
	<p>Reason: {{.Reason}}</p>
	<p>Commission already earned remains on your account. Contact support if you believe this is a mistake.</p>
	<p>Best regards,<br>CourseHub Team</p>
</body>
</html>`,
		},
		"payout_recorded": {
			Subject: "Payout Recorded",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Hello {{.Username}},</h2>
	<p>A payout of <strong>{{.Amount}}</strong> has been recorded against your affiliate balance.</p>
	<a href="{{.DashboardURL}}">View payout history</a>
	<p>Best regards,<br>CourseHub Team</p>
</body>
</html>`,
		},
	}

	if tmpl, exists := templates[templateType]; exists {
		return tmpl
	}

	// Default template
	return EmailTemplate{
		Subject: "Notification",
		Body:    "<p>{{.Message}}</p>",
	}
}
