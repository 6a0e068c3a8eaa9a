// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Common
	KeySuccess = "success"
	KeyError   = "error"

	// Authentication
	KeyAuthRequired           = "auth.required"
	KeyAuthInvalidToken       = "auth.invalid_token"
	KeyAuthTokenExpired       = "auth.token_expired"
	KeyAuthInvalidCredentials = "auth.invalid_credentials"
	KeyAuthUserNotFound       = "auth.user_not_found"
	KeyAuthUserExists         = "auth.user_exists"
	KeyAuthLoginSuccess       = "auth.login_success"
	KeyAuthRegisterSuccess    = "auth.register_success"

	// Affiliate registry
	KeyAffiliateRegistered     = "affiliate.registered"
	KeyAffiliateNotFound       = "affiliate.not_found"
	KeyAffiliateAlreadyExists  = "affiliate.already_exists"
	KeyAffiliateProfileUpdated = "affiliate.profile_updated"
	KeyAffiliateRevoked        = "affiliate.revoked"
	KeyAffiliateCodeRevoked    = "affiliate.code_revoked"
	KeyAffiliateInvalidLink    = "affiliate.invalid_payment_link"
	KeyAffiliateConnected      = "affiliate.connected"

	// Ledger
	KeyReferralRecorded = "referral.recorded"
	KeyReferralSkipped  = "referral.skipped"
	KeyPayoutRecorded   = "payout.recorded"
	KeyPayoutBelowMin   = "payout.below_minimum"
	KeyRefundReversed   = "refund.reversed"
	KeyRefundSkipped    = "refund.skipped"

	// Admin
	KeyAdminActionSuccess   = "admin.action_success"
	KeyAdminAccessDenied    = "admin.access_denied"
	KeyAdminReportGenerated = "admin.report_generated"

	// Validation
	KeyValidationRequired = "validation.required"
	KeyValidationInvalid  = "validation.invalid"
	KeyValidationTooShort = "validation.too_short"
	KeyValidationTooLong  = "validation.too_long"

	// Notifications
	KeyNotificationSent   = "notification.sent"
	KeyNotificationFailed = "notification.failed"
)
