// internal/services/affiliate_errors.go
package services

import "errors"

// AffiliateErrorCode is the closed set of user-facing validation failures
// the ledger can raise. Every code is raised before any write, so none of
// them can leave ledger state half-applied. Anything outside this set is
// an infrastructure error and propagates wrapped.
type AffiliateErrorCode string

const (
	CodeAlreadyRegistered   AffiliateErrorCode = "ALREADY_REGISTERED"
	CodeInvalidPaymentLink  AffiliateErrorCode = "INVALID_PAYMENT_LINK"
	CodeMinimumPayoutNotMet AffiliateErrorCode = "MINIMUM_PAYOUT_NOT_MET"
	CodeInsufficientBalance AffiliateErrorCode = "INSUFFICIENT_BALANCE"
	CodeAffiliateRevoked    AffiliateErrorCode = "AFFILIATE_CODE_REVOKED"
	CodeNotAffiliate        AffiliateErrorCode = "NOT_AFFILIATE"
	CodeAlreadyConnected    AffiliateErrorCode = "ALREADY_CONNECTED"
	CodeGenerationFailed    AffiliateErrorCode = "CODE_GENERATION_FAILED"
	CodePayoutProviderError AffiliateErrorCode = "PAYOUT_PROVIDER_ERROR"
)

type AffiliateError struct {
	Code    AffiliateErrorCode
	Message string
}

func (e *AffiliateError) Error() string {
	return string(e.Code) + ": " + e.Message
}

func newAffiliateError(code AffiliateErrorCode, message string) *AffiliateError {
	return &AffiliateError{Code: code, Message: message}
}

// AsAffiliateError unwraps err into an *AffiliateError if it is one.
func AsAffiliateError(err error) (*AffiliateError, bool) {
	var ae *AffiliateError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsAffiliateErrorCode reports whether err carries the given code.
func IsAffiliateErrorCode(err error, code AffiliateErrorCode) bool {
	if ae, ok := AsAffiliateError(err); ok {
		return ae.Code == code
	}
	return false
}
