// internal/handlers/webhook.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/coursehub/backend/internal/i18n"
	"github.com/coursehub/backend/internal/services"
	"github.com/coursehub/backend/internal/utils"
)

// WebhookHandler receives payment processor callbacks. Both endpoints
// always answer 200 once the payload parses: the external money movement
// already happened, so "skipped" outcomes must not trigger processor
// retries.
type WebhookHandler struct {
	commissionService *services.CommissionService
	refundService     *services.RefundService
}

func NewWebhookHandler(commissionService *services.CommissionService, refundService *services.RefundService) *WebhookHandler {
	return &WebhookHandler{
		commissionService: commissionService,
		refundService:     refundService,
	}
}

// POST /webhooks/referral
func (h *WebhookHandler) RecordReferral(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req services.RecordReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "payload"), err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	referral, err := h.commissionService.RecordReferral(&req)
	if err != nil {
		utils.InternalErrorResponse(c, "")
		return
	}

	if referral == nil {
		utils.SuccessResponse(c, gin.H{
			"status":  "skipped",
			"message": i18n.T(lang, i18n.KeyReferralSkipped),
		})
		return
	}

	utils.SuccessResponse(c, gin.H{
		"status":   "recorded",
		"message":  i18n.T(lang, i18n.KeyReferralRecorded),
		"referral": referral,
	})
}

// POST /webhooks/refund
func (h *WebhookHandler) RecordRefund(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req services.ReverseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "payload"), err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	refund, err := h.refundService.Reverse(&req)
	if err != nil {
		utils.InternalErrorResponse(c, "")
		return
	}

	if refund == nil {
		utils.SuccessResponse(c, gin.H{
			"status":  "skipped",
			"message": i18n.T(lang, i18n.KeyRefundSkipped),
		})
		return
	}

	utils.SuccessResponse(c, gin.H{
		"status":  "recorded",
		"message": i18n.T(lang, i18n.KeyRefundReversed),
		"refund":  refund,
	})
}
