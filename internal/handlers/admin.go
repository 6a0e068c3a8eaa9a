// internal/handlers/admin.go
package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/coursehub/backend/internal/i18n"
	"github.com/coursehub/backend/internal/services"
	"github.com/coursehub/backend/internal/utils"
)

// AdminHandler serves the administrative ledger surface: the affiliate
// roster, payout recording, revocation, abuse signals and reports.
type AdminHandler struct {
	affiliateService *services.AffiliateService
	payoutService    *services.PayoutService
	refundService    *services.RefundService
	reportService    *services.ReportService
}

func NewAdminHandler(
	affiliateService *services.AffiliateService,
	payoutService *services.PayoutService,
	refundService *services.RefundService,
	reportService *services.ReportService,
) *AdminHandler {
	return &AdminHandler{
		affiliateService: affiliateService,
		payoutService:    payoutService,
		refundService:    refundService,
		reportService:    reportService,
	}
}

// GET /admin/affiliates
func (h *AdminHandler) ListAffiliates(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	affiliates, total, err := h.affiliateService.ListAllWithStats(params)
	if err != nil {
		utils.InternalErrorResponse(c, "")
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(affiliates, total, params))
}

// POST /admin/affiliates/:id/payouts
func (h *AdminHandler) RecordPayout(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	affiliateID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid affiliate ID", nil)
		return
	}

	adminID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.RecordPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	payout, err := h.payoutService.RecordPayout(affiliateID, &req, adminID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyPayoutRecorded),
		"payout":  payout,
	})
}

// POST /admin/affiliates/:id/revoke
func (h *AdminHandler) RevokeAffiliate(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	affiliateID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid affiliate ID", nil)
		return
	}

	adminID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason" validate:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	affiliate, err := h.affiliateService.Revoke(affiliateID, req.Reason, adminID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":   i18n.T(lang, i18n.KeyAffiliateRevoked),
		"affiliate": affiliate,
	})
}

// GET /admin/affiliates/:id/abuse-signal
func (h *AdminHandler) GetAbuseSignal(c *gin.Context) {
	affiliateID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid affiliate ID", nil)
		return
	}

	signal, err := h.refundService.GetAbuseSignal(affiliateID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, signal)
}

// GET /admin/reports/earnings?from=2026-01-01&to=2026-02-01
//
// Defaults to the current calendar month when no range is given.
func (h *AdminHandler) GetEarningsReport(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	now := time.Now()
	periodStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	periodEnd := now

	if from := c.Query("from"); from != "" {
		parsed, err := time.Parse("2006-01-02", from)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid from date, expected YYYY-MM-DD", nil)
			return
		}
		periodStart = parsed
	}
	if to := c.Query("to"); to != "" {
		parsed, err := time.Parse("2006-01-02", to)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid to date, expected YYYY-MM-DD", nil)
			return
		}
		periodEnd = parsed
	}

	if !periodStart.Before(periodEnd) {
		utils.BadRequestResponse(c, "Report period start must precede its end", nil)
		return
	}

	report, err := h.reportService.GenerateEarningsReport(periodStart, periodEnd)
	if err != nil {
		utils.InternalErrorResponse(c, "")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyAdminReportGenerated),
		"report":  report,
	})
}
