// internal/handlers/affiliate.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/coursehub/backend/internal/i18n"
	"github.com/coursehub/backend/internal/services"
	"github.com/coursehub/backend/internal/utils"
)

// AffiliateHandler serves the affiliate's own surface: registration,
// dashboard, profile and payout account onboarding, plus the public code
// validation used at checkout.
type AffiliateHandler struct {
	affiliateService *services.AffiliateService
	payoutService    *services.PayoutService
}

func NewAffiliateHandler(affiliateService *services.AffiliateService, payoutService *services.PayoutService) *AffiliateHandler {
	return &AffiliateHandler{
		affiliateService: affiliateService,
		payoutService:    payoutService,
	}
}

// POST /affiliates/register
func (h *AffiliateHandler) Register(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.RegisterAffiliateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	affiliate, err := h.affiliateService.Register(userID, &req)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":   i18n.T(lang, i18n.KeyAffiliateRegistered),
		"affiliate": affiliate,
	})
}

// GET /affiliates/dashboard
func (h *AffiliateHandler) GetDashboard(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	analytics, err := h.affiliateService.GetAnalytics(userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, analytics)
}

// PUT /affiliates/profile
func (h *AffiliateHandler) UpdateProfile(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	affiliate, err := h.affiliateService.GetByUserID(userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	var req services.UpdateAffiliateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	updated, err := h.affiliateService.UpdateProfile(affiliate.ID, &req)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":   i18n.T(lang, i18n.KeyAffiliateProfileUpdated),
		"affiliate": updated,
	})
}

// POST /affiliates/connect
func (h *AffiliateHandler) CreateConnectedAccount(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	resp, err := h.payoutService.CreateConnectedAccount(userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":        i18n.T(lang, i18n.KeyAffiliateConnected),
		"account_id":     resp.AccountID,
		"onboarding_url": resp.OnboardingURL,
	})
}

// POST /affiliates/connect/refresh
func (h *AffiliateHandler) RefreshAccountStatus(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	affiliate, err := h.payoutService.RefreshAccountStatus(userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"affiliate": affiliate,
	})
}

// GET /affiliates/validate/:code
//
// Public checkout endpoint. Unknown or inactive codes return valid=false
// with 200; only a revoked code is an error status, so storefronts can
// distinguish "ignore the code" from "refuse it".
func (h *AffiliateHandler) ValidateCode(c *gin.Context) {
	code := c.Param("code")

	affiliate, err := h.affiliateService.ValidateCode(c.Request.Context(), code)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	if affiliate == nil {
		utils.SuccessResponse(c, gin.H{
			"valid": false,
		})
		return
	}

	utils.SuccessResponse(c, gin.H{
		"valid":           true,
		"affiliate_code":  affiliate.AffiliateCode,
		"commission_rate": affiliate.CommissionRate,
	})
}

// currentUserID pulls the authenticated user out of the context set by the
// auth middleware. Writes the error response itself on failure.
func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	userIDStr, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return uuid.Nil, false
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid user ID", nil)
		return uuid.Nil, false
	}

	return userID, true
}
