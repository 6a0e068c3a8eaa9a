// internal/handlers/errors.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/coursehub/backend/internal/services"
	"github.com/coursehub/backend/internal/utils"
)

// handleServiceError maps the service layer's coded errors onto HTTP
// statuses. Anything uncoded is an infrastructure failure and comes back
// as a 500 without leaking the wrapped detail.
func handleServiceError(c *gin.Context, err error) {
	if errors.Is(err, services.ErrAdminRequired) {
		utils.ForbiddenResponse(c, err.Error())
		return
	}

	ae, ok := services.AsAffiliateError(err)
	if !ok {
		utils.InternalErrorResponse(c, "")
		return
	}

	status := http.StatusBadRequest
	switch ae.Code {
	case services.CodeAlreadyRegistered, services.CodeAlreadyConnected:
		status = http.StatusConflict
	case services.CodeNotAffiliate:
		status = http.StatusNotFound
	case services.CodeAffiliateRevoked:
		status = http.StatusGone
	case services.CodeGenerationFailed:
		status = http.StatusInternalServerError
	case services.CodePayoutProviderError:
		status = http.StatusBadGateway
	}

	utils.ErrorResponse(c, status, string(ae.Code), ae.Message, nil)
}
