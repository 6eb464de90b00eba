package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/loopgate/loopgate/internal/middleware"
	"github.com/loopgate/loopgate/internal/services"
	"github.com/loopgate/loopgate/pkg/response"
)

// CreditsHandler lets a calling app check its remaining credit balance.
type CreditsHandler struct {
	gateway *services.GatewayService
}

func NewCreditsHandler(gateway *services.GatewayService) *CreditsHandler {
	return &CreditsHandler{gateway: gateway}
}

func (h *CreditsHandler) GetBalance(c *gin.Context) {
	scopeID := middleware.GetScopeID(c)

	balance, total, err := h.gateway.CreditBalance(c.Request.Context(), scopeID)
	if err != nil {
		response.Error(c, response.NewBadGateway("balance check failed: "+err.Error()))
		return
	}

	response.Success(c, gin.H{
		"scope_id":        scopeID,
		"balance":         balance,
		"total":           total,
		"billing_enabled": h.gateway.BillingEnabled(),
	})
}
