package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/loopgate/loopgate/internal/services"
	"github.com/loopgate/loopgate/pkg/response"
)

// ReconcileHandler drives a ledger reconcile pass for one scope on demand,
// outside the debounce window and the periodic sweep.
type ReconcileHandler struct {
	reconciler *services.ReconcilerService
}

func NewReconcileHandler(reconciler *services.ReconcilerService) *ReconcileHandler {
	return &ReconcileHandler{reconciler: reconciler}
}

func (h *ReconcileHandler) Run(c *gin.Context) {
	scopeID := c.Param("scope_id")
	if scopeID == "" {
		response.BadRequest(c, "scope_id is required")
		return
	}

	if err := h.reconciler.Reconcile(c.Request.Context(), scopeID); err != nil {
		response.Error(c, services.ToResponseError(err))
		return
	}
	response.Success(c, gin.H{"scope_id": scopeID})
}
