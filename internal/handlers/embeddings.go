package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/loopgate/loopgate/internal/middleware"
	"github.com/loopgate/loopgate/internal/services"
	"github.com/loopgate/loopgate/internal/services/adapter"
	"github.com/loopgate/loopgate/pkg/response"
)

// EmbeddingsHandler exposes the embeddings endpoint.
type EmbeddingsHandler struct {
	gateway *services.GatewayService
}

func NewEmbeddingsHandler(gateway *services.GatewayService) *EmbeddingsHandler {
	return &EmbeddingsHandler{gateway: gateway}
}

type EmbeddingsRequest struct {
	Model string   `json:"model" binding:"required"`
	Input []string `json:"input" binding:"required"`
}

func (h *EmbeddingsHandler) CreateEmbeddings(c *gin.Context) {
	var req EmbeddingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	result, err := h.gateway.Embed(c.Request.Context(), middleware.GetScopeID(c), &adapter.EmbedRequest{
		Model: req.Model,
		Input: req.Input,
	})
	if err != nil {
		response.Error(c, services.ToResponseError(err))
		return
	}
	response.Success(c, result)
}
