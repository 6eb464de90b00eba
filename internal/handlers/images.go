package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/loopgate/loopgate/internal/middleware"
	"github.com/loopgate/loopgate/internal/services"
	"github.com/loopgate/loopgate/internal/services/adapter"
	"github.com/loopgate/loopgate/pkg/response"
)

// ImagesHandler exposes the image generation endpoint.
type ImagesHandler struct {
	gateway *services.GatewayService
}

func NewImagesHandler(gateway *services.GatewayService) *ImagesHandler {
	return &ImagesHandler{gateway: gateway}
}

type ImageGenerationRequest struct {
	Model  string `json:"model" binding:"required"`
	Prompt string `json:"prompt" binding:"required"`
	Size   string `json:"size"`
	N      int    `json:"n"`
}

func (h *ImagesHandler) CreateImage(c *gin.Context) {
	var req ImageGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	result, err := h.gateway.GenerateImage(c.Request.Context(), middleware.GetScopeID(c), &adapter.ImageRequest{
		Model:  req.Model,
		Prompt: req.Prompt,
		Size:   req.Size,
		N:      req.N,
	})
	if err != nil {
		response.Error(c, services.ToResponseError(err))
		return
	}
	response.Success(c, result)
}
