package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/loopgate/loopgate/internal/services"
	"github.com/loopgate/loopgate/pkg/response"
	"gorm.io/gorm"
)

// ProviderHandler manages upstream provider records.
type ProviderHandler struct {
	providers *services.ProviderService
}

func NewProviderHandler(db *gorm.DB) *ProviderHandler {
	return &ProviderHandler{providers: services.NewProviderService(db)}
}

func parseIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid id")
		return 0, false
	}
	return uint(id), true
}

func (h *ProviderHandler) List(c *gin.Context) {
	providers, err := h.providers.List()
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, providers)
}

func (h *ProviderHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	provider, err := h.providers.Get(id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, provider)
}

func (h *ProviderHandler) Create(c *gin.Context) {
	var req services.CreateProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	provider, err := h.providers.Create(&req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, provider)
}

func (h *ProviderHandler) Update(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var req services.UpdateProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	provider, err := h.providers.Update(id, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, provider)
}

func (h *ProviderHandler) Delete(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	if err := h.providers.Delete(id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": id})
}
