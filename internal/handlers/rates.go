package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/loopgate/loopgate/internal/services"
	"github.com/loopgate/loopgate/pkg/response"
	"gorm.io/gorm"
)

// RateHandler manages per-model credit rates.
type RateHandler struct {
	rates *services.RateService
}

func NewRateHandler(db *gorm.DB) *RateHandler {
	return &RateHandler{rates: services.NewRateService(db)}
}

func (h *RateHandler) ListByProvider(c *gin.Context) {
	providerID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid provider id")
		return
	}
	rates, err := h.rates.ListByProvider(uint(providerID))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, rates)
}

func (h *RateHandler) Upsert(c *gin.Context) {
	var req services.UpsertRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	rate, err := h.rates.Upsert(&req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, rate)
}

func (h *RateHandler) Delete(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	if err := h.rates.Delete(id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": id})
}
