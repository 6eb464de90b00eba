package handlers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loopgate/loopgate/internal/services"
	"github.com/loopgate/loopgate/pkg/response"
	"gorm.io/gorm"
)

// UsageHandler exposes ledger summaries and the call log.
type UsageHandler struct {
	ledger  *services.LedgerService
	tracker *services.CallTrackerService
}

func NewUsageHandler(db *gorm.DB) *UsageHandler {
	return &UsageHandler{
		ledger:  services.NewLedgerService(db),
		tracker: services.NewCallTrackerService(db),
	}
}

// sinceQuery parses an optional "days" query into a window start.
func sinceQuery(c *gin.Context) time.Time {
	if daysStr := c.Query("days"); daysStr != "" {
		if days, err := strconv.Atoi(daysStr); err == nil && days > 0 {
			return time.Now().AddDate(0, 0, -days)
		}
	}
	return time.Time{}
}

func pageQuery(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	return page, pageSize
}

func (h *UsageHandler) GetSummary(c *gin.Context) {
	scopeID := c.Param("scope_id")
	summary, err := h.ledger.Summarize(scopeID, sinceQuery(c))
	if err != nil {
		response.ServerError(c, "failed to summarize usage: "+err.Error())
		return
	}
	response.Success(c, summary)
}

func (h *UsageHandler) GetModelBreakdown(c *gin.Context) {
	scopeID := c.Param("scope_id")
	breakdown, err := h.ledger.SummarizeByModel(scopeID, sinceQuery(c))
	if err != nil {
		response.ServerError(c, "failed to summarize usage: "+err.Error())
		return
	}
	response.Success(c, breakdown)
}

func (h *UsageHandler) ListRecords(c *gin.Context) {
	scopeID := c.Param("scope_id")
	page, pageSize := pageQuery(c)
	records, total, err := h.ledger.ListRecords(scopeID, page, pageSize)
	if err != nil {
		response.ServerError(c, "failed to list usage records: "+err.Error())
		return
	}
	response.Success(c, gin.H{"records": records, "total": total, "page": page, "page_size": pageSize})
}

func (h *UsageHandler) ListCalls(c *gin.Context) {
	scopeID := c.Param("scope_id")
	page, pageSize := pageQuery(c)
	calls, total, err := h.tracker.ListCalls(scopeID, c.Query("status"), page, pageSize)
	if err != nil {
		response.ServerError(c, "failed to list calls: "+err.Error())
		return
	}
	response.Success(c, gin.H{"calls": calls, "total": total, "page": page, "page_size": pageSize})
}
