package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/loopgate/loopgate/internal/models"
	"github.com/loopgate/loopgate/internal/services"
)

// HealthHandler provides enhanced health check endpoints.
type HealthHandler struct{}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// CheckHealth returns the health status of all subsystems.
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"

	// Database check
	dbStatus := "ok"
	sqlDB, err := models.GetDB().DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	} else if err := sqlDB.Ping(); err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	}

	// Queue mode
	taskQueue := services.GetTaskQueue()
	queueMode := "sync"
	if taskQueue != nil && taskQueue.IsAsync() {
		queueMode = "async (Redis)"
	}

	// Processing calls and unreported ledger rows
	var processingCalls int64
	models.GetDB().Model(&models.ModelCall{}).
		Where("status = ?", models.CallStatusProcessing).
		Count(&processingCalls)

	var unreported int64
	models.GetDB().Model(&models.UsageRecord{}).
		Where("report_status <> ?", models.ReportStatusReported).
		Count(&unreported)

	c.JSON(200, gin.H{
		"status":  overall,
		"service": "loopgate",
		"components": gin.H{
			"database":         dbStatus,
			"queue_mode":       queueMode,
			"processing_calls": processingCalls,
			"unreported_usage": unreported,
		},
	})
}
