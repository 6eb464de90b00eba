package services

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/loopgate/loopgate/internal/models"
	"github.com/loopgate/loopgate/pkg/logger"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CallTrackerService audits call attempts. Every dispatched upstream call
// gets a row in processing state and is guaranteed to reach a terminal state:
// the handle's EnsureFinished covers the normal path, the reaper covers
// processes that died mid-call.
type CallTrackerService struct {
	db *gorm.DB
}

func NewCallTrackerService(db *gorm.DB) *CallTrackerService {
	return &CallTrackerService{db: db}
}

// CallTracker is the per-call handle. Complete and Fail are idempotent and
// mutually exclusive: whichever is called first wins, later calls are no-ops.
type CallTracker struct {
	db       *gorm.DB
	id       string
	started  time.Time
	finished atomic.Bool
}

// Start records a new processing call and returns its handle.
func (s *CallTrackerService) Start(scopeID string, providerID, credentialID uint, model, kind string) *CallTracker {
	now := time.Now()
	call := &models.ModelCall{
		ID:           uuid.NewString(),
		ScopeID:      scopeID,
		ProviderID:   providerID,
		CredentialID: credentialID,
		Model:        model,
		Kind:         kind,
		Status:       models.CallStatusProcessing,
		StartedAt:    now,
	}
	if err := s.db.Create(call).Error; err != nil {
		logger.Errorf("[Tracker] Failed to create call record: %v", err)
	}
	return &CallTracker{db: s.db, id: call.ID, started: now}
}

// Complete marks the call successful with its final token counts and credits.
func (t *CallTracker) Complete(promptTokens, completionTokens int, credits decimal.Decimal) {
	if !t.finished.CompareAndSwap(false, true) {
		return
	}
	t.finish(map[string]interface{}{
		"status":            models.CallStatusSuccess,
		"prompt_tokens":     promptTokens,
		"completion_tokens": completionTokens,
		"total_tokens":      promptTokens + completionTokens,
		"credits":           credits,
	})
}

// Fail marks the call failed with a reason.
func (t *CallTracker) Fail(reason string) {
	t.failTerminal(reason, 0, 0)
}

// FailWithUsage marks the call failed while keeping the token counts that
// accrued before the failure, e.g. a stream cut off after its usage frame.
func (t *CallTracker) FailWithUsage(reason string, promptTokens, completionTokens int) {
	t.failTerminal(reason, promptTokens, completionTokens)
}

func (t *CallTracker) failTerminal(reason string, promptTokens, completionTokens int) {
	if !t.finished.CompareAndSwap(false, true) {
		return
	}
	if len(reason) > 500 {
		reason = reason[:500]
	}
	updates := map[string]interface{}{
		"status":       models.CallStatusFailed,
		"error_reason": reason,
	}
	if promptTokens > 0 || completionTokens > 0 {
		updates["prompt_tokens"] = promptTokens
		updates["completion_tokens"] = completionTokens
		updates["total_tokens"] = promptTokens + completionTokens
	}
	t.finish(updates)
}

// EnsureFinished force-fails the call if neither Complete nor Fail ran.
// Deferred at dispatch so panics and early returns cannot leak a processing
// row from a live handle.
func (t *CallTracker) EnsureFinished() {
	if t.finished.Load() {
		return
	}
	t.Fail(models.FailReasonUnfinished)
}

func (t *CallTracker) finish(updates map[string]interface{}) {
	updates["duration_ms"] = time.Since(t.started).Milliseconds()
	// Conditional on processing so a concurrent reaper and the handle cannot
	// both write a terminal state.
	err := t.db.Model(&models.ModelCall{}).
		Where("id = ? AND status = ?", t.id, models.CallStatusProcessing).
		Updates(updates).Error
	if err != nil {
		logger.Errorf("[Tracker] Failed to finish call %s: %v", t.id, err)
	}
}

// ReapStuck force-fails processing calls older than the cutoff. Rows are
// claimed by a conditional update, so overlapping reaper runs fail each call
// at most once. Returns the number of calls reaped.
func (s *CallTrackerService) ReapStuck(stuckAfter time.Duration) (int64, error) {
	cutoff := time.Now().Add(-stuckAfter)
	res := s.db.Model(&models.ModelCall{}).
		Where("status = ? AND started_at < ?", models.CallStatusProcessing, cutoff).
		Updates(map[string]interface{}{
			"status":       models.CallStatusFailed,
			"error_reason": models.FailReasonTimeout,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		logger.Warnf("[Tracker] Reaped %d stuck calls older than %s", res.RowsAffected, stuckAfter)
	}
	return res.RowsAffected, nil
}

// ListCalls pages through a scope's call log, newest first. An empty status
// matches all statuses.
func (s *CallTrackerService) ListCalls(scopeID, status string, page, pageSize int) ([]models.ModelCall, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	query := s.db.Model(&models.ModelCall{}).Where("scope_id = ?", scopeID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var calls []models.ModelCall
	err := query.Order("started_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&calls).Error
	if err != nil {
		return nil, 0, err
	}
	return calls, total, nil
}
