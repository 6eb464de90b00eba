package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Call attempt statuses. A call is created as processing and transitions
// exactly once to success or failed.
const (
	CallStatusProcessing = "processing"
	CallStatusSuccess    = "success"
	CallStatusFailed     = "failed"
)

// Well-known failure reasons recorded by the lifecycle tracker.
const (
	FailReasonUnfinished = "ended without completion"
	FailReasonTimeout    = "timeout"
)

// ModelCall audits one call attempt from dispatch to terminal state.
type ModelCall struct {
	ID               string          `gorm:"primaryKey;size:36" json:"id"`
	ScopeID          string          `gorm:"index;size:100" json:"scope_id"`
	ProviderID       uint            `gorm:"index" json:"provider_id"`
	CredentialID     uint            `json:"credential_id"`
	Model            string          `gorm:"size:200" json:"model"`
	Kind             string          `gorm:"size:20" json:"kind"`
	Status           string          `gorm:"index;size:20;default:processing" json:"status"`
	PromptTokens     int             `json:"prompt_tokens"`
	CompletionTokens int             `json:"completion_tokens"`
	TotalTokens      int             `json:"total_tokens"`
	Credits          decimal.Decimal `gorm:"type:decimal(30,12)" json:"credits"`
	ErrorReason      string          `gorm:"size:500" json:"error_reason,omitempty"`
	StartedAt        time.Time       `gorm:"index" json:"started_at"`
	DurationMs       int64           `json:"duration_ms"`
}

func (ModelCall) TableName() string { return "model_calls" }
