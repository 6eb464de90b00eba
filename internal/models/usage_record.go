package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Report statuses for a usage record. Rows move "" -> counted -> reported,
// or counted -> "" when a meter call fails and the claim is released.
const (
	ReportStatusNone     = ""
	ReportStatusCounted  = "counted"
	ReportStatusReported = "reported"
)

// UsageRecord is one append-only ledger row. After insert only the reporting
// fields (ReportStatus, ClaimToken, ClaimedAt) ever change, and only the
// reconciler changes them.
type UsageRecord struct {
	ID               uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ScopeID          string          `gorm:"index:idx_usage_scope_status;size:100;not null" json:"scope_id"`
	Model            string          `gorm:"size:200" json:"model"`
	Kind             string          `gorm:"size:20" json:"kind"`
	PromptTokens     int             `json:"prompt_tokens"`
	CompletionTokens int             `json:"completion_tokens"`
	TotalTokens      int             `json:"total_tokens"`
	Credits          decimal.Decimal `gorm:"type:decimal(30,12)" json:"credits"`
	ReportStatus     string          `gorm:"index:idx_usage_scope_status;size:20;default:''" json:"report_status"`
	ClaimToken       string          `gorm:"index;size:36;default:''" json:"-"`
	ClaimedAt        *time.Time      `json:"-"`
	CreatedAt        time.Time       `gorm:"index" json:"created_at"`
}

func (UsageRecord) TableName() string { return "usage_records" }
