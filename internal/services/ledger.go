package services

import (
	"strings"
	"time"

	"github.com/loopgate/loopgate/internal/models"
	"github.com/loopgate/loopgate/pkg/logger"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerService owns the append-only usage ledger. Rows are written exactly
// once per successful upstream call, after the terminal success is known;
// the reconciler is the only writer of report_status afterwards.
type LedgerService struct {
	db *gorm.DB
}

func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{db: db}
}

// RateFor finds the credit rate for a provider/model pair. Missing rates are
// not an error: the call still goes through and is ledgered at zero credits.
func (s *LedgerService) RateFor(providerID uint, model, kind string) *models.ModelRate {
	var rate models.ModelRate
	err := s.db.Where("provider_id = ? AND LOWER(model) = ? AND kind = ?",
		providerID, strings.ToLower(model), kind).First(&rate).Error
	if err != nil {
		return nil
	}
	return &rate
}

// ComputeCredits converts token counts into credits using decimal arithmetic
// so fractional per-token rates never lose precision.
func ComputeCredits(rate *models.ModelRate, promptTokens, completionTokens int) decimal.Decimal {
	if rate == nil {
		return decimal.Zero
	}
	in := rate.InputRate.Mul(decimal.NewFromInt(int64(promptTokens)))
	out := rate.OutputRate.Mul(decimal.NewFromInt(int64(completionTokens)))
	return in.Add(out)
}

// Record appends one ledger row for a finished successful call.
func (s *LedgerService) Record(scopeID, model, kind string, providerID uint, promptTokens, completionTokens int) (*models.UsageRecord, error) {
	rate := s.RateFor(providerID, model, kind)
	record := &models.UsageRecord{
		ScopeID:          scopeID,
		Model:            model,
		Kind:             kind,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		Credits:          ComputeCredits(rate, promptTokens, completionTokens),
		ReportStatus:     models.ReportStatusNone,
		CreatedAt:        time.Now(),
	}
	if err := s.db.Create(record).Error; err != nil {
		return nil, err
	}
	if rate == nil {
		logger.Warnf("[Ledger] No rate configured for provider %d model %s (%s), recorded at zero credits",
			providerID, model, kind)
	}
	return record, nil
}

// UsageSummary aggregates ledger rows for display.
type UsageSummary struct {
	ScopeID          string          `json:"scope_id"`
	Calls            int64           `json:"calls"`
	PromptTokens     int64           `json:"prompt_tokens"`
	CompletionTokens int64           `json:"completion_tokens"`
	TotalTokens      int64           `json:"total_tokens"`
	Credits          decimal.Decimal `json:"credits"`
	Unreported       int64           `json:"unreported"`
}

// Summarize aggregates a scope's ledger over a time window. A zero since
// means all time.
func (s *LedgerService) Summarize(scopeID string, since time.Time) (*UsageSummary, error) {
	query := s.db.Model(&models.UsageRecord{}).Where("scope_id = ?", scopeID)
	if !since.IsZero() {
		query = query.Where("created_at >= ?", since)
	}

	var row struct {
		Calls            int64
		PromptTokens     int64
		CompletionTokens int64
		TotalTokens      int64
		Credits          decimal.Decimal
	}
	err := query.Select(
		"COUNT(*) as calls, " +
			"COALESCE(SUM(prompt_tokens), 0) as prompt_tokens, " +
			"COALESCE(SUM(completion_tokens), 0) as completion_tokens, " +
			"COALESCE(SUM(total_tokens), 0) as total_tokens, " +
			"COALESCE(SUM(credits), 0) as credits").
		Scan(&row).Error
	if err != nil {
		return nil, err
	}

	var unreported int64
	err = s.db.Model(&models.UsageRecord{}).
		Where("scope_id = ? AND report_status <> ?", scopeID, models.ReportStatusReported).
		Count(&unreported).Error
	if err != nil {
		return nil, err
	}

	return &UsageSummary{
		ScopeID:          scopeID,
		Calls:            row.Calls,
		PromptTokens:     row.PromptTokens,
		CompletionTokens: row.CompletionTokens,
		TotalTokens:      row.TotalTokens,
		Credits:          row.Credits,
		Unreported:       unreported,
	}, nil
}

// ModelUsage is per-model aggregation within a scope.
type ModelUsage struct {
	Model       string          `json:"model"`
	Calls       int64           `json:"calls"`
	TotalTokens int64           `json:"total_tokens"`
	Credits     decimal.Decimal `json:"credits"`
}

func (s *LedgerService) SummarizeByModel(scopeID string, since time.Time) ([]ModelUsage, error) {
	query := s.db.Model(&models.UsageRecord{}).Where("scope_id = ?", scopeID)
	if !since.IsZero() {
		query = query.Where("created_at >= ?", since)
	}

	var rows []ModelUsage
	err := query.Select(
		"model, COUNT(*) as calls, " +
			"COALESCE(SUM(total_tokens), 0) as total_tokens, " +
			"COALESCE(SUM(credits), 0) as credits").
		Group("model").Order("credits DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListRecords pages through a scope's raw ledger rows, newest first.
func (s *LedgerService) ListRecords(scopeID string, page, pageSize int) ([]models.UsageRecord, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	var total int64
	query := s.db.Model(&models.UsageRecord{}).Where("scope_id = ?", scopeID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []models.UsageRecord
	err := query.Order("id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&records).Error
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}
