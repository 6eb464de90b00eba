package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/loopgate/loopgate/internal/config"
	"github.com/shopspring/decimal"
)

// MeterSink is the external billing meter. ReportUsage records a usage
// quantity against a scope and returns the meter's event id; CreditBalance
// returns the remaining and total granted credits.
type MeterSink interface {
	ReportUsage(ctx context.Context, scopeID string, quantity decimal.Decimal, metadata map[string]string) (string, error)
	CreditBalance(ctx context.Context, scopeID string) (balance, total decimal.Decimal, err error)
}

// HTTPMeter reports usage to a remote metering service over JSON/HTTP.
type HTTPMeter struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPMeter(cfg *config.MeterConfig) *HTTPMeter {
	return &HTTPMeter{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type reportUsagePayload struct {
	ScopeID  string            `json:"scope_id"`
	Quantity string            `json:"quantity"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type reportUsageResult struct {
	EventID string `json:"event_id"`
}

func (m *HTTPMeter) ReportUsage(ctx context.Context, scopeID string, quantity decimal.Decimal, metadata map[string]string) (string, error) {
	payload, err := json.Marshal(reportUsagePayload{
		ScopeID:  scopeID,
		Quantity: quantity.String(),
		Metadata: metadata,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/v1/usage_events", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("meter request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("meter returned status %d", resp.StatusCode)
	}

	var result reportUsageResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode meter response: %w", err)
	}
	return result.EventID, nil
}

type creditBalanceResult struct {
	Balance decimal.Decimal `json:"balance"`
	Total   decimal.Decimal `json:"total"`
}

func (m *HTTPMeter) CreditBalance(ctx context.Context, scopeID string) (decimal.Decimal, decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/v1/balances/"+scopeID, nil)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("meter request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decimal.Zero, decimal.Zero, fmt.Errorf("meter returned status %d", resp.StatusCode)
	}

	var result creditBalanceResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("decode meter response: %w", err)
	}
	return result.Balance, result.Total, nil
}

// NopMeter is used when billing is disabled: usage is ledgered locally but
// nothing is reported and balances never block a call.
type NopMeter struct{}

func (NopMeter) ReportUsage(ctx context.Context, scopeID string, quantity decimal.Decimal, metadata map[string]string) (string, error) {
	return "", nil
}

func (NopMeter) CreditBalance(ctx context.Context, scopeID string) (decimal.Decimal, decimal.Decimal, error) {
	return decimal.Zero, decimal.Zero, nil
}
