package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/loopgate/loopgate/internal/config"
	"github.com/loopgate/loopgate/internal/models"
	"github.com/loopgate/loopgate/internal/services/adapter"
	"github.com/loopgate/loopgate/pkg/logger"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GatewayService orchestrates one call end to end: resolve the model, pick a
// credential, dispatch through the adapter with retry, then settle the
// ledger and the call log. It owns no wire format knowledge; adapters do.
type GatewayService struct {
	db          *gorm.DB
	registry    *adapter.Registry
	resolver    *ModelResolver
	credentials *CredentialService
	ledger      *LedgerService
	reconciler  *ReconcilerService
	tracker     *CallTrackerService
	health      *ModelHealthCache
	meter       MeterSink
	queue       TaskQueue
	cfg         *config.GatewayConfig
	billing     bool
}

func NewGatewayService(
	db *gorm.DB,
	registry *adapter.Registry,
	credentials *CredentialService,
	ledger *LedgerService,
	reconciler *ReconcilerService,
	tracker *CallTrackerService,
	meter MeterSink,
	queue TaskQueue,
	cfg *config.Config,
) *GatewayService {
	return &GatewayService{
		db:          db,
		registry:    registry,
		resolver:    NewModelResolver(db),
		credentials: credentials,
		ledger:      ledger,
		reconciler:  reconciler,
		tracker:     tracker,
		health:      NewModelHealthCache(5 * time.Minute),
		meter:       meter,
		queue:       queue,
		cfg:         &cfg.Gateway,
		billing:     cfg.Meter.Enabled,
	}
}

// BillingEnabled reports whether an external meter backs this gateway.
func (s *GatewayService) BillingEnabled() bool {
	return s.billing
}

// CreditBalance returns the remaining and total granted credits for a scope.
func (s *GatewayService) CreditBalance(ctx context.Context, scopeID string) (balance, total decimal.Decimal, err error) {
	return s.meter.CreditBalance(ctx, scopeID)
}

// dispatch is everything resolved before an upstream attempt.
type dispatch struct {
	provider  *models.Provider
	adapter   adapter.Adapter
	modelName string
}

// prepare resolves the model, checks health and balance. It runs once per
// call, not per retry attempt.
func (s *GatewayService) prepare(ctx context.Context, scopeID, model string) (*dispatch, error) {
	provider, modelName, err := s.resolver.Resolve(model)
	if err != nil {
		return nil, err
	}

	ad, ok := s.registry.Get(provider.Name)
	if !ok {
		return nil, NewConfigError(fmt.Sprintf("no adapter registered for provider %q", provider.Name))
	}

	if !s.health.IsHealthy(provider.Name, modelName) {
		return nil, NewUpstreamError(503,
			fmt.Sprintf("model %s/%s temporarily disabled after credential failure", provider.Name, modelName), nil)
	}

	if s.billing {
		balance, _, err := s.meter.CreditBalance(ctx, scopeID)
		if err != nil {
			logger.Warnf("[Gateway] Balance check failed for scope %s, allowing call: %v", scopeID, err)
		} else if balance.LessThanOrEqual(decimal.Zero) {
			return nil, NewCreditError(scopeID)
		}
	}

	return &dispatch{provider: provider, adapter: ad, modelName: modelName}, nil
}

func upstreamStatus(err error) int {
	var apiErr *adapter.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Transient provider failures worth another credential.
func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503:
		return true
	}
	return false
}

// Credential-shaped failures: retrying with the same pool is pointless and
// the model gets a health mark instead.
func isCredentialStatus(status int) bool {
	return status == 401 || status == 402 || status == 403
}

func (s *GatewayService) wrapUpstream(err error, d *dispatch) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError(fmt.Sprintf("call to %s/%s timed out", d.provider.Name, d.modelName))
	}
	if errors.Is(err, adapter.ErrNotSupported) {
		return NewValidationError(fmt.Sprintf("provider %q does not support this operation", d.provider.Name))
	}
	status := upstreamStatus(err)
	if status == 0 {
		status = 502
	}
	return NewUpstreamError(status, err.Error(), err)
}

// attempt runs fn against successive credentials until it succeeds, the
// retry budget runs out, or a non-retryable error appears. Each attempt has
// its own tracked call row; rows are created per dispatch, not per request.
func (s *GatewayService) attempt(ctx context.Context, scopeID string, d *dispatch, kind string,
	fn func(ctx context.Context, creds adapter.Credentials) error) (*CallTracker, error) {

	maxAttempts := s.cfg.MaxRetries + 1
	var lastErr error

	for i := 0; i < maxAttempts; i++ {
		cred, creds, err := s.credentials.SelectForProvider(d.provider)
		if err != nil {
			return nil, err
		}

		tracker := s.tracker.Start(scopeID, d.provider.ID, cred.ID, d.modelName, kind)

		attemptCtx := ctx
		var cancel context.CancelFunc
		if s.cfg.CallTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, s.cfg.CallTimeout)
		}
		err = fn(attemptCtx, creds)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			// Caller settles the tracker with final usage and credits.
			return tracker, nil
		}

		lastErr = s.wrapUpstream(err, d)
		tracker.Fail(lastErr.Error())

		status := upstreamStatus(err)
		if isCredentialStatus(status) {
			s.health.MarkUnhealthy(d.provider.Name, d.modelName)
			logger.Warnf("[Gateway] Credential failure (%d) for %s/%s, marking unhealthy",
				status, d.provider.Name, d.modelName)
			return nil, lastErr
		}
		if !isRetryableStatus(status) {
			return nil, lastErr
		}
		logger.Warnf("[Gateway] Attempt %d/%d failed for %s/%s with status %d, retrying",
			i+1, maxAttempts, d.provider.Name, d.modelName, status)
	}

	return nil, lastErr
}

// settle records the ledger row, finishes the call log and schedules the
// reconciler. Runs only after a terminal success.
func (s *GatewayService) settle(tracker *CallTracker, scopeID string, d *dispatch, kind string, promptTokens, completionTokens int) decimal.Decimal {
	record, err := s.ledger.Record(scopeID, d.modelName, kind, d.provider.ID, promptTokens, completionTokens)
	credits := decimal.Zero
	if err != nil {
		logger.Errorf("[Gateway] Failed to ledger usage for scope %s: %v", scopeID, err)
	} else {
		credits = record.Credits
	}
	tracker.Complete(promptTokens, completionTokens, credits)
	s.scheduleReconcile(scopeID)
	return credits
}

func (s *GatewayService) scheduleReconcile(scopeID string) {
	if s.queue != nil && s.queue.IsAsync() {
		if err := s.queue.Enqueue(&ReconcileTask{ScopeID: scopeID}); err != nil {
			logger.Warnf("[Gateway] Failed to enqueue reconcile for scope %s: %v", scopeID, err)
			s.reconciler.Schedule(scopeID)
		}
		return
	}
	s.reconciler.Schedule(scopeID)
}

// ChatResult is a settled non-streaming chat call.
type ChatResult struct {
	Provider string           `json:"provider"`
	Model    string           `json:"model"`
	Response *adapter.Response `json:"response"`
	Credits  decimal.Decimal  `json:"credits"`
}

// Chat runs a non-streaming chat call with retry and settlement.
func (s *GatewayService) Chat(ctx context.Context, scopeID string, req *adapter.Request) (*ChatResult, error) {
	if len(req.Messages) == 0 {
		return nil, NewValidationError("messages must not be empty")
	}

	d, err := s.prepare(ctx, scopeID, req.Model)
	if err != nil {
		return nil, err
	}

	upstreamReq := *req
	upstreamReq.Model = d.modelName

	var resp *adapter.Response
	tracker, err := s.attempt(ctx, scopeID, d, models.KindChat, func(ctx context.Context, creds adapter.Credentials) error {
		r, err := d.adapter.Invoke(ctx, creds, &upstreamReq)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	credits := s.settle(tracker, scopeID, d, models.KindChat, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return &ChatResult{
		Provider: d.provider.Name,
		Model:    d.modelName,
		Response: resp,
		Credits:  credits,
	}, nil
}

// ChatStream runs a streaming chat call. Retry applies only to opening the
// stream; once the first chunk can flow, the stream is committed to one
// credential. Settlement happens when the canonical stream ends: a clean end
// ledgers whatever usage the provider reported; an error frame or a consumer
// disconnect fails the call log, keeping any token counts that accrued before
// the cut, and writes no ledger row.
func (s *GatewayService) ChatStream(ctx context.Context, scopeID string, req *adapter.Request) (<-chan CanonicalChunk, error) {
	if len(req.Messages) == 0 {
		return nil, NewValidationError("messages must not be empty")
	}

	d, err := s.prepare(ctx, scopeID, req.Model)
	if err != nil {
		return nil, err
	}

	upstreamReq := *req
	upstreamReq.Model = d.modelName

	maxAttempts := s.cfg.MaxRetries + 1
	var lastErr error

	for i := 0; i < maxAttempts; i++ {
		cred, creds, err := s.credentials.SelectForProvider(d.provider)
		if err != nil {
			return nil, err
		}

		tracker := s.tracker.Start(scopeID, d.provider.ID, cred.ID, d.modelName, models.KindChat)

		native, err := d.adapter.InvokeStream(ctx, creds, &upstreamReq)
		if err != nil {
			lastErr = s.wrapUpstream(err, d)
			tracker.Fail(lastErr.Error())

			status := upstreamStatus(err)
			if isCredentialStatus(status) {
				s.health.MarkUnhealthy(d.provider.Name, d.modelName)
				return nil, lastErr
			}
			if !isRetryableStatus(status) {
				return nil, lastErr
			}
			logger.Warnf("[Gateway] Stream open attempt %d/%d failed for %s/%s, retrying",
				i+1, maxAttempts, d.provider.Name, d.modelName)
			continue
		}

		return s.superviseStream(ctx, scopeID, d, tracker, native), nil
	}

	return nil, lastErr
}

// failAccrued fails the call but keeps any token counts that arrived before
// the failure, so cut-off streams still show their consumption in the log.
func failAccrued(t *CallTracker, reason string, usage *adapter.Usage) {
	if usage != nil {
		t.FailWithUsage(reason, usage.PromptTokens, usage.CompletionTokens)
		return
	}
	t.Fail(reason)
}

// superviseStream forwards canonical chunks to the consumer while watching
// for the terminal outcome.
func (s *GatewayService) superviseStream(ctx context.Context, scopeID string, d *dispatch, tracker *CallTracker, native <-chan adapter.NativeChunk) <-chan CanonicalChunk {
	canonical := NormalizeStream(ctx, native)
	out := make(chan CanonicalChunk)

	go func() {
		defer close(out)
		defer tracker.EnsureFinished()

		var usage *adapter.Usage
		failed := false

		for chunk := range canonical {
			if chunk.Usage != nil {
				u := *chunk.Usage
				usage = &u
			}
			if chunk.Error != nil {
				failed = true
				failAccrued(tracker, chunk.Error.Message, usage)
			}
			if !sendChunk(ctx, out, chunk) {
				// Consumer went away; keep whatever usage already arrived.
				failAccrued(tracker, models.FailReasonUnfinished, usage)
				return
			}
		}

		if failed {
			return
		}
		if ctx.Err() != nil {
			failAccrued(tracker, models.FailReasonUnfinished, usage)
			return
		}

		promptTokens, completionTokens := 0, 0
		if usage != nil {
			promptTokens = usage.PromptTokens
			completionTokens = usage.CompletionTokens
		}
		s.settle(tracker, scopeID, d, models.KindChat, promptTokens, completionTokens)
	}()

	return out
}

// EmbedResult is a settled embedding call.
type EmbedResult struct {
	Provider string             `json:"provider"`
	Model    string             `json:"model"`
	Vectors  [][]float32        `json:"vectors"`
	Usage    adapter.Usage      `json:"usage"`
	Credits  decimal.Decimal    `json:"credits"`
}

func (s *GatewayService) Embed(ctx context.Context, scopeID string, req *adapter.EmbedRequest) (*EmbedResult, error) {
	if len(req.Input) == 0 {
		return nil, NewValidationError("input must not be empty")
	}

	d, err := s.prepare(ctx, scopeID, req.Model)
	if err != nil {
		return nil, err
	}

	upstreamReq := *req
	upstreamReq.Model = d.modelName

	var resp *adapter.EmbedResponse
	tracker, err := s.attempt(ctx, scopeID, d, models.KindEmbedding, func(ctx context.Context, creds adapter.Credentials) error {
		r, err := d.adapter.Embed(ctx, creds, &upstreamReq)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	credits := s.settle(tracker, scopeID, d, models.KindEmbedding, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return &EmbedResult{
		Provider: d.provider.Name,
		Model:    d.modelName,
		Vectors:  resp.Vectors,
		Usage:    resp.Usage,
		Credits:  credits,
	}, nil
}

// ImageResult is a settled image generation call. Images are billed per
// generated image through the output rate.
type ImageResult struct {
	Provider string          `json:"provider"`
	Model    string          `json:"model"`
	URLs     []string        `json:"urls,omitempty"`
	B64      []string        `json:"b64,omitempty"`
	Credits  decimal.Decimal `json:"credits"`
}

func (s *GatewayService) GenerateImage(ctx context.Context, scopeID string, req *adapter.ImageRequest) (*ImageResult, error) {
	if req.Prompt == "" {
		return nil, NewValidationError("prompt must not be empty")
	}
	if req.N <= 0 {
		req.N = 1
	}

	d, err := s.prepare(ctx, scopeID, req.Model)
	if err != nil {
		return nil, err
	}

	upstreamReq := *req
	upstreamReq.Model = d.modelName

	var resp *adapter.ImageResponse
	tracker, err := s.attempt(ctx, scopeID, d, models.KindImage, func(ctx context.Context, creds adapter.Credentials) error {
		r, err := d.adapter.GenerateImage(ctx, creds, &upstreamReq)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	generated := len(resp.URLs) + len(resp.B64)
	credits := s.settle(tracker, scopeID, d, models.KindImage, 0, generated)
	return &ImageResult{
		Provider: d.provider.Name,
		Model:    d.modelName,
		URLs:     resp.URLs,
		B64:      resp.B64,
		Credits:  credits,
	}, nil
}
