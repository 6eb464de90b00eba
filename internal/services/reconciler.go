package services

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loopgate/loopgate/internal/models"
	"github.com/loopgate/loopgate/pkg/logger"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// staleClaimAge is how long a counted row may sit unclaimed-looking before
// the sweep assumes its reconciler died mid-report and releases it.
const staleClaimAge = 15 * time.Minute

// ReconcilerService pushes ledgered usage to the external meter exactly once
// per row. Each pass claims the scope's unreported rows by stamping them with
// a fresh claim token: the conditional update is the arbitration point, so
// racing reconcilers partition the rows and no row lands in two claims. All
// later steps address rows by that token, never by id range, so a released
// claim stays reportable no matter what other claims did in the meantime.
type ReconcilerService struct {
	db    *gorm.DB
	meter MeterSink

	mu       sync.Mutex
	debounce time.Duration
	pending  map[string]*time.Timer
}

func NewReconcilerService(db *gorm.DB, meter MeterSink, debounce time.Duration) *ReconcilerService {
	if debounce <= 0 {
		debounce = 10 * time.Second
	}
	return &ReconcilerService{
		db:       db,
		meter:    meter,
		debounce: debounce,
		pending:  make(map[string]*time.Timer),
	}
}

// Schedule arranges a reconcile for the scope after the debounce window.
// Repeated calls within the window coalesce into one run.
func (s *ReconcilerService) Schedule(scopeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[scopeID]; ok {
		return
	}
	s.pending[scopeID] = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		delete(s.pending, scopeID)
		s.mu.Unlock()

		if err := s.Reconcile(context.Background(), scopeID); err != nil {
			logger.Errorf("[Reconciler] Reconcile failed for scope %s: %v", scopeID, err)
		}
	})
}

type claimedBatch struct {
	token   string
	rows    int64
	credits decimal.Decimal
	minID   uint64
	maxID   uint64
}

// Reconcile reports all unreported ledger rows for one scope. Safe to call
// concurrently and safe to retry: a row is reported at most once, and a
// failed meter call releases the claim so a later run picks the rows up.
func (s *ReconcilerService) Reconcile(ctx context.Context, scopeID string) error {
	for {
		claim, err := s.claimPending(scopeID)
		if err != nil {
			return err
		}
		if claim == nil {
			return nil
		}

		eventID, meterErr := s.meter.ReportUsage(ctx, scopeID, claim.credits, map[string]string{
			"row_count":   strconv.FormatInt(claim.rows, 10),
			"range_start": strconv.FormatUint(claim.minID, 10),
			"range_end":   strconv.FormatUint(claim.maxID, 10),
		})
		if meterErr != nil {
			// Release the claim so the rows return to the unreported pool.
			// Addressing by token touches exactly the rows this claim owns.
			if releaseErr := s.releaseClaim(claim.token); releaseErr != nil {
				logger.Errorf("[Reconciler] Failed to release claim %s for scope %s: %v",
					claim.token, scopeID, releaseErr)
			}
			return NewUpstreamError(502, "meter report failed", meterErr)
		}

		err = s.db.Model(&models.UsageRecord{}).
			Where("claim_token = ? AND report_status = ?", claim.token, models.ReportStatusCounted).
			Update("report_status", models.ReportStatusReported).Error
		if err != nil {
			return err
		}

		logger.Infof("[Reconciler] Reported %d rows (%s credits) for scope %s, meter event %s",
			claim.rows, claim.credits.String(), scopeID, eventID)
	}
}

// claimPending stamps every unreported row of the scope with a new claim
// token and marks it counted. The single conditional update is atomic, so two
// racing claimers split the rows between them and neither sees the other's.
// Returns nil when there was nothing to claim.
func (s *ReconcilerService) claimPending(scopeID string) (*claimedBatch, error) {
	token := uuid.NewString()
	now := time.Now()

	res := s.db.Model(&models.UsageRecord{}).
		Where("scope_id = ? AND report_status = ?", scopeID, models.ReportStatusNone).
		Updates(map[string]interface{}{
			"report_status": models.ReportStatusCounted,
			"claim_token":   token,
			"claimed_at":    now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	var agg struct {
		Credits decimal.Decimal
		MinID   uint64
		MaxID   uint64
	}
	err := s.db.Model(&models.UsageRecord{}).
		Select("COALESCE(SUM(credits), 0) as credits, COALESCE(MIN(id), 0) as min_id, COALESCE(MAX(id), 0) as max_id").
		Where("claim_token = ? AND report_status = ?", token, models.ReportStatusCounted).
		Scan(&agg).Error
	if err != nil {
		if releaseErr := s.releaseClaim(token); releaseErr != nil {
			logger.Errorf("[Reconciler] Failed to release claim %s after sum error: %v", token, releaseErr)
		}
		return nil, err
	}

	return &claimedBatch{
		token:   token,
		rows:    res.RowsAffected,
		credits: agg.Credits,
		minID:   agg.MinID,
		maxID:   agg.MaxID,
	}, nil
}

// releaseClaim returns a claim's rows to the unreported pool.
func (s *ReconcilerService) releaseClaim(token string) error {
	return s.db.Model(&models.UsageRecord{}).
		Where("claim_token = ? AND report_status = ?", token, models.ReportStatusCounted).
		Updates(map[string]interface{}{
			"report_status": models.ReportStatusNone,
			"claim_token":   "",
			"claimed_at":    nil,
		}).Error
}

// Sweep reconciles every scope that still has unreported rows. Run on a
// schedule, it catches rows whose debounced reconcile was lost to a crash
// or a meter outage. Counted rows whose claim went stale are released first;
// their reconciler died between claiming and finishing.
func (s *ReconcilerService) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-staleClaimAge)
	res := s.db.Model(&models.UsageRecord{}).
		Where("report_status = ? AND claimed_at < ?", models.ReportStatusCounted, cutoff).
		Updates(map[string]interface{}{
			"report_status": models.ReportStatusNone,
			"claim_token":   "",
			"claimed_at":    nil,
		})
	if res.Error != nil {
		logger.Errorf("[Reconciler] Stale claim release failed: %v", res.Error)
	} else if res.RowsAffected > 0 {
		logger.Warnf("[Reconciler] Released %d rows from claims older than %s", res.RowsAffected, staleClaimAge)
	}

	var scopes []string
	err := s.db.Model(&models.UsageRecord{}).
		Distinct("scope_id").
		Where("report_status = ?", models.ReportStatusNone).
		Pluck("scope_id", &scopes).Error
	if err != nil {
		logger.Errorf("[Reconciler] Sweep scope scan failed: %v", err)
		return
	}

	for _, scopeID := range scopes {
		if err := s.Reconcile(ctx, scopeID); err != nil {
			logger.Warnf("[Reconciler] Sweep reconcile failed for scope %s: %v", scopeID, err)
		}
	}
}
