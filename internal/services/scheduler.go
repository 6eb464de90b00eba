package services

import (
	"context"
	"fmt"
	"time"

	"github.com/loopgate/loopgate/internal/config"
	"github.com/loopgate/loopgate/pkg/logger"
	"github.com/robfig/cron/v3"
)

// MaintenanceScheduler runs the periodic jobs: the stuck-call reaper and the
// ledger sweep. Both jobs are idempotent, so an overlapping or doubled run
// is wasted work, never corruption.
type MaintenanceScheduler struct {
	cron *cron.Cron
}

func StartMaintenanceScheduler(tracker *CallTrackerService, reconciler *ReconcilerService, cfg *config.GatewayConfig) *MaintenanceScheduler {
	c := cron.New()

	reaperSpec := fmt.Sprintf("@every %s", durationOrDefault(cfg.ReaperInterval, 5*time.Minute))
	_, err := c.AddFunc(reaperSpec, func() {
		if _, err := tracker.ReapStuck(durationOrDefault(cfg.CallStuckAfter, 30*time.Minute)); err != nil {
			logger.Errorf("[Scheduler] Reaper run failed: %v", err)
		}
	})
	if err != nil {
		logger.Errorf("[Scheduler] Failed to register reaper job: %v", err)
	}

	sweepSpec := fmt.Sprintf("@every %s", durationOrDefault(cfg.SweepInterval, time.Minute))
	_, err = c.AddFunc(sweepSpec, func() {
		reconciler.Sweep(context.Background())
	})
	if err != nil {
		logger.Errorf("[Scheduler] Failed to register sweep job: %v", err)
	}

	c.Start()
	logger.Infof("[Scheduler] Maintenance scheduler started (reaper %s, sweep %s)", reaperSpec, sweepSpec)
	return &MaintenanceScheduler{cron: c}
}

func (s *MaintenanceScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Infof("[Scheduler] Maintenance scheduler stopped")
}

func durationOrDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
