package main

import (
	"context"

	"github.com/loopgate/loopgate/internal/config"
	"github.com/loopgate/loopgate/internal/models"
	"github.com/loopgate/loopgate/internal/services"
	"github.com/loopgate/loopgate/internal/services/adapter"
	"github.com/loopgate/loopgate/internal/utils"
	"github.com/loopgate/loopgate/pkg/logger"
)

// appServices holds all initialized services needed by the application.
type appServices struct {
	cfg         *config.Config
	gateway     *services.GatewayService
	credentials *services.CredentialService
	apps        *services.AppService
	reconciler  *services.ReconcilerService
	scheduler   *services.MaintenanceScheduler
	taskQueue   services.TaskQueue
	worker      *services.Worker
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	// Initialize database
	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Auto migrate database
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	// Seed default data
	if err := models.SeedDefaultData(); err != nil {
		logger.Warn().Err(err).Msg("Failed to seed default data")
	}

	db := models.GetDB()

	// Credential encryption
	box, err := utils.NewSecretBox(cfg.Secrets.EncryptionKey)
	if err != nil {
		logger.Fatalf("Failed to initialize secret box: %v", err)
	}

	// Provider adapters
	registry := adapter.NewRegistry()
	registry.Register(adapter.NewOpenAIAdapter("openai", "https://api.openai.com/v1"))
	registry.Register(adapter.NewOpenAIAdapter("openrouter", "https://openrouter.ai/api/v1"))
	registry.Register(adapter.NewAnthropicAdapter())
	registry.Register(adapter.NewGoogleAdapter())
	registry.Register(adapter.NewOllamaAdapter())
	logger.Infof("Registered adapters: %v", registry.Names())

	// Billing meter
	var meter services.MeterSink
	if cfg.Meter.Enabled {
		meter = services.NewHTTPMeter(&cfg.Meter)
		logger.Infof("Billing meter enabled at %s", cfg.Meter.BaseURL)
	} else {
		meter = services.NopMeter{}
		logger.Infof("Billing meter disabled, usage ledgered locally only")
	}

	credentials := services.NewCredentialService(db, box)
	ledger := services.NewLedgerService(db)
	reconciler := services.NewReconcilerService(db, meter, cfg.Gateway.ReconcileDebounce)
	tracker := services.NewCallTrackerService(db)
	apps := services.NewAppService(db)

	// Task queue (uses Redis if enabled, otherwise sync mode)
	taskQueue := services.InitTaskQueue(cfg)
	processReconcile := func(ctx context.Context, task *services.ReconcileTask) error {
		return reconciler.Reconcile(ctx, task.ScopeID)
	}
	if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(processReconcile)
	}

	// Start async worker if Redis is enabled
	var worker *services.Worker
	if cfg.Redis.Enabled {
		worker = services.InitWorker(&cfg.Redis)
		if worker != nil {
			worker.SetProcessor(processReconcile)
			if err := worker.Start(); err != nil {
				logger.Errorf("Failed to start async worker: %v", err)
			}
		}
	}

	gateway := services.NewGatewayService(db, registry, credentials, ledger, reconciler, tracker, meter, taskQueue, cfg)

	// Periodic reaper and ledger sweep
	scheduler := services.StartMaintenanceScheduler(tracker, reconciler, &cfg.Gateway)

	return &appServices{
		cfg:         cfg,
		gateway:     gateway,
		credentials: credentials,
		apps:        apps,
		reconciler:  reconciler,
		scheduler:   scheduler,
		taskQueue:   taskQueue,
		worker:      worker,
	}
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		s.taskQueue.Close()
	}
	logger.Info().Msg("All services stopped")
}
