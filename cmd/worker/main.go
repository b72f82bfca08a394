package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/polyfab/polyfab/internal/app"
	"github.com/polyfab/polyfab/internal/dashboard"
	"github.com/polyfab/polyfab/internal/integration"
	"github.com/polyfab/polyfab/internal/inventory"
	"github.com/polyfab/polyfab/internal/platform/cache"
	"github.com/polyfab/polyfab/internal/platform/db"
	"github.com/polyfab/polyfab/internal/production"
	"github.com/polyfab/polyfab/internal/shared"
	"github.com/polyfab/polyfab/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	// The worker shares the dashboard cache with the web process, so a
	// refreshed ledger invalidates summaries served over HTTP too.
	dashboardCache := dashboard.NewCache(redisClient, cfg.DashboardCacheTTL)

	productionService := production.NewService(production.NewRepository(pool), auditLogger, nil)
	inventoryService := inventory.NewService(inventory.NewRepository(pool), auditLogger, idempotencyStore,
		inventory.ServiceConfig{AllowNegativeStock: cfg.AllowNegativeStock}, nil)

	dashboardService := dashboard.NewService(productionService, inventoryService, dashboardCache)
	hooks := integration.NewHooks(logger, nil, dashboardService, nil, nil)
	productionService.WithIntegration(hooks)
	inventoryService.WithIntegration(hooks)

	refreshTask, err := jobs.NewMetricsRefreshTask(jobs.MetricsRefreshPayload{})
	if err != nil {
		logger.Error("build refresh task", slog.Any("error", err))
		os.Exit(1)
	}
	scanTask, err := jobs.NewLowStockScanTask()
	if err != nil {
		logger.Error("build scan task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskMetricsRefresh, Handler: jobs.NewMetricsRefreshHandler(productionService, logger)},
			{Type: jobs.TaskLowStockScan, Handler: jobs.NewLowStockScanHandler(inventoryService, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.MetricsRefreshCron, Task: refreshTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.LowStockScanCron, Task: scanTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
