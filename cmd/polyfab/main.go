package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/polyfab/polyfab/internal/app"
	"github.com/polyfab/polyfab/internal/dashboard"
	"github.com/polyfab/polyfab/internal/integration"
	"github.com/polyfab/polyfab/internal/inventory"
	"github.com/polyfab/polyfab/internal/live"
	"github.com/polyfab/polyfab/internal/machines"
	"github.com/polyfab/polyfab/internal/mixing"
	"github.com/polyfab/polyfab/internal/observability"
	"github.com/polyfab/polyfab/internal/platform/cache"
	"github.com/polyfab/polyfab/internal/platform/db"
	"github.com/polyfab/polyfab/internal/production"
	"github.com/polyfab/polyfab/internal/production/export"
	"github.com/polyfab/polyfab/internal/shared"
	"github.com/polyfab/polyfab/internal/tracking"
	"github.com/polyfab/polyfab/jobs"
	"github.com/polyfab/polyfab/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	metrics := observability.NewMetrics()

	hub := live.NewHub(logger)

	dashboardCache := dashboard.NewCache(redisClient, cfg.DashboardCacheTTL)

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	productionRepo := production.NewRepository(dbpool)
	inventoryRepo := inventory.NewRepository(dbpool)

	// The dashboard service reads through the production service, so
	// hooks are wired after both exist.
	productionService := production.NewService(productionRepo, auditLogger, nil)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, idempotencyStore,
		inventory.ServiceConfig{AllowNegativeStock: cfg.AllowNegativeStock}, nil)

	dashboardService := dashboard.NewService(productionService, inventoryService, dashboardCache)

	hooks := integration.NewHooks(logger, hub, dashboardService, metrics, jobClient)
	productionService.WithIntegration(hooks)
	inventoryService.WithIntegration(hooks)

	mixingRepo := mixing.NewRepository(dbpool)
	mixingService := mixing.NewService(mixingRepo, inventoryService, auditLogger)

	machinesRepo := machines.NewRepository(dbpool)
	machinesService := machines.NewService(machinesRepo, auditLogger)

	qrKey, err := cfg.QRKey()
	if err != nil {
		logger.Error("load QR key", slog.Any("error", err))
		os.Exit(1)
	}
	sealer, err := tracking.NewSealer(qrKey, cfg.QRTokenTTL)
	if err != nil {
		logger.Error("init sealer", slog.Any("error", err))
		os.Exit(1)
	}
	trackingRepo := tracking.NewRepository(dbpool)
	trackingService := tracking.NewService(sealer, trackingRepo, trackingRepo, trackingRepo, auditLogger)

	pdfClient := report.NewClient(cfg.GotenbergURL)
	if err := pdfClient.Ping(ctx); err != nil {
		logger.Warn("gotenberg ping", slog.Any("error", err))
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		ProductionHandler: production.NewHandler(logger, productionService),
		ExportHandler:     export.NewHandler(logger, productionService, pdfClient),
		InventoryHandler:  inventory.NewHandler(logger, inventoryService),
		MixingHandler:     mixing.NewHandler(logger, mixingService),
		MachinesHandler:   machines.NewHandler(logger, machinesService),
		TrackingHandler:   tracking.NewHandler(logger, trackingService),
		DashboardHandler:  dashboard.NewHandler(logger, dashboardService),
		LiveHub:           hub,
		JobHandler:        jobs.NewHandler(inspector, logger),
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
