package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"

	"github.com/steelworks-erp/steelworks/internal/app"
	jobmetrics "github.com/steelworks-erp/steelworks/internal/jobs"
	"github.com/steelworks-erp/steelworks/internal/observability"
	"github.com/steelworks-erp/steelworks/internal/platform/cache"
	"github.com/steelworks-erp/steelworks/internal/platform/db"
	"github.com/steelworks-erp/steelworks/jobs"
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

	logger := app.NewLogger(cfg, "steelworks-worker")

	pool, err := db.New(ctx, cfg.PGDSN, cfg.Pool("steelworks-worker"))
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	services, err := app.NewServices(cfg, logger, pool, redisClient, metrics)
	if err != nil {
		logger.Error("init services", slog.Any("error", err))
		os.Exit(1)
	}

	jm := jobmetrics.NewMetrics(metrics.Registerer())
	locker := redislock.New(redisClient)

	warmup := jobs.NewStockReportWarmupJob(services.StockReport, locker, logger, jm)
	integrity := jobs.NewDispatchIntegrityJob(jobs.NewIntegrityRepository(pool), locker, logger, jm)
	cleanup := jobs.NewIdempotencyCleanupJob(services.Idempotency, logger, jm)

	cron, err := jobs.CronEntries()
	if err != nil {
		logger.Error("build cron entries", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   cfg.Redis().Asynq(),
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: map[string]asynq.HandlerFunc{
			jobs.TaskStockReportWarmup:  warmup.Handle,
			jobs.TaskDispatchIntegrity:  integrity.Handle,
			jobs.TaskIdempotencyCleanup: cleanup.Handle,
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() { _ = metricsServer.Close() }()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
