package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/steelworks-erp/steelworks/cmd/steelworks/cli"
	"github.com/steelworks-erp/steelworks/internal/app"
	"github.com/steelworks-erp/steelworks/internal/dispatch"
	"github.com/steelworks-erp/steelworks/internal/ledger"
	"github.com/steelworks-erp/steelworks/internal/observability"
	"github.com/steelworks-erp/steelworks/internal/orders"
	"github.com/steelworks-erp/steelworks/internal/platform/cache"
	"github.com/steelworks-erp/steelworks/internal/platform/db"
	"github.com/steelworks-erp/steelworks/internal/platform/migrate"
	"github.com/steelworks-erp/steelworks/internal/production"
	"github.com/steelworks-erp/steelworks/internal/stockreport"
	"github.com/steelworks-erp/steelworks/jobs"
	"github.com/steelworks-erp/steelworks/report"
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
	logger := app.NewLogger(cfg, "steelworks")

	args := os.Args[1:]
	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	switch command {
	case "serve":
		if err := serve(ctx, cfg, logger); err != nil {
			logger.Error("serve", slog.Any("error", err))
			os.Exit(1)
		}
	case "migrate":
		m, err := migrate.New(cfg.PGDSN, logger)
		if err != nil {
			logger.Error("open migrations", slog.Any("error", err))
			os.Exit(1)
		}
		code := cli.RunMigrate(m, args, os.Stdout, os.Stderr)
		if err := m.Close(); err != nil {
			logger.Warn("close migrations", slog.Any("error", err))
		}
		os.Exit(code)
	case "jobs":
		c := cli.NewJobsCLI(cfg.Redis().Asynq())
		code := cli.RunJobs(ctx, c, args, os.Stdout, os.Stderr)
		_ = c.Close()
		os.Exit(code)
	default:
		logger.Error("unknown command", slog.String("command", command))
		os.Exit(2)
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	if cfg.MigrateOnStart {
		if err := migrateUp(cfg, logger); err != nil {
			return err
		}
	}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.Pool("steelworks"))
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Warn("stock report cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	services, err := app.NewServices(cfg, logger, pool, redisClient, metrics)
	if err != nil {
		return err
	}

	var renderer stockreport.PDFRenderer
	var reportHandler *report.Handler
	if cfg.GotenbergURL != "" {
		client := report.NewClient(cfg.GotenbergURL, report.A4Landscape)
		renderer = client
		reportHandler = report.NewHandler(client, logger)
	}

	inspector := asynq.NewInspector(cfg.Redis().Asynq())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Metrics:            metrics,
		DB:                 pool,
		OrdersHandler:      orders.NewHandler(logger, services.Orders),
		DispatchHandler:    dispatch.NewHandler(logger, services.Dispatch),
		ProductionHandler:  production.NewHandler(logger, services.Production),
		LedgerHandler:      ledger.NewHandler(logger, services.Ledger),
		StockReportHandler: stockreport.NewHandler(logger, services.StockReport, renderer),
		ReportHandler:      reportHandler,
		JobHandler:         jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func migrateUp(cfg *app.Config, logger *slog.Logger) error {
	m, err := migrate.New(cfg.PGDSN, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			logger.Warn("close migrations", slog.Any("error", err))
		}
	}()
	return m.Up()
}
