package app

import (
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/steelworks-erp/steelworks/internal/dispatch"
	"github.com/steelworks-erp/steelworks/internal/ledger"
	"github.com/steelworks-erp/steelworks/internal/observability"
	"github.com/steelworks-erp/steelworks/internal/orders"
	"github.com/steelworks-erp/steelworks/internal/production"
	"github.com/steelworks-erp/steelworks/internal/shared"
	"github.com/steelworks-erp/steelworks/internal/stockreport"
)

// Services holds the domain services shared by the API and the worker.
type Services struct {
	Idempotency *shared.IdempotencyStore
	Audit       *shared.AuditLogger
	Ledger      *ledger.Service
	Orders      *orders.Service
	Dispatch    *dispatch.Service
	Production  *production.Service
	StockReport *stockreport.Service
}

// NewServices wires repositories and services. redisClient may be nil, which
// disables the stock report cache. Every ledger writer notifies the stock
// report service so cached statements are invalidated after commit.
func NewServices(cfg *Config, logger *slog.Logger, pool *pgxpool.Pool, redisClient *redis.Client, metrics *observability.Metrics) (*Services, error) {
	rates, err := cfg.RatePolicy()
	if err != nil {
		return nil, fmt.Errorf("app: rate policy: %w", err)
	}
	registerer := metrics.Registerer()

	idem := shared.NewIdempotencyStore(pool)
	audit := shared.NewAuditLogger(pool)
	stockLedger := ledger.New(ledger.NewMetrics(registerer))

	reportCache := stockreport.NewCache(redisClient, cfg.StockReportCacheTTL)
	reports := stockreport.NewService(stockreport.NewRepository(pool), reportCache, cfg.StockReportIncludeZero, logger)

	ledgerService := ledger.NewService(ledger.NewRepository(pool), stockLedger, reports, logger)

	orderService := orders.NewService(
		orders.NewRepository(pool, idem, cfg.PGLockTimeout),
		audit,
		orders.ServiceConfig{CompanyState: cfg.CompanyState, RejectBlankState: cfg.GSTRejectBlankState},
		logger,
	)

	dispatchService := dispatch.NewService(dispatch.ServiceDeps{
		Repo:     dispatch.NewRepository(pool, idem, cfg.PGLockTimeout),
		Ledger:   stockLedger,
		Notifier: reports,
		Audit:    audit,
		Metrics:  dispatch.NewMetrics(registerer),
		Logger:   logger,
	})

	productionService := production.NewService(
		production.NewRepository(pool, cfg.PGLockTimeout),
		stockLedger,
		rates,
		reports,
		audit,
		logger,
	)

	return &Services{
		Idempotency: idem,
		Audit:       audit,
		Ledger:      ledgerService,
		Orders:      orderService,
		Dispatch:    dispatchService,
		Production:  productionService,
		StockReport: reports,
	}, nil
}
