package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/steelworks-erp/steelworks/internal/jobs"
	"github.com/steelworks-erp/steelworks/internal/shared"
	"github.com/steelworks-erp/steelworks/internal/stockreport"
)

const (
	warmupParallelism = 4
	warmupLockTTL     = 5 * time.Minute
	warmupScopeTTL    = 30 * time.Second
)

// StatementBuilder is the slice of the stock report service the warmup drives.
type StatementBuilder interface {
	Generate(ctx context.Context, f stockreport.Filter) (stockreport.Statement, error)
	Categories(ctx context.Context) ([]int64, error)
}

// StockReportWarmupJob pre-builds the month-to-date statement for every
// category and for all categories so the first morning request hits the cache.
type StockReportWarmupJob struct {
	Reports StatementBuilder
	Locker  *redislock.Client
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewStockReportWarmupJob wires dependencies for the warmup handler.
func NewStockReportWarmupJob(reports StatementBuilder, locker *redislock.Client, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockReportWarmupJob {
	return &StockReportWarmupJob{
		Reports: reports,
		Locker:  locker,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes warmup tasks.
func (j *StockReportWarmupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Reports == nil {
		return errors.New("stock report warmup: handler not configured")
	}
	tracker := j.Metrics.Track(TaskStockReportWarmup)
	err := shared.RunExclusive(ctx, j.Locker, shared.JobLockKey(TaskStockReportWarmup), warmupLockTTL, j.run)
	if errors.Is(err, shared.ErrLockHeld) {
		j.log().Info("warmup already running elsewhere")
		tracker.Skip()
		return nil
	}
	return tracker.End(err)
}

func (j *StockReportWarmupJob) run(ctx context.Context) error {
	logger := j.log()
	categories, err := j.Reports.Categories(ctx)
	if err != nil {
		logger.Error("load categories", slog.Any("error", err))
		return err
	}

	now := j.now()
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	scopes := make([]*int64, 0, len(categories)+1)
	scopes = append(scopes, nil)
	for _, id := range categories {
		scopes = append(scopes, &id)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmupParallelism)
	for _, category := range scopes {
		g.Go(func() error {
			scopeCtx, cancel := context.WithTimeout(gctx, warmupScopeTTL)
			defer cancel()
			_, err := j.Reports.Generate(scopeCtx, stockreport.Filter{Start: start, End: end, CategoryID: category})
			if err != nil {
				logger.Error("warm statement", slog.Any("category_id", category), slog.Any("error", err))
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("completed stock report warmup", slog.Int("scopes", len(scopes)), slog.Duration("duration", time.Since(now)))
	return nil
}

func (j *StockReportWarmupJob) log() *slog.Logger {
	return jobLogger(j.Logger, TaskStockReportWarmup)
}

func (j *StockReportWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func jobLogger(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}
