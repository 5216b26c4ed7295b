package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	jobmetrics "github.com/steelworks-erp/steelworks/internal/jobs"
	"github.com/steelworks-erp/steelworks/internal/ledger"
	"github.com/steelworks-erp/steelworks/internal/platform/db"
	"github.com/steelworks-erp/steelworks/internal/shared"
)

const (
	checkOverDispatch = "over_dispatch"
	checkLedgerDrift  = "ledger_drift"

	integrityLockTTL = 10 * time.Minute
)

// OverDispatchedLine is an order line whose dispatch sum exceeds its quantity.
type OverDispatchedLine struct {
	OrderItemID int64
	OrderID     int64
	Quantity    decimal.Decimal
	Dispatched  decimal.Decimal
}

// LedgerDrift is a dispatch item whose ISSUE row is missing or disagrees,
// or an ISSUE row whose dispatch item is gone.
type LedgerDrift struct {
	DispatchItemID int64
	ItemQuantity   *decimal.Decimal
	LedgerQuantity *decimal.Decimal
}

// IntegrityRepository runs the integrity queries.
type IntegrityRepository interface {
	OverDispatchedLines(ctx context.Context) ([]OverDispatchedLine, error)
	LedgerDrift(ctx context.Context) ([]LedgerDrift, error)
}

// DispatchIntegrityJob reports violations that the write paths should make
// impossible. It never repairs data.
type DispatchIntegrityJob struct {
	Repo    IntegrityRepository
	Locker  *redislock.Client
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewDispatchIntegrityJob constructs the handler.
func NewDispatchIntegrityJob(repo IntegrityRepository, locker *redislock.Client, logger *slog.Logger, metrics *jobmetrics.Metrics) *DispatchIntegrityJob {
	return &DispatchIntegrityJob{Repo: repo, Locker: locker, Logger: logger, Metrics: metrics}
}

// Handle runs both checks.
func (j *DispatchIntegrityJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Repo == nil {
		return errors.New("dispatch integrity: repository not configured")
	}
	tracker := j.Metrics.Track(TaskDispatchIntegrity)
	err := shared.RunExclusive(ctx, j.Locker, shared.JobLockKey(TaskDispatchIntegrity), integrityLockTTL, j.scan)
	if errors.Is(err, shared.ErrLockHeld) {
		jobLogger(j.Logger, TaskDispatchIntegrity).Info("integrity scan already running elsewhere")
		tracker.Skip()
		return nil
	}
	return tracker.End(err)
}

func (j *DispatchIntegrityJob) scan(ctx context.Context) error {
	logger := jobLogger(j.Logger, TaskDispatchIntegrity)
	metrics := j.Metrics

	over, err := j.Repo.OverDispatchedLines(ctx)
	if err != nil {
		logger.Error("over-dispatch scan", slog.Any("error", err))
		return err
	}
	for _, l := range over {
		logger.Error("order item over-dispatched",
			slog.Int64("order_item_id", l.OrderItemID),
			slog.Int64("order_id", l.OrderID),
			slog.String("quantity", l.Quantity.String()),
			slog.String("dispatched", l.Dispatched.String()))
	}
	metrics.SetFindings(checkOverDispatch, len(over))

	drift, err := j.Repo.LedgerDrift(ctx)
	if err != nil {
		logger.Error("ledger drift scan", slog.Any("error", err))
		return err
	}
	for _, d := range drift {
		logger.Error("dispatch ledger drift",
			slog.Int64("dispatch_item_id", d.DispatchItemID),
			slog.String("item_quantity", quantityText(d.ItemQuantity)),
			slog.String("ledger_quantity", quantityText(d.LedgerQuantity)))
	}
	metrics.SetFindings(checkLedgerDrift, len(drift))

	logger.Info("dispatch integrity scan completed", slog.Int(checkOverDispatch, len(over)), slog.Int(checkLedgerDrift, len(drift)))
	return nil
}

func quantityText(q *decimal.Decimal) string {
	if q == nil {
		return "missing"
	}
	return q.String()
}

// PostgresIntegrityRepository reads the checks from one snapshot.
type PostgresIntegrityRepository struct {
	pool *pgxpool.Pool
}

// NewIntegrityRepository returns a pgx-backed repository.
func NewIntegrityRepository(pool *pgxpool.Pool) *PostgresIntegrityRepository {
	return &PostgresIntegrityRepository{pool: pool}
}

// OverDispatchedLines lists order items whose dispatched sum exceeds the ordered quantity.
func (r *PostgresIntegrityRepository) OverDispatchedLines(ctx context.Context) ([]OverDispatchedLine, error) {
	var out []OverDispatchedLine
	err := db.WithTxOptions(ctx, r.pool, db.SnapshotTx(), func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT oi.id, oi.order_id, oi.quantity, SUM(di.quantity_dispatched)
			FROM order_items oi
			JOIN dispatch_items di ON di.order_item_id = oi.id
			GROUP BY oi.id, oi.order_id, oi.quantity
			HAVING SUM(di.quantity_dispatched) > oi.quantity
			ORDER BY oi.id`)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (OverDispatchedLine, error) {
			var l OverDispatchedLine
			err := row.Scan(&l.OrderItemID, &l.OrderID, &l.Quantity, &l.Dispatched)
			return l, err
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LedgerDrift compares every dispatch item with its DISPATCH_ITEM ledger rows.
func (r *PostgresIntegrityRepository) LedgerDrift(ctx context.Context) ([]LedgerDrift, error) {
	var out []LedgerDrift
	err := db.WithTxOptions(ctx, r.pool, db.SnapshotTx(), func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `WITH issued AS (
				SELECT reference_id, SUM(quantity) AS quantity
				FROM stock_transactions
				WHERE reference_type = $1 AND transaction_type = $2
				GROUP BY reference_id
			)
			SELECT COALESCE(di.id, issued.reference_id), di.quantity_dispatched, issued.quantity
			FROM dispatch_items di
			FULL OUTER JOIN issued ON issued.reference_id = di.id
			WHERE di.id IS NULL OR issued.reference_id IS NULL OR di.quantity_dispatched <> issued.quantity
			ORDER BY 1`, ledger.RefDispatchItem, string(ledger.TypeIssue))
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (LedgerDrift, error) {
			var d LedgerDrift
			err := row.Scan(&d.DispatchItemID, &d.ItemQuantity, &d.LedgerQuantity)
			return d, err
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
