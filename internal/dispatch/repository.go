package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/steelworks-erp/steelworks/internal/ledger"
	"github.com/steelworks-erp/steelworks/internal/platform/db"
	"github.com/steelworks-erp/steelworks/internal/shared"
)

// Repository persists dispatches in PostgreSQL.
type Repository struct {
	pool        *pgxpool.Pool
	idem        *shared.IdempotencyStore
	lockTimeout time.Duration
}

// NewRepository constructs Repository. lockTimeout bounds row-lock waits.
func NewRepository(pool *pgxpool.Pool, idem *shared.IdempotencyStore, lockTimeout time.Duration) *Repository {
	return &Repository{pool: pool, idem: idem, lockTimeout: lockTimeout}
}

type txRepo struct {
	tx   pgx.Tx
	idem *shared.IdempotencyStore
}

var (
	_ RepositoryPort = (*Repository)(nil)
	_ TxRepository   = (*txRepo)(nil)
)

// WithTx runs fn in a ReadCommitted transaction with a bounded lock wait.
// Each statement after a lock wait sees rows committed by the previous holder.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxOptions(ctx, r.pool, db.LockingTx(), func(tx pgx.Tx) error {
		if err := db.SetLockTimeout(ctx, tx, r.lockTimeout); err != nil {
			return err
		}
		return fn(ctx, &txRepo{tx: tx, idem: r.idem})
	})
}

// GetDispatch loads a dispatch and its items from one snapshot.
func (r *Repository) GetDispatch(ctx context.Context, id int64) (Dispatch, error) {
	var d Dispatch
	err := db.WithTxOptions(ctx, r.pool, db.SnapshotTx(), func(tx pgx.Tx) error {
		var err error
		d, err = loadDispatch(ctx, tx, id, "")
		return err
	})
	return d, err
}

func loadDispatch(ctx context.Context, tx pgx.Tx, id int64, lock string) (Dispatch, error) {
	var d Dispatch
	err := tx.QueryRow(ctx, `SELECT id, order_id, dispatch_date, transporter_id, COALESCE(remarks, ''), created_at, updated_at
		FROM dispatches WHERE id = $1 `+lock, id).
		Scan(&d.ID, &d.OrderID, &d.DispatchDate, &d.TransporterID, &d.Remarks, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Dispatch{}, shared.ErrNotFound
	}
	if err != nil {
		return Dispatch{}, err
	}
	rows, err := tx.Query(ctx, `SELECT di.id, di.dispatch_id, di.order_item_id, oi.item_id, di.quantity_dispatched, oi.rate
		FROM dispatch_items di
		JOIN order_items oi ON oi.id = di.order_item_id
		WHERE di.dispatch_id = $1
		ORDER BY di.id`, id)
	if err != nil {
		return Dispatch{}, err
	}
	d.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Item, error) {
		var it Item
		err := row.Scan(&it.ID, &it.DispatchID, &it.OrderItemID, &it.ItemID, &it.QuantityDispatched, &it.Rate)
		return it, err
	})
	return d, err
}

func (t *txRepo) LockOrder(ctx context.Context, orderID int64) error {
	var id int64
	err := t.tx.QueryRow(ctx, `SELECT id FROM orders WHERE id = $1 FOR SHARE`, orderID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	return err
}

func (t *txRepo) LockDispatch(ctx context.Context, id int64) (Dispatch, error) {
	return loadDispatch(ctx, t.tx, id, "FOR UPDATE")
}

func (t *txRepo) LockOrderLines(ctx context.Context, orderItemIDs []int64, excludeDispatchID int64) (map[int64]OrderLine, error) {
	out := make(map[int64]OrderLine, len(orderItemIDs))
	if len(orderItemIDs) == 0 {
		return out, nil
	}
	rows, err := t.tx.Query(ctx, `SELECT id, order_id, item_id, quantity, rate
		FROM order_items WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE`, orderItemIDs)
	if err != nil {
		return nil, err
	}
	lines, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (OrderLine, error) {
		var l OrderLine
		err := row.Scan(&l.ID, &l.OrderID, &l.ItemID, &l.Quantity, &l.Rate)
		return l, err
	})
	if err != nil {
		return nil, err
	}
	for _, l := range lines {
		out[l.ID] = l
	}

	// Read after the locks are held so the sums include every committed dispatch.
	rows, err = t.tx.Query(ctx, `SELECT order_item_id, SUM(quantity_dispatched)
		FROM dispatch_items
		WHERE order_item_id = ANY($1) AND dispatch_id <> $2
		GROUP BY order_item_id`, orderItemIDs, excludeDispatchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var line OrderLine
		if err := rows.Scan(&id, &line.Dispatched); err != nil {
			return nil, err
		}
		if l, ok := out[id]; ok {
			l.Dispatched = line.Dispatched
			out[id] = l
		}
	}
	return out, rows.Err()
}

func (t *txRepo) TransporterExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transporters WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (t *txRepo) InsertDispatch(ctx context.Context, d Dispatch) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO dispatches (order_id, dispatch_date, transporter_id, remarks, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NOW(), NOW()) RETURNING id`,
		d.OrderID, d.DispatchDate, d.TransporterID, d.Remarks).Scan(&id)
	return id, err
}

func (t *txRepo) UpdateDispatchHeader(ctx context.Context, d Dispatch) error {
	_, err := t.tx.Exec(ctx, `UPDATE dispatches
		SET dispatch_date = $2, transporter_id = $3, remarks = NULLIF($4, ''), updated_at = NOW()
		WHERE id = $1`, d.ID, d.DispatchDate, d.TransporterID, d.Remarks)
	return err
}

func (t *txRepo) InsertItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO dispatch_items (dispatch_id, order_item_id, quantity_dispatched)
		VALUES ($1, $2, $3) RETURNING id`, item.DispatchID, item.OrderItemID, item.QuantityDispatched).Scan(&id)
	return id, err
}

func (t *txRepo) DeleteItems(ctx context.Context, dispatchID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM dispatch_items WHERE dispatch_id = $1`, dispatchID)
	return err
}

func (t *txRepo) DeleteDispatch(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM dispatches WHERE id = $1`, id)
	return err
}

func (t *txRepo) LedgerStore() ledger.Store {
	return ledger.NewTxStore(t.tx)
}

func (t *txRepo) ClaimIdempotency(ctx context.Context, claim shared.IdempotencyClaim) error {
	return t.idem.Claim(ctx, t.tx, claim)
}

func (t *txRepo) CompleteIdempotency(ctx context.Context, claim shared.IdempotencyClaim, resourceID int64) error {
	return t.idem.Complete(ctx, t.tx, claim, resourceID)
}
