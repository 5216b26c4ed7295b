package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/steelworks-erp/steelworks/internal/platform/db"
)

// TxStore is the PostgreSQL Store bound to one transaction.
type TxStore struct {
	tx pgx.Tx
}

// NewTxStore binds a Store to tx.
func NewTxStore(tx pgx.Tx) *TxStore {
	return &TxStore{tx: tx}
}

var (
	_ Store      = (*TxStore)(nil)
	_ RateSource = (*TxStore)(nil)
)

// InsertEntry appends one row and returns its id.
func (s *TxStore) InsertEntry(ctx context.Context, e Entry) (int64, error) {
	var id int64
	err := s.tx.QueryRow(ctx, `INSERT INTO stock_transactions
		(transaction_date, transaction_type, item_id, quantity, rate, amount, reference_type, reference_id, remarks)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		e.Date, string(e.Type), e.ItemID, e.Quantity, e.Rate, e.Amount, e.ReferenceType, e.ReferenceID, e.Remarks,
	).Scan(&id)
	return id, err
}

// DeleteByReference removes the rows owned by a reference.
func (s *TxStore) DeleteByReference(ctx context.Context, referenceType string, referenceID int64) (int64, error) {
	tag, err := s.tx.Exec(ctx, `DELETE FROM stock_transactions WHERE reference_type = $1 AND reference_id = $2`, referenceType, referenceID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// LatestReceiptRate returns the rate of the most recent RECEIPT for the item.
func (s *TxStore) LatestReceiptRate(ctx context.Context, itemID int64, onOrBefore time.Time) (decimal.Decimal, bool, error) {
	return s.latestRate(ctx, `SELECT rate FROM stock_transactions
		WHERE item_id = $1 AND transaction_type = 'RECEIPT' AND transaction_date <= $2
		ORDER BY transaction_date DESC, id DESC LIMIT 1`, itemID, onOrBefore)
}

// LatestOrderRate returns the rate of the most recent order line for the item.
func (s *TxStore) LatestOrderRate(ctx context.Context, itemID int64, onOrBefore time.Time) (decimal.Decimal, bool, error) {
	return s.latestRate(ctx, `SELECT oi.rate FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE oi.item_id = $1 AND o.order_date <= $2
		ORDER BY o.order_date DESC, oi.id DESC LIMIT 1`, itemID, onOrBefore)
}

func (s *TxStore) latestRate(ctx context.Context, query string, itemID int64, onOrBefore time.Time) (decimal.Decimal, bool, error) {
	var rate decimal.Decimal
	if err := s.tx.QueryRow(ctx, query, itemID, onOrBefore).Scan(&rate); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, err
	}
	return rate, true, nil
}

// ItemExists reports whether the item master row exists.
func (s *TxStore) ItemExists(ctx context.Context, itemID int64) (bool, error) {
	var exists bool
	err := s.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM items WHERE id = $1)`, itemID).Scan(&exists)
	return exists, err
}

// Repository gives the manual-entry service its transactions and read models.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a write transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxOptions(ctx, r.pool, db.LockingTx(), func(tx pgx.Tx) error {
		return fn(ctx, NewTxStore(tx))
	})
}

// StockCard loads the opening quantity and the window's rows for one item
// from a single snapshot.
func (r *Repository) StockCard(ctx context.Context, itemID int64, start, end time.Time) (decimal.Decimal, []Entry, error) {
	var opening decimal.Decimal
	var entries []Entry
	err := db.WithTxOptions(ctx, r.pool, db.SnapshotTx(), func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT COALESCE(SUM(CASE WHEN transaction_type = 'ISSUE' THEN -quantity ELSE quantity END), 0)
			FROM stock_transactions WHERE item_id = $1 AND transaction_date < $2`, itemID, start).Scan(&opening); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT id, transaction_date, transaction_type, item_id, quantity, rate, amount,
				COALESCE(reference_type, ''), reference_id, COALESCE(remarks, ''), created_at
			FROM stock_transactions
			WHERE item_id = $1 AND transaction_date BETWEEN $2 AND $3
			ORDER BY transaction_date, id`, itemID, start, end)
		if err != nil {
			return err
		}
		entries, err = pgx.CollectRows(rows, scanEntry)
		return err
	})
	if err != nil {
		return decimal.Zero, nil, err
	}
	return opening, entries, nil
}

// ItemExists checks the item master outside a transaction.
func (r *Repository) ItemExists(ctx context.Context, itemID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM items WHERE id = $1)`, itemID).Scan(&exists)
	return exists, db.Classify(err)
}

func scanEntry(row pgx.CollectableRow) (Entry, error) {
	var e Entry
	var txType string
	err := row.Scan(&e.ID, &e.Date, &txType, &e.ItemID, &e.Quantity, &e.Rate, &e.Amount,
		&e.ReferenceType, &e.ReferenceID, &e.Remarks, &e.CreatedAt)
	e.Type = TransactionType(txType)
	return e, err
}
