package production

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

// Repository persists production events in PostgreSQL.
type Repository struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, lockTimeout time.Duration) *Repository {
	return &Repository{pool: pool, lockTimeout: lockTimeout}
}

type txRepo struct {
	tx    pgx.Tx
	store *ledger.TxStore
}

var (
	_ RepositoryPort = (*Repository)(nil)
	_ TxRepository   = (*txRepo)(nil)
)

// WithTx runs fn inside a write transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxOptions(ctx, r.pool, db.LockingTx(), func(tx pgx.Tx) error {
		if err := db.SetLockTimeout(ctx, tx, r.lockTimeout); err != nil {
			return err
		}
		return fn(ctx, &txRepo{tx: tx, store: ledger.NewTxStore(tx)})
	})
}

func (t *txRepo) SupplierExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM suppliers WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (t *txRepo) MissingItems(ctx context.Context, ids []int64) ([]int64, error) {
	rows, err := t.tx.Query(ctx, `SELECT want.id
		FROM unnest($1::bigint[]) WITH ORDINALITY AS want(id, pos)
		LEFT JOIN items i ON i.id = want.id
		WHERE i.id IS NULL
		ORDER BY want.pos`, ids)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (t *txRepo) InsertGRN(ctx context.Context, grn GRN) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO grns (supplier_id, grn_date, invoice_no, created_at)
		VALUES ($1, $2, NULLIF($3, ''), NOW()) RETURNING id`, grn.SupplierID, grn.GRNDate, grn.InvoiceNo).Scan(&id)
	return id, err
}

func (t *txRepo) InsertGRNLine(ctx context.Context, line GRNLine) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO grn_items (grn_id, item_id, quantity, rate)
		VALUES ($1, $2, $3, $4) RETURNING id`, line.GRNID, line.ItemID, line.Quantity, line.Rate).Scan(&id)
	return id, err
}

func (t *txRepo) LockGRN(ctx context.Context, id int64) (GRN, error) {
	var grn GRN
	err := t.tx.QueryRow(ctx, `SELECT id, supplier_id, grn_date, COALESCE(invoice_no, '') FROM grns WHERE id = $1 FOR UPDATE`, id).
		Scan(&grn.ID, &grn.SupplierID, &grn.GRNDate, &grn.InvoiceNo)
	if errors.Is(err, pgx.ErrNoRows) {
		return GRN{}, shared.ErrNotFound
	}
	if err != nil {
		return GRN{}, err
	}
	rows, err := t.tx.Query(ctx, `SELECT id, grn_id, item_id, quantity, rate FROM grn_items WHERE grn_id = $1 ORDER BY id`, id)
	if err != nil {
		return GRN{}, err
	}
	grn.Lines, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (GRNLine, error) {
		var l GRNLine
		err := row.Scan(&l.ID, &l.GRNID, &l.ItemID, &l.Quantity, &l.Rate)
		l.Amount = l.Quantity.Mul(l.Rate).Round(2)
		return l, err
	})
	return grn, err
}

func (t *txRepo) DeleteGRN(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM grns WHERE id = $1`, id)
	return err
}

func (t *txRepo) InsertMelting(ctx context.Context, m Melting) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO melting_records (melting_date, heat_number, remarks, created_at)
		VALUES ($1, $2, NULLIF($3, ''), NOW()) RETURNING id`, m.MeltingDate, m.HeatNumber, m.Remarks).Scan(&id)
	return id, err
}

func (t *txRepo) InsertConsumption(ctx context.Context, meltingID int64, c ConsumptionInput) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO melting_consumptions (melting_id, item_id, quantity) VALUES ($1, $2, $3)`,
		meltingID, c.ItemID, c.Quantity)
	return err
}

func (t *txRepo) LockMelting(ctx context.Context, id int64) error {
	return t.lockRow(ctx, `SELECT id FROM melting_records WHERE id = $1 FOR UPDATE`, id)
}

func (t *txRepo) DeleteMelting(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM melting_records WHERE id = $1`, id)
	return err
}

func (t *txRepo) InsertHeatTreatment(ctx context.Context, ht HeatTreatment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO heat_treatments
		(treatment_date, furnace_number, item_id, bags_produced, wip_item_id, wip_quantity, remarks, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NOW()) RETURNING id`,
		ht.TreatmentDate, ht.FurnaceNumber, ht.ItemID, ht.BagsProduced, ht.WIPItemID, ht.WIPQuantity, ht.Remarks).Scan(&id)
	return id, err
}

func (t *txRepo) LockHeatTreatment(ctx context.Context, id int64) error {
	return t.lockRow(ctx, `SELECT id FROM heat_treatments WHERE id = $1 FOR UPDATE`, id)
}

func (t *txRepo) DeleteHeatTreatment(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM heat_treatments WHERE id = $1`, id)
	return err
}

func (t *txRepo) lockRow(ctx context.Context, query string, id int64) error {
	var got int64
	err := t.tx.QueryRow(ctx, query, id).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	return err
}

func (t *txRepo) LedgerStore() ledger.Store { return t.store }

func (t *txRepo) Rates() ledger.RateSource { return t.store }
