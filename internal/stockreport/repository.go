package stockreport

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/steelworks-erp/steelworks/internal/ledger"
	"github.com/steelworks-erp/steelworks/internal/platform/db"
)

// PostgresRepository reads statement inputs from PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

var _ Repository = (*PostgresRepository)(nil)

// Load reads items and their movements pre-summed per item, type and side of
// the window start. Both reads share one read-only snapshot, so writers are
// never blocked and never half-seen.
func (r *PostgresRepository) Load(ctx context.Context, start, end time.Time, categoryID *int64) ([]Item, []Movement, error) {
	var items []Item
	var movements []Movement
	err := db.WithTxOptions(ctx, r.pool, db.SnapshotTx(), func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT i.id, i.name, i.category_id, c.name, COALESCE(i.uom, '')
			FROM items i
			JOIN item_categories c ON c.id = i.category_id
			WHERE $1::bigint IS NULL OR i.category_id = $1
			ORDER BY c.name, i.name, i.id`, categoryID)
		if err != nil {
			return err
		}
		items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Item, error) {
			var it Item
			err := row.Scan(&it.ID, &it.Name, &it.CategoryID, &it.Category, &it.UOM)
			return it, err
		})
		if err != nil {
			return err
		}

		rows, err = tx.Query(ctx, `SELECT st.item_id, st.transaction_type, st.transaction_date < $1 AS before_window,
				SUM(st.quantity), SUM(st.amount)
			FROM stock_transactions st
			JOIN items i ON i.id = st.item_id
			WHERE st.transaction_date <= $2 AND ($3::bigint IS NULL OR i.category_id = $3)
			GROUP BY st.item_id, st.transaction_type, before_window`, start, end, categoryID)
		if err != nil {
			return err
		}
		movements, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Movement, error) {
			var m Movement
			var txType string
			var before bool
			if err := row.Scan(&m.ItemID, &txType, &before, &m.Quantity, &m.Amount); err != nil {
				return Movement{}, err
			}
			m.Type = ledger.TransactionType(txType)
			m.Date = start
			if before {
				m.Date = start.AddDate(0, 0, -1)
			}
			return m, nil
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return items, movements, nil
}

// Categories lists item category ids.
func (r *PostgresRepository) Categories(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM item_categories ORDER BY id`)
	if err != nil {
		return nil, db.Classify(err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	return ids, db.Classify(err)
}
