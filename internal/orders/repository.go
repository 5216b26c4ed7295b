package orders

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/steelworks-erp/steelworks/internal/platform/db"
	"github.com/steelworks-erp/steelworks/internal/shared"
)

// Repository persists orders in PostgreSQL.
type Repository struct {
	pool        *pgxpool.Pool
	idem        *shared.IdempotencyStore
	lockTimeout time.Duration
}

// NewRepository constructs Repository. lockTimeout bounds row-lock waits on
// write paths.
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

// WithTx runs fn inside a ReadCommitted write transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxOptions(ctx, r.pool, db.LockingTx(), func(tx pgx.Tx) error {
		if err := db.SetLockTimeout(ctx, tx, r.lockTimeout); err != nil {
			return err
		}
		return fn(ctx, &txRepo{tx: tx, idem: r.idem})
	})
}

// GetOrder loads the header and lines with dispatched totals from one snapshot.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	var order Order
	err := db.WithTxOptions(ctx, r.pool, db.SnapshotTx(), func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `SELECT id, customer_id, order_date, created_at FROM orders WHERE id = $1`, id).
			Scan(&order.ID, &order.CustomerID, &order.OrderDate, &order.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.ErrNotFound
		}
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT oi.id, oi.order_id, oi.item_id, oi.quantity, oi.rate, oi.amount,
				oi.cgst, oi.sgst, oi.igst, oi.total_amount,
				COALESCE((SELECT SUM(di.quantity_dispatched) FROM dispatch_items di WHERE di.order_item_id = oi.id), 0)
			FROM order_items oi
			WHERE oi.order_id = $1
			ORDER BY oi.id`, id)
		if err != nil {
			return err
		}
		order.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (OrderItem, error) {
			var it OrderItem
			err := row.Scan(&it.ID, &it.OrderID, &it.ItemID, &it.Quantity, &it.Rate, &it.Amount,
				&it.CGST, &it.SGST, &it.IGST, &it.TotalAmount, &it.DispatchedQty)
			it.BalanceQty = it.Quantity.Sub(it.DispatchedQty)
			return it, err
		})
		return err
	})
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

// ListItemBalances returns each line's ordered, dispatched and balance quantity.
func (r *Repository) ListItemBalances(ctx context.Context, orderID int64) ([]ItemBalance, error) {
	var balances []ItemBalance
	err := db.WithTxOptions(ctx, r.pool, db.SnapshotTx(), func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return shared.ErrNotFound
		}
		rows, err := tx.Query(ctx, `SELECT oi.id, oi.item_id, oi.quantity, COALESCE(SUM(di.quantity_dispatched), 0)
			FROM order_items oi
			LEFT JOIN dispatch_items di ON di.order_item_id = oi.id
			WHERE oi.order_id = $1
			GROUP BY oi.id, oi.item_id, oi.quantity
			ORDER BY oi.id`, orderID)
		if err != nil {
			return err
		}
		balances, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (ItemBalance, error) {
			var b ItemBalance
			err := row.Scan(&b.OrderItemID, &b.ItemID, &b.OrderedQty, &b.DispatchedQty)
			b.BalanceQty = b.OrderedQty.Sub(b.DispatchedQty)
			return b, err
		})
		return err
	})
	return balances, err
}

func (t *txRepo) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	var c Customer
	err := t.tx.QueryRow(ctx, `SELECT id, name, COALESCE(state, '') FROM customers WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.State)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, shared.ErrNotFound
	}
	return c, err
}

func (t *txRepo) GetOrderCustomer(ctx context.Context, orderID int64) (Customer, error) {
	var c Customer
	err := t.tx.QueryRow(ctx, `SELECT c.id, c.name, COALESCE(c.state, '')
		FROM orders o JOIN customers c ON c.id = o.customer_id
		WHERE o.id = $1`, orderID).Scan(&c.ID, &c.Name, &c.State)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, shared.ErrNotFound
	}
	return c, err
}

func (t *txRepo) GetItems(ctx context.Context, ids []int64) (map[int64]Item, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, name, gst_rate FROM items WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Item, error) {
		var it Item
		err := row.Scan(&it.ID, &it.Name, &it.GSTRate)
		return it, err
	})
	if err != nil {
		return nil, err
	}
	out := make(map[int64]Item, len(list))
	for _, it := range list {
		out[it.ID] = it
	}
	return out, nil
}

func (t *txRepo) InsertOrder(ctx context.Context, order Order) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO orders (customer_id, order_date, created_at)
		VALUES ($1, $2, NOW()) RETURNING id`, order.CustomerID, order.OrderDate).Scan(&id)
	return id, err
}

func (t *txRepo) InsertOrderItem(ctx context.Context, item OrderItem) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO order_items
		(order_id, item_id, quantity, rate, amount, cgst, sgst, igst, total_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING id`,
		item.OrderID, item.ItemID, item.Quantity, item.Rate, item.Amount, item.CGST, item.SGST, item.IGST, item.TotalAmount,
	).Scan(&id)
	return id, err
}

func (t *txRepo) LockOrderItem(ctx context.Context, orderID, orderItemID int64) (OrderItem, error) {
	var it OrderItem
	err := t.tx.QueryRow(ctx, `SELECT id, order_id, item_id, quantity, rate, amount, cgst, sgst, igst, total_amount
		FROM order_items WHERE id = $1 AND order_id = $2 FOR UPDATE`, orderItemID, orderID).
		Scan(&it.ID, &it.OrderID, &it.ItemID, &it.Quantity, &it.Rate, &it.Amount, &it.CGST, &it.SGST, &it.IGST, &it.TotalAmount)
	if errors.Is(err, pgx.ErrNoRows) {
		return OrderItem{}, shared.ErrNotFound
	}
	return it, err
}

func (t *txRepo) DispatchedQuantity(ctx context.Context, orderItemID int64) (decimal.Decimal, error) {
	var qty decimal.Decimal
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(quantity_dispatched), 0) FROM dispatch_items WHERE order_item_id = $1`,
		orderItemID).Scan(&qty)
	return qty, err
}

func (t *txRepo) UpdateOrderItem(ctx context.Context, item OrderItem) error {
	_, err := t.tx.Exec(ctx, `UPDATE order_items
		SET quantity = $2, rate = $3, amount = $4, cgst = $5, sgst = $6, igst = $7, total_amount = $8, updated_at = NOW()
		WHERE id = $1`,
		item.ID, item.Quantity, item.Rate, item.Amount, item.CGST, item.SGST, item.IGST, item.TotalAmount)
	return err
}

func (t *txRepo) DeleteOrderItem(ctx context.Context, orderItemID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM order_items WHERE id = $1`, orderItemID)
	return err
}

func (t *txRepo) CountOrderItems(ctx context.Context, orderID int64) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM order_items WHERE order_id = $1`, orderID).Scan(&n)
	return n, err
}

func (t *txRepo) ClaimIdempotency(ctx context.Context, claim shared.IdempotencyClaim) error {
	return t.idem.Claim(ctx, t.tx, claim)
}

func (t *txRepo) CompleteIdempotency(ctx context.Context, claim shared.IdempotencyClaim, resourceID int64) error {
	return t.idem.Complete(ctx, t.tx, claim, resourceID)
}
