package orders

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/steelworks-erp/steelworks/internal/shared"
)

type memoryRepo struct {
	mu         sync.Mutex
	customers  map[int64]Customer
	items      map[int64]Item
	orders     map[int64]Order
	lines      map[int64]OrderItem
	dispatched map[int64]decimal.Decimal
	claims     map[string]claimRow
	nextID     int64
}

type claimRow struct {
	fingerprint string
	resourceID  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		customers:  map[int64]Customer{},
		items:      map[int64]Item{},
		orders:     map[int64]Order{},
		lines:      map[int64]OrderItem{},
		dispatched: map[int64]decimal.Decimal{},
		claims:     map[string]claimRow{},
	}
}

func (m *memoryRepo) snapshot() memoryRepo {
	cp := memoryRepo{
		orders: make(map[int64]Order, len(m.orders)),
		lines:  make(map[int64]OrderItem, len(m.lines)),
		claims: make(map[string]claimRow, len(m.claims)),
		nextID: m.nextID,
	}
	for k, v := range m.orders {
		cp.orders[k] = v
	}
	for k, v := range m.lines {
		cp.lines[k] = v
	}
	for k, v := range m.claims {
		cp.claims[k] = v
	}
	return cp
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := m.snapshot()
	if err := fn(ctx, m); err != nil {
		m.orders, m.lines, m.claims, m.nextID = saved.orders, saved.lines, saved.claims, saved.nextID
		return err
	}
	return nil
}

func (m *memoryRepo) GetOrder(_ context.Context, id int64) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return Order{}, shared.ErrNotFound
	}
	order.Items = nil
	for _, line := range m.sortedLines(id) {
		line.DispatchedQty = m.dispatched[line.ID]
		line.BalanceQty = line.Quantity.Sub(line.DispatchedQty)
		order.Items = append(order.Items, line)
	}
	return order, nil
}

func (m *memoryRepo) ListItemBalances(_ context.Context, orderID int64) ([]ItemBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[orderID]; !ok {
		return nil, shared.ErrNotFound
	}
	var out []ItemBalance
	for _, line := range m.sortedLines(orderID) {
		d := m.dispatched[line.ID]
		out = append(out, ItemBalance{OrderItemID: line.ID, ItemID: line.ItemID, OrderedQty: line.Quantity, DispatchedQty: d, BalanceQty: line.Quantity.Sub(d)})
	}
	return out, nil
}

func (m *memoryRepo) sortedLines(orderID int64) []OrderItem {
	var out []OrderItem
	for _, l := range m.lines {
		if l.OrderID == orderID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memoryRepo) GetCustomer(_ context.Context, id int64) (Customer, error) {
	c, ok := m.customers[id]
	if !ok {
		return Customer{}, shared.ErrNotFound
	}
	return c, nil
}

func (m *memoryRepo) GetOrderCustomer(ctx context.Context, orderID int64) (Customer, error) {
	o, ok := m.orders[orderID]
	if !ok {
		return Customer{}, shared.ErrNotFound
	}
	return m.GetCustomer(ctx, o.CustomerID)
}

func (m *memoryRepo) GetItems(_ context.Context, ids []int64) (map[int64]Item, error) {
	out := map[int64]Item{}
	for _, id := range ids {
		if it, ok := m.items[id]; ok {
			out[id] = it
		}
	}
	return out, nil
}

func (m *memoryRepo) InsertOrder(_ context.Context, order Order) (int64, error) {
	m.nextID++
	order.ID = m.nextID
	order.Items = nil
	order.CreatedAt = time.Now()
	m.orders[order.ID] = order
	return order.ID, nil
}

func (m *memoryRepo) InsertOrderItem(_ context.Context, item OrderItem) (int64, error) {
	m.nextID++
	item.ID = m.nextID
	m.lines[item.ID] = item
	return item.ID, nil
}

func (m *memoryRepo) LockOrderItem(_ context.Context, orderID, orderItemID int64) (OrderItem, error) {
	l, ok := m.lines[orderItemID]
	if !ok || l.OrderID != orderID {
		return OrderItem{}, shared.ErrNotFound
	}
	return l, nil
}

func (m *memoryRepo) DispatchedQuantity(_ context.Context, orderItemID int64) (decimal.Decimal, error) {
	return m.dispatched[orderItemID], nil
}

func (m *memoryRepo) UpdateOrderItem(_ context.Context, item OrderItem) error {
	m.lines[item.ID] = item
	return nil
}

func (m *memoryRepo) DeleteOrderItem(_ context.Context, orderItemID int64) error {
	delete(m.lines, orderItemID)
	return nil
}

func (m *memoryRepo) CountOrderItems(_ context.Context, orderID int64) (int, error) {
	return len(m.sortedLines(orderID)), nil
}

func (m *memoryRepo) ClaimIdempotency(_ context.Context, claim shared.IdempotencyClaim) error {
	if claim.IsZero() {
		return nil
	}
	row, ok := m.claims[claim.Key]
	if !ok {
		m.claims[claim.Key] = claimRow{fingerprint: claim.Fingerprint}
		return nil
	}
	if row.fingerprint != claim.Fingerprint {
		return shared.ErrIdempotencyConflict
	}
	return &shared.IdempotencyReplayError{Module: claim.Module, ResourceID: row.resourceID}
}

func (m *memoryRepo) CompleteIdempotency(_ context.Context, claim shared.IdempotencyClaim, resourceID int64) error {
	if claim.IsZero() {
		return nil
	}
	row := m.claims[claim.Key]
	row.resourceID = resourceID
	m.claims[claim.Key] = row
	return nil
}

type recordingAudit struct{ logs []shared.AuditLog }

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func seededRepo() *memoryRepo {
	repo := newMemoryRepo()
	repo.customers[1] = Customer{ID: 1, Name: "Kaveri Castings", State: "Karnataka"}
	repo.customers[2] = Customer{ID: 2, Name: "Deccan Forge", State: "Maharashtra"}
	repo.customers[3] = Customer{ID: 3, Name: "Walk-in", State: " "}
	repo.items[10] = Item{ID: 10, Name: "Shot S-230", GSTRate: dec("18")}
	repo.items[11] = Item{ID: 11, Name: "Grit G-40", GSTRate: dec("12")}
	return repo
}
