package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/steelworks-erp/steelworks/internal/ledger"
	"github.com/steelworks-erp/steelworks/internal/shared"
)

// memoryRepo models row locks held until the end of the transaction and
// undoes writes on rollback. Writes are otherwise visible immediately, so
// any balance read taken before the line lock would race.
type memoryRepo struct {
	mu           sync.Mutex
	rowLocks     map[string]*sync.Mutex
	orders       map[int64]bool
	lines        map[int64]OrderLine
	transporters map[int64]bool
	dispatches   map[int64]Dispatch
	items        map[int64]Item
	entries      map[int64]ledger.Entry
	claims       map[string]int64
	nextID       int64
	// readDelay widens the window between taking locks and reading balances.
	readDelay time.Duration
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		rowLocks:     map[string]*sync.Mutex{},
		orders:       map[int64]bool{},
		lines:        map[int64]OrderLine{},
		transporters: map[int64]bool{},
		dispatches:   map[int64]Dispatch{},
		items:        map[int64]Item{},
		entries:      map[int64]ledger.Entry{},
		claims:       map[string]int64{},
	}
}

type memoryTx struct {
	repo *memoryRepo
	held map[string]*sync.Mutex
	undo []func()
}

var _ TxRepository = (*memoryTx)(nil)

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{repo: m, held: map[string]*sync.Mutex{}}
	err := fn(ctx, tx)
	if err != nil {
		m.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		m.mu.Unlock()
	}
	for _, l := range tx.held {
		l.Unlock()
	}
	return err
}

func (m *memoryRepo) GetDispatch(_ context.Context, id int64) (Dispatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked(id)
}

func (m *memoryRepo) loadLocked(id int64) (Dispatch, error) {
	d, ok := m.dispatches[id]
	if !ok {
		return Dispatch{}, shared.ErrNotFound
	}
	d.Items = nil
	for _, it := range m.items {
		if it.DispatchID == id {
			d.Items = append(d.Items, it)
		}
	}
	sort.Slice(d.Items, func(i, j int) bool { return d.Items[i].ID < d.Items[j].ID })
	return d, nil
}

func (m *memoryRepo) dispatchedQty(orderItemID int64) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, it := range m.items {
		if it.OrderItemID == orderItemID {
			total = total.Add(it.QuantityDispatched)
		}
	}
	return total
}

func (m *memoryRepo) ledgerFor(dispatchItemIDs ...int64) []ledger.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[int64]bool{}
	for _, id := range dispatchItemIDs {
		want[id] = true
	}
	var out []ledger.Entry
	for _, e := range m.entries {
		if e.ReferenceType == ledger.RefDispatchItem && e.ReferenceID != nil && (len(want) == 0 || want[*e.ReferenceID]) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *memoryTx) lock(key string) {
	if _, ok := t.held[key]; ok {
		return
	}
	t.repo.mu.Lock()
	l, ok := t.repo.rowLocks[key]
	if !ok {
		l = &sync.Mutex{}
		t.repo.rowLocks[key] = l
	}
	t.repo.mu.Unlock()
	l.Lock()
	t.held[key] = l
}

func (t *memoryTx) nextID() int64 {
	t.repo.nextID++
	return t.repo.nextID
}

func (t *memoryTx) LockOrder(_ context.Context, orderID int64) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	if !t.repo.orders[orderID] {
		return shared.ErrNotFound
	}
	return nil
}

func (t *memoryTx) LockDispatch(_ context.Context, id int64) (Dispatch, error) {
	t.lock(fmt.Sprintf("dispatch:%d", id))
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	return t.repo.loadLocked(id)
}

func (t *memoryTx) LockOrderLines(_ context.Context, ids []int64, excludeDispatchID int64) (map[int64]OrderLine, error) {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for _, id := range sorted {
		t.lock(fmt.Sprintf("line:%d", id))
	}
	if t.repo.readDelay > 0 {
		time.Sleep(t.repo.readDelay)
	}
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	out := map[int64]OrderLine{}
	for _, id := range sorted {
		line, ok := t.repo.lines[id]
		if !ok {
			continue
		}
		line.Dispatched = decimal.Zero
		for _, it := range t.repo.items {
			if it.OrderItemID == id && it.DispatchID != excludeDispatchID {
				line.Dispatched = line.Dispatched.Add(it.QuantityDispatched)
			}
		}
		out[id] = line
	}
	return out, nil
}

func (t *memoryTx) TransporterExists(_ context.Context, id int64) (bool, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	return t.repo.transporters[id], nil
}

func (t *memoryTx) InsertDispatch(_ context.Context, d Dispatch) (int64, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	d.ID = t.nextID()
	d.Items = nil
	t.repo.dispatches[d.ID] = d
	t.undo = append(t.undo, func() { delete(t.repo.dispatches, d.ID) })
	return d.ID, nil
}

func (t *memoryTx) UpdateDispatchHeader(_ context.Context, d Dispatch) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	prev := t.repo.dispatches[d.ID]
	d.Items = nil
	t.repo.dispatches[d.ID] = d
	t.undo = append(t.undo, func() { t.repo.dispatches[d.ID] = prev })
	return nil
}

func (t *memoryTx) InsertItem(_ context.Context, item Item) (int64, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	item.ID = t.nextID()
	t.repo.items[item.ID] = item
	t.undo = append(t.undo, func() { delete(t.repo.items, item.ID) })
	return item.ID, nil
}

func (t *memoryTx) DeleteItems(_ context.Context, dispatchID int64) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for id, it := range t.repo.items {
		if it.DispatchID == dispatchID {
			removed := it
			delete(t.repo.items, id)
			t.undo = append(t.undo, func() { t.repo.items[removed.ID] = removed })
		}
	}
	return nil
}

func (t *memoryTx) DeleteDispatch(_ context.Context, id int64) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	prev, ok := t.repo.dispatches[id]
	if !ok {
		return nil
	}
	delete(t.repo.dispatches, id)
	t.undo = append(t.undo, func() { t.repo.dispatches[id] = prev })
	return nil
}

func (t *memoryTx) LedgerStore() ledger.Store { return t }

func (t *memoryTx) InsertEntry(_ context.Context, e ledger.Entry) (int64, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	e.ID = t.nextID()
	t.repo.entries[e.ID] = e
	t.undo = append(t.undo, func() { delete(t.repo.entries, e.ID) })
	return e.ID, nil
}

func (t *memoryTx) DeleteByReference(_ context.Context, referenceType string, referenceID int64) (int64, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	var n int64
	for id, e := range t.repo.entries {
		if e.ReferenceType == referenceType && e.ReferenceID != nil && *e.ReferenceID == referenceID {
			removed := e
			delete(t.repo.entries, id)
			t.undo = append(t.undo, func() { t.repo.entries[removed.ID] = removed })
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) ClaimIdempotency(_ context.Context, claim shared.IdempotencyClaim) error {
	if claim.IsZero() {
		return nil
	}
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	if id, ok := t.repo.claims[claim.Fingerprint]; ok {
		return &shared.IdempotencyReplayError{Module: claim.Module, ResourceID: id}
	}
	t.repo.claims[claim.Fingerprint] = 0
	t.undo = append(t.undo, func() { delete(t.repo.claims, claim.Fingerprint) })
	return nil
}

func (t *memoryTx) CompleteIdempotency(_ context.Context, claim shared.IdempotencyClaim, resourceID int64) error {
	if claim.IsZero() {
		return nil
	}
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	t.repo.claims[claim.Fingerprint] = resourceID
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

// seededRepo holds order 1 with line 100 (item 7, 500 @ 10) and line 101
// (item 8, 40 @ 55.5), order 2 with line 200, and transporter 3.
func seededRepo() *memoryRepo {
	repo := newMemoryRepo()
	repo.nextID = 1000
	repo.orders[1] = true
	repo.orders[2] = true
	repo.lines[100] = OrderLine{ID: 100, OrderID: 1, ItemID: 7, Quantity: dec("500"), Rate: dec("10")}
	repo.lines[101] = OrderLine{ID: 101, OrderID: 1, ItemID: 8, Quantity: dec("40"), Rate: dec("55.5")}
	repo.lines[200] = OrderLine{ID: 200, OrderID: 2, ItemID: 7, Quantity: dec("10"), Rate: dec("11")}
	repo.transporters[3] = true
	return repo
}
