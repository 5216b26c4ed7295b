package production

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/steelworks-erp/steelworks/internal/ledger"
	"github.com/steelworks-erp/steelworks/internal/shared"
)

type memoryRepo struct {
	mu           sync.Mutex
	suppliers    map[int64]bool
	items        map[int64]bool
	grns         map[int64]GRN
	meltings     map[int64]Melting
	treatments   map[int64]HeatTreatment
	entries      []ledger.Entry
	orderRates   map[int64]decimal.Decimal
	consumptions int
	nextID       int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		suppliers:  map[int64]bool{5: true},
		items:      map[int64]bool{1: true, 2: true, 3: true, 4: true},
		grns:       map[int64]GRN{},
		meltings:   map[int64]Melting{},
		treatments: map[int64]HeatTreatment{},
		orderRates: map[int64]decimal.Decimal{},
	}
}

type memoryState struct {
	grns         map[int64]GRN
	meltings     map[int64]Melting
	treatments   map[int64]HeatTreatment
	entries      []ledger.Entry
	consumptions int
	nextID       int64
}

func (m *memoryRepo) save() memoryState {
	s := memoryState{
		grns:         map[int64]GRN{},
		meltings:     map[int64]Melting{},
		treatments:   map[int64]HeatTreatment{},
		entries:      append([]ledger.Entry(nil), m.entries...),
		consumptions: m.consumptions,
		nextID:       m.nextID,
	}
	for k, v := range m.grns {
		s.grns[k] = v
	}
	for k, v := range m.meltings {
		s.meltings[k] = v
	}
	for k, v := range m.treatments {
		s.treatments[k] = v
	}
	return s
}

func (m *memoryRepo) restore(s memoryState) {
	m.grns, m.meltings, m.treatments = s.grns, s.meltings, s.treatments
	m.entries, m.consumptions, m.nextID = s.entries, s.consumptions, s.nextID
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := m.save()
	if err := fn(ctx, m); err != nil {
		m.restore(saved)
		return err
	}
	return nil
}

func (m *memoryRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memoryRepo) SupplierExists(_ context.Context, id int64) (bool, error) {
	return m.suppliers[id], nil
}

func (m *memoryRepo) MissingItems(_ context.Context, ids []int64) ([]int64, error) {
	var missing []int64
	for _, id := range ids {
		if !m.items[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (m *memoryRepo) InsertGRN(_ context.Context, grn GRN) (int64, error) {
	grn.ID = m.id()
	m.grns[grn.ID] = grn
	return grn.ID, nil
}

func (m *memoryRepo) InsertGRNLine(_ context.Context, line GRNLine) (int64, error) {
	line.ID = m.id()
	grn := m.grns[line.GRNID]
	grn.Lines = append(append([]GRNLine(nil), grn.Lines...), line)
	m.grns[line.GRNID] = grn
	return line.ID, nil
}

func (m *memoryRepo) LockGRN(_ context.Context, id int64) (GRN, error) {
	grn, ok := m.grns[id]
	if !ok {
		return GRN{}, shared.ErrNotFound
	}
	return grn, nil
}

func (m *memoryRepo) DeleteGRN(_ context.Context, id int64) error {
	delete(m.grns, id)
	return nil
}

func (m *memoryRepo) InsertMelting(_ context.Context, rec Melting) (int64, error) {
	rec.ID = m.id()
	m.meltings[rec.ID] = rec
	return rec.ID, nil
}

func (m *memoryRepo) InsertConsumption(context.Context, int64, ConsumptionInput) error {
	m.consumptions++
	return nil
}

func (m *memoryRepo) LockMelting(_ context.Context, id int64) error {
	if _, ok := m.meltings[id]; !ok {
		return shared.ErrNotFound
	}
	return nil
}

func (m *memoryRepo) DeleteMelting(_ context.Context, id int64) error {
	delete(m.meltings, id)
	return nil
}

func (m *memoryRepo) InsertHeatTreatment(_ context.Context, ht HeatTreatment) (int64, error) {
	ht.ID = m.id()
	m.treatments[ht.ID] = ht
	return ht.ID, nil
}

func (m *memoryRepo) LockHeatTreatment(_ context.Context, id int64) error {
	if _, ok := m.treatments[id]; !ok {
		return shared.ErrNotFound
	}
	return nil
}

func (m *memoryRepo) DeleteHeatTreatment(_ context.Context, id int64) error {
	delete(m.treatments, id)
	return nil
}

func (m *memoryRepo) LedgerStore() ledger.Store { return m }
func (m *memoryRepo) Rates() ledger.RateSource  { return m }

func (m *memoryRepo) InsertEntry(_ context.Context, e ledger.Entry) (int64, error) {
	e.ID = m.id()
	m.entries = append(m.entries, e)
	return e.ID, nil
}

func (m *memoryRepo) DeleteByReference(_ context.Context, refType string, refID int64) (int64, error) {
	kept := m.entries[:0:0]
	var n int64
	for _, e := range m.entries {
		if e.ReferenceType == refType && e.ReferenceID != nil && *e.ReferenceID == refID {
			n++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return n, nil
}

func (m *memoryRepo) LatestReceiptRate(_ context.Context, itemID int64, onOrBefore time.Time) (decimal.Decimal, bool, error) {
	candidates := make([]ledger.Entry, 0)
	for _, e := range m.entries {
		if e.ItemID == itemID && e.Type == ledger.TypeReceipt && !e.Date.After(onOrBefore) {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return decimal.Zero, false, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].Date.Equal(candidates[j].Date) {
			return candidates[i].Date.Before(candidates[j].Date)
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates[len(candidates)-1].Rate, true, nil
}

func (m *memoryRepo) LatestOrderRate(_ context.Context, itemID int64, _ time.Time) (decimal.Decimal, bool, error) {
	rate, ok := m.orderRates[itemID]
	return rate, ok, nil
}

func (m *memoryRepo) ledgerRows(refType string) []ledger.Entry {
	var out []ledger.Entry
	for _, e := range m.entries {
		if e.ReferenceType == refType {
			out = append(out, e)
		}
	}
	return out
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}
