package ledger

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/steelworks-erp/steelworks/internal/shared"
)

type memoryStore struct {
	nextID  int64
	entries []Entry
	items   map[int64]bool
}

func newMemoryStore(items ...int64) *memoryStore {
	s := &memoryStore{items: map[int64]bool{}}
	for _, id := range items {
		s.items[id] = true
	}
	return s
}

func (s *memoryStore) InsertEntry(ctx context.Context, e Entry) (int64, error) {
	s.nextID++
	e.ID = s.nextID
	s.entries = append(s.entries, e)
	return e.ID, nil
}

func (s *memoryStore) DeleteByReference(ctx context.Context, refType string, refID int64) (int64, error) {
	kept := s.entries[:0]
	var n int64
	for _, e := range s.entries {
		if e.ReferenceType == refType && e.ReferenceID != nil && *e.ReferenceID == refID {
			n++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return n, nil
}

func (s *memoryStore) ItemExists(ctx context.Context, itemID int64) (bool, error) {
	return s.items[itemID], nil
}

func (s *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := append([]Entry(nil), s.entries...)
	next := s.nextID
	if err := fn(ctx, s); err != nil {
		s.entries, s.nextID = snapshot, next
		return err
	}
	return nil
}

func (s *memoryStore) StockCard(ctx context.Context, itemID int64, start, end time.Time) (decimal.Decimal, []Entry, error) {
	opening := decimal.Zero
	var window []Entry
	for _, e := range s.entries {
		if e.ItemID != itemID {
			continue
		}
		switch {
		case e.Date.Before(start):
			opening = opening.Add(e.SignedQuantity())
		case !e.Date.After(end):
			window = append(window, e)
		}
	}
	sort.SliceStable(window, func(i, j int) bool {
		if !window[i].Date.Equal(window[j].Date) {
			return window[i].Date.Before(window[j].Date)
		}
		return window[i].ID < window[j].ID
	})
	return opening, window, nil
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRecordComputesAmount(t *testing.T) {
	store := newMemoryStore()
	l := New(nil)

	e, err := l.Record(context.Background(), store, Entry{
		Date: day("2024-04-01"), Type: TypeReceipt, ItemID: 1,
		Quantity: dec("12.345"), Rate: dec("22.5"), ReferenceType: RefGRNItem, ReferenceID: Ref(9),
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), e.ID)
	require.True(t, dec("277.76").Equal(e.Amount), e.Amount.String())
	require.Len(t, store.entries, 1)
}

func TestRecordRejectsInvalidEntries(t *testing.T) {
	store := newMemoryStore()
	l := New(nil)
	base := Entry{Date: day("2024-04-01"), Type: TypeIssue, ItemID: 1, Quantity: dec("1"), Rate: dec("1")}

	cases := map[string]struct {
		mutate func(*Entry)
		target error
	}{
		"zero quantity":     {func(e *Entry) { e.Quantity = decimal.Zero }, ErrInvalidQuantity},
		"negative quantity": {func(e *Entry) { e.Quantity = dec("-3") }, ErrInvalidQuantity},
		"negative rate":     {func(e *Entry) { e.Rate = dec("-0.01") }, ErrInvalidRate},
		"unknown type":      {func(e *Entry) { e.Type = "ADJUST" }, ErrUnknownType},
		"missing item":      {func(e *Entry) { e.ItemID = 0 }, shared.ErrValidation},
		"missing date":      {func(e *Entry) { e.Date = time.Time{} }, shared.ErrValidation},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			e := base
			tc.mutate(&e)
			_, err := l.Record(context.Background(), store, e)
			require.ErrorIs(t, err, tc.target)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
	require.Empty(t, store.entries)
}

func TestRecordAllowsZeroRate(t *testing.T) {
	store := newMemoryStore()
	e, err := New(nil).Record(context.Background(), store, Entry{Date: day("2024-04-01"), Type: TypeReceipt, ItemID: 1, Quantity: dec("5"), Rate: decimal.Zero})
	require.NoError(t, err)
	require.True(t, e.Amount.IsZero())
}

func TestReverseByReference(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	registry := prometheus.NewRegistry()
	l := New(NewMetrics(registry))

	for _, ref := range []int64{1, 1, 2} {
		_, err := l.Record(ctx, store, Entry{Date: day("2024-04-02"), Type: TypeIssue, ItemID: 3, Quantity: dec("1"), Rate: dec("10"), ReferenceType: RefDispatchItem, ReferenceID: Ref(ref)})
		require.NoError(t, err)
	}

	n, err := l.ReverseByReference(ctx, store, RefDispatchItem, 1)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
	require.Len(t, store.entries, 1)

	n, err = l.ReverseByReference(ctx, store, RefGRNItem, 2)
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = l.ReverseByReference(ctx, store, "", 2)
	require.ErrorIs(t, err, shared.ErrValidation)

	require.Equal(t, 3.0, testutil.ToFloat64(l.metrics.entries.WithLabelValues(string(TypeIssue))))
	require.Equal(t, 2.0, testutil.ToFloat64(l.metrics.reversals.WithLabelValues(RefDispatchItem)))
}

func TestParseTransactionType(t *testing.T) {
	tt, err := ParseTransactionType("OPENING")
	require.NoError(t, err)
	require.True(t, tt.IsIncrease())
	require.False(t, TypeIssue.IsIncrease())
	_, err = ParseTransactionType("opening")
	require.ErrorIs(t, err, ErrUnknownType)
}
