package ledger

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/steelworks-erp/steelworks/internal/shared"
)

// Ledger validates and appends stock movements. It never opens a transaction:
// every call runs against the Store of the caller's transaction.
type Ledger struct {
	metrics *Metrics
}

// New builds a Ledger. metrics may be nil.
func New(metrics *Metrics) *Ledger {
	return &Ledger{metrics: metrics}
}

// Record validates entry, derives its amount and appends it.
func (l *Ledger) Record(ctx context.Context, store Store, entry Entry) (Entry, error) {
	if !entry.Type.Valid() {
		return Entry{}, shared.InvalidField("transactionType", fmt.Errorf("%w: %q", ErrUnknownType, entry.Type))
	}
	if entry.ItemID <= 0 {
		return Entry{}, shared.Validation("itemId", "is required")
	}
	if entry.Date.IsZero() {
		return Entry{}, shared.Validation("transactionDate", "is required")
	}
	if !entry.Quantity.IsPositive() {
		return Entry{}, shared.InvalidField("quantity", ErrInvalidQuantity)
	}
	if entry.Rate.IsNegative() {
		return Entry{}, shared.InvalidField("rate", ErrInvalidRate)
	}
	entry.Amount = entry.Quantity.Mul(entry.Rate).Round(2)
	id, err := store.InsertEntry(ctx, entry)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: insert entry: %w", err)
	}
	entry.ID = id
	l.metrics.recorded(entry.Type)
	return entry, nil
}

// ReverseByReference removes every row owned by the reference and returns how
// many were removed.
func (l *Ledger) ReverseByReference(ctx context.Context, store Store, referenceType string, referenceID int64) (int64, error) {
	if referenceType == "" || referenceID <= 0 {
		return 0, shared.Validation("reference", "type and id are required")
	}
	n, err := store.DeleteByReference(ctx, referenceType, referenceID)
	if err != nil {
		return 0, fmt.Errorf("ledger: reverse %s %d: %w", referenceType, referenceID, err)
	}
	l.metrics.reversed(referenceType, n)
	return n, nil
}

// Metrics counts ledger writes.
type Metrics struct {
	entries   *prometheus.CounterVec
	reversals *prometheus.CounterVec
}

// NewMetrics registers ledger collectors on registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	entries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "steelworks_ledger_entries_total",
		Help: "Stock ledger rows appended, by transaction type.",
	}, []string{"type"})
	reversals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "steelworks_ledger_reversals_total",
		Help: "Stock ledger rows removed by reference reversal.",
	}, []string{"reference_type"})
	registerer.MustRegister(entries, reversals)
	return &Metrics{entries: entries, reversals: reversals}
}

func (m *Metrics) recorded(t TransactionType) {
	if m == nil {
		return
	}
	m.entries.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) reversed(referenceType string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.reversals.WithLabelValues(referenceType).Add(float64(n))
}
