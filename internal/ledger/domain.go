// Package ledger is the append-only stock transaction log that every stock
// movement flows through.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType enumerates ledger movements.
type TransactionType string

const (
	// TypeOpening seeds stock carried in from before the ledger existed.
	TypeOpening TransactionType = "OPENING"
	// TypeReceipt increases stock.
	TypeReceipt TransactionType = "RECEIPT"
	// TypeIssue decreases stock.
	TypeIssue TransactionType = "ISSUE"
)

// Valid reports whether t is a known type.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeOpening, TypeReceipt, TypeIssue:
		return true
	}
	return false
}

// IsIncrease reports whether the movement adds to stock.
func (t TransactionType) IsIncrease() bool {
	return t == TypeOpening || t == TypeReceipt
}

// ParseTransactionType parses an upper-case type name.
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
	return t, nil
}

// Reference types identify the event that owns a ledger row.
const (
	RefDispatchItem     = "DISPATCH_ITEM"
	RefGRNItem          = "GRN_ITEM"
	RefMelting          = "MELTING"
	RefHeatTreatment    = "HEAT_TREATMENT"
	RefHeatTreatmentWIP = "HEAT_TREATMENT_WIP"
	RefManual           = "MANUAL"
)

// EventOwned reports whether rows of referenceType are written and reversed
// by an event service. Manual entries may not use these types.
func EventOwned(referenceType string) bool {
	switch referenceType {
	case RefDispatchItem, RefGRNItem, RefMelting, RefHeatTreatment, RefHeatTreatmentWIP:
		return true
	}
	return false
}

// Entry is one ledger row. Amount is the valuation at the time of the movement.
type Entry struct {
	ID            int64           `json:"id"`
	Date          time.Time       `json:"transactionDate"`
	Type          TransactionType `json:"transactionType"`
	ItemID        int64           `json:"itemId"`
	Quantity      decimal.Decimal `json:"quantity"`
	Rate          decimal.Decimal `json:"rate"`
	Amount        decimal.Decimal `json:"amount"`
	ReferenceType string          `json:"referenceType,omitempty"`
	ReferenceID   *int64          `json:"referenceId,omitempty"`
	Remarks       string          `json:"remarks,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// SignedQuantity returns the quantity with its stock direction applied.
func (e Entry) SignedQuantity() decimal.Decimal {
	if e.Type.IsIncrease() {
		return e.Quantity
	}
	return e.Quantity.Neg()
}

// Ref returns a pointer to id, for building entries.
func Ref(id int64) *int64 {
	return &id
}

// Store appends and removes ledger rows inside the caller's transaction.
type Store interface {
	InsertEntry(ctx context.Context, entry Entry) (int64, error)
	DeleteByReference(ctx context.Context, referenceType string, referenceID int64) (int64, error)
}

// RateSource reads historical rates inside the caller's transaction.
type RateSource interface {
	LatestReceiptRate(ctx context.Context, itemID int64, onOrBefore time.Time) (decimal.Decimal, bool, error)
	LatestOrderRate(ctx context.Context, itemID int64, onOrBefore time.Time) (decimal.Decimal, bool, error)
}

// ChangeNotifier is told after a transaction that changed the ledger commits.
type ChangeNotifier interface {
	LedgerChanged(ctx context.Context)
}

// CardEntry is a ledger row with the running balance after it.
type CardEntry struct {
	Entry
	BalanceQty decimal.Decimal `json:"balanceQty"`
}

// StockCard lists an item's movements for a window.
type StockCard struct {
	ItemID     int64           `json:"itemId"`
	StartDate  time.Time       `json:"startDate"`
	EndDate    time.Time       `json:"endDate"`
	OpeningQty decimal.Decimal `json:"openingQty"`
	ClosingQty decimal.Decimal `json:"closingQty"`
	Entries    []CardEntry     `json:"entries"`
}

var (
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("ledger: quantity must be greater than zero")
	// ErrInvalidRate indicates a negative rate.
	ErrInvalidRate = errors.New("ledger: rate must not be negative")
	// ErrUnknownType indicates an unsupported transaction type.
	ErrUnknownType = errors.New("ledger: unknown transaction type")
)
