// Package dispatch records shipments against order lines. Every dispatched
// line issues stock from the ledger in the same transaction, and no order
// line is ever dispatched beyond its ordered quantity.
package dispatch

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Dispatch is one shipment against an order.
type Dispatch struct {
	ID            int64     `json:"id"`
	OrderID       int64     `json:"orderId"`
	DispatchDate  time.Time `json:"dispatchDate"`
	TransporterID *int64    `json:"transporterId,omitempty"`
	Remarks       string    `json:"remarks,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	Items         []Item    `json:"items"`
}

// Item is one dispatched line. ItemID and Rate come from the order line and
// are what the ledger ISSUE is recorded with.
type Item struct {
	ID                 int64           `json:"id"`
	DispatchID         int64           `json:"dispatchId"`
	OrderItemID        int64           `json:"orderItemId"`
	ItemID             int64           `json:"itemId"`
	QuantityDispatched decimal.Decimal `json:"quantityDispatched"`
	Rate               decimal.Decimal `json:"rate"`
}

// OrderLine is a locked order line with the quantity dispatched against it
// by other dispatches.
type OrderLine struct {
	ID         int64
	OrderID    int64
	ItemID     int64
	Quantity   decimal.Decimal
	Rate       decimal.Decimal
	Dispatched decimal.Decimal
}

// Balance is what may still be dispatched on the line.
func (l OrderLine) Balance() decimal.Decimal {
	return l.Quantity.Sub(l.Dispatched)
}

// LineInput requests a quantity against one order line.
type LineInput struct {
	OrderItemID int64
	Quantity    decimal.Decimal
}

// CreateInput describes a new dispatch.
type CreateInput struct {
	OrderID       int64
	DispatchDate  time.Time
	TransporterID *int64
	Remarks       string
	Items         []LineInput
}

// UpdateInput replaces a dispatch's lines. Nil header fields keep their value.
type UpdateInput struct {
	DispatchDate  *time.Time
	TransporterID *int64
	Remarks       *string
	Items         []LineInput
}

// Domain errors for dispatches.
var (
	ErrNoItems          = errors.New("dispatch requires at least one item")
	ErrInvalidQuantity  = errors.New("quantity dispatched must be greater than zero")
	ErrOverDispatch     = errors.New("quantity exceeds the order item balance")
	ErrForeignOrderItem = errors.New("order item does not belong to the dispatch order")
)
