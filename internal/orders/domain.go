// Package orders owns customer orders, their lines and the derived
// dispatched/balance view of each line.
package orders

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Order is a customer order header with its lines.
type Order struct {
	ID         int64       `json:"id"`
	CustomerID int64       `json:"customerId"`
	OrderDate  time.Time   `json:"orderDate"`
	CreatedAt  time.Time   `json:"createdAt"`
	Items      []OrderItem `json:"items"`
}

// Totals sums the line amounts and taxes.
func (o Order) Totals() LineTotals {
	var t LineTotals
	for _, it := range o.Items {
		t.Amount = t.Amount.Add(it.Amount)
		t.CGST = t.CGST.Add(it.CGST)
		t.SGST = t.SGST.Add(it.SGST)
		t.IGST = t.IGST.Add(it.IGST)
		t.TotalAmount = t.TotalAmount.Add(it.TotalAmount)
	}
	return t
}

// LineTotals aggregates order line values.
type LineTotals struct {
	Amount      decimal.Decimal `json:"amount"`
	CGST        decimal.Decimal `json:"cgst"`
	SGST        decimal.Decimal `json:"sgst"`
	IGST        decimal.Decimal `json:"igst"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

// OrderItem is one ordered line. Amount and the tax split are computed when the
// line is created or revised; DispatchedQty and BalanceQty are derived on read.
type OrderItem struct {
	ID            int64           `json:"id"`
	OrderID       int64           `json:"orderId"`
	ItemID        int64           `json:"itemId"`
	Quantity      decimal.Decimal `json:"quantity"`
	Rate          decimal.Decimal `json:"rate"`
	Amount        decimal.Decimal `json:"amount"`
	CGST          decimal.Decimal `json:"cgst"`
	SGST          decimal.Decimal `json:"sgst"`
	IGST          decimal.Decimal `json:"igst"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	DispatchedQty decimal.Decimal `json:"dispatchedQty"`
	BalanceQty    decimal.Decimal `json:"balanceQty"`
}

// Customer is the counter-party reference data the order needs.
type Customer struct {
	ID    int64
	Name  string
	State string
}

// Item is the item master reference data the order needs.
type Item struct {
	ID      int64
	Name    string
	GSTRate decimal.Decimal
}

// ItemBalance is the fulfilment position of one order line.
type ItemBalance struct {
	OrderItemID   int64           `json:"orderItemId"`
	ItemID        int64           `json:"itemId"`
	OrderedQty    decimal.Decimal `json:"orderedQty"`
	DispatchedQty decimal.Decimal `json:"dispatchedQty"`
	BalanceQty    decimal.Decimal `json:"balanceQty"`
}

// Balance lists the fulfilment position of every line on an order.
type Balance struct {
	OrderID int64         `json:"orderId"`
	Items   []ItemBalance `json:"items"`
}

// CreateOrderInput describes a new order.
type CreateOrderInput struct {
	CustomerID int64
	OrderDate  time.Time
	Items      []CreateItemInput
}

// CreateItemInput describes one requested line.
type CreateItemInput struct {
	ItemID   int64
	Quantity decimal.Decimal
	Rate     decimal.Decimal
}

// ReviseItemInput changes quantity and/or rate of an existing line.
type ReviseItemInput struct {
	Quantity *decimal.Decimal
	Rate     *decimal.Decimal
}

// Domain errors for orders.
var (
	ErrNoItems                 = errors.New("order requires at least one item")
	ErrInvalidQuantity         = errors.New("quantity must be greater than zero")
	ErrInvalidRate             = errors.New("rate must not be negative")
	ErrBlankState              = errors.New("customer state is blank; GST split cannot be determined")
	ErrItemDispatched          = errors.New("order item has dispatches and cannot be deleted")
	ErrQuantityBelowDispatched = errors.New("quantity cannot be reduced below the dispatched quantity")
	ErrLastItem                = errors.New("order must keep at least one item")
	ErrNothingToRevise         = errors.New("quantity or rate is required")
)
