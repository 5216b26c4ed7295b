// Package stockreport reconstructs opening, receipt, issue and closing stock
// for any date range from the ledger alone.
package stockreport

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/steelworks-erp/steelworks/internal/ledger"
)

const (
	qtyPlaces    = 3
	amountPlaces = 2
	ratePlaces   = 2
)

// Item is the item master row a statement line is built for.
type Item struct {
	ID         int64
	Name       string
	CategoryID int64
	Category   string
	UOM        string
}

// Movement is a ledger quantity and amount, possibly pre-summed, attributed
// to one item, type and date.
type Movement struct {
	ItemID   int64
	Date     time.Time
	Type     ledger.TransactionType
	Quantity decimal.Decimal
	Amount   decimal.Decimal
}

// Figure is a quantity with its value and derived rate.
type Figure struct {
	Qty    decimal.Decimal
	Rate   decimal.Decimal
	Amount decimal.Decimal
}

// Balances carries the opening, receipt, issue and closing figures of a line
// or of the whole statement.
type Balances struct {
	OpeningQty    decimal.Decimal `json:"openingQty"`
	OpeningRate   decimal.Decimal `json:"openingRate"`
	OpeningAmount decimal.Decimal `json:"openingAmount"`
	ReceiptQty    decimal.Decimal `json:"receiptQty"`
	ReceiptRate   decimal.Decimal `json:"receiptRate"`
	ReceiptAmount decimal.Decimal `json:"receiptAmount"`
	IssueQty      decimal.Decimal `json:"issueQty"`
	IssueRate     decimal.Decimal `json:"issueRate"`
	IssueAmount   decimal.Decimal `json:"issueAmount"`
	ClosingQty    decimal.Decimal `json:"closingQty"`
	ClosingRate   decimal.Decimal `json:"closingRate"`
	ClosingAmount decimal.Decimal `json:"closingAmount"`
}

// newBalances derives closing figures and every rate from the movements.
func newBalances(openQty, openAmt, recQty, recAmt, issQty, issAmt decimal.Decimal) Balances {
	closeQty := openQty.Add(recQty).Sub(issQty)
	closeAmt := openAmt.Add(recAmt).Sub(issAmt)
	return Balances{
		OpeningQty: openQty, OpeningRate: rate(openQty, openAmt), OpeningAmount: openAmt,
		ReceiptQty: recQty, ReceiptRate: rate(recQty, recAmt), ReceiptAmount: recAmt,
		IssueQty: issQty, IssueRate: rate(issQty, issAmt), IssueAmount: issAmt,
		ClosingQty: closeQty, ClosingRate: rate(closeQty, closeAmt), ClosingAmount: closeAmt,
	}
}

func (b Balances) Opening() Figure {
	return Figure{Qty: b.OpeningQty, Rate: b.OpeningRate, Amount: b.OpeningAmount}
}

func (b Balances) Receipt() Figure {
	return Figure{Qty: b.ReceiptQty, Rate: b.ReceiptRate, Amount: b.ReceiptAmount}
}

func (b Balances) Issue() Figure {
	return Figure{Qty: b.IssueQty, Rate: b.IssueRate, Amount: b.IssueAmount}
}

func (b Balances) Closing() Figure {
	return Figure{Qty: b.ClosingQty, Rate: b.ClosingRate, Amount: b.ClosingAmount}
}

// IsZero reports no stock and no movement.
func (b Balances) IsZero() bool {
	return b.OpeningQty.IsZero() && b.OpeningAmount.IsZero() &&
		b.ReceiptQty.IsZero() && b.ReceiptAmount.IsZero() &&
		b.IssueQty.IsZero() && b.IssueAmount.IsZero()
}

// Line is one item of the statement.
type Line struct {
	ItemID     int64  `json:"itemId"`
	ItemName   string `json:"itemName"`
	CategoryID int64  `json:"categoryId"`
	Category   string `json:"category"`
	UOM        string `json:"uom,omitempty"`
	Balances
}

// Statement is the stock statement for a date range.
type Statement struct {
	Start      time.Time `json:"startDate"`
	End        time.Time `json:"endDate"`
	CategoryID *int64    `json:"categoryId,omitempty"`
	Lines      []Line    `json:"items"`
	Totals     Balances  `json:"totals"`
}

type accumulator struct {
	openingQty, openingAmt decimal.Decimal
	receiptQty, receiptAmt decimal.Decimal
	issueQty, issueAmt     decimal.Decimal
}

// Aggregate classifies movements against start and end and builds one line
// per item. Movements dated before start form the opening balance; those in
// [start, end] are receipts (OPENING and RECEIPT) or issues; later ones are
// ignored. Closing is always opening + receipt - issue.
func Aggregate(items []Item, movements []Movement, start, end time.Time) Statement {
	acc := make(map[int64]*accumulator, len(items))
	for _, it := range items {
		acc[it.ID] = &accumulator{}
	}
	for _, m := range movements {
		a, ok := acc[m.ItemID]
		if !ok || m.Date.After(end) {
			continue
		}
		switch {
		case m.Date.Before(start):
			if m.Type.IsIncrease() {
				a.openingQty = a.openingQty.Add(m.Quantity)
				a.openingAmt = a.openingAmt.Add(m.Amount)
			} else {
				a.openingQty = a.openingQty.Sub(m.Quantity)
				a.openingAmt = a.openingAmt.Sub(m.Amount)
			}
		case m.Type.IsIncrease():
			a.receiptQty = a.receiptQty.Add(m.Quantity)
			a.receiptAmt = a.receiptAmt.Add(m.Amount)
		default:
			a.issueQty = a.issueQty.Add(m.Quantity)
			a.issueAmt = a.issueAmt.Add(m.Amount)
		}
	}

	st := Statement{Start: start, End: end, Lines: make([]Line, 0, len(items))}
	for _, it := range items {
		a := acc[it.ID]
		openQty, openAmt := a.openingQty.Round(qtyPlaces), a.openingAmt.Round(amountPlaces)
		recQty, recAmt := a.receiptQty.Round(qtyPlaces), a.receiptAmt.Round(amountPlaces)
		issQty, issAmt := a.issueQty.Round(qtyPlaces), a.issueAmt.Round(amountPlaces)
		st.Lines = append(st.Lines, Line{
			ItemID:     it.ID,
			ItemName:   it.Name,
			CategoryID: it.CategoryID,
			Category:   it.Category,
			UOM:        it.UOM,
			Balances:   newBalances(openQty, openAmt, recQty, recAmt, issQty, issAmt),
		})
	}
	sortLines(st.Lines)
	st.Totals = totals(st.Lines)
	return st
}

// WithoutZeroLines drops lines without stock or movement and recomputes totals.
func (s Statement) WithoutZeroLines() Statement {
	kept := make([]Line, 0, len(s.Lines))
	for _, l := range s.Lines {
		if !l.IsZero() {
			kept = append(kept, l)
		}
	}
	s.Lines = kept
	s.Totals = totals(kept)
	return s
}

func sortLines(lines []Line) {
	sort.SliceStable(lines, func(i, j int) bool {
		a, b := lines[i], lines[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.ItemName != b.ItemName {
			return a.ItemName < b.ItemName
		}
		return a.ItemID < b.ItemID
	})
}

func totals(lines []Line) Balances {
	var oq, oa, rq, ra, iq, ia decimal.Decimal
	for _, l := range lines {
		oq, oa = oq.Add(l.OpeningQty), oa.Add(l.OpeningAmount)
		rq, ra = rq.Add(l.ReceiptQty), ra.Add(l.ReceiptAmount)
		iq, ia = iq.Add(l.IssueQty), ia.Add(l.IssueAmount)
	}
	return newBalances(oq, oa, rq, ra, iq, ia)
}

func rate(qty, amount decimal.Decimal) decimal.Decimal {
	if qty.IsZero() {
		return decimal.Zero
	}
	return amount.DivRound(qty, ratePlaces)
}
