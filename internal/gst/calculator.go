// Package gst apportions Indian goods and services tax between the central,
// state and integrated components.
package gst

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
)

// Breakdown is the tax split for one taxable amount.
type Breakdown struct {
	GST  decimal.Decimal `json:"gst"`
	CGST decimal.Decimal `json:"cgst"`
	SGST decimal.Decimal `json:"sgst"`
	IGST decimal.Decimal `json:"igst"`
}

// Total returns cgst + sgst + igst.
func (b Breakdown) Total() decimal.Decimal {
	return b.CGST.Add(b.SGST).Add(b.IGST)
}

var (
	hundred = decimal.NewFromInt(100)
	two     = decimal.NewFromInt(2)
	folder  = cases.Fold()
)

// Split computes the tax on base at ratePercent. Intra-state trade is split
// into CGST and SGST; everything else, including an unknown party state, is
// IGST. CGST is half the tax rounded to the paisa and SGST takes the
// remainder, so an odd paisa lands on CGST (0.51 splits 0.26 / 0.25) and
// CGST + SGST always equals the tax.
func Split(partyState, companyState string, base, ratePercent decimal.Decimal) Breakdown {
	gstAmount := base.Mul(ratePercent).Div(hundred).Round(2)
	if !SameState(partyState, companyState) {
		return Breakdown{GST: gstAmount, CGST: decimal.Zero, SGST: decimal.Zero, IGST: gstAmount}
	}
	cgst := gstAmount.Div(two).Round(2)
	return Breakdown{
		GST:  gstAmount,
		CGST: cgst,
		SGST: gstAmount.Sub(cgst),
		IGST: decimal.Zero,
	}
}

// SameState compares two state names ignoring case and surrounding space.
// Blank names never match.
func SameState(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return false
	}
	return folder.String(a) == folder.String(b)
}
