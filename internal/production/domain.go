// Package production turns goods receipts, melting runs and heat treatments
// into stock ledger movements.
package production

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// BagConversionFactor is the weight of one bag of finished product.
const BagConversionFactor = 25

// Rate sources reported on each posting.
const (
	RateFromLatestReceipt = "LATEST_RECEIPT"
	RateFromLatestOrder   = "LATEST_ORDER"
	RateFromDefault       = "DEFAULT"
)

// RatePolicy holds the configured fallback rates. A nil default means an
// event without a derivable rate is rejected.
type RatePolicy struct {
	MeltingDefault       *decimal.Decimal
	HeatTreatmentDefault *decimal.Decimal
}

// Posting is one ledger movement produced by an event.
type Posting struct {
	EntryID    int64           `json:"entryId"`
	ItemID     int64           `json:"itemId"`
	Quantity   decimal.Decimal `json:"quantity"`
	Rate       decimal.Decimal `json:"rate"`
	Amount     decimal.Decimal `json:"amount"`
	RateSource string          `json:"rateSource"`
}

// GRN is a goods receipt note.
type GRN struct {
	ID         int64     `json:"id"`
	SupplierID int64     `json:"supplierId"`
	GRNDate    time.Time `json:"grnDate"`
	InvoiceNo  string    `json:"invoiceNo,omitempty"`
	Lines      []GRNLine `json:"lines"`
}

// GRNLine is one received item.
type GRNLine struct {
	ID       int64           `json:"id"`
	GRNID    int64           `json:"grnId"`
	ItemID   int64           `json:"itemId"`
	Quantity decimal.Decimal `json:"quantity"`
	Rate     decimal.Decimal `json:"rate"`
	Amount   decimal.Decimal `json:"amount"`
}

// GRNInput describes a receipt.
type GRNInput struct {
	SupplierID int64
	GRNDate    time.Time
	InvoiceNo  string
	Lines      []GRNLineInput
}

// GRNLineInput is one received quantity at its purchase rate.
type GRNLineInput struct {
	ItemID   int64
	Quantity decimal.Decimal
	Rate     decimal.Decimal
}

// Melting is a furnace run consuming scrap and minerals.
type Melting struct {
	ID           int64              `json:"id"`
	MeltingDate  time.Time          `json:"meltingDate"`
	HeatNumber   string             `json:"heatNumber"`
	Remarks      string             `json:"remarks,omitempty"`
	Consumptions []ConsumptionInput `json:"consumptions"`
	Issues       []Posting          `json:"issues"`
}

// ConsumptionInput is one charged material.
type ConsumptionInput struct {
	ItemID   int64           `json:"itemId"`
	Quantity decimal.Decimal `json:"quantity"`
}

// MeltingInput describes a melting run.
type MeltingInput struct {
	MeltingDate  time.Time
	HeatNumber   string
	Remarks      string
	Consumptions []ConsumptionInput
}

// HeatTreatment converts work in progress into bagged finished product.
type HeatTreatment struct {
	ID            int64            `json:"id"`
	TreatmentDate time.Time        `json:"treatmentDate"`
	FurnaceNumber string           `json:"furnaceNumber"`
	ItemID        int64            `json:"itemId"`
	BagsProduced  int              `json:"bagsProduced"`
	WIPItemID     *int64           `json:"wipItemId,omitempty"`
	WIPQuantity   *decimal.Decimal `json:"wipQuantity,omitempty"`
	Remarks       string           `json:"remarks,omitempty"`
	Receipt       Posting          `json:"receipt"`
	WIPIssue      *Posting         `json:"wipIssue,omitempty"`
}

// HeatTreatmentInput describes a heat treatment batch.
type HeatTreatmentInput struct {
	TreatmentDate time.Time
	FurnaceNumber string
	ItemID        int64
	BagsProduced  int
	WIPItemID     *int64
	WIPQuantity   *decimal.Decimal
	Remarks       string
}

// Domain errors for production events.
var (
	ErrNoLines         = errors.New("at least one line is required")
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")
	ErrInvalidRate     = errors.New("rate must not be negative")
	ErrInvalidBags     = errors.New("bags produced must be greater than zero")
	ErrWIPIncomplete   = errors.New("wipItemId and wipQuantity must be given together")
	ErrNoRateAvailable = errors.New("no rate available for item and no default configured")
)
