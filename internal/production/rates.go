package production

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/steelworks-erp/steelworks/internal/ledger"
	"github.com/steelworks-erp/steelworks/internal/shared"
)

// MeltingRate values consumed material at its latest receipt rate, falling
// back to the melting default.
func (p RatePolicy) MeltingRate(ctx context.Context, src ledger.RateSource, itemID int64, on time.Time) (decimal.Decimal, string, error) {
	rate, ok, err := src.LatestReceiptRate(ctx, itemID, on)
	if err != nil {
		return decimal.Zero, "", err
	}
	if ok {
		return rate, RateFromLatestReceipt, nil
	}
	return fallback(p.MeltingDefault, itemID)
}

// HeatTreatmentRate values finished output at its latest order rate, falling
// back to the heat treatment default.
func (p RatePolicy) HeatTreatmentRate(ctx context.Context, src ledger.RateSource, itemID int64, on time.Time) (decimal.Decimal, string, error) {
	rate, ok, err := src.LatestOrderRate(ctx, itemID, on)
	if err != nil {
		return decimal.Zero, "", err
	}
	if ok {
		return rate, RateFromLatestOrder, nil
	}
	return fallback(p.HeatTreatmentDefault, itemID)
}

func fallback(def *decimal.Decimal, itemID int64) (decimal.Decimal, string, error) {
	if def == nil {
		return decimal.Zero, "", &shared.ConstraintError{Entity: "item", ID: itemID, Err: ErrNoRateAvailable}
	}
	return *def, RateFromDefault, nil
}
