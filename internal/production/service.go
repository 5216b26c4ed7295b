package production

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/steelworks-erp/steelworks/internal/ledger"
	"github.com/steelworks-erp/steelworks/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	SupplierExists(ctx context.Context, id int64) (bool, error)
	// MissingItems returns the ids that have no item master row.
	MissingItems(ctx context.Context, ids []int64) ([]int64, error)

	InsertGRN(ctx context.Context, grn GRN) (int64, error)
	InsertGRNLine(ctx context.Context, line GRNLine) (int64, error)
	LockGRN(ctx context.Context, id int64) (GRN, error)
	DeleteGRN(ctx context.Context, id int64) error

	InsertMelting(ctx context.Context, m Melting) (int64, error)
	InsertConsumption(ctx context.Context, meltingID int64, c ConsumptionInput) error
	LockMelting(ctx context.Context, id int64) error
	DeleteMelting(ctx context.Context, id int64) error

	InsertHeatTreatment(ctx context.Context, ht HeatTreatment) (int64, error)
	LockHeatTreatment(ctx context.Context, id int64) error
	DeleteHeatTreatment(ctx context.Context, id int64) error

	LedgerStore() ledger.Store
	Rates() ledger.RateSource
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service records production events and their ledger movements.
type Service struct {
	repo     RepositoryPort
	ledger   *ledger.Ledger
	rates    RatePolicy
	notifier ledger.ChangeNotifier
	audit    AuditPort
	logger   *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, l *ledger.Ledger, rates RatePolicy, notifier ledger.ChangeNotifier, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if l == nil {
		l = ledger.New(nil)
	}
	return &Service{repo: repo, ledger: l, rates: rates, notifier: notifier, audit: audit, logger: logger}
}

// PostGRN stores a receipt and records one RECEIPT per line.
func (s *Service) PostGRN(ctx context.Context, in GRNInput) (GRN, error) {
	if err := validateGRN(in); err != nil {
		return GRN{}, err
	}
	var grn GRN
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.SupplierExists(ctx, in.SupplierID)
		if err != nil {
			return err
		}
		if !ok {
			return shared.MissingReference("supplier", in.SupplierID)
		}
		ids := make([]int64, 0, len(in.Lines))
		for _, l := range in.Lines {
			ids = append(ids, l.ItemID)
		}
		if err := checkItems(ctx, tx, ids); err != nil {
			return err
		}

		grn = GRN{SupplierID: in.SupplierID, GRNDate: in.GRNDate, InvoiceNo: strings.TrimSpace(in.InvoiceNo)}
		grn.ID, err = tx.InsertGRN(ctx, grn)
		if err != nil {
			return err
		}
		store := tx.LedgerStore()
		for _, l := range in.Lines {
			line := GRNLine{GRNID: grn.ID, ItemID: l.ItemID, Quantity: l.Quantity, Rate: l.Rate}
			line.ID, err = tx.InsertGRNLine(ctx, line)
			if err != nil {
				return err
			}
			entry, err := s.ledger.Record(ctx, store, ledger.Entry{
				Date:          in.GRNDate,
				Type:          ledger.TypeReceipt,
				ItemID:        l.ItemID,
				Quantity:      l.Quantity,
				Rate:          l.Rate,
				ReferenceType: ledger.RefGRNItem,
				ReferenceID:   ledger.Ref(line.ID),
				Remarks:       grnRemarks(grn),
			})
			if err != nil {
				return err
			}
			line.Amount = entry.Amount
			grn.Lines = append(grn.Lines, line)
		}
		return nil
	})
	if err != nil {
		return GRN{}, fmt.Errorf("production: post grn: %w", err)
	}
	s.committed(ctx, "grn.posted", "grn", grn.ID)
	return grn, nil
}

// DeleteGRN removes a receipt and reverses every line.
func (s *Service) DeleteGRN(ctx context.Context, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		grn, err := tx.LockGRN(ctx, id)
		if err != nil {
			return err
		}
		store := tx.LedgerStore()
		for _, line := range grn.Lines {
			if _, err := s.ledger.ReverseByReference(ctx, store, ledger.RefGRNItem, line.ID); err != nil {
				return err
			}
		}
		return tx.DeleteGRN(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("production: delete grn %d: %w", id, err)
	}
	s.committed(ctx, "grn.deleted", "grn", id)
	return nil
}

// RecordMelting stores a melting run and issues the charged material, one
// ISSUE per item for the total charged.
func (s *Service) RecordMelting(ctx context.Context, in MeltingInput) (Melting, error) {
	if err := validateMelting(in); err != nil {
		return Melting{}, err
	}
	totals, order := totalByItem(in.Consumptions)
	var m Melting
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := checkItems(ctx, tx, order); err != nil {
			return err
		}
		m = Melting{MeltingDate: in.MeltingDate, HeatNumber: strings.TrimSpace(in.HeatNumber), Remarks: in.Remarks, Consumptions: in.Consumptions}
		var err error
		m.ID, err = tx.InsertMelting(ctx, m)
		if err != nil {
			return err
		}
		for _, c := range in.Consumptions {
			if err := tx.InsertConsumption(ctx, m.ID, c); err != nil {
				return err
			}
		}
		rates, store := tx.Rates(), tx.LedgerStore()
		for _, itemID := range order {
			rate, source, err := s.rates.MeltingRate(ctx, rates, itemID, in.MeltingDate)
			if err != nil {
				return err
			}
			posting, err := s.post(ctx, store, ledger.Entry{
				Date:          in.MeltingDate,
				Type:          ledger.TypeIssue,
				ItemID:        itemID,
				Quantity:      totals[itemID],
				Rate:          rate,
				ReferenceType: ledger.RefMelting,
				ReferenceID:   ledger.Ref(m.ID),
				Remarks:       "melting heat " + m.HeatNumber,
			}, source)
			if err != nil {
				return err
			}
			m.Issues = append(m.Issues, posting)
		}
		return nil
	})
	if err != nil {
		return Melting{}, fmt.Errorf("production: record melting: %w", err)
	}
	s.committed(ctx, "melting.recorded", "melting", m.ID)
	return m, nil
}

// DeleteMelting removes a melting run and reverses its issues.
func (s *Service) DeleteMelting(ctx context.Context, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockMelting(ctx, id); err != nil {
			return err
		}
		if _, err := s.ledger.ReverseByReference(ctx, tx.LedgerStore(), ledger.RefMelting, id); err != nil {
			return err
		}
		return tx.DeleteMelting(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("production: delete melting %d: %w", id, err)
	}
	s.committed(ctx, "melting.deleted", "melting", id)
	return nil
}

// RecordHeatTreatment receives bagged output and, when given, issues the
// consumed work in progress.
func (s *Service) RecordHeatTreatment(ctx context.Context, in HeatTreatmentInput) (HeatTreatment, error) {
	if err := validateHeatTreatment(in); err != nil {
		return HeatTreatment{}, err
	}
	var ht HeatTreatment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ids := []int64{in.ItemID}
		if in.WIPItemID != nil {
			ids = append(ids, *in.WIPItemID)
		}
		if err := checkItems(ctx, tx, ids); err != nil {
			return err
		}
		ht = HeatTreatment{
			TreatmentDate: in.TreatmentDate,
			FurnaceNumber: strings.TrimSpace(in.FurnaceNumber),
			ItemID:        in.ItemID,
			BagsProduced:  in.BagsProduced,
			WIPItemID:     in.WIPItemID,
			WIPQuantity:   in.WIPQuantity,
			Remarks:       in.Remarks,
		}
		var err error
		ht.ID, err = tx.InsertHeatTreatment(ctx, ht)
		if err != nil {
			return err
		}
		rates, store := tx.Rates(), tx.LedgerStore()

		rate, source, err := s.rates.HeatTreatmentRate(ctx, rates, in.ItemID, in.TreatmentDate)
		if err != nil {
			return err
		}
		ht.Receipt, err = s.post(ctx, store, ledger.Entry{
			Date:          in.TreatmentDate,
			Type:          ledger.TypeReceipt,
			ItemID:        in.ItemID,
			Quantity:      decimal.NewFromInt(int64(in.BagsProduced * BagConversionFactor)),
			Rate:          rate,
			ReferenceType: ledger.RefHeatTreatment,
			ReferenceID:   ledger.Ref(ht.ID),
			Remarks:       fmt.Sprintf("heat treatment furnace %s, %d bags", ht.FurnaceNumber, in.BagsProduced),
		}, source)
		if err != nil {
			return err
		}

		if in.WIPItemID == nil {
			return nil
		}
		rate, source, err = s.rates.MeltingRate(ctx, rates, *in.WIPItemID, in.TreatmentDate)
		if err != nil {
			return err
		}
		wip, err := s.post(ctx, store, ledger.Entry{
			Date:          in.TreatmentDate,
			Type:          ledger.TypeIssue,
			ItemID:        *in.WIPItemID,
			Quantity:      *in.WIPQuantity,
			Rate:          rate,
			ReferenceType: ledger.RefHeatTreatmentWIP,
			ReferenceID:   ledger.Ref(ht.ID),
			Remarks:       "heat treatment furnace " + ht.FurnaceNumber,
		}, source)
		if err != nil {
			return err
		}
		ht.WIPIssue = &wip
		return nil
	})
	if err != nil {
		return HeatTreatment{}, fmt.Errorf("production: record heat treatment: %w", err)
	}
	s.committed(ctx, "heat_treatment.recorded", "heat_treatment", ht.ID)
	return ht, nil
}

// DeleteHeatTreatment removes a batch and reverses both its receipt and its
// WIP issue.
func (s *Service) DeleteHeatTreatment(ctx context.Context, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockHeatTreatment(ctx, id); err != nil {
			return err
		}
		store := tx.LedgerStore()
		for _, ref := range []string{ledger.RefHeatTreatment, ledger.RefHeatTreatmentWIP} {
			if _, err := s.ledger.ReverseByReference(ctx, store, ref, id); err != nil {
				return err
			}
		}
		return tx.DeleteHeatTreatment(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("production: delete heat treatment %d: %w", id, err)
	}
	s.committed(ctx, "heat_treatment.deleted", "heat_treatment", id)
	return nil
}

func (s *Service) post(ctx context.Context, store ledger.Store, e ledger.Entry, source string) (Posting, error) {
	recorded, err := s.ledger.Record(ctx, store, e)
	if err != nil {
		return Posting{}, err
	}
	return Posting{
		EntryID:    recorded.ID,
		ItemID:     recorded.ItemID,
		Quantity:   recorded.Quantity,
		Rate:       recorded.Rate,
		Amount:     recorded.Amount,
		RateSource: source,
	}, nil
}

func (s *Service) committed(ctx context.Context, action, entity string, id int64) {
	if s.notifier != nil {
		s.notifier.LedgerChanged(ctx)
	}
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Actor: shared.ActorFromContext(ctx), Action: action, Entity: entity, EntityID: id}); err != nil {
		s.logger.Warn("audit log failed", slog.String("action", action), slog.Int64("entity_id", id), slog.Any("error", err))
	}
}

func checkItems(ctx context.Context, tx TxRepository, ids []int64) error {
	missing, err := tx.MissingItems(ctx, ids)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return shared.MissingReference("item", missing[0])
	}
	return nil
}

// totalByItem sums consumption per item, keeping first-seen order.
func totalByItem(in []ConsumptionInput) (map[int64]decimal.Decimal, []int64) {
	totals := make(map[int64]decimal.Decimal, len(in))
	var order []int64
	for _, c := range in {
		if _, ok := totals[c.ItemID]; !ok {
			order = append(order, c.ItemID)
		}
		totals[c.ItemID] = totals[c.ItemID].Add(c.Quantity)
	}
	return totals, order
}

func grnRemarks(g GRN) string {
	if g.InvoiceNo == "" {
		return fmt.Sprintf("grn %d", g.ID)
	}
	return fmt.Sprintf("grn %d invoice %s", g.ID, g.InvoiceNo)
}

func validateGRN(in GRNInput) error {
	var errs shared.ValidationErrors
	if in.SupplierID <= 0 {
		errs = append(errs, shared.Validation("supplierId", "is required"))
	}
	if in.GRNDate.IsZero() {
		errs = append(errs, shared.Validation("grnDate", "is required"))
	}
	if len(in.Lines) == 0 {
		errs = append(errs, shared.InvalidField("lines", ErrNoLines))
	}
	for i, l := range in.Lines {
		if l.ItemID <= 0 {
			errs = append(errs, shared.Validation(fmt.Sprintf("lines[%d].itemId", i), "is required"))
		}
		if !l.Quantity.IsPositive() {
			errs = append(errs, shared.InvalidField(fmt.Sprintf("lines[%d].quantity", i), ErrInvalidQuantity))
		}
		if l.Rate.IsNegative() {
			errs = append(errs, shared.InvalidField(fmt.Sprintf("lines[%d].rate", i), ErrInvalidRate))
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateMelting(in MeltingInput) error {
	var errs shared.ValidationErrors
	if in.MeltingDate.IsZero() {
		errs = append(errs, shared.Validation("meltingDate", "is required"))
	}
	if strings.TrimSpace(in.HeatNumber) == "" {
		errs = append(errs, shared.Validation("heatNumber", "is required"))
	}
	if len(in.Consumptions) == 0 {
		errs = append(errs, shared.InvalidField("consumptions", ErrNoLines))
	}
	for i, c := range in.Consumptions {
		if c.ItemID <= 0 {
			errs = append(errs, shared.Validation(fmt.Sprintf("consumptions[%d].itemId", i), "is required"))
		}
		if !c.Quantity.IsPositive() {
			errs = append(errs, shared.InvalidField(fmt.Sprintf("consumptions[%d].quantity", i), ErrInvalidQuantity))
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateHeatTreatment(in HeatTreatmentInput) error {
	var errs shared.ValidationErrors
	if in.TreatmentDate.IsZero() {
		errs = append(errs, shared.Validation("treatmentDate", "is required"))
	}
	if strings.TrimSpace(in.FurnaceNumber) == "" {
		errs = append(errs, shared.Validation("furnaceNumber", "is required"))
	}
	if in.ItemID <= 0 {
		errs = append(errs, shared.Validation("itemId", "is required"))
	}
	if in.BagsProduced <= 0 {
		errs = append(errs, shared.InvalidField("bagsProduced", ErrInvalidBags))
	}
	if (in.WIPItemID == nil) != (in.WIPQuantity == nil) {
		errs = append(errs, shared.InvalidField("wipQuantity", ErrWIPIncomplete))
	} else if in.WIPQuantity != nil && !in.WIPQuantity.IsPositive() {
		errs = append(errs, shared.InvalidField("wipQuantity", ErrInvalidQuantity))
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}
