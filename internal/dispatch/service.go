package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/steelworks-erp/steelworks/internal/ledger"
	"github.com/steelworks-erp/steelworks/internal/shared"
)

// IdempotencyModule scopes Idempotency-Key values for dispatch creation.
const IdempotencyModule = "dispatches"

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetDispatch(ctx context.Context, id int64) (Dispatch, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	// LockOrder takes a share lock on the order header.
	LockOrder(ctx context.Context, orderID int64) error
	// LockDispatch locks the dispatch row and returns it with its items.
	LockDispatch(ctx context.Context, id int64) (Dispatch, error)
	// LockOrderLines locks the order lines in ascending id order and reports,
	// for each, what other dispatches have already shipped. Rows dispatched
	// by excludeDispatchID are left out of that sum.
	LockOrderLines(ctx context.Context, orderItemIDs []int64, excludeDispatchID int64) (map[int64]OrderLine, error)
	TransporterExists(ctx context.Context, id int64) (bool, error)
	InsertDispatch(ctx context.Context, d Dispatch) (int64, error)
	UpdateDispatchHeader(ctx context.Context, d Dispatch) error
	InsertItem(ctx context.Context, item Item) (int64, error)
	DeleteItems(ctx context.Context, dispatchID int64) error
	DeleteDispatch(ctx context.Context, id int64) error
	LedgerStore() ledger.Store
	ClaimIdempotency(ctx context.Context, claim shared.IdempotencyClaim) error
	CompleteIdempotency(ctx context.Context, claim shared.IdempotencyClaim, resourceID int64) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates dispatch operations.
type Service struct {
	repo     RepositoryPort
	ledger   *ledger.Ledger
	notifier ledger.ChangeNotifier
	audit    AuditPort
	metrics  *Metrics
	logger   *slog.Logger
}

// ServiceDeps groups Service collaborators. Notifier, Audit and Metrics are optional.
type ServiceDeps struct {
	Repo     RepositoryPort
	Ledger   *ledger.Ledger
	Notifier ledger.ChangeNotifier
	Audit    AuditPort
	Metrics  *Metrics
	Logger   *slog.Logger
}

// NewService builds Service.
func NewService(deps ServiceDeps) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Ledger == nil {
		deps.Ledger = ledger.New(nil)
	}
	return &Service{
		repo:     deps.Repo,
		ledger:   deps.Ledger,
		notifier: deps.Notifier,
		audit:    deps.Audit,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
	}
}

// Create records a dispatch and its ledger issues. The order lines are
// locked before their balance is read, so concurrent dispatches against the
// same line serialise and the second one sees the first one's quantity.
func (s *Service) Create(ctx context.Context, in CreateInput, claim shared.IdempotencyClaim) (Dispatch, error) {
	if err := validateCreate(in); err != nil {
		s.metrics.observe(opCreate, err)
		return Dispatch{}, err
	}
	var created Dispatch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.ClaimIdempotency(ctx, claim); err != nil {
			return err
		}
		if err := tx.LockOrder(ctx, in.OrderID); err != nil {
			return referenceError("order", in.OrderID, err)
		}
		lines, err := lockLines(ctx, tx, in.OrderID, orderItemIDs(in.Items), 0)
		if err != nil {
			return err
		}
		if err := checkBalances(lines, in.Items); err != nil {
			return err
		}
		if err := checkTransporter(ctx, tx, in.TransporterID); err != nil {
			return err
		}

		d := Dispatch{OrderID: in.OrderID, DispatchDate: in.DispatchDate, TransporterID: in.TransporterID, Remarks: in.Remarks}
		d.ID, err = tx.InsertDispatch(ctx, d)
		if err != nil {
			return err
		}
		d.Items, err = s.insertItems(ctx, tx, d, lines, in.Items)
		if err != nil {
			return err
		}
		if err := tx.CompleteIdempotency(ctx, claim, d.ID); err != nil {
			return err
		}
		created = d
		return nil
	})
	s.metrics.observe(opCreate, err)
	if err != nil {
		return Dispatch{}, fmt.Errorf("dispatch: create: %w", err)
	}
	s.committed(ctx, "dispatch.created", created)
	return created, nil
}

// Update replaces the dispatch lines and header. The new lines are checked
// against the balance left by other dispatches; the old ledger rows are
// reversed and re-recorded.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (Dispatch, error) {
	if err := validateLines(in.Items); err != nil {
		s.metrics.observe(opUpdate, err)
		return Dispatch{}, err
	}
	if in.DispatchDate != nil && in.DispatchDate.IsZero() {
		err := shared.Validation("dispatchDate", "is required")
		s.metrics.observe(opUpdate, err)
		return Dispatch{}, err
	}
	var updated Dispatch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockDispatch(ctx, id)
		if err != nil {
			return err
		}
		ids := orderItemIDs(in.Items)
		for _, it := range current.Items {
			ids = append(ids, it.OrderItemID)
		}
		lines, err := lockLines(ctx, tx, current.OrderID, ids, id)
		if err != nil {
			return err
		}
		if err := checkBalances(lines, in.Items); err != nil {
			return err
		}

		next := current
		if in.DispatchDate != nil {
			next.DispatchDate = *in.DispatchDate
		}
		if in.TransporterID != nil {
			next.TransporterID = in.TransporterID
		}
		if in.Remarks != nil {
			next.Remarks = *in.Remarks
		}
		if err := checkTransporter(ctx, tx, next.TransporterID); err != nil {
			return err
		}

		if err := s.reverseItems(ctx, tx, current.Items); err != nil {
			return err
		}
		if err := tx.DeleteItems(ctx, id); err != nil {
			return err
		}
		if err := tx.UpdateDispatchHeader(ctx, next); err != nil {
			return err
		}
		next.Items, err = s.insertItems(ctx, tx, next, lines, in.Items)
		if err != nil {
			return err
		}
		updated = next
		return nil
	})
	s.metrics.observe(opUpdate, err)
	if err != nil {
		return Dispatch{}, fmt.Errorf("dispatch: update %d: %w", id, err)
	}
	s.committed(ctx, "dispatch.updated", updated)
	return updated, nil
}

// Delete removes a dispatch, its items and their ledger issues.
func (s *Service) Delete(ctx context.Context, id int64) error {
	var deleted Dispatch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockDispatch(ctx, id)
		if err != nil {
			return err
		}
		ids := make([]int64, 0, len(current.Items))
		for _, it := range current.Items {
			ids = append(ids, it.OrderItemID)
		}
		if _, err := tx.LockOrderLines(ctx, ids, id); err != nil {
			return err
		}
		if err := s.reverseItems(ctx, tx, current.Items); err != nil {
			return err
		}
		if err := tx.DeleteItems(ctx, id); err != nil {
			return err
		}
		if err := tx.DeleteDispatch(ctx, id); err != nil {
			return err
		}
		deleted = current
		return nil
	})
	s.metrics.observe(opDelete, err)
	if err != nil {
		return fmt.Errorf("dispatch: delete %d: %w", id, err)
	}
	s.committed(ctx, "dispatch.deleted", deleted)
	return nil
}

// Get returns a dispatch with its items.
func (s *Service) Get(ctx context.Context, id int64) (Dispatch, error) {
	d, err := s.repo.GetDispatch(ctx, id)
	if err != nil {
		return Dispatch{}, fmt.Errorf("dispatch: get %d: %w", id, err)
	}
	return d, nil
}

func (s *Service) insertItems(ctx context.Context, tx TxRepository, d Dispatch, lines map[int64]OrderLine, in []LineInput) ([]Item, error) {
	store := tx.LedgerStore()
	items := make([]Item, 0, len(in))
	for _, req := range in {
		line := lines[req.OrderItemID]
		item := Item{
			DispatchID:         d.ID,
			OrderItemID:        line.ID,
			ItemID:             line.ItemID,
			QuantityDispatched: req.Quantity,
			Rate:               line.Rate,
		}
		id, err := tx.InsertItem(ctx, item)
		if err != nil {
			return nil, err
		}
		item.ID = id
		if _, err := s.ledger.Record(ctx, store, ledger.Entry{
			Date:          d.DispatchDate,
			Type:          ledger.TypeIssue,
			ItemID:        line.ItemID,
			Quantity:      req.Quantity,
			Rate:          line.Rate,
			ReferenceType: ledger.RefDispatchItem,
			ReferenceID:   ledger.Ref(id),
			Remarks:       fmt.Sprintf("dispatch %d order %d", d.ID, d.OrderID),
		}); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *Service) reverseItems(ctx context.Context, tx TxRepository, items []Item) error {
	store := tx.LedgerStore()
	for _, it := range items {
		if _, err := s.ledger.ReverseByReference(ctx, store, ledger.RefDispatchItem, it.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) committed(ctx context.Context, action string, d Dispatch) {
	if s.notifier != nil {
		s.notifier.LedgerChanged(ctx)
	}
	if s.audit == nil {
		return
	}
	meta := map[string]any{"order_id": d.OrderID, "items": len(d.Items)}
	if err := s.audit.Record(ctx, shared.AuditLog{Actor: shared.ActorFromContext(ctx), Action: action, Entity: "dispatch", EntityID: d.ID, Meta: meta}); err != nil {
		s.logger.Warn("audit log failed", slog.String("action", action), slog.Int64("dispatch_id", d.ID), slog.Any("error", err))
	}
}

func lockLines(ctx context.Context, tx TxRepository, orderID int64, ids []int64, excludeDispatchID int64) (map[int64]OrderLine, error) {
	lines, err := tx.LockOrderLines(ctx, ids, excludeDispatchID)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		line, ok := lines[id]
		if !ok {
			return nil, shared.MissingReference("order item", id)
		}
		if line.OrderID != orderID {
			return nil, &shared.ConstraintError{Entity: "order item", ID: id, Err: ErrForeignOrderItem, Detail: fmt.Sprintf("order %d", orderID)}
		}
	}
	return lines, nil
}

// checkBalances rejects the first order line whose cumulative requested
// quantity exceeds its balance.
func checkBalances(lines map[int64]OrderLine, in []LineInput) error {
	requested := make(map[int64]decimal.Decimal, len(in))
	for _, req := range in {
		requested[req.OrderItemID] = requested[req.OrderItemID].Add(req.Quantity)
	}
	for _, req := range in {
		line := lines[req.OrderItemID]
		want := requested[req.OrderItemID]
		if want.GreaterThan(line.Balance()) {
			return &shared.ConstraintError{
				Entity: "order item",
				ID:     line.ID,
				Err:    ErrOverDispatch,
				Detail: fmt.Sprintf("requested %s, balance %s", want, line.Balance()),
			}
		}
	}
	return nil
}

func checkTransporter(ctx context.Context, tx TxRepository, id *int64) error {
	if id == nil {
		return nil
	}
	ok, err := tx.TransporterExists(ctx, *id)
	if err != nil {
		return err
	}
	if !ok {
		return shared.MissingReference("transporter", *id)
	}
	return nil
}

func validateCreate(in CreateInput) error {
	var errs shared.ValidationErrors
	if in.OrderID <= 0 {
		errs = append(errs, shared.Validation("orderId", "is required"))
	}
	if in.DispatchDate.IsZero() {
		errs = append(errs, shared.Validation("dispatchDate", "is required"))
	}
	if in.TransporterID != nil && *in.TransporterID <= 0 {
		errs = append(errs, shared.Validation("transporterId", "must be a positive integer"))
	}
	errs = append(errs, lineErrors(in.Items)...)
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateLines(in []LineInput) error {
	if errs := lineErrors(in); len(errs) > 0 {
		return errs
	}
	return nil
}

func lineErrors(in []LineInput) shared.ValidationErrors {
	var errs shared.ValidationErrors
	if len(in) == 0 {
		errs = append(errs, shared.InvalidField("items", ErrNoItems))
	}
	for i, line := range in {
		if line.OrderItemID <= 0 {
			errs = append(errs, shared.Validation(fmt.Sprintf("items[%d].orderItemId", i), "is required"))
		}
		if !line.Quantity.IsPositive() {
			errs = append(errs, shared.InvalidField(fmt.Sprintf("items[%d].quantityDispatched", i), ErrInvalidQuantity))
		}
	}
	return errs
}

func orderItemIDs(in []LineInput) []int64 {
	ids := make([]int64, 0, len(in))
	for _, line := range in {
		ids = append(ids, line.OrderItemID)
	}
	return ids
}

func referenceError(entity string, id int64, err error) error {
	if errors.Is(err, shared.ErrNotFound) {
		return shared.MissingReference(entity, id)
	}
	return err
}
