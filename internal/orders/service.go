package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/steelworks-erp/steelworks/internal/gst"
	"github.com/steelworks-erp/steelworks/internal/shared"
)

// IdempotencyModule scopes Idempotency-Key values for order creation.
const IdempotencyModule = "orders"

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (Order, error)
	ListItemBalances(ctx context.Context, orderID int64) ([]ItemBalance, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetCustomer(ctx context.Context, id int64) (Customer, error)
	GetOrderCustomer(ctx context.Context, orderID int64) (Customer, error)
	GetItems(ctx context.Context, ids []int64) (map[int64]Item, error)
	InsertOrder(ctx context.Context, order Order) (int64, error)
	InsertOrderItem(ctx context.Context, item OrderItem) (int64, error)
	LockOrderItem(ctx context.Context, orderID, orderItemID int64) (OrderItem, error)
	DispatchedQuantity(ctx context.Context, orderItemID int64) (decimal.Decimal, error)
	UpdateOrderItem(ctx context.Context, item OrderItem) error
	DeleteOrderItem(ctx context.Context, orderItemID int64) error
	CountOrderItems(ctx context.Context, orderID int64) (int, error)
	ClaimIdempotency(ctx context.Context, claim shared.IdempotencyClaim) error
	CompleteIdempotency(ctx context.Context, claim shared.IdempotencyClaim, resourceID int64) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig groups tax settings.
type ServiceConfig struct {
	CompanyState     string
	RejectBlankState bool
}

// Service coordinates order operations.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	cfg    ServiceConfig
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, cfg: cfg, logger: logger}
}

// CreateOrder validates and persists an order and all its lines atomically.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput, claim shared.IdempotencyClaim) (Order, error) {
	if err := validateCreate(in); err != nil {
		return Order{}, err
	}
	var created Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.ClaimIdempotency(ctx, claim); err != nil {
			return err
		}
		customer, err := tx.GetCustomer(ctx, in.CustomerID)
		if err != nil {
			return referenceError("customer", in.CustomerID, err)
		}
		if err := s.checkState(customer); err != nil {
			return err
		}
		items, err := tx.GetItems(ctx, itemIDs(in.Items))
		if err != nil {
			return err
		}

		order := Order{CustomerID: customer.ID, OrderDate: in.OrderDate}
		for i, line := range in.Items {
			item, ok := items[line.ItemID]
			if !ok {
				ce := shared.MissingReference("item", line.ItemID)
				ce.Detail = fmt.Sprintf("items[%d]", i)
				return ce
			}
			order.Items = append(order.Items, s.price(OrderItem{ItemID: item.ID, Quantity: line.Quantity, Rate: line.Rate}, customer, item))
		}

		orderID, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return err
		}
		order.ID = orderID
		for i := range order.Items {
			order.Items[i].OrderID = orderID
			id, err := tx.InsertOrderItem(ctx, order.Items[i])
			if err != nil {
				return err
			}
			order.Items[i].ID = id
			order.Items[i].BalanceQty = order.Items[i].Quantity
		}
		if err := tx.CompleteIdempotency(ctx, claim, orderID); err != nil {
			return err
		}
		created = order
		return nil
	})
	if err != nil {
		return Order{}, fmt.Errorf("orders: create: %w", err)
	}
	s.record(ctx, "order.created", created.ID, map[string]any{"customer_id": created.CustomerID, "items": len(created.Items)})
	return created, nil
}

// GetOrder returns the order with derived balances per line.
func (s *Service) GetOrder(ctx context.Context, id int64) (Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return Order{}, fmt.Errorf("orders: get %d: %w", id, err)
	}
	return order, nil
}

// GetBalance returns ordered, dispatched and balance quantities per line.
func (s *Service) GetBalance(ctx context.Context, orderID int64) (Balance, error) {
	items, err := s.repo.ListItemBalances(ctx, orderID)
	if err != nil {
		return Balance{}, fmt.Errorf("orders: balance %d: %w", orderID, err)
	}
	return Balance{OrderID: orderID, Items: items}, nil
}

// ReviseItem changes a line's quantity and/or rate and recomputes amount and
// GST. The quantity may not drop below what has already been dispatched.
func (s *Service) ReviseItem(ctx context.Context, orderID, orderItemID int64, in ReviseItemInput) (OrderItem, error) {
	if in.Quantity == nil && in.Rate == nil {
		return OrderItem{}, shared.InvalidField("quantity", ErrNothingToRevise)
	}
	if in.Quantity != nil && !in.Quantity.IsPositive() {
		return OrderItem{}, shared.InvalidField("quantity", ErrInvalidQuantity)
	}
	if in.Rate != nil && in.Rate.IsNegative() {
		return OrderItem{}, shared.InvalidField("rate", ErrInvalidRate)
	}
	var revised OrderItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockOrderItem(ctx, orderID, orderItemID)
		if err != nil {
			return err
		}
		dispatched, err := tx.DispatchedQuantity(ctx, orderItemID)
		if err != nil {
			return err
		}
		next := current
		if in.Quantity != nil {
			next.Quantity = *in.Quantity
		}
		if in.Rate != nil {
			next.Rate = *in.Rate
		}
		if next.Quantity.LessThan(dispatched) {
			return &shared.ConstraintError{
				Entity: "order item", ID: orderItemID, Err: ErrQuantityBelowDispatched,
				Detail: fmt.Sprintf("requested %s, dispatched %s", next.Quantity, dispatched),
			}
		}
		customer, err := tx.GetOrderCustomer(ctx, orderID)
		if err != nil {
			return err
		}
		if err := s.checkState(customer); err != nil {
			return err
		}
		items, err := tx.GetItems(ctx, []int64{current.ItemID})
		if err != nil {
			return err
		}
		item, ok := items[current.ItemID]
		if !ok {
			return shared.MissingReference("item", current.ItemID)
		}
		next = s.price(next, customer, item)
		if err := tx.UpdateOrderItem(ctx, next); err != nil {
			return err
		}
		next.DispatchedQty = dispatched
		next.BalanceQty = next.Quantity.Sub(dispatched)
		revised = next
		return nil
	})
	if err != nil {
		return OrderItem{}, fmt.Errorf("orders: revise item %d: %w", orderItemID, err)
	}
	s.record(ctx, "order_item.revised", orderItemID, map[string]any{"order_id": orderID, "quantity": revised.Quantity.String(), "rate": revised.Rate.String()})
	return revised, nil
}

// DeleteItem removes an undispatched line. Lines referenced by any dispatch
// are permanent.
func (s *Service) DeleteItem(ctx context.Context, orderID, orderItemID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockOrderItem(ctx, orderID, orderItemID); err != nil {
			return err
		}
		dispatched, err := tx.DispatchedQuantity(ctx, orderItemID)
		if err != nil {
			return err
		}
		if dispatched.IsPositive() {
			return &shared.ConstraintError{Entity: "order item", ID: orderItemID, Err: ErrItemDispatched, Detail: fmt.Sprintf("dispatched %s", dispatched)}
		}
		count, err := tx.CountOrderItems(ctx, orderID)
		if err != nil {
			return err
		}
		if count <= 1 {
			return &shared.ConstraintError{Entity: "order", ID: orderID, Err: ErrLastItem}
		}
		return tx.DeleteOrderItem(ctx, orderItemID)
	})
	if err != nil {
		return fmt.Errorf("orders: delete item %d: %w", orderItemID, err)
	}
	s.record(ctx, "order_item.deleted", orderItemID, map[string]any{"order_id": orderID})
	return nil
}

func (s *Service) price(line OrderItem, customer Customer, item Item) OrderItem {
	line.Amount = line.Quantity.Mul(line.Rate).Round(2)
	split := gst.Split(customer.State, s.cfg.CompanyState, line.Amount, item.GSTRate)
	line.CGST, line.SGST, line.IGST = split.CGST, split.SGST, split.IGST
	line.TotalAmount = line.Amount.Add(split.Total())
	return line
}

func (s *Service) checkState(c Customer) error {
	if s.cfg.RejectBlankState && strings.TrimSpace(c.State) == "" {
		return &shared.ValidationError{Field: "customerId", Message: ErrBlankState.Error(), Err: ErrBlankState}
	}
	return nil
}

func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Actor: shared.ActorFromContext(ctx), Action: action, Entity: "order", EntityID: id, Meta: meta}); err != nil {
		s.logger.Warn("audit log failed", slog.String("action", action), slog.Int64("entity_id", id), slog.Any("error", err))
	}
}

func validateCreate(in CreateOrderInput) error {
	var errs shared.ValidationErrors
	if in.CustomerID <= 0 {
		errs = append(errs, shared.Validation("customerId", "is required"))
	}
	if in.OrderDate.IsZero() {
		errs = append(errs, shared.Validation("orderDate", "is required"))
	}
	if len(in.Items) == 0 {
		errs = append(errs, shared.InvalidField("items", ErrNoItems))
	}
	for i, it := range in.Items {
		if it.ItemID <= 0 {
			errs = append(errs, shared.Validation(fmt.Sprintf("items[%d].itemId", i), "is required"))
		}
		if !it.Quantity.IsPositive() {
			errs = append(errs, shared.InvalidField(fmt.Sprintf("items[%d].quantity", i), ErrInvalidQuantity))
		}
		if it.Rate.IsNegative() {
			errs = append(errs, shared.InvalidField(fmt.Sprintf("items[%d].rate", i), ErrInvalidRate))
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func itemIDs(lines []CreateItemInput) []int64 {
	seen := make(map[int64]struct{}, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.ItemID]; ok {
			continue
		}
		seen[l.ItemID] = struct{}{}
		ids = append(ids, l.ItemID)
	}
	return ids
}

func referenceError(entity string, id int64, err error) error {
	if errors.Is(err, shared.ErrNotFound) {
		return shared.MissingReference(entity, id)
	}
	return err
}
