package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/steelworks-erp/steelworks/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	StockCard(ctx context.Context, itemID int64, start, end time.Time) (decimal.Decimal, []Entry, error)
	ItemExists(ctx context.Context, itemID int64) (bool, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	Store
	ItemExists(ctx context.Context, itemID int64) (bool, error)
}

// ManualEntryInput is a hand-keyed ledger movement such as an opening balance.
type ManualEntryInput struct {
	Date          time.Time
	Type          TransactionType
	ItemID        int64
	Quantity      decimal.Decimal
	Rate          decimal.Decimal
	ReferenceType string
	ReferenceID   *int64
	Remarks       string
}

// Service handles manual ledger entries and the stock card view.
type Service struct {
	repo     RepositoryPort
	ledger   *Ledger
	notifier ChangeNotifier
	logger   *slog.Logger
}

// NewService builds Service. notifier may be nil.
func NewService(repo RepositoryPort, ledger *Ledger, notifier ChangeNotifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, ledger: ledger, notifier: notifier, logger: logger}
}

// CreateManual records one manual movement. Unlike event-driven rows, manual
// entries need a strictly positive rate.
func (s *Service) CreateManual(ctx context.Context, in ManualEntryInput) (Entry, error) {
	if !in.Rate.IsPositive() {
		return Entry{}, shared.Validation("rate", "must be greater than zero")
	}
	refType := strings.ToUpper(strings.TrimSpace(in.ReferenceType))
	if refType == "" {
		refType = RefManual
	}
	if EventOwned(refType) {
		return Entry{}, shared.Validation("referenceType", "%s rows are owned by their event", refType)
	}
	var recorded Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if in.ItemID > 0 {
			exists, err := tx.ItemExists(ctx, in.ItemID)
			if err != nil {
				return err
			}
			if !exists {
				return shared.MissingReference("item", in.ItemID)
			}
		}
		entry, err := s.ledger.Record(ctx, tx, Entry{
			Date:          in.Date,
			Type:          in.Type,
			ItemID:        in.ItemID,
			Quantity:      in.Quantity,
			Rate:          in.Rate,
			ReferenceType: refType,
			ReferenceID:   in.ReferenceID,
			Remarks:       in.Remarks,
		})
		if err != nil {
			return err
		}
		recorded = entry
		return nil
	})
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: manual entry: %w", err)
	}
	s.logger.Info("manual stock transaction recorded",
		slog.Int64("id", recorded.ID),
		slog.String("type", string(recorded.Type)),
		slog.Int64("item_id", recorded.ItemID))
	if s.notifier != nil {
		s.notifier.LedgerChanged(ctx)
	}
	return recorded, nil
}

// StockCard lists an item's movements in [start, end] with running balances.
func (s *Service) StockCard(ctx context.Context, itemID int64, start, end time.Time) (StockCard, error) {
	if itemID <= 0 {
		return StockCard{}, shared.Validation("itemId", "is required")
	}
	if end.Before(start) {
		return StockCard{}, shared.Validation("endDate", "must not be before startDate")
	}
	exists, err := s.repo.ItemExists(ctx, itemID)
	if err != nil {
		return StockCard{}, err
	}
	if !exists {
		return StockCard{}, fmt.Errorf("item %d: %w", itemID, shared.ErrNotFound)
	}
	opening, entries, err := s.repo.StockCard(ctx, itemID, start, end)
	if err != nil {
		return StockCard{}, fmt.Errorf("ledger: stock card: %w", err)
	}
	card := StockCard{ItemID: itemID, StartDate: start, EndDate: end, OpeningQty: opening, Entries: make([]CardEntry, 0, len(entries))}
	balance := opening
	for _, e := range entries {
		balance = balance.Add(e.SignedQuantity())
		card.Entries = append(card.Entries, CardEntry{Entry: e, BalanceQty: balance})
	}
	card.ClosingQty = balance
	return card, nil
}
