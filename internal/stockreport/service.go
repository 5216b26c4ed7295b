package stockreport

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/steelworks-erp/steelworks/internal/shared"
)

// Filter selects the statement window and items. Both dates are inclusive.
type Filter struct {
	Start       time.Time
	End         time.Time
	CategoryID  *int64
	IncludeZero *bool
}

// Repository loads the statement inputs from one consistent snapshot.
type Repository interface {
	Load(ctx context.Context, start, end time.Time, categoryID *int64) ([]Item, []Movement, error)
	Categories(ctx context.Context) ([]int64, error)
}

// Service builds stock statements.
type Service struct {
	repo        Repository
	cache       *Cache
	includeZero bool
	group       singleflight.Group
	logger      *slog.Logger
}

// NewService constructs the service. cache may be nil. includeZero is the
// default for filters that leave it unset.
func NewService(repo Repository, cache *Cache, includeZero bool, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, includeZero: includeZero, logger: logger}
}

// Generate returns the statement for f.
func (s *Service) Generate(ctx context.Context, f Filter) (Statement, error) {
	if err := validate(f); err != nil {
		return Statement{}, err
	}
	keepZero := s.includeZero
	if f.IncludeZero != nil {
		keepZero = *f.IncludeZero
	}
	// A category filter always lists that category's idle items.
	keepZero = keepZero || f.CategoryID != nil

	key, err := s.cache.BuildKey(ctx, cacheKeyParts(f, keepZero)...)
	if err != nil {
		return Statement{}, fmt.Errorf("stockreport: cache key: %w", err)
	}
	// The build outlives any one caller; each caller still honours its own ctx.
	buildCtx := context.WithoutCancel(ctx)
	res := s.group.DoChan(key, func() (any, error) {
		var st Statement
		err := s.cache.FetchJSON(buildCtx, key, &st, func(ctx context.Context) (any, error) {
			return s.build(ctx, f, keepZero)
		})
		return st, err
	})
	select {
	case <-ctx.Done():
		return Statement{}, ctx.Err()
	case r := <-res:
		if r.Err != nil {
			return Statement{}, fmt.Errorf("stockreport: generate: %w", r.Err)
		}
		return r.Val.(Statement), nil
	}
}

// Invalidate drops every cached statement.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// LedgerChanged invalidates the cache after a ledger write has committed.
func (s *Service) LedgerChanged(ctx context.Context) {
	if err := s.Invalidate(ctx); err != nil {
		s.logger.Warn("stock report cache invalidation failed", slog.Any("error", err))
	}
}

// Categories lists the item categories, for cache warmup.
func (s *Service) Categories(ctx context.Context) ([]int64, error) {
	return s.repo.Categories(ctx)
}

func (s *Service) build(ctx context.Context, f Filter, keepZero bool) (Statement, error) {
	items, movements, err := s.repo.Load(ctx, f.Start, f.End, f.CategoryID)
	if err != nil {
		return Statement{}, err
	}
	st := Aggregate(items, movements, f.Start, f.End)
	st.CategoryID = f.CategoryID
	if !keepZero {
		st = st.WithoutZeroLines()
	}
	return st, nil
}

func validate(f Filter) error {
	var errs shared.ValidationErrors
	if f.Start.IsZero() {
		errs = append(errs, shared.Validation("startDate", "is required"))
	}
	if f.End.IsZero() {
		errs = append(errs, shared.Validation("endDate", "is required"))
	}
	if len(errs) == 0 && f.Start.After(f.End) {
		errs = append(errs, shared.Validation("endDate", "must not be before startDate"))
	}
	if f.CategoryID != nil && *f.CategoryID <= 0 {
		errs = append(errs, shared.Validation("categoryId", "must be a positive integer"))
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func cacheKeyParts(f Filter, keepZero bool) []string {
	category := "all"
	if f.CategoryID != nil {
		category = strconv.FormatInt(*f.CategoryID, 10)
	}
	return []string{
		"stockreport", "statement",
		f.Start.Format(time.DateOnly), f.End.Format(time.DateOnly),
		category, strconv.FormatBool(keepZero),
	}
}
