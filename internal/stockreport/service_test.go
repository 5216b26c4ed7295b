package stockreport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steelworks-erp/steelworks/internal/ledger"
	"github.com/steelworks-erp/steelworks/internal/shared"
)

type fakeRepo struct {
	mu        sync.Mutex
	items     []Item
	movements []Movement
	loads     atomic.Int32
	err       error
}

func (f *fakeRepo) Load(_ context.Context, _, _ time.Time, categoryID *int64) ([]Item, []Movement, error) {
	f.loads.Add(1)
	if f.err != nil {
		return nil, nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []Item
	for _, it := range f.items {
		if categoryID == nil || it.CategoryID == *categoryID {
			items = append(items, it)
		}
	}
	return items, append([]Movement(nil), f.movements...), nil
}

func (f *fakeRepo) Categories(context.Context) ([]int64, error) {
	return []int64{1, 2, 4}, nil
}

func (f *fakeRepo) add(m Movement) {
	f.mu.Lock()
	f.movements = append(f.movements, m)
	f.mu.Unlock()
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		items: testItems,
		movements: []Movement{
			mv(2, "2024-03-15", ledger.TypeOpening, "1000", "30"),
			mv(2, "2024-04-02", ledger.TypeReceipt, "250.5", "31.25"),
			mv(2, "2024-04-20", ledger.TypeIssue, "400", "30.20"),
			mv(1, "2024-04-18", ledger.TypeReceipt, "1000", "65"),
		},
	}
}

func april() Filter {
	return Filter{Start: day("2024-04-01"), End: day("2024-04-30")}
}

func ptr[T any](v T) *T { return &v }

func newRedisCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), mr
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return string(raw)
}

func TestGenerateIsIdempotent(t *testing.T) {
	redisCache, _ := newRedisCache(t)
	for name, cache := range map[string]*Cache{"no cache": nil, "redis": redisCache} {
		t.Run(name, func(t *testing.T) {
			repo := newFakeRepo()
			svc := NewService(repo, cache, false, nil)

			first, err := svc.Generate(context.Background(), april())
			require.NoError(t, err)
			second, err := svc.Generate(context.Background(), april())
			require.NoError(t, err)
			require.JSONEq(t, mustJSON(t, first), mustJSON(t, second))

			require.Len(t, first.Lines, 2)
			scrap := first.Lines[1]
			require.Equal(t, "MS Scrap", scrap.ItemName)
			require.True(t, dec("1000").Equal(scrap.OpeningQty))
			require.True(t, dec("850.5").Equal(scrap.ClosingQty))
			require.True(t, dec("25748.13").Equal(scrap.ClosingAmount))
		})
	}
}

func TestGenerateServesFromCacheUntilLedgerChanges(t *testing.T) {
	cache, mr := newRedisCache(t)
	repo := newFakeRepo()
	svc := NewService(repo, cache, false, nil)
	ctx := context.Background()

	before, err := svc.Generate(ctx, april())
	require.NoError(t, err)
	_, err = svc.Generate(ctx, april())
	require.NoError(t, err)
	require.EqualValues(t, 1, repo.loads.Load())

	repo.add(mv(2, "2024-04-25", ledger.TypeIssue, "50", "30"))
	svc.LedgerChanged(ctx)
	version, err := mr.Get(cacheVersionKey)
	require.NoError(t, err)
	require.Equal(t, "2", version)

	after, err := svc.Generate(ctx, april())
	require.NoError(t, err)
	require.EqualValues(t, 2, repo.loads.Load())
	require.True(t, before.Lines[1].ClosingQty.Sub(dec("50")).Equal(after.Lines[1].ClosingQty))
}

func TestGenerateCollapsesConcurrentBuilds(t *testing.T) {
	cache, _ := newRedisCache(t)
	repo := newFakeRepo()
	svc := NewService(repo, cache, false, nil)

	var wg sync.WaitGroup
	results := make([]Statement, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st, err := svc.Generate(context.Background(), april())
			assert.NoError(t, err)
			results[i] = st
		}(i)
	}
	wg.Wait()
	for _, st := range results[1:] {
		require.JSONEq(t, mustJSON(t, results[0]), mustJSON(t, st))
	}
	require.Len(t, results[0].Lines, 2)
}

type gatedRepo struct {
	*fakeRepo
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (g *gatedRepo) Load(ctx context.Context, start, end time.Time, categoryID *int64) ([]Item, []Movement, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return g.fakeRepo.Load(ctx, start, end, categoryID)
}

func TestGenerateSharedBuildSurvivesCallerCancel(t *testing.T) {
	repo := &gatedRepo{fakeRepo: newFakeRepo(), started: make(chan struct{}), release: make(chan struct{})}
	svc := NewService(repo, nil, false, nil)

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Generate(firstCtx, april())
		firstErr <- err
	}()
	<-repo.started

	type result struct {
		st  Statement
		err error
	}
	second := make(chan result, 1)
	go func() {
		st, err := svc.Generate(context.Background(), april())
		second <- result{st, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)
	close(repo.release)

	r := <-second
	require.NoError(t, r.err)
	require.Len(t, r.st.Lines, 2)
	require.EqualValues(t, 1, repo.loads.Load())
}

func TestGenerateZeroLineRules(t *testing.T) {
	svc := NewService(newFakeRepo(), nil, false, nil)
	ctx := context.Background()

	st, err := svc.Generate(ctx, april())
	require.NoError(t, err)
	require.Len(t, st.Lines, 2)

	f := april()
	f.IncludeZero = ptr(true)
	st, err = svc.Generate(ctx, f)
	require.NoError(t, err)
	require.Len(t, st.Lines, 4)

	f = april()
	f.CategoryID = ptr(int64(1))
	st, err = svc.Generate(ctx, f)
	require.NoError(t, err)
	require.Len(t, st.Lines, 2)
	require.Equal(t, "Cast Iron Scrap", st.Lines[0].ItemName)
	require.True(t, st.Lines[0].IsZero())
	require.Equal(t, int64(1), *st.CategoryID)

	withDefault := NewService(newFakeRepo(), nil, true, nil)
	st, err = withDefault.Generate(ctx, april())
	require.NoError(t, err)
	require.Len(t, st.Lines, 4)
}

func TestGenerateValidation(t *testing.T) {
	svc := NewService(newFakeRepo(), nil, false, nil)

	_, err := svc.Generate(context.Background(), Filter{})
	var verrs shared.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Contains(t, verrs.Fields(), "startDate")
	require.Contains(t, verrs.Fields(), "endDate")

	_, err = svc.Generate(context.Background(), Filter{Start: day("2024-05-01"), End: day("2024-04-01")})
	require.ErrorIs(t, err, shared.ErrValidation)

	f := april()
	f.CategoryID = ptr(int64(0))
	_, err = svc.Generate(context.Background(), f)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestGenerateSurfacesRepositoryErrors(t *testing.T) {
	repo := newFakeRepo()
	repo.err = shared.ErrStorage
	svc := NewService(repo, nil, false, nil)

	_, err := svc.Generate(context.Background(), april())
	require.True(t, errors.Is(err, shared.ErrStorage))
}
