package pagination_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phrazzld/tasktrail-api/internal/cache"
	"github.com/phrazzld/tasktrail-api/internal/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// fakeCollection serves a fixed slice and counts calls.
type fakeCollection struct {
	items      []item
	countCalls atomic.Int32
	findCalls  atomic.Int32
	lastArgs   pagination.FindArgs
	mu         sync.Mutex
	countErr   error
	findErr    error

	// barrier, when set, makes Count and FindMany each wait for the other.
	barrier *sync.WaitGroup
}

func (c *fakeCollection) Count(ctx context.Context, where pagination.Where) (int, error) {
	c.countCalls.Add(1)
	if err := c.await(ctx); err != nil {
		return 0, err
	}
	if c.countErr != nil {
		return 0, c.countErr
	}
	return len(c.items), nil
}

func (c *fakeCollection) FindMany(ctx context.Context, args pagination.FindArgs) ([]item, error) {
	c.findCalls.Add(1)
	c.mu.Lock()
	c.lastArgs = args
	c.mu.Unlock()
	if err := c.await(ctx); err != nil {
		return nil, err
	}
	if c.findErr != nil {
		return nil, c.findErr
	}
	if args.Skip >= len(c.items) {
		return []item{}, nil
	}
	end := args.Skip + args.Take
	if end > len(c.items) {
		end = len(c.items)
	}
	return append([]item(nil), c.items[args.Skip:end]...), nil
}

func (c *fakeCollection) await(ctx context.Context) error {
	if c.barrier == nil {
		return nil
	}
	c.barrier.Done()
	done := make(chan struct{})
	go func() {
		c.barrier.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(2 * time.Second):
		return errors.New("count and find were not issued concurrently")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newItems(n int) []item {
	items := make([]item, n)
	for i := range items {
		items[i] = item{ID: i + 1, Name: "item"}
	}
	return items
}

// failingStore errors on every operation.
type failingStore struct {
	gets, sets atomic.Int32
}

func (s *failingStore) Get(context.Context, string) ([]byte, error) {
	s.gets.Add(1)
	return nil, errors.New("connection refused")
}

func (s *failingStore) Set(context.Context, string, []byte, time.Duration) error {
	s.sets.Add(1)
	return errors.New("connection refused")
}

func (s *failingStore) Del(context.Context, ...string) error {
	return errors.New("connection refused")
}

func (s *failingStore) Keys(context.Context, string) ([]string, error) {
	return nil, errors.New("connection refused")
}

func quietLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestBounds(t *testing.T) {
	p := pagination.NewPaginator(nil, nil)

	tests := []struct {
		name                      string
		page, limit               int
		wantLimit, wantPage, skip int
	}{
		{"defaults", 0, 0, 25, 1, 0},
		{"explicit", 3, 10, 10, 3, 20},
		{"clamped to max", 2, 500, 100, 2, 100},
		{"exactly max", 1, 100, 100, 1, 0},
		{"negative page", -4, 5, 5, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limit, page, skip := p.Bounds(tt.page, tt.limit)
			assert.Equal(t, tt.wantLimit, limit)
			assert.Equal(t, tt.wantPage, page)
			assert.Equal(t, tt.skip, skip)
		})
	}
}

func TestPaginate_MetaMatchesCeilDivision(t *testing.T) {
	ctx := context.Background()
	for _, total := range []int{0, 1, 24, 25, 26, 99, 100, 101, 250} {
		for _, limit := range []int{0, 1, 7, 25, 100, 150} {
			coll := &fakeCollection{items: newItems(total)}
			p := pagination.NewPaginator(nil, nil)

			res, err := pagination.Paginate[item](ctx, p, "item", coll, pagination.Query{Limit: limit})
			require.NoError(t, err)

			wantPerPage := limit
			if wantPerPage == 0 {
				wantPerPage = pagination.DefaultLimit
			}
			if wantPerPage > pagination.MaxLimit {
				wantPerPage = pagination.MaxLimit
			}
			wantPages := (total + wantPerPage - 1) / wantPerPage

			assert.Equal(t, total, res.Meta.Total)
			assert.Equal(t, 1, res.Meta.Page)
			assert.Equal(t, wantPerPage, res.Meta.PerPage, "total=%d limit=%d", total, limit)
			assert.Equal(t, wantPages, res.Meta.TotalPages, "total=%d limit=%d", total, limit)
			assert.LessOrEqual(t, len(res.Data), wantPerPage)
		}
	}
}

func TestPaginate_SecondIdenticalCallHitsCache(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()
	p := pagination.NewPaginator(store, nil)
	coll := &fakeCollection{items: newItems(5)}

	first := pagination.Query{
		Where:   pagination.Where{"status": "todo", "projectId": "p1", "priority": "high"},
		OrderBy: []pagination.Order{{Field: "createdAt", Direction: pagination.Desc}},
		Page:    1,
		Limit:   2,
	}
	second := pagination.Query{
		Where:   pagination.Where{"priority": "high", "projectId": "p1", "status": "todo"},
		OrderBy: []pagination.Order{{Field: "createdAt", Direction: pagination.Desc}},
		Page:    1,
		Limit:   2,
	}

	res1, err := pagination.Paginate[item](ctx, p, "item", coll, first)
	require.NoError(t, err)
	res2, err := pagination.Paginate[item](ctx, p, "item", coll, second)
	require.NoError(t, err)

	assert.Equal(t, int32(1), coll.findCalls.Load())
	assert.Equal(t, int32(1), coll.countCalls.Load())
	assert.Equal(t, res1, res2)
	assert.Equal(t, []item{{ID: 1, Name: "item"}, {ID: 2, Name: "item"}}, res2.Data)
	assert.Equal(t, pagination.Meta{Total: 5, Page: 1, PerPage: 2, TotalPages: 3}, res2.Meta)
}

func TestPaginate_DifferentPagesUseDifferentEntries(t *testing.T) {
	ctx := context.Background()
	p := pagination.NewPaginator(cache.NewMemoryStore(), nil)
	coll := &fakeCollection{items: newItems(5)}

	_, err := pagination.Paginate[item](ctx, p, "item", coll, pagination.Query{Page: 1, Limit: 2})
	require.NoError(t, err)
	res, err := pagination.Paginate[item](ctx, p, "item", coll, pagination.Query{Page: 2, Limit: 2})
	require.NoError(t, err)

	assert.Equal(t, int32(2), coll.findCalls.Load())
	assert.Equal(t, []item{{ID: 3, Name: "item"}, {ID: 4, Name: "item"}}, res.Data)
	assert.Equal(t, 2, coll.lastArgs.Skip)
	assert.Equal(t, 2, coll.lastArgs.Take)
}

func TestPaginate_FailingCacheDoesNotChangeResult(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	store := &failingStore{}
	coll := &fakeCollection{items: newItems(7)}
	q := pagination.Query{Where: pagination.Where{"status": "done"}, Page: 2, Limit: 3}

	healthy, err := pagination.Paginate[item](ctx, pagination.NewPaginator(nil, nil), "item", coll, q)
	require.NoError(t, err)

	broken, err := pagination.Paginate[item](ctx, pagination.NewPaginator(store, quietLogger(&logs)), "item", coll, q)
	require.NoError(t, err)

	assert.Equal(t, healthy, broken)
	assert.Equal(t, int32(1), store.gets.Load())
	assert.Equal(t, int32(1), store.sets.Load())
	assert.Contains(t, logs.String(), "cache get failed")
	assert.Contains(t, logs.String(), "cache set failed")
}

func TestPaginate_CountAndFindRunConcurrently(t *testing.T) {
	var barrier sync.WaitGroup
	barrier.Add(2)
	coll := &fakeCollection{items: newItems(3), barrier: &barrier}

	res, err := pagination.Paginate[item](context.Background(), pagination.NewPaginator(nil, nil), "item", coll, pagination.Query{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Meta.Total)
}

func TestPaginate_StoreErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()
	p := pagination.NewPaginator(store, nil)
	boom := errors.New("db down")

	_, err := pagination.Paginate[item](ctx, p, "item", &fakeCollection{countErr: boom}, pagination.Query{})
	assert.ErrorIs(t, err, boom)

	_, err = pagination.Paginate[item](ctx, p, "item", &fakeCollection{findErr: boom}, pagination.Query{})
	assert.ErrorIs(t, err, boom)

	keys, err := store.Keys(ctx, "*")
	require.NoError(t, err)
	assert.Empty(t, keys, "failed reads must not be cached")
}

func TestPaginate_EmptyResultIsNonNilSlice(t *testing.T) {
	res, err := pagination.Paginate[item](context.Background(), pagination.NewPaginator(nil, nil), "item", &fakeCollection{}, pagination.Query{})
	require.NoError(t, err)
	assert.NotNil(t, res.Data)
	assert.Empty(t, res.Data)
	assert.Equal(t, 0, res.Meta.TotalPages)
}

func TestClearCache_RemovesOnlyThatCollection(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()
	p := pagination.NewPaginator(store, nil)
	tasks := &fakeCollection{items: newItems(3)}
	activities := &fakeCollection{items: newItems(2)}

	_, err := pagination.Paginate[item](ctx, p, "task", tasks, pagination.Query{Page: 1})
	require.NoError(t, err)
	_, err = pagination.Paginate[item](ctx, p, "task", tasks, pagination.Query{Page: 2, CacheKeyPrefix: "mine"})
	require.NoError(t, err)
	_, err = pagination.Paginate[item](ctx, p, "activity", activities, pagination.Query{})
	require.NoError(t, err)

	require.NoError(t, p.ClearCache(ctx, "task"))

	keys, err := store.Keys(ctx, "*")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Contains(t, keys[0], "paginate:activity:")

	_, err = pagination.Paginate[item](ctx, p, "task", tasks, pagination.Query{Page: 1})
	require.NoError(t, err)
	assert.Equal(t, int32(3), tasks.findCalls.Load())
}

func TestClearCache_ReportsCacheFailure(t *testing.T) {
	var logs bytes.Buffer
	p := pagination.NewPaginator(&failingStore{}, quietLogger(&logs))
	assert.Error(t, p.ClearCache(context.Background(), "task"))
	assert.Contains(t, logs.String(), "cache keys lookup failed")
}
