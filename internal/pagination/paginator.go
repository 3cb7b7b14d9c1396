package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/tasktrail-api/internal/cache"
	"github.com/phrazzld/tasktrail-api/internal/config"
	"github.com/phrazzld/tasktrail-api/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// Defaults used when the configuration leaves a value unset.
const (
	DefaultLimit = 25
	MaxLimit     = 100
	DefaultTTL   = 60 * time.Second
)

// Paginator runs paginated reads through a cache.Store.
type Paginator struct {
	cache        cache.Store
	ttl          time.Duration
	defaultLimit int
	maxLimit     int
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// Option customizes a Paginator.
type Option func(*Paginator)

// WithLimits overrides the default and maximum page size.
func WithLimits(defaultLimit, maxLimit int) Option {
	return func(p *Paginator) {
		if maxLimit > 0 {
			p.maxLimit = maxLimit
		}
		if defaultLimit > 0 {
			p.defaultLimit = defaultLimit
		}
	}
}

// WithTTL overrides how long pages stay cached.
func WithTTL(ttl time.Duration) Option {
	return func(p *Paginator) {
		if ttl > 0 {
			p.ttl = ttl
		}
	}
}

// WithMetrics records cache hits, misses and errors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Paginator) { p.metrics = m }
}

// NewPaginator creates a Paginator. A nil logger falls back to slog.Default().
func NewPaginator(store cache.Store, logger *slog.Logger, opts ...Option) *Paginator {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Paginator{
		cache:        store,
		ttl:          DefaultTTL,
		defaultLimit: DefaultLimit,
		maxLimit:     MaxLimit,
		logger:       logger.With(slog.String("component", "paginator")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewPaginatorFromConfig applies the pagination and cache settings.
func NewPaginatorFromConfig(
	store cache.Store,
	logger *slog.Logger,
	m *metrics.Metrics,
	pcfg config.PaginationConfig,
	ccfg config.CacheConfig,
) *Paginator {
	return NewPaginator(store, logger,
		WithLimits(pcfg.DefaultLimit, pcfg.MaxLimit),
		WithTTL(ccfg.TTL),
		WithMetrics(m),
	)
}

// Bounds returns the effective limit, page and skip for a request.
func (p *Paginator) Bounds(page, limit int) (effLimit, effPage, skip int) {
	effLimit = limit
	if effLimit <= 0 {
		effLimit = p.defaultLimit
	}
	if effLimit > p.maxLimit {
		effLimit = p.maxLimit
	}
	effPage = page
	if effPage < 1 {
		effPage = 1
	}
	return effLimit, effPage, (effPage - 1) * effLimit
}

type cachedPage[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

// Paginate reads one page of coll. Only count or fetch failures are returned.
func Paginate[T any](ctx context.Context, p *Paginator, collection string, coll Collection[T], q Query) (Page[T], error) {
	limit, page, skip := p.Bounds(q.Page, q.Limit)
	log := p.logger.With(slog.String("collection", collection))

	key, keyErr := CacheKey(collection, q, limit, page)
	if keyErr != nil {
		log.WarnContext(ctx, "cannot build cache key, bypassing cache", slog.Any("error", keyErr))
	}

	if keyErr == nil && p.cache != nil {
		if cached, ok := readCache[T](ctx, p, log, collection, key); ok {
			return Page[T]{Data: cached.Data, Meta: NewMeta(cached.Total, page, limit)}, nil
		}
	}

	var (
		data  []T
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := coll.FindMany(gctx, FindArgs{
			Where:   q.Where,
			Include: q.Include,
			OrderBy: q.OrderBy,
			Skip:    skip,
			Take:    limit,
		})
		if err != nil {
			return fmt.Errorf("find %s: %w", collection, err)
		}
		data = rows
		return nil
	})
	g.Go(func() error {
		n, err := coll.Count(gctx, q.Where)
		if err != nil {
			return fmt.Errorf("count %s: %w", collection, err)
		}
		total = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return Page[T]{}, err
	}
	if data == nil {
		data = []T{}
	}

	if keyErr == nil && p.cache != nil {
		writeCache(ctx, p, log, key, cachedPage[T]{Data: data, Total: total})
	}

	return Page[T]{Data: data, Meta: NewMeta(total, page, limit)}, nil
}

func readCache[T any](ctx context.Context, p *Paginator, log *slog.Logger, collection, key string) (cachedPage[T], bool) {
	raw, err := p.cache.Get(ctx, key)
	if errors.Is(err, cache.ErrMiss) {
		p.metrics.CacheLookup(collection, metrics.CacheMiss)
		return cachedPage[T]{}, false
	}
	if err != nil {
		p.metrics.CacheLookup(collection, metrics.CacheError)
		log.WarnContext(ctx, "cache get failed, treating as miss", slog.String("key", key), slog.Any("error", err))
		return cachedPage[T]{}, false
	}

	var cached cachedPage[T]
	if err := json.Unmarshal(raw, &cached); err != nil {
		p.metrics.CacheLookup(collection, metrics.CacheError)
		log.WarnContext(ctx, "cached page is corrupt, treating as miss", slog.String("key", key), slog.Any("error", err))
		return cachedPage[T]{}, false
	}
	if cached.Data == nil {
		cached.Data = []T{}
	}
	p.metrics.CacheLookup(collection, metrics.CacheHit)
	return cached, true
}

func writeCache[T any](ctx context.Context, p *Paginator, log *slog.Logger, key string, value cachedPage[T]) {
	raw, err := json.Marshal(value)
	if err != nil {
		log.WarnContext(ctx, "cannot encode page for cache", slog.String("key", key), slog.Any("error", err))
		return
	}
	if err := p.cache.Set(ctx, key, raw, p.ttl); err != nil {
		log.WarnContext(ctx, "cache set failed", slog.String("key", key), slog.Any("error", err))
	}
}

// ClearCache deletes every cached page of collection. Errors are logged and
// returned so explicit callers can react; they never affect reads.
func (p *Paginator) ClearCache(ctx context.Context, collection string) error {
	if p.cache == nil {
		return nil
	}
	log := p.logger.With(slog.String("collection", collection))

	keys, err := p.cache.Keys(ctx, CollectionPattern(collection))
	if err != nil {
		log.WarnContext(ctx, "cache keys lookup failed", slog.Any("error", err))
		return fmt.Errorf("list cache keys for %s: %w", collection, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := p.cache.Del(ctx, keys...); err != nil {
		log.WarnContext(ctx, "cache delete failed", slog.Int("keys", len(keys)), slog.Any("error", err))
		return fmt.Errorf("delete cache keys for %s: %w", collection, err)
	}
	log.DebugContext(ctx, "cleared cached pages", slog.Int("keys", len(keys)))
	return nil
}
