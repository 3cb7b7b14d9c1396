package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryStore is a Store held in process memory. A background sweeper
// releases expired entries; call Stop to end it.
type MemoryStore struct {
	items    *ttlcache.Cache[string, []byte]
	stopOnce sync.Once
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore with its sweeper running.
func NewMemoryStore() *MemoryStore {
	items := ttlcache.New[string, []byte](
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)
	go items.Start()
	return &MemoryStore{items: items}
}

// Stop ends the expiry sweeper. The store stays usable; expired entries are
// then only hidden, not released.
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(s.items.Stop)
}

// Len reports how many entries are held, expired ones included.
func (s *MemoryStore) Len() int {
	return s.items.Len()
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	item := s.items.Get(key)
	if item == nil || item.IsExpired() {
		return nil, ErrMiss
	}
	v := item.Value()
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set implements Store. A non-positive ttl keeps the entry until deleted.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	v := make([]byte, len(value))
	copy(v, value)
	s.items.Set(key, v, ttl)
	return nil
}

// Del implements Store.
func (s *MemoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		s.items.Delete(k)
	}
	return nil
}

// Keys implements Store. Results are sorted.
func (s *MemoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	keys := make([]string, 0)
	for k, item := range s.items.Items() {
		if item.IsExpired() {
			continue
		}
		if Match(pattern, k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
