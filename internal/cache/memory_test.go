package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetSet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	t.Cleanup(s.Stop)

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	got[0] = 'x'
	again, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), again, "callers must not mutate stored values")
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	t.Cleanup(s.Stop)

	require.NoError(t, s.Set(ctx, "short", []byte("v"), 20*time.Millisecond))
	require.NoError(t, s.Set(ctx, "long", []byte("v"), time.Minute))
	require.NoError(t, s.Set(ctx, "forever", []byte("v"), 0))

	_, err := s.Get(ctx, "short")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := s.Get(ctx, "short")
		return errors.Is(err, ErrMiss)
	}, time.Second, 5*time.Millisecond)

	keys, err := s.Keys(ctx, "*")
	require.NoError(t, err)
	assert.Equal(t, []string{"forever", "long"}, keys)
}

func TestMemoryStore_ReleasesExpiredEntries(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	t.Cleanup(s.Stop)

	for i := 0; i < 10000; i++ {
		require.NoError(t, s.Set(ctx, fmt.Sprintf("paginate:task:{}:limit=%d:page=1", i), []byte("x"), time.Millisecond))
	}
	require.NoError(t, s.Set(ctx, "kept", []byte("x"), time.Minute))

	// Nothing reads the expired keys again; the sweeper alone must drop them.
	assert.Eventually(t, func() bool { return s.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestMemoryStore_StopIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	s.Stop()
	s.Stop()

	require.NoError(t, s.Set(context.Background(), "k", []byte("v"), time.Minute))
	got, err := s.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestMemoryStore_KeysAndDel(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	t.Cleanup(s.Stop)
	for _, k := range []string{
		"paginate:task:{}:limit=25:page=1",
		"paginate:task:{}:limit=25:page=2",
		"paginate:activity:{}:limit=10:page=1",
		"other",
	} {
		require.NoError(t, s.Set(ctx, k, []byte("x"), time.Minute))
	}

	keys, err := s.Keys(ctx, "paginate:task:*")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"paginate:task:{}:limit=25:page=1",
		"paginate:task:{}:limit=25:page=2",
	}, keys)

	require.NoError(t, s.Del(ctx, keys...))
	keys, err = s.Keys(ctx, "paginate:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"paginate:activity:{}:limit=10:page=1"}, keys)
}

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern, key string
		want         bool
	}{
		{"paginate:task:*", "paginate:task:", true},
		{"paginate:task:*", "paginate:task:{\"a\":1}|:limit=1:page=1", true},
		{"paginate:task:*", "paginate:tasks:x", false},
		{"paginate:task:*", "paginate:activity:x", false},
		{"a?c", "abc", true},
		{"a?c", "ac", false},
		{"*", "", true},
		{"exact", "exact", true},
		{"exact", "exactly", false},
		{"a*b*c", "axxbyyc", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Match(tt.pattern, tt.key), "%q vs %q", tt.pattern, tt.key)
	}
}
