package runtime

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundedStoreSeenAndMark(t *testing.T) {
	store := NewBoundedStore(10)
	ctx := context.Background()

	seen, err := store.Seen(ctx, "a")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.Mark(ctx, "a"))

	seen, err = store.Seen(ctx, "a")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Equal(t, 1, store.Len())
}

func TestBoundedStoreMarkIsIdempotent(t *testing.T) {
	store := NewBoundedStore(10)
	ctx := context.Background()

	require.NoError(t, store.Mark(ctx, "a"))
	require.NoError(t, store.Mark(ctx, "a"))
	assert.Equal(t, 1, store.Len())
}

func TestBoundedStoreEvictsOldestFirst(t *testing.T) {
	store := NewBoundedStore(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Mark(ctx, fmt.Sprintf("key-%d", i)))
	}
	assert.Equal(t, 3, store.Len())

	// A fourth key evicts the oldest, not an arbitrary one.
	require.NoError(t, store.Mark(ctx, "key-3"))
	assert.Equal(t, 3, store.Len())

	seen, err := store.Seen(ctx, "key-0")
	require.NoError(t, err)
	assert.False(t, seen, "oldest key evicted")

	for _, key := range []string{"key-1", "key-2", "key-3"} {
		seen, err := store.Seen(ctx, key)
		require.NoError(t, err)
		assert.True(t, seen, key)
	}
}

func TestBoundedStoreDefaultCapacity(t *testing.T) {
	store := NewBoundedStore(0)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		require.NoError(t, store.Mark(ctx, fmt.Sprintf("key-%d", i)))
	}
	assert.Equal(t, 100, store.Len())
}
