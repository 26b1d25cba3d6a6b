package packages_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellmind/agentcore/runtime/packages"
)

func TestMemoryCacheFetchesOnceWithinTTL(t *testing.T) {
	calls := 0
	cache := packages.NewMemoryCache(time.Hour, func(ctx context.Context) ([]string, error) {
		calls++
		return []string{"numpy", "pandas"}, nil
	})

	first, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"numpy", "pandas"}, first)

	second, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestMemoryCacheRefetchesAfterTTLExpires(t *testing.T) {
	calls := 0
	cache := packages.NewMemoryCache(time.Millisecond, func(ctx context.Context) ([]string, error) {
		calls++
		return []string{"call", string(rune('0' + calls))}, nil
	})

	_, err := cache.Get(context.Background())
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestMemoryCacheServesStaleListOnFetchError(t *testing.T) {
	calls := 0
	cache := packages.NewMemoryCache(time.Millisecond, func(ctx context.Context) ([]string, error) {
		calls++
		if calls == 1 {
			return []string{"numpy"}, nil
		}
		return nil, errors.New("executor unreachable")
	})

	first, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"numpy"}, first)

	time.Sleep(5 * time.Millisecond)

	second, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMemoryCachePropagatesFirstFetchError(t *testing.T) {
	cache := packages.NewMemoryCache(time.Hour, func(ctx context.Context) ([]string, error) {
		return nil, errors.New("executor unreachable")
	})

	_, err := cache.Get(context.Background())
	assert.Error(t, err)
}

func TestMemoryCacheInvalidateForcesRefetch(t *testing.T) {
	calls := 0
	cache := packages.NewMemoryCache(time.Hour, func(ctx context.Context) ([]string, error) {
		calls++
		return []string{"numpy"}, nil
	})

	_, err := cache.Get(context.Background())
	require.NoError(t, err)

	cache.Invalidate()

	_, err = cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
