package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantauth.org/internal/auth"
	"tenantauth.org/internal/store/memory"
)

type countingRevocations struct {
	auth.RevocationStore
	contains int
}

func (c *countingRevocations) Contains(ctx context.Context, token string) (bool, error) {
	c.contains++
	return c.RevocationStore.Contains(ctx, token)
}

func TestCachedRevocationsRemembersHits(t *testing.T) {
	ctx := context.Background()
	backing := &countingRevocations{RevocationStore: auth.NewBlacklistRevocations(memory.New().Blacklist())}
	cached := auth.NewCachedRevocations(backing, time.Minute)

	ok, err := cached.Contains(ctx, "tok-a")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = cached.Contains(ctx, "tok-a")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, backing.contains, "misses are never cached")

	require.NoError(t, cached.Add(ctx, "tok-a", time.Now().Add(time.Hour)))
	require.NoError(t, cached.Add(ctx, "tok-a", time.Now().Add(time.Hour)))
	ok, err = cached.Contains(ctx, "tok-a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, backing.contains)
}

func TestBlacklistRevocationsStoresHashes(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	revs := auth.NewBlacklistRevocations(store.Blacklist())

	require.NoError(t, revs.Add(ctx, "raw-token", time.Now().Add(-time.Minute)))
	ok, err := store.Blacklist().Exists(ctx, "raw-token")
	require.NoError(t, err)
	assert.False(t, ok, "raw token must not be stored")
	ok, err = revs.Contains(ctx, "raw-token")
	require.NoError(t, err)
	assert.True(t, ok, "expired entries still count as revoked until pruned")

	n, err := revs.Prune(ctx, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestPruneEveryReportsRemovals(t *testing.T) {
	store := memory.New()
	revs := auth.NewBlacklistRevocations(store.Blacklist())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, revs.Add(ctx, "stale-token", time.Now().Add(-time.Minute)))

	removed := make(chan int64, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		revs.PruneEvery(ctx, 5*time.Millisecond, func(n int64, err error) {
			if err != nil {
				return
			}
			select {
			case removed <- n:
			default:
			}
		})
	}()

	select {
	case n := <-removed:
		assert.EqualValues(t, 1, n)
	case <-time.After(2 * time.Second):
		t.Fatal("pruner never ran")
	}
	cancel()
	<-done

	hit, err := revs.Contains(context.Background(), "stale-token")
	require.NoError(t, err)
	assert.False(t, hit)
}
