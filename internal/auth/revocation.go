package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

// RevocationStore answers whether a raw token has been revoked.
type RevocationStore interface {
	// Add marks token revoked until expiresAt. Revoking twice is not an error.
	Add(ctx context.Context, token string, expiresAt time.Time) error
	Contains(ctx context.Context, token string) (bool, error)
}

// HashToken returns the hex SHA-256 digest stored in place of the raw token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// BlacklistRevocations persists revocations through a BlacklistStore.
type BlacklistRevocations struct {
	store BlacklistStore
	now   func() time.Time
}

// NewBlacklistRevocations wraps store.
func NewBlacklistRevocations(store BlacklistStore) *BlacklistRevocations {
	return &BlacklistRevocations{store: store, now: time.Now}
}

func (b *BlacklistRevocations) Add(ctx context.Context, token string, expiresAt time.Time) error {
	if token == "" {
		return fmt.Errorf("%w: token is empty", ErrInvalidInput)
	}
	err := b.store.Add(ctx, &RevokedToken{
		ID:        uuid.NewString(),
		TokenHash: HashToken(token),
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: b.now().UTC(),
	})
	if errors.Is(err, ErrDuplicate) {
		return nil
	}
	return err
}

func (b *BlacklistRevocations) Contains(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	return b.store.Exists(ctx, HashToken(token))
}

// Prune removes entries for tokens that expired before cutoff.
func (b *BlacklistRevocations) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	return b.store.Prune(ctx, cutoff.UTC())
}

// PruneEvery prunes expired entries each interval until ctx is done. report,
// when set, receives the outcome of every pass.
func (b *BlacklistRevocations) PruneEvery(ctx context.Context, interval time.Duration, report func(removed int64, err error)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := b.Prune(ctx, b.now())
			if report != nil {
				report(n, err)
			}
		}
	}
}

// CachedRevocations remembers positive answers from an underlying store.
// Revocations are never undone, so a cached hit stays correct until the token
// itself expires.
type CachedRevocations struct {
	next  RevocationStore
	cache *gocache.Cache
	now   func() time.Time
}

// NewCachedRevocations wraps next with an in-process hit cache.
func NewCachedRevocations(next RevocationStore, cleanup time.Duration) *CachedRevocations {
	if cleanup <= 0 {
		cleanup = 10 * time.Minute
	}
	return &CachedRevocations{
		next:  next,
		cache: gocache.New(gocache.NoExpiration, cleanup),
		now:   time.Now,
	}
}

func (c *CachedRevocations) Add(ctx context.Context, token string, expiresAt time.Time) error {
	if err := c.next.Add(ctx, token, expiresAt); err != nil {
		return err
	}
	c.remember(token, expiresAt)
	return nil
}

func (c *CachedRevocations) Contains(ctx context.Context, token string) (bool, error) {
	key := HashToken(token)
	if _, ok := c.cache.Get(key); ok {
		return true, nil
	}
	revoked, err := c.next.Contains(ctx, token)
	if err != nil || !revoked {
		return revoked, err
	}
	// Expiry is unknown here; keep it for a bounded window.
	c.cache.Set(key, struct{}{}, time.Hour)
	return true, nil
}

func (c *CachedRevocations) remember(token string, expiresAt time.Time) {
	ttl := expiresAt.Sub(c.now())
	if ttl <= 0 {
		return
	}
	c.cache.Set(HashToken(token), struct{}{}, ttl)
}
