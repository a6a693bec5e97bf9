package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Resolver turns a bearer token into the principal it was issued for.
type Resolver struct {
	codec   *TokenCodec
	revoked RevocationStore
	users   UserStore
	log     *zap.Logger
}

// NewResolver wires the resolver dependencies. A nil logger disables logging.
func NewResolver(codec *TokenCodec, revoked RevocationStore, users UserStore, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{codec: codec, revoked: revoked, users: users, log: log}
}

// Resolve validates an access token and returns its user.
func (r *Resolver) Resolve(ctx context.Context, token string) (*User, error) {
	user, _, err := r.resolve(ctx, token, TokenAccess)
	return user, err
}

// ResolveRefresh validates a refresh token and returns its user.
func (r *Resolver) ResolveRefresh(ctx context.Context, token string) (*User, *Claims, error) {
	return r.resolve(ctx, token, TokenRefresh)
}

func (r *Resolver) resolve(ctx context.Context, token, kind string) (*User, *Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil, fmt.Errorf("%w: missing token", ErrUnauthenticated)
	}
	revoked, err := r.revoked.Contains(ctx, token)
	if err != nil {
		return nil, nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, nil, fmt.Errorf("%w: token revoked", ErrUnauthenticated)
	}
	claims, err := r.codec.Decode(token)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	// Tokens minted without a kind are treated as access tokens.
	tokenKind := claims.TokenType
	if tokenKind == "" {
		tokenKind = TokenAccess
	}
	if tokenKind != kind {
		return nil, nil, fmt.Errorf("%w: expected %s token", ErrUnauthenticated, kind)
	}

	user, err := r.lookup(ctx, claims.Subject)
	if errors.Is(err, ErrNotFound) {
		// The subject no longer exists; make sure the token cannot be replayed.
		if rerr := r.revoked.Add(ctx, token, claims.ExpiresAt.Time); rerr != nil {
			r.log.Warn("revoke orphaned token", zap.String("subject", claims.Subject), zap.Error(rerr))
		}
		return nil, nil, fmt.Errorf("%w: unknown subject", ErrUnauthenticated)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load principal: %w", err)
	}
	if claims.Version != user.TokenVersion {
		return nil, nil, fmt.Errorf("%w: stale token", ErrUnauthenticated)
	}
	return user, claims, nil
}

func (r *Resolver) lookup(ctx context.Context, subject string) (*User, error) {
	if strings.Contains(subject, "@") {
		return r.users.FindByEmail(ctx, strings.ToLower(subject))
	}
	return r.users.Find(ctx, subject)
}
