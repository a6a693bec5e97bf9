package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// errBadCredentials is deliberately identical for unknown users and wrong passwords.
var errBadCredentials = fmt.Errorf("%w: wrong email or password", ErrUnauthenticated)

// Session is the outcome of a successful login.
type Session struct {
	User             *User
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	// MaxAge is the cookie lifetime for both tokens.
	MaxAge time.Duration
}

// AccessGrant is a freshly minted access token.
type AccessGrant struct {
	AccessToken string
	ExpiresAt   time.Time
	MaxAge      time.Duration
}

// SessionManager runs the login, refresh, logout and password change flows.
type SessionManager struct {
	users    UserStore
	hasher   Hasher
	codec    *TokenCodec
	revoked  RevocationStore
	resolver *Resolver
	log      *zap.Logger

	// dummyDigest is verified against when the user is unknown.
	dummyDigest string
}

// SessionOption configures SessionManager behavior.
type SessionOption func(*SessionManager)

// WithSessionLogger sets the logger used for background failures.
func WithSessionLogger(log *zap.Logger) SessionOption {
	return func(m *SessionManager) {
		if log != nil {
			m.log = log
		}
	}
}

// NewSessionManager wires the session flows.
func NewSessionManager(users UserStore, hasher Hasher, codec *TokenCodec, revoked RevocationStore, resolver *Resolver, opts ...SessionOption) (*SessionManager, error) {
	if users == nil || hasher == nil || codec == nil || revoked == nil || resolver == nil {
		return nil, errors.New("auth: session manager dependencies are required")
	}
	m := &SessionManager{
		users:    users,
		hasher:   hasher,
		codec:    codec,
		revoked:  revoked,
		resolver: resolver,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	digest, err := hasher.Hash("timing-equalizer-password")
	if err != nil {
		return nil, fmt.Errorf("auth: prepare dummy digest: %w", err)
	}
	m.dummyDigest = digest
	return m, nil
}

// Login checks credentials and issues an access/refresh token pair.
func (m *SessionManager) Login(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, errBadCredentials
	}
	user, err := m.users.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		m.hasher.Verify(password, m.dummyDigest)
		return Session{}, errBadCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("load user: %w", err)
	}
	if !m.hasher.Verify(password, user.PasswordHash) {
		return Session{}, errBadCredentials
	}

	access, accessExp, err := m.codec.IssueAccess(user.Email, user.TokenVersion)
	if err != nil {
		return Session{}, err
	}
	refresh, refreshExp, err := m.codec.IssueRefresh(user.Email, user.TokenVersion)
	if err != nil {
		return Session{}, err
	}
	return Session{
		User:             user,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
		MaxAge:           m.codec.RefreshTTL(),
	}, nil
}

// Refresh mints a new access token from a live refresh token. The refresh
// token itself is not rotated.
func (m *SessionManager) Refresh(ctx context.Context, refreshToken string) (AccessGrant, error) {
	user, _, err := m.resolver.ResolveRefresh(ctx, refreshToken)
	if err != nil {
		return AccessGrant{}, err
	}
	access, exp, err := m.codec.IssueAccess(user.Email, user.TokenVersion)
	if err != nil {
		return AccessGrant{}, err
	}
	return AccessGrant{AccessToken: access, ExpiresAt: exp, MaxAge: m.codec.RefreshTTL()}, nil
}

// Logout revokes the access token for the rest of its lifetime. A decodable
// refresh token is revoked as well.
func (m *SessionManager) Logout(ctx context.Context, accessToken, refreshToken string) error {
	claims, err := m.codec.Decode(accessToken)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if err := m.revoked.Add(ctx, accessToken, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	if strings.TrimSpace(refreshToken) == "" {
		return nil
	}
	rc, err := m.codec.Decode(refreshToken)
	if err != nil {
		m.log.Debug("skip undecodable refresh token on logout", zap.Error(err))
		return nil
	}
	if err := m.revoked.Add(ctx, refreshToken, rc.ExpiresAt.Time); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// ChangePassword replaces the credential of user and bumps its token version,
// which invalidates every token issued before the change.
func (m *SessionManager) ChangePassword(ctx context.Context, user *User, current, next string) error {
	if user == nil {
		return ErrUnauthenticated
	}
	if err := ValidatePassword(next); err != nil {
		return err
	}
	fresh, err := m.users.Find(ctx, user.ID)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: user no longer exists", ErrUnauthenticated)
	}
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if !m.hasher.Verify(current, fresh.PasswordHash) {
		return fmt.Errorf("%w: incorrect password", ErrUnauthenticated)
	}
	digest, err := m.hasher.Hash(next)
	if err != nil {
		return err
	}
	version := fresh.TokenVersion + 1
	if _, err := m.users.Update(ctx, fresh.ID, UserUpdate{PasswordHash: &digest, TokenVersion: &version}); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
