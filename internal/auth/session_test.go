package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"tenantauth.org/internal/auth"
	"tenantauth.org/internal/store/memory"
)

type harness struct {
	store    *memory.Store
	codec    *auth.TokenCodec
	revoked  auth.RevocationStore
	resolver *auth.Resolver
	sessions *auth.SessionManager
	tenants  *auth.Tenants
	clock    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{store: memory.New(), clock: time.Now().UTC()}
	hasher, err := auth.NewHasher(auth.SchemeBcrypt, bcrypt.MinCost)
	require.NoError(t, err)
	h.codec, err = auth.NewTokenCodec(auth.TokenConfig{Secret: "test-secret", Issuer: "tenantauth"},
		auth.WithCodecClock(func() time.Time { return h.clock }))
	require.NoError(t, err)
	h.revoked = auth.NewCachedRevocations(auth.NewBlacklistRevocations(h.store.Blacklist()), time.Minute)
	h.resolver = auth.NewResolver(h.codec, h.revoked, h.store.Users(), nil)
	h.sessions, err = auth.NewSessionManager(h.store.Users(), hasher, h.codec, h.revoked, h.resolver)
	require.NoError(t, err)
	h.tenants, err = auth.NewTenants(h.store, hasher, auth.WithSignupLevelCeiling(auth.LevelOwner))
	require.NoError(t, err)
	return h
}

func (h *harness) signup(t *testing.T, email, org, member string, level auth.AccessLevel) *auth.Member {
	t.Helper()
	m, err := h.tenants.Signup(context.Background(), auth.SignupInput{
		Email:            email,
		Password:         "Str1ngst!",
		AccessLevel:      level,
		OrganizationName: org,
		MemberName:       member,
	})
	require.NoError(t, err)
	return m
}

func TestLoginThenResolve(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.signup(t, "a@x.com", "Acme", "Alice", auth.LevelOwner)

	sess, err := h.sessions.Login(ctx, "A@X.com", "Str1ngst!")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.AccessToken)
	assert.NotEmpty(t, sess.RefreshToken)
	assert.Equal(t, h.codec.RefreshTTL(), sess.MaxAge)

	user, err := h.resolver.Resolve(ctx, sess.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", user.Email)
	assert.Equal(t, sess.User.ID, user.ID)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.signup(t, "a@x.com", "Acme", "Alice", auth.LevelGuestUser)

	_, wrongPassword := h.sessions.Login(ctx, "a@x.com", "not-the-password")
	_, unknownUser := h.sessions.Login(ctx, "nobody@x.com", "not-the-password")
	require.ErrorIs(t, wrongPassword, auth.ErrUnauthenticated)
	require.ErrorIs(t, unknownUser, auth.ErrUnauthenticated)
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
}

func TestLogoutRevokesTokens(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.signup(t, "a@x.com", "Acme", "Alice", auth.LevelGuestUser)
	sess, err := h.sessions.Login(ctx, "a@x.com", "Str1ngst!")
	require.NoError(t, err)

	require.NoError(t, h.sessions.Logout(ctx, sess.AccessToken, sess.RefreshToken))
	// Logging out twice is harmless.
	require.NoError(t, h.sessions.Logout(ctx, sess.AccessToken, ""))

	_, err = h.resolver.Resolve(ctx, sess.AccessToken)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
	_, err = h.sessions.Refresh(ctx, sess.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	// Revocation survives a cold cache.
	cold := auth.NewResolver(h.codec, auth.NewBlacklistRevocations(h.store.Blacklist()), h.store.Users(), nil)
	_, err = cold.Resolve(ctx, sess.AccessToken)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestLogoutRejectsMalformedToken(t *testing.T) {
	h := newHarness(t)
	err := h.sessions.Logout(context.Background(), "not-a-jwt", "")
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestRefreshIssuesAccessToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.signup(t, "a@x.com", "Acme", "Alice", auth.LevelGuestUser)
	sess, err := h.sessions.Login(ctx, "a@x.com", "Str1ngst!")
	require.NoError(t, err)

	grant, err := h.sessions.Refresh(ctx, sess.RefreshToken)
	require.NoError(t, err)
	user, err := h.resolver.Resolve(ctx, grant.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", user.Email)

	// Token kinds are not interchangeable.
	_, err = h.sessions.Refresh(ctx, sess.AccessToken)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
	_, err = h.resolver.Resolve(ctx, sess.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestExpiredTokenIsRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.signup(t, "a@x.com", "Acme", "Alice", auth.LevelGuestUser)
	sess, err := h.sessions.Login(ctx, "a@x.com", "Str1ngst!")
	require.NoError(t, err)

	h.clock = h.clock.Add(h.codec.AccessTTL() + time.Second)
	_, err = h.resolver.Resolve(ctx, sess.AccessToken)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestResolveRevokesOrphanedToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.signup(t, "a@x.com", "Acme", "Alice", auth.LevelGuestUser)
	sess, err := h.sessions.Login(ctx, "a@x.com", "Str1ngst!")
	require.NoError(t, err)

	require.NoError(t, h.store.SoftDeleteUser(sess.User.ID))
	_, err = h.resolver.Resolve(ctx, sess.AccessToken)
	require.ErrorIs(t, err, auth.ErrUnauthenticated)

	revoked, err := h.store.Blacklist().Exists(ctx, auth.HashToken(sess.AccessToken))
	require.NoError(t, err)
	assert.True(t, revoked, "orphaned token should be blacklisted")
}

func TestChangePasswordInvalidatesOldSessions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.signup(t, "a@x.com", "Acme", "Alice", auth.LevelGuestUser)
	sess, err := h.sessions.Login(ctx, "a@x.com", "Str1ngst!")
	require.NoError(t, err)

	err = h.sessions.ChangePassword(ctx, sess.User, "wrong-current", "N3wPassword!")
	require.ErrorIs(t, err, auth.ErrUnauthenticated)
	err = h.sessions.ChangePassword(ctx, sess.User, "Str1ngst!", "short")
	require.ErrorIs(t, err, auth.ErrInvalidInput)

	require.NoError(t, h.sessions.ChangePassword(ctx, sess.User, "Str1ngst!", "N3wPassword!"))

	_, err = h.resolver.Resolve(ctx, sess.AccessToken)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
	_, err = h.sessions.Login(ctx, "a@x.com", "Str1ngst!")
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	fresh, err := h.sessions.Login(ctx, "a@x.com", "N3wPassword!")
	require.NoError(t, err)
	_, err = h.resolver.Resolve(ctx, fresh.AccessToken)
	assert.NoError(t, err)
}

func TestResolveEmptyToken(t *testing.T) {
	h := newHarness(t)
	_, err := h.resolver.Resolve(context.Background(), "  ")
	assert.True(t, errors.Is(err, auth.ErrUnauthenticated))
}
