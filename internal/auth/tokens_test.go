package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestCodec(t *testing.T, now func() time.Time) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec(TokenConfig{Secret: "test-secret", Algorithm: "HS256", Issuer: "tenantauth"}, WithCodecClock(now))
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	return codec
}

func TestTokenIssueAndDecode(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	codec := newTestCodec(t, func() time.Time { return now })

	token, exp, err := codec.IssueAccess("a@x.com", 3)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if !exp.Equal(now.Add(defaultAccessTTL)) {
		t.Fatalf("unexpected expiry %v", exp)
	}
	claims, err := codec.Decode(token)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if claims.Subject != "a@x.com" || claims.TokenType != TokenAccess || claims.Version != 3 {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ID == "" || claims.Issuer != "tenantauth" {
		t.Fatalf("expected jti and issuer, got %+v", claims)
	}
}

func TestTokenExpiry(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	codec := newTestCodec(t, func() time.Time { return clock })

	expired, _, err := codec.Issue(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "a@x.com"}}, 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := codec.Decode(expired); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected zero ttl token to be invalid, got %v", err)
	}

	token, _, err := codec.Issue(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "a@x.com"}}, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := codec.Decode(token); err != nil {
		t.Fatalf("fresh token should decode: %v", err)
	}
	clock = now.Add(2 * time.Minute)
	if _, err := codec.Decode(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to be invalid, got %v", err)
	}
}

func TestTokenDecodeRejectsForeignTokens(t *testing.T) {
	codec := newTestCodec(t, time.Now)
	other, err := NewTokenCodec(TokenConfig{Secret: "other-secret", Issuer: "tenantauth"})
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	foreign, _, err := other.IssueAccess("a@x.com", 0)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := codec.Decode(foreign); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected signature failure, got %v", err)
	}

	hs512, err := NewTokenCodec(TokenConfig{Secret: "test-secret", Algorithm: "HS512", Issuer: "tenantauth"})
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	wrongAlg, _, err := hs512.IssueAccess("a@x.com", 0)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := codec.Decode(wrongAlg); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected algorithm mismatch failure, got %v", err)
	}

	for _, raw := range []string{"", "garbage", "a.b.c"} {
		if _, err := codec.Decode(raw); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected %q to be invalid, got %v", raw, err)
		}
	}
}

func TestNewTokenCodecValidation(t *testing.T) {
	if _, err := NewTokenCodec(TokenConfig{}); err == nil {
		t.Fatalf("expected missing secret error")
	}
	if _, err := NewTokenCodec(TokenConfig{Secret: "s", Algorithm: "RS256"}); err == nil {
		t.Fatalf("expected unsupported algorithm error")
	}
	if _, _, err := newTestCodec(t, time.Now).Issue(Claims{}, time.Minute); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected subject required error, got %v", err)
	}
}
