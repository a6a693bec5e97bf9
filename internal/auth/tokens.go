package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"

	defaultAlgorithm  = "HS256"
	defaultAccessTTL  = 24 * time.Hour
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// Claims is the signed payload. Subject is the user's email.
type Claims struct {
	TokenType string `json:"token_type,omitempty"`
	Version   int    `json:"ver"`
	jwt.RegisteredClaims
}

// TokenConfig is the fixed signing configuration.
type TokenConfig struct {
	Secret     string
	Algorithm  string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenCodec signs and verifies self-contained tokens. It never looks at
// revocation state.
type TokenCodec struct {
	secret     []byte
	method     jwt.SigningMethod
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// CodecOption configures TokenCodec behavior.
type CodecOption func(*TokenCodec)

// WithCodecClock overrides the time source used for issuing and validating.
func WithCodecClock(fn func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewTokenCodec validates cfg and builds a codec. Only HMAC algorithms are
// accepted since the configuration carries a shared secret.
func NewTokenCodec(cfg TokenConfig, opts ...CodecOption) (*TokenCodec, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: token secret is not configured")
	}
	alg := strings.ToUpper(strings.TrimSpace(cfg.Algorithm))
	if alg == "" {
		alg = defaultAlgorithm
	}
	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("auth: unsupported signing algorithm %q", cfg.Algorithm)
	}
	c := &TokenCodec{
		secret:     []byte(secret),
		method:     method,
		issuer:     strings.TrimSpace(cfg.Issuer),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}
	if c.accessTTL <= 0 {
		c.accessTTL = defaultAccessTTL
	}
	if c.refreshTTL <= 0 {
		c.refreshTTL = defaultRefreshTTL
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AccessTTL is the default access token lifetime.
func (c *TokenCodec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL is the default refresh token lifetime.
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

// Issue signs claims with an expiry of now+ttl. A non-positive ttl produces a
// token that is already expired.
func (c *TokenCodec) Issue(claims Claims, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(claims.Subject) == "" {
		return "", time.Time{}, fmt.Errorf("%w: token subject is required", ErrInvalidInput)
	}
	now := c.now().UTC()
	exp := now.Add(ttl)
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(exp)
	claims.ID = uuid.NewString()
	if c.issuer != "" {
		claims.Issuer = c.issuer
	}
	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// IssueAccess signs an access token with the default access lifetime.
func (c *TokenCodec) IssueAccess(subject string, version int) (string, time.Time, error) {
	return c.Issue(Claims{
		TokenType:        TokenAccess,
		Version:          version,
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
	}, c.accessTTL)
}

// IssueRefresh signs a refresh token with the default refresh lifetime.
func (c *TokenCodec) IssueRefresh(subject string, version int) (string, time.Time, error) {
	return c.Issue(Claims{
		TokenType:        TokenRefresh,
		Version:          version,
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
	}, c.refreshTTL)
}

// Decode verifies the signature and expiry. Every failure is ErrInvalidToken.
func (c *TokenCodec) Decode(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	popts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		popts = append(popts, jwt.WithIssuer(c.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}, popts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: subject missing", ErrInvalidToken)
	}
	return claims, nil
}
