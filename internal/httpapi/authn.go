package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"tenantauth.org/internal/auth"
	"tenantauth.org/internal/obs"
)

const (
	authHeader         = "Authorization"
	bearer             = "Bearer "
	accessCookieName   = "access_token"
	refreshCookieName  = "refresh_token"
	msgMissingToken    = "not authenticated"
	msgMalformedScheme = "invalid authorization scheme"
)

// authenticate resolves the caller from the access cookie or the
// Authorization header and stores it in the request context.
func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := accessToken(r)
		if err != nil {
			unauthorized(w, r, err.Error())
			return
		}
		user, err := a.resolver.Resolve(r.Context(), token)
		if err != nil {
			obs.RecordAuthEvent("authenticate", "failure")
			a.handleAuthError(w, r, err)
			return
		}
		ctx := auth.ContextWithUser(r.Context(), user)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// accessToken prefers the cookie and falls back to the header.
func accessToken(r *http.Request) (string, error) {
	if c, err := r.Cookie(accessCookieName); err == nil && strings.TrimSpace(c.Value) != "" {
		return extractBearerToken(c.Value)
	}
	return extractBearerToken(r.Header.Get(authHeader))
}

func refreshToken(r *http.Request) string {
	c, err := r.Cookie(refreshCookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

func extractBearerToken(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", errors.New(msgMissingToken)
	}
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", errors.New(msgMalformedScheme)
	}
	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", errors.New(msgMissingToken)
	}
	return token, nil
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, r, http.StatusUnauthorized, msg)
}

func (a *API) setAccessCookie(w http.ResponseWriter, token string, maxAge time.Duration) {
	http.SetCookie(w, a.cookie(accessCookieName, bearer+token, maxAge))
}

func (a *API) setRefreshCookie(w http.ResponseWriter, token string, maxAge time.Duration) {
	http.SetCookie(w, a.cookie(refreshCookieName, token, maxAge))
}

func (a *API) clearCookies(w http.ResponseWriter) {
	for _, name := range []string{accessCookieName, refreshCookieName} {
		c := a.cookie(name, "", 0)
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		http.SetCookie(w, c)
	}
}

func (a *API) cookie(name, value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   a.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}
