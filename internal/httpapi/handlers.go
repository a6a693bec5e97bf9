package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"tenantauth.org/internal/auth"
	"tenantauth.org/internal/obs"
)

const serviceName = "tenantauth"

// ReadinessChecker reports whether dependencies are reachable.
type ReadinessChecker interface {
	Check(ctx context.Context) error
}

// PingFunc adapts a ping function to ReadinessChecker.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Check(ctx context.Context) error {
	if f == nil {
		return nil
	}
	return f(ctx)
}

// Services are the auth flows exposed over HTTP.
type Services struct {
	Resolver *auth.Resolver
	Sessions *auth.SessionManager
	Tenants  *auth.Tenants
}

// Options tune the HTTP surface.
type Options struct {
	Version        string
	CookieSecure   bool
	AllowedOrigins []string
	LoginBurst     int
	LoginPerSecond float64
	MaxBodyBytes   int64
	Ready          ReadinessChecker
	// TrustForwardedFor keys client IPs on X-Forwarded-For. Enable only
	// behind a proxy that overwrites the header.
	TrustForwardedFor bool
}

// API is the HTTP layer.
type API struct {
	router   chi.Router
	resolver *auth.Resolver
	sessions *auth.SessionManager
	tenants  *auth.Tenants
	ready    ReadinessChecker
	log      *zap.Logger
	opts     Options
}

func New(svc Services, opts Options, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Ready == nil {
		opts.Ready = PingFunc(nil)
	}
	if opts.LoginBurst <= 0 {
		opts.LoginBurst = 10
	}
	if opts.LoginPerSecond <= 0 {
		opts.LoginPerSecond = 1
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	a := &API{
		resolver: svc.Resolver,
		sessions: svc.Sessions,
		tenants:  svc.Tenants,
		ready:    opts.Ready,
		log:      log,
		opts:     opts,
	}
	a.router = a.routes()
	return a
}

func (a *API) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logging(a.log, a.opts.TrustForwardedFor))
	r.Use(chimw.Recoverer)
	r.Use(obs.Instrument)
	r.Use(SecurityHeaders)
	if len(a.opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   a.opts.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", requestIDHeader},
			ExposedHeaders:   []string{requestIDHeader},
			AllowCredentials: true,
			MaxAge:           600,
		}))
	}
	r.Use(MaxBodyBytes(a.opts.MaxBodyBytes))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.With(RateLimit(a.opts.LoginBurst, a.opts.LoginPerSecond, a.opts.TrustForwardedFor)).Post("/login", a.handleLogin)
		r.Post("/refresh", a.handleRefresh)
		r.Post("/logout", a.handleLogout)
		r.Group(func(r chi.Router) {
			r.Use(a.authenticate)
			r.Post("/change-password", a.handleChangePassword)
			r.Get("/me", a.handleMe)
		})
	})

	r.Route("/users", func(r chi.Router) {
		r.Post("/signup", a.handleSignup)
		r.Group(func(r chi.Router) {
			r.Use(a.authenticate)
			r.Get("/count-by-role", a.handleCountByRole)
			r.Patch("/change-role", a.handleChangeRole)
		})
	})

	r.Route("/members", func(r chi.Router) {
		r.Use(a.authenticate)
		r.Post("/invite-member", a.handleInviteMember)
		r.Delete("/delete_member", a.handleDeleteMember)
	})
	return r
}

// Handler returns the root http.Handler.
func (a *API) Handler() http.Handler {
	return a.router
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.opts.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"detail": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleAuthError maps auth sentinels onto HTTP status codes.
func (a *API) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidToken):
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, r, http.StatusUnauthorized, publicMessage(err))
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, publicMessage(err))
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, publicMessage(err))
	case errors.Is(err, auth.ErrDuplicate):
		writeError(w, r, http.StatusConflict, publicMessage(err))
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, publicMessage(err))
	default:
		a.log.Error("request failed",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// publicMessage strips the sentinel prefix from err.
func publicMessage(err error) string {
	if errors.Is(err, auth.ErrInvalidToken) {
		return "could not validate credentials"
	}
	msg := err.Error()
	for _, sentinel := range []error{
		auth.ErrUnauthenticated,
		auth.ErrForbidden,
		auth.ErrNotFound,
		auth.ErrDuplicate,
		auth.ErrInvalidInput,
	} {
		if !errors.Is(err, sentinel) {
			continue
		}
		if rest, ok := strings.CutPrefix(msg, sentinel.Error()+": "); ok {
			return rest
		}
		return strings.TrimPrefix(sentinel.Error(), "auth: ")
	}
	return msg
}
