package obs

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", "/"},
		{"/metrics", "/metrics"},
		{"/auth/login?next=/x", "/auth/login"},
		{"/users/0190c8a4-7b1e-7a4e-9c1d-2f7e3b5a9d11", "/users/:id"},
		{"/members/delete_member", "/members/delete_member"},
	}
	for _, tc := range cases {
		if got := CanonicalPath(tc.in); got != tc.want {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestInstrumentUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Instrument)
	r.Get("/things/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/things/{id}", "418"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/things/abc", nil))
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/things/{id}", "418"))

	if after-before != 1 {
		t.Fatalf("expected one request recorded under route pattern, got %v", after-before)
	}
}

func TestRecordAuthEvent(t *testing.T) {
	before := testutil.ToFloat64(authEventsTotal.WithLabelValues("login", "failure"))
	RecordAuthEvent("login", "failure")
	if got := testutil.ToFloat64(authEventsTotal.WithLabelValues("login", "failure")); got-before != 1 {
		t.Fatalf("expected counter to increase by 1, got %v", got-before)
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := NewLogger("debug", "console"); err != nil {
		t.Fatalf("console logger: %v", err)
	}
	if _, err := NewLogger("info", "json"); err != nil {
		t.Fatalf("json logger: %v", err)
	}
	if _, err := NewLogger("loud", "json"); err == nil {
		t.Fatalf("expected invalid level error")
	}
	if _, err := NewLogger("info", "xml"); err == nil {
		t.Fatalf("expected invalid format error")
	}
}

func TestSetReady(t *testing.T) {
	SetReady(true)
	if got := testutil.ToFloat64(readyGauge); got != 1 {
		t.Fatalf("ready gauge = %v, want 1", got)
	}
	SetReady(false)
	if got := testutil.ToFloat64(readyGauge); got != 0 {
		t.Fatalf("ready gauge = %v, want 0", got)
	}
}

func TestAddPrunedRevocationsIgnoresZero(t *testing.T) {
	before := testutil.ToFloat64(revocationsPruned)
	AddPrunedRevocations(0)
	AddPrunedRevocations(3)
	if got := testutil.ToFloat64(revocationsPruned) - before; got != 3 {
		t.Fatalf("pruned delta = %v, want 3", got)
	}
}
