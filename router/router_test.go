package router

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/wehriam/hiitrack/config"
	"github.com/wehriam/hiitrack/internal/engine"
	"github.com/wehriam/hiitrack/internal/store"
	"github.com/wehriam/hiitrack/observability"
)

func testSetup() http.Handler {
	cfg := &config.Config{
		Addr:             ":0",
		Env:              "test",
		RateLimitEnabled: false,
		MaxBodyBytes:     1 << 20,
		DefaultTimeout:   2 * time.Second,
		GracefulTimeout:  time.Second,
	}
	log := zerolog.New(io.Discard).With().Timestamp().Logger()
	eng := engine.New(store.NewMemoryStore(), log)
	metrics := observability.NewMetrics(log)
	return NewRouter(cfg, log, eng, metrics)
}

func TestHealthEndpoint(t *testing.T) {
	r := testSetup()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	if rw.Result().StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /healthz, got %d", rw.Result().StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := testSetup()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	if rw.Result().StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rw.Result().StatusCode)
	}
}

func TestUnauthenticatedBucketRouteReturns401(t *testing.T) {
	r := testSetup()

	req := httptest.NewRequest(http.MethodGet, "/alice/clicks", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	if rw.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unauthenticated bucket route, got %d", rw.Result().StatusCode)
	}
}

func TestCreateUserThenMismatchedOwnerIsForbidden(t *testing.T) {
	r := testSetup()

	createBody := `{"password":"hunter2"}`
	req := httptest.NewRequest(http.MethodPost, "/alice", jsonBody(createBody))
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)
	if rw.Result().StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 creating user, got %d: %s", rw.Result().StatusCode, rw.Body.String())
	}

	// bob must be registered so his credentials pass Basic auth and the
	// request reaches the owner check.
	req = httptest.NewRequest(http.MethodPost, "/bob", jsonBody(createBody))
	rw = httptest.NewRecorder()
	r.ServeHTTP(rw, req)
	if rw.Result().StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 creating second user, got %d: %s", rw.Result().StatusCode, rw.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/alice/clicks", jsonBody(`{}`))
	req.SetBasicAuth("bob", "hunter2")
	rw = httptest.NewRecorder()
	r.ServeHTTP(rw, req)
	if rw.Result().StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for mismatched path user, got %d: %s", rw.Result().StatusCode, rw.Body.String())
	}
}

func TestCreateUserBucketAndEventRoundTrip(t *testing.T) {
	r := testSetup()

	req := httptest.NewRequest(http.MethodPost, "/alice", jsonBody(`{"password":"hunter2"}`))
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)
	if rw.Result().StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 creating user, got %d", rw.Result().StatusCode)
	}

	req = httptest.NewRequest(http.MethodPost, "/alice/clicks", jsonBody(`{}`))
	req.SetBasicAuth("alice", "hunter2")
	rw = httptest.NewRecorder()
	r.ServeHTTP(rw, req)
	if rw.Result().StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 creating bucket, got %d: %s", rw.Result().StatusCode, rw.Body.String())
	}

	visitorHex := hex.EncodeToString([]byte("0123456789abcdef"))

	req = httptest.NewRequest(http.MethodPost, "/alice/clicks/event/signup", jsonBody(`{"visitor_id":"`+visitorHex+`"}`))
	req.SetBasicAuth("alice", "hunter2")
	rw = httptest.NewRecorder()
	r.ServeHTTP(rw, req)
	if rw.Result().StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 recording event, got %d: %s", rw.Result().StatusCode, rw.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/alice/clicks/event/signup", nil)
	req.SetBasicAuth("alice", "hunter2")
	rw = httptest.NewRecorder()
	r.ServeHTTP(rw, req)
	if rw.Result().StatusCode != http.StatusOK {
		t.Fatalf("expected 200 reading event, got %d: %s", rw.Result().StatusCode, rw.Body.String())
	}

	var view map[string]interface{}
	if err := json.NewDecoder(rw.Body).Decode(&view); err != nil {
		t.Fatalf("decoding event view: %v", err)
	}
	if total, _ := view["total"].(float64); total != 1 {
		t.Fatalf("expected total=1, got %v", view["total"])
	}
}

func TestCORSPreflight(t *testing.T) {
	r := testSetup()

	req := httptest.NewRequest(http.MethodOptions, "/alice/clicks", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	if rw.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatal("expected CORS Allow-Origin header on preflight response")
	}
}

func TestSecurityHeaders(t *testing.T) {
	r := testSetup()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	headers := []string{
		"X-Content-Type-Options",
		"X-Frame-Options",
		"Strict-Transport-Security",
	}
	for _, h := range headers {
		if rw.Header().Get(h) == "" {
			t.Fatalf("expected security header %s to be set", h)
		}
	}
}

func jsonBody(s string) *strings.Reader {
	return strings.NewReader(s)
}
