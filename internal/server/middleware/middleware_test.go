package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/metrics"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestCORSAllowedOrigin(t *testing.T) {
	h := CORS(DefaultCORSConfig([]string{"https://app.example"}))(ok)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/utterances", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodPost, "/api/v1/utterances", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	h := CORS(DefaultCORSConfig([]string{"*"}))(ok)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/models", nil)
	req.Header.Set("Origin", "https://any.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))
}

func TestRateLimitPerClient(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	l := NewLimiter(1, 2, time.Minute)
	h := RateLimit(l, m)(ok)

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/utterances", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1:1000"))
	assert.Equal(t, http.StatusOK, do("10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:1002"))
	assert.Equal(t, http.StatusOK, do("10.0.0.2:1000"))
	assert.InDelta(t, 1, testutil.ToFloat64(m.RateLimitedTotal), 0)
}

func TestRateLimitExemptsHealth(t *testing.T) {
	l := NewLimiter(1, 1, time.Minute)
	h := RateLimit(l, nil)(ok)
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestClientKeyPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", clientKey(req))
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientKey(req))
}

func TestSweepDropsIdleClients(t *testing.T) {
	l := NewLimiter(1, 1, time.Minute)
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }
	l.Allow("a")
	now = now.Add(30 * time.Second)
	l.Allow("b")
	now = now.Add(45 * time.Second)

	assert.Equal(t, 1, l.Sweep())
	assert.Len(t, l.clients, 1)
	assert.Contains(t, l.clients, "b")
}

type fakeKeys map[string]*apikey.KeyInfo

func (f fakeKeys) Validate(_ context.Context, raw, scope string) (*apikey.KeyInfo, error) {
	if raw == "broken" {
		return nil, errors.New("db down")
	}
	info, found := f[raw]
	if !found {
		return nil, apikey.ErrInvalidKey
	}
	if !info.Allows(scope) {
		return nil, apikey.ErrScope
	}
	return info, nil
}

func TestRequireKey(t *testing.T) {
	keys := fakeKeys{
		"mk_admin":  {ID: "k1", Name: "admin", Scopes: []string{apikey.ScopeAll}},
		"mk_reader": {ID: "k2", Name: "reader", Scopes: []string{"models:read"}},
	}
	var seen *apikey.KeyInfo
	h := RequireKey(keys, apikey.ScopeReload)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = KeyInfo(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	do := func(header, value string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/models/reload", nil)
		if header != "" {
			req.Header.Set(header, value)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := do("", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"missing admin key"}`, rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, do("X-API-Key", "mk_wrong").Code)
	assert.Equal(t, http.StatusForbidden, do("X-API-Key", "mk_reader").Code)
	assert.Equal(t, http.StatusInternalServerError, do("X-API-Key", "broken").Code)

	rec = do("Authorization", "Bearer mk_admin")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "admin", seen.Name)
}
