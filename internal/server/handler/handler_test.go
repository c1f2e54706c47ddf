package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/registry"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/server/handler"
	srvmw "github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/server/middleware"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/server/router"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/server/service"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/utterance"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/proto"
)

func newServer(t *testing.T, opts ...func(*router.Deps)) http.Handler {
	t.Helper()
	cfg := config.Default().Models
	cfg.Dir = filepath.Join("..", "..", "artifact", "testdata")
	reg := registry.New(registry.NewFileSource(cfg))
	_, err := reg.Load(context.Background())
	require.NoError(t, err)

	agg := analytics.NewAggregator()
	m := metrics.New(prometheus.NewRegistry())
	svc := service.New(reg, service.Options{
		Cascade:    utterance.Config{BinaryModel: "bin", IntentModel: "intent", TokenModel: "token"},
		MaxTextLen: 200,
		Collector:  analytics.NewCollector(nil, agg, 10, time.Hour),
		Metrics:    m,
	})
	checker := health.NewChecker("classifier")
	checker.Register("models", health.Ping(false, svc.Ready))

	deps := router.Deps{
		Handler:        handler.New(svc),
		Analytics:      analytics.NewHandler(agg),
		Health:         checker,
		Metrics:        m,
		AllowedOrigins: []string{"*"},
		Timeout:        time.Second,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	return router.New(deps)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestClassifyEndpoint(t *testing.T) {
	h := newServer(t)
	rec := do(t, h, http.MethodPost, "/api/v1/models/intent/classify", `{"text":"split the bill"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var resp proto.ClassifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "intent", resp.Model)
	assert.Equal(t, "split_bill", resp.Label)
	assert.Equal(t, 2, resp.Index)
}

func TestClassifyErrors(t *testing.T) {
	h := newServer(t)

	rec := do(t, h, http.MethodPost, "/api/v1/models/missing/classify", `{"text":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing")

	rec = do(t, h, http.MethodPost, "/api/v1/models/bin/classify", `{"text":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/models/bin/classify", `{"text":"`+strings.Repeat("a", 300)+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/models/bin/classify", ``)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestTagEndpoint(t *testing.T) {
	h := newServer(t)
	rec := do(t, h, http.MethodPost, "/api/v1/models/token/tag", `{"tokens":["at","Goa","trip"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp proto.TagResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"O", "B_GROUP", "I_GROUP"}, resp.Labels)
	assert.Len(t, resp.Probabilities, 3)
}

func TestUtteranceEndpoint(t *testing.T) {
	h := newServer(t)
	rec := do(t, h, http.MethodPost, "/api/v1/utterances", `{"text":"split the bill, I paid at Starbucks for Goa trip"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	var res utterance.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.IsCommand)
	assert.Equal(t, "split_bill", res.TopIntent.Label)
	assert.Equal(t, "Starbucks", res.Slots["merchant"].Value)

	rec = do(t, h, http.MethodPost, "/api/v1/utterances", `{"text":"hi","threshold":1.5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/analytics", ``)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats analytics.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(2), stats.TotalPredictions)
	assert.Equal(t, int64(1), stats.Errors)
}

func TestModelsEndpoints(t *testing.T) {
	h := newServer(t)
	rec := do(t, h, http.MethodGet, "/api/v1/models", ``)
	require.Equal(t, http.StatusOK, rec.Code)
	var list proto.ModelsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Models, 3)

	rec = do(t, h, http.MethodGet, "/api/v1/models/token", ``)
	require.Equal(t, http.StatusOK, rec.Code)
	var info proto.ModelInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "token", info.Kind)
	assert.Equal(t, 8, info.Features)

	rec = do(t, h, http.MethodGet, "/api/v1/models/ghost", ``)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/models/reload", ``)
	require.Equal(t, http.StatusOK, rec.Code)
	var reload proto.ReloadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reload))
	assert.Equal(t, 3, reload.Loaded)
}

func TestHealthEndpoints(t *testing.T) {
	h := newServer(t)
	rec := do(t, h, http.MethodGet, "/health/live", ``)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodGet, "/health/ready", ``)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"models"`)
}

func TestRateLimitedRoute(t *testing.T) {
	h := newServer(t, func(d *router.Deps) { d.Limiter = srvmw.NewLimiter(0.001, 1, time.Minute) })
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/models", ``).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodGet, "/api/v1/models", ``).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health/live", ``).Code)
}

type staticKeys map[string]*apikey.KeyInfo

func (k staticKeys) Validate(_ context.Context, raw, scope string) (*apikey.KeyInfo, error) {
	info, found := k[raw]
	if !found {
		return nil, apikey.ErrInvalidKey
	}
	if !info.Allows(scope) {
		return nil, apikey.ErrScope
	}
	return info, nil
}

func TestReloadRequiresAdminKey(t *testing.T) {
	keys := staticKeys{"mk_deploy": {ID: "k1", Name: "deploy", Scopes: []string{apikey.ScopeReload}}}
	h := newServer(t, func(d *router.Deps) { d.AdminKeys = keys })

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, "/api/v1/models/reload", ``).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/models/reload", nil)
	req.Header.Set("Authorization", "Bearer mk_deploy")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Read routes stay open.
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/models", ``).Code)
}
