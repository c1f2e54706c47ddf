// Package router wires the classifier's HTTP routes and middleware chain.
package router

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/server/handler"
	srvmw "github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/server/middleware"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/middleware"
)

// Deps are the router's collaborators. Analytics, AdminKeys, Limiter and
// Metrics may be nil; without AdminKeys the reload route is open.
type Deps struct {
	Handler        *handler.Handler
	Analytics      *analytics.Handler
	Health         *health.Checker
	Metrics        *metrics.Metrics
	Limiter        *srvmw.Limiter
	AdminKeys      srvmw.KeyValidator
	AllowedOrigins []string
	Timeout        time.Duration
}

// New builds the HTTP handler.
//
// Route table:
//
//	POST /api/v1/models/{name}/classify  document model prediction
//	POST /api/v1/models/{name}/tag       token model labels
//	GET  /api/v1/models/{name}           one model descriptor
//	GET  /api/v1/models                  loaded models
//	POST /api/v1/models/reload           reload models, clear caches (admin key)
//	POST /api/v1/utterances              command cascade
//	GET  /api/v1/analytics               rolling prediction stats
//	GET  /api/v1/analytics/history       persisted snapshots (with Postgres)
//	GET  /health/live, /health/ready     probes
//
// Middleware chain (outermost first):
//
//	RequestID → Metrics → CORS → RateLimit → Timeout → mux
func New(d Deps) http.Handler {
	mux := http.NewServeMux()
	h := d.Handler

	mux.HandleFunc("GET /health/live", d.Health.LiveHandler())
	mux.HandleFunc("GET /health/ready", d.Health.ReadyHandler())

	mux.HandleFunc("POST /api/v1/models/{name}/classify", h.Classify)
	mux.HandleFunc("POST /api/v1/models/{name}/tag", h.Tag)
	mux.HandleFunc("GET /api/v1/models/{name}", h.Model)
	mux.HandleFunc("GET /api/v1/models", h.Models)
	var reload http.Handler = http.HandlerFunc(h.Reload)
	if d.AdminKeys != nil {
		reload = srvmw.RequireKey(d.AdminKeys, apikey.ScopeReload)(reload)
	}
	mux.Handle("POST /api/v1/models/reload", reload)
	mux.HandleFunc("POST /api/v1/utterances", h.Utterance)
	if d.Analytics != nil {
		mux.HandleFunc("GET /api/v1/analytics", d.Analytics.Stats)
		if d.Analytics.HasHistory() {
			mux.HandleFunc("GET /api/v1/analytics/history", d.Analytics.History)
		}
	}

	mws := []func(http.Handler) http.Handler{pkgmw.RequestID}
	if d.Metrics != nil {
		mws = append(mws, pkgmw.Metrics(d.Metrics))
	}
	mws = append(mws, srvmw.CORS(srvmw.DefaultCORSConfig(d.AllowedOrigins)))
	if d.Limiter != nil {
		mws = append(mws, srvmw.RateLimit(d.Limiter, d.Metrics))
	}
	mws = append(mws, pkgmw.Timeout(d.Timeout))
	return pkgmw.Chain(mux, mws...)
}
