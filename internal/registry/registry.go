package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/artifact"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/inference"
	apperrors "github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/resilience"
)

const maxParallelLoads = 4

type loaded struct {
	info  proto.ModelInfo
	doc   *inference.DocumentModel
	token *inference.TokenModel
	names []string
}

type snapshot struct {
	models map[string]*loaded
}

// LoadReport summarises one Load call.
type LoadReport struct {
	Loaded []string
	Failed map[string]error
}

// Registry serves loaded models by name.
type Registry struct {
	source  Source
	current atomic.Pointer[snapshot]
	loadMu  sync.Mutex
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithMetrics records load outcomes and loaded-model gauges.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// New creates an empty Registry over source. Call Load before serving.
func New(source Source, opts ...Option) *Registry {
	r := &Registry{
		source: source,
		logger: slog.Default().With("component", "registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load fetches every artifact from the source and builds the models
// concurrently. A model that fails to decode or validate is reported in
// the LoadReport and, if an earlier version is loaded, that version stays
// live. Load returns an error only when the source cannot be read or when
// nothing at all is loaded afterwards.
func (r *Registry) Load(ctx context.Context) (*LoadReport, error) {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	var entries []Entry
	err := resilience.Retry(ctx, "fetch-models", resilience.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		Retryable: func(err error) bool {
			return !errors.Is(err, context.Canceled) &&
				!errors.Is(err, fs.ErrNotExist) &&
				!errors.Is(err, apperrors.ErrInvalidArtifact)
		},
		OnRetry: func(int, error) {
			if r.metrics != nil {
				r.metrics.RetriesTotal.WithLabelValues("fetch-models").Inc()
			}
		},
	}, func() error {
		var fetchErr error
		entries, fetchErr = r.source.Fetch(ctx)
		return fetchErr
	})
	if err != nil {
		r.countLoad("source_error", 1)
		return nil, fmt.Errorf("fetching models: %w", err)
	}

	var (
		mu     sync.Mutex
		built  = make(map[string]*loaded, len(entries))
		report = &LoadReport{Failed: make(map[string]error)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelLoads)
	for _, e := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m, err := build(e)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[e.Name] = err
				return nil
			}
			built[e.Name] = m
			report.Loaded = append(report.Loaded, e.Name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("loading models: %w", err)
	}

	if prev := r.current.Load(); prev != nil {
		for name := range report.Failed {
			if old, ok := prev.models[name]; ok {
				built[name] = old
			}
		}
	}
	for name, err := range report.Failed {
		r.logger.Error("model failed to load", "name", name, "error", err)
	}
	r.countLoad("ok", len(report.Loaded))
	r.countLoad("error", len(report.Failed))
	sort.Strings(report.Loaded)

	if len(built) == 0 {
		return report, fmt.Errorf("%w: no models loaded", apperrors.ErrModelNotLoaded)
	}
	r.current.Store(&snapshot{models: built})
	r.updateGauges(built)
	r.logger.Info("models loaded", "loaded", len(report.Loaded), "failed", len(report.Failed), "live", len(built))
	return report, nil
}

func build(e Entry) (*loaded, error) {
	info := proto.ModelInfo{
		Name:     e.Name,
		Kind:     string(e.Kind),
		Version:  e.Version,
		Checksum: checksum(e),
		LoadedAt: time.Now().UTC(),
	}
	switch e.Kind {
	case artifact.KindDocument:
		a, err := artifact.DecodeDocument(e.Payload)
		if err != nil {
			return nil, err
		}
		m, err := inference.LoadDocumentModel(a)
		if err != nil {
			return nil, err
		}
		if _, err := artifact.ResolveClassNames(a.Classes, e.ClassNames); err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidArtifact, err)
		}
		info.Classes = m.Classes()
		info.Features = a.VocabularySize()
		info.NGramRange = []int{a.MinN(), a.MaxN()}
		return &loaded{info: info, doc: m, names: e.ClassNames}, nil
	case artifact.KindToken:
		a, err := artifact.DecodeToken(e.Payload)
		if err != nil {
			return nil, err
		}
		m, err := inference.LoadTokenModel(a)
		if err != nil {
			return nil, err
		}
		info.Classes = m.Classes()
		info.Features = a.FeatureCount()
		return &loaded{info: info, token: m}, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", apperrors.ErrInvalidArtifact, e.Kind)
	}
}

// checksum identifies an entry's content: the artifact bytes plus any
// class names stored with it.
func checksum(e Entry) string {
	h := sha256.New()
	h.Write(e.Payload)
	for _, n := range e.ClassNames {
		h.Write([]byte{0})
		h.Write([]byte(n))
	}
	return hex.EncodeToString(h.Sum(nil)[:8])
}

func (r *Registry) lookup(name string) (*loaded, error) {
	snap := r.current.Load()
	if snap == nil {
		return nil, apperrors.ErrModelNotLoaded
	}
	m, ok := snap.models[name]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrModelNotFound, 0, "no model named %q", name)
	}
	return m, nil
}

// Document returns the named document model.
func (r *Registry) Document(name string) (*inference.DocumentModel, error) {
	m, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	if m.doc == nil {
		return nil, apperrors.Newf(apperrors.ErrModelNotFound, 0, "model %q is not a document model", name)
	}
	return m.doc, nil
}

// Token returns the named token model.
func (r *Registry) Token(name string) (*inference.TokenModel, error) {
	m, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	if m.token == nil {
		return nil, apperrors.Newf(apperrors.ErrModelNotFound, 0, "model %q is not a token model", name)
	}
	return m.token, nil
}

// ClassNames returns the class-name list stored with a document model, or
// nil.
func (r *Registry) ClassNames(name string) []string {
	m, err := r.lookup(name)
	if err != nil {
		return nil
	}
	return m.names
}

// Checksum joins the content checksums of the named models as loaded in
// one snapshot. Unknown or empty names contribute "-". The result changes
// whenever a reload replaces any of them.
func (r *Registry) Checksum(names ...string) string {
	snap := r.current.Load()
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = "-"
		if snap == nil || name == "" {
			continue
		}
		if m, ok := snap.models[name]; ok {
			parts[i] = m.info.Checksum
		}
	}
	return strings.Join(parts, ",")
}

// Models describes every live model, sorted by name.
func (r *Registry) Models() []proto.ModelInfo {
	snap := r.current.Load()
	if snap == nil {
		return nil
	}
	out := make([]proto.ModelInfo, 0, len(snap.models))
	for _, m := range snap.models {
		out = append(out, m.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Ready reports an error until at least one model is live.
func (r *Registry) Ready(context.Context) error {
	if r.current.Load() == nil {
		return apperrors.ErrModelNotLoaded
	}
	return nil
}

func (r *Registry) countLoad(status string, n int) {
	if r.metrics == nil || n == 0 {
		return
	}
	r.metrics.ModelLoadsTotal.WithLabelValues(status).Add(float64(n))
}

func (r *Registry) updateGauges(models map[string]*loaded) {
	if r.metrics == nil {
		return
	}
	counts := map[string]int{string(artifact.KindDocument): 0, string(artifact.KindToken): 0}
	for _, m := range models {
		counts[m.info.Kind]++
	}
	for kind, n := range counts {
		r.metrics.ModelsLoaded.WithLabelValues(kind).Set(float64(n))
	}
}
