// Package service is the transport-neutral classifier API. HTTP handlers,
// RPC methods and the streaming worker all call into a Service, which owns
// the prediction caches, metrics and analytics tracking.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/artifact"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/registry"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/server/cache"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/tokenfeat"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/utterance"
	apperrors "github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/tracing"
)

// Options wires optional collaborators. Zero values disable them.
type Options struct {
	Cascade    utterance.Config
	MaxTextLen int
	CacheStore cache.Store
	CacheTTL   time.Duration
	Collector  *analytics.Collector
	Metrics    *metrics.Metrics
}

// Service answers classification requests against a model registry.
type Service struct {
	registry   *registry.Registry
	cascade    *utterance.Classifier
	cascadeSet []string
	maxTextLen int
	classify   *cache.Cache[proto.ClassifyResponse]
	utterances *cache.Cache[utterance.Result]
	collector  *analytics.Collector
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New builds a Service over reg.
func New(reg *registry.Registry, opts Options) *Service {
	s := &Service{
		registry:   reg,
		cascade:    utterance.New(reg, opts.Cascade),
		cascadeSet: []string{opts.Cascade.BinaryModel, opts.Cascade.IntentModel, opts.Cascade.TokenModel},
		maxTextLen: opts.MaxTextLen,
		collector:  opts.Collector,
		metrics:    opts.Metrics,
		logger:     slog.Default().With("component", "classifier-service"),
	}
	if opts.CacheStore != nil {
		s.classify = cache.New[proto.ClassifyResponse](opts.CacheStore, "classify", opts.CacheTTL, opts.Metrics)
		s.utterances = cache.New[utterance.Result](opts.CacheStore, "utterance", opts.CacheTTL, opts.Metrics)
	}
	return s
}

// Threshold is the default command threshold.
func (s *Service) Threshold() float64 { return s.cascade.Threshold() }

func (s *Service) checkText(text string) error {
	if s.maxTextLen > 0 && utf8.RuneCountInString(text) > s.maxTextLen {
		return apperrors.Newf(apperrors.ErrInvalidInput, 0, "text exceeds %d characters", s.maxTextLen)
	}
	if !utf8.ValidString(text) {
		return apperrors.New(apperrors.ErrInvalidInput, 0, "text is not valid UTF-8")
	}
	return nil
}

// checkTokens applies the text limits to a caller-supplied token list as
// if it were the space-joined text.
func (s *Service) checkTokens(tokens []string) error {
	for _, tok := range tokens {
		if tok == "" {
			return apperrors.New(apperrors.ErrInvalidInput, 0, "tokens must not be empty strings")
		}
	}
	return s.checkText(strings.Join(tokens, " "))
}

// Classify scores req.Text with the named document model. Labels use the
// model's class-name list when one is registered.
func (s *Service) Classify(ctx context.Context, src analytics.Source, req proto.ClassifyRequest) (*proto.ClassifyResponse, error) {
	start := time.Now()
	event := analytics.PredictionEvent{Type: analytics.EventClassify, Source: src, Model: req.Model}
	resp, err := s.doClassify(ctx, req)
	if err != nil {
		s.track(ctx, event, start, err)
		return nil, err
	}
	event.Label = resp.Label
	event.Probability = resp.Scores[resp.Label]
	event.CacheHit = resp.Cached
	s.track(ctx, event, start, nil)
	return resp, nil
}

func (s *Service) doClassify(ctx context.Context, req proto.ClassifyRequest) (*proto.ClassifyResponse, error) {
	if err := s.checkText(req.Text); err != nil {
		return nil, err
	}
	// Read the checksum before the model: a reload in between can only file
	// a new result under the old key, which is never read again.
	checksum := s.registry.Checksum(req.Model)
	m, err := s.registry.Document(req.Model)
	if err != nil {
		return nil, err
	}
	names, err := artifact.ResolveClassNames(m.Labels(), s.registry.ClassNames(req.Model))
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidArtifact, 0, "model %q class names: %v", req.Model, err)
	}

	compute := func(context.Context) (proto.ClassifyResponse, error) {
		start := time.Now()
		p := m.Classify(req.Text)
		s.observe(req.Model, names[p.Index], start)
		scores := make(map[string]float64, len(names))
		for i, name := range names {
			scores[name] = p.Scores[i]
		}
		return proto.ClassifyResponse{Model: req.Model, Label: names[p.Index], Index: p.Index, Scores: scores}, nil
	}

	if s.classify == nil {
		resp, _ := compute(ctx)
		return &resp, nil
	}
	key := s.classify.Key(req.Model, checksum, req.Text)
	resp, hit, err := s.classify.GetOrCompute(ctx, key, compute)
	if err != nil {
		return nil, err
	}
	resp.Cached = hit
	return &resp, nil
}

// Tag labels a token sequence with the named token model. When req.Tokens
// is empty, req.Text is segmented first.
func (s *Service) Tag(ctx context.Context, src analytics.Source, req proto.TagRequest) (*proto.TagResponse, error) {
	start := time.Now()
	event := analytics.PredictionEvent{Type: analytics.EventTag, Source: src, Model: req.Model}

	tokens := req.Tokens
	if len(tokens) > 0 {
		if err := s.checkTokens(tokens); err != nil {
			s.track(ctx, event, start, err)
			return nil, err
		}
	} else {
		if err := s.checkText(req.Text); err != nil {
			s.track(ctx, event, start, err)
			return nil, err
		}
		tokens = tokenfeat.Texts(tokenfeat.Segment(req.Text))
	}
	m, err := s.registry.Token(req.Model)
	if err != nil {
		s.track(ctx, event, start, err)
		return nil, err
	}

	preds := m.Predict(tokens)
	resp := &proto.TagResponse{
		Model:         req.Model,
		Tokens:        tokens,
		Labels:        make([]string, len(preds)),
		Probabilities: make([]float64, len(preds)),
	}
	for i, p := range preds {
		resp.Labels[i] = p.Label
		resp.Probabilities[i] = p.Probability
		if s.metrics != nil {
			s.metrics.PredictionsTotal.WithLabelValues(req.Model, p.Label).Inc()
		}
	}
	if s.metrics != nil {
		s.metrics.PredictionLatency.WithLabelValues(req.Model).Observe(time.Since(start).Seconds())
	}
	event.Tokens = len(tokens)
	s.track(ctx, event, start, nil)
	return resp, nil
}

// Utterance runs the command cascade. The boolean reports a cache hit.
func (s *Service) Utterance(ctx context.Context, src analytics.Source, req proto.UtteranceRequest) (*utterance.Result, bool, error) {
	start := time.Now()
	event := analytics.PredictionEvent{Type: analytics.EventUtterance, Source: src}

	res, hit, err := s.doUtterance(ctx, req)
	if err != nil {
		s.track(ctx, event, start, err)
		return nil, false, err
	}
	event.IsCommand = res.IsCommand
	event.Probability = res.ProbCommand
	event.CacheHit = hit
	if res.TopIntent != nil {
		event.Intent = res.TopIntent.Label
	}
	for name := range res.Slots {
		event.Slots = append(event.Slots, string(name))
	}
	sort.Strings(event.Slots)
	s.track(ctx, event, start, nil)
	return res, hit, nil
}

func (s *Service) doUtterance(ctx context.Context, req proto.UtteranceRequest) (*utterance.Result, bool, error) {
	if err := s.checkText(req.Text); err != nil {
		return nil, false, err
	}
	threshold := req.Threshold
	if threshold == 0 {
		threshold = s.cascade.Threshold()
	}

	ctx, root := tracing.StartSpan(ctx, "utterance", logger.RequestID(ctx))
	defer func() {
		root.End()
		root.Log(ctx, logger.FromContext(ctx))
	}()

	key := ""
	if s.utterances != nil {
		key = s.utterances.Key(strconv.FormatFloat(threshold, 'g', -1, 64), s.registry.Checksum(s.cascadeSet...), req.Text)
	}
	compute := func(ctx context.Context) (utterance.Result, error) {
		res, err := s.cascade.Run(ctx, req.Text, threshold)
		if err != nil {
			return utterance.Result{}, err
		}
		if s.metrics != nil {
			s.metrics.CommandProbability.Observe(res.ProbCommand)
		}
		return *res, nil
	}

	if s.utterances == nil {
		res, err := compute(ctx)
		if err != nil {
			return nil, false, err
		}
		return &res, false, nil
	}
	res, hit, err := s.utterances.GetOrCompute(ctx, key, compute)
	if err != nil {
		return nil, false, err
	}
	root.SetAttr("cache_hit", hit)
	return &res, hit, nil
}

// Models lists the loaded models.
func (s *Service) Models() []proto.ModelInfo {
	return s.registry.Models()
}

// Reload reloads the registry and clears the prediction caches.
func (s *Service) Reload(ctx context.Context) (*proto.ReloadResponse, error) {
	report, err := s.registry.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("reloading models: %w", err)
	}
	if s.classify != nil {
		if err := s.classify.Invalidate(ctx); err != nil {
			s.logger.Warn("cache invalidation after reload failed", "error", err)
		}
	}
	if s.utterances != nil {
		if err := s.utterances.Invalidate(ctx); err != nil {
			s.logger.Warn("cache invalidation after reload failed", "error", err)
		}
	}
	resp := &proto.ReloadResponse{Loaded: len(report.Loaded)}
	for name, ferr := range report.Failed {
		resp.Failed = append(resp.Failed, name+": "+ferr.Error())
	}
	if s.collector != nil {
		s.collector.Track(analytics.PredictionEvent{Type: analytics.EventReload, RequestID: logger.RequestID(ctx)})
	}
	return resp, nil
}

// Ready reports whether any model is loaded.
func (s *Service) Ready(ctx context.Context) error {
	return s.registry.Ready(ctx)
}

func (s *Service) observe(model, label string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.PredictionsTotal.WithLabelValues(model, label).Inc()
	s.metrics.PredictionLatency.WithLabelValues(model).Observe(time.Since(start).Seconds())
}

func (s *Service) track(ctx context.Context, event analytics.PredictionEvent, start time.Time, err error) {
	if s.collector == nil {
		return
	}
	event.LatencyMs = time.Since(start).Milliseconds()
	event.RequestID = logger.RequestID(ctx)
	if err != nil {
		event.Error = err.Error()
	}
	s.collector.Track(event)
}
