// Package stream classifies utterances arriving on Kafka and publishes the
// cascade results to the predictions topic.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/server/service"
	apperrors "github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/resilience"
)

// Stream outcomes recorded on classifier_stream_messages_total.
const (
	OutcomeClassified  = "classified"
	OutcomeRejected    = "rejected"
	OutcomeDecodeError = "decode_error"
	OutcomeError       = "error"
)

// Publisher writes one event to the predictions topic.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Config tunes the publish path. PublishTimeout bounds each attempt; zero
// means no limit.
type Config struct {
	Retry          resilience.RetryConfig
	Breaker        resilience.CircuitBreakerConfig
	PublishTimeout time.Duration
}

// Worker turns UtteranceMessages into PredictionMessages.
type Worker struct {
	svc     *service.Service
	out     Publisher
	retry   resilience.RetryConfig
	timeout time.Duration
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	now     func() time.Time
	logger  *slog.Logger
}

// New creates a Worker. m may be nil.
func New(svc *service.Service, out Publisher, cfg Config, m *metrics.Metrics) *Worker {
	if m != nil {
		onChange := cfg.Breaker.OnStateChange
		cfg.Breaker.OnStateChange = func(name string, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			if onChange != nil {
				onChange(name, to)
			}
		}
	}
	cfg.Retry.Retryable = func(err error) bool {
		return !errors.Is(err, context.Canceled)
	}
	if m != nil {
		retries := m.RetriesTotal.WithLabelValues("publish-prediction")
		cfg.Retry.OnRetry = func(int, error) { retries.Inc() }
	}
	return &Worker{
		svc:     svc,
		out:     out,
		retry:   cfg.Retry,
		timeout: cfg.PublishTimeout,
		breaker: resilience.NewCircuitBreaker("predictions-publisher", cfg.Breaker),
		metrics: m,
		now:     time.Now,
		logger:  logger.WithComponent("stream-worker"),
	}
}

// Handle is the kafka.MessageHandler for the utterances topic. Malformed
// and rejected utterances are committed; model or publish failures are
// returned so the consumer retries the same message.
func (w *Worker) Handle(ctx context.Context, msg kafka.Message) error {
	in, err := kafka.DecodeJSON[proto.UtteranceMessage](msg.Value)
	if err != nil {
		w.count(OutcomeDecodeError)
		return err
	}
	if in.ID == "" {
		in.ID = string(msg.Key)
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if logger.RequestID(ctx) == "" {
		ctx = logger.WithRequestID(ctx, in.ID)
	}
	log := logger.FromContext(ctx)

	out := proto.PredictionMessage{ID: in.ID}
	res, _, err := w.svc.Utterance(ctx, analytics.SourceStream, proto.UtteranceRequest{Text: in.Text})
	outcome := OutcomeClassified
	switch {
	case err == nil:
		out.Result = res
	case errors.Is(err, apperrors.ErrInvalidInput):
		outcome = OutcomeRejected
		out.Error = err.Error()
	default:
		w.count(OutcomeError)
		log.Error("classification failed", "id", in.ID, "error", err)
		return fmt.Errorf("classifying utterance %s: %w", in.ID, err)
	}
	out.ClassifiedAt = w.now().UTC()

	if err := w.publish(ctx, out); err != nil {
		w.count(OutcomeError)
		log.Error("publishing prediction failed", "id", in.ID, "error", err)
		return err
	}
	w.count(outcome)
	log.Debug("utterance processed", "id", in.ID, "outcome", outcome)
	return nil
}

func (w *Worker) publish(ctx context.Context, msg proto.PredictionMessage) error {
	return w.breaker.Execute(func() error {
		return resilience.Retry(ctx, "publish-prediction", w.retry, func() error {
			return resilience.WithTimeout(ctx, w.timeout, "publish-prediction", func(ctx context.Context) error {
				return w.out.Publish(ctx, kafka.Event{Key: msg.ID, Value: msg})
			})
		})
	})
}

// BreakerState reports the publisher circuit breaker's state.
func (w *Worker) BreakerState() resilience.State {
	return w.breaker.GetState()
}

func (w *Worker) count(outcome string) {
	if w.metrics != nil {
		w.metrics.StreamMessagesTotal.WithLabelValues(outcome).Inc()
	}
}
