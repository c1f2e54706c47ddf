package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/registry"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/server/service"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/stream"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/utterance"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	aggregate := flag.Bool("aggregate", true, "also consume the analytics topic into a local aggregator")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if !cfg.Kafka.Enabled {
		slog.Error("worker requires kafka.enabled")
		os.Exit(1)
	}
	slog.Info("starting classifier worker",
		"input_topic", cfg.Kafka.Topics.Utterances,
		"output_topic", cfg.Kafka.Topics.Predictions,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	checker := health.NewChecker("classifier-worker")

	var db *postgres.Client
	if cfg.Postgres.Enabled {
		db, err = postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		checker.Register("postgres", health.Ping(false, db.Ping))
	}

	var source registry.Source = registry.NewFileSource(cfg.Models)
	if cfg.Models.Source == "postgres" {
		source = registry.NewPostgresStore(db)
	}
	reg := registry.New(source, registry.WithMetrics(m))
	if _, err := reg.Load(ctx); err != nil {
		slog.Error("failed to load models", "error", err)
		os.Exit(1)
	}
	checker.Register("models", health.Ping(false, reg.Ready))

	analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer analyticsProducer.Close()
	collector := analytics.NewCollector(analyticsProducer, nil, 100, 5*time.Second)
	collector.Start(ctx)

	svc := service.New(reg, service.Options{
		Cascade: utterance.Config{
			BinaryModel: cfg.Classifier.BinaryModel,
			IntentModel: cfg.Classifier.IntentModel,
			TokenModel:  cfg.Classifier.TokenModel,
			Threshold:   cfg.Classifier.Threshold,
		},
		MaxTextLen: cfg.Classifier.MaxTextLen,
		Collector:  collector,
		Metrics:    m,
	})

	predictions := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Predictions)
	defer predictions.Close()

	worker := stream.New(svc, predictions, stream.Config{
		Retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialDelay:   100 * time.Millisecond,
			MaxDelay:       2 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.1,
		},
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold:    5,
			ResetTimeout:        30 * time.Second,
			HalfOpenMaxRequests: 1,
		},
		PublishTimeout: 5 * time.Second,
	}, m)
	checker.Register("predictions_publisher", func(context.Context) health.ComponentHealth {
		if s := worker.BreakerState(); s != resilience.StateClosed {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "circuit " + s.String()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", metrics.Handler())

	g, gctx := errgroup.WithContext(ctx)

	utterances := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.Utterances, worker.Handle)
	defer utterances.Close()
	g.Go(func() error { return utterances.Start(gctx) })

	if *aggregate {
		agg := analytics.NewAggregator()
		events := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(agg))
		defer events.Close()
		g.Go(func() error { return events.Start(gctx) })
		analyticsHandler := analytics.NewHandler(agg)
		mux.HandleFunc("GET /api/v1/analytics", analyticsHandler.Stats)
		if db != nil {
			store := aggregator.NewStore(db, "worker").WithRetention(7 * 24 * time.Hour)
			analyticsHandler.WithHistory(store)
			mux.HandleFunc("GET /api/v1/analytics/history", analyticsHandler.History)
			g.Go(func() error {
				<-store.StartPeriodicSave(gctx, agg, time.Minute)
				return nil
			})
		}
		slog.Info("analytics aggregation enabled", "topic", cfg.Kafka.Topics.AnalyticsEvents)
	}

	admin := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, middleware.RequestID),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	g.Go(func() error {
		slog.Info("worker admin server listening", "addr", admin.Addr)
		if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return admin.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("worker stopped with error", "error", err)
		stop()
		<-collector.Done()
		os.Exit(1)
	}
	<-collector.Done()
	slog.Info("classifier worker stopped")
}
