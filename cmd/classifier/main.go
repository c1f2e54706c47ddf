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

	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/registry"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/server/handler"
	srvmw "github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/server/middleware"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/server/router"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/server/rpcapi"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/server/service"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/utterance"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/rpc"
)

const (
	snapshotInterval  = time.Minute
	snapshotRetention = 7 * 24 * time.Hour
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting classifier service", "port", cfg.Server.Port, "models_source", cfg.Models.Source)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, nil)
		defer shutdownMetrics(context.Background())
	}

	checker := health.NewChecker("classifier")

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
	report, err := reg.Load(ctx)
	if err != nil {
		slog.Error("failed to load models", "error", err)
		os.Exit(1)
	}
	for name, lerr := range report.Failed {
		slog.Warn("model failed to load", "model", name, "error", lerr)
	}
	slog.Info("models loaded", "count", len(report.Loaded))
	checker.Register("models", health.Ping(false, reg.Ready))

	opts := service.Options{
		Cascade: utterance.Config{
			BinaryModel: cfg.Classifier.BinaryModel,
			IntentModel: cfg.Classifier.IntentModel,
			TokenModel:  cfg.Classifier.TokenModel,
			Threshold:   cfg.Classifier.Threshold,
		},
		MaxTextLen: cfg.Classifier.MaxTextLen,
		CacheTTL:   cfg.Redis.CacheTTL,
		Metrics:    m,
	}

	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, prediction caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			opts.CacheStore = redisClient
			checker.Register("redis", health.Ping(true, redisClient.Ping))
			slog.Info("prediction cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	agg := analytics.NewAggregator()
	var publisher analytics.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		publisher = producer
		slog.Info("analytics publishing enabled", "topic", cfg.Kafka.Topics.AnalyticsEvents)
	}
	collector := analytics.NewCollector(publisher, agg, 100, 5*time.Second)
	collector.Start(ctx)
	opts.Collector = collector

	analyticsHandler := analytics.NewHandler(agg)
	var snapshotsDone <-chan struct{}
	if db != nil {
		snapshots := aggregator.NewStore(db, "classifier").WithRetention(snapshotRetention)
		snapshotsDone = snapshots.StartPeriodicSave(ctx, agg, snapshotInterval)
		analyticsHandler.WithHistory(snapshots)
	}

	svc := service.New(reg, opts)

	var limiter *srvmw.Limiter
	if cfg.RateLimit.Enabled {
		limiter = srvmw.NewLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, 10*time.Minute)
		go limiter.RunSweeper(time.Minute, ctx.Done())
	}

	var rpcServer *rpc.Server
	if cfg.RPC.Enabled {
		rpcServer = rpc.NewServer()
		rpcapi.Register(rpcServer, svc)
		go func() {
			if err := rpcServer.Serve(cfg.RPC.Addr); err != nil {
				slog.Error("rpc server error", "error", err)
			}
		}()
		slog.Info("rpc server enabled", "addr", cfg.RPC.Addr, "methods", rpcServer.MethodCount())
	}

	deps := router.Deps{
		Handler:        handler.New(svc),
		Analytics:      analyticsHandler,
		Health:         checker,
		Metrics:        m,
		Limiter:        limiter,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Timeout:        cfg.Server.RequestTimeout,
	}
	if cfg.Auth.Enabled {
		deps.AdminKeys = apikey.NewStore(db)
		slog.Info("admin keys required for model management")
	}
	routes := router.New(deps)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      routes,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if rpcServer != nil {
			rpcServer.Stop()
		}
	}()

	slog.Info("classifier service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	<-collector.Done()
	if snapshotsDone != nil {
		<-snapshotsDone
	}
	slog.Info("classifier service stopped")
}
