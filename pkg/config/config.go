// Package config loads classifier service configuration from a YAML file,
// an optional .env file and MIND_* environment overrides, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	RPC        RPCConfig        `yaml:"rpc"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Models     ModelsConfig     `yaml:"models"`
	Classifier ClassifierConfig `yaml:"classifier"`
	RateLimit  RateLimitConfig  `yaml:"rateLimit"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
}

// RPCConfig holds the internal JSON-over-TCP listener settings.
type RPCConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	Utterances      string `yaml:"utterances"`
	Predictions     string `yaml:"predictions"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection and prediction cache parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// ModelsConfig says where artifacts come from. Source is "files" or
// "postgres".
type ModelsConfig struct {
	Source string      `yaml:"source"`
	Dir    string      `yaml:"dir"`
	Specs  []ModelSpec `yaml:"specs"`
}

// ModelSpec describes one artifact to load. Path and ClassNames are
// resolved against ModelsConfig.Dir when relative.
type ModelSpec struct {
	Name       string `yaml:"name"`
	Kind       string `yaml:"kind"`
	Path       string `yaml:"path"`
	ClassNames string `yaml:"classNames"`
}

// ClassifierConfig wires model names into the utterance cascade.
type ClassifierConfig struct {
	BinaryModel string  `yaml:"binaryModel"`
	IntentModel string  `yaml:"intentModel"`
	TokenModel  string  `yaml:"tokenModel"`
	Threshold   float64 `yaml:"threshold"`
	MaxTextLen  int     `yaml:"maxTextLength"`
}

// RateLimitConfig is a per-client token bucket.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// AuthConfig turns on admin keys for model-management routes. Keys live
// in Postgres.
type AuthConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided), loads a .env file from the
// working directory when one exists and applies MIND_* environment
// overrides.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	_ = godotenv.Load()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the services cannot start with.
func (c *Config) Validate() error {
	var errs []string
	switch c.Models.Source {
	case "files", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("models.source must be files or postgres, got %q", c.Models.Source))
	}
	if c.Models.Source == "postgres" && !c.Postgres.Enabled {
		errs = append(errs, "models.source is postgres but postgres is disabled")
	}
	seen := make(map[string]struct{}, len(c.Models.Specs))
	for i, s := range c.Models.Specs {
		if s.Name == "" {
			errs = append(errs, fmt.Sprintf("models.specs[%d].name is required", i))
		}
		if _, dup := seen[s.Name]; dup {
			errs = append(errs, fmt.Sprintf("models.specs[%d].name %q is duplicated", i, s.Name))
		}
		seen[s.Name] = struct{}{}
		if s.Kind != "document" && s.Kind != "token" {
			errs = append(errs, fmt.Sprintf("models.specs[%d].kind must be document or token", i))
		}
	}
	if c.Classifier.Threshold <= 0 || c.Classifier.Threshold > 1 {
		errs = append(errs, fmt.Sprintf("classifier.threshold %v outside (0, 1]", c.Classifier.Threshold))
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		errs = append(errs, "rateLimit needs positive requestsPerSecond and burst")
	}
	if c.Auth.Enabled && !c.Postgres.Enabled {
		errs = append(errs, "auth is enabled but postgres is disabled")
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Default returns the built-in configuration without reading files or the
// environment.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config suitable for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  5 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		RPC: RPCConfig{
			Addr: ":9091",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "mindclassifier",
			User:            "mindclassifier",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "mind-classifier",
			Topics: KafkaTopics{
				Utterances:      "utterances",
				Predictions:     "utterance-predictions",
				AnalyticsEvents: "classifier-analytics",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 5 * time.Minute,
		},
		Models: ModelsConfig{
			Source: "files",
			Dir:    "models",
			Specs: []ModelSpec{
				{Name: "bin", Kind: "document", Path: "bin_manual.json"},
				{Name: "intent", Kind: "document", Path: "intent_manual.json", ClassNames: "intent_classes.json"},
				{Name: "token", Kind: "token", Path: "token_manual.json"},
			},
		},
		Classifier: ClassifierConfig{
			BinaryModel: "bin",
			IntentModel: "intent",
			TokenModel:  "token",
			Threshold:   0.6,
			MaxTextLen:  4096,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads MIND_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	setInt("MIND_SERVER_PORT", &cfg.Server.Port)
	setString("MIND_RPC_ADDR", &cfg.RPC.Addr)
	setBool("MIND_RPC_ENABLED", &cfg.RPC.Enabled)

	setBool("MIND_POSTGRES_ENABLED", &cfg.Postgres.Enabled)
	setString("MIND_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("MIND_POSTGRES_PORT", &cfg.Postgres.Port)
	setString("MIND_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setString("MIND_POSTGRES_USER", &cfg.Postgres.User)
	setString("MIND_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setString("MIND_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)

	setBool("MIND_KAFKA_ENABLED", &cfg.Kafka.Enabled)
	if v := os.Getenv("MIND_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}

	setBool("MIND_REDIS_ENABLED", &cfg.Redis.Enabled)
	setString("MIND_REDIS_ADDR", &cfg.Redis.Addr)
	setString("MIND_REDIS_PASSWORD", &cfg.Redis.Password)

	setBool("MIND_AUTH_ENABLED", &cfg.Auth.Enabled)

	setString("MIND_MODELS_SOURCE", &cfg.Models.Source)
	setString("MIND_MODELS_DIR", &cfg.Models.Dir)
	if v := os.Getenv("MIND_CLASSIFIER_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Classifier.Threshold = f
		}
	}

	setString("MIND_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("MIND_LOGGING_FORMAT", &cfg.Logging.Format)
	setInt("MIND_METRICS_PORT", &cfg.Metrics.Port)
}
