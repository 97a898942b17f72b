package config

import (
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Metrics sink kinds accepted in METRICS_SINK.
const (
	SinkNone     = "none"
	SinkHTTP     = "http"
	SinkPostgres = "postgres"
	SinkKafka    = "kafka"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	AuthMode    string   `mapstructure:"AUTH_MODE"`
	LocalDBPath string   `mapstructure:"LOCAL_DB_PATH"`
	AuthIssuer  string   `mapstructure:"AUTH_ISSUER"`
	SigningKey  string   `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`
	AppVersion  string   `mapstructure:"APP_VERSION"`

	RemoteDatabaseURL string `mapstructure:"REMOTE_DATABASE_URL"`
	RemoteSchema      string `mapstructure:"REMOTE_SCHEMA"`
	DBMaxConns        int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32  `mapstructure:"DB_MIN_CONNS"`

	MetricsSink          string        `mapstructure:"METRICS_SINK"`
	MetricsEndpoint      string        `mapstructure:"METRICS_ENDPOINT"`
	MetricsAPIKey        string        `mapstructure:"METRICS_API_KEY"`
	MetricsKafkaBrokers  []string      `mapstructure:"METRICS_KAFKA_BROKERS"`
	MetricsKafkaTopic    string        `mapstructure:"METRICS_KAFKA_TOPIC"`
	MetricsBatchSize     int           `mapstructure:"METRICS_BATCH_SIZE"`
	MetricsFlushInterval time.Duration `mapstructure:"METRICS_FLUSH_INTERVAL"`
	MetricsMaxRetries    int           `mapstructure:"METRICS_MAX_RETRIES"`
	MetricsRetryBase     time.Duration `mapstructure:"METRICS_RETRY_BASE"`
	SlowRequestThreshold time.Duration `mapstructure:"SLOW_REQUEST_THRESHOLD"`

	ConnectivityCheckURL string        `mapstructure:"CONNECTIVITY_CHECK_URL"`
	ConnectivityInterval time.Duration `mapstructure:"CONNECTIVITY_INTERVAL"`

	LearningAutoApplyThreshold int `mapstructure:"LEARNING_AUTO_APPLY_THRESHOLD"`
	SearchDefaultLimit         int `mapstructure:"SEARCH_DEFAULT_LIMIT"`
}

var keys = []string{
	"PORT", "ENV", "AUTH_MODE", "LOCAL_DB_PATH", "AUTH_ISSUER", "AUTH_SIGNING_KEY",
	"CORS_ORIGINS", "APP_VERSION", "REMOTE_DATABASE_URL", "REMOTE_SCHEMA",
	"DB_MAX_CONNS", "DB_MIN_CONNS", "METRICS_SINK", "METRICS_ENDPOINT", "METRICS_API_KEY",
	"METRICS_KAFKA_BROKERS", "METRICS_KAFKA_TOPIC", "METRICS_BATCH_SIZE",
	"METRICS_FLUSH_INTERVAL", "METRICS_MAX_RETRIES", "METRICS_RETRY_BASE",
	"SLOW_REQUEST_THRESHOLD", "CONNECTIVITY_CHECK_URL", "CONNECTIVITY_INTERVAL",
	"LEARNING_AUTO_APPLY_THRESHOLD", "SEARCH_DEFAULT_LIMIT",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // "" -> inferred from ENV
	v.SetDefault("LOCAL_DB_PATH", "rxpad.db")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("APP_VERSION", "dev")
	v.SetDefault("REMOTE_SCHEMA", "rxpad_metrics")
	v.SetDefault("DB_MAX_CONNS", 4)
	v.SetDefault("DB_MIN_CONNS", 0)
	v.SetDefault("METRICS_SINK", SinkNone)
	v.SetDefault("METRICS_KAFKA_TOPIC", "rxpad.metrics")
	v.SetDefault("METRICS_BATCH_SIZE", 50)
	v.SetDefault("METRICS_FLUSH_INTERVAL", "60s")
	v.SetDefault("METRICS_MAX_RETRIES", 8)
	v.SetDefault("METRICS_RETRY_BASE", "30s")
	v.SetDefault("SLOW_REQUEST_THRESHOLD", "1s")
	v.SetDefault("CONNECTIVITY_INTERVAL", "30s")
	v.SetDefault("LEARNING_AUTO_APPLY_THRESHOLD", 10)
	v.SetDefault("SEARCH_DEFAULT_LIMIT", 10)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// viper's string-to-slice hook splits on "," without trimming
	cfg.CORSOrigins = splitList(strings.Join(cfg.CORSOrigins, ","))
	cfg.MetricsKafkaBrokers = splitList(strings.Join(cfg.MetricsKafkaBrokers, ","))
	cfg.MetricsSink = strings.ToLower(strings.TrimSpace(cfg.MetricsSink))

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: Requests without a token get admin access.")
		log.Println("WARNING: Set ENV=production and AUTH_SIGNING_KEY before deploying.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns the effective auth mode. If AUTH_MODE is explicitly
// set, it is returned. Otherwise ENV=development gives "development" (tokens
// optional) and anything else "token".
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "token"
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if c.LocalDBPath == "" {
		return fmt.Errorf("LOCAL_DB_PATH is required")
	}

	mode := c.ResolvedAuthMode()
	if mode != "development" && mode != "token" {
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"token\", got %q", mode)
	}
	if mode == "token" && len(c.SigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes when AUTH_MODE is \"token\"")
	}

	switch c.MetricsSink {
	case SinkNone, "":
	case SinkHTTP:
		if _, err := url.ParseRequestURI(c.MetricsEndpoint); err != nil {
			return fmt.Errorf("METRICS_ENDPOINT must be a valid URL when METRICS_SINK is \"http\": %w", err)
		}
	case SinkPostgres:
		if c.RemoteDatabaseURL == "" {
			return fmt.Errorf("REMOTE_DATABASE_URL is required when METRICS_SINK is \"postgres\"")
		}
	case SinkKafka:
		if len(c.MetricsKafkaBrokers) == 0 || c.MetricsKafkaTopic == "" {
			return fmt.Errorf("METRICS_KAFKA_BROKERS and METRICS_KAFKA_TOPIC are required when METRICS_SINK is \"kafka\"")
		}
	default:
		return fmt.Errorf("METRICS_SINK must be none, http, postgres or kafka, got %q", c.MetricsSink)
	}

	if c.MetricsBatchSize <= 0 {
		return fmt.Errorf("METRICS_BATCH_SIZE must be positive, got %d", c.MetricsBatchSize)
	}
	if c.MetricsMaxRetries <= 0 {
		return fmt.Errorf("METRICS_MAX_RETRIES must be positive, got %d", c.MetricsMaxRetries)
	}
	if c.MetricsFlushInterval <= 0 || c.MetricsRetryBase <= 0 {
		return fmt.Errorf("METRICS_FLUSH_INTERVAL and METRICS_RETRY_BASE must be positive durations")
	}
	if c.LearningAutoApplyThreshold < 1 {
		return fmt.Errorf("LEARNING_AUTO_APPLY_THRESHOLD must be at least 1, got %d", c.LearningAutoApplyThreshold)
	}
	if c.SearchDefaultLimit < 1 || c.SearchDefaultLimit > 100 {
		return fmt.Errorf("SEARCH_DEFAULT_LIMIT must be between 1 and 100, got %d", c.SearchDefaultLimit)
	}
	return nil
}
