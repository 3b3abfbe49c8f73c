// Package config loads control-plane configuration from environment
// variables, an optional .env file, and an optional config.yaml, using
// Viper with defaults set first and environment bindings layered on top.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Environment values accepted by the environment field.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
	EnvTesting     = "testing"
)

// Config is the fully resolved application configuration.
type Config struct {
	Environment string

	DatabaseURL string
	RedisURL    string

	Broker    BrokerConfig
	Retry     RetryConfig
	Scheduler SchedulerConfig
	Stream    StreamConfig
	Logs      LogsConfig
	Server    ServerConfig
}

// BrokerConfig configures the durable work queue.
type BrokerConfig struct {
	URL             string
	StreamName      string
	ConsumerName    string
	MaxMsgs         int64
	DedupWindow     time.Duration
	AckWait         time.Duration
	MaxDeliver      int
	MaxAckPending   int
}

// RetryConfig configures the retry poller and url dedup window.
type RetryConfig struct {
	PollInterval time.Duration
	BatchSize    int
	URLDedupTTL  time.Duration
}

// SchedulerConfig configures the cron-driven materialization loop.
type SchedulerConfig struct {
	PollInterval time.Duration
}

// StreamConfig configures the subscriber-facing log stream endpoint.
type StreamConfig struct {
	TokenTTL               time.Duration
	TokenSigningKey        string
	BatchWindow            time.Duration
	PollFallback           time.Duration
	GracefulCleanupTimeout time.Duration
}

// LogsConfig configures log retention and partitioning.
type LogsConfig struct {
	RetentionDays        int
	PartitionMonthsAhead int
}

// ServerConfig configures the HTTP API surface.
type ServerConfig struct {
	Address      string
	WorkerCount  int
}

// Load reads .env, binds environment variables, applies defaults, and
// optionally reads config.yaml/config.json from the working directory.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if path := os.Getenv("CRAWLCTL_CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	_ = v.ReadInConfig()

	setDefaults(v)
	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("config: bind env vars: %w", err)
	}

	cfg := &Config{
		Environment: v.GetString("environment"),
		DatabaseURL: v.GetString("database_url"),
		RedisURL:    v.GetString("redis_url"),
		Broker: BrokerConfig{
			URL:           v.GetString("broker_url"),
			StreamName:    v.GetString("broker_stream_name"),
			ConsumerName:  v.GetString("broker_consumer_name"),
			MaxMsgs:       v.GetInt64("broker_max_msgs"),
			DedupWindow:   time.Duration(v.GetInt("broker_dedup_window_s")) * time.Second,
			AckWait:       time.Duration(v.GetInt("broker_ack_wait_s")) * time.Second,
			MaxDeliver:    v.GetInt("broker_max_deliver"),
			MaxAckPending: v.GetInt("broker_max_ack_pending"),
		},
		Retry: RetryConfig{
			PollInterval: time.Duration(v.GetInt("retry_poll_interval_s")) * time.Second,
			BatchSize:    v.GetInt("retry_batch_size"),
			URLDedupTTL:  v.GetDuration("url_dedup_ttl"),
		},
		Scheduler: SchedulerConfig{
			PollInterval: time.Duration(v.GetInt("scheduler_poll_interval_s")) * time.Second,
		},
		Stream: StreamConfig{
			TokenTTL:               time.Duration(v.GetInt("ws_token_ttl_s")) * time.Second,
			TokenSigningKey:        v.GetString("stream_token_signing_key"),
			BatchWindow:            time.Duration(v.GetInt("stream_batch_window_ms")) * time.Millisecond,
			PollFallback:           time.Duration(v.GetInt("stream_poll_fallback_s")) * time.Second,
			GracefulCleanupTimeout: time.Duration(v.GetInt("graceful_cleanup_timeout_s")) * time.Second,
		},
		Logs: LogsConfig{
			RetentionDays:        v.GetInt("log_retention_days"),
			PartitionMonthsAhead: v.GetInt("log_partition_months_ahead"),
		},
		Server: ServerConfig{
			Address:     v.GetString("server_address"),
			WorkerCount: v.GetInt("worker_count"),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks fields required for any mode of operation.
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction, EnvTesting:
	default:
		return fmt.Errorf("config: invalid environment %q", c.Environment)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: database_url is required")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("config: redis_url is required")
	}
	if c.Environment != EnvTesting && c.Stream.TokenSigningKey == "" {
		return fmt.Errorf("config: stream_token_signing_key is required")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", EnvProduction)
	v.SetDefault("worker_count", 4)
	v.SetDefault("server_address", ":8080")

	v.SetDefault("log_retention_days", 90)
	v.SetDefault("log_partition_months_ahead", 3)
	v.SetDefault("url_dedup_ttl", 24*time.Hour)

	v.SetDefault("ws_token_ttl_s", 600)
	v.SetDefault("graceful_cleanup_timeout_s", 5)

	v.SetDefault("broker_stream_name", "CRAWLER")
	v.SetDefault("broker_consumer_name", "worker")
	v.SetDefault("broker_max_msgs", 100_000)
	v.SetDefault("broker_dedup_window_s", 300)
	v.SetDefault("broker_ack_wait_s", 300)
	v.SetDefault("broker_max_deliver", 3)
	v.SetDefault("broker_max_ack_pending", 10)

	v.SetDefault("retry_poll_interval_s", 5)
	v.SetDefault("retry_batch_size", 100)

	v.SetDefault("scheduler_poll_interval_s", 5)

	v.SetDefault("stream_batch_window_ms", 100)
	v.SetDefault("stream_poll_fallback_s", 2)
}

func bindEnvVars(v *viper.Viper) error {
	binds := map[string][]string{
		"database_url":               {"DATABASE_URL"},
		"redis_url":                  {"REDIS_URL"},
		"broker_url":                 {"BROKER_URL"},
		"broker_stream_name":         {"BROKER_STREAM_NAME"},
		"broker_consumer_name":       {"BROKER_CONSUMER_NAME"},
		"worker_count":               {"WORKER_COUNT"},
		"environment":                {"ENVIRONMENT", "APP_ENV"},
		"log_retention_days":         {"LOG_RETENTION_DAYS"},
		"log_partition_months_ahead": {"LOG_PARTITION_MONTHS_AHEAD"},
		"url_dedup_ttl":              {"URL_DEDUP_TTL"},
		"ws_token_ttl_s":             {"WS_TOKEN_TTL_S"},
		"graceful_cleanup_timeout_s": {"GRACEFUL_CLEANUP_TIMEOUT_S"},
		"broker_max_msgs":            {"BROKER_MAX_MSGS"},
		"broker_dedup_window_s":      {"BROKER_DEDUP_WINDOW_S"},
		"broker_ack_wait_s":          {"BROKER_ACK_WAIT_S"},
		"broker_max_deliver":         {"BROKER_MAX_DELIVER"},
		"broker_max_ack_pending":     {"BROKER_MAX_ACK_PENDING"},
		"retry_poll_interval_s":      {"RETRY_POLL_INTERVAL_S"},
		"retry_batch_size":           {"RETRY_BATCH_SIZE"},
		"scheduler_poll_interval_s":  {"SCHEDULER_POLL_INTERVAL_S"},
		"stream_batch_window_ms":     {"STREAM_BATCH_WINDOW_MS"},
		"stream_poll_fallback_s":     {"STREAM_POLL_FALLBACK_S"},
		"server_address":             {"SERVER_ADDRESS"},
		"stream_token_signing_key":   {"STREAM_TOKEN_SIGNING_KEY"},
	}
	for key, envs := range binds {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}
