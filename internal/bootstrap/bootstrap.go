// Package bootstrap wires the shared dependency graph every cmd/
// entrypoint needs: configuration, logging, the Postgres-backed Store,
// the Redis client, and the Broker over it. Each binary (serve, worker,
// scheduler, retrypoller, dlq) builds only the extra pieces its
// own responsibility requires on top of this; migrate opens its own
// database connection instead.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/crawlctl/internal/broker"
	"github.com/jonesrussell/crawlctl/internal/config"
	"github.com/jonesrussell/crawlctl/internal/logger"
	redisutil "github.com/jonesrussell/crawlctl/internal/redisutil"
	retry "github.com/jonesrussell/crawlctl/internal/retrypolicy"
	"github.com/jonesrussell/crawlctl/internal/store"
)

// App is the dependency set common to every binary in this module.
type App struct {
	Config *config.Config
	Log    logger.Interface
	Store  *store.Store
	Redis  *redis.Client
	Broker *broker.Broker
}

// New loads configuration, opens the Store and Redis connections, and
// ensures the Broker's consumer group exists. Callers that don't need the
// Broker can ignore App.Broker; it's always initialized
// since every other binary needs it and the cost of one extra
// XGROUPCREATE call is negligible.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load config: %w", err)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: init logger: %w", err)
	}

	// Postgres and Redis may still be coming up when a binary starts (fresh
	// deploy, container restart ordering); retry connection-level failures
	// before giving up.
	var db *sqlx.DB
	if err := retry.Retry(ctx, connectRetryConfig(), func() error {
		var connErr error
		db, connErr = store.Connect(cfg.DatabaseURL)
		return connErr
	}); err != nil {
		return nil, fmt.Errorf("bootstrap: connect store: %w", err)
	}

	var rdb *redis.Client
	if err := retry.Retry(ctx, connectRetryConfig(), func() error {
		var connErr error
		rdb, connErr = redisutil.NewClientFromURL(cfg.RedisURL)
		return connErr
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap: connect redis: %w", err)
	}

	br, err := broker.New(ctx, rdb, brokerConfig(cfg))
	if err != nil {
		db.Close()
		rdb.Close()
		return nil, fmt.Errorf("bootstrap: init broker: %w", err)
	}

	return &App{
		Config: cfg,
		Log:    log,
		Store:  store.New(db),
		Redis:  rdb,
		Broker: br,
	}, nil
}

// Close releases the Store and Redis connections. Safe to call once at
// shutdown after every background loop has stopped.
func (a *App) Close() {
	if a.Store != nil && a.Store.DB != nil {
		a.Store.DB.Close()
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
}

func newLogger(cfg *config.Config) (logger.Interface, error) {
	lc := &logger.Config{
		Level:            logger.InfoLevel,
		Development:      cfg.Environment == config.EnvDevelopment,
		Encoding:         logger.DefaultEncoding,
		OutputPaths:      logger.DefaultOutputPaths,
		ErrorOutputPaths: logger.DefaultErrorOutputPaths,
		EnableColor:      cfg.Environment == config.EnvDevelopment,
	}
	if cfg.Environment == config.EnvDevelopment {
		lc.Level = logger.DebugLevel
	}
	return logger.New(lc)
}

// connectRetryConfig tolerates a dependency that needs a few seconds to
// accept connections, without stalling a genuinely misconfigured binary
// for long.
func connectRetryConfig() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = 5
	cfg.InitialDelay = 500 * time.Millisecond
	cfg.MaxDelay = 5 * time.Second
	return cfg
}

func brokerConfig(cfg *config.Config) broker.Config {
	return broker.Config{
		StreamName:    cfg.Broker.StreamName,
		ConsumerGroup: "workers",
		ConsumerName:  cfg.Broker.ConsumerName,
		MaxMsgs:       cfg.Broker.MaxMsgs,
		DedupWindow:   cfg.Broker.DedupWindow,
		AckWait:       cfg.Broker.AckWait,
		MaxDeliver:    cfg.Broker.MaxDeliver,
		MaxAckPending: cfg.Broker.MaxAckPending,
	}
}
