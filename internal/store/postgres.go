// Package store is the persistence layer: websites, crawl jobs, scheduled
// jobs, retry policy/history, the dead-letter queue, and partitioned logs,
// backed by Postgres via sqlx and lib/pq.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
)

const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 5
	DefaultConnMaxLifetime = 5 * time.Minute
	DefaultPingTimeout     = 5 * time.Second
)

// Connect opens a pooled connection to Postgres and verifies it with a ping.
func Connect(databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), DefaultPingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	return db, nil
}

// Store aggregates every repository over a single connection pool.
type Store struct {
	DB *sqlx.DB

	Websites      *WebsiteRepository
	Jobs          *JobRepository
	ScheduledJobs *ScheduledJobRepository
	RetryPolicies *RetryPolicyRepository
	RetryHistory  *RetryHistoryRepository
	DLQ           *DLQRepository
	Logs          *LogRepository
}

// New wires every repository against db.
func New(db *sqlx.DB) *Store {
	return &Store{
		DB:            db,
		Websites:      NewWebsiteRepository(db),
		Jobs:          NewJobRepository(db),
		ScheduledJobs: NewScheduledJobRepository(db),
		RetryPolicies: NewRetryPolicyRepository(db),
		RetryHistory:  NewRetryHistoryRepository(db),
		DLQ:           NewDLQRepository(db),
		Logs:          NewLogRepository(db),
	}
}
