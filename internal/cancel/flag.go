package cancel

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// flagTTL bounds how long a cancellation flag survives if cleanup never
// completes; well above any realistic job runtime.
const flagTTL = 24 * time.Hour

// FlagStore is the fast shared store the worker loop polls at every
// suspension point.
type FlagStore struct {
	rdb *redis.Client
}

// NewFlagStore wires a FlagStore over rdb.
func NewFlagStore(rdb *redis.Client) *FlagStore {
	return &FlagStore{rdb: rdb}
}

func flagKey(jobID string) string { return "cancel:flag:" + jobID }

// Set raises the cancellation flag for jobID.
func (f *FlagStore) Set(ctx context.Context, jobID string) error {
	if err := f.rdb.Set(ctx, flagKey(jobID), "1", flagTTL).Err(); err != nil {
		return fmt.Errorf("cancel: set flag: %w", err)
	}
	return nil
}

// IsSet reports whether jobID has been flagged for cancellation. Workers
// call this at every suspension point while running a job.
func (f *FlagStore) IsSet(ctx context.Context, jobID string) (bool, error) {
	n, err := f.rdb.Exists(ctx, flagKey(jobID)).Result()
	if err != nil {
		return false, fmt.Errorf("cancel: check flag: %w", err)
	}
	return n > 0, nil
}

// Clear removes the flag once cleanup has completed and the job's final
// status has been persisted.
func (f *FlagStore) Clear(ctx context.Context, jobID string) error {
	return f.rdb.Del(ctx, flagKey(jobID)).Err()
}
