package cancel_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/crawlctl/internal/cancel"
)

func newFlagStore(t *testing.T) *cancel.FlagStore {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return cancel.NewFlagStore(rdb)
}

func TestFlagStore_SetAndCheck(t *testing.T) {
	flags := newFlagStore(t)
	ctx := context.Background()

	set, err := flags.IsSet(ctx, "job-1")
	if err != nil {
		t.Fatalf("IsSet() error = %v", err)
	}
	if set {
		t.Error("flag set before Set()")
	}

	if err := flags.Set(ctx, "job-1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	set, err = flags.IsSet(ctx, "job-1")
	if err != nil {
		t.Fatalf("IsSet() error = %v", err)
	}
	if !set {
		t.Error("flag not visible after Set()")
	}
}

func TestFlagStore_ClearIsScopedToJob(t *testing.T) {
	flags := newFlagStore(t)
	ctx := context.Background()

	if err := flags.Set(ctx, "job-1"); err != nil {
		t.Fatalf("Set(job-1) error = %v", err)
	}
	if err := flags.Set(ctx, "job-2"); err != nil {
		t.Fatalf("Set(job-2) error = %v", err)
	}
	if err := flags.Clear(ctx, "job-1"); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	set1, _ := flags.IsSet(ctx, "job-1")
	set2, _ := flags.IsSet(ctx, "job-2")
	if set1 {
		t.Error("job-1 flag survived Clear()")
	}
	if !set2 {
		t.Error("job-2 flag clobbered by clearing job-1")
	}
}
