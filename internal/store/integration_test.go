package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/jonesrussell/crawlctl/internal/domain"
	"github.com/jonesrussell/crawlctl/internal/store"
)

// TestStoreIntegration exercises the repositories against a real Postgres,
// since the XOR check, the partial DLQ unique index, and the partitioned
// log table can't be observed through sqlmock.
func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping store integration test in short mode")
	}

	ctx := context.Background()
	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("crawlctl_test"),
		tcpostgres.WithUsername("crawlctl"),
		tcpostgres.WithPassword("crawlctl"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("container runtime unavailable: %v", err)
	}
	testcontainers.CleanupContainer(t, ctr)

	databaseURL, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, store.RunMigrationsDir(databaseURL, "../../migrations"))

	db, err := store.Connect(databaseURL)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	st := store.New(db)

	site := &domain.Website{
		Name:    "integration-site",
		BaseURL: "https://example.com",
		Status:  domain.WebsiteStatusActive,
		Config:  domain.JSONMap{"global": map[string]any{"retry": map[string]any{"max_attempts": 5}}},
	}
	require.NoError(t, st.Websites.Create(ctx, site))

	t.Run("website name is unique", func(t *testing.T) {
		dup := &domain.Website{Name: "integration-site", BaseURL: "https://dup.example.com", Status: domain.WebsiteStatusActive}
		err := st.Websites.Create(ctx, dup)
		assert.ErrorIs(t, err, store.ErrConflict)
	})

	t.Run("job XOR constraint", func(t *testing.T) {
		both := &domain.Job{
			SeedURL:      "https://example.com/x",
			WebsiteRef:   &site.ID,
			InlineConfig: domain.JSONMap{"steps": []any{}},
			Priority:     5, JobType: domain.JobTypeOneTime, Status: domain.JobStatusPending,
		}
		assert.ErrorIs(t, st.Jobs.Create(ctx, both), store.ErrConflict,
			"a job with both website_id and inline_config must be rejected")

		neither := &domain.Job{
			SeedURL:  "https://example.com/x",
			Priority: 5, JobType: domain.JobTypeOneTime, Status: domain.JobStatusPending,
		}
		assert.ErrorIs(t, st.Jobs.Create(ctx, neither), store.ErrConflict,
			"a job with neither reference must be rejected")
	})

	t.Run("retry policy table is seeded", func(t *testing.T) {
		p, err := st.RetryPolicies.GetByCategory(ctx, "network")
		require.NoError(t, err)
		assert.True(t, p.IsRetryable)
		assert.Equal(t, 3, p.MaxAttempts)

		policies, err := st.RetryPolicies.List(ctx)
		require.NoError(t, err)
		assert.Len(t, policies, 12)
	})

	job := &domain.Job{
		SeedURL:    "https://example.com/page",
		WebsiteRef: &site.ID,
		Priority:   5, JobType: domain.JobTypeOneTime, Status: domain.JobStatusPending,
		MaxRetries: 3,
	}
	require.NoError(t, st.Jobs.Create(ctx, job))

	t.Run("status transitions enforce terminality", func(t *testing.T) {
		require.NoError(t, st.Jobs.MarkRunning(ctx, job.ID))
		require.NoError(t, st.Jobs.MarkCompleted(ctx, job.ID))

		err := st.Jobs.Cancel(ctx, job.ID, "operator", "too late")
		assert.ErrorIs(t, err, store.ErrConflict, "a completed job must not be cancellable")
	})

	t.Run("one active DLQ entry per job", func(t *testing.T) {
		entry := &domain.DLQEntry{
			JobRef: job.ID, SeedURL: job.SeedURL, WebsiteRef: &site.ID,
			JobType: domain.JobTypeOneTime, Priority: 5,
			ErrorCategory: "network", ErrorMessage: "gave up",
			TotalAttempts: 3, FirstAttemptAt: time.Now().UTC(), LastAttemptAt: time.Now().UTC(),
		}
		require.NoError(t, st.DLQ.Insert(ctx, entry))

		second := *entry
		second.ID = 0
		assert.ErrorIs(t, st.DLQ.Insert(ctx, &second), store.ErrConflict)

		require.NoError(t, st.DLQ.Resolve(ctx, entry.ID, "root cause fixed"))
		third := *entry
		third.ID = 0
		assert.NoError(t, st.DLQ.Insert(ctx, &third),
			"a resolved entry frees the slot for a new quarantine")
	})

	t.Run("log ids increase monotonically per job", func(t *testing.T) {
		require.NoError(t, st.Logs.EnsurePartitions(ctx, 1))

		var prev int64
		for i := 0; i < 3; i++ {
			rec := &domain.LogRecord{JobRef: job.ID, Level: domain.LogLevelInfo, Message: "line"}
			require.NoError(t, st.Logs.Insert(ctx, rec))
			assert.Greater(t, rec.ID, prev, "insert %d", i)
			prev = rec.ID
		}

		rows, err := st.Logs.ListByJob(ctx, job.ID, 0, 50)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		for i := 1; i < len(rows); i++ {
			assert.Greater(t, rows[i].ID, rows[i-1].ID)
		}
	})

	t.Run("scheduled job advance is atomic", func(t *testing.T) {
		sj := &domain.ScheduledJob{
			WebsiteRef:   site.ID,
			CronSchedule: "0 9 * * *",
			Timezone:     "Asia/Jakarta",
			// Truncated so the optimistic next_run_time comparison survives
			// Postgres's microsecond timestamp resolution.
			NextRunTime: time.Now().UTC().Add(-time.Minute).Truncate(time.Microsecond),
			IsActive:     true,
		}
		require.NoError(t, st.ScheduledJobs.Create(ctx, sj))

		next := time.Now().UTC().Add(24 * time.Hour)
		won, err := st.ScheduledJobs.AdvanceNextRun(ctx, sj.ID, sj.NextRunTime, next, time.Now().UTC())
		require.NoError(t, err)
		assert.True(t, won, "first advance wins")

		won, err = st.ScheduledJobs.AdvanceNextRun(ctx, sj.ID, sj.NextRunTime, next, time.Now().UTC())
		require.NoError(t, err)
		assert.False(t, won, "a second advance from the same snapshot loses the race")
	})
}
