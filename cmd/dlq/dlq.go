// Package dlq implements the `crawlctl dlq` operator subcommands: listing
// quarantined jobs, recording a manual retry, and resolving an entry.
package dlq

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/crawlctl/internal/bootstrap"
	dlqsvc "github.com/jonesrussell/crawlctl/internal/dlq"
	"github.com/jonesrussell/crawlctl/internal/domain"
)

// Command returns the `dlq` parent command and its list/retry/resolve
// children.
func Command() *cobra.Command {
	root := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and act on the dead-letter queue",
	}
	root.AddCommand(listCmd())
	root.AddCommand(retryCmd())
	root.AddCommand(resolveCmd())
	return root
}

func manager(ctx context.Context) (*dlqsvc.Manager, *bootstrap.App, error) {
	app, err := bootstrap.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	return dlqsvc.New(app.Store.DLQ), app, nil
}

func listCmd() *cobra.Command {
	var unresolvedOnly bool
	var limit, offset int
	c := &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			mgr, app, err := manager(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			entries, err := mgr.List(ctx, unresolvedOnly, limit, offset)
			if err != nil {
				return fmt.Errorf("dlq list: %w", err)
			}
			renderTable(entries)
			return nil
		},
	}
	c.Flags().BoolVar(&unresolvedOnly, "unresolved", false, "show only unresolved entries")
	c.Flags().IntVar(&limit, "limit", 50, "max entries to show")
	c.Flags().IntVar(&offset, "offset", 0, "entries to skip")
	return c
}

func retryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <entry-id>",
		Short: "Record a manual retry attempt for an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			mgr, app, err := manager(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := mgr.RecordManualRetry(ctx, id, nil); err != nil {
				return fmt.Errorf("dlq retry: %w", err)
			}
			fmt.Printf("recorded manual retry for entry %d\n", id)
			return nil
		},
	}
}

func resolveCmd() *cobra.Command {
	var notes string
	c := &cobra.Command{
		Use:   "resolve <entry-id>",
		Short: "Close out an entry with operator notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			mgr, app, err := manager(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := mgr.Resolve(ctx, id, notes); err != nil {
				return fmt.Errorf("dlq resolve: %w", err)
			}
			fmt.Printf("resolved entry %d\n", id)
			return nil
		},
	}
	c.Flags().StringVar(&notes, "notes", "", "resolution notes")
	return c
}

func parseID(s string) (int64, error) {
	var id int64
	if _, err := fmt.Sscanf(s, "%d", &id); err != nil {
		return 0, fmt.Errorf("invalid entry id %q", s)
	}
	return id, nil
}

func renderTable(entries []*domain.DLQEntry) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Job", "Category", "Attempts", "Added", "Retried", "Resolved"})

	for _, e := range entries {
		t.AppendRow(table.Row{
			e.ID,
			e.JobRef,
			e.ErrorCategory,
			e.TotalAttempts,
			e.AddedToDLQAt.Format("2006-01-02 15:04"),
			e.RetryAttempted,
			e.IsResolved(),
		})
	}
	if len(entries) == 0 {
		fmt.Println("no dead-lettered jobs")
		return
	}
	t.Render()
}
