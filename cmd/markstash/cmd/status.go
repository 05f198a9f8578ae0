package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/markstash/markstash/internal/bookmark"
	"github.com/markstash/markstash/internal/output"
	"github.com/markstash/markstash/internal/queue"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show bookmark pipeline and queue status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd)
		},
	}
	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())

	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	userID, err := currentUser(a.cfg)
	if err != nil {
		return err
	}

	counts, err := a.store.CountByStatus(ctx, userID)
	if err != nil {
		return err
	}

	out.Status("📚", "Bookmarks:")
	total := 0
	for _, st := range []bookmark.Status{
		bookmark.StatusPending, bookmark.StatusExtracting, bookmark.StatusChunking,
		bookmark.StatusEmbedding, bookmark.StatusIndexing, bookmark.StatusIndexed,
		bookmark.StatusFailed,
	} {
		if n := counts[st]; n > 0 {
			out.Statusf("", "%-11s %d", st, n)
			total += n
		}
	}
	if total == 0 {
		out.Status("", "none")
	}

	jobCounts, err := a.queue.Counts(ctx)
	if err != nil {
		return err
	}
	out.Newline()
	out.Status("⚙️ ", "Queue:")
	queued := 0
	for _, state := range []string{queue.StateQueued, queue.StateRunning, queue.StateDone, queue.StateDead} {
		if n := jobCounts[state]; n > 0 {
			out.Statusf("", "%-11s %d", state, n)
			queued += n
		}
	}
	if queued == 0 {
		out.Status("", "empty")
	}

	dead, err := a.queue.DeadLetters(ctx, 5)
	if err != nil {
		return err
	}
	if len(dead) > 0 {
		out.Newline()
		out.Warning("Dead-lettered jobs (retry with 'markstash retry <id>'):")
		for _, j := range dead {
			out.Statusf("", "%s  attempts=%d  %s", j.BookmarkID, j.Attempts, j.LastError)
		}
	}
	return nil
}
