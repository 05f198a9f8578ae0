package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/markstash/markstash/internal/output"
)

func newRetryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry <bookmark-id>",
		Short: "Re-queue a failed bookmark for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRetry(cmd.Context(), cmd, args[0])
		},
	}
	return cmd
}

func runRetry(ctx context.Context, cmd *cobra.Command, rawID string) error {
	out := output.New(cmd.OutOrStdout())

	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid bookmark ID %q: %w", rawID, err)
	}

	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.queue.EnqueueForRetry(ctx, a.store, id); err != nil {
		return err
	}

	out.Successf("Re-queued %s", id)
	out.Status("", "Run 'markstash worker' to process it.")
	return nil
}
