package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/markstash/markstash/internal/output"
)

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <bookmark-id>",
		Short: "Delete a bookmark and remove it from search",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd.Context(), cmd, args[0])
		},
	}
	return cmd
}

func runDelete(ctx context.Context, cmd *cobra.Command, rawID string) error {
	out := output.New(cmd.OutOrStdout())

	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid bookmark ID %q: %w", rawID, err)
	}

	a, err := openApp(ctx, appOptions{Indexes: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.newPipeline().Delete(ctx, id); err != nil {
		return err
	}
	if err := a.saveVectors(); err != nil {
		return err
	}

	out.Successf("Deleted %s", id)
	return nil
}
