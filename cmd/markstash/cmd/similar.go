package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/markstash/markstash/internal/output"
)

func newSimilarCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "similar <bookmark-id>",
		Short: "Find bookmarks with similar content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimilar(cmd.Context(), cmd, args[0], limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "Maximum number of results")
	return cmd
}

func runSimilar(ctx context.Context, cmd *cobra.Command, rawID string, limit int) error {
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

	results, err := a.newEngine().Similar(ctx, id, limit)
	if err != nil {
		return err
	}

	if len(results) == 0 {
		out.Status("", "No similar bookmarks found.")
		return nil
	}
	for i, r := range results {
		title := r.Bookmark.Title
		if title == "" {
			title = r.Bookmark.URL
		}
		out.Statusf("", "%d. %s (score: %.2f)", i+1, title, r.Score)
		out.Status("", "   "+r.Bookmark.URL)
	}
	return nil
}
