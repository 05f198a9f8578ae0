package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/markstash/markstash/internal/bookmark"
	"github.com/markstash/markstash/internal/output"
)

func newListCmd() *cobra.Command {
	var status string
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List bookmarks with their processing status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd.Context(), cmd, status, limit, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, extracting, chunking, embedding, indexing, indexed, failed)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of bookmarks")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runList(ctx context.Context, cmd *cobra.Command, status string, limit int, jsonOutput bool) error {
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

	var filter bookmark.Status
	if status != "" {
		filter = bookmark.Status(strings.ToLower(status))
		if !filter.Valid() {
			return fmt.Errorf("unknown status %q", status)
		}
	}

	bookmarks, err := a.store.ListBookmarks(ctx, userID, filter, limit)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(bookmarks)
	}

	if len(bookmarks) == 0 {
		out.Status("", "No bookmarks found.")
		return nil
	}

	for _, b := range bookmarks {
		icon := statusIcon(b.Status)
		title := b.Title
		if title == "" {
			title = b.URL
		}
		out.Statusf(icon, "%s  [%s]  %s", title, b.Status, b.ID)
		out.Status("", b.URL)
		if b.Status == bookmark.StatusFailed && b.StatusReason != "" {
			out.Status("", "reason: "+b.StatusReason)
		}
	}
	return nil
}

func statusIcon(s bookmark.Status) string {
	switch s {
	case bookmark.StatusIndexed:
		return "✅"
	case bookmark.StatusFailed:
		return "❌"
	case bookmark.StatusPending:
		return "⏳"
	default:
		return "⚙️ "
	}
}
