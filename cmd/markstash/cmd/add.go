package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/markstash/markstash/internal/bookmark"
	mserrors "github.com/markstash/markstash/internal/errors"
	"github.com/markstash/markstash/internal/output"
)

// addOptions holds CLI flags for add.
type addOptions struct {
	title       string
	description string
	tags        []string
	public      bool
	now         bool
}

func newAddCmd() *cobra.Command {
	var opts addOptions

	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Save a bookmark for ingestion",
		Long: `Save a URL as a bookmark. Content extraction, chunking, embedding,
and indexing happen asynchronously in the worker; use --now to process
the bookmark immediately in this process instead.

Examples:
  markstash add https://go.dev/blog/pipelines
  markstash add https://youtu.be/f6kdp27TYZs --tags go,concurrency
  markstash add https://example.com/post --now`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd.Context(), cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.title, "title", "", "Title (extraction may replace it)")
	cmd.Flags().StringVar(&opts.description, "description", "", "Description")
	cmd.Flags().StringSliceVar(&opts.tags, "tags", nil, "Comma-separated tags")
	cmd.Flags().BoolVar(&opts.public, "public", false, "Make the bookmark visible to other users' public searches")
	cmd.Flags().BoolVar(&opts.now, "now", false, "Process the bookmark immediately instead of queueing it")

	return cmd
}

func runAdd(ctx context.Context, cmd *cobra.Command, url string, opts addOptions) error {
	out := output.New(cmd.OutOrStdout())

	a, err := openApp(ctx, appOptions{Indexes: opts.now, Embedder: opts.now})
	if err != nil {
		return err
	}
	defer a.Close()

	userID, err := currentUser(a.cfg)
	if err != nil {
		return err
	}

	b := &bookmark.Bookmark{
		UserID:      userID,
		URL:         url,
		Title:       opts.title,
		Description: opts.description,
		Tags:        opts.tags,
		IsPublic:    opts.public,
	}
	if err := a.store.CreateBookmark(ctx, b); err != nil {
		if mserrors.GetCode(err) == mserrors.ErrCodeInvalidInput {
			existing, lookupErr := a.store.GetBookmarkByURL(ctx, userID, url)
			if lookupErr == nil {
				out.Warningf("Already saved (%s, status: %s)", existing.ID, existing.Status)
				return nil
			}
		}
		return err
	}

	if opts.now {
		if err := a.newPipeline().Process(ctx, b.ID); err != nil {
			return fmt.Errorf("processing failed: %w", err)
		}
		if err := a.saveVectors(); err != nil {
			return err
		}
		out.Successf("Indexed %s (%s)", url, b.ID)
		return nil
	}

	if _, err := a.queue.Enqueue(ctx, b.ID); err != nil {
		return err
	}
	out.Successf("Saved %s (%s)", url, b.ID)
	out.Status("", "Run 'markstash worker' to process pending bookmarks.")
	return nil
}
