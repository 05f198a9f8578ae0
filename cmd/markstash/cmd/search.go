package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/markstash/markstash/internal/output"
	"github.com/markstash/markstash/internal/search"
	"github.com/markstash/markstash/internal/store"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit    int
	platform string
	tags     []string
	after    string
	before   string
	public   bool
	precise  bool
	format   string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search your bookmarks",
		Long: `Search saved bookmarks with hybrid retrieval: semantic similarity
over embedded content fused with keyword matching.

If the embedding provider is unavailable the search silently degrades
to keyword-only results.

Examples:
  markstash search "that talk about channel deadlocks"
  markstash search "sourdough starter" --platform youtube --limit 5
  markstash search "go generics" --tags go --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.platform, "platform", "p", "", "Filter by platform (youtube, twitter, github, reddit, pdf, website)")
	cmd.Flags().StringSliceVarP(&opts.tags, "tags", "t", nil, "Filter by tags (all must match)")
	cmd.Flags().StringVar(&opts.after, "after", "", "Only bookmarks created after this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.before, "before", "", "Only bookmarks created before this date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&opts.public, "public", false, "Include other users' public bookmarks")
	cmd.Flags().BoolVar(&opts.precise, "precise", false, "Apply a fixed relevance floor instead of the adaptive cutoff")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	out := output.New(cmd.OutOrStdout())

	a, err := openApp(ctx, appOptions{Indexes: true, Embedder: true})
	if err != nil {
		return err
	}
	defer a.Close()

	userID, err := currentUser(a.cfg)
	if err != nil {
		return err
	}

	filter, err := buildFilter(opts)
	if err != nil {
		return err
	}

	mode := search.ModeSmart
	if opts.precise {
		mode = search.ModePrecise
	}

	results, err := a.newEngine().Search(ctx, userID, query, search.Options{
		Filter: filter,
		Limit:  opts.limit,
		Mode:   mode,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if opts.format == "json" {
		return formatResultsJSON(cmd, results)
	}
	return formatResultsText(out, query, results)
}

func buildFilter(opts searchOptions) (store.Filter, error) {
	filter := store.Filter{
		Platform:      opts.platform,
		Tags:          opts.tags,
		IncludePublic: opts.public,
	}

	var err error
	if opts.after != "" {
		filter.CreatedAfter, err = time.Parse("2006-01-02", opts.after)
		if err != nil {
			return filter, fmt.Errorf("invalid --after date %q: %w", opts.after, err)
		}
	}
	if opts.before != "" {
		filter.CreatedBefore, err = time.Parse("2006-01-02", opts.before)
		if err != nil {
			return filter, fmt.Errorf("invalid --before date %q: %w", opts.before, err)
		}
	}
	return filter, nil
}

// formatResultsText outputs ranked results in human-readable form.
func formatResultsText(out *output.Writer, query string, results []*search.Result) error {
	if len(results) == 0 {
		out.Statusf("", "No results found for %q", query)
		return nil
	}

	out.Statusf("🔍", "Found %d results for %q:", len(results), query)
	out.Newline()

	for i, r := range results {
		title := r.Bookmark.Title
		if title == "" {
			title = r.Bookmark.URL
		}
		out.Statusf("", "%d. %s (score: %.2f)", i+1, title, r.Score)
		out.Status("", "   "+r.Bookmark.URL)
		if len(r.Bookmark.Tags) > 0 {
			out.Status("", "   tags: "+strings.Join(r.Bookmark.Tags, ", "))
		}
		out.Newline()
	}
	return nil
}

// formatResultsJSON outputs ranked results as JSON.
func formatResultsJSON(cmd *cobra.Command, results []*search.Result) error {
	type jsonResult struct {
		ID            string   `json:"id"`
		URL           string   `json:"url"`
		Title         string   `json:"title"`
		Platform      string   `json:"platform"`
		Tags          []string `json:"tags,omitempty"`
		Score         float64  `json:"score"`
		SemanticScore float64  `json:"semantic_score"`
		LexicalScore  float64  `json:"lexical_score"`
	}

	out := make([]jsonResult, 0, len(results))
	for _, r := range results {
		out = append(out, jsonResult{
			ID:            r.Bookmark.ID.String(),
			URL:           r.Bookmark.URL,
			Title:         r.Bookmark.Title,
			Platform:      r.Bookmark.Platform,
			Tags:          r.Bookmark.Tags,
			Score:         r.Score,
			SemanticScore: r.SemanticScore,
			LexicalScore:  r.LexicalScore,
		})
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
