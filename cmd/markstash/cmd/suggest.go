package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newSuggestCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "suggest <prefix>",
		Short: "Suggest search terms from your bookmark titles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuggest(cmd.Context(), cmd, args[0], limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of suggestions")
	return cmd
}

func runSuggest(ctx context.Context, cmd *cobra.Command, prefix string, limit int) error {
	a, err := openApp(ctx, appOptions{Indexes: true})
	if err != nil {
		return err
	}
	defer a.Close()

	userID, err := currentUser(a.cfg)
	if err != nil {
		return err
	}

	// Suggestions never fail; an empty list is the worst case.
	for _, s := range a.newEngine().Suggest(ctx, userID, prefix, limit) {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), s); err != nil {
			return err
		}
	}
	return nil
}
