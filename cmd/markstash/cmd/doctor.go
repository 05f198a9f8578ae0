package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/markstash/markstash/internal/output"
	"github.com/markstash/markstash/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check installation health",
		Long: `Check that the data directory is writable, disk space is sufficient,
the database opens, and the embedding provider is reachable.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd.Context(), cmd)
		},
	}
	return cmd
}

func runDoctor(ctx context.Context, cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	results := preflight.New(cfg).RunAll(ctx)
	for _, r := range results {
		out.Statusf("", "[%s] %-16s %s", r.Status, r.Name, r.Message)
	}
	out.Newline()

	if preflight.HasCriticalFailures(results) {
		return fmt.Errorf("installation has critical problems")
	}
	out.Success("Everything looks good.")
	return nil
}
