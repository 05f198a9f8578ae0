package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/markstash/markstash/internal/output"
	"github.com/markstash/markstash/internal/profiling"
)

// snapshotInterval is how often the worker persists the vector index while
// running. A crash loses at most this much index work; the metadata store
// rebuilds the rest on the next start.
const snapshotInterval = 5 * time.Minute

// workerOptions holds CLI flags for worker.
type workerOptions struct {
	cpuProfile  string
	heapProfile string
}

func newWorkerCmd() *cobra.Command {
	var opts workerOptions

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the ingestion worker pool",
		Long: `Run the ingestion worker pool. Workers claim queued bookmarks and
drive them through extraction, chunking, embedding, and indexing.

Only one worker process may run per data directory; the indexes have a
single writer. Stop with Ctrl-C.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.cpuProfile, "cpu-profile", "", "Write a CPU profile to this file")
	cmd.Flags().StringVar(&opts.heapProfile, "heap-profile", "", "Write a heap profile to this file on shutdown")

	return cmd
}

func runWorker(ctx context.Context, cmd *cobra.Command, opts workerOptions) error {
	out := output.New(cmd.OutOrStdout())

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		return err
	}

	profiler := profiling.NewProfiler()
	if opts.cpuProfile != "" {
		stopCPU, err := profiler.StartCPU(opts.cpuProfile)
		if err != nil {
			return err
		}
		defer stopCPU()
	}
	if opts.heapProfile != "" {
		defer func() {
			if err := profiler.WriteHeap(opts.heapProfile); err != nil {
				slog.Warn("heap_profile_failed", slog.String("error", err.Error()))
			}
		}()
	}

	// Single-writer guard: the vector and lexical indexes tolerate one
	// writing process.
	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire worker lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another worker is already running for %s", cfg.Paths.DataDir)
	}
	defer func() { _ = lock.Unlock() }()

	a, err := openApp(ctx, appOptions{Indexes: true, Embedder: true})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipe := a.newPipeline()

	out.Statusf("⚙️ ", "Worker running with %d workers (embedder: %s). Ctrl-C to stop.",
		a.cfg.Pipeline.Workers, a.embedder.ModelName())

	// Periodic vector snapshots bound the rebuild cost after a crash.
	snapshotDone := make(chan struct{})
	go func() {
		defer close(snapshotDone)
		ticker := time.NewTicker(snapshotInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := a.saveVectors(); err != nil {
					slog.Warn("vector_snapshot_failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	runErr := pipe.Run(ctx)
	<-snapshotDone

	if err := a.saveVectors(); err != nil {
		return err
	}
	out.Success("Worker stopped, index snapshot saved.")

	if runErr != nil && runErr != context.Canceled {
		return runErr
	}
	return nil
}
