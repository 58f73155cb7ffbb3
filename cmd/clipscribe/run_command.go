package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
)

// statsInterval is how often a running batch logs its progress counters.
const statsInterval = 30 * time.Second

func newRunCommand(app *appContext) *cobra.Command {
	var noResume bool
	var workers int
	var batchSize int
	var maxVideos int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process all pending videos in the input directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if workers > 0 {
				app.cfg.Pipeline.Workers = workers
			}
			if batchSize > 0 {
				app.cfg.Pipeline.BatchSize = batchSize
			}
			if maxVideos == 0 {
				maxVideos = app.cfg.Pipeline.MaxVideos
			}
			resume := app.cfg.Pipeline.Resume && !noResume
			return executeRun(cmd.Context(), app, app.cfg.ProgressFile(), maxVideos, resume)
		},
	}

	cmd.Flags().BoolVar(&noResume, "no-resume", false, "Discard the checkpoint and reprocess everything")
	cmd.Flags().IntVar(&workers, "workers", 0, "Override the configured worker count")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Override the discovery batch size")
	cmd.Flags().IntVar(&maxVideos, "max-videos", 0, "Stop after this many videos (0 = unlimited)")
	return cmd
}

func executeRun(parent context.Context, app *appContext, progressPath string, maxVideos int, resume bool) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	unlock, err := acquireRunLock(app)
	if err != nil {
		return err
	}
	defer unlock()

	rt, err := buildRuntime(ctx, app, progressPath, maxVideos)
	if err != nil {
		return err
	}
	defer rt.close()

	if !resume {
		app.logger.Info("resume disabled, starting a fresh batch")
		if err := rt.store.Reset(); err != nil {
			return fmt.Errorf("reset progress checkpoint: %w", err)
		}
	}
	app.logger.Info("starting run",
		"batch", rt.store.BatchID(),
		"workers", app.cfg.Pipeline.Workers,
		"already_completed", rt.store.Count())

	stopStats := logStatsPeriodically(ctx, rt, app)
	defer stopStats()

	err = rt.controller.Run(ctx)
	snap := rt.controller.Stats().Snapshot()
	app.logger.Info("run finished",
		"processed", snap.Processed,
		"succeeded", snap.Succeeded,
		"partial", snap.Partial,
		"failed", snap.Failed,
		"elapsed", snap.Elapsed.Round(time.Second))

	if errors.Is(err, context.Canceled) {
		// A drained stop is a clean exit.
		return nil
	}
	return err
}

// acquireRunLock guards against two runs sharing the same output directory.
// The returned function releases the lock.
func acquireRunLock(app *appContext) (func(), error) {
	lockPath := filepath.Join(app.cfg.Paths.OutputDir, "clipscribe.lock")
	if err := os.MkdirAll(app.cfg.Paths.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, errors.New("another clipscribe run is already using this output directory")
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			app.logger.Warn("failed to release run lock", "error", err)
		}
	}, nil
}

func logStatsPeriodically(ctx context.Context, rt *runtime, app *appContext) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				snap := rt.controller.Stats().Snapshot()
				app.logger.Info("progress",
					"state", rt.controller.State(),
					"processed", snap.Processed,
					"in_flight", snap.InFlight,
					"per_minute", fmt.Sprintf("%.1f", snap.PerMinute))
			}
		}
	}()
	return func() { close(done) }
}
