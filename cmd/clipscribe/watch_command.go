package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/clipscribe/clipscribe/internal/media"
	"github.com/clipscribe/clipscribe/internal/watcher"
)

func newWatchCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Process pending videos, then keep watching the directory for new ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			unlock, err := acquireRunLock(app)
			if err != nil {
				return err
			}
			defer unlock()

			rt, err := buildRuntime(ctx, app, app.cfg.ProgressFile(), 0)
			if err != nil {
				return err
			}
			defer rt.close()

			// Catch up on the backlog before switching to event-driven mode.
			if err := rt.controller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			if ctx.Err() != nil {
				return nil
			}

			handler := func(ctx context.Context, item media.Item) error {
				return rt.controller.ProcessItem(context.WithoutCancel(ctx), item)
			}
			w, err := watcher.New(app.cfg.Paths.VideosDir, handler, app.cfg.Pipeline.Workers, app.logger)
			if err != nil {
				return err
			}
			defer w.Close()

			if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
