package main

import (
	"github.com/spf13/cobra"
)

// testRunLimit caps a validation run to a handful of videos.
const testRunLimit = 10

func newTestCommand(app *appContext) *cobra.Command {
	var maxVideos int

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Validate the setup on a small sample without touching the main checkpoint",
		Long: "Processes up to 10 videos using a separate progress checkpoint, " +
			"so a later full run starts from scratch. Output rows still go to the main table.",
		RunE: func(cmd *cobra.Command, args []string) error {
			// A fresh sample each time: the test checkpoint never resumes.
			return executeRun(cmd.Context(), app, app.cfg.TestProgressFile(), maxVideos, false)
		},
	}

	cmd.Flags().IntVar(&maxVideos, "max-videos", testRunLimit, "How many videos to sample")
	return cmd
}
