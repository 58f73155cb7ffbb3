package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/clipscribe/clipscribe/internal/config"
)

// appContext carries the loaded configuration and logger into subcommands.
type appContext struct {
	configPath string
	logLevel   string
	videosDir  string
	outputDir  string

	cfg    config.Config
	logger *slog.Logger
}

// setup loads the config file and builds the logger. Called from
// PersistentPreRunE so every subcommand sees the same state.
func (app *appContext) setup() error {
	cfg, err := config.Load(app.configPath)
	if err != nil {
		return err
	}
	if app.videosDir != "" {
		cfg.Paths.VideosDir = app.videosDir
	}
	if app.outputDir != "" {
		cfg.Paths.OutputDir = app.outputDir
	}
	app.cfg = cfg

	level := cfg.Logging.Level
	if app.logLevel != "" {
		level = app.logLevel
	}
	app.logger = slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      parseLevel(level),
			TimeFormat: "15:04:05",
		}),
	)
	slog.SetDefault(app.logger)
	return nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newRootCommand() *cobra.Command {
	app := &appContext{}

	rootCmd := &cobra.Command{
		Use:           "clipscribe",
		Short:         "Extract on-screen text and speech from videos into a searchable table",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "init" {
				return nil
			}
			return app.setup()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&app.configPath, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&app.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&app.videosDir, "videos-dir", "", "Override the input videos directory")
	rootCmd.PersistentFlags().StringVar(&app.outputDir, "output-dir", "", "Override the output directory")

	rootCmd.AddCommand(newRunCommand(app))
	rootCmd.AddCommand(newTestCommand(app))
	rootCmd.AddCommand(newStatusCommand(app))
	rootCmd.AddCommand(newWatchCommand(app))
	rootCmd.AddCommand(newSearchCommand(app))
	rootCmd.AddCommand(newConfigCommand(app))

	return rootCmd
}

func fprintln(cmd *cobra.Command, args ...any) {
	fmt.Fprintln(cmd.OutOrStdout(), args...)
}
