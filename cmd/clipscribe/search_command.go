package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clipscribe/clipscribe/internal/embeddings"
	"github.com/clipscribe/clipscribe/internal/storage"
)

func newSearchCommand(app *appContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find videos whose extracted content matches the query",
		Long:  "Searches the PostgreSQL sink by embedding similarity. Requires postgres.enabled.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.cfg
			if !cfg.Postgres.Enabled {
				return errors.New("search requires postgres.enabled in the configuration")
			}

			embedder := embeddings.NewService(
				embeddings.OllamaEmbedder(cfg.OCR.OllamaBaseURL, cfg.OCR.OllamaPort, cfg.Postgres.EmbeddingModel),
				1,
			)
			sink, err := storage.NewPostgresSink(cmd.Context(), postgresConfig(app), embedder, app.logger)
			if err != nil {
				return fmt.Errorf("connect to postgres: %w", err)
			}
			defer sink.Close()

			results, err := sink.SearchSimilar(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fprintln(cmd, "no matches")
				return nil
			}

			rows := make([][]string, 0, len(results))
			for _, r := range results {
				text := r.OnScreenText
				if len(text) > 60 {
					text = text[:60] + "..."
				}
				rows = append(rows, []string{r.VideoID, fmt.Sprintf("%.3f", r.Similarity), text})
			}
			fprintln(cmd, renderTable(
				[]string{"Video", "Similarity", "On-screen text"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of results")
	return cmd
}
