package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/clipscribe/clipscribe/internal/media"
	"github.com/clipscribe/clipscribe/internal/progress"
	"github.com/clipscribe/clipscribe/internal/storage"
)

func newStatusCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show checkpoint and output table state",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := progress.Open(app.cfg.ProgressFile(), app.logger)
			if err != nil {
				return fmt.Errorf("open progress checkpoint: %w", err)
			}

			summary, err := storage.Summarize(app.cfg.OutputCSV())
			if err != nil {
				return err
			}

			catalog := media.NewCatalog(app.cfg.Paths.VideosDir, store)
			total, pending, err := catalog.Counts()
			if err != nil {
				return fmt.Errorf("scan videos directory: %w", err)
			}

			rows := [][]string{
				{"Videos found", strconv.Itoa(total)},
				{"Pending", strconv.Itoa(pending)},
				{"Checkpointed", strconv.Itoa(store.Count())},
				{"Output rows", strconv.Itoa(summary.Rows)},
				{"Succeeded", strconv.Itoa(summary.ByStatus[media.StatusSuccess])},
				{"Partial", strconv.Itoa(summary.ByStatus[media.StatusPartial])},
				{"Failed", strconv.Itoa(summary.ByStatus[media.StatusFailed])},
				{"Batch", store.BatchID()},
			}
			if !store.LastWrite().IsZero() {
				rows = append(rows, []string{"Last checkpoint write", store.LastWrite().Local().Format(time.RFC1123)})
			}
			if eta := estimateRemaining(store, pending); eta > 0 {
				rows = append(rows, []string{"Estimated remaining", eta.Round(time.Second).String()})
			}

			fprintln(cmd, renderTable(
				[]string{"Metric", "Value"},
				rows,
				[]columnAlignment{alignLeft, alignRight},
			))

			if len(summary.Issues) > 0 {
				issueRows := make([][]string, 0, len(summary.Issues))
				for _, issue := range summary.Issues {
					issueRows = append(issueRows, []string{issue.VideoID, string(issue.Status), issue.Notes})
				}
				fprintln(cmd, renderTable(
					[]string{"Video", "Status", "Notes"},
					issueRows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft},
				))
			}
			if duplicates := duplicateIDs(summary); len(duplicates) > 0 {
				fprintln(cmd, "warning: duplicate rows for video ids:", duplicates)
			}
			return nil
		},
	}
}

// estimateRemaining projects the pending work from the batch's average pace.
// Zero when the batch has not completed anything yet.
func estimateRemaining(store *progress.Store, pending int) time.Duration {
	completed := store.Count()
	if completed == 0 || pending <= 0 || store.LastWrite().IsZero() {
		return 0
	}
	elapsed := store.LastWrite().Sub(store.StartedAt())
	if elapsed <= 0 {
		return 0
	}
	return elapsed / time.Duration(completed) * time.Duration(pending)
}

func duplicateIDs(summary storage.Summary) []string {
	var ids []string
	for id, n := range summary.IDs {
		if n > 1 {
			ids = append(ids, id)
		}
	}
	return ids
}
