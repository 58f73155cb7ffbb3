package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/clipscribe/clipscribe/internal/media"
	"github.com/clipscribe/clipscribe/internal/merge"
)

// CSVSink appends records to the output table on disk. A single mutex
// serializes writers; the file is opened, appended, and closed per record so
// every row is durable the moment Append returns. Appends are idempotent per
// video id: ids already present in the table on open, or written through this
// sink, are silently skipped. A crash between the row write and the
// checkpoint update can therefore only replay a video, never duplicate it.
type CSVSink struct {
	path string
	mu   sync.Mutex
	seen map[string]bool
}

// NewCSVSink returns a sink for the table at path, creating parent
// directories as needed and indexing the video ids already written.
func NewCSVSink(path string) (*CSVSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &StorageError{Op: "create output directory", Err: err}
	}
	summary, err := Summarize(path)
	if err != nil {
		return nil, &StorageError{Op: "index output table", Err: err}
	}
	seen := make(map[string]bool, len(summary.IDs))
	for id := range summary.IDs {
		seen[id] = true
	}
	return &CSVSink{path: path, seen: seen}, nil
}

// Append writes one row, emitting the header first if the file is new. A
// record whose video id is already in the table is dropped.
func (s *CSVSink) Append(ctx context.Context, record merge.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seen[record.VideoID] {
		return nil
	}

	writeHeader := false
	if info, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) || (err == nil && info.Size() == 0) {
		writeHeader = true
	}

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return &StorageError{Op: "open output table", Err: err}
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if writeHeader {
		if err := writer.Write(merge.Columns()); err != nil {
			return &StorageError{Op: "write header", Err: err}
		}
	}
	if err := writer.Write(record.Fields()); err != nil {
		return &StorageError{Op: "write row", Err: err}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return &StorageError{Op: "flush row", Err: err}
	}
	if err := file.Sync(); err != nil {
		return &StorageError{Op: "sync output table", Err: err}
	}
	s.seen[record.VideoID] = true
	return nil
}

func (s *CSVSink) Close() error { return nil }

// issueLimit bounds how many problem rows a summary retains.
const issueLimit = 50

// Issue is one partial or failed row from the output table.
type Issue struct {
	VideoID string
	Status  media.Status
	Notes   string
}

// Summary aggregates the output table for status reporting.
type Summary struct {
	Rows     int
	ByStatus map[media.Status]int
	IDs      map[string]int
	// Issues holds the most recent partial/failed rows, table order.
	Issues []Issue
}

// Summarize reads the table at path and counts rows per status and per video
// id. A missing file yields an empty summary.
func Summarize(path string) (Summary, error) {
	summary := Summary{
		ByStatus: make(map[media.Status]int),
		IDs:      make(map[string]int),
	}

	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return summary, nil
	}
	if err != nil {
		return summary, fmt.Errorf("open output table: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err == io.EOF {
		return summary, nil
	}
	if err != nil {
		return summary, fmt.Errorf("read output table header: %w", err)
	}

	idCol, statusCol, notesCol := -1, -1, -1
	for i, name := range header {
		switch name {
		case "video_id":
			idCol = i
		case "processing_status":
			statusCol = i
		case "error_notes":
			notesCol = i
		}
	}
	if idCol < 0 || statusCol < 0 {
		return summary, fmt.Errorf("output table missing required columns")
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return summary, fmt.Errorf("read output table: %w", err)
		}
		if len(row) <= statusCol || len(row) <= idCol {
			continue
		}
		summary.Rows++
		status := media.Status(row[statusCol])
		summary.ByStatus[status]++
		summary.IDs[row[idCol]]++

		if status == media.StatusPartial || status == media.StatusFailed {
			issue := Issue{VideoID: row[idCol], Status: status}
			if notesCol >= 0 && len(row) > notesCol {
				issue.Notes = row[notesCol]
			}
			summary.Issues = append(summary.Issues, issue)
			if len(summary.Issues) > issueLimit {
				summary.Issues = summary.Issues[len(summary.Issues)-issueLimit:]
			}
		}
	}
	return summary, nil
}
