// Package progress persists which videos have reached a terminal state so an
// interrupted run can resume exactly where it stopped.
package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clipscribe/clipscribe/internal/media"
)

// checkpoint is the on-disk shape of the progress file.
type checkpoint struct {
	BatchID   string            `json:"batch_id"`
	StartedAt time.Time         `json:"started_at"`
	Completed map[string]string `json:"completed"`
	LastWrite time.Time         `json:"last_write"`
}

// Store is the durable record of completed videos. Every MarkComplete is
// written through to disk atomically before it returns.
type Store struct {
	path   string
	logger *slog.Logger

	mu sync.Mutex
	cp checkpoint
}

// Open loads the checkpoint at path, creating a fresh one when the file does
// not exist. A corrupted checkpoint is treated as empty with a warning:
// reprocessing is safe because emission is idempotent per video.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{path: path, logger: logger}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.cp = newCheckpoint()
	case err != nil:
		return nil, fmt.Errorf("read progress file %s: %w", path, err)
	default:
		var cp checkpoint
		if jsonErr := json.Unmarshal(data, &cp); jsonErr != nil || cp.Completed == nil {
			logger.Warn("progress checkpoint corrupted, starting empty",
				"path", path, "error", jsonErr)
			s.cp = newCheckpoint()
		} else {
			s.cp = cp
		}
	}
	return s, nil
}

func newCheckpoint() checkpoint {
	return checkpoint{
		BatchID:   uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Completed: make(map[string]string),
	}
}

// MarkComplete records a terminal status for the video and persists the
// checkpoint before returning. A crash immediately after loses nothing; a
// crash during the write loses only this update, never prior ones.
func (s *Store) MarkComplete(id string, status media.Status) error {
	if !status.Terminal() {
		return fmt.Errorf("status %q is not terminal", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cp.Completed[id] = string(status)
	s.cp.LastWrite = time.Now().UTC()
	return s.save()
}

// IsComplete reports whether the video already reached a terminal state.
func (s *Store) IsComplete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.cp.Completed[id]
	return ok
}

// Completed returns a copy of the completed set.
func (s *Store) Completed() map[string]media.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]media.Status, len(s.cp.Completed))
	for id, st := range s.cp.Completed {
		out[id] = media.Status(st)
	}
	return out
}

// Count returns the number of completed videos.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cp.Completed)
}

// BatchID identifies the processing session that created this checkpoint.
func (s *Store) BatchID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cp.BatchID
}

// StartedAt returns when this batch began.
func (s *Store) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cp.StartedAt
}

// LastWrite returns the time of the most recent persisted update.
func (s *Store) LastWrite() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cp.LastWrite
}

// Reset discards all recorded progress, used when the operator forces full
// reprocessing.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cp = newCheckpoint()
	s.cp.LastWrite = time.Now().UTC()
	return s.save()
}

// save writes the checkpoint via a temp file and rename so a crash mid-write
// never corrupts the previous valid checkpoint. Caller holds s.mu.
func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create progress directory: %w", err)
	}
	data, err := json.MarshalIndent(s.cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode progress checkpoint: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".progress-*.json")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace progress checkpoint: %w", err)
	}
	return nil
}
