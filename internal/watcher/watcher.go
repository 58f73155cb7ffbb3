// Package watcher feeds newly arriving videos into the pipeline as they land
// in the input directory.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/clipscribe/clipscribe/internal/media"
)

// settleDelay gives the writer time to finish the file before we decode it.
const settleDelay = 500 * time.Millisecond

// Handler processes one newly created video file.
type Handler func(ctx context.Context, item media.Item) error

// Watcher monitors a directory and hands new video files to the handler,
// bounded by a concurrency limit.
type Watcher struct {
	inputDir  string
	handler   Handler
	logger    *slog.Logger
	fsw       *fsnotify.Watcher
	semaphore chan struct{}
	wg        sync.WaitGroup

	mu       sync.Mutex
	inFlight map[string]bool
}

func New(inputDir string, handler Handler, maxConcurrent int, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(inputDir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", inputDir, err)
	}
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		inputDir:  inputDir,
		handler:   handler,
		logger:    logger,
		fsw:       fsw,
		semaphore: make(chan struct{}, maxConcurrent),
		inFlight:  make(map[string]bool),
	}, nil
}

// Start blocks, dispatching create events until the context is cancelled.
// Cancellation waits for in-flight handlers to finish.
func (w *Watcher) Start(ctx context.Context) error {
	w.logger.Info("watching for new videos",
		"dir", w.inputDir, "max_concurrent", cap(w.semaphore))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("stop requested, waiting for in-flight videos")
			w.wg.Wait()
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			if !media.IsVideoFile(event.Name) {
				w.logger.Debug("ignoring non-video file", "path", event.Name)
				continue
			}
			w.logger.Info("new video detected", "path", event.Name)
			if err := w.dispatch(ctx, event.Name); err != nil {
				return err
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) dispatch(ctx context.Context, path string) error {
	// Editors and copy tools can fire several create events for one file;
	// only the first may start a handler.
	w.mu.Lock()
	if w.inFlight[path] {
		w.mu.Unlock()
		w.logger.Debug("already handling, skipping duplicate event", "path", path)
		return nil
	}
	w.inFlight[path] = true
	w.mu.Unlock()

	release := func() {
		w.mu.Lock()
		delete(w.inFlight, path)
		w.mu.Unlock()
	}

	select {
	case w.semaphore <- struct{}{}:
	case <-ctx.Done():
		release()
		return ctx.Err()
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() { <-w.semaphore }()
		defer release()

		// The file may still be mid-copy when the create event fires.
		time.Sleep(settleDelay)

		item := media.ItemFromPath(path)
		if err := w.handler(ctx, item); err != nil {
			w.logger.Error("failed to process new video", "video", item.ID, "error", err)
		}
	}()
	return nil
}

// Close stops delivering filesystem events.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
