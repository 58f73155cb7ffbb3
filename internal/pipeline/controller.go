// Package pipeline drives videos through sampling, text recognition and
// transcription, fanning items out to a bounded worker pool and recording
// every outcome exactly once.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/clipscribe/clipscribe/internal/media"
	"github.com/clipscribe/clipscribe/internal/merge"
	"github.com/clipscribe/clipscribe/internal/ocr"
	"github.com/clipscribe/clipscribe/internal/sampler"
	"github.com/clipscribe/clipscribe/internal/storage"
	"github.com/clipscribe/clipscribe/internal/transcribe"
)

// State tracks where the controller is in a run.
type State int32

const (
	StateIdle State = iota
	StateDiscovering
	StateDispatching
	StateDraining
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDiscovering:
		return "discovering"
	case StateDispatching:
		return "dispatching"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// FrameSampler produces still frames and metadata for one video.
type FrameSampler interface {
	Sample(ctx context.Context, item media.Item) ([]sampler.Frame, sampler.Metadata, error)
	Cleanup(videoID string)
}

// TextStage recognizes on-screen text across a video's frames.
type TextStage interface {
	Recognize(ctx context.Context, frames []sampler.Frame) ocr.Result
}

// SpeechStage transcribes a video's audio track.
type SpeechStage interface {
	Transcribe(ctx context.Context, item media.Item) transcribe.Result
}

// Checkpoint records which videos have reached a terminal status.
type Checkpoint interface {
	MarkComplete(id string, status media.Status) error
	IsComplete(id string) bool
}

// Lister enumerates videos that still need processing.
type Lister interface {
	ListPending(max int) ([]media.Item, error)
}

// Controller owns one processing run.
type Controller struct {
	catalog    Lister
	checkpoint Checkpoint
	sampler    FrameSampler
	text       TextStage
	speech     SpeechStage
	sink       storage.Sink
	workers    int
	batchSize  int
	logger     *slog.Logger

	state atomic.Int32
	stats *Stats
}

// Options configures a Controller.
type Options struct {
	Catalog    Lister
	Checkpoint Checkpoint
	Sampler    FrameSampler
	Text       TextStage
	Speech     SpeechStage
	Sink       storage.Sink
	Workers    int
	BatchSize  int
	Logger     *slog.Logger
}

func New(opts Options) *Controller {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Controller{
		catalog:    opts.Catalog,
		checkpoint: opts.Checkpoint,
		sampler:    opts.Sampler,
		text:       opts.Text,
		speech:     opts.Speech,
		sink:       opts.Sink,
		workers:    opts.Workers,
		batchSize:  opts.BatchSize,
		logger:     opts.Logger,
		stats:      NewStats(),
	}
}

// State returns the controller's current phase.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Stats returns the live counters for this run.
func (c *Controller) Stats() *Stats {
	return c.stats
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
}

// Run processes pending videos in batches until none remain, the context is
// cancelled, or the output sink fails. Cancellation drains: items already
// handed to a worker finish their full stage chain and are recorded before
// the run stops, so no video is left half-written.
func (c *Controller) Run(ctx context.Context) error {
	defer c.setState(StateDone)

	for {
		c.setState(StateDiscovering)
		items, err := c.catalog.ListPending(c.batchSize)
		if err != nil {
			return fmt.Errorf("list pending videos: %w", err)
		}
		if len(items) == 0 {
			c.logger.Info("no pending videos", "processed", c.stats.Snapshot().Processed)
			return nil
		}
		c.logger.Info("dispatching batch", "videos", len(items), "workers", c.workers)

		before := c.stats.Snapshot().Processed
		if err := c.runBatch(ctx, items); err != nil {
			return err
		}
		if ctx.Err() != nil {
			c.logger.Info("stop requested, run drained cleanly",
				"processed", c.stats.Snapshot().Processed)
			return ctx.Err()
		}
		// A batch that recorded nothing will list the same videos again;
		// bail out rather than spin on an environment problem.
		if c.stats.Snapshot().Processed == before {
			return fmt.Errorf("no progress on %d pending videos, stopping", len(items))
		}
	}
}

func (c *Controller) runBatch(ctx context.Context, items []media.Item) error {
	work := make(chan media.Item)
	fatal := make(chan error, c.workers)

	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range work {
				// The stop signal must never interrupt a video mid-stage;
				// workers see cancellation only through the dispatch loop
				// going quiet.
				if err := c.ProcessItem(context.WithoutCancel(ctx), item); err != nil {
					var storageErr *storage.StorageError
					if errors.As(err, &storageErr) {
						fatal <- err
						return
					}
					c.logger.Error("video processing failed", "video", item.ID, "error", err)
				}
			}
		}()
	}

	c.setState(StateDispatching)
	var fatalErr error
dispatch:
	for _, item := range items {
		select {
		case <-ctx.Done():
			break dispatch
		case fatalErr = <-fatal:
			break dispatch
		case work <- item:
		}
	}
	close(work)

	c.setState(StateDraining)
	wg.Wait()

	if fatalErr == nil {
		select {
		case fatalErr = <-fatal:
		default:
		}
	}
	if fatalErr != nil {
		return fmt.Errorf("output sink failed, halting run: %w", fatalErr)
	}
	return nil
}

// ProcessItem runs one video through the full stage chain and records the
// outcome. Safe to call concurrently; already-completed videos are skipped.
// A non-nil return means no outcome was recorded: a storage failure or an
// environment problem. Per-video extraction failures are absorbed into the
// record's status instead.
func (c *Controller) ProcessItem(ctx context.Context, item media.Item) error {
	if c.checkpoint.IsComplete(item.ID) {
		c.logger.Debug("already processed, skipping", "video", item.ID)
		return nil
	}
	c.stats.markStarted()

	var (
		frames     []sampler.Frame
		meta       sampler.Metadata
		ocrRes     ocr.Result
		speechRes  transcribe.Result
		samplerErr error
	)
	frames, meta, samplerErr = c.sampler.Sample(ctx, item)
	if samplerErr != nil {
		// Only a decode failure is the video's own fault. Anything else is
		// an environment problem (scratch disk, permissions): leave the
		// video pending instead of branding it failed forever.
		var decodeErr *sampler.DecodeError
		if !errors.As(samplerErr, &decodeErr) {
			c.stats.markDropped()
			return fmt.Errorf("sample %s: %w", item.ID, samplerErr)
		}
		c.logger.Warn("video decode failed", "video", item.ID, "error", samplerErr)
	} else {
		defer c.sampler.Cleanup(item.ID)
		ocrRes = c.text.Recognize(ctx, frames)
		speechRes = c.speech.Transcribe(ctx, item)
	}

	record := merge.Build(item, meta, len(frames), samplerErr, ocrRes, speechRes)
	if err := c.sink.Append(ctx, record); err != nil {
		c.stats.markDropped()
		return err
	}
	// Checkpoint strictly after the row lands: a crash between the two can
	// only replay a video, and the sinks tolerate replays.
	if err := c.checkpoint.MarkComplete(item.ID, record.ProcessingStatus); err != nil {
		c.stats.markDropped()
		return &storage.StorageError{Op: "write checkpoint", Err: err}
	}

	c.stats.markFinished(item.ID, record.ProcessingStatus, record.ErrorNotes)
	c.logger.Info("video processed",
		"video", item.ID,
		"status", record.ProcessingStatus,
		"frames", record.FrameCount,
		"duration_s", record.DurationSeconds)
	return nil
}
