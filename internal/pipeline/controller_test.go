package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/clipscribe/clipscribe/internal/media"
	"github.com/clipscribe/clipscribe/internal/merge"
	"github.com/clipscribe/clipscribe/internal/ocr"
	"github.com/clipscribe/clipscribe/internal/sampler"
	"github.com/clipscribe/clipscribe/internal/storage"
	"github.com/clipscribe/clipscribe/internal/transcribe"
)

var testLogger = slog.New(slog.DiscardHandler)

type fakeSampler struct {
	mu         sync.Mutex
	failIDs    map[string]bool
	envFailIDs map[string]bool
	latency    time.Duration
	calls      []string
}

func (f *fakeSampler) Sample(ctx context.Context, item media.Item) ([]sampler.Frame, sampler.Metadata, error) {
	f.mu.Lock()
	f.calls = append(f.calls, item.ID)
	f.mu.Unlock()
	if f.latency > 0 {
		time.Sleep(f.latency)
	}
	if f.envFailIDs[item.ID] {
		return nil, sampler.Metadata{}, fmt.Errorf("create frame directory: %w", errors.New("read-only file system"))
	}
	if f.failIDs[item.ID] {
		return nil, sampler.Metadata{}, &sampler.DecodeError{Path: item.Path, Err: errors.New("moov atom not found")}
	}
	frames := []sampler.Frame{
		{VideoID: item.ID, Offset: 0, Path: "f1.jpg"},
		{VideoID: item.ID, Offset: 2.5, Path: "f2.jpg"},
	}
	return frames, sampler.Metadata{Duration: 5}, nil
}

func (f *fakeSampler) Cleanup(videoID string) {}

type fakeText struct{}

func (fakeText) Recognize(ctx context.Context, frames []sampler.Frame) ocr.Result {
	return ocr.Result{
		Detections:    []ocr.Detection{{Offset: 0, Text: "HELLO", Confidence: 90}},
		AvgConfidence: 90,
		FramesTotal:   len(frames),
	}
}

type fakeSpeech struct{}

func (fakeSpeech) Transcribe(ctx context.Context, item media.Item) transcribe.Result {
	return transcribe.Result{
		Segments:   []transcribe.Segment{{Start: 0, End: 2, Text: "hello there"}},
		Text:       "hello there",
		Confidence: 0.6,
	}
}

type memCheckpoint struct {
	mu   sync.Mutex
	done map[string]media.Status
	err  error
}

func newMemCheckpoint() *memCheckpoint {
	return &memCheckpoint{done: make(map[string]media.Status)}
}

func (m *memCheckpoint) MarkComplete(id string, status media.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.done[id] = status
	return nil
}

func (m *memCheckpoint) IsComplete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.done[id]
	return ok
}

// memCatalog filters against the checkpoint the way the real catalog does,
// so repeated Run passes converge.
type memCatalog struct {
	items      []media.Item
	checkpoint *memCheckpoint
}

func (m *memCatalog) ListPending(max int) ([]media.Item, error) {
	var pending []media.Item
	for _, item := range m.items {
		if m.checkpoint.IsComplete(item.ID) {
			continue
		}
		pending = append(pending, item)
		if max > 0 && len(pending) >= max {
			break
		}
	}
	return pending, nil
}

type memSink struct {
	mu     sync.Mutex
	rows   []merge.Record
	failOn string
}

func (m *memSink) Append(ctx context.Context, record merge.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != "" && record.VideoID == m.failOn {
		return &storage.StorageError{Op: "append row", Err: errors.New("disk full")}
	}
	m.rows = append(m.rows, record)
	return nil
}

func (m *memSink) Close() error { return nil }

func (m *memSink) byID() map[string]merge.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]merge.Record, len(m.rows))
	for _, r := range m.rows {
		out[r.VideoID] = r
	}
	return out
}

func makeItems(n int) []media.Item {
	items := make([]media.Item, n)
	for i := range items {
		id := fmt.Sprintf("%03d", i)
		items[i] = media.Item{ID: id, Path: "/videos/" + id + ".mp4", Filename: id + ".mp4"}
	}
	return items
}

func newTestController(items []media.Item, samp *fakeSampler, checkpoint *memCheckpoint, sink *memSink, workers int) *Controller {
	return New(Options{
		Catalog:    &memCatalog{items: items, checkpoint: checkpoint},
		Checkpoint: checkpoint,
		Sampler:    samp,
		Text:       fakeText{},
		Speech:     fakeSpeech{},
		Sink:       sink,
		Workers:    workers,
		BatchSize:  100,
		Logger:     testLogger,
	})
}

func TestRunIsolatesFailedVideos(t *testing.T) {
	items := makeItems(10)
	samp := &fakeSampler{failIDs: map[string]bool{"002": true, "007": true}}
	checkpoint := newMemCheckpoint()
	sink := &memSink{}

	c := newTestController(items, samp, checkpoint, sink, 3)
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rows := sink.byID()
	if len(rows) != 10 {
		t.Fatalf("got %d rows, want 10", len(rows))
	}
	for _, id := range []string{"002", "007"} {
		if rows[id].ProcessingStatus != media.StatusFailed {
			t.Errorf("video %s status = %s, want failed", id, rows[id].ProcessingStatus)
		}
		if rows[id].ErrorNotes == "" {
			t.Errorf("video %s has no error notes", id)
		}
	}
	if rows["000"].ProcessingStatus != media.StatusSuccess {
		t.Errorf("video 000 status = %s, want success", rows["000"].ProcessingStatus)
	}

	snap := c.Stats().Snapshot()
	if snap.Processed != 10 || snap.Failed != 2 || snap.Succeeded != 8 {
		t.Errorf("stats = %d processed / %d failed / %d succeeded", snap.Processed, snap.Failed, snap.Succeeded)
	}
	if len(snap.RecentErrors) != 2 {
		t.Errorf("got %d recent errors, want 2", len(snap.RecentErrors))
	}
}

func TestRunSecondPassIsNoOp(t *testing.T) {
	items := makeItems(5)
	samp := &fakeSampler{}
	checkpoint := newMemCheckpoint()
	sink := &memSink{}

	c := newTestController(items, samp, checkpoint, sink, 2)
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if len(sink.byID()) != 5 {
		t.Fatalf("got %d rows after first run, want 5", len(sink.rows))
	}

	c2 := newTestController(items, samp, checkpoint, sink, 2)
	if err := c2.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(sink.rows) != 5 {
		t.Errorf("second run appended rows: got %d, want 5", len(sink.rows))
	}
}

func TestRunResumesMidBatch(t *testing.T) {
	items := makeItems(6)
	checkpoint := newMemCheckpoint()
	// Simulate a prior run that completed the first three.
	for _, id := range []string{"000", "001", "002"} {
		if err := checkpoint.MarkComplete(id, media.StatusSuccess); err != nil {
			t.Fatal(err)
		}
	}
	samp := &fakeSampler{}
	sink := &memSink{}

	c := newTestController(items, samp, checkpoint, sink, 2)
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rows := sink.byID()
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	for _, id := range []string{"000", "001", "002"} {
		if _, ok := rows[id]; ok {
			t.Errorf("video %s reprocessed after resume", id)
		}
	}
}

func TestRunDispatchesInParallel(t *testing.T) {
	items := makeItems(8)
	samp := &fakeSampler{latency: 40 * time.Millisecond}
	checkpoint := newMemCheckpoint()
	sink := &memSink{}

	c := newTestController(items, samp, checkpoint, sink, 4)
	start := time.Now()
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	elapsed := time.Since(start)

	// 8 videos at 40ms each is 320ms serially; 4 workers should roughly
	// quarter that. Allow generous slack for scheduler noise.
	if elapsed > 250*time.Millisecond {
		t.Errorf("run took %v, expected parallel dispatch well under 250ms", elapsed)
	}
	if len(sink.byID()) != 8 {
		t.Errorf("got %d rows, want 8", len(sink.rows))
	}
}

func TestRunDrainsOnCancel(t *testing.T) {
	items := makeItems(20)
	samp := &fakeSampler{latency: 20 * time.Millisecond}
	checkpoint := newMemCheckpoint()
	sink := &memSink{}

	ctx, cancel := context.WithCancel(context.Background())
	c := newTestController(items, samp, checkpoint, sink, 2)

	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	err := c.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}

	// Every video that started must have been recorded, and none twice.
	rows := sink.byID()
	if len(rows) == len(items) {
		t.Errorf("cancellation did not stop dispatch: all %d videos processed", len(items))
	}
	if len(rows) != len(sink.rows) {
		t.Errorf("duplicate rows written: %d rows for %d videos", len(sink.rows), len(rows))
	}
	for id := range rows {
		if !checkpoint.IsComplete(id) {
			t.Errorf("video %s has a row but no checkpoint entry", id)
		}
	}
	if c.State() != StateDone {
		t.Errorf("state = %s, want done", c.State())
	}
}

func TestRunHaltsOnStorageError(t *testing.T) {
	items := makeItems(10)
	samp := &fakeSampler{}
	checkpoint := newMemCheckpoint()
	sink := &memSink{failOn: "003"}

	c := newTestController(items, samp, checkpoint, sink, 1)
	err := c.Run(context.Background())
	if err == nil {
		t.Fatal("Run succeeded despite sink failure")
	}
	var storageErr *storage.StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("error %v does not wrap StorageError", err)
	}
	if checkpoint.IsComplete("003") {
		t.Error("failed video was checkpointed")
	}
	if len(sink.byID()) >= len(items) {
		t.Error("run did not halt after sink failure")
	}
}

func TestRunHaltsOnCheckpointError(t *testing.T) {
	items := makeItems(4)
	samp := &fakeSampler{}
	checkpoint := newMemCheckpoint()
	checkpoint.err = errors.New("disk full")
	sink := &memSink{}

	c := newTestController(items, samp, checkpoint, sink, 1)
	err := c.Run(context.Background())
	var storageErr *storage.StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("error %v does not wrap StorageError", err)
	}
}

func TestProcessItemLeavesVideoPendingOnEnvironmentError(t *testing.T) {
	samp := &fakeSampler{envFailIDs: map[string]bool{"111": true}}
	checkpoint := newMemCheckpoint()
	sink := &memSink{}

	c := newTestController(nil, samp, checkpoint, sink, 1)
	item := media.Item{ID: "111", Path: "/videos/111.mp4", Filename: "111.mp4"}
	err := c.ProcessItem(context.Background(), item)
	if err == nil {
		t.Fatal("ProcessItem succeeded despite scratch directory failure")
	}
	var storageErr *storage.StorageError
	if errors.As(err, &storageErr) {
		t.Fatalf("environment error misclassified as storage error: %v", err)
	}
	if len(sink.rows) != 0 {
		t.Error("a row was written for an unprocessed video")
	}
	if checkpoint.IsComplete("111") {
		t.Error("unprocessed video was checkpointed")
	}
	snap := c.Stats().Snapshot()
	if snap.Processed != 0 || snap.InFlight != 0 {
		t.Errorf("stats = %d processed / %d in flight, want 0 / 0", snap.Processed, snap.InFlight)
	}
}

func TestRunStopsWhenBatchMakesNoProgress(t *testing.T) {
	items := makeItems(3)
	samp := &fakeSampler{envFailIDs: map[string]bool{"000": true, "001": true, "002": true}}
	checkpoint := newMemCheckpoint()
	sink := &memSink{}

	c := newTestController(items, samp, checkpoint, sink, 2)
	err := c.Run(context.Background())
	if err == nil {
		t.Fatal("Run succeeded despite every video failing to start")
	}
	// One attempt per video, not an endless relisting loop.
	if len(samp.calls) != 3 {
		t.Errorf("sampler called %d times, want 3", len(samp.calls))
	}
	if len(sink.rows) != 0 {
		t.Errorf("%d rows written, want 0", len(sink.rows))
	}
}

func TestProcessItemSkipsCompleted(t *testing.T) {
	samp := &fakeSampler{}
	checkpoint := newMemCheckpoint()
	if err := checkpoint.MarkComplete("111", media.StatusSuccess); err != nil {
		t.Fatal(err)
	}
	sink := &memSink{}

	c := newTestController(nil, samp, checkpoint, sink, 1)
	item := media.Item{ID: "111", Path: "/videos/111.mp4", Filename: "111.mp4"}
	if err := c.ProcessItem(context.Background(), item); err != nil {
		t.Fatalf("ProcessItem: %v", err)
	}
	if len(samp.calls) != 0 {
		t.Errorf("sampler called %d times for completed video", len(samp.calls))
	}
	if len(sink.rows) != 0 {
		t.Errorf("row written for completed video")
	}
}

func TestSnapshotETA(t *testing.T) {
	snap := Snapshot{Processed: 10, Elapsed: 100 * time.Second}
	if got := snap.ETA(5); got != 50*time.Second {
		t.Errorf("ETA = %v, want 50s", got)
	}
	if got := snap.ETA(0); got != 0 {
		t.Errorf("ETA with nothing pending = %v, want 0", got)
	}
	empty := Snapshot{}
	if got := empty.ETA(5); got != 0 {
		t.Errorf("ETA before first completion = %v, want 0", got)
	}
}
