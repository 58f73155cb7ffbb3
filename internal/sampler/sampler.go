// Package sampler decodes a video and emits evenly time-spaced still images
// for the text recognition stage.
package sampler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/clipscribe/clipscribe/internal/execx"
	"github.com/clipscribe/clipscribe/internal/media"
)

// DecodeError means the video could not be opened or its duration could not
// be determined. It is never retried: a corrupt file stays corrupt.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Frame is one sampled still image. Frames are ephemeral: they are owned by
// the worker processing the video and removed by Cleanup once the recognition
// stage finishes.
type Frame struct {
	VideoID string
	// Offset is the frame's position in the video, in seconds.
	Offset float64
	Path   string
}

// Metadata describes the probed video stream.
type Metadata struct {
	Duration float64
	Width    int
	Height   int
	FPS      float64
	Codec    string
}

// Sampler extracts frames at a fixed interval using ffmpeg.
type Sampler struct {
	workDir  string
	interval float64
	format   string
	runner   execx.Runner
	logger   *slog.Logger
}

// New returns a sampler writing frames under workDir/<video id>/.
func New(workDir string, interval float64, format string, runner execx.Runner, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{
		workDir:  workDir,
		interval: interval,
		format:   format,
		runner:   runner,
		logger:   logger,
	}
}

// Sample probes the video and extracts one frame per interval from 0 to its
// duration, guaranteeing at least one frame even for videos shorter than the
// interval.
func (s *Sampler) Sample(ctx context.Context, item media.Item) ([]Frame, Metadata, error) {
	if _, err := os.Stat(item.Path); err != nil {
		return nil, Metadata{}, &DecodeError{Path: item.Path, Err: err}
	}

	meta, err := s.Probe(ctx, item.Path)
	if err != nil {
		return nil, Metadata{}, &DecodeError{Path: item.Path, Err: err}
	}

	frameDir := filepath.Join(s.workDir, item.ID)
	if err := os.MkdirAll(frameDir, 0o755); err != nil {
		return nil, meta, fmt.Errorf("create frame directory %s: %w", frameDir, err)
	}

	s.logger.Debug("extracting frames",
		"video", item.ID, "duration", meta.Duration, "interval", s.interval)

	pattern := filepath.Join(frameDir, "frame_%03d."+s.format)
	_, err = s.runner.Run(ctx, "ffmpeg",
		"-i", item.Path,
		"-vf", fmt.Sprintf("fps=1/%g", s.interval),
		"-q:v", "2",
		"-y",
		pattern,
	)
	if err != nil {
		s.Cleanup(item.ID)
		return nil, meta, &DecodeError{Path: item.Path, Err: err}
	}

	frames, err := s.collectFrames(item.ID, frameDir)
	if err != nil {
		s.Cleanup(item.ID)
		return nil, meta, err
	}

	// Very short videos can slip through the fps filter with no output.
	if len(frames) == 0 {
		if err := s.grabFirstFrame(ctx, item.Path, frameDir); err != nil {
			s.Cleanup(item.ID)
			return nil, meta, &DecodeError{Path: item.Path, Err: err}
		}
		frames, err = s.collectFrames(item.ID, frameDir)
		if err != nil || len(frames) == 0 {
			s.Cleanup(item.ID)
			return nil, meta, &DecodeError{Path: item.Path, Err: fmt.Errorf("no frames extracted")}
		}
	}

	s.logger.Debug("frames extracted", "video", item.ID, "count", len(frames))
	return frames, meta, nil
}

func (s *Sampler) collectFrames(videoID, frameDir string) ([]Frame, error) {
	entries, err := os.ReadDir(frameDir)
	if err != nil {
		return nil, fmt.Errorf("read frame directory %s: %w", frameDir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(strings.ToLower(entry.Name()), "."+s.format) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	frames := make([]Frame, 0, len(names))
	for i, name := range names {
		frames = append(frames, Frame{
			VideoID: videoID,
			Offset:  float64(i) * s.interval,
			Path:    filepath.Join(frameDir, name),
		})
	}
	return frames, nil
}

func (s *Sampler) grabFirstFrame(ctx context.Context, videoPath, frameDir string) error {
	_, err := s.runner.Run(ctx, "ffmpeg",
		"-i", videoPath,
		"-frames:v", "1",
		"-q:v", "2",
		"-y",
		filepath.Join(frameDir, "frame_001."+s.format),
	)
	return err
}

// Cleanup removes the frame directory for a video to bound scratch disk use.
func (s *Sampler) Cleanup(videoID string) {
	dir := filepath.Join(s.workDir, videoID)
	if err := os.RemoveAll(dir); err != nil {
		s.logger.Warn("failed to clean up frames", "video", videoID, "error", err)
	}
}
