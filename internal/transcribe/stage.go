package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/clipscribe/clipscribe/internal/execx"
	"github.com/clipscribe/clipscribe/internal/media"
)

// minAudioBytes guards against extraction producing a header-only file for
// videos with no real audio payload.
const minAudioBytes = 1000

// Result aggregates the stage output for one video.
type Result struct {
	Segments []Segment
	// Text is the concatenation of segment texts in order.
	Text string
	// Confidence is 0.6 when any speech was recognized, 0 otherwise. The
	// engine exposes no usable aggregate confidence.
	Confidence float64
	// Err is set when the engine failed twice or the audio could not be
	// extracted; the video is marked partial.
	Err error
}

// Stage extracts the audio track and runs the transcriber, retrying exactly
// once on engine failure.
type Stage struct {
	transcriber Transcriber
	runner      execx.Runner
	workDir     string
	logger      *slog.Logger
}

// NewStage returns a transcription stage writing scratch audio under workDir.
func NewStage(transcriber Transcriber, runner execx.Runner, workDir string, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stage{
		transcriber: transcriber,
		runner:      runner,
		workDir:     workDir,
		logger:      logger,
	}
}

// Transcribe runs the full audio path for one video. An engine failure is
// retried once; a second failure yields an empty transcript and a stage
// error. Zero segments from a successful call is a valid empty transcript.
func (s *Stage) Transcribe(ctx context.Context, item media.Item) Result {
	audioPath, err := s.extractAudio(ctx, item)
	if err != nil {
		return Result{Err: &TranscriptionError{Path: item.Path, Err: err}}
	}
	defer os.Remove(audioPath)

	segments, err := s.transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		s.logger.Warn("transcription failed, retrying once", "video", item.ID, "error", err)
		segments, err = s.transcriber.Transcribe(ctx, audioPath)
	}
	if err != nil {
		return Result{Err: &TranscriptionError{Path: item.Path, Err: err}}
	}

	result := Result{Segments: segments}
	parts := make([]string, 0, len(segments))
	for _, segment := range segments {
		parts = append(parts, segment.Text)
	}
	result.Text = strings.Join(parts, " ")
	if result.Text != "" {
		result.Confidence = 0.6
	}
	return result
}

// extractAudio converts the video's audio track to 16 kHz mono PCM WAV, the
// format whisper expects.
func (s *Stage) extractAudio(ctx context.Context, item media.Item) (string, error) {
	if err := os.MkdirAll(s.workDir, 0o755); err != nil {
		return "", fmt.Errorf("create audio directory: %w", err)
	}
	audioPath := filepath.Join(s.workDir, item.ID+".wav")

	_, err := s.runner.Run(ctx, "ffmpeg",
		"-i", item.Path,
		"-vn",
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		"-y",
		audioPath,
	)
	if err != nil {
		os.Remove(audioPath)
		return "", fmt.Errorf("extract audio: %w", err)
	}

	info, err := os.Stat(audioPath)
	if err != nil {
		return "", fmt.Errorf("stat extracted audio: %w", err)
	}
	if info.Size() < minAudioBytes {
		os.Remove(audioPath)
		return "", fmt.Errorf("extracted audio too small (%d bytes)", info.Size())
	}
	return audioPath, nil
}
