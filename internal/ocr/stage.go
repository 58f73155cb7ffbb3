package ocr

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/clipscribe/clipscribe/internal/sampler"
)

// Detection is one surviving piece of recognized text.
type Detection struct {
	// Offset is the frame timestamp in seconds.
	Offset     float64
	Text       string
	Confidence float64
}

// Result aggregates the stage output for one video.
type Result struct {
	Detections    []Detection
	AvgConfidence float64
	FramesTotal   int
	FrameErrors   int
	// Err is set only when the engine failed on every frame, meaning the
	// stage as a whole produced nothing usable.
	Err error
}

// Stage filters engine output by confidence and deduplicates consecutive
// near-identical detections.
type Stage struct {
	recognizer          Recognizer
	confidenceThreshold float64
	similarityThreshold float64
	logger              *slog.Logger
}

// NewStage wires a recognizer with the filter thresholds.
func NewStage(recognizer Recognizer, confidenceThreshold, similarityThreshold float64, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stage{
		recognizer:          recognizer,
		confidenceThreshold: confidenceThreshold,
		similarityThreshold: similarityThreshold,
		logger:              logger,
	}
}

// Recognize runs the engine over each frame in order. An engine error on one
// frame leaves that frame's detection empty and is counted, never failing the
// video.
func (s *Stage) Recognize(ctx context.Context, frames []sampler.Frame) Result {
	result := Result{FramesTotal: len(frames)}
	var confSum float64
	var lastKept string

	for _, frame := range frames {
		frameText, err := s.recognizer.RecognizeFrame(ctx, frame.Path)
		if err != nil {
			result.FrameErrors++
			s.logger.Debug("frame recognition failed",
				"video", frame.VideoID, "frame", frame.Path, "error", err)
			continue
		}

		text := strings.TrimSpace(frameText.Text)
		if text == "" || frameText.Confidence < s.confidenceThreshold {
			continue
		}

		// The same overlay usually spans adjacent frames; keep the first
		// occurrence and drop near-identical consecutive repeats.
		if lastKept != "" && similarity(strings.ToLower(text), strings.ToLower(lastKept)) >= s.similarityThreshold {
			continue
		}

		result.Detections = append(result.Detections, Detection{
			Offset:     frame.Offset,
			Text:       text,
			Confidence: frameText.Confidence,
		})
		confSum += frameText.Confidence
		lastKept = text
	}

	if len(result.Detections) > 0 {
		result.AvgConfidence = confSum / float64(len(result.Detections))
	}
	if result.FramesTotal > 0 && result.FrameErrors == result.FramesTotal {
		result.Err = &RecognitionError{Err: errAllFramesFailed}
	}
	return result
}

var errAllFramesFailed = errors.New("engine failed on every frame")

// JoinedText returns the surviving detections as a semicolon-joined sequence
// in temporal order.
func (r Result) JoinedText() string {
	parts := make([]string, 0, len(r.Detections))
	for _, d := range r.Detections {
		parts = append(parts, d.Text)
	}
	return strings.Join(parts, "; ")
}
