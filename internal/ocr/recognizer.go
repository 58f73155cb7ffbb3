// Package ocr runs a pluggable text-recognition engine over sampled frames
// and reduces the detections to a deduplicated ordered sequence.
package ocr

import (
	"context"
	"fmt"
	"strings"
)

// FrameText is the raw engine output for one frame.
type FrameText struct {
	Text string
	// Confidence is the engine's confidence in percent (0-100).
	Confidence float64
}

// Recognizer is the pluggable image-to-text engine capability.
type Recognizer interface {
	RecognizeFrame(ctx context.Context, imagePath string) (FrameText, error)
}

// RecognitionError means the engine failed. A single frame's error never
// fails the video; an error covering the whole stage marks it partial.
type RecognitionError struct {
	Frame string
	Err   error
}

func (e *RecognitionError) Error() string {
	if e.Frame != "" {
		return fmt.Sprintf("recognize %s: %v", e.Frame, e.Err)
	}
	return fmt.Sprintf("recognition: %v", e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// cleanText collapses whitespace and drops one-character OCR artifacts,
// keeping "i", "a", and digits.
func cleanText(text string) string {
	words := strings.Fields(text)
	kept := words[:0]
	for _, word := range words {
		if len(word) >= 2 || word == "i" || word == "I" || word == "a" || word == "A" || isDigit(word) {
			kept = append(kept, word)
		}
	}
	return strings.Join(kept, " ")
}

func isDigit(s string) bool {
	return len(s) == 1 && s[0] >= '0' && s[0] <= '9'
}
