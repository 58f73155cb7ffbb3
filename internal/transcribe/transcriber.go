// Package transcribe runs a pluggable speech-to-text engine over a video's
// audio track.
package transcribe

import (
	"context"
	"fmt"
)

// Segment is one recognized span of speech.
type Segment struct {
	// Start and End are offsets into the audio in seconds.
	Start float64
	End   float64
	Text  string
}

// Transcriber is the pluggable speech-to-text engine capability. A successful
// call with zero segments means no speech was detected, which is a valid
// outcome, not an error.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) ([]Segment, error)
}

// TranscriptionError means the engine failed after its retry. The video is
// marked partial, never failed: absence of speech and engine failure are
// distinct outcomes.
type TranscriptionError struct {
	Path string
	Err  error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcribe %s: %v", e.Path, e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }
