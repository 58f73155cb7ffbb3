package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/clipscribe/clipscribe/internal/execx"
)

// Whisper transcribes audio by invoking the whisper.cpp CLI with JSON output.
type Whisper struct {
	binary    string
	modelPath string
	language  string
	threads   int
	runner    execx.Runner
}

// NewWhisper returns a whisper.cpp-backed transcriber.
func NewWhisper(binary, modelPath, language string, threads int, runner execx.Runner) *Whisper {
	if language == "" {
		language = "auto"
	}
	if threads <= 0 {
		threads = 4
	}
	return &Whisper{
		binary:    binary,
		modelPath: modelPath,
		language:  language,
		threads:   threads,
		runner:    runner,
	}
}

// whisperOutput is the subset of whisper.cpp's JSON output we read.
type whisperOutput struct {
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

// Transcribe runs whisper over a 16 kHz mono WAV file.
func (w *Whisper) Transcribe(ctx context.Context, audioPath string) ([]Segment, error) {
	outputPrefix := strings.TrimSuffix(audioPath, filepath.Ext(audioPath))
	jsonPath := outputPrefix + ".json"
	defer os.Remove(jsonPath)

	_, err := w.runner.Run(ctx, w.binary,
		"-m", w.modelPath,
		"-f", audioPath,
		"-oj",
		"-l", w.language,
		"-t", strconv.Itoa(w.threads),
		"--output-file", outputPrefix,
	)
	if err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("read whisper output: %w", err)
	}
	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse whisper output: %w", err)
	}

	segments := make([]Segment, 0, len(out.Transcription))
	for _, item := range out.Transcription {
		text := strings.TrimSpace(item.Text)
		if text == "" {
			continue
		}
		segments = append(segments, Segment{
			// Offsets are reported in milliseconds.
			Start: float64(item.Offsets.From) / 1000,
			End:   float64(item.Offsets.To) / 1000,
			Text:  text,
		})
	}
	return segments, nil
}
