package ocr

import (
	"context"
	"strconv"
	"strings"

	"github.com/clipscribe/clipscribe/internal/execx"
)

// Tesseract recognizes text by invoking the tesseract CLI in TSV mode and
// filtering its per-word confidences.
type Tesseract struct {
	binary string
	// minWordConfidence drops individual low-confidence words before they
	// pollute the frame text.
	minWordConfidence float64
	runner            execx.Runner
}

// NewTesseract returns a tesseract-backed recognizer.
func NewTesseract(binary string, minWordConfidence float64, runner execx.Runner) *Tesseract {
	if binary == "" {
		binary = "tesseract"
	}
	return &Tesseract{binary: binary, minWordConfidence: minWordConfidence, runner: runner}
}

// RecognizeFrame runs OCR on one image. Short overlay text dominates the
// input, so page segmentation mode 8 (single word/line) fits best.
func (t *Tesseract) RecognizeFrame(ctx context.Context, imagePath string) (FrameText, error) {
	out, err := t.runner.Run(ctx, t.binary,
		imagePath, "stdout",
		"--psm", "8",
		"--oem", "3",
		"tsv",
	)
	if err != nil {
		return FrameText{}, &RecognitionError{Frame: imagePath, Err: err}
	}
	return t.parseTSV(out), nil
}

// parseTSV reads tesseract's tab-separated output: one row per detected word
// with a confidence column, -1 for structural rows.
func (t *Tesseract) parseTSV(out string) FrameText {
	var words []string
	var confSum float64

	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) < 12 {
			continue
		}
		conf, err := strconv.ParseFloat(fields[10], 64)
		if err != nil || conf < 0 {
			continue
		}
		text := strings.TrimSpace(fields[11])
		if text == "" || conf < t.minWordConfidence {
			continue
		}
		words = append(words, text)
		confSum += conf
	}

	if len(words) == 0 {
		return FrameText{}
	}
	return FrameText{
		Text:       cleanText(strings.Join(words, " ")),
		Confidence: confSum / float64(len(words)),
	}
}
