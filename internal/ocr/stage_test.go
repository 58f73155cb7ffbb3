package ocr

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/clipscribe/clipscribe/internal/sampler"
)

// scriptedRecognizer returns canned results keyed by frame path.
type scriptedRecognizer struct {
	texts map[string]FrameText
	errs  map[string]error
}

func (r *scriptedRecognizer) RecognizeFrame(ctx context.Context, imagePath string) (FrameText, error) {
	if err, ok := r.errs[imagePath]; ok {
		return FrameText{}, err
	}
	return r.texts[imagePath], nil
}

func frames(paths ...string) []sampler.Frame {
	out := make([]sampler.Frame, len(paths))
	for i, p := range paths {
		out[i] = sampler.Frame{VideoID: "v1", Offset: float64(i) * 2.5, Path: p}
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRecognizeFiltersLowConfidence(t *testing.T) {
	rec := &scriptedRecognizer{texts: map[string]FrameText{
		"f1": {Text: "WORKOUT TIME", Confidence: 85},
		"f2": {Text: "noise blob", Confidence: 12},
	}}
	stage := NewStage(rec, 30, 0.9, quietLogger())

	result := stage.Recognize(context.Background(), frames("f1", "f2"))
	if len(result.Detections) != 1 {
		t.Fatalf("got %d detections, want 1", len(result.Detections))
	}
	if result.Detections[0].Text != "WORKOUT TIME" {
		t.Errorf("kept %q", result.Detections[0].Text)
	}
	if result.AvgConfidence != 85 {
		t.Errorf("AvgConfidence = %v, want 85", result.AvgConfidence)
	}
}

func TestRecognizeDeduplicatesConsecutive(t *testing.T) {
	// Two consecutive detections with >= 90% similarity: only one survives.
	rec := &scriptedRecognizer{texts: map[string]FrameText{
		"f1": {Text: "20 MIN HIIT WORKOUT", Confidence: 90},
		"f2": {Text: "20 MIN HIIT WORKOUt", Confidence: 88},
		"f3": {Text: "COOL DOWN", Confidence: 91},
	}}
	stage := NewStage(rec, 30, 0.9, quietLogger())

	result := stage.Recognize(context.Background(), frames("f1", "f2", "f3"))
	if got := result.JoinedText(); got != "20 MIN HIIT WORKOUT; COOL DOWN" {
		t.Errorf("JoinedText() = %q", got)
	}
	if result.Detections[1].Offset != 5.0 {
		t.Errorf("second detection offset = %v, want 5.0", result.Detections[1].Offset)
	}
}

func TestRecognizeKeepsNonConsecutiveRepeats(t *testing.T) {
	// The overlay disappears and returns; the return is kept.
	rec := &scriptedRecognizer{texts: map[string]FrameText{
		"f1": {Text: "FOLLOW FOR MORE", Confidence: 90},
		"f2": {Text: "totally different text", Confidence: 90},
		"f3": {Text: "FOLLOW FOR MORE", Confidence: 90},
	}}
	stage := NewStage(rec, 30, 0.9, quietLogger())

	result := stage.Recognize(context.Background(), frames("f1", "f2", "f3"))
	if len(result.Detections) != 3 {
		t.Fatalf("got %d detections, want 3", len(result.Detections))
	}
}

func TestRecognizeFrameErrorDoesNotFailVideo(t *testing.T) {
	rec := &scriptedRecognizer{
		texts: map[string]FrameText{"f2": {Text: "STILL HERE", Confidence: 80}},
		errs:  map[string]error{"f1": errors.New("engine crashed")},
	}
	stage := NewStage(rec, 30, 0.9, quietLogger())

	result := stage.Recognize(context.Background(), frames("f1", "f2"))
	if result.Err != nil {
		t.Errorf("Err = %v, want nil", result.Err)
	}
	if result.FrameErrors != 1 {
		t.Errorf("FrameErrors = %d, want 1", result.FrameErrors)
	}
	if len(result.Detections) != 1 {
		t.Errorf("got %d detections, want 1", len(result.Detections))
	}
}

func TestRecognizeAllFramesFailed(t *testing.T) {
	rec := &scriptedRecognizer{errs: map[string]error{
		"f1": errors.New("down"),
		"f2": errors.New("down"),
	}}
	stage := NewStage(rec, 30, 0.9, quietLogger())

	result := stage.Recognize(context.Background(), frames("f1", "f2"))
	var recErr *RecognitionError
	if !errors.As(result.Err, &recErr) {
		t.Errorf("Err = %v, want RecognitionError", result.Err)
	}
}

func TestRecognizeEmptyFrames(t *testing.T) {
	stage := NewStage(&scriptedRecognizer{}, 30, 0.9, quietLogger())
	result := stage.Recognize(context.Background(), nil)
	if result.Err != nil || len(result.Detections) != 0 {
		t.Errorf("unexpected result for empty input: %+v", result)
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"identical", "identical", 1, 1},
		{"", "", 1, 1},
		{"abc", "", 0, 0},
		{"20 min hiit workout", "20 min hiit workou", 0.9, 1},
		{"completely different", "nothing alike here!", 0, 0.5},
	}
	for _, tt := range tests {
		got := similarity(tt.a, tt.b)
		if got < tt.min || got > tt.max {
			t.Errorf("similarity(%q, %q) = %v, want in [%v, %v]", tt.a, tt.b, got, tt.min, tt.max)
		}
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  hello   world  ", "hello world"},
		{"x y z real words", "real words"},
		{"i a 5 ok", "i a 5 ok"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := cleanText(tt.in); got != tt.want {
			t.Errorf("cleanText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTesseractParseTSV(t *testing.T) {
	tsv := "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
		"1\t1\t0\t0\t0\t0\t0\t0\t576\t1024\t-1\t\n" +
		"5\t1\t1\t1\t1\t1\t10\t10\t100\t30\t91.5\tWORKOUT\n" +
		"5\t1\t1\t1\t1\t2\t120\t10\t80\t30\t88.5\tTIME\n" +
		"5\t1\t1\t1\t1\t3\t210\t10\t20\t30\t12.0\t~\n"

	tess := NewTesseract("tesseract", 30, nil)
	got := tess.parseTSV(tsv)
	if got.Text != "WORKOUT TIME" {
		t.Errorf("Text = %q, want %q", got.Text, "WORKOUT TIME")
	}
	if got.Confidence != 90 {
		t.Errorf("Confidence = %v, want 90", got.Confidence)
	}
}

func TestTesseractParseTSVEmpty(t *testing.T) {
	tess := NewTesseract("", 30, nil)
	if got := tess.parseTSV(""); got.Text != "" || got.Confidence != 0 {
		t.Errorf("parseTSV(\"\") = %+v, want zero", got)
	}
}
