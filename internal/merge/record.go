// Package merge combines the stage outputs and video metadata into one
// output row.
package merge

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/clipscribe/clipscribe/internal/media"
	"github.com/clipscribe/clipscribe/internal/ocr"
	"github.com/clipscribe/clipscribe/internal/sampler"
	"github.com/clipscribe/clipscribe/internal/transcribe"
)

// maxFieldLength caps free-text columns so a single pathological video cannot
// bloat the table.
const maxFieldLength = 2000

// Record is one output row. Append-only: never mutated after being written.
type Record struct {
	VideoID                 string
	Filename                string
	DurationSeconds         float64
	FrameCount              int
	OnScreenText            string
	SpokenPhrases           string
	TextTimestamps          string
	AudioTimestamps         string
	OCRConfidence           float64
	TranscriptionConfidence float64
	ProcessingStatus        media.Status
	ErrorNotes              string
	ProcessedAt             time.Time
}

// Columns returns the output table header in column order.
func Columns() []string {
	return []string{
		"video_id",
		"filename",
		"duration_seconds",
		"frame_count",
		"on_screen_text",
		"spoken_phrases",
		"text_timestamps",
		"audio_timestamps",
		"ocr_confidence",
		"transcription_confidence",
		"processing_status",
		"error_notes",
		"processed_timestamp",
	}
}

// Fields returns the record's values in column order.
func (r Record) Fields() []string {
	return []string{
		r.VideoID,
		r.Filename,
		strconv.FormatFloat(r.DurationSeconds, 'f', 2, 64),
		strconv.Itoa(r.FrameCount),
		r.OnScreenText,
		r.SpokenPhrases,
		r.TextTimestamps,
		r.AudioTimestamps,
		strconv.FormatFloat(r.OCRConfidence, 'f', 2, 64),
		strconv.FormatFloat(r.TranscriptionConfidence, 'f', 2, 64),
		string(r.ProcessingStatus),
		r.ErrorNotes,
		r.ProcessedAt.Format(time.RFC3339),
	}
}

// Build derives the output record for one video. Status: failed only when the
// sampler itself failed (no usable video); partial when at least one of the
// two extraction stages errored; success otherwise — an empty transcript from
// a working engine still counts as success.
func Build(item media.Item, meta sampler.Metadata, frameCount int, samplerErr error, ocrRes ocr.Result, trRes transcribe.Result) Record {
	record := Record{
		VideoID:                 item.ID,
		Filename:                item.Filename,
		DurationSeconds:         meta.Duration,
		FrameCount:              frameCount,
		OnScreenText:            truncate(cleanField(ocrRes.JoinedText())),
		SpokenPhrases:           truncate(cleanField(trRes.Text)),
		TextTimestamps:          truncate(textTimestamps(ocrRes.Detections)),
		AudioTimestamps:         truncate(audioTimestamps(trRes.Segments)),
		OCRConfidence:           round2(ocrRes.AvgConfidence),
		TranscriptionConfidence: round2(trRes.Confidence),
		ProcessedAt:             time.Now().UTC(),
	}

	var notes []string
	if samplerErr != nil {
		notes = append(notes, "Video: "+samplerErr.Error())
	}
	if ocrRes.Err != nil {
		notes = append(notes, "OCR: "+ocrRes.Err.Error())
	}
	if trRes.Err != nil {
		notes = append(notes, "Audio: "+trRes.Err.Error())
	}
	record.ErrorNotes = truncate(cleanField(strings.Join(notes, "; ")))

	switch {
	case samplerErr != nil:
		record.ProcessingStatus = media.StatusFailed
	case ocrRes.Err != nil || trRes.Err != nil:
		record.ProcessingStatus = media.StatusPartial
	default:
		record.ProcessingStatus = media.StatusSuccess
	}
	return record
}

// textTimestamps pairs each surviving detection with its frame offset.
func textTimestamps(detections []ocr.Detection) string {
	parts := make([]string, 0, len(detections))
	for _, d := range detections {
		parts = append(parts, fmt.Sprintf("%.1fs:%s", d.Offset, d.Text))
	}
	return strings.Join(parts, "; ")
}

// audioTimestamps pairs each recognized segment with its start offset.
func audioTimestamps(segments []transcribe.Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		parts = append(parts, fmt.Sprintf("%.1fs-%s", s.Start, s.Text))
	}
	return strings.Join(parts, ";")
}

// cleanField collapses all whitespace runs, keeping each value on one line.
func cleanField(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func truncate(text string) string {
	if len(text) <= maxFieldLength {
		return text
	}
	// Back up to a rune boundary so the cut never emits invalid UTF-8.
	cut := maxFieldLength
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}
