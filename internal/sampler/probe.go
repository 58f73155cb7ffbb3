package sampler

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
}

// Probe reads stream metadata with ffprobe. A missing video stream or an
// unknown duration is an error; the caller maps it to DecodeError.
func (s *Sampler) Probe(ctx context.Context, videoPath string) (Metadata, error) {
	out, err := s.runner.Run(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		videoPath,
	)
	if err != nil {
		return Metadata{}, fmt.Errorf("ffprobe: %w", err)
	}

	var probed probeOutput
	if err := json.Unmarshal([]byte(out), &probed); err != nil {
		return Metadata{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	var meta Metadata
	found := false
	for _, stream := range probed.Streams {
		if stream.CodecType != "video" {
			continue
		}
		meta.Width = stream.Width
		meta.Height = stream.Height
		meta.Codec = stream.CodecName
		meta.FPS = parseFrameRate(stream.RFrameRate)
		found = true
		break
	}
	if !found {
		return Metadata{}, fmt.Errorf("no video stream in %s", videoPath)
	}

	meta.Duration, err = strconv.ParseFloat(probed.Format.Duration, 64)
	if err != nil || meta.Duration <= 0 {
		return Metadata{}, fmt.Errorf("unknown duration for %s", videoPath)
	}
	return meta, nil
}

// parseFrameRate converts ffprobe's rational rate ("30000/1001") to a float.
func parseFrameRate(rate string) float64 {
	num, den, ok := strings.Cut(rate, "/")
	if !ok {
		f, _ := strconv.ParseFloat(rate, 64)
		return f
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
