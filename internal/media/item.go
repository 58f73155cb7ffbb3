// Package media defines the video item model and the job catalog that
// enumerates pending work.
package media

import (
	"path/filepath"
	"strings"
)

// Status is the lifecycle state of a video item. Transitions are monotone:
// pending -> in_progress -> one of the terminal states.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSuccess    Status = "success"
	StatusPartial    Status = "partial"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status will never change again.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusPartial || s == StatusFailed
}

// Item is one candidate video input.
type Item struct {
	ID       string
	Path     string
	Filename string
	// Duration is the declared duration in seconds from upstream metadata,
	// zero when unknown. The sampler probes the real value.
	Duration float64
	Status   Status
}

// ItemFromPath builds an Item for a video file on disk.
func ItemFromPath(path string) Item {
	return Item{
		ID:       ExtractID(path),
		Path:     path,
		Filename: filepath.Base(path),
		Status:   StatusPending,
	}
}

// ExtractID derives the video id from a filename. Upstream names files as
// <query>_<creator>_<id>.mp4 with a long numeric id; when the trailing token
// does not look like such an id the whole stem is used.
func ExtractID(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	parts := strings.Split(stem, "_")
	if len(parts) >= 2 {
		last := parts[len(parts)-1]
		if len(last) > 15 && isDigits(last) {
			return last
		}
	}
	return stem
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

var videoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".webm": true,
	".m4v":  true,
	".flv":  true,
}

// IsVideoFile reports whether path has a supported video extension.
func IsVideoFile(path string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(path))]
}
