package pipeline

import (
	"sync"
	"time"

	"github.com/clipscribe/clipscribe/internal/media"
)

// recentErrorLimit bounds the error list carried in a snapshot.
const recentErrorLimit = 50

// ItemError is one recorded per-video problem.
type ItemError struct {
	VideoID string
	Notes   string
	At      time.Time
}

// Stats collects live counters for a run. All methods are safe for
// concurrent use by the worker pool.
type Stats struct {
	mu        sync.Mutex
	startedAt time.Time
	inFlight  int
	processed int
	byStatus  map[media.Status]int
	dropped   int
	errors    []ItemError
}

func NewStats() *Stats {
	return &Stats{
		startedAt: time.Now(),
		byStatus:  make(map[media.Status]int),
	}
}

func (s *Stats) markStarted() {
	s.mu.Lock()
	s.inFlight++
	s.mu.Unlock()
}

func (s *Stats) markFinished(videoID string, status media.Status, notes string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--
	s.processed++
	s.byStatus[status]++
	if status != media.StatusSuccess && notes != "" {
		s.errors = append(s.errors, ItemError{VideoID: videoID, Notes: notes, At: time.Now()})
		if len(s.errors) > recentErrorLimit {
			s.errors = s.errors[len(s.errors)-recentErrorLimit:]
		}
	}
}

// markDropped unwinds an in-flight item whose outcome never got recorded.
func (s *Stats) markDropped() {
	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()
}

// Snapshot is a point-in-time copy of the run counters.
type Snapshot struct {
	StartedAt    time.Time
	Elapsed      time.Duration
	InFlight     int
	Processed    int
	Succeeded    int
	Partial      int
	Failed       int
	PerMinute    float64
	RecentErrors []ItemError
}

// ETA estimates the remaining wall time for pending videos at the current
// throughput. Zero when nothing has finished yet.
func (s Snapshot) ETA(pending int) time.Duration {
	if s.Processed == 0 || pending <= 0 {
		return 0
	}
	perItem := s.Elapsed / time.Duration(s.Processed)
	return perItem * time.Duration(pending)
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := time.Since(s.startedAt)
	snap := Snapshot{
		StartedAt: s.startedAt,
		Elapsed:   elapsed,
		InFlight:  s.inFlight,
		Processed: s.processed,
		Succeeded: s.byStatus[media.StatusSuccess],
		Partial:   s.byStatus[media.StatusPartial],
		Failed:    s.byStatus[media.StatusFailed],
	}
	if elapsed > 0 {
		snap.PerMinute = float64(s.processed) / elapsed.Minutes()
	}
	snap.RecentErrors = append(snap.RecentErrors, s.errors...)
	return snap
}
