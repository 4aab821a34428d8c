// Package progress owns the mutable per-job counters. The tracker is the
// single source of truth for how far along one job is while it runs; the
// persisted job row is updated from tracker snapshots.
package progress

import (
	"math"
	"sync"

	"reelsmith/internal/domain"
)

// Snapshot is a consistent view of the counters at one instant.
type Snapshot struct {
	Completed int
	Failed    int
	Total     int
	Percent   int
}

// Done reports whether every item reached a terminal outcome.
func (s Snapshot) Done() bool {
	return s.Completed+s.Failed >= s.Total
}

// Tracker counts terminal item outcomes for one job. Safe for concurrent
// use by all of the job's in-flight items. Once completed+failed reaches
// total the tracker freezes and rejects further marks.
type Tracker struct {
	mu        sync.Mutex
	total     int
	completed int
	failed    int
}

func NewTracker(total int) *Tracker {
	if total < 0 {
		total = 0
	}
	return &Tracker{total: total}
}

// MarkSucceeded records one succeeded item and returns the resulting
// snapshot. Returns domain.ErrJobFinalized if the job already finished.
func (t *Tracker) MarkSucceeded() (Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.completed+t.failed >= t.total {
		return t.snapshotLocked(), domain.ErrJobFinalized
	}
	t.completed++
	return t.snapshotLocked(), nil
}

// MarkFailed records one failed item and returns the resulting snapshot.
// Returns domain.ErrJobFinalized if the job already finished.
func (t *Tracker) MarkFailed() (Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.completed+t.failed >= t.total {
		return t.snapshotLocked(), domain.ErrJobFinalized
	}
	t.failed++
	return t.snapshotLocked(), nil
}

// Snapshot returns the current counters.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	s := Snapshot{Completed: t.completed, Failed: t.failed, Total: t.total}
	if t.total > 0 {
		s.Percent = int(math.Round(100 * float64(t.completed+t.failed) / float64(t.total)))
	}
	return s
}
