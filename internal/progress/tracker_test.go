package progress

import (
	"errors"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"reelsmith/internal/domain"
)

func TestTrackerCounts(t *testing.T) {
	tests := []struct {
		name          string
		total         int
		succeed       int
		fail          int
		wantPercent   int
		wantFinalized bool
	}{
		{name: "empty job", total: 0, wantPercent: 0, wantFinalized: true},
		{name: "half done", total: 4, succeed: 1, fail: 1, wantPercent: 50},
		{name: "all succeeded", total: 3, succeed: 3, wantPercent: 100, wantFinalized: true},
		{name: "all failed", total: 2, fail: 2, wantPercent: 100, wantFinalized: true},
		{name: "one of three", total: 3, succeed: 1, wantPercent: 33},
		{name: "two of three", total: 3, succeed: 2, wantPercent: 67},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(tt.total)
			for i := 0; i < tt.succeed; i++ {
				if _, err := tr.MarkSucceeded(); err != nil {
					t.Fatalf("MarkSucceeded: %v", err)
				}
			}
			for i := 0; i < tt.fail; i++ {
				if _, err := tr.MarkFailed(); err != nil {
					t.Fatalf("MarkFailed: %v", err)
				}
			}
			s := tr.Snapshot()
			if s.Completed != tt.succeed || s.Failed != tt.fail {
				t.Fatalf("snapshot = %+v, want completed=%d failed=%d", s, tt.succeed, tt.fail)
			}
			if s.Percent != tt.wantPercent {
				t.Fatalf("percent = %d, want %d", s.Percent, tt.wantPercent)
			}
			_, err := tr.MarkSucceeded()
			if tt.wantFinalized && !errors.Is(err, domain.ErrJobFinalized) {
				t.Fatalf("expected ErrJobFinalized, got %v", err)
			}
			if !tt.wantFinalized && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestTrackerRejectsMarksAfterFinalize(t *testing.T) {
	tr := NewTracker(1)
	if _, err := tr.MarkFailed(); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if _, err := tr.MarkFailed(); !errors.Is(err, domain.ErrJobFinalized) {
		t.Fatalf("expected ErrJobFinalized, got %v", err)
	}
	if _, err := tr.MarkSucceeded(); !errors.Is(err, domain.ErrJobFinalized) {
		t.Fatalf("expected ErrJobFinalized, got %v", err)
	}
	s := tr.Snapshot()
	if s.Completed != 0 || s.Failed != 1 {
		t.Fatalf("counters mutated after finalize: %+v", s)
	}
}

// Counters must stay consistent when many items finish at nearly the same
// instant.
func TestTrackerConcurrentMarks(t *testing.T) {
	const total = 200
	tr := NewTracker(total)

	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if n%3 == 0 {
				tr.MarkFailed() //nolint:errcheck
			} else {
				tr.MarkSucceeded() //nolint:errcheck
			}
		}(i)
	}
	wg.Wait()

	s := tr.Snapshot()
	if s.Completed+s.Failed != total {
		t.Fatalf("lost updates: completed=%d failed=%d total=%d", s.Completed, s.Failed, total)
	}
	if s.Percent != 100 {
		t.Fatalf("percent = %d, want 100", s.Percent)
	}
}

func TestTrackerInvariantsProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("completed+failed <= total and 0 <= percent <= 100 after any mark sequence", prop.ForAll(
		func(total int, marks []bool) bool {
			tr := NewTracker(total)
			for _, succeed := range marks {
				if succeed {
					tr.MarkSucceeded() //nolint:errcheck
				} else {
					tr.MarkFailed() //nolint:errcheck
				}
				s := tr.Snapshot()
				if s.Completed+s.Failed > s.Total {
					return false
				}
				if s.Percent < 0 || s.Percent > 100 {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 20),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
