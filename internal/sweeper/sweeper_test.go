package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"reelsmith/internal/domain"
	"reelsmith/internal/repo"
)

type fakeStore struct {
	mu           sync.Mutex
	stale        []repo.StaleJob
	jobs         map[string]*domain.Job
	unfinished   map[string][]domain.Item
	stuck        map[string]string
	created      []*domain.Job
	createdItems map[string][]domain.Item
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:         make(map[string]*domain.Job),
		unfinished:   make(map[string][]domain.Item),
		stuck:        make(map[string]string),
		createdItems: make(map[string][]domain.Item),
	}
}

func (s *fakeStore) ListStaleJobs(context.Context, time.Time) ([]repo.StaleJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]repo.StaleJob(nil), s.stale...), nil
}

func (s *fakeStore) GetJob(_ context.Context, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

func (s *fakeStore) MarkJobStuck(_ context.Context, jobID, details string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[jobID]; ok && job.Status.Terminal() {
		return domain.ErrJobFinalized
	}
	s.stuck[jobID] = details
	return nil
}

func (s *fakeStore) UnfinishedItems(_ context.Context, jobID string) ([]domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Item(nil), s.unfinished[jobID]...), nil
}

func (s *fakeStore) CreateJob(_ context.Context, job *domain.Job, items []domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, job)
	s.createdItems[job.ID] = append([]domain.Item(nil), items...)
	return nil
}

type fakeLiveness struct {
	alive map[string]bool
}

func (l *fakeLiveness) Alive(_ context.Context, jobID string) (bool, error) {
	return l.alive[jobID], nil
}

func staleProcessingJob(id string) *domain.Job {
	return &domain.Job{
		ID:          id,
		ProjectID:   "project-1",
		UserID:      "user-1",
		Kind:        domain.JobKindImage,
		Status:      domain.JobStatusProcessing,
		TotalItems:  3,
		Provider:    "gemini",
		Model:       "gemini-2.5-flash-image",
		AspectRatio: "9:16",
	}
}

func TestSweepForceFailsDeadJob(t *testing.T) {
	store := newFakeStore()
	store.stale = []repo.StaleJob{{ID: "job-1", Kind: domain.JobKindImage, UserID: "user-1"}}
	store.jobs["job-1"] = staleProcessingJob("job-1")
	store.unfinished["job-1"] = []domain.Item{
		{Position: 1, Prompt: "second scene"},
		{Position: 2, Prompt: "third scene"},
	}

	s := New(store, &fakeLiveness{alive: map[string]bool{}}, zerolog.Nop(), 30*time.Minute, time.Minute)
	swept, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 1 {
		t.Fatalf("swept = %d, want 1", swept)
	}
	if _, ok := store.stuck["job-1"]; !ok {
		t.Fatal("job-1 was not marked stuck")
	}

	if len(store.created) != 1 {
		t.Fatalf("requeued jobs = %d, want 1", len(store.created))
	}
	requeued := store.created[0]
	if requeued.RequeuedFrom != "job-1" {
		t.Fatalf("requeued_from = %q, want job-1", requeued.RequeuedFrom)
	}
	if requeued.Status != domain.JobStatusPending || requeued.TotalItems != 2 {
		t.Fatalf("requeued job = %s total=%d, want pending total=2", requeued.Status, requeued.TotalItems)
	}
	if requeued.Provider != "gemini" || requeued.AspectRatio != "9:16" {
		t.Fatal("provider configuration was not carried over")
	}
	items := store.createdItems[requeued.ID]
	if len(items) != 2 || items[0].Position != 0 || items[1].Prompt != "third scene" {
		t.Fatalf("requeued items = %+v", items)
	}
}

func TestSweepLeavesSlowButAliveJob(t *testing.T) {
	store := newFakeStore()
	store.stale = []repo.StaleJob{{ID: "job-1", Kind: domain.JobKindVideo, UserID: "user-1"}}
	store.jobs["job-1"] = staleProcessingJob("job-1")

	s := New(store, &fakeLiveness{alive: map[string]bool{"job-1": true}}, zerolog.Nop(), 30*time.Minute, time.Minute)
	swept, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 0 {
		t.Fatalf("swept = %d, want 0", swept)
	}
	if len(store.stuck) != 0 || len(store.created) != 0 {
		t.Fatal("alive job must not be touched")
	}
}

func TestSweepSkipsRaceWithFinishingWorker(t *testing.T) {
	store := newFakeStore()
	store.stale = []repo.StaleJob{{ID: "job-1", Kind: domain.JobKindImage, UserID: "user-1"}}
	finished := staleProcessingJob("job-1")
	finished.Status = domain.JobStatusCompleted
	store.jobs["job-1"] = finished

	s := New(store, &fakeLiveness{alive: map[string]bool{}}, zerolog.Nop(), 30*time.Minute, time.Minute)
	swept, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 0 {
		t.Fatalf("swept = %d, want 0", swept)
	}
	if len(store.created) != 0 {
		t.Fatal("finished job must not be requeued")
	}
}

func TestRequeueFailedJob(t *testing.T) {
	store := newFakeStore()
	failed := staleProcessingJob("job-1")
	failed.Status = domain.JobStatusFailed
	store.jobs["job-1"] = failed
	store.unfinished["job-1"] = []domain.Item{{Position: 2, Prompt: "third scene"}}

	s := New(store, &fakeLiveness{alive: map[string]bool{}}, zerolog.Nop(), 30*time.Minute, time.Minute)
	newID, err := s.Requeue(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if newID == "" || len(store.created) != 1 || store.created[0].ID != newID {
		t.Fatalf("newID = %q, created = %d", newID, len(store.created))
	}
	if store.created[0].RequeuedFrom != "job-1" {
		t.Fatalf("requeued_from = %q, want job-1", store.created[0].RequeuedFrom)
	}
}

func TestRequeueRejectsNonFailedJob(t *testing.T) {
	tests := []struct {
		name   string
		status domain.JobStatus
	}{
		{"processing", domain.JobStatusProcessing},
		{"completed", domain.JobStatusCompleted},
		{"cancelled", domain.JobStatusCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			job := staleProcessingJob("job-1")
			job.Status = tt.status
			store.jobs["job-1"] = job

			s := New(store, &fakeLiveness{alive: map[string]bool{}}, zerolog.Nop(), 30*time.Minute, time.Minute)
			if _, err := s.Requeue(context.Background(), "job-1"); !errors.Is(err, domain.ErrJobNotStale) {
				t.Fatalf("want ErrJobNotStale, got %v", err)
			}
			if len(store.created) != 0 {
				t.Fatal("no job must be created")
			}
		})
	}
}

func TestRequeueUnknownJob(t *testing.T) {
	s := New(newFakeStore(), &fakeLiveness{alive: map[string]bool{}}, zerolog.Nop(), 30*time.Minute, time.Minute)
	if _, err := s.Requeue(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestSweepNoRequeueWhenNothingLeft(t *testing.T) {
	store := newFakeStore()
	store.stale = []repo.StaleJob{{ID: "job-1", Kind: domain.JobKindImage, UserID: "user-1"}}
	store.jobs["job-1"] = staleProcessingJob("job-1")

	s := New(store, &fakeLiveness{alive: map[string]bool{}}, zerolog.Nop(), 30*time.Minute, time.Minute)
	if _, err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(store.created) != 0 {
		t.Fatal("job with no unfinished items must not be requeued")
	}
}
