// Package sweeper recovers jobs whose worker died mid-run. A job is judged
// abandoned when it is still non-terminal past the staleness threshold and
// no worker heartbeat exists for it; such jobs are force-failed and their
// unfinished items are requeued as a fresh job so artifacts already produced
// are not regenerated.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"reelsmith/internal/domain"
	"reelsmith/internal/infra"
	"reelsmith/internal/repo"
)

// Store is the persistence surface the sweeper needs.
type Store interface {
	ListStaleJobs(ctx context.Context, cutoff time.Time) ([]repo.StaleJob, error)
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	MarkJobStuck(ctx context.Context, jobID, details string) error
	UnfinishedItems(ctx context.Context, jobID string) ([]domain.Item, error)
	CreateJob(ctx context.Context, job *domain.Job, items []domain.Item) error
}

// Liveness answers whether a worker recently reported progress on a job.
type Liveness interface {
	Alive(ctx context.Context, jobID string) (bool, error)
}

type Sweeper struct {
	store      Store
	liveness   Liveness
	logger     infra.Logger
	staleAfter time.Duration
	interval   time.Duration
}

func New(store Store, liveness Liveness, logger infra.Logger, staleAfter, interval time.Duration) *Sweeper {
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{
		store:      store,
		liveness:   liveness,
		logger:     logger,
		staleAfter: staleAfter,
		interval:   interval,
	}
}

// Run sweeps on a fixed interval until ctx ends.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error().Err(err).Msg("sweeper: sweep failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

// Sweep makes one pass over stale candidates and returns how many jobs it
// force-failed. A candidate with a live heartbeat is merely slow and is left
// alone. Force-fail and requeue are not atomic together; a crash in between
// leaves a failed job whose unfinished items can be requeued manually.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.staleAfter)
	candidates, err := s.store.ListStaleJobs(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale jobs: %w", err)
	}

	swept := 0
	for _, candidate := range candidates {
		alive, err := s.liveness.Alive(ctx, candidate.ID)
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", candidate.ID).Msg("sweeper: liveness check failed, skipping")
			continue
		}
		if alive {
			continue
		}

		details := fmt.Sprintf("stuck: no worker progress since %s", cutoff.Format(time.RFC3339))
		if err := s.store.MarkJobStuck(ctx, candidate.ID, details); err != nil {
			if errors.Is(err, domain.ErrJobFinalized) {
				continue
			}
			s.logger.Error().Err(err).Str("job_id", candidate.ID).Msg("sweeper: mark stuck failed")
			continue
		}
		swept++
		s.logger.Warn().
			Str("job_id", candidate.ID).
			Str("kind", string(candidate.Kind)).
			Msg("sweeper: job force-failed as stuck")

		if _, err := s.requeue(ctx, candidate.ID); err != nil {
			s.logger.Error().Err(err).Str("job_id", candidate.ID).Msg("sweeper: requeue failed")
		}
	}
	return swept, nil
}

// Requeue re-runs the unfinished work of a job the sweeper already
// force-failed, for the crash window where the force-fail landed but the
// automatic requeue did not. Returns the new job id, or "" when every item
// had already succeeded. Jobs in any other state return ErrJobNotStale.
func (s *Sweeper) Requeue(ctx context.Context, jobID string) (string, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.Status != domain.JobStatusFailed {
		return "", domain.ErrJobNotStale
	}
	return s.requeue(ctx, jobID)
}

// requeue creates a fresh pending job carrying only the items of the stuck
// job that never succeeded, with the same provider configuration.
func (s *Sweeper) requeue(ctx context.Context, stuckJobID string) (string, error) {
	original, err := s.store.GetJob(ctx, stuckJobID)
	if err != nil {
		return "", fmt.Errorf("load stuck job: %w", err)
	}
	leftovers, err := s.store.UnfinishedItems(ctx, stuckJobID)
	if err != nil {
		return "", fmt.Errorf("list unfinished items: %w", err)
	}
	if len(leftovers) == 0 {
		return "", nil
	}

	job := &domain.Job{
		ID:             uuid.NewString(),
		ProjectID:      original.ProjectID,
		UserID:         original.UserID,
		Kind:           original.Kind,
		Status:         domain.JobStatusPending,
		TotalItems:     len(leftovers),
		Provider:       original.Provider,
		Model:          original.Model,
		Voice:          original.Voice,
		Style:          original.Style,
		AspectRatio:    original.AspectRatio,
		Locale:         original.Locale,
		RequeuedFrom:   original.ID,
		FreeGeneration: original.FreeGeneration,
	}
	items := make([]domain.Item, len(leftovers))
	for i, leftover := range leftovers {
		items[i] = domain.Item{
			ID:          uuid.NewString(),
			JobID:       job.ID,
			Position:    i,
			SceneID:     leftover.SceneID,
			CharacterID: leftover.CharacterID,
			Prompt:      leftover.Prompt,
			Status:      domain.ItemStatusPending,
		}
	}
	if err := s.store.CreateJob(ctx, job, items); err != nil {
		return "", fmt.Errorf("create requeued job: %w", err)
	}
	s.logger.Info().
		Str("job_id", job.ID).
		Str("requeued_from", original.ID).
		Int("items", len(items)).
		Msg("sweeper: unfinished items requeued")
	return job.ID, nil
}
