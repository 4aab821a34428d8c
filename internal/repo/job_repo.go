// Package repo implements Postgres persistence for jobs, items and the
// recovery queries.
package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"reelsmith/internal/domain"
	"reelsmith/internal/infra"
	"reelsmith/internal/sqlinline"
)

// JobRepository persists jobs and their items.
type JobRepository struct {
	sql infra.SQLExecutor
}

func NewJobRepository(sql infra.SQLExecutor) *JobRepository {
	return &JobRepository{sql: sql}
}

// CreateJob inserts the job and all of its items. Items are inserted
// individually; the job row is written first so item rows always have a
// parent.
func (r *JobRepository) CreateJob(ctx context.Context, job *domain.Job, items []domain.Item) error {
	_, err := r.sql.Exec(ctx, sqlinline.QInsertJob,
		job.ID,
		job.ProjectID,
		job.UserID,
		string(job.Kind),
		string(job.Status),
		job.TotalItems,
		job.Provider,
		job.Model,
		job.Voice,
		job.Style,
		job.AspectRatio,
		job.Locale,
		job.RequeuedFrom,
		job.FreeGeneration,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	for i := range items {
		item := &items[i]
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.JobID = job.ID
		_, err := r.sql.Exec(ctx, sqlinline.QInsertItem,
			item.ID,
			item.JobID,
			item.Position,
			item.SceneID,
			item.CharacterID,
			item.Prompt,
		)
		if err != nil {
			return fmt.Errorf("insert item %d: %w", item.Position, err)
		}
	}
	return nil
}

// GetJob fetches a job snapshot by id.
func (r *JobRepository) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QGetJob, jobID)
	job, err := scanJob(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ClaimJob atomically picks the oldest pending job and moves it to
// processing. Returns domain.ErrNotFound when the queue is empty.
func (r *JobRepository) ClaimJob(ctx context.Context) (*domain.Job, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QClaimJob)
	job, err := scanJob(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// ListItems returns a job's items ordered by position.
func (r *JobRepository) ListItems(ctx context.Context, jobID string) ([]domain.Item, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListItems, jobID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		var item domain.Item
		var status string
		if err := rows.Scan(
			&item.ID,
			&item.JobID,
			&item.Position,
			&item.SceneID,
			&item.CharacterID,
			&item.Prompt,
			&status,
			&item.ArtifactRef,
			&item.ErrorMessage,
			&item.Attempts,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		item.Status = domain.ItemStatus(status)
		items = append(items, item)
	}
	return items, rows.Err()
}

// MarkItemSucceeded persists one item's terminal success.
func (r *JobRepository) MarkItemSucceeded(ctx context.Context, itemID, artifactRef string, attempts int) error {
	_, err := r.sql.Exec(ctx, sqlinline.QMarkItemSucceeded, itemID, artifactRef, attempts)
	if err != nil {
		return fmt.Errorf("mark item succeeded: %w", err)
	}
	return nil
}

// MarkItemFailed persists one item's terminal failure.
func (r *JobRepository) MarkItemFailed(ctx context.Context, itemID, message string, attempts int) error {
	_, err := r.sql.Exec(ctx, sqlinline.QMarkItemFailed, itemID, message, attempts)
	if err != nil {
		return fmt.Errorf("mark item failed: %w", err)
	}
	return nil
}

// UpdateCounters mirrors the in-memory tracker onto the job row so progress
// survives a crash.
func (r *JobRepository) UpdateCounters(ctx context.Context, jobID string, completed, failed int) error {
	_, err := r.sql.Exec(ctx, sqlinline.QUpdateJobCounters, jobID, completed, failed)
	if err != nil {
		return fmt.Errorf("update counters: %w", err)
	}
	return nil
}

// FinalizeJob moves a job to its terminal status. The guard on the current
// status means a job already finalized elsewhere is left untouched; callers
// get domain.ErrJobFinalized in that case.
func (r *JobRepository) FinalizeJob(ctx context.Context, jobID string, status domain.JobStatus, errorDetails string, completed, failed int) error {
	row := r.sql.QueryRow(ctx, sqlinline.QFinalizeJob, jobID, string(status), completed, failed, errorDetails)
	var id string
	if err := row.Scan(&id); err != nil {
		if infra.IsNoRows(err) {
			return fmt.Errorf("job %s: %w", jobID, domain.ErrJobFinalized)
		}
		return fmt.Errorf("finalize job: %w", err)
	}
	return nil
}

// StaleJob is the slice of a job the sweeper needs.
type StaleJob struct {
	ID     string
	Kind   domain.JobKind
	UserID string
}

// ListStaleJobs returns non-terminal jobs whose last activity predates the
// cutoff.
func (r *JobRepository) ListStaleJobs(ctx context.Context, cutoff time.Time) ([]StaleJob, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListStaleJobs, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}
	defer rows.Close()

	var out []StaleJob
	for rows.Next() {
		var s StaleJob
		var kind string
		if err := rows.Scan(&s.ID, &kind, &s.UserID); err != nil {
			return nil, fmt.Errorf("scan stale job: %w", err)
		}
		s.Kind = domain.JobKind(kind)
		out = append(out, s)
	}
	return out, rows.Err()
}

// MarkJobStuck force-fails a job the sweeper judged abandoned. Returns
// domain.ErrJobFinalized if the job reached a terminal status in the
// meantime.
func (r *JobRepository) MarkJobStuck(ctx context.Context, jobID, details string) error {
	row := r.sql.QueryRow(ctx, sqlinline.QMarkJobStuck, jobID, details)
	var id string
	if err := row.Scan(&id); err != nil {
		if infra.IsNoRows(err) {
			return fmt.Errorf("job %s: %w", jobID, domain.ErrJobFinalized)
		}
		return fmt.Errorf("mark job stuck: %w", err)
	}
	return nil
}

// UnfinishedItems returns copies of the items that never succeeded, for a
// requeue into a fresh job.
func (r *JobRepository) UnfinishedItems(ctx context.Context, jobID string) ([]domain.Item, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QUnfinishedItemsForRequeue, jobID)
	if err != nil {
		return nil, fmt.Errorf("list unfinished items: %w", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		var item domain.Item
		if err := rows.Scan(&item.Position, &item.SceneID, &item.CharacterID, &item.Prompt); err != nil {
			return nil, fmt.Errorf("scan unfinished item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanJob(row interface{ Scan(...any) error }) (*domain.Job, error) {
	var (
		job    domain.Job
		kind   string
		status string
	)
	err := row.Scan(
		&job.ID,
		&job.ProjectID,
		&job.UserID,
		&kind,
		&status,
		&job.TotalItems,
		&job.CompletedItems,
		&job.FailedItems,
		&job.Provider,
		&job.Model,
		&job.Voice,
		&job.Style,
		&job.AspectRatio,
		&job.Locale,
		&job.ErrorDetails,
		&job.RequeuedFrom,
		&job.FreeGeneration,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Kind = domain.JobKind(kind)
	job.Status = domain.JobStatus(status)
	return &job, nil
}
