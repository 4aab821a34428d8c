// Package cancel lets an external actor request cancellation of a running
// job. The flag lives in Redis so the API process can set it and any worker
// process observes it; the orchestrator polls between items only, never
// mid-provider-call, so in-flight results and their cost are not lost.
package cancel

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"reelsmith/internal/domain"
	"reelsmith/internal/infra"
	"reelsmith/internal/sqlinline"
)

// Flags are kept long enough to outlive any job, then expire on their own.
const flagTTL = 48 * time.Hour

// Controller sets and reads cancellation flags.
type Controller struct {
	redis *redis.Client
	sql   infra.SQLExecutor
}

func NewController(redisClient *redis.Client, sql infra.SQLExecutor) *Controller {
	return &Controller{redis: redisClient, sql: sql}
}

func flagKey(jobID string) string {
	return "cancel:" + jobID
}

// RequestCancel flags a job for cancellation. Fails with
// domain.ErrNotCancellable when the job is already terminal and
// domain.ErrNotFound when it does not exist. Requesting cancellation twice
// is a no-op the second time.
func (c *Controller) RequestCancel(ctx context.Context, jobID string) error {
	_, err := c.checkCancellable(ctx, jobID)
	if err != nil {
		return err
	}
	return c.setFlag(ctx, jobID)
}

// RequestCancelVideo is the cancellation variant for video jobs, the
// long-running kind users most want to abort mid-way. It additionally
// verifies the job really is a video job.
func (c *Controller) RequestCancelVideo(ctx context.Context, jobID string) error {
	kind, err := c.checkCancellable(ctx, jobID)
	if err != nil {
		return err
	}
	if kind != domain.JobKindVideo {
		return fmt.Errorf("job %s is %s, not video: %w", jobID, kind, domain.ErrNotCancellable)
	}
	return c.setFlag(ctx, jobID)
}

// Cancelled reports whether a cancellation flag is set for jobID.
func (c *Controller) Cancelled(ctx context.Context, jobID string) (bool, error) {
	n, err := c.redis.Exists(ctx, flagKey(jobID)).Result()
	if err != nil {
		return false, fmt.Errorf("read cancel flag: %w", err)
	}
	return n > 0, nil
}

// Clear removes the flag once the orchestrator has observed it and moved
// the job to its terminal status.
func (c *Controller) Clear(ctx context.Context, jobID string) error {
	return c.redis.Del(ctx, flagKey(jobID)).Err()
}

func (c *Controller) checkCancellable(ctx context.Context, jobID string) (domain.JobKind, error) {
	var (
		status string
		kind   string
	)
	row := c.sql.QueryRow(ctx, sqlinline.QJobStatusForUpdate, jobID)
	if err := row.Scan(&status, &kind); err != nil {
		if infra.IsNoRows(err) {
			return "", fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
		}
		return "", fmt.Errorf("load job status: %w", err)
	}
	if domain.JobStatus(status).Terminal() {
		return "", fmt.Errorf("job %s already %s: %w", jobID, status, domain.ErrNotCancellable)
	}
	return domain.JobKind(kind), nil
}

func (c *Controller) setFlag(ctx context.Context, jobID string) error {
	if err := c.redis.Set(ctx, flagKey(jobID), "1", flagTTL).Err(); err != nil {
		return fmt.Errorf("set cancel flag: %w", err)
	}
	return nil
}
