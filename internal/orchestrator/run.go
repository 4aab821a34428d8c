package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"reelsmith/internal/credits"
	"reelsmith/internal/domain"
	"reelsmith/internal/notify"
	"reelsmith/internal/progress"
	"reelsmith/internal/providers"
	"reelsmith/internal/retry"
)

// jobRun is the per-job working state shared by all in-flight items.
type jobRun struct {
	job     *domain.Job
	adapter providers.Adapter
	price   credits.Price
	tracker *progress.Tracker

	// persistMu serializes tracker marks together with the counter write
	// so a later snapshot can never be overwritten by an earlier one.
	persistMu sync.Mutex
}

// Run drives one claimed job to a terminal status. It resolves the adapter
// and price once, fans the pending items out with bounded parallelism,
// persists each item's outcome as it lands, and finalizes the job from the
// tracker's last snapshot. Items already terminal (after a crash between an
// item write and its counter write) are counted but not re-run.
func (o *Orchestrator) Run(ctx context.Context, job *domain.Job) error {
	items, err := o.store.ListItems(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("list items for job %s: %w", job.ID, err)
	}

	adapter, resolveErr := o.registry.Resolve(job.Kind, job.Provider)
	var price credits.Price
	if resolveErr == nil {
		price, resolveErr = o.ledger.PriceOf(ctx, job.Kind, job.Provider)
	}
	if resolveErr != nil {
		o.logger.Error().Err(resolveErr).Str("job_id", job.ID).Msg("orchestrator: job not runnable")
		return o.finalize(ctx, job, domain.JobStatusFailed, progress.Snapshot{Total: job.TotalItems}, "invalid provider configuration: "+resolveErr.Error())
	}

	run := &jobRun{
		job:     job,
		adapter: adapter,
		price:   price,
		tracker: progress.NewTracker(job.TotalItems),
	}
	pending := make([]domain.Item, 0, len(items))
	for _, item := range items {
		switch item.Status {
		case domain.ItemStatusSucceeded:
			run.tracker.MarkSucceeded()
		case domain.ItemStatusFailed:
			run.tracker.MarkFailed()
		default:
			pending = append(pending, item)
		}
	}

	stopBeats := o.startHeartbeat(ctx, job.ID)
	defer stopBeats()

	var (
		wg        sync.WaitGroup
		sem       = make(chan struct{}, o.cfg.WorkersPerJob)
		cancelled bool
	)
dispatch:
	for _, item := range pending {
		if ctx.Err() != nil {
			break
		}
		flagged, err := o.cancels.Cancelled(ctx, job.ID)
		if err != nil {
			o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("orchestrator: cancel flag check failed")
		}
		if flagged {
			cancelled = true
			break
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break dispatch
		}
		wg.Add(1)
		item := item
		task := func() {
			defer wg.Done()
			defer func() { <-sem }()
			o.processItem(ctx, run, item)
		}
		if err := o.pool.Submit(task); err != nil {
			// Pool closed or saturated beyond its block budget; do the
			// work on the dispatching goroutine rather than dropping it.
			task()
		}
	}
	wg.Wait()

	snap := run.tracker.Snapshot()
	if err := ctx.Err(); err != nil && !snap.Done() {
		// Worker shutdown mid-job. The job stays processing so the sweeper
		// or the next claim picks up the remaining items.
		o.logger.Warn().
			Str("job_id", job.ID).
			Int("completed", snap.Completed).
			Int("failed", snap.Failed).
			Msg("orchestrator: shut down mid-job, leaving job for recovery")
		return err
	}
	status, details := finalOutcome(snap, cancelled)
	return o.finalize(ctx, job, status, snap, details)
}

// processItem takes one item through charge, provider call and persistence.
// A pre-charge debits at most once per item regardless of retries and is
// refunded if the item ultimately fails; a post-charge happens only after
// the provider call succeeds.
func (o *Orchestrator) processItem(ctx context.Context, run *jobRun, item domain.Item) {
	job := run.job

	var chargeTx *domain.CreditTransaction
	if run.price.Mode == credits.ModePreCharge {
		tx, err := o.ledger.Charge(ctx, credits.ChargeParams{
			UserID:    job.UserID,
			Credits:   run.price.Credits,
			RealCost:  run.price.RealCost,
			Kind:      job.Kind,
			Provider:  job.Provider,
			ProjectID: job.ProjectID,
			Override:  job.FreeGeneration,
		})
		if err != nil {
			o.failItem(ctx, run, item, 0, chargeError(err))
			return
		}
		chargeTx = tx
	}

	req := providers.Request{
		ItemID:      item.ID,
		JobID:       job.ID,
		Prompt:      item.Prompt,
		SceneID:     item.SceneID,
		CharacterID: item.CharacterID,
		Model:       job.Model,
		AspectRatio: job.AspectRatio,
		Voice:       job.Voice,
		Style:       job.Style,
		Locale:      job.Locale,
	}
	var result *providers.Result
	attempts, genErr := o.callWithRetry(ctx, job.Provider, run.adapter, req, &result)
	if genErr != nil {
		o.refund(ctx, job, chargeTx)
		o.failItem(ctx, run, item, attempts, genErr.Error())
		return
	}

	if run.price.Mode == credits.ModePostCharge {
		tx, err := o.ledger.Charge(ctx, credits.ChargeParams{
			UserID:    job.UserID,
			Credits:   run.price.Credits,
			RealCost:  result.RealCost,
			Kind:      job.Kind,
			Provider:  job.Provider,
			ProjectID: job.ProjectID,
			Override:  job.FreeGeneration,
		})
		if err != nil {
			o.failItem(ctx, run, item, attempts, chargeError(err))
			return
		}
		chargeTx = tx
	}

	// The artifact reference must land before the item counts as succeeded;
	// a job is terminal only when every item row is. One retry, then the
	// item fails and its charge is returned.
	persistErr := o.store.MarkItemSucceeded(ctx, item.ID, result.ArtifactRef, attempts)
	if persistErr != nil {
		o.logger.Warn().Err(persistErr).Str("item_id", item.ID).Msg("orchestrator: persist succeeded item failed, retrying")
		persistErr = o.store.MarkItemSucceeded(ctx, item.ID, result.ArtifactRef, attempts)
	}
	if persistErr != nil {
		o.refund(ctx, job, chargeTx)
		o.failItem(ctx, run, item, attempts, "artifact reference not persisted: "+persistErr.Error())
		return
	}
	o.persistMark(ctx, run, true)
	o.logger.Info().
		Str("job_id", job.ID).
		Str("item_id", item.ID).
		Int("attempts", attempts).
		Int64("real_cost", result.RealCost).
		Msg("orchestrator: item succeeded")
}

// refund compensates a prior charge for an item that ultimately failed. A
// nil transaction (nothing charged yet) is a no-op, and a refund that
// already landed is not an error.
func (o *Orchestrator) refund(ctx context.Context, job *domain.Job, chargeTx *domain.CreditTransaction) {
	if chargeTx == nil {
		return
	}
	if _, err := o.ledger.Refund(ctx, chargeTx.ID); err != nil && !errors.Is(err, domain.ErrAlreadyRefunded) {
		o.logger.Error().Err(err).
			Str("job_id", job.ID).
			Str("transaction_id", chargeTx.ID).
			Msg("orchestrator: refund after failed item did not apply")
	}
}

// callWithRetry runs the provider call under the per-provider rate limit
// and the configured backoff budget. Classified permanent failures and
// context aborts stop immediately; unclassified errors get the full budget.
// Artifact storage failures get exactly one retry: the generation itself
// succeeded, so further rounds only re-burn provider time.
func (o *Orchestrator) callWithRetry(ctx context.Context, provider string, adapter providers.Adapter, req providers.Request, out **providers.Result) (int, error) {
	storageFailures := 0
	return retry.WithBackoff(ctx, o.cfg.Retry, func(ctx context.Context, attempt int) (bool, error) {
		if err := o.limits.Wait(ctx, provider); err != nil {
			return false, err
		}
		res, err := adapter.Generate(ctx, req)
		if err != nil {
			var serr *providers.StorageError
			if errors.As(err, &serr) {
				storageFailures++
				return storageFailures <= 1, err
			}
			var perr *providers.Error
			if errors.As(err, &perr) {
				return perr.Retryable, err
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return false, err
			}
			return true, err
		}
		*out = res
		return false, nil
	})
}

func (o *Orchestrator) failItem(ctx context.Context, run *jobRun, item domain.Item, attempts int, message string) {
	if err := o.store.MarkItemFailed(ctx, item.ID, message, attempts); err != nil {
		o.logger.Error().Err(err).Str("item_id", item.ID).Msg("orchestrator: persist failed item failed")
	}
	o.persistMark(ctx, run, false)
	o.logger.Warn().
		Str("job_id", run.job.ID).
		Str("item_id", item.ID).
		Int("attempts", attempts).
		Str("reason", message).
		Msg("orchestrator: item failed")
}

// persistMark applies a terminal item outcome to the tracker and writes the
// resulting counters. Mark and write happen under one lock so counter rows
// only ever move forward.
func (o *Orchestrator) persistMark(ctx context.Context, run *jobRun, succeeded bool) {
	run.persistMu.Lock()
	defer run.persistMu.Unlock()
	var (
		snap progress.Snapshot
		err  error
	)
	if succeeded {
		snap, err = run.tracker.MarkSucceeded()
	} else {
		snap, err = run.tracker.MarkFailed()
	}
	if err != nil {
		o.logger.Warn().Err(err).Str("job_id", run.job.ID).Msg("orchestrator: mark after job finished")
		return
	}
	if err := o.store.UpdateCounters(ctx, run.job.ID, snap.Completed, snap.Failed); err != nil {
		o.logger.Error().Err(err).Str("job_id", run.job.ID).Msg("orchestrator: counter update failed")
	}
}

// finalize writes the terminal job row, emits the finished event and clears
// the job's cancellation flag and heartbeat.
func (o *Orchestrator) finalize(ctx context.Context, job *domain.Job, status domain.JobStatus, snap progress.Snapshot, details string) error {
	if err := o.store.FinalizeJob(ctx, job.ID, status, details, snap.Completed, snap.Failed); err != nil {
		if errors.Is(err, domain.ErrJobFinalized) {
			o.logger.Warn().Str("job_id", job.ID).Msg("orchestrator: job already finalized elsewhere")
			return nil
		}
		return fmt.Errorf("finalize job %s: %w", job.ID, err)
	}
	o.logger.Info().
		Str("job_id", job.ID).
		Str("status", string(status)).
		Int("completed", snap.Completed).
		Int("failed", snap.Failed).
		Msg("orchestrator: job finished")

	if err := o.notifier.JobFinished(ctx, notify.Event{
		JobID:     job.ID,
		UserID:    job.UserID,
		Kind:      job.Kind,
		Status:    status,
		Completed: snap.Completed,
		Failed:    snap.Failed,
		Total:     snap.Total,
	}); err != nil {
		o.logger.Error().Err(err).Str("job_id", job.ID).Msg("orchestrator: finished event not published")
	}
	if err := o.cancels.Clear(ctx, job.ID); err != nil {
		o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("orchestrator: clear cancel flag failed")
	}
	if err := o.beats.Clear(ctx, job.ID); err != nil {
		o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("orchestrator: clear heartbeat failed")
	}
	return nil
}

// finalOutcome maps the last snapshot onto a terminal status. An observed
// cancellation wins over the aggregate outcome unless every item already
// reached a terminal state before the flag was seen.
func finalOutcome(snap progress.Snapshot, cancelled bool) (domain.JobStatus, string) {
	if cancelled && !snap.Done() {
		return domain.JobStatusCancelled, fmt.Sprintf("cancelled with %d of %d items completed", snap.Completed, snap.Total)
	}
	switch {
	case snap.Failed == 0:
		return domain.JobStatusCompleted, ""
	case snap.Completed == 0:
		return domain.JobStatusFailed, fmt.Sprintf("all %d items failed", snap.Total)
	default:
		return domain.JobStatusCompletedWithErrors, fmt.Sprintf("%d of %d items failed", snap.Failed, snap.Total)
	}
}

// startHeartbeat beats immediately and then on a ticker until the returned
// stop function is called.
func (o *Orchestrator) startHeartbeat(ctx context.Context, jobID string) func() {
	done := make(chan struct{})
	beat := func() {
		if err := o.beats.Beat(ctx, jobID); err != nil {
			o.logger.Warn().Err(err).Str("job_id", jobID).Msg("orchestrator: heartbeat failed")
		}
	}
	beat()
	go func() {
		ticker := time.NewTicker(o.cfg.HeartbeatEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				beat()
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

func chargeError(err error) string {
	if errors.Is(err, domain.ErrInsufficientCredits) {
		return "insufficient credits"
	}
	return "charge failed: " + err.Error()
}
