// Package orchestrator drives one batch generation job from creation to its
// terminal status: it fans items out to the provider adapter with bounded
// parallelism, updates the progress tracker and the credit ledger per item,
// persists partial results as they land, and reacts to cancellation between
// items.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"reelsmith/internal/credits"
	"reelsmith/internal/domain"
	"reelsmith/internal/infra"
	"reelsmith/internal/notify"
	"reelsmith/internal/providers"
	"reelsmith/internal/retry"
)

// Store is the persistence contract the orchestrator needs.
type Store interface {
	CreateJob(ctx context.Context, job *domain.Job, items []domain.Item) error
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	ListItems(ctx context.Context, jobID string) ([]domain.Item, error)
	MarkItemSucceeded(ctx context.Context, itemID, artifactRef string, attempts int) error
	MarkItemFailed(ctx context.Context, itemID, message string, attempts int) error
	UpdateCounters(ctx context.Context, jobID string, completed, failed int) error
	FinalizeJob(ctx context.Context, jobID string, status domain.JobStatus, errorDetails string, completed, failed int) error
}

// Ledger is the credit accounting contract.
type Ledger interface {
	PriceOf(ctx context.Context, kind domain.JobKind, provider string) (credits.Price, error)
	Charge(ctx context.Context, params credits.ChargeParams) (*domain.CreditTransaction, error)
	Refund(ctx context.Context, transactionID string) (*domain.CreditTransaction, error)
}

// CancelFlags is polled between items; in-flight provider calls always run
// to completion.
type CancelFlags interface {
	Cancelled(ctx context.Context, jobID string) (bool, error)
	Clear(ctx context.Context, jobID string) error
}

// Heartbeater records worker liveness so the sweeper can tell a slow job
// from an abandoned one.
type Heartbeater interface {
	Beat(ctx context.Context, jobID string) error
	Clear(ctx context.Context, jobID string) error
}

// Config bounds the orchestrator's concurrency and retries.
type Config struct {
	WorkersPerJob   int
	MaxItemAttempts int
	Retry           retry.Config
	HeartbeatEvery  time.Duration
}

func (c Config) withDefaults() Config {
	if c.WorkersPerJob <= 0 {
		c.WorkersPerJob = 3
	}
	if c.MaxItemAttempts <= 0 {
		c.MaxItemAttempts = 3
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry = retry.DefaultConfig()
	}
	c.Retry.MaxAttempts = c.MaxItemAttempts
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = 10 * time.Second
	}
	return c
}

// Orchestrator coordinates jobs across the store, ledger, adapters and
// cancellation plumbing. The ants pool is the global concurrency cap shared
// by all jobs; per-job parallelism is bounded separately by WorkersPerJob.
type Orchestrator struct {
	store    Store
	ledger   Ledger
	registry *providers.Registry
	cancels  CancelFlags
	beats    Heartbeater
	notifier notify.Notifier
	limits   *Limiters
	pool     *ants.Pool
	logger   infra.Logger
	cfg      Config
}

func New(store Store, ledger Ledger, registry *providers.Registry, cancels CancelFlags, beats Heartbeater, notifier notify.Notifier, limits *Limiters, pool *ants.Pool, logger infra.Logger, cfg Config) *Orchestrator {
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	return &Orchestrator{
		store:    store,
		ledger:   ledger,
		registry: registry,
		cancels:  cancels,
		beats:    beats,
		notifier: notifier,
		limits:   limits,
		pool:     pool,
		logger:   logger,
		cfg:      cfg.withDefaults(),
	}
}

// SubmitRequest is the inbound contract for one batch job.
type SubmitRequest struct {
	Kind      domain.JobKind
	ProjectID string
	UserID    string
	Items     []domain.Item
	Config    domain.ProviderConfig
}

// Submit validates the request, creates the job in pending and persists its
// items. Unsupported kind/provider pairs and empty batches fail with
// domain.ErrInvalidConfig before any work is queued. Pricing is resolved
// here as well: a missing price row blocks submission rather than silently
// falling back.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*domain.Job, error) {
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("kind %q: %w", req.Kind, domain.ErrInvalidConfig)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("zero items: %w", domain.ErrInvalidConfig)
	}
	if req.UserID == "" || req.ProjectID == "" {
		return nil, fmt.Errorf("missing user or project: %w", domain.ErrInvalidConfig)
	}
	if !o.registry.Supports(req.Kind, req.Config.Provider) {
		return nil, fmt.Errorf("provider %q unsupported for kind %q: %w", req.Config.Provider, req.Kind, domain.ErrInvalidConfig)
	}
	if _, err := o.ledger.PriceOf(ctx, req.Kind, req.Config.Provider); err != nil {
		return nil, fmt.Errorf("resolve price: %w", err)
	}

	job := &domain.Job{
		ID:             uuid.NewString(),
		ProjectID:      req.ProjectID,
		UserID:         req.UserID,
		Kind:           req.Kind,
		Status:         domain.JobStatusPending,
		TotalItems:     len(req.Items),
		Provider:       req.Config.Provider,
		Model:          req.Config.Model,
		Voice:          req.Config.Voice,
		Style:          req.Config.Style,
		AspectRatio:    req.Config.AspectRatio,
		Locale:         req.Config.Locale,
		FreeGeneration: req.Config.FreeGeneration,
	}
	items := make([]domain.Item, len(req.Items))
	copy(items, req.Items)
	for i := range items {
		items[i].ID = uuid.NewString()
		items[i].Position = i
		items[i].Status = domain.ItemStatusPending
	}
	if err := o.store.CreateJob(ctx, job, items); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	o.logger.Info().
		Str("job_id", job.ID).
		Str("kind", string(job.Kind)).
		Str("provider", job.Provider).
		Int("items", job.TotalItems).
		Msg("orchestrator: job submitted")
	return job, nil
}
