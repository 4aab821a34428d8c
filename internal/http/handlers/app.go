// Package handlers exposes the job, credit and admin operations over JSON
// HTTP. Handlers validate and translate; all domain behavior lives behind
// the service interfaces.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"reelsmith/internal/domain"
	"reelsmith/internal/infra"
	"reelsmith/internal/middleware"
	"reelsmith/internal/orchestrator"
)

// JobService accepts new batch jobs.
type JobService interface {
	Submit(ctx context.Context, req orchestrator.SubmitRequest) (*domain.Job, error)
}

// JobReader serves job snapshots.
type JobReader interface {
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	ListItems(ctx context.Context, jobID string) ([]domain.Item, error)
}

// Canceller flags running jobs for cooperative cancellation.
type Canceller interface {
	RequestCancel(ctx context.Context, jobID string) error
	RequestCancelVideo(ctx context.Context, jobID string) error
}

// CreditReader serves balances and ledger history.
type CreditReader interface {
	Account(ctx context.Context, userID string) (*domain.CreditsAccount, error)
	Transactions(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error)
}

// AccountRebuilder recomputes a cached credit aggregate from the
// transaction log.
type AccountRebuilder interface {
	Rebuild(ctx context.Context, userID string) error
}

// SweepRunner triggers one stuck-job sweep on demand and requeues the
// unfinished work of a force-failed job.
type SweepRunner interface {
	Sweep(ctx context.Context) (int, error)
	Requeue(ctx context.Context, jobID string) (string, error)
}

// TokenWriter rotates stored provider API tokens.
type TokenWriter interface {
	SetToken(ctx context.Context, provider, token string) error
}

// ArtifactLoader reads stored artifact bytes by reference.
type ArtifactLoader interface {
	Load(ctx context.Context, key string) ([]byte, error)
}

type App struct {
	Jobs      JobService
	Store     JobReader
	Cancels   Canceller
	Credits   CreditReader
	Accounts  AccountRebuilder
	Sweeper   SweepRunner
	Tokens    TokenWriter
	Artifacts ArtifactLoader
	Logger    infra.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}
