package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"reelsmith/internal/domain"
)

// AdminSweep runs one stuck-job sweep immediately instead of waiting for
// the background interval. Mounted behind the admin token.
func (a *App) AdminSweep(w http.ResponseWriter, r *http.Request) {
	swept, err := a.Sweeper.Sweep(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("handlers: manual sweep failed")
		a.error(w, http.StatusInternalServerError, "internal", "sweep failed")
		return
	}
	a.json(w, http.StatusOK, map[string]int{"swept": swept})
}

// AdminRequeue re-runs the unfinished items of a force-failed job, for the
// case where the sweeper marked a job stuck but crashed before requeueing.
func (a *App) AdminRequeue(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	newJobID, err := a.Sweeper.Requeue(r.Context(), jobID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	case errors.Is(err, domain.ErrJobNotStale):
		a.error(w, http.StatusConflict, "not_stale", "job is not a force-failed stuck job")
		return
	case err != nil:
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("handlers: manual requeue failed")
		a.error(w, http.StatusInternalServerError, "internal", "requeue failed")
		return
	}
	if newJobID == "" {
		a.error(w, http.StatusConflict, "nothing_to_requeue", "all items already succeeded")
		return
	}
	a.json(w, http.StatusCreated, map[string]string{"job_id": newJobID, "requeued_from": jobID})
}

// AdminRebuildAccount recomputes one user's cached credit aggregate as a
// fold over the transaction log, for reconciling a drifted account row.
func (a *App) AdminRebuildAccount(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	if err := a.Accounts.Rebuild(r.Context(), userID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "no credit account")
			return
		}
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("handlers: account rebuild failed")
		a.error(w, http.StatusInternalServerError, "internal", "rebuild failed")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"user_id": userID, "status": "rebuilt"})
}

// AdminSetToken stores or rotates the API token for one provider. The
// worker picks the new token up on its next start.
func (a *App) AdminSetToken(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.error(w, http.StatusBadRequest, "invalid_body", "invalid JSON body")
		return
	}
	if strings.TrimSpace(body.Token) == "" {
		a.error(w, http.StatusBadRequest, "invalid_body", "token is required")
		return
	}
	if err := a.Tokens.SetToken(r.Context(), provider, body.Token); err != nil {
		a.Logger.Error().Err(err).Str("provider", provider).Msg("handlers: set token failed")
		a.error(w, http.StatusInternalServerError, "internal", "could not store token")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"provider": provider, "status": "stored"})
}
