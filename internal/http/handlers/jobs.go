package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"

	"reelsmith/internal/domain"
	"reelsmith/internal/middleware"
	"reelsmith/internal/orchestrator"
	"reelsmith/pkg/zip"
)

type submitItem struct {
	Prompt      string `json:"prompt"`
	SceneID     string `json:"scene_id,omitempty"`
	CharacterID string `json:"character_id,omitempty"`
}

type submitJobRequest struct {
	Kind           string       `json:"kind"`
	ProjectID      string       `json:"project_id"`
	Provider       string       `json:"provider"`
	Model          string       `json:"model,omitempty"`
	Voice          string       `json:"voice,omitempty"`
	Style          string       `json:"style,omitempty"`
	AspectRatio    string       `json:"aspect_ratio,omitempty"`
	FreeGeneration bool         `json:"free_generation,omitempty"`
	Items          []submitItem `json:"items"`
}

type jobItemResponse struct {
	ID           string `json:"id"`
	Position     int    `json:"position"`
	SceneID      string `json:"scene_id,omitempty"`
	Status       string `json:"status"`
	ArtifactRef  string `json:"artifact_ref,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	Attempts     int    `json:"attempts"`
}

type jobResponse struct {
	JobID          string            `json:"job_id"`
	ProjectID      string            `json:"project_id"`
	Kind           string            `json:"kind"`
	Status         string            `json:"status"`
	Provider       string            `json:"provider"`
	TotalItems     int               `json:"total_items"`
	CompletedItems int               `json:"completed_items"`
	FailedItems    int               `json:"failed_items"`
	Progress       int               `json:"progress"`
	ErrorDetails   string            `json:"error_details,omitempty"`
	RequeuedFrom   string            `json:"requeued_from,omitempty"`
	Items          []jobItemResponse `json:"items,omitempty"`
}

func toJobResponse(job *domain.Job, items []domain.Item) jobResponse {
	resp := jobResponse{
		JobID:          job.ID,
		ProjectID:      job.ProjectID,
		Kind:           string(job.Kind),
		Status:         string(job.Status),
		Provider:       job.Provider,
		TotalItems:     job.TotalItems,
		CompletedItems: job.CompletedItems,
		FailedItems:    job.FailedItems,
		Progress:       job.Progress(),
		ErrorDetails:   job.ErrorDetails,
		RequeuedFrom:   job.RequeuedFrom,
	}
	for _, item := range items {
		resp.Items = append(resp.Items, jobItemResponse{
			ID:           item.ID,
			Position:     item.Position,
			SceneID:      item.SceneID,
			Status:       string(item.Status),
			ArtifactRef:  item.ArtifactRef,
			ErrorMessage: item.ErrorMessage,
			Attempts:     item.Attempts,
		})
	}
	return resp
}

func (a *App) JobsSubmit(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	items := make([]domain.Item, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.Item{
			Prompt:      item.Prompt,
			SceneID:     item.SceneID,
			CharacterID: item.CharacterID,
		})
	}
	job, err := a.Jobs.Submit(r.Context(), orchestrator.SubmitRequest{
		Kind:      domain.JobKind(req.Kind),
		ProjectID: req.ProjectID,
		UserID:    userID,
		Items:     items,
		Config: domain.ProviderConfig{
			Provider:       req.Provider,
			Model:          req.Model,
			Voice:          req.Voice,
			Style:          req.Style,
			AspectRatio:    req.AspectRatio,
			FreeGeneration: req.FreeGeneration,
			Locale:         middleware.LocaleFromContext(r.Context()),
		},
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidConfig):
			a.error(w, http.StatusBadRequest, "invalid_config", err.Error())
		case errors.Is(err, domain.ErrPricingNotFound):
			a.error(w, http.StatusConflict, "pricing_not_found", "no active price for this kind and provider")
		default:
			a.Logger.Error().Err(err).Msg("handlers: job submit failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to submit job")
		}
		return
	}
	a.json(w, http.StatusAccepted, toJobResponse(job, nil))
}

func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	job, err := a.Store.GetJob(r.Context(), jobID)
	if err != nil || job.UserID != userID {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	items, err := a.Store.ListItems(r.Context(), jobID)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("handlers: list items failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job items")
		return
	}
	a.json(w, http.StatusOK, toJobResponse(job, items))
}

// JobArtifacts streams every succeeded item's artifact as one zip archive,
// ordered by item position.
func (a *App) JobArtifacts(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	job, err := a.Store.GetJob(r.Context(), jobID)
	if err != nil || job.UserID != userID {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	items, err := a.Store.ListItems(r.Context(), jobID)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("handlers: list items failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job items")
		return
	}
	var artifacts []zip.Artifact
	for _, item := range items {
		if item.Status != domain.ItemStatusSucceeded || item.ArtifactRef == "" {
			continue
		}
		data, err := a.Artifacts.Load(r.Context(), item.ArtifactRef)
		if err != nil {
			a.Logger.Warn().Err(err).Str("job_id", jobID).Str("ref", item.ArtifactRef).
				Msg("handlers: artifact missing from storage")
			continue
		}
		artifacts = append(artifacts, zip.Artifact{
			Filename: fmt.Sprintf("%03d_%s", item.Position, path.Base(item.ArtifactRef)),
			Data:     data,
		})
	}
	if len(artifacts) == 0 {
		a.error(w, http.StatusNotFound, "no_artifacts", "job has no downloadable artifacts")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="job-%s.zip"`, jobID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(zip.ArchiveArtifacts(artifacts))
}

func (a *App) JobCancel(w http.ResponseWriter, r *http.Request) {
	a.cancel(w, r, a.Cancels.RequestCancel)
}

// JobCancelVideo is the video-only cancellation endpoint; it rejects jobs
// of any other kind so clients cannot abort cheap work through the
// long-running-job escape hatch.
func (a *App) JobCancelVideo(w http.ResponseWriter, r *http.Request) {
	a.cancel(w, r, a.Cancels.RequestCancelVideo)
}

func (a *App) cancel(w http.ResponseWriter, r *http.Request, request func(ctx context.Context, jobID string) error) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	job, err := a.Store.GetJob(r.Context(), jobID)
	if err != nil || job.UserID != userID {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	if err := request(r.Context(), jobID); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			a.error(w, http.StatusNotFound, "not_found", "job not found")
		case errors.Is(err, domain.ErrNotCancellable):
			a.error(w, http.StatusConflict, "not_cancellable", err.Error())
		default:
			a.Logger.Error().Err(err).Str("job_id", jobID).Msg("handlers: cancel failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to request cancellation")
		}
		return
	}
	a.json(w, http.StatusAccepted, map[string]string{"job_id": jobID, "status": "cancelling"})
}
