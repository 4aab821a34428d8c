package handlers_test

import (
	archivezip "archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"reelsmith/internal/domain"
	"reelsmith/internal/http/handlers"
	"reelsmith/internal/http/httpapi"
	"reelsmith/internal/middleware"
	"reelsmith/internal/orchestrator"
)

const testSecret = "handler-test-secret"

type fakeJobs struct {
	submitted *orchestrator.SubmitRequest
	job       *domain.Job
	err       error
}

func (f *fakeJobs) Submit(_ context.Context, req orchestrator.SubmitRequest) (*domain.Job, error) {
	f.submitted = &req
	if f.err != nil {
		return nil, f.err
	}
	return f.job, nil
}

type fakeReader struct {
	jobs  map[string]*domain.Job
	items map[string][]domain.Item
}

func (f *fakeReader) GetJob(_ context.Context, jobID string) (*domain.Job, error) {
	if job, ok := f.jobs[jobID]; ok {
		return job, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeReader) ListItems(_ context.Context, jobID string) ([]domain.Item, error) {
	return f.items[jobID], nil
}

type fakeCanceller struct {
	requested []string
	video     []string
	err       error
}

func (f *fakeCanceller) RequestCancel(_ context.Context, jobID string) error {
	if f.err != nil {
		return f.err
	}
	f.requested = append(f.requested, jobID)
	return nil
}

func (f *fakeCanceller) RequestCancelVideo(_ context.Context, jobID string) error {
	if f.err != nil {
		return f.err
	}
	f.video = append(f.video, jobID)
	return nil
}

type fakeCredits struct {
	account *domain.CreditsAccount
	txs     []domain.CreditTransaction
}

func (f *fakeCredits) Account(_ context.Context, userID string) (*domain.CreditsAccount, error) {
	if f.account == nil {
		return nil, domain.ErrNotFound
	}
	return f.account, nil
}

func (f *fakeCredits) Transactions(_ context.Context, _ string, _ int) ([]domain.CreditTransaction, error) {
	return f.txs, nil
}

type fakeSweep struct {
	swept      int
	requeued   string
	requeueErr error
}

func (f *fakeSweep) Sweep(context.Context) (int, error) { return f.swept, nil }

func (f *fakeSweep) Requeue(_ context.Context, jobID string) (string, error) {
	if f.requeueErr != nil {
		return "", f.requeueErr
	}
	return f.requeued, nil
}

type fakeRebuilder struct {
	userID string
	err    error
}

func (f *fakeRebuilder) Rebuild(_ context.Context, userID string) error {
	f.userID = userID
	return f.err
}

type fakeTokens struct {
	provider string
	token    string
}

func (f *fakeTokens) SetToken(_ context.Context, provider, token string) error {
	f.provider = provider
	f.token = token
	return nil
}

type fakeArtifacts struct{ files map[string][]byte }

func (f *fakeArtifacts) Load(_ context.Context, key string) ([]byte, error) {
	data, ok := f.files[key]
	if !ok {
		return nil, fmt.Errorf("no such artifact %q", key)
	}
	return data, nil
}

func newServer(t *testing.T, app *handlers.App) http.Handler {
	t.Helper()
	return httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:       testSecret,
		AdminToken:      "admin-token",
		DefaultLocale:   "en",
		SubmitPerSecond: 1000,
		SubmitBurst:     1000,
		Logger:          zerolog.Nop(),
	})
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := middleware.SignToken(testSecret, middleware.TokenClaims{
		Sub: userID,
		Exp: time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + token
}

func doJSON(t *testing.T, h http.Handler, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if user != "" {
		req.Header.Set("Authorization", bearer(t, user))
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestJobsSubmit(t *testing.T) {
	jobs := &fakeJobs{job: &domain.Job{
		ID:         "job-1",
		ProjectID:  "project-1",
		UserID:     "user-1",
		Kind:       domain.JobKindImage,
		Status:     domain.JobStatusPending,
		Provider:   "gemini",
		TotalItems: 2,
	}}
	app := &handlers.App{Jobs: jobs, Logger: zerolog.Nop()}
	h := newServer(t, app)

	body := `{"kind":"image","project_id":"project-1","provider":"gemini","aspect_ratio":"9:16",
		"items":[{"prompt":"castle at dawn","scene_id":"scene-1"},{"prompt":"dragon closeup"}]}`
	rec := doJSON(t, h, http.MethodPost, "/v1/jobs", "user-1", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.JobID != "job-1" || resp.Status != "pending" {
		t.Fatalf("resp = %+v", resp)
	}
	if jobs.submitted.UserID != "user-1" || len(jobs.submitted.Items) != 2 {
		t.Fatalf("submitted = %+v", jobs.submitted)
	}
	if jobs.submitted.Items[0].SceneID != "scene-1" {
		t.Fatalf("scene id not carried: %+v", jobs.submitted.Items[0])
	}
	if jobs.submitted.Config.AspectRatio != "9:16" {
		t.Fatalf("config = %+v", jobs.submitted.Config)
	}
}

func TestJobsSubmitErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid config", fmt.Errorf("kind: %w", domain.ErrInvalidConfig), http.StatusBadRequest, "invalid_config"},
		{"missing pricing", fmt.Errorf("price: %w", domain.ErrPricingNotFound), http.StatusConflict, "pricing_not_found"},
		{"internal", fmt.Errorf("db down"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app := &handlers.App{Jobs: &fakeJobs{err: tc.err}, Logger: zerolog.Nop()}
			h := newServer(t, app)
			rec := doJSON(t, h, http.MethodPost, "/v1/jobs", "user-1",
				`{"kind":"image","project_id":"p","provider":"gemini","items":[{"prompt":"x"}]}`)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if !strings.Contains(rec.Body.String(), tc.wantCode) {
				t.Fatalf("body = %s", rec.Body.String())
			}
		})
	}
}

func TestJobsSubmitUnauthenticated(t *testing.T) {
	app := &handlers.App{Jobs: &fakeJobs{}, Logger: zerolog.Nop()}
	h := newServer(t, app)
	rec := doJSON(t, h, http.MethodPost, "/v1/jobs", "", `{"kind":"image"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestJobStatus(t *testing.T) {
	reader := &fakeReader{
		jobs: map[string]*domain.Job{"job-1": {
			ID:             "job-1",
			UserID:         "user-1",
			Kind:           domain.JobKindImage,
			Status:         domain.JobStatusProcessing,
			TotalItems:     3,
			CompletedItems: 1,
			FailedItems:    1,
		}},
		items: map[string][]domain.Item{"job-1": {
			{ID: "item-1", Position: 0, Status: domain.ItemStatusSucceeded, ArtifactRef: "generated/a.png"},
			{ID: "item-2", Position: 1, Status: domain.ItemStatusFailed, ErrorMessage: "rejected"},
			{ID: "item-3", Position: 2, Status: domain.ItemStatusPending},
		}},
	}
	app := &handlers.App{Store: reader, Logger: zerolog.Nop()}
	h := newServer(t, app)

	rec := doJSON(t, h, http.MethodGet, "/v1/jobs/job-1", "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Progress int `json:"progress"`
		Items    []struct {
			Status string `json:"status"`
		} `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Progress != 67 {
		t.Fatalf("progress = %d, want 67", resp.Progress)
	}
	if len(resp.Items) != 3 {
		t.Fatalf("items = %d, want 3", len(resp.Items))
	}

	// Another user sees 404 for the same job, not 403, to avoid leaking ids.
	rec = doJSON(t, h, http.MethodGet, "/v1/jobs/job-1", "user-2", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cross-user status = %d, want 404", rec.Code)
	}
}

func TestJobCancel(t *testing.T) {
	reader := &fakeReader{jobs: map[string]*domain.Job{"job-1": {ID: "job-1", UserID: "user-1", Kind: domain.JobKindVideo}}}
	cancels := &fakeCanceller{}
	app := &handlers.App{Store: reader, Cancels: cancels, Logger: zerolog.Nop()}
	h := newServer(t, app)

	rec := doJSON(t, h, http.MethodPost, "/v1/jobs/job-1/cancel", "user-1", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(cancels.requested) != 1 || cancels.requested[0] != "job-1" {
		t.Fatalf("requested = %v", cancels.requested)
	}

	rec = doJSON(t, h, http.MethodPost, "/v1/jobs/job-1/cancel-video", "user-1", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("video cancel status = %d", rec.Code)
	}
	if len(cancels.video) != 1 {
		t.Fatalf("video requests = %v", cancels.video)
	}
}

func TestJobCancelTerminal(t *testing.T) {
	reader := &fakeReader{jobs: map[string]*domain.Job{"job-1": {ID: "job-1", UserID: "user-1"}}}
	cancels := &fakeCanceller{err: fmt.Errorf("job: %w", domain.ErrNotCancellable)}
	app := &handlers.App{Store: reader, Cancels: cancels, Logger: zerolog.Nop()}
	h := newServer(t, app)

	rec := doJSON(t, h, http.MethodPost, "/v1/jobs/job-1/cancel", "user-1", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestCreditsEndpoints(t *testing.T) {
	credits := &fakeCredits{
		account: &domain.CreditsAccount{UserID: "user-1", Balance: 120, TotalSpent: 80},
		txs: []domain.CreditTransaction{
			{ID: "tx-1", Amount: -10, Kind: domain.JobKindImage, Provider: "gemini", RealCost: 39_000},
			{ID: "tx-2", Amount: 10, RefundOf: "tx-1"},
		},
	}
	app := &handlers.App{Credits: credits, Logger: zerolog.Nop()}
	h := newServer(t, app)

	rec := doJSON(t, h, http.MethodGet, "/v1/credits/balance", "user-1", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"balance":120`) {
		t.Fatalf("balance resp = %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/v1/credits/transactions?limit=10", "user-1", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"refund_of":"tx-1"`) {
		t.Fatalf("transactions resp = %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/v1/credits/transactions?limit=-1", "user-1", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("negative limit status = %d, want 400", rec.Code)
	}
}

func TestAdminSweep(t *testing.T) {
	app := &handlers.App{Sweeper: &fakeSweep{swept: 2}, Logger: zerolog.Nop()}
	h := newServer(t, app)

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/sweep", nil)
	req.Header.Set("X-Admin-Token", "admin-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"swept":2`) {
		t.Fatalf("sweep resp = %d %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/admin/sweep", nil)
	req.Header.Set("X-Admin-Token", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("bad token status = %d, want 403", rec.Code)
	}
}

func TestAdminRequeue(t *testing.T) {
	send := func(sweep *fakeSweep) *httptest.ResponseRecorder {
		app := &handlers.App{Sweeper: sweep, Logger: zerolog.Nop()}
		h := newServer(t, app)
		req := httptest.NewRequest(http.MethodPost, "/v1/admin/jobs/job-1/requeue", nil)
		req.Header.Set("X-Admin-Token", "admin-token")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := send(&fakeSweep{requeued: "job-2"})
	if rec.Code != http.StatusCreated || !strings.Contains(rec.Body.String(), `"job_id":"job-2"`) {
		t.Fatalf("requeue resp = %d %s", rec.Code, rec.Body.String())
	}

	rec = send(&fakeSweep{requeueErr: domain.ErrJobNotStale})
	if rec.Code != http.StatusConflict {
		t.Fatalf("not-stale status = %d, want 409", rec.Code)
	}

	rec = send(&fakeSweep{requeueErr: domain.ErrNotFound})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing job status = %d, want 404", rec.Code)
	}

	rec = send(&fakeSweep{})
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), "nothing_to_requeue") {
		t.Fatalf("empty requeue resp = %d %s", rec.Code, rec.Body.String())
	}
}

func TestAdminRebuildAccount(t *testing.T) {
	send := func(rebuilder *fakeRebuilder) *httptest.ResponseRecorder {
		app := &handlers.App{Accounts: rebuilder, Logger: zerolog.Nop()}
		h := newServer(t, app)
		req := httptest.NewRequest(http.MethodPost, "/v1/admin/credits/user-1/rebuild", nil)
		req.Header.Set("X-Admin-Token", "admin-token")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rebuilder := &fakeRebuilder{}
	rec := send(rebuilder)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"rebuilt"`) {
		t.Fatalf("rebuild resp = %d %s", rec.Code, rec.Body.String())
	}
	if rebuilder.userID != "user-1" {
		t.Fatalf("rebuilt user = %q, want user-1", rebuilder.userID)
	}

	rec = send(&fakeRebuilder{err: domain.ErrNotFound})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing account status = %d, want 404", rec.Code)
	}
}

func TestAdminSetToken(t *testing.T) {
	tokens := &fakeTokens{}
	app := &handlers.App{Tokens: tokens, Logger: zerolog.Nop()}
	h := newServer(t, app)

	req := httptest.NewRequest(http.MethodPut, "/v1/admin/integrations/replicate",
		strings.NewReader(`{"token":"r8_new"}`))
	req.Header.Set("X-Admin-Token", "admin-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if tokens.provider != "replicate" || tokens.token != "r8_new" {
		t.Fatalf("stored %q/%q", tokens.provider, tokens.token)
	}

	req = httptest.NewRequest(http.MethodPut, "/v1/admin/integrations/replicate",
		strings.NewReader(`{"token":"  "}`))
	req.Header.Set("X-Admin-Token", "admin-token")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank token status = %d, want 400", rec.Code)
	}
}

func TestJobArtifacts(t *testing.T) {
	store := &fakeReader{
		jobs: map[string]*domain.Job{"job-1": {ID: "job-1", UserID: "user-1", Status: domain.JobStatusCompleted}},
		items: map[string][]domain.Item{"job-1": {
			{ID: "i0", Position: 0, Status: domain.ItemStatusSucceeded, ArtifactRef: "jobs/job-1/0.png"},
			{ID: "i1", Position: 1, Status: domain.ItemStatusFailed},
			{ID: "i2", Position: 2, Status: domain.ItemStatusSucceeded, ArtifactRef: "jobs/job-1/2.png"},
		}},
	}
	artifacts := &fakeArtifacts{files: map[string][]byte{
		"jobs/job-1/0.png": []byte("png-zero"),
		"jobs/job-1/2.png": []byte("png-two"),
	}}
	app := &handlers.App{Store: store, Artifacts: artifacts, Logger: zerolog.Nop()}
	h := newServer(t, app)

	rec := doJSON(t, h, http.MethodGet, "/v1/jobs/job-1/artifacts", "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/zip" {
		t.Fatalf("content type = %q", ct)
	}
	zr, err := archivezip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("archive entries = %d, want 2", len(zr.File))
	}
	wantNames := []string{"000_0.png", "002_2.png"}
	for i, f := range zr.File {
		if f.Name != wantNames[i] {
			t.Fatalf("entry %d = %q, want %q", i, f.Name, wantNames[i])
		}
	}

	rec = doJSON(t, h, http.MethodGet, "/v1/jobs/job-1/artifacts", "user-2", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cross-user status = %d, want 404", rec.Code)
	}
}

func TestJobArtifactsEmpty(t *testing.T) {
	store := &fakeReader{
		jobs: map[string]*domain.Job{"job-1": {ID: "job-1", UserID: "user-1", Status: domain.JobStatusFailed}},
		items: map[string][]domain.Item{"job-1": {
			{ID: "i0", Position: 0, Status: domain.ItemStatusFailed},
		}},
	}
	app := &handlers.App{Store: store, Artifacts: &fakeArtifacts{}, Logger: zerolog.Nop()}
	h := newServer(t, app)

	rec := doJSON(t, h, http.MethodGet, "/v1/jobs/job-1/artifacts", "user-1", "")
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "no_artifacts") {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}
