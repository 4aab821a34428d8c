package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reelsmith/internal/providers"
)

// h100RatePerSecondMicros prices self-hosted GPU time. Modal bills the H100
// by the second; the endpoint reports how long inference took so the real
// cost is only known after the call (post-charge pricing mode).
const h100RatePerSecondMicros = 1_097

// ModalAdapter calls the self-hosted Qwen-Image endpoint deployed on Modal.
type ModalAdapter struct {
	baseURL    string
	token      string
	httpClient *http.Client
	storer     ArtifactStorer
}

// ArtifactStorer persists raw artifact bytes and returns a stable reference.
// The modal endpoint returns inline base64 rather than a hosted URL, so the
// adapter has to hand the bytes somewhere before it can report a reference.
type ArtifactStorer interface {
	Store(ctx context.Context, key string, data []byte) (string, error)
}

type modalGenerateRequest struct {
	Prompt            string  `json:"prompt"`
	AspectRatio       string  `json:"aspect_ratio"`
	Resolution        string  `json:"resolution"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	GuidanceScale     float64 `json:"guidance_scale"`
}

type modalGenerateResponse struct {
	Image      string  `json:"image"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	GPUSeconds float64 `json:"gpu_seconds"`
}

func NewModalAdapter(baseURL, token string, httpClient *http.Client, storer ArtifactStorer) *ModalAdapter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Minute}
	}
	return &ModalAdapter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
		storer:     storer,
	}
}

func (a *ModalAdapter) Generate(ctx context.Context, req providers.Request) (*providers.Result, error) {
	aspect := req.AspectRatio
	if aspect == "" {
		aspect = "1:1"
	}
	payload := modalGenerateRequest{
		Prompt:            req.Prompt,
		AspectRatio:       aspect,
		Resolution:        "2k",
		NumInferenceSteps: 50,
		GuidanceScale:     4.0,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, providers.NewError(providers.ErrInvalidInput, err.Error())
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, providers.NewError(providers.ErrInvalidInput, err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, providers.NewError(providers.ErrProviderUnavailable, err.Error())
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, providers.NewError(providers.ErrProviderUnavailable, err.Error())
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		kind := providers.ClassifyHTTPStatus(resp.StatusCode)
		return nil, providers.NewError(kind, strings.TrimSpace(string(data)))
	}

	var out modalGenerateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, providers.NewError(providers.ErrUnknown, fmt.Sprintf("decode response: %v", err))
	}
	raw, err := decodeDataURI(out.Image)
	if err != nil {
		return nil, providers.NewError(providers.ErrUnknown, err.Error())
	}

	key := fmt.Sprintf("generated/images/%s/%s.png", req.JobID, req.ItemID)
	ref, err := a.storer.Store(ctx, key, raw)
	if err != nil {
		return nil, &providers.StorageError{Err: err}
	}

	return &providers.Result{
		ArtifactRef: ref,
		Format:      "image/png",
		RealCost:    int64(out.GPUSeconds * h100RatePerSecondMicros),
	}, nil
}

// decodeDataURI strips the "data:image/png;base64," prefix and decodes the
// payload.
func decodeDataURI(uri string) ([]byte, error) {
	idx := strings.Index(uri, "base64,")
	if idx < 0 {
		return nil, fmt.Errorf("image payload is not a base64 data uri")
	}
	raw, err := base64.StdEncoding.DecodeString(uri[idx+len("base64,"):])
	if err != nil {
		return nil, fmt.Errorf("decode image payload: %w", err)
	}
	return raw, nil
}

var _ providers.Adapter = (*ModalAdapter)(nil)
