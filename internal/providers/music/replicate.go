// Package music adapts music generation APIs to the provider contract.
package music

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reelsmith/internal/providers"
)

// musicGenRealCostMicros is the metered list price per generated track.
const musicGenRealCostMicros = 120_000

// ReplicateAdapter runs MusicGen through Replicate's prediction API, which
// is asynchronous: create a prediction, then poll until it settles.
type ReplicateAdapter struct {
	baseURL      string
	apiToken     string
	modelVersion string
	httpClient   *http.Client
	pollInterval time.Duration
}

type predictionRequest struct {
	Version string         `json:"version"`
	Input   map[string]any `json:"input"`
}

type predictionResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Output any    `json:"output"`
	Error  string `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

func NewReplicateAdapter(baseURL, apiToken, modelVersion string, httpClient *http.Client) *ReplicateAdapter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &ReplicateAdapter{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiToken:     apiToken,
		modelVersion: modelVersion,
		httpClient:   httpClient,
		pollInterval: 3 * time.Second,
	}
}

func (a *ReplicateAdapter) Generate(ctx context.Context, req providers.Request) (*providers.Result, error) {
	input := map[string]any{
		"prompt":        req.Prompt,
		"output_format": "mp3",
	}
	if req.Style != "" {
		input["prompt"] = req.Style + ": " + req.Prompt
	}
	pred, err := a.create(ctx, predictionRequest{Version: a.modelVersion, Input: input})
	if err != nil {
		return nil, err
	}
	for pred.Status == "starting" || pred.Status == "processing" {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(a.pollInterval):
		}
		pred, err = a.fetch(ctx, pred)
		if err != nil {
			return nil, err
		}
	}
	switch pred.Status {
	case "succeeded":
		ref := outputURL(pred.Output)
		if ref == "" {
			return nil, providers.NewError(providers.ErrUnknown, "prediction succeeded without output")
		}
		return &providers.Result{ArtifactRef: ref, Format: "audio/mpeg", RealCost: musicGenRealCostMicros}, nil
	case "canceled":
		return nil, providers.NewError(providers.ErrProviderUnavailable, "prediction canceled upstream")
	default:
		return nil, providers.NewError(providers.ErrUnknown, pred.Error)
	}
}

func (a *ReplicateAdapter) create(ctx context.Context, payload predictionRequest) (*predictionResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, providers.NewError(providers.ErrInvalidInput, err.Error())
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/predictions", bytes.NewReader(body))
	if err != nil {
		return nil, providers.NewError(providers.ErrInvalidInput, err.Error())
	}
	return a.do(httpReq)
}

func (a *ReplicateAdapter) fetch(ctx context.Context, pred *predictionResponse) (*predictionResponse, error) {
	endpoint := pred.URLs.Get
	if endpoint == "" {
		endpoint = fmt.Sprintf("%s/predictions/%s", a.baseURL, pred.ID)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, providers.NewError(providers.ErrInvalidInput, err.Error())
	}
	return a.do(httpReq)
}

func (a *ReplicateAdapter) do(httpReq *http.Request) (*predictionResponse, error) {
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Token "+a.apiToken)
	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		if httpReq.Context().Err() != nil {
			return nil, httpReq.Context().Err()
		}
		return nil, providers.NewError(providers.ErrProviderUnavailable, err.Error())
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, providers.NewError(providers.ErrProviderUnavailable, err.Error())
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		kind := providers.ClassifyHTTPStatus(resp.StatusCode)
		return nil, providers.NewError(kind, strings.TrimSpace(string(data)))
	}
	var pred predictionResponse
	if err := json.Unmarshal(data, &pred); err != nil {
		return nil, providers.NewError(providers.ErrUnknown, fmt.Sprintf("decode prediction: %v", err))
	}
	return &pred, nil
}

// outputURL tolerates the two shapes Replicate returns: a bare string or a
// list of URLs.
func outputURL(output any) string {
	switch v := output.(type) {
	case string:
		return v
	case []any:
		for _, entry := range v {
			if s, ok := entry.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

var _ providers.Adapter = (*ReplicateAdapter)(nil)
