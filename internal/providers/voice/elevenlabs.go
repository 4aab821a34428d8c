// Package voice adapts text-to-speech APIs to the provider contract.
package voice

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

// elevenLabsRealCostMicros is the metered list price per synthesized line.
const elevenLabsRealCostMicros = 18_000

const defaultVoiceID = "21m00Tcm4TlvDq8ikWAM"

// ElevenLabsAdapter synthesizes one voiceover line per item.
type ElevenLabsAdapter struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	storer     ArtifactStorer
}

// ArtifactStorer persists the returned audio bytes; ElevenLabs streams the
// mp3 back inline rather than hosting it.
type ArtifactStorer interface {
	Store(ctx context.Context, key string, data []byte) (string, error)
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

func NewElevenLabsAdapter(baseURL, apiKey string, httpClient *http.Client, storer ArtifactStorer) *ElevenLabsAdapter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &ElevenLabsAdapter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		storer:     storer,
	}
}

func (a *ElevenLabsAdapter) Generate(ctx context.Context, req providers.Request) (*providers.Result, error) {
	voiceID := req.Voice
	if voiceID == "" {
		voiceID = defaultVoiceID
	}
	model := req.Model
	if model == "" {
		model = "eleven_multilingual_v2"
	}
	payload := ttsRequest{
		Text:    req.Prompt,
		ModelID: model,
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, providers.NewError(providers.ErrInvalidInput, err.Error())
	}
	endpoint := fmt.Sprintf("%s/text-to-speech/%s", a.baseURL, voiceID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, providers.NewError(providers.ErrInvalidInput, err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")
	httpReq.Header.Set("xi-api-key", a.apiKey)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, providers.NewError(providers.ErrProviderUnavailable, err.Error())
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, providers.NewError(providers.ErrProviderUnavailable, err.Error())
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		kind := providers.ClassifyHTTPStatus(resp.StatusCode)
		return nil, providers.NewError(kind, strings.TrimSpace(string(data)))
	}

	key := fmt.Sprintf("generated/voiceovers/%s/%s.mp3", req.JobID, req.ItemID)
	ref, err := a.storer.Store(ctx, key, data)
	if err != nil {
		return nil, &providers.StorageError{Err: err}
	}

	return &providers.Result{
		ArtifactRef: ref,
		Format:      "audio/mpeg",
		RealCost:    elevenLabsRealCostMicros,
	}, nil
}

var _ providers.Adapter = (*ElevenLabsAdapter)(nil)
