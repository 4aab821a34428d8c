// Package scenetext adapts chat-completion APIs to scene text generation.
// One item is one scene: the prompt carries the script excerpt plus staging
// directions, the artifact is the generated scene text itself.
package scenetext

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

// openAIRealCostMicros is the metered list price per scene completion.
const openAIRealCostMicros = 2_500

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIAdapter generates scene text through the chat completions endpoint.
type OpenAIAdapter struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func NewOpenAIAdapter(baseURL, apiKey string, httpClient *http.Client) *OpenAIAdapter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIAdapter{baseURL: baseURL, apiKey: apiKey, httpClient: httpClient}
}

func (a *OpenAIAdapter) Generate(ctx context.Context, req providers.Request) (*providers.Result, error) {
	model := req.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	payload := chatRequest{
		Model:       model,
		Temperature: 0.6,
		Messages: []chatMessage{
			{Role: "system", Content: "You write vivid scene descriptions for an animated short film. Answer with the scene text only."},
			{Role: "user", Content: req.Prompt},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, providers.NewError(providers.ErrInvalidInput, err.Error())
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, providers.NewError(providers.ErrInvalidInput, err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
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

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, providers.NewError(providers.ErrUnknown, fmt.Sprintf("decode response: %v", err))
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return nil, providers.NewError(providers.ErrUnknown, "empty completion")
	}

	return &providers.Result{
		ArtifactRef: strings.TrimSpace(out.Choices[0].Message.Content),
		Format:      "text/plain",
		RealCost:    openAIRealCostMicros,
	}, nil
}

var _ providers.Adapter = (*OpenAIAdapter)(nil)
