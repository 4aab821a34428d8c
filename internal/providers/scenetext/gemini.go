package scenetext

import (
	"context"
	"errors"
	"strings"

	"reelsmith/internal/providers"
	"reelsmith/internal/providers/genai"
)

// geminiRealCostMicros is the metered list price per scene completion.
const geminiRealCostMicros = 1_200

// GeminiAdapter generates scene text through the Gemini API.
type GeminiAdapter struct {
	client *genai.Client
}

func NewGeminiAdapter(client *genai.Client) *GeminiAdapter {
	return &GeminiAdapter{client: client}
}

func (a *GeminiAdapter) Generate(ctx context.Context, req providers.Request) (*providers.Result, error) {
	artifact, err := a.client.GenerateText(ctx, genai.TextRequest{
		Prompt:    req.Prompt,
		Model:     req.Model,
		RequestID: req.ItemID,
	})
	if err != nil {
		var apiErr *genai.APIError
		if errors.As(err, &apiErr) {
			return nil, providers.NewError(providers.ClassifyHTTPStatus(apiErr.Status), apiErr.Message)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, providers.NewError(providers.ErrUnknown, err.Error())
	}
	text := strings.TrimSpace(artifact.Text)
	if text == "" {
		return nil, providers.NewError(providers.ErrUnknown, "empty completion")
	}
	return &providers.Result{
		ArtifactRef: text,
		Format:      "text/plain",
		RealCost:    geminiRealCostMicros,
	}, nil
}

var _ providers.Adapter = (*GeminiAdapter)(nil)
