// Package image adapts external image generation APIs to the provider
// contract.
package image

import (
	"context"
	"errors"

	"reelsmith/internal/providers"
	"reelsmith/internal/providers/genai"
)

// geminiRealCostMicros is the metered list price per generated image.
const geminiRealCostMicros = 39_000

// GeminiAdapter generates one image per item through the Gemini API.
type GeminiAdapter struct {
	client *genai.Client
}

func NewGeminiAdapter(client *genai.Client) *GeminiAdapter {
	return &GeminiAdapter{client: client}
}

func (a *GeminiAdapter) Generate(ctx context.Context, req providers.Request) (*providers.Result, error) {
	artifact, err := a.client.GenerateImage(ctx, genai.ImageRequest{
		Prompt:      req.Prompt,
		Model:       req.Model,
		AspectRatio: req.AspectRatio,
		RequestID:   req.ItemID,
	})
	if err != nil {
		return nil, classify(err)
	}
	return &providers.Result{
		ArtifactRef: artifact.URI,
		Format:      artifact.Format,
		RealCost:    geminiRealCostMicros,
	}, nil
}

func classify(err error) error {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		return providers.NewError(providers.ClassifyHTTPStatus(apiErr.Status), apiErr.Message)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return providers.NewError(providers.ErrUnknown, err.Error())
}

var _ providers.Adapter = (*GeminiAdapter)(nil)
