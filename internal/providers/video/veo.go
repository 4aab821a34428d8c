// Package video adapts external video generation APIs to the provider
// contract. Video generation is long-running on every provider we use, so
// adapters block until the remote operation settles.
package video

import (
	"context"
	"errors"

	"reelsmith/internal/providers"
	"reelsmith/internal/providers/genai"
)

// veoRealCostMicros is the metered list price per generated clip.
const veoRealCostMicros = 400_000

// VeoAdapter generates one clip per item through the Gemini Veo endpoint.
type VeoAdapter struct {
	client *genai.Client
}

func NewVeoAdapter(client *genai.Client) *VeoAdapter {
	return &VeoAdapter{client: client}
}

func (a *VeoAdapter) Generate(ctx context.Context, req providers.Request) (*providers.Result, error) {
	artifact, err := a.client.GenerateVideo(ctx, genai.VideoRequest{
		Prompt:      req.Prompt,
		Model:       req.Model,
		AspectRatio: req.AspectRatio,
		RequestID:   req.ItemID,
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
	return &providers.Result{
		ArtifactRef: artifact.URI,
		Format:      artifact.Format,
		RealCost:    veoRealCostMicros,
	}, nil
}

var _ providers.Adapter = (*VeoAdapter)(nil)
