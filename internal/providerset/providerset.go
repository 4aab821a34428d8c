// Package providerset assembles the adapter registry from configuration.
// Both the API and the worker build the same registry so a job accepted by
// one is runnable by the other.
package providerset

import (
	"context"

	"reelsmith/internal/domain"
	"reelsmith/internal/infra"
	"reelsmith/internal/infra/credentials"
	"reelsmith/internal/providers"
	"reelsmith/internal/providers/genai"
	"reelsmith/internal/providers/image"
	"reelsmith/internal/providers/music"
	"reelsmith/internal/providers/scenetext"
	"reelsmith/internal/providers/video"
	"reelsmith/internal/providers/voice"
	"reelsmith/internal/storage"
)

// Build wires every provider whose credentials are configured, preferring
// environment values and falling back to tokens stored via the credentials
// store. Unconfigured providers are simply absent; submissions naming them
// fail validation instead of failing mid-job.
func Build(ctx context.Context, cfg *infra.Config, creds *credentials.Store, store *storage.FileStore, logger infra.Logger) (*providers.Registry, error) {
	registry := providers.NewRegistry()

	geminiKey, err := token(ctx, creds, credentials.ProviderGemini, cfg.GeminiAPIKey)
	if err != nil {
		return nil, err
	}
	if geminiKey != "" {
		client, err := genai.NewClient(genai.Options{
			APIKey:  geminiKey,
			BaseURL: cfg.GeminiBaseURL,
			Model:   cfg.GeminiModel,
			Logger:  &logger,
		})
		if err != nil {
			return nil, err
		}
		registry.Register(domain.JobKindImage, "gemini", image.NewGeminiAdapter(client))
		registry.Register(domain.JobKindVideo, "veo", video.NewVeoAdapter(client))
		registry.Register(domain.JobKindSceneText, "gemini", scenetext.NewGeminiAdapter(client))
	}
	if cfg.ModalBaseURL != "" {
		modalToken, err := token(ctx, creds, credentials.ProviderModal, cfg.ModalToken)
		if err != nil {
			return nil, err
		}
		registry.Register(domain.JobKindImage, "modal",
			image.NewModalAdapter(cfg.ModalBaseURL, modalToken, nil, store))
	}
	elevenKey, err := token(ctx, creds, credentials.ProviderElevenLabs, cfg.ElevenLabsAPIKey)
	if err != nil {
		return nil, err
	}
	if elevenKey != "" {
		registry.Register(domain.JobKindVoiceover, "elevenlabs",
			voice.NewElevenLabsAdapter(cfg.ElevenLabsBaseURL, elevenKey, nil, store))
	}
	replicateToken, err := token(ctx, creds, credentials.ProviderReplicate, cfg.ReplicateToken)
	if err != nil {
		return nil, err
	}
	if replicateToken != "" {
		registry.Register(domain.JobKindMusic, "replicate",
			music.NewReplicateAdapter(cfg.ReplicateBaseURL, replicateToken, cfg.MusicGenVersion, nil))
	}
	openAIKey, err := token(ctx, creds, credentials.ProviderOpenAI, cfg.OpenAIAPIKey)
	if err != nil {
		return nil, err
	}
	if openAIKey != "" {
		registry.Register(domain.JobKindSceneText, "openai",
			scenetext.NewOpenAIAdapter(cfg.OpenAIBaseURL, openAIKey, nil))
	}
	return registry, nil
}

func token(ctx context.Context, creds *credentials.Store, provider, envValue string) (string, error) {
	if envValue != "" {
		return envValue, nil
	}
	if creds == nil {
		return "", nil
	}
	return creds.Token(ctx, provider)
}

// Names returns every distinct provider name the registry knows, for the
// per-provider rate limiters.
func Names(registry *providers.Registry) []string {
	seen := map[string]struct{}{}
	var names []string
	for _, kind := range domain.KnownJobKinds {
		for _, name := range registry.Providers(kind) {
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				names = append(names, name)
			}
		}
	}
	return names
}
