package providers

import (
	"fmt"
	"sort"

	"reelsmith/internal/domain"
)

// Registry holds the closed set of adapters the process was started with.
// Dispatch is by (kind, provider); an unsupported pair is rejected at
// submission time instead of surfacing mid-job.
type Registry struct {
	adapters map[domain.JobKind]map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[domain.JobKind]map[string]Adapter)}
}

// Register binds an adapter to a kind/provider pair. Last registration wins.
func (r *Registry) Register(kind domain.JobKind, provider string, adapter Adapter) {
	byProvider, ok := r.adapters[kind]
	if !ok {
		byProvider = make(map[string]Adapter)
		r.adapters[kind] = byProvider
	}
	byProvider[provider] = adapter
}

// Resolve returns the adapter for the pair, or domain.ErrInvalidConfig.
func (r *Registry) Resolve(kind domain.JobKind, provider string) (Adapter, error) {
	byProvider, ok := r.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("kind %q: %w", kind, domain.ErrInvalidConfig)
	}
	adapter, ok := byProvider[provider]
	if !ok {
		return nil, fmt.Errorf("provider %q for kind %q: %w", provider, kind, domain.ErrInvalidConfig)
	}
	return adapter, nil
}

// Supports reports whether the pair can be dispatched.
func (r *Registry) Supports(kind domain.JobKind, provider string) bool {
	_, err := r.Resolve(kind, provider)
	return err == nil
}

// Providers lists the registered provider names for a kind, sorted.
func (r *Registry) Providers(kind domain.JobKind) []string {
	byProvider := r.adapters[kind]
	names := make([]string, 0, len(byProvider))
	for name := range byProvider {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
