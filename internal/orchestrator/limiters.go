package orchestrator

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiters caps the call rate per provider across every job in the process,
// on top of the per-job and global worker caps. External APIs rate-limit by
// account, not by job.
type Limiters struct {
	byProvider map[string]*rate.Limiter
}

// NewLimiters builds one token bucket per provider name at the given
// requests-per-minute budget.
func NewLimiters(providerNames []string, perMinute int) *Limiters {
	if perMinute <= 0 {
		perMinute = 60
	}
	byProvider := make(map[string]*rate.Limiter, len(providerNames))
	for _, name := range providerNames {
		byProvider[name] = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
	}
	return &Limiters{byProvider: byProvider}
}

// Wait blocks until the provider's budget admits one call. Unknown
// providers pass through; the registry already rejected anything truly
// unsupported.
func (l *Limiters) Wait(ctx context.Context, provider string) error {
	if l == nil {
		return nil
	}
	limiter, ok := l.byProvider[provider]
	if !ok {
		return nil
	}
	return limiter.Wait(ctx)
}
