// Package ratelimit paces outbound provider calls to a configured
// requests-per-second ceiling.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limit is the pacing configuration for one provider. Burst below 1 is
// treated as 1: one token, no burst allowance.
type Limit struct {
	RPS   float64
	Burst int
}

// Limiters hands out per-provider token buckets. Providers with no configured
// limit are unlimited. Acquire only delays, it never fails on its own; the
// single error path is context cancellation.
type Limiters struct {
	mu       sync.Mutex
	limits   map[string]Limit
	limiters map[string]*rate.Limiter
}

func New(limits map[string]Limit) *Limiters {
	l := &Limiters{
		limits:   make(map[string]Limit, len(limits)),
		limiters: make(map[string]*rate.Limiter),
	}
	for name, lim := range limits {
		l.limits[name] = lim
	}
	return l
}

func (l *Limiters) limiter(provider string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters[provider]; ok {
		return lim
	}
	cfg, ok := l.limits[provider]
	if !ok || cfg.RPS <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	lim := rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	l.limiters[provider] = lim
	return lim
}

// Acquire blocks until issuing one more request for provider stays within its
// ceiling, or until ctx is done.
func (l *Limiters) Acquire(ctx context.Context, provider string) error {
	lim := l.limiter(provider)
	if lim == nil {
		return ctx.Err()
	}
	return lim.Wait(ctx)
}
