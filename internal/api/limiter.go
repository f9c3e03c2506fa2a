package api

import (
	"context"
	"sync"

	"gibster/internal/config"

	"golang.org/x/time/rate"
)

// rateLimiter throttles outgoing calls per endpoint. A non-positive RPS disables it.
type rateLimiter struct {
	limiters sync.Map
	cfg      config.APIRateLimitConfig
}

func newRateLimiter(cfg config.APIRateLimitConfig) *rateLimiter {
	return &rateLimiter{
		cfg: cfg,
	}
}

func (l *rateLimiter) enabled() bool {
	return l != nil && l.cfg.RPS > 0
}

func (l *rateLimiter) getLimiter(key string) *rate.Limiter {
	if v, ok := l.limiters.Load(key); ok {
		if lim, ok := v.(*rate.Limiter); ok {
			return lim
		}
	}

	burst := l.cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	lim := rate.NewLimiter(rate.Limit(l.cfg.RPS), burst)
	actual, loaded := l.limiters.LoadOrStore(key, lim)
	if loaded {
		if actualLim, ok := actual.(*rate.Limiter); ok {
			return actualLim
		}
	}
	return lim
}

// wait blocks until the endpoint may issue another call.
func (l *rateLimiter) wait(ctx context.Context, key string) error {
	if !l.enabled() {
		return nil
	}
	return l.getLimiter(key).Wait(ctx)
}
