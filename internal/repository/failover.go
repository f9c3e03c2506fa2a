package repository

import (
	"context"
	"sync/atomic"
	"time"

	"gibster/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverKeyValueStore serves from primary until it errors, then from
// fallback, probing primary again once per recoveryInterval.
type FailoverKeyValueStore struct {
	primary   domain.KeyValueStore
	fallback  domain.KeyValueStore
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverKeyValueStore(primary, fallback domain.KeyValueStore, logger *zerolog.Logger) *FailoverKeyValueStore {
	return &FailoverKeyValueStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverKeyValueStore) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary key/value store failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

// shouldProbe reports whether a down primary is due for a recovery attempt.
func (r *FailoverKeyValueStore) shouldProbe() bool {
	return r.isDown.Load() && time.Since(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverKeyValueStore) Get(ctx context.Context, origin, key string) (string, bool, error) {
	if !r.isDown.Load() {
		val, ok, err := r.primary.Get(ctx, origin, key)
		if err == nil {
			return val, ok, nil
		}
		r.markDown(err)
	}

	// Try to recover after 1 minute
	if r.shouldProbe() {
		val, ok, err := r.primary.Get(ctx, origin, key)
		if err == nil {
			r.logger.Info().Msg("Primary key/value store recovered")
			r.isDown.Store(false)
			return val, ok, nil
		}
		r.lastCheck.Store(time.Now().UnixNano())
	}

	return r.fallback.Get(ctx, origin, key)
}

func (r *FailoverKeyValueStore) Set(ctx context.Context, origin, key, value string) error {
	if !r.isDown.Load() {
		err := r.primary.Set(ctx, origin, key, value)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.Set(ctx, origin, key, value)
}

// Delete removes the key from both stores so a recovered primary cannot
// resurrect a value cleared while it was down.
func (r *FailoverKeyValueStore) Delete(ctx context.Context, origin, key string) error {
	fallbackErr := r.fallback.Delete(ctx, origin, key)

	if !r.isDown.Load() {
		err := r.primary.Delete(ctx, origin, key)
		if err == nil {
			return fallbackErr
		}
		r.markDown(err)
	}

	return fallbackErr
}
