package repository

import (
	"context"
	"sync/atomic"
	"time"

	"karabook/internal/domain"

	"github.com/rs/zerolog"
)

// FailoverEventCache prefers the primary (redis) cache and falls back
// to the in-memory one when it errors, probing the primary again after
// a minute. A degraded cache only costs extra ledger lookups, never
// correctness.
type FailoverEventCache struct {
	primary   domain.EventCache
	fallback  domain.EventCache
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverEventCache(primary, fallback domain.EventCache, logger *zerolog.Logger) *FailoverEventCache {
	return &FailoverEventCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (f *FailoverEventCache) Seen(ctx context.Context, providerEventID string) (bool, error) {
	if f.tryPrimary() {
		seen, err := f.primary.Seen(ctx, providerEventID)
		if err == nil {
			return seen, nil
		}
		f.markDown(err)
	}
	return f.fallback.Seen(ctx, providerEventID)
}

func (f *FailoverEventCache) MarkSeen(ctx context.Context, providerEventID string) error {
	if f.tryPrimary() {
		if err := f.primary.MarkSeen(ctx, providerEventID); err == nil {
			return nil
		} else {
			f.markDown(err)
		}
	}
	return f.fallback.MarkSeen(ctx, providerEventID)
}

func (f *FailoverEventCache) tryPrimary() bool {
	if !f.isDown.Load() {
		return true
	}
	// Retry the primary once a minute.
	last := f.lastCheck.Load()
	if time.Since(time.Unix(last, 0)) > time.Minute {
		f.isDown.Store(false)
		return true
	}
	return false
}

func (f *FailoverEventCache) markDown(err error) {
	f.logger.Error().Err(err).Msg("primary event cache failed, falling back to memory")
	f.isDown.Store(true)
	f.lastCheck.Store(time.Now().Unix())
}
