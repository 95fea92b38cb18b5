// Package cache keeps portal settings in an in-process ristretto cache.
//
// The hosted form, the public settings endpoint and the widget preview all
// look settings up by slug on every request; the cache sits in front of the
// repository and is invalidated whenever settings are written through it.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/bluefermion/reviews/internal/model"
)

// SettingsSource is the repository side of the cache.
type SettingsSource interface {
	GetReviewDetails(ctx context.Context, slug string) (*model.PortalSettings, error)
	UpdatePortalSettings(ctx context.Context, s model.PortalSettings) error
}

// Settings is a read-through cache of portal settings.
type Settings struct {
	src SettingsSource
	c   *ristretto.Cache[string, model.PortalSettings]
	ttl time.Duration
}

// NewSettings creates a cache holding at most maxItems portals for ttl each.
func NewSettings(src SettingsSource, maxItems int64, ttl time.Duration) (*Settings, error) {
	if maxItems < 1 {
		maxItems = 1
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, model.PortalSettings]{
		NumCounters: maxItems * 10, // ~10x expected items
		MaxCost:     maxItems,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create settings cache: %w", err)
	}
	return &Settings{src: src, c: c, ttl: ttl}, nil
}

// GetReviewDetails returns the settings for slug, loading them from the
// source on a miss. Lookup errors, including not-found, are not cached.
func (s *Settings) GetReviewDetails(ctx context.Context, slug string) (*model.PortalSettings, error) {
	if v, ok := s.c.Get(slug); ok {
		return &v, nil
	}

	ps, err := s.src.GetReviewDetails(ctx, slug)
	if err != nil {
		return nil, err
	}
	s.c.SetWithTTL(slug, *ps, 1, s.ttl)
	s.c.Wait()

	out := *ps
	return &out, nil
}

// UpdatePortalSettings writes through to the source and drops the cached copy.
func (s *Settings) UpdatePortalSettings(ctx context.Context, ps model.PortalSettings) error {
	if err := s.src.UpdatePortalSettings(ctx, ps); err != nil {
		return err
	}
	s.Invalidate(ps.PortalID)
	return nil
}

// Invalidate removes slug from the cache.
func (s *Settings) Invalidate(slug string) {
	s.c.Del(slug)
}

// Close shuts down the cache and releases resources.
func (s *Settings) Close() {
	s.c.Close()
}
