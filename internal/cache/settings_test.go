package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluefermion/reviews/internal/model"
)

var errNotFound = errors.New("not found")

type stubSource struct {
	mu       sync.Mutex
	settings map[string]model.PortalSettings
	loads    int
}

func (s *stubSource) GetReviewDetails(_ context.Context, slug string) (*model.PortalSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	ps, ok := s.settings[slug]
	if !ok {
		return nil, errNotFound
	}
	return &ps, nil
}

func (s *stubSource) UpdatePortalSettings(_ context.Context, ps model.PortalSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[ps.PortalID] = ps
	return nil
}

func (s *stubSource) Loads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

func newStub() *stubSource {
	return &stubSource{settings: map[string]model.PortalSettings{
		"acme": {PortalID: "acme", PrimaryColor: "#111111"},
	}}
}

func TestSettingsReadThrough(t *testing.T) {
	ctx := context.Background()
	src := newStub()
	c, err := NewSettings(src, 100, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	first, err := c.GetReviewDetails(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "#111111", first.PrimaryColor)

	// Mutating a returned value must not leak into the cache.
	first.PrimaryColor = "#ffffff"

	second, err := c.GetReviewDetails(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "#111111", second.PrimaryColor)
	assert.Equal(t, 1, src.Loads())
}

func TestSettingsMissNotCached(t *testing.T) {
	ctx := context.Background()
	src := newStub()
	c, err := NewSettings(src, 100, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.GetReviewDetails(ctx, "missing")
	assert.ErrorIs(t, err, errNotFound)
	_, err = c.GetReviewDetails(ctx, "missing")
	assert.ErrorIs(t, err, errNotFound)
	assert.Equal(t, 2, src.Loads())
}

func TestSettingsUpdateInvalidates(t *testing.T) {
	ctx := context.Background()
	src := newStub()
	c, err := NewSettings(src, 100, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.GetReviewDetails(ctx, "acme")
	require.NoError(t, err)

	require.NoError(t, c.UpdatePortalSettings(ctx, model.PortalSettings{PortalID: "acme", PrimaryColor: "#222222"}))

	got, err := c.GetReviewDetails(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "#222222", got.PrimaryColor)
	assert.Equal(t, 2, src.Loads())
}

func TestSettingsExpire(t *testing.T) {
	ctx := context.Background()
	src := newStub()
	c, err := NewSettings(src, 100, 20*time.Millisecond)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.GetReviewDetails(ctx, "acme")
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond)
	_, err = c.GetReviewDetails(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 2, src.Loads())
}
