//go:build mapbox

package mapbox

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/couchcryptid/condition-oracle/internal/domain"
	"github.com/couchcryptid/condition-oracle/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests hit the real Mapbox API and require a valid MAPBOX_TOKEN env var.
// Run with: go test -tags=mapbox ./internal/adapter/mapbox/ -v -count=1

func smokeClient(t *testing.T) *Client {
	t.Helper()
	token := os.Getenv("MAPBOX_TOKEN")
	if token == "" {
		t.Fatal("MAPBOX_TOKEN must be set to run smoke tests")
	}
	return NewClient(token, 10*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSmoke_ForwardGeocode(t *testing.T) {
	c := smokeClient(t)

	result, err := c.ForwardGeocode(context.Background(), "Grand Central Terminal, New York")
	require.NoError(t, err)

	assert.InDelta(t, domain.DefaultLatitude, result.Lat, 0.05)
	assert.InDelta(t, domain.DefaultLongitude, result.Lon, 0.05)
	assert.NotEmpty(t, result.FormattedAddress)
	assert.Greater(t, result.Confidence, 0.5)
	assert.Equal(t, "us", result.CountryCode)
	assert.Equal(t, "New York", result.Region)
}

func TestSmoke_ReverseGeocode(t *testing.T) {
	c := smokeClient(t)

	result, err := c.ReverseGeocode(context.Background(), domain.DefaultLatitude, domain.DefaultLongitude)
	require.NoError(t, err)

	assert.NotEmpty(t, result.FormattedAddress)
	assert.NotEmpty(t, result.PlaceName)
}

func TestSmoke_ResolvePlace(t *testing.T) {
	cached := NewCachedGeocoder(smokeClient(t), 10, time.Hour, nil, observability.NewMetricsForTesting())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	loc, result, err := domain.ResolvePlace(context.Background(), cached, "Royal Observatory, Greenwich", "", "US/Eastern", logger)
	require.NoError(t, err)
	assert.InDelta(t, 51.48, loc.Latitude, 0.1)
	assert.InDelta(t, 0.0, loc.Longitude, 0.1)
	assert.Equal(t, "Europe/London", loc.TimeZone, "zone taken from the country")

	// Second lookup is served from the cache.
	_, again, err := domain.ResolvePlace(context.Background(), cached, "royal observatory,  greenwich", "", "US/Eastern", logger)
	require.NoError(t, err)
	assert.Equal(t, result, again)
}
