package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/condition-oracle/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMapboxToken = "pk.test-token"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, domain.DefaultLocation(), cfg.Location)
	assert.Empty(t, cfg.Place)
	assert.Equal(t, time.Second, cfg.SnapshotMaxAge)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.WatchFile)
	assert.Equal(t, time.Second, cfg.WatchInterval)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "condition-transitions", cfg.KafkaTopic)
	assert.False(t, cfg.MapboxEnabled)
	assert.Empty(t, cfg.MapboxToken)
	assert.Equal(t, 5*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 1000, cfg.MapboxCacheSize)
	assert.Equal(t, 24*time.Hour, cfg.MapboxCacheTTL)
	assert.Empty(t, cfg.PlaceTimeZone)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("ORACLE_TIMEZONE", "Europe/Oslo")
	t.Setenv("ORACLE_LATITUDE", "59.9139")
	t.Setenv("ORACLE_LONGITUDE", "10.7522")
	t.Setenv("ORACLE_PLACE", "Oslo, Norway")
	t.Setenv("SNAPSHOT_MAX_AGE", "250ms")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("WATCH_FILE", "/etc/oracle/watches.yaml")
	t.Setenv("WATCH_INTERVAL", "5s")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_TOPIC", "custom-transitions")
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_TIMEOUT", "10s")
	t.Setenv("MAPBOX_CACHE_SIZE", "500")
	t.Setenv("MAPBOX_CACHE_TTL", "1h")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, domain.Location{TimeZone: "Europe/Oslo", Latitude: 59.9139, Longitude: 10.7522}, cfg.Location)
	assert.Equal(t, "Oslo, Norway", cfg.Place)
	assert.Equal(t, "Europe/Oslo", cfg.PlaceTimeZone)
	assert.Equal(t, 250*time.Millisecond, cfg.SnapshotMaxAge)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "/etc/oracle/watches.yaml", cfg.WatchFile)
	assert.Equal(t, 5*time.Second, cfg.WatchInterval)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-transitions", cfg.KafkaTopic)
	assert.True(t, cfg.MapboxEnabled)
	assert.Equal(t, testMapboxToken, cfg.MapboxToken)
	assert.Equal(t, 10*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 500, cfg.MapboxCacheSize)
	assert.Equal(t, time.Hour, cfg.MapboxCacheTTL)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"invalid shutdown timeout", map[string]string{"SHUTDOWN_TIMEOUT": "not-a-duration"}, "SHUTDOWN_TIMEOUT"},
		{"invalid latitude", map[string]string{"ORACLE_LATITUDE": "north"}, "ORACLE_LATITUDE"},
		{"invalid longitude", map[string]string{"ORACLE_LONGITUDE": "west"}, "ORACLE_LONGITUDE"},
		{"latitude out of range", map[string]string{"ORACLE_LATITUDE": "95"}, "latitude"},
		{"unknown timezone", map[string]string{"ORACLE_TIMEZONE": "Mars/Base"}, "ORACLE_TIMEZONE"},
		{"invalid max age", map[string]string{"SNAPSHOT_MAX_AGE": "soon"}, "SNAPSHOT_MAX_AGE"},
		{"negative max age", map[string]string{"SNAPSHOT_MAX_AGE": "-1s"}, "SNAPSHOT_MAX_AGE"},
		{"invalid watch interval", map[string]string{"WATCH_INTERVAL": "0s"}, "WATCH_INTERVAL"},
		{"invalid mapbox timeout", map[string]string{"MAPBOX_TIMEOUT": "bad"}, "MAPBOX_TIMEOUT"},
		{"invalid mapbox cache ttl", map[string]string{"MAPBOX_CACHE_TTL": "forever"}, "MAPBOX_CACHE_TTL"},
		{"mapbox enabled without token", map[string]string{"MAPBOX_ENABLED": "true"}, "MAPBOX_TOKEN"},
		{"place without geocoder", map[string]string{"ORACLE_PLACE": "Oslo"}, "ORACLE_PLACE"},
		{"kafka without watch file", map[string]string{"KAFKA_ENABLED": "true"}, "WATCH_FILE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MapboxTokenImpliesEnabled(t *testing.T) {
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.MapboxEnabled)
}

func TestLoad_MapboxExplicitlyDisabled(t *testing.T) {
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_ENABLED", "false")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.MapboxEnabled)
}

func TestLoad_InvalidCacheSizeFallsBack(t *testing.T) {
	t.Setenv("MAPBOX_CACHE_SIZE", "-3")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.MapboxCacheSize)
}

func TestParseWatchFile(t *testing.T) {
	data := []byte(`
flags:
  gallery_open: true
  maintenance: false
watches:
  - name: evening_show
    expr: gallery_open AND nighttime AND hour18_23
  - name: solstice
    expr: summer_solstice OR winter_solstice
`)
	wf, err := ParseWatchFile(data)
	require.NoError(t, err)

	assert.Equal(t, map[string]bool{"gallery_open": true, "maintenance": false}, wf.Flags)
	assert.Equal(t, []domain.Watch{
		{Name: "evening_show", Expression: "gallery_open AND nighttime AND hour18_23"},
		{Name: "solstice", Expression: "summer_solstice OR winter_solstice"},
	}, wf.Watches)
}

func TestParseWatchFile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"bad yaml", "watches: [", "parse watch file"},
		{"missing name", "watches:\n  - expr: daytime\n", "name is required"},
		{"missing expr", "watches:\n  - name: a\n", "expr is required"},
		{"duplicate", "watches:\n  - name: a\n    expr: daytime\n  - name: a\n    expr: nighttime\n", "duplicate"},
		{"empty", "{}", "no flags and no watches"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseWatchFile([]byte(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadWatchFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watches.yaml")
	require.NoError(t, os.WriteFile(path, []byte("flags:\n  fog: true\n"), 0o600))

	wf, err := LoadWatchFile(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"fog": true}, wf.Flags)

	_, err = LoadWatchFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read watch file")
}
