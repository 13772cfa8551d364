package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/couchcryptid/condition-oracle/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	Location       domain.Location
	Place          string // optional place query geocoded at startup
	PlaceTimeZone  string // ORACLE_TIMEZONE as given; empty lets Place pick the zone
	SnapshotMaxAge time.Duration

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Transition watcher configuration.
	WatchFile     string
	WatchInterval time.Duration

	// Kafka transition publishing.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
	MapboxCacheTTL  time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	lat, err := parseFloat("ORACLE_LATITUDE", domain.DefaultLatitude)
	if err != nil {
		return nil, err
	}
	lon, err := parseFloat("ORACLE_LONGITUDE", domain.DefaultLongitude)
	if err != nil {
		return nil, err
	}

	maxAge, err := parsePositiveDuration("SNAPSHOT_MAX_AGE", "1s")
	if err != nil {
		return nil, err
	}
	watchInterval, err := parsePositiveDuration("WATCH_INTERVAL", "1s")
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parsePositiveDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	mapboxCacheTTL, err := parsePositiveDuration("MAPBOX_CACHE_TTL", "24h")
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		Location: domain.Location{
			TimeZone:  sharedcfg.EnvOrDefault("ORACLE_TIMEZONE", domain.DefaultTimeZone),
			Latitude:  lat,
			Longitude: lon,
		},
		Place:           os.Getenv("ORACLE_PLACE"),
		PlaceTimeZone:   os.Getenv("ORACLE_TIMEZONE"),
		SnapshotMaxAge:  maxAge,
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		WatchFile:     os.Getenv("WATCH_FILE"),
		WatchInterval: watchInterval,

		KafkaEnabled: os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "condition-transitions"),

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),
		MapboxCacheTTL:  mapboxCacheTTL,
	}

	if _, err := cfg.Location.Load(); err != nil {
		return nil, fmt.Errorf("ORACLE_TIMEZONE/ORACLE_LATITUDE/ORACLE_LONGITUDE: %w", err)
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}
	if cfg.KafkaEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_ENABLED is true")
	}
	if cfg.KafkaEnabled && cfg.WatchFile == "" {
		return nil, errors.New("WATCH_FILE is required when KAFKA_ENABLED is true")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	if cfg.Place != "" && !cfg.MapboxEnabled {
		return nil, errors.New("ORACLE_PLACE requires MAPBOX_TOKEN")
	}

	return cfg, nil
}

func parseFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
