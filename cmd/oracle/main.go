package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/condition-oracle/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/condition-oracle/internal/adapter/kafka"
	"github.com/couchcryptid/condition-oracle/internal/adapter/mapbox"
	"github.com/couchcryptid/condition-oracle/internal/config"
	"github.com/couchcryptid/condition-oracle/internal/domain"
	"github.com/couchcryptid/condition-oracle/internal/observability"
	"github.com/couchcryptid/condition-oracle/internal/oracle"
	"github.com/couchcryptid/condition-oracle/internal/watch"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, logger)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, cfg.MapboxCacheTTL, nil, metrics)
		logger.Info("mapbox geocoding enabled",
			"cache_size", cfg.MapboxCacheSize,
			"cache_ttl", cfg.MapboxCacheTTL,
			"timeout", cfg.MapboxTimeout,
		)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	location := cfg.Location
	if cfg.Place != "" {
		location, _, err = domain.ResolvePlace(ctx, geocoder, cfg.Place, cfg.PlaceTimeZone, cfg.Location.TimeZone, logger)
		if err != nil {
			logger.Error("failed to resolve ORACLE_PLACE", "place", cfg.Place, "error", err)
			os.Exit(1)
		}
	}

	o, err := oracle.New(oracle.Options{
		Location: location,
		MaxAge:   cfg.SnapshotMaxAge,
		Logger:   logger,
		Metrics:  metrics,
	})
	if err != nil {
		logger.Error("failed to create oracle", "error", err)
		os.Exit(1)
	}
	snap := o.Snapshot()
	logger.Info("oracle ready",
		"timezone", location.TimeZone,
		"lat", location.Latitude,
		"lon", location.Longitude,
		"season", snap.Season,
		"nighttime", snap.Nighttime,
	)

	ready := httpadapter.ReadinessChecks{o}

	var (
		watcher *watch.Watcher
		writer  *kafkaadapter.Writer
	)
	if cfg.WatchFile != "" {
		wf, err := config.LoadWatchFile(cfg.WatchFile)
		if err != nil {
			logger.Error("failed to load watch file", "path", cfg.WatchFile, "error", err)
			os.Exit(1)
		}
		for name, v := range wf.Flags {
			o.SetFlag(name, v)
		}

		var publisher watch.Publisher = watch.NewLogPublisher(logger)
		if cfg.KafkaEnabled {
			writer = kafkaadapter.NewWriter(cfg, logger)
			publisher = writer
		}
		watcher = watch.New(o, publisher, wf.Watches, cfg.WatchInterval, nil, logger, metrics)
		ready = append(ready, watcher)
		logger.Info("watch file loaded", "path", cfg.WatchFile, "flags", len(wf.Flags), "watches", len(wf.Watches), "kafka", cfg.KafkaEnabled)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, ready, o, geocoder, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start transition watcher.
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		if watcher == nil {
			return
		}
		if err := watcher.Run(ctx); err != nil {
			logger.Error("watcher error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-watcherDone:
	case <-shutdownCtx.Done():
		logger.Warn("watcher did not stop before shutdown timeout")
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
