package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/bangalorenow/incident-heatmap/internal/adapter/gemini"
	"github.com/bangalorenow/incident-heatmap/internal/adapter/googlemaps"
	httpadapter "github.com/bangalorenow/incident-heatmap/internal/adapter/http"
	kafkaadapter "github.com/bangalorenow/incident-heatmap/internal/adapter/kafka"
	"github.com/bangalorenow/incident-heatmap/internal/adapter/overpass"
	"github.com/bangalorenow/incident-heatmap/internal/config"
	"github.com/bangalorenow/incident-heatmap/internal/domain"
	"github.com/bangalorenow/incident-heatmap/internal/heatmap"
	"github.com/bangalorenow/incident-heatmap/internal/observability"
	"github.com/bangalorenow/incident-heatmap/internal/pipeline"
	"github.com/bangalorenow/incident-heatmap/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("heatmapd exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck // process is exiting
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	// Geocoder is feature-flagged via GEOCODE_ENABLED / GOOGLE_MAPS_API_KEY,
	// with OVERPASS_ENABLED as the keyless fallback.
	var geocoder domain.Geocoder
	switch {
	case cfg.GeocodeEnabled:
		client := googlemaps.NewClient(cfg.GoogleMapsAPIKey, cfg.GeocodeTimeout, metrics, logger)
		geocoder = googlemaps.NewCachedGeocoder(client, cfg.GeocodeCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("google geocoding enabled", "cache_size", cfg.GeocodeCacheSize, "timeout", cfg.GeocodeTimeout)
	case cfg.OverpassEnabled:
		client := overpass.NewClient(cfg.OverpassEndpoint, cfg.OverpassRadiusM, cfg.GeocodeTimeout, metrics, logger)
		geocoder = googlemaps.NewCachedGeocoder(client, cfg.GeocodeCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("overpass geocoding enabled", "endpoint", cfg.OverpassEndpoint, "radius_m", cfg.OverpassRadiusM)
	default:
		logger.Info("geocoding disabled")
	}

	var describer domain.Describer
	if cfg.GeminiEnabled {
		client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiTimeout, metrics, logger)
		if err != nil {
			return err
		}
		describer = client
		metrics.DescribeEnabled.Set(1)
		logger.Info("gemini descriptions enabled", "model", cfg.GeminiModel, "timeout", cfg.GeminiTimeout)
	} else {
		logger.Info("gemini descriptions disabled")
	}

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	transformer := pipeline.NewTransformer(describer, geocoder, logger)
	p := pipeline.New(reader, transformer, st, logger, metrics, cfg.BatchSize, cfg.TransformConcurrency)

	scorer := domain.NewScorer(cfg.ScoringProfile)
	svc := heatmap.NewService(st, scorer, cfg.HeatmapCacheTTL, metrics, logger)
	profile := svc.Profile()
	logger.Info("scoring profile loaded",
		"neighbor_radius_km", profile.RadiusKm,
		"neighbor_weight", profile.NeighborWeight,
		"multipliers", profile.Weights,
	)

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.API{
		Publisher: writer,
		Reports:   st,
		Heatmap:   svc,
		Geocoder:  geocoder,
		Metrics:   metrics,
	}, observability.ReadinessChecks{st, p}, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return p.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		return nil
	})

	err = g.Wait()

	if cerr := reader.Close(); cerr != nil {
		logger.Error("kafka reader close error", "error", cerr)
	}
	if cerr := writer.Close(); cerr != nil {
		logger.Error("kafka writer close error", "error", cerr)
	}

	logger.Info("shutdown complete")
	return err
}
