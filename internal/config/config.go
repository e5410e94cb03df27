package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"gopkg.in/yaml.v3"

	"github.com/bangalorenow/incident-heatmap/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers      []string
	KafkaReportsTopic string
	KafkaGroupID      string
	HTTPAddr          string
	LogLevel          string
	LogFormat         string
	ShutdownTimeout   time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration
	// TransformConcurrency bounds how many messages of a batch are enriched at once.
	TransformConcurrency int

	// Report store configuration.
	DatabaseDriver string
	DatabaseURL    string

	// Google geocoding configuration.
	GoogleMapsAPIKey string
	GeocodeEnabled   bool
	GeocodeTimeout   time.Duration
	GeocodeCacheSize int

	// OpenStreetMap fallback used when Google geocoding is disabled.
	OverpassEnabled  bool
	OverpassEndpoint string
	OverpassRadiusM  int

	// Gemini description configuration.
	GeminiAPIKey  string
	GeminiEnabled bool
	GeminiModel   string
	GeminiTimeout time.Duration

	// ScoringProfile is the default profile unless SCORING_PROFILE_FILE is set.
	ScoringProfile domain.ScoringProfile
	// HeatmapCacheTTL is how long a scored viewport is reused; 0 disables caching.
	HeatmapCacheTTL time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	geocodeTimeout, err := parseTimeout("GEOCODE_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	geminiTimeout, err := parseTimeout("GEMINI_TIMEOUT", "20s")
	if err != nil {
		return nil, err
	}

	concurrency, err := strconv.Atoi(sharedcfg.EnvOrDefault("TRANSFORM_CONCURRENCY", "4"))
	if err != nil || concurrency < 1 || concurrency > 64 {
		return nil, errors.New("invalid TRANSFORM_CONCURRENCY: must be between 1 and 64")
	}

	overpassRadius, err := strconv.Atoi(sharedcfg.EnvOrDefault("OVERPASS_RADIUS_M", "1500"))
	if err != nil || overpassRadius < 1 || overpassRadius > 10000 {
		return nil, errors.New("invalid OVERPASS_RADIUS_M: must be between 1 and 10000")
	}

	heatmapTTL, err := time.ParseDuration(sharedcfg.EnvOrDefault("HEATMAP_CACHE_TTL", "5s"))
	if err != nil || heatmapTTL < 0 {
		return nil, errors.New("invalid HEATMAP_CACHE_TTL")
	}

	profile := domain.DefaultScoringProfile()
	if path := os.Getenv("SCORING_PROFILE_FILE"); path != "" {
		profile, err = LoadScoringProfile(path)
		if err != nil {
			return nil, err
		}
	}

	mapsKey := os.Getenv("GOOGLE_MAPS_API_KEY")
	geminiKey := os.Getenv("GEMINI_API_KEY")

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaReportsTopic:  sharedcfg.EnvOrDefault("REPORTS_TOPIC", "user-reports"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "incident-heatmap"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		TransformConcurrency: concurrency,

		DatabaseDriver: sharedcfg.EnvOrDefault("DATABASE_DRIVER", "postgres"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),

		GoogleMapsAPIKey: mapsKey,
		GeocodeEnabled:   parseEnabled("GEOCODE_ENABLED", mapsKey != ""),
		GeocodeTimeout:   geocodeTimeout,
		GeocodeCacheSize: parseCacheSize(),

		OverpassEnabled:  parseEnabled("OVERPASS_ENABLED", false),
		OverpassEndpoint: sharedcfg.EnvOrDefault("OVERPASS_ENDPOINT", "https://overpass-api.de/api/interpreter"),
		OverpassRadiusM:  overpassRadius,

		GeminiAPIKey:  geminiKey,
		GeminiEnabled: parseEnabled("GEMINI_ENABLED", geminiKey != ""),
		GeminiModel:   sharedcfg.EnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiTimeout: geminiTimeout,

		ScoringProfile:  profile,
		HeatmapCacheTTL: heatmapTTL,
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaReportsTopic == "" {
		return nil, errors.New("REPORTS_TOPIC is required")
	}
	if cfg.DatabaseDriver != "postgres" && cfg.DatabaseDriver != "sqlite" {
		return nil, fmt.Errorf("invalid DATABASE_DRIVER %q: must be postgres or sqlite", cfg.DatabaseDriver)
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.GeocodeEnabled && cfg.GoogleMapsAPIKey == "" {
		return nil, errors.New("GEOCODE_ENABLED is true but GOOGLE_MAPS_API_KEY is not set")
	}
	if cfg.GeminiEnabled && cfg.GeminiAPIKey == "" {
		return nil, errors.New("GEMINI_ENABLED is true but GEMINI_API_KEY is not set")
	}

	return cfg, nil
}

// LoadScoringProfile reads a YAML scoring profile. Fields missing from the
// file keep their default values.
func LoadScoringProfile(path string) (domain.ScoringProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.ScoringProfile{}, fmt.Errorf("read SCORING_PROFILE_FILE: %w", err)
	}

	profile := domain.DefaultScoringProfile()
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return domain.ScoringProfile{}, fmt.Errorf("parse SCORING_PROFILE_FILE: %w", err)
	}
	if err := profile.Validate(); err != nil {
		return domain.ScoringProfile{}, fmt.Errorf("invalid SCORING_PROFILE_FILE: %w", err)
	}
	return profile, nil
}

func parseTimeout(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

// parseEnabled lets an explicit "true"/"false" override the key-derived default.
func parseEnabled(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true"
	}
	return fallback
}

func parseCacheSize() int {
	if s := os.Getenv("GEOCODE_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
