package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv      string
	Port        string
	RedisURL    string
	DatabaseURL string

	BackofficeBaseURL          string
	BackofficeTimeout          time.Duration
	BackofficeDuplicateMarkers []string
	BackofficeBreakerMinCalls  int
	BackofficeBreakerRatio     float64
	BackofficeBreakerCooldown  time.Duration

	PromotionContext       string
	PromotionLookupTimeout time.Duration
	PricingSurchargeMode   string

	CatalogCacheTTL    time.Duration
	DraftIdleTTL       time.Duration
	DraftSweepInterval time.Duration
	SubmitGuardTTL     time.Duration
	IdempotencyTTL     time.Duration
	SubmitRateLimit    int
	SubmitRateWindow   time.Duration
	MaxBodyBytes       int64

	CORSAllowedOrigins []string
	Obs                Obs
}

// Obs groups logging, metrics and tracing switches.
type Obs struct {
	LogFormat        string
	LogLevel         string
	MetricsNamespace string
	MetricsBuckets   string
	EnablePrometheus bool
	EnableTracing    bool
	EnablePprof      bool
	TracingExporter  string
	OTLPEndpoint     string
	SamplingRatio    float64
	PprofUser        string
	PprofPass        string
	ReadyTimeout     time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:      valueOrDefault(k.String("APP_ENV"), "development"),
		Port:        valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:    strings.TrimSpace(k.String("REDIS_URL")),
		DatabaseURL: strings.TrimSpace(k.String("DATABASE_URL")),

		BackofficeBaseURL:          strings.TrimSpace(k.String("BACKOFFICE_BASE_URL")),
		BackofficeTimeout:          parseDuration(k.String("BACKOFFICE_TIMEOUT"), "5s"),
		BackofficeDuplicateMarkers: splitAndTrim(k.String("BACKOFFICE_DUPLICATE_MARKERS")),
		BackofficeBreakerMinCalls:  parseInt(k.String("BACKOFFICE_BREAKER_MIN_CALLS"), 20),
		BackofficeBreakerRatio:     parseFloat(k.String("BACKOFFICE_BREAKER_RATIO"), 0.5),
		BackofficeBreakerCooldown:  parseDuration(k.String("BACKOFFICE_BREAKER_COOLDOWN"), "30s"),

		PromotionContext:       valueOrDefault(k.String("PROMOTION_CONTEXT"), "sortie"),
		PromotionLookupTimeout: parseDuration(k.String("PROMOTION_LOOKUP_TIMEOUT"), "0s"),
		PricingSurchargeMode:   valueOrDefault(k.String("PRICING_SURCHARGE_MODE"), "base"),

		CatalogCacheTTL:    parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		DraftIdleTTL:       parseDuration(k.String("DRAFT_IDLE_TTL"), "2h"),
		DraftSweepInterval: parseDuration(k.String("DRAFT_SWEEP_INTERVAL"), "1m"),
		SubmitGuardTTL:     parseDuration(k.String("SUBMIT_GUARD_TTL"), "30s"),
		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		SubmitRateLimit:    parseInt(k.String("SUBMIT_RATE_LIMIT"), 10),
		SubmitRateWindow:   parseDuration(k.String("SUBMIT_RATE_WINDOW"), "1m"),
		MaxBodyBytes:       int64(parseInt(k.String("MAX_BODY_BYTES"), 1<<20)),

		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		Obs: Obs{
			LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "sortie"),
			MetricsBuckets:   k.String("OBS_METRICS_BUCKETS_MS"),
			EnablePrometheus: parseBool(k.String("OBS_ENABLE_PROMETHEUS"), true),
			EnableTracing:    parseBool(k.String("OBS_ENABLE_TRACING"), false),
			EnablePprof:      parseBool(k.String("OBS_ENABLE_PPROF"), false),
			TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			OTLPEndpoint:     strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
			SamplingRatio:    parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1),
			PprofUser:        strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_USER")),
			PprofPass:        strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_PASS")),
			ReadyTimeout:     parseDuration(k.String("HEALTH_READY_TIMEOUT"), "500ms"),
		},
	}

	if cfg.BackofficeBaseURL == "" {
		return nil, errors.New("BACKOFFICE_BASE_URL is required")
	}
	if cfg.SubmitRateLimit < 0 {
		return nil, errors.New("SUBMIT_RATE_LIMIT must not be negative")
	}
	if cfg.BackofficeBreakerRatio <= 0 || cfg.BackofficeBreakerRatio > 1 {
		return nil, errors.New("BACKOFFICE_BREAKER_RATIO must be in (0, 1]")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
