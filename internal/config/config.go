// Package config loads the console configuration from the environment, with
// an optional env file for development.
package config

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Profile string

	// Backend.
	APIBaseURL     string
	AuthTransport  string // "cookie" or "bearer"
	TwoFAEnabled   bool
	RequestTimeout time.Duration

	// Persisted user cache.
	CachePath string
	CacheKey  []byte // 32 bytes, decoded from base64

	// Logging.
	LogLevel  string
	LogFormat string // "text" or "json"

	// OpenTelemetry.
	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsEnabled        bool
	OTELTracesEnabled         bool
	OTELLogsEnabled           bool
	OTELMetricsExportInterval time.Duration

	// Mock API fixture.
	MockListenAddr string
	MockRedisAddr  string
	MockJWTSecret  string
}

// ValidationError reports a configuration value that fails validation.
type ValidationError struct {
	Key    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validate config: %s %s", e.Key, e.Reason)
}

// ParseError reports an environment variable that could not be parsed.
type ParseError struct {
	Key string
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse %s: %v", e.Key, e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

// Load reads configuration from the environment. envFile, when non-empty, is
// loaded first (existing variables win). Validation failures are recorded on
// the config validation counter before being returned.
func Load(ctx context.Context, envFile string) (*Config, error) {
	cfg, err := load(envFile)
	outcome := "ok"
	profile := ""
	if cfg != nil {
		profile = cfg.Profile
	}
	if err != nil {
		outcome = "error"
	}
	recordConfigValidationEvent(ctx, profile, outcome, classifyConfigLoadError(err))
	return cfg, err
}

func load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := LoadEnvFile(envFile); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Profile:                  getEnv("SSE_PROFILE", "dev"),
		APIBaseURL:               getEnv("SSE_API_BASE_URL", "http://localhost:8080/sse-api"),
		AuthTransport:            strings.ToLower(getEnv("SSE_AUTH_TRANSPORT", "cookie")),
		CachePath:                getEnv("SSE_CACHE_PATH", defaultCachePath()),
		LogLevel:                 getEnv("SSE_LOG_LEVEL", "info"),
		LogFormat:                getEnv("SSE_LOG_FORMAT", "text"),
		OTELServiceName:          getEnv("OTEL_SERVICE_NAME", "sse-console"),
		OTELEnvironment:          getEnv("OTEL_ENVIRONMENT", "dev"),
		OTELExporterOTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		MockListenAddr:           getEnv("SSE_MOCKAPI_ADDR", ":8080"),
		MockRedisAddr:            os.Getenv("SSE_MOCKAPI_REDIS_ADDR"),
		MockJWTSecret:            getEnv("SSE_MOCKAPI_JWT_SECRET", "dev-only-secret"),
	}

	var err error
	if cfg.TwoFAEnabled, err = getBool("SSE_TWOFA_ENABLED", true); err != nil {
		return cfg, err
	}
	if cfg.RequestTimeout, err = getDuration("SSE_REQUEST_TIMEOUT", 15*time.Second); err != nil {
		return cfg, err
	}
	if cfg.OTELExporterOTLPInsecure, err = getBool("OTEL_EXPORTER_OTLP_INSECURE", true); err != nil {
		return cfg, err
	}
	if cfg.OTELMetricsEnabled, err = getBool("OTEL_METRICS_ENABLED", false); err != nil {
		return cfg, err
	}
	if cfg.OTELTracesEnabled, err = getBool("OTEL_TRACES_ENABLED", false); err != nil {
		return cfg, err
	}
	if cfg.OTELLogsEnabled, err = getBool("OTEL_LOGS_ENABLED", false); err != nil {
		return cfg, err
	}
	if cfg.OTELMetricsExportInterval, err = getDuration("OTEL_METRICS_EXPORT_INTERVAL", 30*time.Second); err != nil {
		return cfg, err
	}

	if raw := os.Getenv("SSE_CACHE_KEY"); raw != "" {
		key, decErr := base64.StdEncoding.DecodeString(raw)
		if decErr != nil {
			return cfg, &ParseError{Key: "SSE_CACHE_KEY", Err: decErr}
		}
		cfg.CacheKey = key
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return &ValidationError{Key: "SSE_API_BASE_URL", Reason: "is required"}
	}
	if c.AuthTransport != "cookie" && c.AuthTransport != "bearer" {
		return &ValidationError{Key: "SSE_AUTH_TRANSPORT", Reason: fmt.Sprintf("must be cookie or bearer, got %q", c.AuthTransport)}
	}
	if c.RequestTimeout <= 0 {
		return &ValidationError{Key: "SSE_REQUEST_TIMEOUT", Reason: "must be positive"}
	}
	if len(c.CacheKey) != 0 && len(c.CacheKey) != 32 {
		return &ValidationError{Key: "SSE_CACHE_KEY", Reason: fmt.Sprintf("must decode to 32 bytes, got %d", len(c.CacheKey))}
	}
	return nil
}

// CacheEnabled reports whether the persisted cache can be opened: it needs
// both a path and a key. Without either, the in-memory cache is used.
func (c *Config) CacheEnabled() bool {
	return c.CachePath != "" && len(c.CacheKey) == 32
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "sse-console", "profile.db")
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBool(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def, &ParseError{Key: key, Err: err}
	}
	return v, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return def, &ParseError{Key: key, Err: err}
	}
	return v, nil
}
