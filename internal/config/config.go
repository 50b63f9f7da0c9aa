// Package config provides configuration loading and validation for the
// API server. It uses koanf to merge environment variables with optional
// file overrides; environment variables take precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Session lifecycle
	SessionTTLMinutes    int `koanf:"session_ttl_minutes"`
	SweepIntervalSeconds int `koanf:"sweep_interval_seconds"`

	// Image upload
	MaxUploadSizeMB int `koanf:"max_upload_size_mb"`

	// Optional JWT auth; empty secret disables authentication.
	JWTSecret string `koanf:"jwt_secret"`

	// CORS
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// Tracing
	TracingEnabled      bool    `koanf:"tracing_enabled"`
	TracingExporter     string  `koanf:"tracing_exporter"` // otlp-http or otlp-grpc
	TracingEndpoint     string  `koanf:"tracing_endpoint"`
	TracingSamplingRate float64 `koanf:"tracing_sampling_rate"`
	TracingInsecure     bool    `koanf:"tracing_insecure"`
}

// Configuration validation errors.
var (
	ErrInvalidPort          = errors.New("PORT must be a valid integer in 1-65535")
	ErrInvalidSessionTTL    = errors.New("SESSION_TTL_MINUTES must be positive")
	ErrInvalidSweepInterval = errors.New("SWEEP_INTERVAL_SECONDS must be positive")
	ErrInvalidUploadSize    = errors.New("MAX_UPLOAD_SIZE_MB must be positive")
	ErrInvalidSamplingRate  = errors.New("TRACING_SAMPLING_RATE must be between 0 and 1")
	ErrInvalidExporter      = errors.New("TRACING_EXPORTER must be otlp-http or otlp-grpc")
)

// Default values for non-secret configuration.
const (
	DefaultPort                 = 8080
	DefaultEnv                  = "development"
	DefaultSessionTTLMinutes    = 30
	DefaultSweepIntervalSeconds = 60
	DefaultMaxUploadSizeMB      = 15
	DefaultTracingExporter      = "otlp-http"
	DefaultTracingSamplingRate  = 0.1
)

// envPrefix is the namespace for this service's environment variables.
const envPrefix = "MAPMEASURE_"

// Load reads configuration from environment variables and an optional
// YAML file. Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if
// valid). A config file path that cannot be loaded is itself an error.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	port, err := envInt("PORT", k.Int("port"), DefaultPort)
	if err != nil {
		loadErrs = append(loadErrs, fmt.Errorf("%w: %v", ErrInvalidPort, err))
	}
	ttl, err := envInt("SESSION_TTL_MINUTES", k.Int("session_ttl_minutes"), DefaultSessionTTLMinutes)
	if err != nil {
		loadErrs = append(loadErrs, fmt.Errorf("%w: %v", ErrInvalidSessionTTL, err))
	}
	sweep, err := envInt("SWEEP_INTERVAL_SECONDS", k.Int("sweep_interval_seconds"), DefaultSweepIntervalSeconds)
	if err != nil {
		loadErrs = append(loadErrs, fmt.Errorf("%w: %v", ErrInvalidSweepInterval, err))
	}
	uploadMB, err := envInt("MAX_UPLOAD_SIZE_MB", k.Int("max_upload_size_mb"), DefaultMaxUploadSizeMB)
	if err != nil {
		loadErrs = append(loadErrs, fmt.Errorf("%w: %v", ErrInvalidUploadSize, err))
	}
	sampling, err := envFloat("TRACING_SAMPLING_RATE", k.Float64("tracing_sampling_rate"), DefaultTracingSamplingRate)
	if err != nil {
		loadErrs = append(loadErrs, fmt.Errorf("%w: %v", ErrInvalidSamplingRate, err))
	}

	cfg := &Config{
		Port:                 port,
		Env:                  envString("ENV", k.String("env"), DefaultEnv),
		SessionTTLMinutes:    ttl,
		SweepIntervalSeconds: sweep,
		MaxUploadSizeMB:      uploadMB,
		JWTSecret:            envString("JWT_SECRET", k.String("jwt_secret"), ""),
		CORSAllowedOrigins:   envStrings("CORS_ALLOWED_ORIGINS", k.Strings("cors_allowed_origins")),
		TracingEnabled:       envBool("TRACING_ENABLED", k.Bool("tracing_enabled")),
		TracingExporter:      envString("TRACING_EXPORTER", k.String("tracing_exporter"), DefaultTracingExporter),
		TracingEndpoint:      envString("TRACING_ENDPOINT", k.String("tracing_endpoint"), ""),
		TracingSamplingRate:  sampling,
		TracingInsecure:      envBool("TRACING_INSECURE", k.Bool("tracing_insecure")),
	}

	return cfg, append(loadErrs, cfg.Validate()...)
}

// Validate checks the loaded values and returns every violation found.
func (c *Config) Validate() []error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, ErrInvalidPort)
	}
	if c.SessionTTLMinutes <= 0 {
		errs = append(errs, ErrInvalidSessionTTL)
	}
	if c.SweepIntervalSeconds <= 0 {
		errs = append(errs, ErrInvalidSweepInterval)
	}
	if c.MaxUploadSizeMB <= 0 {
		errs = append(errs, ErrInvalidUploadSize)
	}
	if c.TracingSamplingRate < 0 || c.TracingSamplingRate > 1 {
		errs = append(errs, ErrInvalidSamplingRate)
	}
	if c.TracingExporter != "otlp-http" && c.TracingExporter != "otlp-grpc" {
		errs = append(errs, ErrInvalidExporter)
	}
	return errs
}

// AuthEnabled reports whether JWT authentication is configured.
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}

// envString returns the prefixed environment variable if set, then the
// file value, then the default.
func envString(key, fileVal, defaultVal string) string {
	if val := os.Getenv(envPrefix + key); val != "" {
		return val
	}
	if fileVal != "" {
		return fileVal
	}
	return defaultVal
}

// envStrings splits a comma-separated environment variable, falling back
// to the file value.
func envStrings(key string, fileVal []string) []string {
	val := os.Getenv(envPrefix + key)
	if val == "" {
		return fileVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// envInt parses the prefixed environment variable as an integer, falling
// back to the file value (0 means unset), then the default.
func envInt(key string, fileVal, defaultVal int) (int, error) {
	if val := os.Getenv(envPrefix + key); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return defaultVal, fmt.Errorf("parsing %s%s: %w", envPrefix, key, err)
		}
		return i, nil
	}
	if fileVal != 0 {
		return fileVal, nil
	}
	return defaultVal, nil
}

// envFloat parses the prefixed environment variable as a float, falling
// back to the file value (0 means unset), then the default.
func envFloat(key string, fileVal, defaultVal float64) (float64, error) {
	if val := os.Getenv(envPrefix + key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return defaultVal, fmt.Errorf("parsing %s%s: %w", envPrefix, key, err)
		}
		return f, nil
	}
	if fileVal != 0 {
		return fileVal, nil
	}
	return defaultVal, nil
}

// envBool parses the prefixed environment variable as a boolean, falling
// back to the file value. Unset means false.
func envBool(key string, fileVal bool) bool {
	val := strings.ToLower(os.Getenv(envPrefix + key))
	switch val {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	return fileVal
}
