package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// OriginAddress is the ship-from address submitted with every tax document.
type OriginAddress struct {
	Line1      string
	City       string
	Region     string
	Country    string
	PostalCode string
}

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisURL    string

	AvataxAccount     string
	AvataxLicenseKey  string
	AvataxCompanyCode string
	AvataxEndpoint    string

	// TaxCalculation gates all outbound GetTax calls; when off every flow
	// short-circuits with a zero-tax result.
	TaxCalculation bool
	// DocumentCommit gates final (committed) documents only.
	DocumentCommit bool

	Origin OriginAddress

	EstimateCacheTTL time.Duration
	OutboundTimeout  time.Duration
	RetryBase        time.Duration
	RetryMaxAttempts int
	RetryJitter      float64

	CircuitMinRequests int
	CircuitFailureRate float64
	CircuitOpenFor     time.Duration

	RateLimitPerMinute int64
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
		DatabaseURL: k.String("DATABASE_URL"),
		RedisURL:    k.String("REDIS_URL"),

		AvataxAccount:     k.String("AVATAX_ACCOUNT"),
		AvataxLicenseKey:  k.String("AVATAX_LICENSE_KEY"),
		AvataxCompanyCode: valueOrDefault(k.String("AVATAX_COMPANY_CODE"), "DEFAULT"),
		AvataxEndpoint:    valueOrDefault(k.String("AVATAX_ENDPOINT"), "https://development.avalara.net"),

		TaxCalculation: parseBoolDefault(k.String("AVATAX_TAX_CALCULATION"), true),
		DocumentCommit: parseBoolDefault(k.String("AVATAX_DOCUMENT_COMMIT"), true),

		Origin: OriginAddress{
			Line1:      k.String("ORIGIN_LINE1"),
			City:       k.String("ORIGIN_CITY"),
			Region:     k.String("ORIGIN_REGION"),
			Country:    valueOrDefault(k.String("ORIGIN_COUNTRY"), "US"),
			PostalCode: k.String("ORIGIN_POSTAL_CODE"),
		},

		EstimateCacheTTL: parseDuration(k.String("TAX_ESTIMATE_CACHE_TTL"), "10m"),
		OutboundTimeout:  parseDuration(k.String("AVATAX_TIMEOUT"), "10s"),
		RetryBase:        parseDuration(k.String("AVATAX_RETRY_BASE"), "200ms"),
		RetryMaxAttempts: intOrDefault(k.Int("AVATAX_RETRY_MAX_ATTEMPTS"), 3),
		RetryJitter:      floatOrDefault(k.Float64("AVATAX_RETRY_JITTER"), 0.2),

		CircuitMinRequests: intOrDefault(k.Int("CIRCUIT_MIN_REQUESTS"), 10),
		CircuitFailureRate: floatOrDefault(k.Float64("CIRCUIT_FAILURE_RATE"), 0.5),
		CircuitOpenFor:     parseDuration(k.String("CIRCUIT_OPEN_FOR"), "30s"),

		RateLimitPerMinute: int64(intOrDefault(k.Int("RATE_LIMIT_PER_MINUTE"), 120)),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.AvataxAccount == "" {
		return nil, errors.New("AVATAX_ACCOUNT is required")
	}
	if cfg.AvataxLicenseKey == "" {
		return nil, errors.New("AVATAX_LICENSE_KEY is required")
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

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func intOrDefault(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

func floatOrDefault(value, fallback float64) float64 {
	if value <= 0 {
		return fallback
	}
	return value
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

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(envs map[string]string) (*Config, error) {
	original := make(map[string]string, len(envs))
	for key := range envs {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, envs[key]); err != nil {
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
