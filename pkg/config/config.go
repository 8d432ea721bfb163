package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	AppEnv      string
	Port        string
	FrontendURL string

	DatabaseURL  string
	DatabasePath string

	IdentityJWTSecret    string
	IdentityJWTPublicKey string
	IdentityIssuer       string
	AdminEmails          []string

	AlphaVantageAPIKey        string
	AlphaVantageBaseURL       string
	AlphaVantageRatePerMinute int
	ProviderTimeout           time.Duration

	SendGridAPIKey  string
	DigestEmailFrom string

	EnableScheduler bool
	RateLimitRPS    float64
	RateLimitBurst  int
	SentryDSN       string
}

// Load reads configuration from environment variables. When CONFIG_FILE points
// at a TOML file its keys (the lower-cased variable names) act as defaults
// that the environment overrides.
func Load() (*Config, error) {
	file, err := readFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}
	src := source{file: file}

	timeout, err := time.ParseDuration(src.get("PROVIDER_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid PROVIDER_TIMEOUT: %w", err)
	}

	return &Config{
		AppEnv:      src.get("APP_ENV", "development"),
		Port:        src.get("PORT", "8080"),
		FrontendURL: src.get("FRONTEND_URL", "http://localhost:3000"),

		DatabaseURL:  src.get("DATABASE_URL", ""),
		DatabasePath: src.get("DATABASE_PATH", "./data/stockpulse.db"),

		IdentityJWTSecret:    src.get("IDENTITY_JWT_SECRET", ""),
		IdentityJWTPublicKey: src.get("IDENTITY_JWT_PUBLIC_KEY", ""),
		IdentityIssuer:       src.get("IDENTITY_ISSUER", ""),
		AdminEmails:          splitList(src.get("ADMIN_EMAILS", "")),

		AlphaVantageAPIKey:        src.get("ALPHA_VANTAGE_API_KEY", ""),
		AlphaVantageBaseURL:       src.get("ALPHA_VANTAGE_BASE_URL", "https://www.alphavantage.co/query"),
		AlphaVantageRatePerMinute: src.getInt("ALPHA_VANTAGE_RATE_PER_MINUTE", 5),
		ProviderTimeout:           timeout,

		SendGridAPIKey:  src.get("SENDGRID_API_KEY", ""),
		DigestEmailFrom: src.get("DIGEST_EMAIL_FROM", "digest@stockpulse.app"),

		EnableScheduler: src.get("ENABLE_SCHEDULER", "false") == "true",
		RateLimitRPS:    src.getFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:  src.getInt("RATE_LIMIT_BURST", 20),
		SentryDSN:       src.get("SENTRY_DSN", ""),
	}, nil
}

// IsProduction reports whether the app runs with APP_ENV=production
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

type source struct {
	file map[string]any
}

func (s source) get(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if value, ok := s.file[strings.ToLower(key)]; ok {
		return fmt.Sprint(value)
	}
	return defaultValue
}

func (s source) getInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(s.get(key, strconv.Itoa(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return n
}

func (s source) getFloat(key string, defaultValue float64) float64 {
	f, err := strconv.ParseFloat(s.get(key, strconv.FormatFloat(defaultValue, 'f', -1, 64)), 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func readFile(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	values := make(map[string]any)
	if err := toml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return values, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
