package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds process configuration read from the environment
type Config struct {
	DatabaseURL string
	JWTSecret   string
	Port        string
	Environment string

	// Engine configuration
	RulesFile string

	// Background work
	SweepInterval      time.Duration
	DigestInterval     time.Duration
	DigestFetchTimeout time.Duration
	DispatchWorkers    int
	DispatchRate       float64
	SourceTimeout      time.Duration
	SourceCacheTTL     time.Duration
	SourceURLs         string
	SourceRate         float64

	// Security configuration
	AllowedOrigins  string
	TrustedProxies  string
	EnableRateLimit bool
	MaxRequestSize  int64
}

// New creates a new configuration instance from environment variables
func New() *Config {
	return &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		RulesFile:   getEnv("RULES_FILE", ""),

		SweepInterval:      time.Duration(getEnvAsInt("SWEEP_INTERVAL_SECONDS", 60)) * time.Second,
		DigestInterval:     time.Duration(getEnvAsInt("DIGEST_INTERVAL_MINUTES", 15)) * time.Minute,
		DigestFetchTimeout: time.Duration(getEnvAsInt("DIGEST_FETCH_TIMEOUT_SECONDS", 20)) * time.Second,
		DispatchWorkers:    getEnvAsInt("DISPATCH_WORKERS", 4),
		DispatchRate:       getEnvAsFloat("DISPATCH_RATE_PER_SECOND", 10),
		SourceTimeout:      time.Duration(getEnvAsInt("SOURCE_TIMEOUT_SECONDS", 8)) * time.Second,
		SourceCacheTTL:     time.Duration(getEnvAsInt("SOURCE_CACHE_MINUTES", 30)) * time.Minute,
		SourceURLs:         getEnv("SOURCE_URLS", ""),
		SourceRate:         getEnvAsFloat("SOURCE_RATE_PER_SECOND", 2),

		AllowedOrigins:  getEnv("ALLOWED_ORIGINS", ""),
		TrustedProxies:  getEnv("TRUSTED_PROXIES", ""),
		EnableRateLimit: getEnv("ENABLE_RATE_LIMIT", "true") == "true",
		MaxRequestSize:  getEnvAsInt64("MAX_REQUEST_SIZE", 1024*1024), // 1MB default
	}
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// HasDatabase returns true if a Postgres URL is configured
func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

// GetAllowedOrigins returns a slice of allowed CORS origins
func (c *Config) GetAllowedOrigins() []string {
	if c.AllowedOrigins == "" {
		return []string{}
	}
	return splitList(c.AllowedOrigins)
}

// GetTrustedProxies returns a slice of trusted proxy IPs
func (c *Config) GetTrustedProxies() []string {
	if c.TrustedProxies == "" {
		return []string{}
	}
	return splitList(c.TrustedProxies)
}

// SourceEndpoint is one listing or assessor page queried for valuations
type SourceEndpoint struct {
	Name     string
	URL      string
	Accuracy float64
}

// GetSources parses SOURCE_URLS entries of the form name=url or
// name=url@accuracy. Entries without a name or URL are skipped.
func (c *Config) GetSources() []SourceEndpoint {
	var out []SourceEndpoint
	for _, entry := range splitList(c.SourceURLs) {
		name, rest, ok := strings.Cut(entry, "=")
		if !ok || name == "" || rest == "" {
			continue
		}
		src := SourceEndpoint{Name: strings.TrimSpace(name), URL: rest, Accuracy: 0.8}
		if i := strings.LastIndex(rest, "@"); i > 0 {
			if acc, err := strconv.ParseFloat(rest[i+1:], 64); err == nil && acc > 0 && acc <= 1 {
				src.URL, src.Accuracy = rest[:i], acc
			}
		}
		out = append(out, src)
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
