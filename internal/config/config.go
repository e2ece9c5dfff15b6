package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the Miss Match server.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Blob       BlobConfig
	TryOn      TryOnConfig
	Moderation ModerationConfig
	Retention  RetentionConfig
	Admin      AdminConfig
}

type ServerConfig struct {
	Port    int
	Env     string
	BaseURL string // public URL used to build webhook callback addresses
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type BlobConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string // base URL under which stored objects are reachable
}

type TryOnConfig struct {
	Driver            string // default driver; empty falls back to mock
	ProcessingTimeout time.Duration
	WebhookSecret     string
	Flux              FluxConfig
	NanoBanana        NanoBananaConfig
}

type FluxConfig struct {
	BaseURL string
	APIKey  string
}

type NanoBananaConfig struct {
	BaseURL string
	APIKey  string
}

type ModerationConfig struct {
	BaseURL   string
	APIKey    string
	Threshold float64
	Timeout   time.Duration
}

type RetentionConfig struct {
	Period          time.Duration // uploads, jobs and their artifacts
	FailedJobPeriod time.Duration // FAILED rows past this are swept early
}

type AdminConfig struct {
	// Bcrypt hash of the admin bearer token. Admin routes are disabled
	// when empty.
	TokenHash string
}

var knownDrivers = map[string]bool{
	"flux":       true,
	"nanobanana": true,
	"mock":       true,
}

// Load reads configuration from environment variables and returns a validated
// Config. Returns an error with a descriptive message if any required value
// is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:    envInt("MISSMATCH_PORT", 8080),
			Env:     envString("MISSMATCH_ENV", "development"),
			BaseURL: envString("MISSMATCH_BASE_URL", "http://localhost:8080"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Blob: BlobConfig{
			Endpoint:  os.Getenv("BLOB_ENDPOINT"),
			AccessKey: os.Getenv("BLOB_ACCESS_KEY"),
			SecretKey: os.Getenv("BLOB_SECRET_KEY"),
			Bucket:    envString("BLOB_BUCKET", "missmatch"),
			UseSSL:    envBool("BLOB_USE_SSL", false),
			PublicURL: os.Getenv("BLOB_PUBLIC_URL"),
		},
		TryOn: TryOnConfig{
			Driver:            strings.ToLower(os.Getenv("TRYON_DRIVER")),
			ProcessingTimeout: envDuration("TRYON_PROCESSING_TIMEOUT", 5*time.Minute),
			WebhookSecret:     os.Getenv("TRYON_WEBHOOK_SECRET"),
			Flux: FluxConfig{
				BaseURL: os.Getenv("FLUX_API_URL"),
				APIKey:  os.Getenv("FLUX_API_KEY"),
			},
			NanoBanana: NanoBananaConfig{
				BaseURL: os.Getenv("NANO_BANANA_API_URL"),
				APIKey:  os.Getenv("NANO_BANANA_API_KEY"),
			},
		},
		Moderation: ModerationConfig{
			BaseURL:   os.Getenv("NSFW_API_URL"),
			APIKey:    os.Getenv("NSFW_API_KEY"),
			Threshold: envFloat("NSFW_THRESHOLD", 0.7),
			Timeout:   envDuration("NSFW_TIMEOUT", 15*time.Second),
		},
		Retention: RetentionConfig{
			Period:          envDuration("RETENTION_PERIOD", 30*24*time.Hour),
			FailedJobPeriod: envDuration("FAILED_JOB_RETENTION", 24*time.Hour),
		},
		Admin: AdminConfig{
			TokenHash: os.Getenv("ADMIN_TOKEN_HASH"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Blob.Endpoint == "" {
		return fmt.Errorf("BLOB_ENDPOINT is required")
	}
	if c.Blob.AccessKey == "" || c.Blob.SecretKey == "" {
		return fmt.Errorf("BLOB_ACCESS_KEY and BLOB_SECRET_KEY are required")
	}
	if c.Blob.PublicURL == "" {
		return fmt.Errorf("BLOB_PUBLIC_URL is required")
	}

	if c.TryOn.Driver != "" && !knownDrivers[c.TryOn.Driver] {
		return fmt.Errorf("TRYON_DRIVER must be one of flux, nanobanana, mock; got %q", c.TryOn.Driver)
	}
	if c.TryOn.Driver == "flux" && (c.TryOn.Flux.BaseURL == "" || c.TryOn.Flux.APIKey == "") {
		return fmt.Errorf("FLUX_API_URL and FLUX_API_KEY are required when TRYON_DRIVER is flux")
	}
	if c.TryOn.Driver == "nanobanana" && (c.TryOn.NanoBanana.BaseURL == "" || c.TryOn.NanoBanana.APIKey == "") {
		return fmt.Errorf("NANO_BANANA_API_URL and NANO_BANANA_API_KEY are required when TRYON_DRIVER is nanobanana")
	}

	if c.Moderation.Threshold < 0 || c.Moderation.Threshold > 1 {
		return fmt.Errorf("NSFW_THRESHOLD must be between 0 and 1, got %v", c.Moderation.Threshold)
	}

	if c.Retention.Period <= 0 {
		return fmt.Errorf("RETENTION_PERIOD must be positive")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
