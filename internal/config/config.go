package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	RedisURL    string
	FrontendURL string

	// Uploads
	UploadDir      string
	MaxUploadBytes int64

	// Janitor sweep interval (blob age and store TTL backstops)
	CleanupInterval time.Duration
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "3001"),
		Env:             getEnv("ENV", "development"),
		RedisURL:        os.Getenv("REDIS_URL"),
		FrontendURL:     getEnv("FRONTEND_URL", "http://localhost:3000"),
		UploadDir:       getEnv("UPLOAD_DIR", "uploads"),
		MaxUploadBytes:  getEnvInt64("MAX_UPLOAD_BYTES", 10*1024*1024),
		CleanupInterval: getEnvDuration("CLEANUP_INTERVAL", time.Hour),
	}

	// In production, require the durable store
	if cfg.Env == "production" && cfg.RedisURL == "" {
		panic("REDIS_URL is required in production")
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
