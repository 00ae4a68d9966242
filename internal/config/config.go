package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration for both binaries. The API
// server reads Server/Database/Feed/Inference/Webhook; the dashboard client
// reads Dashboard/Webhook. Everything is environment-provided.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Feed      FeedConfig
	Inference InferenceConfig
	Webhook   WebhookConfig
	Dashboard DashboardConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
	App       AppConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

// DatabaseConfig holds database configuration. MigrationsPath, when set,
// makes the server apply pending migrations on startup.
type DatabaseConfig struct {
	URL             string
	MigrationsPath  string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// FeedConfig holds change-feed (websocket) configuration
type FeedConfig struct {
	AccessKeySecret string
	AllowedOrigins  []string
	ReadBufferSize  int
	WriteBufferSize int
	PingInterval    time.Duration
	PongWait        time.Duration
	EventsPerSecond float64
}

// InferenceConfig holds the classification service configuration
type InferenceConfig struct {
	URL     string
	Token   string
	Model   string
	Timeout time.Duration
}

// WebhookConfig holds the n8n notification webhook configuration
type WebhookConfig struct {
	URL     string
	Timeout time.Duration
}

// DashboardConfig holds the realtime dashboard client configuration
type DashboardConfig struct {
	FeedURL        string
	AccessKey      string
	APIBaseURL     string
	MaxRetries     int
	RetryBaseDelay time.Duration
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	BurstSize         int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string
	Version     string
	Environment string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", ":8080"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getDurationOrDefault("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			CORSOrigins:     getStringSliceOrDefault("CORS_ORIGINS", []string{"http://localhost:5173"}),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MigrationsPath:  os.Getenv("MIGRATIONS_PATH"),
			MaxOpenConns:    getIntOrDefault("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntOrDefault("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationOrDefault("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getDurationOrDefault("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Feed: FeedConfig{
			AccessKeySecret: os.Getenv("FEED_ACCESS_KEY_SECRET"),
			AllowedOrigins:  getStringSliceOrDefault("FEED_ALLOWED_ORIGINS", []string{}),
			ReadBufferSize:  getIntOrDefault("FEED_READ_BUFFER_SIZE", 1024),
			WriteBufferSize: getIntOrDefault("FEED_WRITE_BUFFER_SIZE", 1024),
			PingInterval:    getDurationOrDefault("FEED_PING_INTERVAL", 54*time.Second),
			PongWait:        getDurationOrDefault("FEED_PONG_WAIT", 60*time.Second),
			EventsPerSecond: getFloatOrDefault("FEED_EVENTS_PER_SECOND", 10),
		},
		Inference: InferenceConfig{
			URL:     os.Getenv("INFERENCE_API_URL"),
			Token:   os.Getenv("INFERENCE_API_TOKEN"),
			Model:   getEnvOrDefault("INFERENCE_MODEL", "meta-llama/Llama-3.2-1B-Instruct"),
			Timeout: getDurationOrDefault("INFERENCE_TIMEOUT", 30*time.Second),
		},
		Webhook: WebhookConfig{
			URL:     os.Getenv("WEBHOOK_URL"),
			Timeout: getDurationOrDefault("WEBHOOK_TIMEOUT", 10*time.Second),
		},
		Dashboard: DashboardConfig{
			FeedURL:        os.Getenv("BACKEND_FEED_URL"),
			AccessKey:      os.Getenv("BACKEND_ACCESS_KEY"),
			APIBaseURL:     os.Getenv("API_BASE_URL"),
			MaxRetries:     getIntOrDefault("FEED_MAX_RETRIES", 3),
			RetryBaseDelay: getDurationOrDefault("FEED_RETRY_BASE_DELAY", 2*time.Second),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getBoolOrDefault("RATE_LIMIT_ENABLED", true),
			RequestsPerSecond: getFloatOrDefault("RATE_LIMIT_RPS", 10),
			BurstSize:         getIntOrDefault("RATE_LIMIT_BURST", 20),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
		App: AppConfig{
			Name:        getEnvOrDefault("APP_NAME", "ticket-dashboard"),
			Version:     getEnvOrDefault("APP_VERSION", "dev"),
			Environment: getEnvOrDefault("APP_ENV", "development"),
		},
	}

	return cfg, nil
}

// ValidateServer validates the configuration required by the API server.
func (c *Config) ValidateServer() error {
	var errs []string

	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.Feed.AccessKeySecret == "" {
		errs = append(errs, "FEED_ACCESS_KEY_SECRET is required")
	}
	if c.Inference.URL == "" {
		errs = append(errs, "INFERENCE_API_URL is required")
	}

	if c.App.Environment == "production" {
		if len(c.Feed.AccessKeySecret) < 32 {
			errs = append(errs, "FEED_ACCESS_KEY_SECRET must be at least 32 characters in production")
		}
		if len(c.Feed.AllowedOrigins) == 0 {
			errs = append(errs, "FEED_ALLOWED_ORIGINS must be set in production")
		}
	}

	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		errs = append(errs, "DB_MAX_IDLE_CONNS cannot be greater than DB_MAX_OPEN_CONNS")
	}

	if len(errs) > 0 {
		return errors.New("configuration errors:\n  - " + strings.Join(errs, "\n  - "))
	}
	return nil
}

// ValidateDashboard validates the configuration required by the dashboard client.
func (c *Config) ValidateDashboard() error {
	var errs []string

	if c.Dashboard.FeedURL == "" {
		errs = append(errs, "BACKEND_FEED_URL is required")
	}
	if c.Dashboard.AccessKey == "" {
		errs = append(errs, "BACKEND_ACCESS_KEY is required")
	}
	if c.Dashboard.APIBaseURL == "" {
		errs = append(errs, "API_BASE_URL is required")
	}
	if c.Dashboard.MaxRetries < 0 {
		errs = append(errs, "FEED_MAX_RETRIES cannot be negative")
	}

	if len(errs) > 0 {
		return errors.New("configuration errors:\n  - " + strings.Join(errs, "\n  - "))
	}
	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// Helper functions

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// String returns a redacted string representation of the config (safe for logging)
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Server: %s, DB: %s, Feed: [REDACTED], Inference: %s, Environment: %s}",
		c.Server.Port,
		redactURL(c.Database.URL),
		c.Inference.Model,
		c.App.Environment,
	)
}

// redactURL redacts sensitive parts of a database URL
func redactURL(url string) string {
	if url == "" {
		return ""
	}
	if idx := strings.Index(url, "@"); idx > 0 {
		return "[REDACTED]" + url[idx:]
	}
	return "[REDACTED]"
}
