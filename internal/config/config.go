package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for taskdesk
type Config struct {
	Gateway   GatewayConfig
	Search    SearchConfig
	Console   ConsoleConfig
	Reference ReferenceConfig
	Redis     RedisConfig
	Logging   LoggingConfig
}

// GatewayConfig describes how the client reaches the task gateway
type GatewayConfig struct {
	BaseURL string

	// Per-request timeout; a timed out call counts as a failed operation
	Timeout time.Duration
}

// SearchConfig holds search-as-you-type settings
type SearchConfig struct {
	Debounce time.Duration
}

// ConsoleConfig holds settings for the local console API
type ConsoleConfig struct {
	ListenAddr string

	// How long a notification stays visible, and how many are kept
	NotificationTTL      time.Duration
	NotificationCapacity int
}

// ReferenceConfig holds settings for the reference gateway binary
type ReferenceConfig struct {
	ListenAddr  string
	ExecTimeout time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// Default returns a configuration with sensible defaults, overridden by any
// TASKDESK_* / REDIS_* environment variables that are set.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			BaseURL: getEnv("TASKDESK_GATEWAY_URL", "http://localhost:8080"),
			Timeout: getEnvDuration("TASKDESK_GATEWAY_TIMEOUT", 10*time.Second),
		},
		Search: SearchConfig{
			Debounce: getEnvDuration("TASKDESK_SEARCH_DEBOUNCE", 300*time.Millisecond),
		},
		Console: ConsoleConfig{
			ListenAddr:           getEnv("TASKDESK_CONSOLE_ADDR", ":3000"),
			NotificationTTL:      getEnvDuration("TASKDESK_NOTIFICATION_TTL", 5*time.Second),
			NotificationCapacity: getEnvInt("TASKDESK_NOTIFICATION_CAPACITY", 20),
		},
		Reference: ReferenceConfig{
			ListenAddr:  getEnv("TASKDESK_REFERENCE_ADDR", ":8080"),
			ExecTimeout: getEnvDuration("TASKDESK_EXEC_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: 10,
		},
		Logging: LoggingConfig{
			Level:  getEnv("TASKDESK_LOG_LEVEL", "info"),
			Format: getEnv("TASKDESK_LOG_FORMAT", "text"),
		},
	}
}

// Load reads an optional .env file into the environment and returns the
// resulting validated configuration. A missing .env file is not an error.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg := Default()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RedisAddr returns the full Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	u, err := url.Parse(c.Gateway.BaseURL)
	if err != nil || c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway base url is invalid: %q", c.Gateway.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("gateway base url must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("gateway base url must include a host")
	}
	if c.Gateway.Timeout <= 0 {
		return fmt.Errorf("gateway timeout must be positive")
	}
	if c.Search.Debounce <= 0 {
		return fmt.Errorf("search debounce must be positive")
	}
	if c.Console.NotificationCapacity < 1 {
		return fmt.Errorf("notification capacity must be at least 1")
	}
	if c.Redis.Host == "" {
		return fmt.Errorf("redis host cannot be empty")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration syntax ("750ms") or a bare number of milliseconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
