package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	minBackendTimeout = 10 * time.Second
	maxBackendTimeout = 30 * time.Second
)

// Config holds the whole service configuration.
type Config struct {
	HTTP     HTTPConfig
	Database DatabaseConfig
	Backend  BackendConfig
	Cache    CacheConfig
	Notify   NotifyConfig
	Lexicon  LexiconConfig
}

type HTTPConfig struct {
	Port string
}

// DatabaseConfig describes the Postgres history store.
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	Migrate      bool // apply embedded migrations at start-up
}

// BackendConfig selects the reasoning backend.  An empty APIKey disables
// it and the rule classifier answers every request.
type BackendConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	Timeout  time.Duration
	Fallback bool
}

// CacheConfig configures the optional Redis result cache.
type CacheConfig struct {
	RedisAddr string
	TTL       time.Duration
}

type NotifyConfig struct {
	Channel string
}

// LexiconConfig points at an optional JSON table replacing the built-in one.
type LexiconConfig struct {
	Path string
}

// Load reads the configuration from the environment.  A .env file in the
// working directory is honoured when present.
func Load() (*Config, error) {
	// missing .env is fine
	_ = godotenv.Load()

	timeout := time.Duration(getEnvInt("BACKEND_TIMEOUT_SECONDS", 20)) * time.Second
	if timeout < minBackendTimeout {
		timeout = minBackendTimeout
	}
	if timeout > maxBackendTimeout {
		timeout = maxBackendTimeout
	}

	cfg := &Config{
		HTTP: HTTPConfig{
			Port: getEnvOrDefault("PORT", "8080"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 10),
			Migrate:      getEnvBool("DB_MIGRATE", true),
		},
		Backend: BackendConfig{
			APIKey:   os.Getenv("OPENAI_API_KEY"),
			BaseURL:  os.Getenv("OPENAI_BASE_URL"),
			Model:    getEnvOrDefault("OPENAI_MODEL_TRIAGE", "gpt-4o-mini"),
			Timeout:  timeout,
			Fallback: getEnvBool("BACKEND_FALLBACK", true),
		},
		Cache: CacheConfig{
			RedisAddr: strings.TrimPrefix(os.Getenv("REDIS_ADDR"), "redis://"),
			TTL:       time.Duration(getEnvInt("CACHE_TTL_MINUTES", 60)) * time.Minute,
		},
		Notify: NotifyConfig{
			Channel: getEnvOrDefault("POSTGRES_NOTIFY_CHANNEL", "advisories"),
		},
		Lexicon: LexiconConfig{
			Path: os.Getenv("LEXICON_PATH"),
		},
	}
	return cfg, nil
}

// Validate reports configuration the server cannot start with.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("DATABASE_URL must be set")
	}
	if c.Backend.APIKey == "" && !c.Backend.Fallback {
		return errors.New("BACKEND_FALLBACK=false requires OPENAI_API_KEY")
	}
	return nil
}

// BackendEnabled reports whether a reasoning backend is configured.
func (c *Config) BackendEnabled() bool { return c.Backend.APIKey != "" }

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil && v > 0 {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key))); err == nil {
		return v
	}
	return defaultValue
}
