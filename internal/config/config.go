// Package config loads the environment-driven process configuration: an
// optional .env file loaded with godotenv underneath plain os.Getenv
// reads with typed defaults, rather than a globally mutable object. Load
// returns one Config passed down explicitly from main; after Load, only
// DisabledTools changes, through ReloadDisabledTools.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the fully resolved, process-lifetime configuration.
type Config struct {
	// DatabaseURL, when set, takes precedence over the discrete
	// DATABASE_{HOST,PORT,USER,PASSWORD,NAME} variables.
	DatabaseURL      string
	DatabaseHost     string
	DatabasePort     int
	DatabaseUser     string
	DatabasePassword string
	DatabaseName     string

	HTTPPort int
	PIDFile  string
	LogLevel string

	DisabledTools map[string]bool

	// EmbeddingDimensions is the fixed width of stored/queried embedding
	// vectors.
	EmbeddingDimensions int

	// CORSAllowedOrigins is a comma-separated allow-list; "*" means permissive.
	CORSAllowedOrigins string

	// Gateway tuning.
	DBMaxRetries        int
	DBRetryBaseDelay    time.Duration
	DBBreakerThreshold  int
	DBBreakerRecovery   time.Duration
	DispatchDeadline    time.Duration

	// SSEHeartbeatInterval and SSEMaxConnsPerUser are read from the
	// environment but are not passed to the SSE hub, which uses its own
	// fixed 15s heartbeat and 5-connections-per-user cap.
	SSEHeartbeatInterval time.Duration
	SSEMaxConnsPerUser   int

	// DBEventsChannel is the single NOTIFY channel name.
	DBEventsChannel string
}

// Load reads configuration from the process environment, optionally
// pre-loading a .env file if present (ignored if absent).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		DatabaseHost:     getenvDefault("DATABASE_HOST", "localhost"),
		DatabasePort:     getenvIntDefault("DATABASE_PORT", 5432),
		DatabaseUser:     getenvDefault("DATABASE_USER", "aidis"),
		DatabasePassword: os.Getenv("DATABASE_PASSWORD"),
		DatabaseName:     getenvDefault("DATABASE_NAME", "aidis_dev"),

		HTTPPort: getenvIntDefault("HTTP_PORT", 8080),
		PIDFile:  getenvDefault("PID_FILE", "/var/run/aidis/aidis.pid"),
		LogLevel: getenvDefault("LOG_LEVEL", "info"),

		DisabledTools: parseDisabledTools(os.Getenv("DISABLED_TOOLS")),

		EmbeddingDimensions: getenvIntDefault("EMBEDDING_DIMENSIONS", 1536),

		CORSAllowedOrigins: getenvDefault("CORS_ALLOWED_ORIGINS", "*"),

		DBMaxRetries:       getenvIntDefault("DB_MAX_RETRIES", 3),
		DBRetryBaseDelay:   getenvDurationDefault("DB_RETRY_BASE_DELAY", time.Second),
		DBBreakerThreshold: getenvIntDefault("DB_BREAKER_THRESHOLD", 5),
		DBBreakerRecovery:  getenvDurationDefault("DB_BREAKER_RECOVERY", 30*time.Second),
		DispatchDeadline:   getenvDurationDefault("DISPATCH_DEADLINE", 30*time.Second),

		SSEHeartbeatInterval: getenvDurationDefault("SSE_HEARTBEAT_INTERVAL", 15*time.Second),
		SSEMaxConnsPerUser:   getenvIntDefault("SSE_MAX_CONNS_PER_USER", 5),

		DBEventsChannel: getenvDefault("DB_EVENTS_CHANNEL", "aidis_changes"),
	}

	if cfg.DatabaseURL == "" && cfg.DatabaseHost == "" {
		return nil, fmt.Errorf("config: DATABASE_URL or DATABASE_HOST must be set")
	}

	return cfg, nil
}

// DSN returns the connection string the DB gateway should dial, preferring
// an explicit DATABASE_URL over the discrete host/port/user fields.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		c.DatabaseUser, c.DatabasePassword, c.DatabaseHost, c.DatabasePort, c.DatabaseName)
}

// Redacted returns a copy safe to print or log (no password).
func (c *Config) Redacted() string {
	return fmt.Sprintf(
		"host=%s port=%d db=%s user=%s httpPort=%d pidFile=%s logLevel=%s disabledTools=%d embeddingDims=%d",
		c.DatabaseHost, c.DatabasePort, c.DatabaseName, c.DatabaseUser,
		c.HTTPPort, c.PIDFile, c.LogLevel, len(c.DisabledTools), c.EmbeddingDimensions)
}

// IsToolDisabled reports whether a tool is administratively disabled.
func (c *Config) IsToolDisabled(name string) bool {
	return c.DisabledTools[name]
}

// ReloadDisabledTools re-reads the DISABLED_TOOLS env var, used by the
// SIGHUP handler (cmd/aidis-server) without restarting the process.
func (c *Config) ReloadDisabledTools() {
	c.DisabledTools = parseDisabledTools(os.Getenv("DISABLED_TOOLS"))
}

func parseDisabledTools(raw string) map[string]bool {
	out := make(map[string]bool)
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			out[name] = true
		}
	}
	return out
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
