package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int
	IdempotencyTTL     time.Duration

	// Backend selection
	DataBackend  string
	SQLiteDBPath string

	// AMQP, disabled when AMQPURL is empty
	AMQPURL              string
	AMQPExchange         string
	AMQPFeedQueue        string
	AMQPEventsRoutingKey string

	// Banking feed HTTP poller, disabled when FeedBaseURL is empty
	FeedBaseURL      string
	FeedPollInterval time.Duration

	// Ledger
	CatalogFile string
	LockTimeout time.Duration

	LogLevel string
}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8081"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		IdempotencyTTL:     getEnvDuration("IDEMPOTENCY_TTL", 10*time.Minute),

		DataBackend:  getEnv("DATA_BACKEND", "memory"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/slotledger.db"),

		AMQPURL:              getEnv("AMQP_URL", ""),
		AMQPExchange:         getEnv("AMQP_EXCHANGE", "slotledger"),
		AMQPFeedQueue:        getEnv("AMQP_FEED_QUEUE", "bank_feed"),
		AMQPEventsRoutingKey: getEnv("AMQP_EVENTS_ROUTING_KEY", "ledger_events"),

		FeedBaseURL:      getEnv("FEED_BASE_URL", ""),
		FeedPollInterval: getEnvDuration("FEED_POLL_INTERVAL", 5*time.Minute),

		CatalogFile: getEnv("CATALOG_FILE", ""),
		LockTimeout: getEnvDuration("LOCK_TIMEOUT", 5*time.Second),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{"memory", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPFeedQueue == "" {
			errors = append(errors, "AMQP feed queue name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPEventsRoutingKey == "" {
			errors = append(errors, "AMQP events routing key cannot be empty when AMQP URL is provided")
		}
	}

	if c.FeedBaseURL != "" {
		if parsedURL, err := url.Parse(c.FeedBaseURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid feed URL '%s': %v", c.FeedBaseURL, err))
		} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid feed URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
		}
		if c.FeedPollInterval < time.Minute {
			errors = append(errors, fmt.Sprintf("invalid feed poll interval %v: must be at least 1 minute", c.FeedPollInterval))
		} else if c.FeedPollInterval > 24*time.Hour {
			errors = append(errors, fmt.Sprintf("invalid feed poll interval %v: must be at most 24 hours", c.FeedPollInterval))
		}
	}

	if c.CatalogFile != "" {
		if _, err := os.Stat(c.CatalogFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("catalog file does not exist: %s", c.CatalogFile))
		}
	}

	if c.LockTimeout < 10*time.Millisecond || c.LockTimeout > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid lock timeout %v: must be between 10ms and 1 minute", c.LockTimeout))
	}
	if c.IdempotencyTTL < time.Second || c.IdempotencyTTL > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid idempotency TTL %v: must be between 1 second and 24 hours", c.IdempotencyTTL))
	}
	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1", c.RateLimitPerMinute))
	}

	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
