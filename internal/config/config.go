package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Storage
	DataBackend  string
	SQLiteDBPath string
	SeedDir      string

	// AMQP, disabled when AMQPURL is empty
	AMQPURL      string
	AMQPExchange string

	// Remote analysis
	OpenAIBaseURL string
	OpenAIModel   string
	OpenAIPrompt  string
	OpenAITimeout time.Duration

	// Connectivity
	ProbeURL      string
	ProbeInterval time.Duration

	LogLevel  string
	LogFormat string // text or json
}

var validBackends = []string{"memory", "sqlite"}

func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "8081"),

		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/tracker.db"),
		SeedDir:      getEnv("SEED_DIR", "./data"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "expense_tracker"),

		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4.1-mini"),
		OpenAIPrompt:  getEnv("OPENAI_PROMPT", ""),
		OpenAITimeout: getEnvDuration("OPENAI_TIMEOUT", 2*time.Minute),

		ProbeURL:      getEnv("CONNECTIVITY_PROBE_URL", "https://api.openai.com"),
		ProbeInterval: getEnvDuration("CONNECTIVITY_INTERVAL", 15*time.Second),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// Validate validates the configuration and returns an error listing every
// problem found.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
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
	}

	if msg := checkHTTPURL("OpenAI base URL", c.OpenAIBaseURL); msg != "" {
		errors = append(errors, msg)
	}
	if c.OpenAIModel == "" {
		errors = append(errors, "OpenAI model cannot be empty")
	}
	if c.OpenAITimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid OpenAI timeout %v: must be at least 1 second", c.OpenAITimeout))
	} else if c.OpenAITimeout > 10*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid OpenAI timeout %v: must be at most 10 minutes", c.OpenAITimeout))
	}

	// An empty probe URL disables probing; reachability then only changes
	// through the API.
	if c.ProbeURL != "" {
		if msg := checkHTTPURL("connectivity probe URL", c.ProbeURL); msg != "" {
			errors = append(errors, msg)
		}
		if c.ProbeInterval < time.Second {
			errors = append(errors, fmt.Sprintf("invalid connectivity interval %v: must be at least 1 second", c.ProbeInterval))
		} else if c.ProbeInterval > time.Hour {
			errors = append(errors, fmt.Sprintf("invalid connectivity interval %v: must be at most 1 hour", c.ProbeInterval))
		}
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func checkHTTPURL(name, raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Sprintf("invalid %s '%s': %v", name, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Sprintf("invalid %s scheme '%s': must be 'http' or 'https'", name, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Sprintf("invalid %s '%s': missing host", name, raw)
	}
	return ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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
