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

	"wastewater/internal/core"
)

const bootstrapLayout = "2006-01"

type Config struct {
	// Runtime
	AppEnv   string
	LogLevel string

	// HTTP Server
	Port               string
	CacheTTL           time.Duration
	CORSAllowedOrigins []string

	// Store
	StoreBackend string
	StorePath    string
	SQLiteDBPath string

	// Source
	SourceBackend    string
	SourceURL        string
	SourceSeedFile   string
	SourceTimeout    time.Duration
	SourceMaxRetries int

	// Planner
	BootstrapMonth   string
	MaxWindowsPerRun int

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets export
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// MQTT notifications
	MQTTBrokerURL   string
	MQTTClientID    string
	MQTTTopicPrefix string

	// Parquet snapshot
	SnapshotPath string

	// Metrics
	MetricsTextfile string
}

func Load() *Config {
	cfg := &Config{
		AppEnv:   getEnv("APP_ENV", "dev"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		Port:     getEnv("PORT", "8081"),
		CacheTTL: getEnvDuration("CACHE_TTL", time.Minute),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),

		StoreBackend: getEnv("STORE_BACKEND", "file"),
		StorePath:    getEnv("STORE_PATH", "./data/wastewater.json"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/wastewater.db"),

		SourceBackend:    getEnv("SOURCE_BACKEND", "remote"),
		SourceURL:        getEnv("SOURCE_URL", ""),
		SourceSeedFile:   getEnv("SOURCE_SEED_FILE", "./data/seed.json"),
		SourceTimeout:    getEnvDuration("SOURCE_TIMEOUT", 30*time.Second),
		SourceMaxRetries: getEnvInt("SOURCE_MAX_RETRIES", 0),

		BootstrapMonth:   getEnv("BOOTSTRAP_MONTH", "2022-02"),
		MaxWindowsPerRun: getEnvInt("MAX_WINDOWS_PER_RUN", 1),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "wastewater"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "dataset_updated"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Measurements"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")),

		MQTTBrokerURL:   getEnv("MQTT_BROKER_URL", ""),
		MQTTClientID:    getEnv("MQTT_CLIENT_ID", "wastewater-sync"),
		MQTTTopicPrefix: getEnv("MQTT_TOPIC_PREFIX", "wastewater"),

		SnapshotPath: getEnv("SNAPSHOT_PATH", ""),

		MetricsTextfile: getEnv("METRICS_TEXTFILE", ""),
	}

	return cfg
}

// Bootstrap returns the first day of the configured bootstrap month.
func (c *Config) Bootstrap() (core.Date, error) {
	t, err := time.Parse(bootstrapLayout, strings.TrimSpace(c.BootstrapMonth))
	if err != nil {
		return core.Date{}, fmt.Errorf("invalid bootstrap month '%s': must be YYYY-MM", c.BootstrapMonth)
	}
	return core.NewDate(t.Year(), int(t.Month()), 1), nil
}

// Validate checks the settings used by the ingest job.
func (c *Config) Validate() error {
	var errs []string
	errs = append(errs, c.validateRuntime()...)
	errs = append(errs, c.validateStore()...)
	errs = append(errs, c.validateSource()...)
	errs = append(errs, c.validatePlanner()...)
	errs = append(errs, c.validateAMQP()...)
	errs = append(errs, c.validateSheets()...)
	errs = append(errs, c.validateMQTT()...)
	return combine(errs)
}

// ValidateServer checks the settings used by the HTTP server.
func (c *Config) ValidateServer() error {
	var errs []string
	errs = append(errs, c.validateRuntime()...)
	errs = append(errs, c.validateStore()...)
	errs = append(errs, c.validateAMQP()...)

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}
	if c.CacheTTL < 0 {
		errs = append(errs, fmt.Sprintf("invalid cache TTL %v: must not be negative", c.CacheTTL))
	}
	if len(c.CORSAllowedOrigins) == 0 {
		errs = append(errs, "CORS_ALLOWED_ORIGINS cannot be empty")
	}
	return combine(errs)
}

func combine(errs []string) error {
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func (c *Config) validateRuntime() []string {
	var errs []string
	if !slices.Contains([]string{"dev", "prod"}, c.AppEnv) {
		errs = append(errs, fmt.Sprintf("invalid APP_ENV '%s': must be one of [dev prod]", c.AppEnv))
	}
	validLevels := []string{"debug", "info", "warn", "warning", "error"}
	if !slices.Contains(validLevels, strings.ToLower(c.LogLevel)) {
		errs = append(errs, fmt.Sprintf("invalid LOG_LEVEL '%s': must be one of %v", c.LogLevel, validLevels))
	}
	return errs
}

func (c *Config) validateStore() []string {
	var errs []string
	validStores := []string{"file", "sqlite"}
	if !slices.Contains(validStores, c.StoreBackend) {
		errs = append(errs, fmt.Sprintf("invalid store backend '%s': must be one of %v", c.StoreBackend, validStores))
	}
	switch c.StoreBackend {
	case "file":
		if c.StorePath == "" {
			errs = append(errs, "store path cannot be empty when using file backend")
		}
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errs = append(errs, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			// Check if directory exists or can be created
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errs = append(errs, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}
	return errs
}

func (c *Config) validateSource() []string {
	var errs []string
	validSources := []string{"remote", "memory"}
	if !slices.Contains(validSources, c.SourceBackend) {
		errs = append(errs, fmt.Sprintf("invalid source backend '%s': must be one of %v", c.SourceBackend, validSources))
	}
	if c.SourceBackend == "remote" {
		if c.SourceURL == "" {
			errs = append(errs, "SOURCE_URL is required when using remote source")
		} else if parsedURL, err := url.Parse(c.SourceURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid source URL '%s': %v", c.SourceURL, err))
		} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			errs = append(errs, fmt.Sprintf("invalid source URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
		}
	}
	if c.SourceBackend == "memory" && c.SourceSeedFile == "" {
		errs = append(errs, "SOURCE_SEED_FILE is required when using memory source")
	}
	if c.SourceTimeout < time.Second {
		errs = append(errs, fmt.Sprintf("invalid source timeout %v: must be at least 1 second", c.SourceTimeout))
	} else if c.SourceTimeout > 10*time.Minute {
		errs = append(errs, fmt.Sprintf("invalid source timeout %v: must be at most 10 minutes", c.SourceTimeout))
	}
	if c.SourceMaxRetries < 0 || c.SourceMaxRetries > 10 {
		errs = append(errs, fmt.Sprintf("invalid source max retries %d: must be between 0 and 10", c.SourceMaxRetries))
	}
	return errs
}

func (c *Config) validatePlanner() []string {
	var errs []string
	if _, err := c.Bootstrap(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.MaxWindowsPerRun < 1 || c.MaxWindowsPerRun > 120 {
		errs = append(errs, fmt.Sprintf("invalid max windows per run %d: must be between 1 and 120", c.MaxWindowsPerRun))
	}
	return errs
}

func (c *Config) validateAMQP() []string {
	if c.AMQPURL == "" {
		return nil
	}
	var errs []string
	if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
		errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
	} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
		errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
	}
	if c.AMQPExchange == "" {
		errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
	}
	if c.AMQPQueue == "" {
		errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
	}
	return errs
}

func (c *Config) validateMQTT() []string {
	if c.MQTTBrokerURL == "" {
		return nil
	}
	var errs []string
	validSchemes := []string{"tcp", "ssl", "tls", "ws", "wss", "mqtt", "mqtts"}
	if parsedURL, err := url.Parse(c.MQTTBrokerURL); err != nil {
		errs = append(errs, fmt.Sprintf("invalid MQTT broker URL '%s': %v", c.MQTTBrokerURL, err))
	} else if !slices.Contains(validSchemes, parsedURL.Scheme) {
		errs = append(errs, fmt.Sprintf("invalid MQTT broker URL scheme '%s': must be one of %v", parsedURL.Scheme, validSchemes))
	}
	if c.MQTTClientID == "" {
		errs = append(errs, "MQTT client ID cannot be empty when MQTT broker URL is provided")
	}
	return errs
}

func (c *Config) validateSheets() []string {
	if c.GoogleSpreadsheetID == "" {
		return nil
	}
	var errs []string
	if c.GoogleSheetName == "" {
		errs = append(errs, "Google Sheet name is required when GOOGLE_SPREADSHEET_ID is set")
	}
	hasJSON := c.GoogleServiceAccountJSON != ""
	hasFile := c.GoogleServiceAccountFile != ""
	if !hasJSON && !hasFile {
		errs = append(errs, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for sheets export")
	}
	if !hasJSON && hasFile {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errs = append(errs, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}
	return errs
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
