package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the weather core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Entities EntitiesConfig `yaml:"entities"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix string              `yaml:"topic_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// EntitiesConfig holds the reconciliation policy constants.
type EntitiesConfig struct {
	// AvailabilityMultiplier scales a sensor's nominal update period into
	// the maximum age a direct entity's value may reach and still be
	// reported as available. Default: 12.1
	AvailabilityMultiplier float64 `yaml:"availability_multiplier"`

	// RainingWindow is how recent a zero rain time-span reading must be
	// for the "raining now" entity to report true. Default: 15m
	RainingWindow time.Duration `yaml:"raining_window"`

	// RainWindows are the rolling rain accumulation windows created for
	// every sensor with a rain counter.
	RainWindows []RainWindowConfig `yaml:"rain_windows"`

	// RecomputeInterval is how often calculated entities are re-evaluated
	// without a live update, so windows decay as time passes. Default: 1m
	RecomputeInterval time.Duration `yaml:"recompute_interval"`

	// CheckpointInterval is how often entity snapshots are persisted.
	// Default: 5m
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`

	// HistoryRetention bounds the entity history table. Zero keeps everything.
	// Default: 720h
	HistoryRetention time.Duration `yaml:"history_retention"`
}

// RainWindowConfig describes one rolling rain window.
type RainWindowConfig struct {
	Key      string        `yaml:"key"`
	Name     string        `yaml:"name"`
	Duration time.Duration `yaml:"duration"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "Gray Logic Weather",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/weather.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-weather",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
			TopicPrefix: "graylogic/weather",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8081,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Entities: EntitiesConfig{
			AvailabilityMultiplier: 12.1,
			RainingWindow:          15 * time.Minute,
			RainWindows:            DefaultRainWindows(),
			RecomputeInterval:      time.Minute,
			CheckpointInterval:     5 * time.Minute,
			HistoryRetention:       30 * 24 * time.Hour,
		},
	}
}

// DefaultRainWindows returns the standard last-rain, hourly and daily windows.
func DefaultRainWindows() []RainWindowConfig {
	return []RainWindowConfig{
		{Key: "last_rain", Name: "Last Rain", Duration: 15 * time.Minute},
		{Key: "last_hour_rain", Name: "Last Hour Rain", Duration: time.Hour},
		{Key: "last_day_rain", Name: "Last Day Rain", Duration: 24 * time.Hour},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Entities
	if v := os.Getenv("GRAYLOGIC_ENTITIES_AVAILABILITY_MULTIPLIER"); v != "" {
		if m, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Entities.AvailabilityMultiplier = m
		}
	}
	if v := os.Getenv("GRAYLOGIC_ENTITIES_RAINING_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Entities.RainingWindow = d
		}
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if strings.ContainsAny(c.MQTT.TopicPrefix, "+#") {
		errs = append(errs, "mqtt.topic_prefix must not contain wildcards")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	errs = append(errs, c.Entities.validate()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (e EntitiesConfig) validate() []string {
	var errs []string

	if e.AvailabilityMultiplier <= 0 {
		errs = append(errs, "entities.availability_multiplier must be positive")
	}
	if e.RainingWindow <= 0 {
		errs = append(errs, "entities.raining_window must be positive")
	}
	if e.RecomputeInterval <= 0 {
		errs = append(errs, "entities.recompute_interval must be positive")
	}
	if e.CheckpointInterval <= 0 {
		errs = append(errs, "entities.checkpoint_interval must be positive")
	}
	if e.HistoryRetention < 0 {
		errs = append(errs, "entities.history_retention must not be negative")
	}

	seen := make(map[string]bool, len(e.RainWindows))
	for i, w := range e.RainWindows {
		switch {
		case w.Key == "":
			errs = append(errs, fmt.Sprintf("entities.rain_windows[%d].key is required", i))
		case seen[w.Key]:
			errs = append(errs, fmt.Sprintf("entities.rain_windows[%d].key %q is duplicated", i, w.Key))
		case w.Key == "battery" || w.Key == "is_raining":
			errs = append(errs, fmt.Sprintf("entities.rain_windows[%d].key %q is reserved", i, w.Key))
		}
		seen[w.Key] = true
		if w.Duration <= 0 {
			errs = append(errs, fmt.Sprintf("entities.rain_windows[%d].duration must be positive", i))
		}
	}

	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
