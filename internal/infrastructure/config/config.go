package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for medwatch.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Liveness  LivenessConfig  `yaml:"liveness"`
	History   HistoryConfig   `yaml:"history"`
	Profile   ProfileConfig   `yaml:"profile"`
	Database  DatabaseConfig  `yaml:"database"`
	Journal   JournalConfig   `yaml:"journal"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	UI        UIConfig        `yaml:"ui"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig `yaml:"broker"`
	Auth      MQTTAuthConfig   `yaml:"auth"`
	QoS       int              `yaml:"qos"`
	Namespace string           `yaml:"namespace"`
	KeepAlive int              `yaml:"keepalive"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	TLS  bool   `yaml:"tls"`

	// InsecureSkipVerify disables broker certificate verification.
	// Some hosted brokers are reached through endpoints whose certificate
	// does not match; only enable this for such deployments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`

	// ClientIDPrefix is combined with a random suffix so two monitors
	// never share a session on the broker.
	ClientIDPrefix string `yaml:"client_id_prefix"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// LivenessConfig controls connection supervision. All values are seconds
// except MaxAttempts.
type LivenessConfig struct {
	CheckInterval     int `yaml:"check_interval"`
	DataTimeout       int `yaml:"data_timeout"`
	ReconnectInterval int `yaml:"reconnect_interval"`
	MaxAttempts       int `yaml:"max_attempts"`
}

// HistoryConfig sizes the in-memory reading window.
type HistoryConfig struct {
	Capacity int `yaml:"capacity"`
}

// ProfileConfig selects the storage profile active at startup.
type ProfileConfig struct {
	Default string `yaml:"default"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// JournalConfig enables the transition journal.
type JournalConfig struct {
	Enabled bool `yaml:"enabled"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket feed settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// UIConfig contains terminal dashboard settings.
type UIConfig struct {
	Enabled bool `yaml:"enabled"`

	// ChartMode is one of "split", "temperature", "humidity", "combined".
	ChartMode string `yaml:"chart_mode"`

	// Commands binds single keys to payloads published on the command channel.
	Commands map[string]string `yaml:"commands"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path string `yaml:"path"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MEDWATCH_SECTION_KEY
// For example: MEDWATCH_MQTT_HOST, MEDWATCH_DATABASE_PATH
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

// defaultConfig returns a Config with the reference timings of the
// original dashboard (3s check, 10s data timeout, 5s retry, 10 attempts).
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:           "localhost",
				Port:           8883,
				TLS:            true,
				ClientIDPrefix: "medwatch",
			},
			QoS:       0,
			Namespace: "climatizador",
			KeepAlive: 60,
		},
		Liveness: LivenessConfig{
			CheckInterval:     3,
			DataTimeout:       10,
			ReconnectInterval: 5,
			MaxAttempts:       10,
		},
		History: HistoryConfig{
			Capacity: 60,
		},
		Profile: ProfileConfig{
			Default: "vacina",
		},
		Database: DatabaseConfig{
			Path:        "./data/medwatch.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Journal: JournalConfig{
			Enabled: true,
		},
		API: APIConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		UI: UIConfig{
			Enabled:   true,
			ChartMode: "split",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MEDWATCH_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("MEDWATCH_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("MEDWATCH_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("MEDWATCH_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MEDWATCH_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("MEDWATCH_PROFILE"); v != "" {
		cfg.Profile.Default = v
	}

	if v := os.Getenv("MEDWATCH_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("MEDWATCH_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if strings.Trim(c.MQTT.Namespace, "/") == "" {
		errs = append(errs, "mqtt.namespace is required")
	}
	if strings.ContainsAny(c.MQTT.Namespace, "+#") {
		errs = append(errs, "mqtt.namespace must not contain wildcards")
	}

	// Liveness validation
	if c.Liveness.CheckInterval <= 0 {
		errs = append(errs, "liveness.check_interval must be positive")
	}
	if c.Liveness.DataTimeout <= 0 {
		errs = append(errs, "liveness.data_timeout must be positive")
	}
	if c.Liveness.ReconnectInterval <= 0 {
		errs = append(errs, "liveness.reconnect_interval must be positive")
	}
	if c.Liveness.MaxAttempts < 0 {
		errs = append(errs, "liveness.max_attempts must not be negative")
	}

	if c.History.Capacity <= 0 {
		errs = append(errs, "history.capacity must be positive")
	}

	if c.Journal.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the journal is enabled")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	switch c.UI.ChartMode {
	case "", "split", "temperature", "humidity", "combined":
	default:
		errs = append(errs, "ui.chart_mode must be split, temperature, humidity or combined")
	}
	for key := range c.UI.Commands {
		if len([]rune(key)) != 1 {
			errs = append(errs, fmt.Sprintf("ui.commands key %q must be a single character", key))
		}
	}

	// File output needs somewhere to write.
	if strings.EqualFold(c.Logging.Output, "file") && c.Logging.File.Path == "" {
		errs = append(errs, "logging.file.path is required when logging.output is file")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// CheckInterval returns the liveness check period.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.Liveness.CheckInterval) * time.Second
}

// DataTimeout returns how long the device may stay silent before it is stale.
func (c *Config) DataTimeout() time.Duration {
	return time.Duration(c.Liveness.DataTimeout) * time.Second
}

// ReconnectInterval returns the fixed delay between reconnect attempts.
func (c *Config) ReconnectInterval() time.Duration {
	return time.Duration(c.Liveness.ReconnectInterval) * time.Second
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
