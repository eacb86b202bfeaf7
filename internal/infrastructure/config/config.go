package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Gateway password bounds enforced by the controller's login message.
const (
	minPasswordLength = 1
	maxPasswordLength = 16
)

// Config is the root configuration structure for the pool bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// GatewayConfig describes the ScreenLogic gateway and how to talk to it.
type GatewayConfig struct {
	// Host is the gateway IP or hostname. Empty means "not configured";
	// every controller operation then fails with a discovery error.
	Host string `yaml:"host"`

	// Port is the gateway TCP port. Default: 80
	Port int `yaml:"port"`

	// Name, Type and Subtype are informational and echoed in the data dump.
	Name    string `yaml:"name"`
	Type    int    `yaml:"type"`
	Subtype int    `yaml:"subtype"`

	// Password is sent during login. 1 to 16 bytes.
	Password string `yaml:"password"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// RefreshInterval is the minimum age of cached status before the
	// bridge pulls again. Default: 30s
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// Address returns host:port for the gateway, or "" when no host is set.
func (g GatewayConfig) Address() string {
	if g.Host == "" {
		return ""
	}
	return net.JoinHostPort(g.Host, strconv.Itoa(g.Port))
}

// BridgeConfig contains settings for the MQTT-facing side of the bridge.
type BridgeConfig struct {
	ID             string        `yaml:"id"`
	HealthInterval time.Duration `yaml:"health_interval"`
	PublishStates  bool          `yaml:"publish_states"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_GATEWAY_HOST, GRAYLOGIC_DATABASE_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

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

// LoadOrDefault behaves like Load but falls back to defaults plus
// environment overrides when path does not exist. The CLI uses it so
// one-shot commands work with nothing but GRAYLOGIC_GATEWAY_HOST set.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil && os.IsNotExist(err) {
		cfg := Default()
		applyEnvOverrides(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("validating config: %w", err)
		}
		return cfg, nil
	}
	return Load(path)
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Gray Logic Pool",
		},
		Gateway: GatewayConfig{
			Port:            80,
			Password:        "mypassword",
			ConnectTimeout:  5 * time.Second,
			RequestTimeout:  5 * time.Second,
			RefreshInterval: 30 * time.Second,
		},
		Bridge: BridgeConfig{
			ID:             "screenlogic-bridge-01",
			HealthInterval: 30 * time.Second,
			PublishStates:  true,
		},
		Database: DatabaseConfig{
			Enabled:     true,
			Path:        "./data/poolbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-poolbridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Gateway
	if v := os.Getenv("GRAYLOGIC_GATEWAY_HOST"); v != "" {
		cfg.Gateway.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("GRAYLOGIC_GATEWAY_PASSWORD"); v != "" {
		cfg.Gateway.Password = v
	}

	// Database
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

	// Logging
	if v := os.Getenv("GRAYLOGIC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration and reports every problem at once.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	// Gateway validation
	if n := len(c.Gateway.Password); n < minPasswordLength || n > maxPasswordLength {
		errs = append(errs, fmt.Sprintf("gateway.password must be %d to %d bytes", minPasswordLength, maxPasswordLength))
	}
	switch {
	case c.Gateway.Port < 0 || c.Gateway.Port > 65535:
		errs = append(errs, "gateway.port must be between 0 and 65535")
	case c.Gateway.Port == 0 && c.Gateway.Host != "":
		errs = append(errs, "gateway.port is required when gateway.host is set")
	}
	if c.Gateway.ConnectTimeout < 0 || c.Gateway.RequestTimeout < 0 {
		errs = append(errs, "gateway timeouts must not be negative")
	}
	if c.Gateway.RefreshInterval <= 0 {
		errs = append(errs, "gateway.refresh_interval must be positive")
	}

	// Bridge validation
	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}
	if c.Bridge.HealthInterval < 0 {
		errs = append(errs, "bridge.health_interval must not be negative")
	}

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the database is enabled")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
		if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
			errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Redacted returns a copy with secrets replaced, suitable for logging
// or the data dump.
func (c *Config) Redacted() Config {
	out := *c
	if out.Gateway.Password != "" {
		out.Gateway.Password = redacted
	}
	if out.MQTT.Auth.Password != "" {
		out.MQTT.Auth.Password = redacted
	}
	return out
}

const redacted = "********"
