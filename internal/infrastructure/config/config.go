package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Radio driver names accepted in radio.driver.
const (
	DriverFake = "fake"
	DriverMQTT = "mqtt"
	DriverBLE  = "ble"
)

// Config is the root configuration structure for Pulse Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Studio   StudioConfig   `yaml:"studio"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Ops      OpsConfig      `yaml:"ops"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Radio    RadioConfig    `yaml:"radio"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Scoring  ScoringConfig  `yaml:"scoring"`
}

// StudioConfig identifies the installation.
type StudioConfig struct {
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
}

// OpsConfig contains the operations HTTP listener settings (health, metrics).
type OpsConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts OpsTimeoutConfig `yaml:"timeouts"`
}

// OpsTimeoutConfig contains HTTP timeout settings (seconds).
type OpsTimeoutConfig struct {
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

// RadioConfig describes the radio sticks, their channel pool and the
// reconnect policy applied to every channel.
type RadioConfig struct {
	// Driver selects the hardware adapter: "fake", "mqtt" or "ble".
	Driver string `yaml:"driver"`

	// Sticks lists the physical radio sticks and how many channels each exposes.
	Sticks []StickConfig `yaml:"sticks"`

	// ReconnectDelay is the wait after a bound channel loses its sensor.
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`

	// ReconnectBackoff is the wait after a reconnect attempt failed to bind.
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff"`

	// SearchTimeout bounds how long a reconnecting channel may search
	// before the attempt counts as failed. 0 leaves it to the driver.
	SearchTimeout time.Duration `yaml:"search_timeout"`

	// EventQueue is the per-channel event buffer size.
	EventQueue int `yaml:"event_queue"`

	// HealthInterval is how often channel health is published over MQTT.
	HealthInterval time.Duration `yaml:"health_interval"`

	// Agent optionally supervises the external radio agent used by the mqtt driver.
	Agent AgentConfig `yaml:"agent"`

	// BLE tunes the Bluetooth LE driver.
	BLE BLEConfig `yaml:"ble"`
}

// StickConfig describes one radio stick.
type StickConfig struct {
	// ID is the stick number reported in readings (e.g. 1, 2).
	ID uint8 `yaml:"id"`

	// Channels is the number of channel slots to open on this stick.
	Channels int `yaml:"channels"`

	// Targets optionally pins slots to known device ids, by slot index.
	// Missing entries or 0 mean wildcard search.
	Targets []uint32 `yaml:"targets"`
}

// AgentConfig describes the managed radio agent subprocess.
type AgentConfig struct {
	Managed            bool          `yaml:"managed"`
	Binary             string        `yaml:"binary"`
	Args               []string      `yaml:"args"`
	RestartDelay       time.Duration `yaml:"restart_delay"`
	MaxRestartAttempts int           `yaml:"max_restart_attempts"`
}

// BLEConfig tunes the Bluetooth LE scan loop.
type BLEConfig struct {
	ScanWindow time.Duration `yaml:"scan_window"`
	ScanPause  time.Duration `yaml:"scan_pause"`
}

// IngestConfig tunes the reading fan-out workers.
type IngestConfig struct {
	Workers      int           `yaml:"workers"`
	QueueSize    int           `yaml:"queue_size"`
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

// ScoringConfig holds the zone policy constants.
type ScoringConfig struct {
	// ZoneThresholds are the lower bounds (fraction of fcMax) of zones 5, 4, 3 and 2.
	ZoneThresholds []float64 `yaml:"zone_thresholds"`

	// ZoneWeights are the points per second for zones 1 to 5.
	ZoneWeights []float64 `yaml:"zone_weights"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: PULSE_SECTION_KEY
// For example: PULSE_DATABASE_PATH, PULSE_RADIO_DRIVER
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
		Studio: StudioConfig{
			ID:       "studio-001",
			Name:     "Pulse",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/pulse.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "pulse-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Ops: OpsConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    9100,
			Timeouts: OpsTimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Radio: RadioConfig{
			Driver: DriverMQTT,
			Sticks: []StickConfig{
				{ID: 1, Channels: 8},
				{ID: 2, Channels: 8},
			},
			ReconnectDelay:   2 * time.Second,
			ReconnectBackoff: 5 * time.Second,
			EventQueue:       64,
			HealthInterval:   30 * time.Second,
			Agent: AgentConfig{
				RestartDelay:       5 * time.Second,
				MaxRestartAttempts: 10,
			},
			BLE: BLEConfig{
				ScanWindow: 10 * time.Second,
				ScanPause:  2 * time.Second,
			},
		},
		Ingest: IngestConfig{
			Workers:      4,
			QueueSize:    256,
			DrainTimeout: 5 * time.Second,
		},
		Scoring: ScoringConfig{
			ZoneThresholds: []float64{0.9, 0.8, 0.7, 0.6},
			ZoneWeights:    []float64{0.5, 1, 2, 3, 4},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: PULSE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("PULSE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("PULSE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("PULSE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("PULSE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("PULSE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Ops
	if v := os.Getenv("PULSE_OPS_HOST"); v != "" {
		cfg.Ops.Host = v
	}

	// InfluxDB
	if v := os.Getenv("PULSE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Radio
	if v := os.Getenv("PULSE_RADIO_DRIVER"); v != "" {
		cfg.Radio.Driver = strings.ToLower(v)
	}

	// Logging
	if v := os.Getenv("PULSE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Studio.ID == "" {
		errs = append(errs, "studio.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Ops.Enabled && (c.Ops.Port < 1 || c.Ops.Port > 65535) {
		errs = append(errs, "ops.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	errs = append(errs, c.Radio.validate(c.MQTT.Enabled)...)
	errs = append(errs, c.Ingest.validate()...)
	errs = append(errs, c.Scoring.validate()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (r RadioConfig) validate(mqttEnabled bool) []string {
	var errs []string

	switch r.Driver {
	case DriverFake, DriverBLE:
	case DriverMQTT:
		if !mqttEnabled {
			errs = append(errs, "radio.driver mqtt requires mqtt.enabled")
		}
	default:
		errs = append(errs, fmt.Sprintf("radio.driver %q must be one of fake, mqtt, ble", r.Driver))
	}

	if len(r.Sticks) == 0 {
		errs = append(errs, "radio.sticks must list at least one stick")
	}
	seen := make(map[uint8]bool, len(r.Sticks))
	for i, s := range r.Sticks {
		if seen[s.ID] {
			errs = append(errs, fmt.Sprintf("radio.sticks[%d].id %d is duplicated", i, s.ID))
		}
		seen[s.ID] = true
		if s.Channels < 1 || s.Channels > 255 {
			errs = append(errs, fmt.Sprintf("radio.sticks[%d].channels must be between 1 and 255", i))
		}
		if len(s.Targets) > s.Channels {
			errs = append(errs, fmt.Sprintf("radio.sticks[%d].targets has more entries than channels", i))
		}
	}

	if r.ReconnectDelay <= 0 {
		errs = append(errs, "radio.reconnect_delay must be positive")
	}
	if r.ReconnectBackoff < r.ReconnectDelay {
		errs = append(errs, "radio.reconnect_backoff must not be shorter than radio.reconnect_delay")
	}
	if r.SearchTimeout < 0 {
		errs = append(errs, "radio.search_timeout must not be negative")
	}
	if r.Agent.Managed && r.Agent.Binary == "" {
		errs = append(errs, "radio.agent.binary is required when the agent is managed")
	}

	return errs
}

func (i IngestConfig) validate() []string {
	var errs []string
	if i.Workers < 1 {
		errs = append(errs, "ingest.workers must be at least 1")
	}
	if i.QueueSize < 1 {
		errs = append(errs, "ingest.queue_size must be at least 1")
	}
	return errs
}

func (s ScoringConfig) validate() []string {
	var errs []string

	if len(s.ZoneThresholds) != 4 {
		errs = append(errs, "scoring.zone_thresholds must have 4 entries (zones 5, 4, 3, 2)")
	} else {
		for i, v := range s.ZoneThresholds {
			if v <= 0 || v > 1 {
				errs = append(errs, fmt.Sprintf("scoring.zone_thresholds[%d] must be in (0, 1]", i))
			}
			if i > 0 && v >= s.ZoneThresholds[i-1] {
				errs = append(errs, "scoring.zone_thresholds must be strictly descending")
				break
			}
		}
	}

	if len(s.ZoneWeights) != 5 {
		errs = append(errs, "scoring.zone_weights must have 5 entries (zones 1 to 5)")
	} else {
		for i, v := range s.ZoneWeights {
			if v < 0 {
				errs = append(errs, fmt.Sprintf("scoring.zone_weights[%d] must not be negative", i))
			}
		}
	}

	return errs
}

// GetReadTimeout returns the ops read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.Ops.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the ops write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.Ops.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the ops idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.Ops.Timeouts.Idle) * time.Second
}
