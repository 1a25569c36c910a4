package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Output drivers
const (
	DriverLog   = "log"
	DriverSysfs = "sysfs"
	DriverHue   = "hue"
	DriverMQTT  = "mqtt"
)

// Config represents the application configuration
type Config struct {
	Log               LogConfig         `yaml:"log"`
	Output            OutputConfig      `yaml:"output"`
	Schedule          ScheduleConfig    `yaml:"schedule"`
	StartupTransition *TransitionConfig `yaml:"startup_transition"` // nil disables the startup flash
	Controller        ControllerConfig  `yaml:"controller"`
	HTTP              HTTPConfig        `yaml:"http"`
	MQTT              MQTTConfig        `yaml:"mqtt"`
	InfluxDB          InfluxDBConfig    `yaml:"influxdb"`
	Database          DatabaseConfig    `yaml:"database"`
	Ledger            LedgerConfig      `yaml:"ledger"`
	EventBus          EventBusConfig    `yaml:"eventbus"`
	Script            string            `yaml:"script"`           // Lua startup script, empty = none
	ShutdownTimeout   Duration          `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// LogConfig contains logging settings
type LogConfig struct {
	Level         string   `yaml:"level"`
	Colors        bool     `yaml:"colors"`
	UseJSON       bool     `yaml:"json"`
	PrintSchedule Duration `yaml:"print_schedule"` // Interval to print schedule (0 = disabled)
}

// GetLevel returns the normalized log level
func (c *LogConfig) GetLevel() string {
	return strings.ToLower(strings.TrimSpace(c.Level))
}

// OutputConfig selects and configures the dimmable output
type OutputConfig struct {
	Driver string           `yaml:"driver"` // log | sysfs | hue | mqtt
	Sysfs  SysfsConfig      `yaml:"sysfs"`
	Hue    HueConfig        `yaml:"hue"`
	MQTT   OutputMQTTConfig `yaml:"mqtt"`
}

// SysfsConfig addresses a PWM channel under /sys/class/pwm
type SysfsConfig struct {
	Root    string   `yaml:"root"` // default: /sys/class/pwm
	Chip    int      `yaml:"chip"`
	Channel int      `yaml:"channel"`
	Period  Duration `yaml:"period"` // default: 1ms
}

// HueConfig contains Hue bridge connection settings
type HueConfig struct {
	Bridge       string  `yaml:"bridge"`
	Token        string  `yaml:"token"`
	Light        int     `yaml:"light"`
	RateLimitRPS float64 `yaml:"rate_limit_rps"` // Bridge writes per second (default: 10)
}

// OutputMQTTConfig publishes output values to an MQTT topic
type OutputMQTTConfig struct {
	Topic string `yaml:"topic"` // default: <prefix>/output/set
}

// ScheduleConfig describes the primary weekly schedule
type ScheduleConfig struct {
	Timezone   string            `yaml:"timezone"`
	Default    string            `yaml:"default"` // time applied to days not listed in Days
	Days       map[string]string `yaml:"days"`    // weekday -> "HH:MM[:SS]" or "off"
	Transition TransitionConfig  `yaml:"transition"`
}

// Location resolves the configured timezone
func (c *ScheduleConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// TransitionConfig is a transition in config form
type TransitionConfig struct {
	From          float64  `yaml:"from"`
	To            float64  `yaml:"to"`
	Time          Duration `yaml:"time"`
	Interpolation string   `yaml:"interpolation"`
	Extras        []string `yaml:"extras"`
}

// ControllerConfig contains control loop settings
type ControllerConfig struct {
	Tick Duration `yaml:"tick"` // Resampling interval during transitions (default: 30ms)
}

// HTTPConfig contains control surface server settings
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// MQTTConfig contains MQTT broker connection settings
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix string              `yaml:"topic_prefix"` // default: dimmerd
}

// MQTTBrokerConfig contains MQTT broker connection details
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings
type MQTTReconnectConfig struct {
	InitialDelay Duration `yaml:"initial_delay"`
	MaxDelay     Duration `yaml:"max_delay"`
}

// InfluxDBConfig contains telemetry settings
type InfluxDBConfig struct {
	Enabled       bool     `yaml:"enabled"`
	URL           string   `yaml:"url"`
	Token         string   `yaml:"token"`
	Org           string   `yaml:"org"`
	Bucket        string   `yaml:"bucket"`
	BatchSize     int      `yaml:"batch_size"`
	FlushInterval Duration `yaml:"flush_interval"`
	Measurement   string   `yaml:"measurement"` // default: dimmer_output
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LedgerConfig contains event ledger settings
type LedgerConfig struct {
	Enabled         bool     `yaml:"enabled"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 2)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 256)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 2
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 256
	}
	return c.QueueSize
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes and applies defaults
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./dimmerd.sqlite"
	}

	// Output defaults
	if cfg.Output.Driver == "" {
		cfg.Output.Driver = DriverLog
	}
	if cfg.Output.Sysfs.Root == "" {
		cfg.Output.Sysfs.Root = "/sys/class/pwm"
	}
	if cfg.Output.Sysfs.Period == 0 {
		cfg.Output.Sysfs.Period = Duration(time.Millisecond)
	}
	if cfg.Output.Hue.RateLimitRPS == 0 {
		cfg.Output.Hue.RateLimitRPS = 10.0
	}

	// Schedule defaults: one fixed morning time with a to-and-back ramp
	if cfg.Schedule.Timezone == "" {
		cfg.Schedule.Timezone = "Local"
	}
	if cfg.Schedule.Default == "" && len(cfg.Schedule.Days) == 0 {
		cfg.Schedule.Default = "08:47"
	}
	if cfg.Schedule.Transition.Interpolation == "" {
		cfg.Schedule.Transition = TransitionConfig{
			From:          0,
			To:            1,
			Time:          Duration(30 * time.Second),
			Interpolation: "linear-extra",
			Extras:        []string{"0.5"},
		}
	}

	// Controller defaults
	if cfg.Controller.Tick == 0 {
		cfg.Controller.Tick = Duration(30 * time.Millisecond)
	}

	// HTTP defaults
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}

	// MQTT defaults
	if cfg.MQTT.Broker.Port == 0 {
		cfg.MQTT.Broker.Port = 1883
	}
	if cfg.MQTT.Broker.ClientID == "" {
		cfg.MQTT.Broker.ClientID = "dimmerd"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "dimmerd"
	}
	if cfg.MQTT.Reconnect.InitialDelay == 0 {
		cfg.MQTT.Reconnect.InitialDelay = Duration(time.Second)
	}
	if cfg.MQTT.Reconnect.MaxDelay == 0 {
		cfg.MQTT.Reconnect.MaxDelay = Duration(time.Minute)
	}

	// InfluxDB defaults
	if cfg.InfluxDB.BatchSize <= 0 {
		cfg.InfluxDB.BatchSize = 100
	}
	if cfg.InfluxDB.FlushInterval == 0 {
		cfg.InfluxDB.FlushInterval = Duration(10 * time.Second)
	}
	if cfg.InfluxDB.Measurement == "" {
		cfg.InfluxDB.Measurement = "dimmer_output"
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// envPattern matches ${VAR} or ${VAR:default}
var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	return envPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
