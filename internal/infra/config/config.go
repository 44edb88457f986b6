// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration shared by the relay and the gate.
type Config struct {
	Relay    RelayConfig    `yaml:"relay"`
	Gate     GateConfig     `yaml:"gate"`
	Playback PlaybackConfig `yaml:"playback"`
	Hub      HubConfig      `yaml:"hub"`
	Storage  StorageConfig  `yaml:"storage"`
	Admin    AdminConfig    `yaml:"admin"`
	Log      LogConfig      `yaml:"log"`
}

// RelayConfig represents the overlay server configuration.
type RelayConfig struct {
	Addr         string      `yaml:"addr" default:":8787"`
	Token        string      `yaml:"token" validate:"required"`
	AllowOrigins []string    `yaml:"allow_origins"`
	Hooks        HooksConfig `yaml:"hooks"`
}

// GateConfig represents the ingress gate configuration.
type GateConfig struct {
	Addr             string      `yaml:"addr" default:":8788"`
	RelayURL         string      `yaml:"relay_url" default:"http://127.0.0.1:8787" validate:"required,url"`
	FallbackPath     string      `yaml:"fallback_path" default:"./logs/unsent.json" validate:"required"`
	ForwardTimeoutMs int         `yaml:"forward_timeout_ms" default:"5000" validate:"gte=100,lte=60000"`
	DrainRatePerSec  float64     `yaml:"drain_rate_per_sec" default:"10" validate:"gte=0"`
	DrainSchedule    string      `yaml:"drain_schedule"`
	AllowOrigins     []string    `yaml:"allow_origins" default:"[\"http://localhost:5173\"]"`
	Hooks            HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// PlaybackConfig represents playback clock configuration.
type PlaybackConfig struct {
	TickIntervalMs int `yaml:"tick_interval_ms" default:"3000" validate:"gte=1000,lte=60000,whole_seconds"`
}

// HubConfig represents broadcast hub configuration.
type HubConfig struct {
	HeartbeatIntervalMs int `yaml:"heartbeat_interval_ms" default:"30000" validate:"gte=1000"`
	WriteTimeoutMs      int `yaml:"write_timeout_ms" default:"5000" validate:"gte=100"`
	SendBuffer          int `yaml:"send_buffer" default:"64" validate:"gte=1,lte=4096"`
}

// StorageConfig represents state store configuration.
type StorageConfig struct {
	Path string `yaml:"path" default:"./data/overlay.db" validate:"required"`
}

// AdminConfig represents admin-related configuration.
type AdminConfig struct {
	Token string `yaml:"token" validate:"required"`
}

// LogConfig represents logging configuration. The level is reloadable.
type LogConfig struct {
	Level string `yaml:"level" default:"info" validate:"oneof=debug info warn warning error"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse builds a configuration from YAML data.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("RELAY_TOKEN"); v != "" {
		c.Relay.Token = v
	}
	if v := os.Getenv("RELAY_URL"); v != "" {
		c.Gate.RelayURL = v
	}
	if v := os.Getenv("GATE_PORT"); v != "" {
		c.Gate.Addr = ":" + v
	}
	if v := os.Getenv("ALLOW_ORIGINS"); v != "" {
		origins := splitList(v)
		c.Gate.AllowOrigins = origins
		c.Relay.AllowOrigins = origins
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		c.Admin.Token = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.RegisterValidation("whole_seconds", wholeSeconds); err != nil {
		return errors.Wrap(err, "failed to register validator")
	}
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// TickInterval returns the playback tick interval.
func (c PlaybackConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

// HeartbeatInterval returns the hub heartbeat interval.
func (c HubConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMs) * time.Millisecond
}

// WriteTimeout returns the per-frame write deadline.
func (c HubConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutMs) * time.Millisecond
}

// ForwardTimeout returns the downstream delivery timeout.
func (c GateConfig) ForwardTimeout() time.Duration {
	return time.Duration(c.ForwardTimeoutMs) * time.Millisecond
}

// wholeSeconds accepts millisecond values that are a multiple of 1000.
func wholeSeconds(fl validator.FieldLevel) bool {
	return fl.Field().Int()%1000 == 0
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
