// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"kegnet.io/kegcore/internal/log"
)

// Config is the top-level static configuration.
// Maps to the `kegcore:` root key in YAML.
type Config struct {
	Broker  BrokerConfig  `mapstructure:"broker" yaml:"broker"`
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	Log     log.Config    `mapstructure:"log" yaml:"log"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Auth    AuthConfig    `mapstructure:"auth" yaml:"auth"`
	Core    CoreConfig    `mapstructure:"core" yaml:"core"`
}

// BrokerConfig contains kegnet pub/sub transport settings.
type BrokerConfig struct {
	Addr           string        `mapstructure:"addr" yaml:"addr"`
	Channel        string        `mapstructure:"channel" yaml:"channel"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
}

// APIConfig contains backend HTTP API settings.
type APIConfig struct {
	URL     string        `mapstructure:"url" yaml:"url"`
	Key     string        `mapstructure:"key" yaml:"key"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// DevicePolicy describes how flows react to one class of auth reader.
type DevicePolicy struct {
	Captive     bool `mapstructure:"captive" yaml:"captive"`
	MaxIdleSecs int  `mapstructure:"max_idle_secs" yaml:"max_idle_secs"`
}

// AuthConfig overrides the built-in per-device authentication policy.
// Devices not listed inherit the built-in table; the "default" key applies
// to devices unknown to both.
type AuthConfig struct {
	Devices map[string]DevicePolicy `mapstructure:"devices" yaml:"devices,omitempty"`
	Aliases map[string]string       `mapstructure:"aliases" yaml:"aliases,omitempty"`
}

// CoreConfig contains flow accounting settings.
type CoreConfig struct {
	MaxMeterDelta     uint64  `mapstructure:"max_meter_delta" yaml:"max_meter_delta"`
	MinVolumeToRecord float64 `mapstructure:"min_volume_to_record" yaml:"min_volume_to_record"`
}

// Validate checks the configuration for fatal mistakes.
func (c *Config) Validate() error {
	if c.Broker.Addr == "" {
		return fmt.Errorf("broker.addr must not be empty")
	}
	if c.Broker.Channel == "" {
		return fmt.Errorf("broker.channel must not be empty")
	}
	if c.Broker.ReconnectDelay <= 0 {
		return fmt.Errorf("broker.reconnect_delay must be positive, got %s", c.Broker.ReconnectDelay)
	}
	if c.API.URL == "" {
		return fmt.Errorf("api.url must not be empty")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive, got %s", c.API.Timeout)
	}
	if c.Core.MinVolumeToRecord < 0 {
		return fmt.Errorf("core.min_volume_to_record must not be negative")
	}
	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level %q is not a known level", c.Log.Level)
	}
	for name, policy := range c.Auth.Devices {
		if policy.MaxIdleSecs <= 0 {
			return fmt.Errorf("auth.devices.%s.max_idle_secs must be positive", name)
		}
	}
	return nil
}
