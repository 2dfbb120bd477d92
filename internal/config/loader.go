package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// configRoot is the top-level wrapper matching the YAML structure `kegcore: ...`.
type configRoot struct {
	Kegcore Config `mapstructure:"kegcore"`
}

// Load loads configuration from file.
// The YAML file uses `kegcore:` as root key; env vars override individual
// keys (e.g. KEGCORE_BROKER_ADDR overrides kegcore.broker.addr).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// The root key doubles as the env prefix: kegcore.broker.addr is
	// overridden by KEGCORE_BROKER_ADDR.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Auth device names contain dots ("core.rfid"), which Unmarshal splits
	// into nested keys; decode that map again straight from the file's tree.
	root.Kegcore.Auth.Devices = nil
	if err := v.UnmarshalKey("kegcore.auth.devices", &root.Kegcore.Auth.Devices); err != nil {
		return nil, fmt.Errorf("unmarshal auth devices: %w", err)
	}

	cfg := root.Kegcore
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration, used when no config file is
// given and as the base for validation output.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		// Defaults are static; a decode failure is a programming error.
		panic(err)
	}
	return &root.Kegcore
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("kegcore.broker.addr", "127.0.0.1:6379")
	v.SetDefault("kegcore.broker.channel", "kegnet")
	v.SetDefault("kegcore.broker.reconnect_delay", 5*time.Second)

	v.SetDefault("kegcore.api.url", "http://localhost:8000/api")
	v.SetDefault("kegcore.api.key", "")
	v.SetDefault("kegcore.api.timeout", 10*time.Second)

	v.SetDefault("kegcore.log.level", "info")
	v.SetDefault("kegcore.log.pattern", "%time [%level] %msg %field\n")
	v.SetDefault("kegcore.log.time", "2006-01-02 15:04:05.000")

	v.SetDefault("kegcore.metrics.enabled", false)
	v.SetDefault("kegcore.metrics.listen", "127.0.0.1:9105")
	v.SetDefault("kegcore.metrics.path", "/metrics")

	v.SetDefault("kegcore.core.max_meter_delta", 4400)
	v.SetDefault("kegcore.core.min_volume_to_record", 10.0)
}
