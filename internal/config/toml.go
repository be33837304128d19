// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-hclog"
)

// MinTickMS is the shortest tick interval accepted from config or flags.
const MinTickMS = 50

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Timer  TimerConfig  `toml:"timer"`
	Notify NotifyConfig `toml:"notify"`
	Log    LogConfig    `toml:"log"`
}

// TimerConfig maps timer-related settings.
type TimerConfig struct {
	Preset      *string `toml:"preset"`
	TickMS      *int    `toml:"tick-ms"`
	ExtendShort *int    `toml:"extend-short"`
	ExtendLong  *int    `toml:"extend-long"`
	AutoSwitch  *bool   `toml:"auto-switch"`
}

// NotifyConfig maps completion notification settings.
type NotifyConfig struct {
	Message *string `toml:"message"`
	Bell    *bool   `toml:"bell"`
}

// LogConfig maps log output settings.
type LogConfig struct {
	Level *string `toml:"level"`
	File  *string `toml:"file"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	if err := cfg.Validate(); err != nil {
		return FileConfig{}, err
	}
	return cfg, nil
}

// Validate checks the values that are set. Preset ids are checked by the caller.
func (c FileConfig) Validate() error {
	if c.Timer.TickMS != nil && *c.Timer.TickMS < MinTickMS {
		return fmt.Errorf("timer.tick-ms must be >= %d", MinTickMS)
	}
	if c.Timer.ExtendShort != nil && *c.Timer.ExtendShort <= 0 {
		return fmt.Errorf("timer.extend-short must be > 0")
	}
	if c.Timer.ExtendLong != nil && *c.Timer.ExtendLong <= 0 {
		return fmt.Errorf("timer.extend-long must be > 0")
	}
	if c.Log.Level != nil && hclog.LevelFromString(*c.Log.Level) == hclog.NoLevel {
		return fmt.Errorf("log.level %q is not a valid level", *c.Log.Level)
	}
	return nil
}
