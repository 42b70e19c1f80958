// Package settings implements process-wide options read from a config
// file and environment variables, layered with viper.
package settings

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Settings is identedit's complete process configuration.
type Settings struct {
	Logging LoggingSettings `json:"logging" mapstructure:"logging"`
	Limits  LimitsSettings  `json:"limits" mapstructure:"limits"`
	Grammar GrammarSettings `json:"grammar" mapstructure:"grammar"`
}

// LoggingSettings controls the structured logger (component K).
type LoggingSettings struct {
	Format string `json:"format" mapstructure:"format"` // "json" or "human"
	Level  string `json:"level" mapstructure:"level"`   // "debug", "info", "warn", "error"
}

// LimitsSettings records resource limits for `config show`/`config set`.
// No other package reads them: the Target Resolver's auto-repair window
// and the Transaction Manager's file-size bound are fixed constants.
type LimitsSettings struct {
	MaxFileBytes     int `json:"maxFileBytes" mapstructure:"maxFileBytes"`
	AutoRepairWindow int `json:"autoRepairWindow" mapstructure:"autoRepairWindow"`
}

// GrammarSettings records extensions listed as disabled. The Grammar
// Provider does not read it and serves every extension it has a grammar
// for.
type GrammarSettings struct {
	DisabledExtensions []string `json:"disabledExtensions" mapstructure:"disabledExtensions"`
}

const configFileName = "config"

// Default returns the built-in defaults, applied before any config file or
// environment override.
func Default() *Settings {
	return &Settings{
		Logging: LoggingSettings{Format: "human", Level: "info"},
		Limits:  LimitsSettings{MaxFileBytes: 16 * 1024 * 1024, AutoRepairWindow: 32},
		Grammar: GrammarSettings{DisabledExtensions: []string{}},
	}
}

// Load reads settings from <dir>/.identedit/config.json, overlaid with
// IDENTEDIT_-prefixed environment variables (e.g. IDENTEDIT_LOGGING_LEVEL),
// falling back to Default() when no config file exists.
func Load(dir string) (*Settings, error) {
	v := viper.New()
	d := Default()
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("limits.maxFileBytes", d.Limits.MaxFileBytes)
	v.SetDefault("limits.autoRepairWindow", d.Limits.AutoRepairWindow)
	v.SetDefault("grammar.disabledExtensions", d.Grammar.DisabledExtensions)

	v.SetConfigName(configFileName)
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(dir, ".identedit"))

	v.SetEnvPrefix("IDENTEDIT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Save writes s to <dir>/.identedit/config.json, creating the directory if
// needed.
func (s *Settings) Save(dir string) error {
	configDir := filepath.Join(dir, ".identedit")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(configDir, configFileName+".json"), data, 0644)
}
