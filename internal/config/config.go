// Package config loads the driftsync runtime configuration.
//
// Configuration is optional: a missing config file falls back to defaults
// plus environment overrides, never an error.
package config

import (
	"log/slog"

	"github.com/spf13/viper"
)

// Config holds the runtime settings shared by all commands.
type Config struct {
	// DatabasePath locates the SQLite store.
	DatabasePath string

	// Component labels mappings and audit records created by this
	// process.
	Component string

	// KeepDays is the retention window for archived snapshots.
	KeepDays int

	// Format is the default output format ("text" or "json").
	Format string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DatabasePath: "driftsync.db",
		Component:    "driftsync",
		KeepDays:     30,
		Format:       "text",
	}
}

// Load reads config.yaml from configPath (if present) and applies
// environment overrides under the DRIFTSYNC prefix (DRIFTSYNC_DATABASE,
// DRIFTSYNC_COMPONENT, DRIFTSYNC_KEEP_DAYS, DRIFTSYNC_FORMAT).
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AutomaticEnv()
	v.SetEnvPrefix("DRIFTSYNC")

	v.BindEnv("database")
	v.BindEnv("component")
	v.BindEnv("keep_days")
	v.BindEnv("format")

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine; defaults plus env apply.
		slog.Debug("no config file loaded, using defaults", "error", err)
	}

	if v.IsSet("database") {
		cfg.DatabasePath = v.GetString("database")
	}
	if v.IsSet("component") {
		cfg.Component = v.GetString("component")
	}
	if v.IsSet("keep_days") {
		cfg.KeepDays = v.GetInt("keep_days")
	}
	if v.IsSet("format") {
		cfg.Format = v.GetString("format")
	}

	return cfg, nil
}
