package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	hfactory "github.com/roostd/roostd/internal/history/factory"
	"github.com/roostd/roostd/internal/logger"
	itls "github.com/roostd/roostd/internal/tls"
)

// ServerConfig is the [server] block.
type ServerConfig struct {
	Listen   string       `mapstructure:"listen"`
	BasePath string       `mapstructure:"base_path"`
	TLS      *itls.Config `mapstructure:"tls"`
}

// StoreConfig is the [store] block.
type StoreConfig struct {
	// DSN selects the registry backend: a sqlite path (default) or a
	// postgres:// URL.
	DSN string `mapstructure:"dsn"`
}

// FileConfig represents the top-level TOML structure.
type FileConfig struct {
	Server            ServerConfig      `mapstructure:"server"`
	AgentsDir         string            `mapstructure:"agents_dir"`
	AgentLogDir       string            `mapstructure:"agent_log_dir"`
	LabelPrefix       string            `mapstructure:"label_prefix"`
	MasterConfigPath  string            `mapstructure:"master_config_path"`
	ReconcileInterval time.Duration     `mapstructure:"reconcile_interval"`
	TestWindow        time.Duration     `mapstructure:"test_window"`
	Store             StoreConfig       `mapstructure:"store"`
	History           []hfactory.Config `mapstructure:"history"`
	Log               logger.Config     `mapstructure:"log"`
}

// Default returns the config used when no file is given. Paths live under
// the invoking user's home, matching where launchd expects per-user agents.
func Default() FileConfig {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	stateDir := filepath.Join(home, ".roostd")
	return FileConfig{
		Server: ServerConfig{
			Listen:   "127.0.0.1:8080",
			BasePath: "/api",
		},
		AgentsDir:         filepath.Join(home, "Library", "LaunchAgents"),
		AgentLogDir:       filepath.Join(stateDir, "logs"),
		LabelPrefix:       "com.roostd.",
		MasterConfigPath:  filepath.Join(stateDir, "master.json"),
		ReconcileInterval: 5 * time.Second,
		TestWindow:        2 * time.Second,
		Store:             StoreConfig{DSN: filepath.Join(stateDir, "roostd.db")},
	}
}

// Load reads a TOML config file, filling unset keys from Default.
func Load(path string) (FileConfig, error) {
	fc := Default()
	if path == "" {
		return fc, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return FileConfig{}, fmt.Errorf("read config: %w", err)
	}
	if err := v.Unmarshal(&fc); err != nil {
		return FileConfig{}, fmt.Errorf("parse config: %w", err)
	}
	if fc.Server.Listen == "" {
		fc.Server.Listen = "127.0.0.1:8080"
	}
	if fc.ReconcileInterval <= 0 {
		fc.ReconcileInterval = 5 * time.Second
	}
	if fc.TestWindow <= 0 {
		fc.TestWindow = 2 * time.Second
	}
	return fc, nil
}
