// Package config handles configuration loading for founder-mode.
// It supports XDG config paths, project-level overrides, and
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for founder-mode.
type Config struct {
	Defaults  DefaultsConfig  `mapstructure:"defaults"`
	Timeouts  TimeoutsConfig  `mapstructure:"timeouts"`
	Cleanup   CleanupConfig   `mapstructure:"cleanup"`
	Worktrees WorktreesConfig `mapstructure:"worktrees"`
}

// DefaultsConfig holds default values for orchestration runs.
type DefaultsConfig struct {
	// MaxIterations is the verification retry budget per task.
	MaxIterations int `mapstructure:"max_iterations"`
	// PollInterval is how often running tasks are polled for output.
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// TimeoutsConfig holds timeout settings.
type TimeoutsConfig struct {
	// Task is the hard per-task timeout. Zero means no timeout.
	Task time.Duration `mapstructure:"task"`
	// StallCheckpoints are elapsed-time marks at which a still-running
	// task triggers an advisory notice.
	StallCheckpoints []time.Duration `mapstructure:"stall_checkpoints"`
}

// CleanupConfig holds retention settings for finished sessions.
type CleanupConfig struct {
	// KeepDays is how many days of session history cleanup retains.
	KeepDays int `mapstructure:"keep_days"`
}

// WorktreesConfig holds isolated-workspace settings.
type WorktreesConfig struct {
	// BaseDir is where task worktrees are created. Empty means the
	// user cache directory.
	BaseDir string `mapstructure:"base_dir"`
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (FOUNDER_MODE_*)
// 2. Project config (.founder-mode.yaml in current directory or parent)
// 3. User config (~/.config/founder-mode/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("FOUNDER_MODE")
	v.AutomaticEnv()

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if cfg.Defaults.MaxIterations < 1 {
		return nil, fmt.Errorf("defaults.max_iterations must be at least 1, got %d", cfg.Defaults.MaxIterations)
	}
	if cfg.Defaults.PollInterval <= 0 {
		return nil, fmt.Errorf("defaults.poll_interval must be positive, got %s", cfg.Defaults.PollInterval)
	}
	cfg.Worktrees.BaseDir = os.ExpandEnv(cfg.Worktrees.BaseDir)
	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("defaults.max_iterations", 3)
	v.SetDefault("defaults.poll_interval", "2s")

	v.SetDefault("timeouts.task", "0")
	v.SetDefault("timeouts.stall_checkpoints", []string{"5m", "10m", "15m"})

	v.SetDefault("cleanup.keep_days", 7)

	v.SetDefault("worktrees.base_dir", "")
}

// getUserConfigDir returns the XDG config directory for founder-mode.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "founder-mode")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "founder-mode")
	}
	return filepath.Join(home, ".config", "founder-mode")
}

// findProjectConfig searches for .founder-mode.yaml in the current
// directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".founder-mode.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Defaults: DefaultsConfig{
			MaxIterations: 3,
			PollInterval:  2 * time.Second,
		},
		Timeouts: TimeoutsConfig{
			Task:             0,
			StallCheckpoints: []time.Duration{5 * time.Minute, 10 * time.Minute, 15 * time.Minute},
		},
		Cleanup: CleanupConfig{
			KeepDays: 7,
		},
	}
}
