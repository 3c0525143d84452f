// Package config provides configuration management for geoperm with Viper integration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	appDirName     = "geoperm"
	configFileName = "config"
	configFileType = "toml"
)

// Config represents the complete configuration for geoperm.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// DatabaseConfig holds the permission database settings.
type DatabaseConfig struct {
	// Path of the SQLite database file. Empty selects the default under the
	// XDG data directory.
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // trace, debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
}

// Manager loads and watches the configuration file.
type Manager struct {
	mu     sync.RWMutex
	viper  *viper.Viper
	config *Config
}

// NewManager creates a configuration manager reading from the XDG config
// directory with GEOPERM_ environment overrides.
func NewManager() *Manager {
	v := viper.New()
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir())

	v.SetEnvPrefix("GEOPERM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("database.path", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	return &Manager{viper: v}
}

// Load reads the configuration file. A missing file is not an error; the
// defaults and environment overrides apply.
func (m *Manager) Load() (*Config, error) {
	if err := m.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := m.viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()

	return cfg, nil
}

// Current returns the last loaded configuration, or nil before Load.
func (m *Manager) Current() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Watch reloads the configuration when the file changes and invokes onChange
// with the fresh value. Reload failures keep the previous configuration.
func (m *Manager) Watch(onChange func(*Config)) {
	m.viper.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := m.Load()
		if err != nil {
			return
		}
		if onChange != nil {
			onChange(cfg)
		}
	})
	m.viper.WatchConfig()
}

// DatabasePath resolves the configured database path, falling back to the
// XDG data directory.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", appDirName, "permissions.db")
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appDirName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", appDirName)
}
