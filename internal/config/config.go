// Package config provides configuration management for the covers engine
// with Viper integration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// File permission constants
const (
	dirPerm  = 0o750
	filePerm = 0o600
)

// Config represents the complete configuration for the covers engine.
type Config struct {
	Catalog  CatalogConfig  `mapstructure:"catalog" toml:"catalog"`
	Cache    CacheConfig    `mapstructure:"cache" toml:"cache"`
	Scanner  ScannerConfig  `mapstructure:"scanner" toml:"scanner"`
	Resolver ResolverConfig `mapstructure:"resolver" toml:"resolver"`
	Logging  LoggingConfig  `mapstructure:"logging" toml:"logging"`
}

// CatalogConfig holds remote image catalog settings. An empty credential
// disables the remote tier entirely.
type CatalogConfig struct {
	Credential    string        `mapstructure:"credential" toml:"credential"`
	BaseURL       string        `mapstructure:"base_url" toml:"base_url"`
	MaxConcurrent int           `mapstructure:"max_concurrent" toml:"max_concurrent"`
	MaxQueued     int           `mapstructure:"max_queued" toml:"max_queued"`
	PermitWait    time.Duration `mapstructure:"permit_wait" toml:"permit_wait"`
	Timeout       time.Duration `mapstructure:"timeout" toml:"timeout"`
}

// CacheConfig holds disk image cache settings.
type CacheConfig struct {
	Dir        string `mapstructure:"dir" toml:"dir"`
	TTLDays    int    `mapstructure:"ttl_days" toml:"ttl_days"`
	MaxEntries int    `mapstructure:"max_entries" toml:"max_entries"`
	Slack      int    `mapstructure:"slack" toml:"slack"`
}

// ScannerConfig bounds local filesystem scans.
type ScannerConfig struct {
	MaxDepth int `mapstructure:"max_depth" toml:"max_depth"`
	MaxFiles int `mapstructure:"max_files" toml:"max_files"`
}

// ResolverConfig bounds the resolver's in-memory caches.
type ResolverConfig struct {
	ResultCapacity int `mapstructure:"result_capacity" toml:"result_capacity"`
	MaxInFlight    int `mapstructure:"max_in_flight" toml:"max_in_flight"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" toml:"level"`
	Format string `mapstructure:"format" toml:"format"`
}

// Manager handles configuration loading, watching, and reloading.
type Manager struct {
	config    *Config
	viper     *viper.Viper
	mu        sync.RWMutex
	callbacks []func(*Config)
	watching  bool
}

// NewManager creates a new configuration manager.
func NewManager() (*Manager, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")

	configDir, err := GetConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}
	v.AddConfigPath(configDir)
	v.AddConfigPath(".") // Current directory for development

	v.SetEnvPrefix("COVERS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindings := map[string]string{
		"catalog.credential":       "CATALOG_CREDENTIAL",
		"catalog.base_url":         "CATALOG_BASE_URL",
		"catalog.max_concurrent":   "CATALOG_MAX_CONCURRENT",
		"catalog.max_queued":       "CATALOG_MAX_QUEUED",
		"catalog.permit_wait":      "CATALOG_PERMIT_WAIT",
		"catalog.timeout":          "CATALOG_TIMEOUT",
		"cache.dir":                "CACHE_DIR",
		"cache.ttl_days":           "CACHE_TTL_DAYS",
		"cache.max_entries":        "CACHE_MAX_ENTRIES",
		"cache.slack":              "CACHE_SLACK",
		"scanner.max_depth":        "SCANNER_MAX_DEPTH",
		"scanner.max_files":        "SCANNER_MAX_FILES",
		"resolver.result_capacity": "RESOLVER_RESULT_CAPACITY",
		"resolver.max_in_flight":   "RESOLVER_MAX_IN_FLIGHT",
		"logging.level":            "LOG_LEVEL",
		"logging.format":           "LOG_FORMAT",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, "COVERS_"+env); err != nil {
			return nil, fmt.Errorf("failed to bind environment variable %s: %w", env, err)
		}
	}

	return &Manager{
		viper:     v,
		callbacks: make([]func(*Config), 0),
	}, nil
}

// Load loads the configuration from file and environment variables.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to ensure directories: %w", err)
	}

	m.setDefaults()

	if err := m.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			if err := m.createDefaultConfig(); err != nil {
				return fmt.Errorf("failed to create default config: %w", err)
			}
			if err := m.viper.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read created config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config, err := m.unmarshal()
	if err != nil {
		return err
	}
	m.config = config
	return nil
}

// unmarshal decodes, normalizes and validates the current viper state.
func (m *Manager) unmarshal() (*Config, error) {
	config := &Config{}
	if err := m.viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Cache.Dir == "" {
		cacheDir, err := GetCoverCacheDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get cache directory: %w", err)
		}
		config.Cache.Dir = cacheDir
	}

	normalizeConfig(config)
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

// Get returns the current configuration (thread-safe).
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	configCopy := *m.config
	return &configCopy
}

// Watch starts watching the config file for changes and reloads
// automatically. A credential added at runtime reaches registered callbacks
// this way.
func (m *Manager) Watch() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.watching {
		return nil
	}

	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(_ fsnotify.Event) {
		if err := m.reload(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to reload config: %v\n", err)
			return
		}

		m.mu.RLock()
		config := m.config
		callbacks := make([]func(*Config), len(m.callbacks))
		copy(callbacks, m.callbacks)
		m.mu.RUnlock()

		for _, callback := range callbacks {
			callback(config)
		}
	})

	m.watching = true
	return nil
}

// OnConfigChange registers a callback function to be called when config changes.
func (m *Manager) OnConfigChange(callback func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.callbacks = append(m.callbacks, callback)
}

func (m *Manager) reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.viper.ReadInConfig(); err != nil {
		return err
	}
	config, err := m.unmarshal()
	if err != nil {
		return err
	}
	m.config = config
	return nil
}

// setDefaults sets default configuration values in Viper.
func (m *Manager) setDefaults() {
	defaults := DefaultConfig()

	m.viper.SetDefault("catalog.base_url", defaults.Catalog.BaseURL)
	m.viper.SetDefault("catalog.max_concurrent", defaults.Catalog.MaxConcurrent)
	m.viper.SetDefault("catalog.max_queued", defaults.Catalog.MaxQueued)
	m.viper.SetDefault("catalog.permit_wait", defaults.Catalog.PermitWait)
	m.viper.SetDefault("catalog.timeout", defaults.Catalog.Timeout)

	m.viper.SetDefault("cache.ttl_days", defaults.Cache.TTLDays)
	m.viper.SetDefault("cache.max_entries", defaults.Cache.MaxEntries)
	m.viper.SetDefault("cache.slack", defaults.Cache.Slack)

	m.viper.SetDefault("scanner.max_depth", defaults.Scanner.MaxDepth)
	m.viper.SetDefault("scanner.max_files", defaults.Scanner.MaxFiles)

	m.viper.SetDefault("resolver.result_capacity", defaults.Resolver.ResultCapacity)
	m.viper.SetDefault("resolver.max_in_flight", defaults.Resolver.MaxInFlight)

	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.format", defaults.Logging.Format)
}

// createDefaultConfig writes a commented default configuration file.
func (m *Manager) createDefaultConfig() error {
	configFile, err := GetConfigFile()
	if err != nil {
		return err
	}

	if err := os.WriteFile(configFile, []byte(defaultConfigTOML), filePerm); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Created default configuration file: %s\n", configFile)
	return nil
}

// GetConfigFile returns the path to the configuration file being used.
func (m *Manager) GetConfigFile() string {
	return m.viper.ConfigFileUsed()
}

// Global configuration manager instance
var (
	globalManager     *Manager
	globalManagerOnce sync.Once
)

// Init initializes the global configuration manager.
func Init() error {
	var err error
	globalManagerOnce.Do(func() {
		globalManager, err = NewManager()
		if err != nil {
			return
		}
		err = globalManager.Load()
	})
	return err
}

// Get returns the global configuration.
func Get() *Config {
	if globalManager == nil {
		return DefaultConfig()
	}
	return globalManager.Get()
}

// Watch starts watching the global configuration for changes.
func Watch() error {
	if globalManager == nil {
		return fmt.Errorf("configuration not initialized")
	}
	return globalManager.Watch()
}

// OnConfigChange registers a callback for global configuration changes.
func OnConfigChange(callback func(*Config)) {
	if globalManager == nil {
		return
	}
	globalManager.OnConfigChange(callback)
}
