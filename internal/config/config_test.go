package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateXDG(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(home, ".local", "share"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(home, ".local", "state"))
	t.Setenv("ENV", "")
	return home
}

func TestLoadCreatesDefaultConfig(t *testing.T) {
	isolateXDG(t)

	m, err := NewManager()
	require.NoError(t, err)
	require.NoError(t, m.Load())

	configFile, err := GetConfigFile()
	require.NoError(t, err)
	_, statErr := os.Stat(configFile)
	assert.NoError(t, statErr, "first load writes a default config file")

	cfg := m.Get()
	assert.Equal(t, 30, cfg.Cache.TTLDays)
	assert.Equal(t, 4, cfg.Catalog.MaxConcurrent)
	assert.Empty(t, cfg.Catalog.Credential)
	assert.NotEmpty(t, cfg.Cache.Dir, "cache dir falls back to the XDG state dir")
}

func TestLoadReadsConfigFile(t *testing.T) {
	isolateXDG(t)
	configDir, err := GetConfigDir()
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(configDir, 0o750))
	content := `
[catalog]
credential = "abc123"
permit_wait = "3s"

[cache]
ttl_days = 7
`
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.toml"), []byte(content), 0o600))

	m, err := NewManager()
	require.NoError(t, err)
	require.NoError(t, m.Load())

	cfg := m.Get()
	assert.Equal(t, "abc123", cfg.Catalog.Credential)
	assert.Equal(t, 3*time.Second, cfg.Catalog.PermitWait)
	assert.Equal(t, 7, cfg.Cache.TTLDays)
	// Unset keys keep their defaults.
	assert.Equal(t, 512, cfg.Cache.MaxEntries)
}

func TestEnvOverride(t *testing.T) {
	isolateXDG(t)
	t.Setenv("COVERS_CATALOG_CREDENTIAL", "from-env")
	t.Setenv("COVERS_SCANNER_MAX_DEPTH", "5")

	m, err := NewManager()
	require.NoError(t, err)
	require.NoError(t, m.Load())

	cfg := m.Get()
	assert.Equal(t, "from-env", cfg.Catalog.Credential)
	assert.Equal(t, 5, cfg.Scanner.MaxDepth)
}

func TestNormalizationRepairsBadValues(t *testing.T) {
	isolateXDG(t)
	configDir, err := GetConfigDir()
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(configDir, 0o750))
	content := `
[catalog]
max_concurrent = -1

[scanner]
max_depth = 0
`
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.toml"), []byte(content), 0o600))

	m, err := NewManager()
	require.NoError(t, err)
	require.NoError(t, m.Load())

	cfg := m.Get()
	assert.Equal(t, 4, cfg.Catalog.MaxConcurrent)
	assert.Equal(t, 3, cfg.Scanner.MaxDepth)
}

func TestValidationRejectsBadLogLevel(t *testing.T) {
	isolateXDG(t)
	configDir, err := GetConfigDir()
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(configDir, 0o750))
	content := `
[logging]
level = "loud"
`
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.toml"), []byte(content), 0o600))

	m, err := NewManager()
	require.NoError(t, err)
	err = m.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
}

func TestOnConfigChangeCallbacksFire(t *testing.T) {
	isolateXDG(t)

	m, err := NewManager()
	require.NoError(t, err)
	require.NoError(t, m.Load())

	fired := make(chan *Config, 1)
	m.OnConfigChange(func(c *Config) {
		select {
		case fired <- c:
		default:
		}
	})
	require.NoError(t, m.Watch())

	configFile := m.GetConfigFile()
	require.NotEmpty(t, configFile)
	content := `
[catalog]
credential = "late-credential"
`
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0o600))

	select {
	case cfg := <-fired:
		assert.Equal(t, "late-credential", cfg.Catalog.Credential)
	case <-time.After(5 * time.Second):
		t.Fatal("config change callback never fired")
	}
}
