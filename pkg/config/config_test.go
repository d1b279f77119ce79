package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bastiangx/suggestserve/pkg/item"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.False(t, cfg.Normalize.FoldDiacritics)
	assert.True(t, cfg.Normalize.CollapseSpace)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
}

func TestLoadConfig(t *testing.T) {
	path := writeFile(t, `
[server]
addr = ":9090"
admin_token = "secret"

[engine]
min_query_length = 3
lookup_timeout = "100ms"
languages = ["en", "pt"]

[normalize]
fold_diacritics = true

[store]
driver = "sqlite"
path = "items.db"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "secret", cfg.Server.AdminToken)
	assert.Equal(t, 3, cfg.Engine.MinQueryLength)
	assert.Equal(t, 100*time.Millisecond, cfg.Engine.LookupTimeout.Duration)
	assert.Equal(t, []string{"en", "pt"}, cfg.Engine.Languages)
	assert.True(t, cfg.Normalize.FoldDiacritics)
	assert.True(t, cfg.Normalize.CollapseSpace, "unset keys keep defaults")
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, DefaultConfig().Engine.MaxLimit, cfg.Engine.MaxLimit)
}

func TestLoadConfig_PartialRecovery(t *testing.T) {
	// an invalid duration breaks the typed decode but not the other sections
	path := writeFile(t, `
[engine]
min_query_length = 4
lookup_timeout = "soon"

[log]
level = "debug"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Engine.MinQueryLength)
	assert.Equal(t, DefaultConfig().Engine.LookupTimeout, cfg.Engine.LookupTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfig_Unparseable(t *testing.T) {
	path := writeFile(t, "[engine\nmin_query_length = ")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := writeFile(t, `
[engine]
default_limit = 50
max_limit = 10
`)
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero min query", func(c *Config) { c.Engine.MinQueryLength = 0 }},
		{"max below min", func(c *Config) { c.Engine.MaxQueryLength = 1 }},
		{"no languages", func(c *Config) { c.Engine.Languages = nil }},
		{"negative rate", func(c *Config) { c.RateLimit.RequestsPerSecond = -1 }},
		{"rate without burst", func(c *Config) { c.RateLimit.Burst = 0 }},
		{"unknown driver", func(c *Config) { c.Store.Driver = "postgres" }},
		{"sqlite without path", func(c *Config) { c.Store.Driver = DriverSQLite; c.Store.Path = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestInitConfigCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg, err := InitConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	require.FileExists(t, path)

	reloaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), reloaded)
}

func TestSuggestConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.Languages = []string{"en"}
	cfg.Engine.LookupTimeout = D(time.Second)

	sc := cfg.SuggestConfig()
	assert.Equal(t, item.Languages{"en"}, sc.Languages)
	assert.Equal(t, time.Second, sc.LookupTimeout)
	assert.Equal(t, cfg.Engine.MaxLimit, sc.MaxLimit)
}

func TestUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := DefaultConfig()

	limit := 12
	fold := true
	require.NoError(t, cfg.Update(path, &limit, nil, nil, &fold))

	reloaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 12, reloaded.Engine.DefaultLimit)
	assert.True(t, reloaded.Normalize.FoldDiacritics)

	bad := 0
	assert.Error(t, cfg.Update(path, &bad, nil, nil, nil))
	assert.Equal(t, 12, cfg.Engine.DefaultLimit)
	assert.NoError(t, cfg.Validate())

	reloaded, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 12, reloaded.Engine.DefaultLimit)
}
