package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benjaminschreck/go-clause/pkg/clause"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"CLAUSE_CACHE_MAX_SIZE", "CLAUSE_CACHE_TTL", "CLAUSE_LOG_LEVEL", "CLAUSE_RENDER_STRICT",
	"CLAUSE_RENDER_CONCURRENCY", "CLAUSE_TEMPLATE_MAX_SIZE", "CLAUSE_STORE_ROOT",
	"CLAUSE_STORE_OWNER", "CLAUSE_WATCH_DEBOUNCE", EnvConfigFile,
}

// isolate clears CLAUSE_* variables and runs the test from an empty directory.
func isolate(t *testing.T) string {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	v, err := NewViper("")
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, clause.DefaultConfig(), cfg.Engine)
	assert.Equal(t, DefaultStoreRoot, cfg.StoreRoot)
	assert.Equal(t, DefaultStoreOwner, cfg.StoreOwner)
	assert.Equal(t, DefaultWatchDebounce, cfg.WatchDebounce)
	assert.Empty(t, cfg.File)
}

func TestLoadDefaultFile(t *testing.T) {
	dir := isolate(t)
	content := `
cache:
  max_size: 7
  ttl: 90s
log:
  level: warn
render:
  strict: true
  concurrency: 3
store:
  root: /srv/templates
  owner: legal
watch:
  debounce: 1s
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".clause.yml"), []byte(content), 0o644))

	v, err := NewViper("")
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Engine.CacheMaxSize)
	assert.Equal(t, 90*time.Second, cfg.Engine.CacheTTL)
	assert.Equal(t, "warn", cfg.Engine.LogLevel)
	assert.True(t, cfg.Engine.StrictMode)
	assert.Equal(t, 3, cfg.Engine.RenderConcurrency)
	assert.Equal(t, "/srv/templates", cfg.StoreRoot)
	assert.Equal(t, "legal", cfg.StoreOwner)
	assert.Equal(t, time.Second, cfg.WatchDebounce)
	assert.Contains(t, cfg.File, ".clause.yml")
}

func TestEnvironmentOverridesFile(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".clause.yml"),
		[]byte("store:\n  root: from-file\nlog:\n  level: warn\n"), 0o644))
	t.Setenv("CLAUSE_STORE_ROOT", "from-env")

	v, err := NewViper("")
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.StoreRoot)
	assert.Equal(t, "warn", cfg.Engine.LogLevel)
}

func TestConfigFileSelection(t *testing.T) {
	dir := isolate(t)
	custom := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(custom, []byte("store:\n  owner: custom\n"), 0o644))
	flagFile := filepath.Join(dir, "flag.yaml")
	require.NoError(t, os.WriteFile(flagFile, []byte("store:\n  owner: flag\n"), 0o644))

	t.Setenv(EnvConfigFile, custom)

	v, err := NewViper("")
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "custom", cfg.StoreOwner)

	v, err = NewViper(flagFile)
	require.NoError(t, err)
	cfg, err = Load(v)
	require.NoError(t, err)
	assert.Equal(t, "flag", cfg.StoreOwner)
}

func TestExplicitMissingFile(t *testing.T) {
	dir := isolate(t)
	_, err := NewViper(filepath.Join(dir, "missing.yml"))
	assert.Error(t, err)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "bad log level", env: map[string]string{"CLAUSE_LOG_LEVEL": "chatty"}},
		{name: "zero concurrency", env: map[string]string{"CLAUSE_RENDER_CONCURRENCY": "0"}},
		{name: "bad debounce", env: map[string]string{"CLAUSE_WATCH_DEBOUNCE": "soon"}},
		{name: "negative debounce", env: map[string]string{"CLAUSE_WATCH_DEBOUNCE": "-1s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for k, val := range tt.env {
				t.Setenv(k, val)
			}
			v, err := NewViper("")
			require.NoError(t, err)
			_, err = Load(v)
			assert.Error(t, err)
		})
	}
}
