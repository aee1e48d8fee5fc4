package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "compliancectl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultBaseURL, cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, BackendFile, cfg.Store.Backend)
	assert.Equal(t, "default", cfg.Store.Profile)
	assert.Equal(t, filepath.Join("compliancectl", "profiles", "default"), lastThree(cfg.Store.Dir))
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, 1.0, cfg.Tracing.SampleRatio)
}

func lastThree(path string) string {
	dir, last := filepath.Split(filepath.Clean(path))
	dir, mid := filepath.Split(filepath.Clean(dir))
	_, first := filepath.Split(filepath.Clean(dir))
	return filepath.Join(first, mid, last)
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: http://localhost:8000
  timeout: 5s
store:
  backend: redis
  profile: staging
  redis:
    url: redis://cache:6379/2
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	assert.Equal(t, "redis://cache:6379/2", cfg.Store.Redis.URL)
	assert.Equal(t, "compliancectl", cfg.Store.Redis.KeyPrefix)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Contains(t, cfg.Store.Dir, "staging")
}

func TestLoad_PrecedenceEnvThenOverrides(t *testing.T) {
	path := writeConfig(t, "api:\n  base_url: http://from-file:8000\n")
	t.Setenv("COMPLIANCECTL_API_BASE_URL", "http://from-env:8000")
	t.Setenv("COMPLIANCECTL_STORE_PROFILE", "ci")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://from-env:8000", cfg.API.BaseURL)
	assert.Equal(t, "ci", cfg.Store.Profile)

	cfg, err = Load(path, map[string]any{"api.base_url": "http://from-flag:8000", "api.timeout": "2s"})
	require.NoError(t, err)
	assert.Equal(t, "http://from-flag:8000", cfg.API.BaseURL)
	assert.Equal(t, 2*time.Second, cfg.API.Timeout)
}

func TestLoad_ExplicitStoreDir(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(writeConfig(t, ""), map[string]any{"store.dir": dir})
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Store.Dir)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]any
	}{
		{"scheme", map[string]any{"api.base_url": "ftp://example.com"}},
		{"timeout", map[string]any{"api.timeout": "0s"}},
		{"backend", map[string]any{"store.backend": "sqlite"}},
		{"profile", map[string]any{"store.profile": "../etc"}},
		{"level", map[string]any{"logging.level": "trace"}},
		{"format", map[string]any{"logging.format": "xml"}},
		{"sample ratio", map[string]any{"tracing.sample_ratio": 1.5}},
	}
	path := writeConfig(t, "")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(path, tt.overrides)
			assert.Error(t, err)
		})
	}
}

func TestLoad_InvalidNamesKey(t *testing.T) {
	_, err := Load(writeConfig(t, ""), map[string]any{"store.backend": "sqlite"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.backend")
	assert.Contains(t, err.Error(), "sqlite")
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("COMPLIANCECTL_STORE_REDIS_KEY_PREFIX=from-dotenv\n"), 0o600))
	t.Chdir(dir)
	t.Cleanup(func() { os.Unsetenv("COMPLIANCECTL_STORE_REDIS_KEY_PREFIX") })

	cfg, err := Load(writeConfig(t, ""), nil)

	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Store.Redis.KeyPrefix)
}
