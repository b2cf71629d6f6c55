package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"AIDE_MODEL", "AIDE_BASE_URL", "AIDE_API_KEY",
		"AIDE_LOG_LEVEL", "AIDE_MAX_ITERATIONS", "AIDE_MAX_BACKGROUND_TASKS",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "glm-4.5-air", cfg.Model.ID)
	assert.Equal(t, 15, cfg.Engine.MaxIterations)
	assert.Equal(t, 128000, cfg.Compactor.MaxContextTokens)
	assert.Equal(t, 0.8, cfg.Compactor.Threshold)
	assert.True(t, cfg.Checkpoints.Enabled)
	assert.Equal(t, 20, cfg.Checkpoints.MaxAuto)
	assert.Equal(t, 50, cfg.Checkpoints.MaxNamed)
	assert.Equal(t, 10, cfg.Background.MaxConcurrent)
}

func TestLoadFromYAMLFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
model:
  id: qwen3-coder
  baseUrl: https://example.test/v1
engine:
  maxIterations: 7
compactor:
  maxContextTokens: 32000
  threshold: 0.5
  keepRecent: 4
checkpoints:
  enabled: false
  maxAuto: 5
  maxNamed: 10
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "qwen3-coder", cfg.Model.ID)
	assert.Equal(t, "https://example.test/v1", cfg.Model.BaseURL)
	assert.Equal(t, 7, cfg.Engine.MaxIterations)
	assert.Equal(t, 32000, cfg.Compactor.MaxContextTokens)
	assert.Equal(t, 0.5, cfg.Compactor.Threshold)
	assert.False(t, cfg.Checkpoints.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model:\n  id: from-file\n"), 0o644))

	t.Setenv("AIDE_MODEL", "from-env")
	t.Setenv("AIDE_API_KEY", "sk-test")
	t.Setenv("AIDE_MAX_ITERATIONS", "3")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Model.ID)
	assert.Equal(t, "sk-test", cfg.Model.APIKey)
	assert.Equal(t, 3, cfg.Engine.MaxIterations)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: [unclosed"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestResolveAPIKey(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	_, err = cfg.ResolveAPIKey()
	require.Error(t, err)

	cfg.Model.APIKey = "sk-direct"
	key, err := cfg.ResolveAPIKey()
	require.NoError(t, err)
	assert.Equal(t, "sk-direct", key)
}

func TestInvalidMaxIterationsFallsBack(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  maxIterations: -1\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 15, cfg.Engine.MaxIterations)
}
