package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.True(t, cfg.Enabled)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, "http://localhost:11434", cfg.Ollama.URL)
}

func TestLoad_YAMLFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "healing.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
maxAttempts: 5
ollama:
  model: mistral
`), 0o644))

	cfg, err := Load("", yamlPath)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, "mistral", cfg.Ollama.Model)
	// untouched fields keep their default
	assert.Equal(t, "http://localhost:11434", cfg.Ollama.URL)
}

func TestLoad_MissingYAMLFileIsNotAnError(t *testing.T) {
	cfg, err := Load("", filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("HEALING_MAX_ATTEMPTS", "7")
	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxAttempts)
}

func TestLoad_ProgrammaticOverrideWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "healing.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`maxAttempts: 5`), 0o644))

	cfg, err := Load("", yamlPath, WithMaxAttempts(9))
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.MaxAttempts)
}

func TestLoad_InvalidYAMLReturnsConfigInvalid(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "healing.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("maxAttempts: [this is not valid"), 0o644))

	_, err := Load("", yamlPath)
	require.Error(t, err)
}

func TestLoad_RejectsInvalidMergedConfig(t *testing.T) {
	_, err := Load("", "", WithMaxAttempts(0))
	require.Error(t, err)
}

func TestWithStrategies(t *testing.T) {
	cfg, err := Load("", "", WithStrategies("testIdRecovery"))
	require.NoError(t, err)
	assert.Equal(t, []string{"testIdRecovery"}, cfg.Strategies)
}

func TestWithEnabled(t *testing.T) {
	cfg, err := Load("", "", WithEnabled(false))
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)
}
