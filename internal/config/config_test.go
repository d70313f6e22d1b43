package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, 0.2, cfg.LLM.ReserveRatio)
	assert.Equal(t, 5, cfg.Tools.MaxIterations)
	assert.Equal(t, 10, cfg.Memory.SummarizationThreshold)
	assert.Equal(t, 60, cfg.A2A.RateLimit)
}

func TestLoadLayersFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zeph.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  model: test-model\n  context_window: 8192\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test-model", cfg.LLM.Model)
	assert.Equal(t, 8192, cfg.LLM.ContextWindow)
	// Untouched settings keep defaults.
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("ZEPH_LLM_MODEL", "env-model")
	t.Setenv("ZEPH_MEMORY_SUMMARIZATION_THRESHOLD", "3")
	t.Setenv("ZEPH_TIMEOUT_LLM", "45")
	t.Setenv("ZEPH_LLM_FALLBACKS", "openai, compatible")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env-model", cfg.LLM.Model)
	assert.Equal(t, 3, cfg.Memory.SummarizationThreshold)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, []string{"openai", "compatible"}, cfg.LLM.Fallbacks)
}

func TestValidateRejectsBadRatio(t *testing.T) {
	t.Setenv("ZEPH_LLM_RESERVE_RATIO", "1.5")
	_, err := Load("")
	assert.Error(t, err)
}

func TestResolveSecret(t *testing.T) {
	t.Setenv("MY_TOKEN", "s3cret")
	vault, err := NewEnvVault("")
	require.NoError(t, err)

	v, err := ResolveSecret(vault, "vault:MY_TOKEN")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", v)

	v, err = ResolveSecret(vault, "literal-value")
	require.NoError(t, err)
	assert.Equal(t, "literal-value", v)

	_, err = ResolveSecret(vault, "vault:MISSING_TOKEN")
	assert.Error(t, err)
}
