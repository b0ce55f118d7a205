package agent

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "You are a helpful AI assistant.", cfg.SystemPrompt)
	assert.Equal(t, 10, cfg.MaxTurns)
	require.NotNil(t, cfg.MaxTokens)
	assert.Equal(t, 2048, *cfg.MaxTokens)
	assert.False(t, cfg.EnableParallel)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, time.Second, cfg.Retry.RetryDelay)
	assert.False(t, cfg.Retry.RetryOnError)
	assert.InDelta(t, 0.7, cfg.Temperature, 0.001)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}

func TestConfigCloneIsDeep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PromptVars = map[string]interface{}{"name": "Ada"}

	clone := cfg.Clone()
	clone.PromptVars["name"] = "Grace"
	*clone.MaxTokens = 1

	assert.Equal(t, "Ada", cfg.PromptVars["name"])
	assert.Equal(t, 2048, *cfg.MaxTokens)
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := writeConfigFile(t, `
system_prompt: "You are a calculator."
max_turns: 3
max_tokens: 512
timeout: 5s
retry:
  max_retries: 1
  retry_delay: 100ms
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "You are a calculator.", cfg.SystemPrompt)
	assert.Equal(t, 3, cfg.MaxTurns)
	require.NotNil(t, cfg.MaxTokens)
	assert.Equal(t, 512, *cfg.MaxTokens)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 1, cfg.Retry.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.RetryDelay)

	// untouched fields keep their defaults
	assert.False(t, cfg.Retry.RetryOnError)
	assert.InDelta(t, 0.7, cfg.Temperature, 0.001)
	assert.False(t, cfg.EnableParallel)
}

func TestLoadConfigZeroMaxTokensLiftsLimit(t *testing.T) {
	path := writeConfigFile(t, "max_tokens: 0\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Nil(t, cfg.MaxTokens)
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	path := writeConfigFile(t, "timeout: soon\n")

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid timeout")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not read config file")
}

func TestLoadConfigParsesPromptVars(t *testing.T) {
	path := writeConfigFile(t, `
system_prompt: "You are {{ .name }}."
prompt_vars:
  name: Ada
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.PromptVars)
	assert.Equal(t, "Ada", cfg.PromptVars["name"])
}
