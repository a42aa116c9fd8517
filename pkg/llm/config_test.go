package llm

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromReaderDefaults(t *testing.T) {
	cfg, err := LoadConfigFromReader(strings.NewReader("{}"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:4000", cfg.BaseURL)
	assert.Equal(t, "deepseek/deepseek-reasoner", cfg.DefaultModel)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, "dummy", cfg.APIKey)
}

func TestLoadConfigFromReaderExplicit(t *testing.T) {
	yaml := `
base_url: http://proxy:4000
api_key: sk-master
default_model: openai/gpt-4o-mini
timeout: 45s
max_retries: 5
log_level: debug
`
	cfg, err := LoadConfigFromReader(strings.NewReader(yaml))
	require.NoError(t, err)

	assert.Equal(t, "http://proxy:4000", cfg.BaseURL)
	assert.Equal(t, "sk-master", cfg.APIKey)
	assert.Equal(t, "openai/gpt-4o-mini", cfg.DefaultModel)
	assert.Equal(t, 45*time.Second, cfg.Timeout)
	assert.Equal(t, 5, cfg.MaxRetries)
}

func TestConfigEnvOverrides(t *testing.T) {
	t.Setenv("LITELLM_URL", "http://env-proxy:4000")
	t.Setenv("LITELLM_API_KEY", "sk-env")
	t.Setenv("LITELLM_DEFAULT_MODEL", "anthropic/claude-sonnet")
	t.Setenv("LITELLM_TIMEOUT", "90s")
	t.Setenv("LITELLM_MAX_RETRIES", "1")

	cfg, err := LoadConfigFromReader(strings.NewReader("base_url: http://file-proxy:4000"))
	require.NoError(t, err)

	assert.Equal(t, "http://env-proxy:4000", cfg.BaseURL)
	assert.Equal(t, "sk-env", cfg.APIKey)
	assert.Equal(t, "anthropic/claude-sonnet", cfg.DefaultModel)
	assert.Equal(t, 90*time.Second, cfg.Timeout)
	assert.Equal(t, 1, cfg.MaxRetries)
}

func TestConfigInvalidTimeout(t *testing.T) {
	_, err := LoadConfigFromReader(strings.NewReader("timeout: nonsense"))
	assert.Error(t, err)

	_, err = LoadConfigFromReader(strings.NewReader("timeout: -5s"))
	assert.Error(t, err)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("LITELLM_URL", "http://proxy:4000")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "http://proxy:4000", cfg.BaseURL)
	assert.Equal(t, "deepseek/deepseek-reasoner", cfg.DefaultModel)
}

func TestConfigClone(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	cp := cfg.Clone()
	cp.DefaultModel = "changed"
	assert.NotEqual(t, cfg.DefaultModel, cp.DefaultModel)
}
