package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helix-collective/z88/internal/core"
)

// isolate points HOME and the working directory at empty temp dirs and
// clears vendor key variables.
func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, env := range vendorEnv {
		t.Setenv(env, "")
	}
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoader_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "auto", cfg.Log.Format)
	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, 12*time.Minute, cfg.Server.WriteTimeout)
	assert.Equal(t, "gpt-4-turbo-preview", cfg.Providers.OpenAI.Model)
	assert.Equal(t, "claude-3-5-sonnet-20241022", cfg.Providers.Anthropic.Model)
	assert.Equal(t, "grok-beta", cfg.Providers.XAI.Model)
	assert.Equal(t, "https://api.x.ai/v1", cfg.Providers.XAI.BaseURL)
	assert.Equal(t, "gemini-2.0-flash-exp", cfg.Providers.Google.Model)
	assert.Equal(t, "sonar-pro", cfg.Providers.Perplexity.Model)
	assert.Equal(t, "https://api.perplexity.ai", cfg.Providers.Perplexity.BaseURL)
	assert.Equal(t, "balanced", cfg.Ritual.DefaultPreset)
	assert.Equal(t, 4000, cfg.Ritual.SynthesisMaxTokens)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.False(t, cfg.Providers.OpenAI.Configured())

	require.NoError(t, ValidateConfig(cfg))
}

func TestLoader_VendorEnvKeys(t *testing.T) {
	isolate(t)
	t.Setenv("OPENAI_API_KEY", "sk-from-vendor-env")
	t.Setenv("SONAR_API_KEY", "pplx-from-vendor-env")
	t.Setenv("Z88_PROVIDERS_ANTHROPIC_API_KEY", "sk-ant-from-prefixed-env")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-from-vendor-env", cfg.Providers.Get(core.ProviderOpenAI).APIKey)
	assert.Equal(t, "pplx-from-vendor-env", cfg.Providers.Get(core.ProviderPerplexity).APIKey)
	assert.Equal(t, "sk-ant-from-prefixed-env", cfg.Providers.Get(core.ProviderAnthropic).APIKey)
	assert.False(t, cfg.Providers.Get(core.ProviderGoogle).Configured())
}

func TestLoader_PrefixedEnvOverridesDefaults(t *testing.T) {
	isolate(t)
	t.Setenv("Z88_SERVER_PORT", "9999")
	t.Setenv("Z88_LOG_LEVEL", "debug")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoader_ProjectFile(t *testing.T) {
	dir := isolate(t)
	yaml := "server:\n  port: 7070\nritual:\n  default_preset: creative\nllm:\n  initial_backoff: 250ms\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigFile), []byte(yaml), 0o600))

	loader := NewLoader()
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "creative", cfg.Ritual.DefaultPreset)
	assert.Equal(t, 250*time.Millisecond, cfg.LLM.InitialBackoff)
	assert.Equal(t, ProjectConfigFile, loader.ConfigFile())
}

func TestLoader_ExplicitFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  driver: mysql\n  dsn: mysql://u:p@tcp(db)/z88\n"), 0o600))

	cfg, err := NewLoader().WithConfigFile(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.Storage.Driver)
	assert.Equal(t, "mysql://u:p@tcp(db)/z88", cfg.Storage.DSN)
}

func TestLoader_MalformedFile(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigFile), []byte("server: [unterminated"), 0o600))

	_, err := NewLoader().Load()
	require.Error(t, err)
}

func TestWriteDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	written, err := WriteDefault(path, false)
	require.NoError(t, err)
	assert.True(t, written)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfigYAML, string(data))

	written, err = WriteDefault(path, false)
	require.NoError(t, err)
	assert.False(t, written, "existing file must not be overwritten without force")

	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	written, err = WriteDefault(path, true)
	require.NoError(t, err)
	assert.True(t, written)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm(), "permissions are preserved on overwrite")
}

func TestDefaultYAMLLoads(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigFile), []byte(DefaultConfigYAML), 0o600))

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, Default().Server, cfg.Server)
	require.NoError(t, ValidateConfig(cfg))
}
