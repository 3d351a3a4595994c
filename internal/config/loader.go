package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "Z88"

// vendorEnv lists the vendor-native variables read for each API key.
var vendorEnv = map[string]string{
	"providers.openai.api_key":     "OPENAI_API_KEY",
	"providers.anthropic.api_key":  "ANTHROPIC_API_KEY",
	"providers.xai.api_key":        "XAI_API_KEY",
	"providers.google.api_key":     "GEMINI_API_KEY",
	"providers.perplexity.api_key": "SONAR_API_KEY",
}

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return NewLoaderWithViper(viper.New())
}

// NewLoaderWithViper creates a loader using an existing viper instance.
// This allows integration with CLI flag bindings.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: EnvPrefix,
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (Z88_*, then vendor API key variables)
// 3. Project config (.z88.yaml in current directory)
// 4. User config (~/.config/z88/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()
	for key, env := range vendorEnv {
		prefixed := l.envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := l.v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	path := l.configFile
	if path == "" {
		path = discoverConfigFile()
	}
	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// ProjectConfigFile is looked up in the working directory.
const ProjectConfigFile = ".z88.yaml"

// discoverConfigFile returns the first existing config file, project
// before user.
func discoverConfigFile() string {
	candidates := []string{ProjectConfigFile}
	if dir, err := UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "config.yaml"))
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}

// UserConfigDir returns ~/.config/z88.
func UserConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "z88"), nil
}

// setDefaults configures default values.
func (l *Loader) setDefaults() {
	d := Default()

	l.v.SetDefault("log.level", d.Log.Level)
	l.v.SetDefault("log.format", d.Log.Format)

	l.v.SetDefault("server.host", d.Server.Host)
	l.v.SetDefault("server.port", d.Server.Port)
	l.v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	l.v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	l.v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	l.v.SetDefault("server.cors_origins", d.Server.CORSOrigins)

	setProvider := func(name string, p ProviderConfig) {
		l.v.SetDefault("providers."+name+".api_key", "")
		l.v.SetDefault("providers."+name+".model", p.Model)
		l.v.SetDefault("providers."+name+".base_url", p.BaseURL)
	}
	setProvider("openai", d.Providers.OpenAI)
	setProvider("anthropic", d.Providers.Anthropic)
	setProvider("xai", d.Providers.XAI)
	setProvider("google", d.Providers.Google)
	setProvider("perplexity", d.Providers.Perplexity)

	l.v.SetDefault("llm.request_timeout", d.LLM.RequestTimeout)
	l.v.SetDefault("llm.max_retries", d.LLM.MaxRetries)
	l.v.SetDefault("llm.initial_backoff", d.LLM.InitialBackoff)
	l.v.SetDefault("llm.max_backoff", d.LLM.MaxBackoff)
	l.v.SetDefault("llm.requests_per_minute", d.LLM.RequestsPerMinute)

	l.v.SetDefault("ritual.default_preset", d.Ritual.DefaultPreset)
	l.v.SetDefault("ritual.timeout", d.Ritual.Timeout)
	l.v.SetDefault("ritual.synthesis_max_tokens", d.Ritual.SynthesisMaxTokens)
	l.v.SetDefault("ritual.utility_provider", d.Ritual.UtilityProvider)

	l.v.SetDefault("storage.driver", d.Storage.Driver)
	l.v.SetDefault("storage.path", d.Storage.Path)
	l.v.SetDefault("storage.dsn", d.Storage.DSN)

	l.v.SetDefault("agents.presets_file", d.Agents.PresetsFile)
	l.v.SetDefault("agents.watch_presets", d.Agents.WatchPresets)

	l.v.SetDefault("telemetry.enabled", d.Telemetry.Enabled)
	l.v.SetDefault("telemetry.stdout", d.Telemetry.Stdout)
	l.v.SetDefault("telemetry.otlp_endpoint", d.Telemetry.OTLPEndpoint)
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}
