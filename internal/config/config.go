package config

import (
	"time"

	"github.com/helix-collective/z88/internal/core"
)

// Config holds all application configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Providers ProvidersConfig `mapstructure:"providers" yaml:"providers"`
	LLM       LLMConfig       `mapstructure:"llm" yaml:"llm"`
	Ritual    RitualConfig    `mapstructure:"ritual" yaml:"ritual"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Agents    AgentsConfig    `mapstructure:"agents" yaml:"agents"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// ProviderConfig configures one LLM vendor.
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Model   string `mapstructure:"model" yaml:"model"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url,omitempty"`
}

// Configured reports whether the provider has credentials.
func (p ProviderConfig) Configured() bool {
	return p.APIKey != ""
}

// ProvidersConfig holds every vendor's settings.
type ProvidersConfig struct {
	OpenAI     ProviderConfig `mapstructure:"openai" yaml:"openai"`
	Anthropic  ProviderConfig `mapstructure:"anthropic" yaml:"anthropic"`
	XAI        ProviderConfig `mapstructure:"xai" yaml:"xai"`
	Google     ProviderConfig `mapstructure:"google" yaml:"google"`
	Perplexity ProviderConfig `mapstructure:"perplexity" yaml:"perplexity"`
}

// Get returns the settings for p.
func (c ProvidersConfig) Get(p core.Provider) ProviderConfig {
	switch p {
	case core.ProviderOpenAI:
		return c.OpenAI
	case core.ProviderAnthropic:
		return c.Anthropic
	case core.ProviderXAI:
		return c.XAI
	case core.ProviderGoogle:
		return c.Google
	case core.ProviderPerplexity:
		return c.Perplexity
	}
	return ProviderConfig{}
}

// LLMConfig tunes provider calls.
type LLMConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
	// RequestsPerMinute caps calls per provider; 0 disables limiting.
	RequestsPerMinute int `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// RitualConfig configures the story pipeline.
type RitualConfig struct {
	DefaultPreset      string        `mapstructure:"default_preset" yaml:"default_preset"`
	Timeout            time.Duration `mapstructure:"timeout" yaml:"timeout"`
	SynthesisMaxTokens int           `mapstructure:"synthesis_max_tokens" yaml:"synthesis_max_tokens"`
	// UtilityProvider serves prompt enhancement and continuation planning.
	UtilityProvider string `mapstructure:"utility_provider" yaml:"utility_provider"`
}

// StorageConfig configures persistence.
type StorageConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // sqlite, mysql
	Path   string `mapstructure:"path" yaml:"path"`     // sqlite file
	DSN    string `mapstructure:"dsn" yaml:"dsn,omitempty"`
}

// AgentsConfig configures the preset overlay.
type AgentsConfig struct {
	PresetsFile  string `mapstructure:"presets_file" yaml:"presets_file"`
	WatchPresets bool   `mapstructure:"watch_presets" yaml:"watch_presets"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled" yaml:"enabled"`
	Stdout       bool   `mapstructure:"stdout" yaml:"stdout"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint,omitempty"`
}
