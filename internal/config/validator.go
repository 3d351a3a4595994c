package config

import (
	"fmt"
	"strings"

	"github.com/helix-collective/z88/internal/core"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{errors: make(ValidationErrors, 0)}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateServer(&cfg.Server)
	v.validateProviders(&cfg.Providers)
	v.validateLLM(&cfg.LLM)
	v.validateRitual(&cfg.Ritual)
	v.validateStorage(&cfg.Storage)

	if w := cfg.Server.WriteTimeout; w > 0 && w < cfg.Ritual.Timeout {
		v.addError("server.write_timeout", w, "must be zero or at least ritual.timeout")
	}

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

// Errors returns the collected errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Value: value, Message: message})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	switch cfg.Level {
	case "debug", "info", "warn", "error":
	default:
		v.addError("log.level", cfg.Level, "must be one of debug, info, warn, error")
	}
	switch cfg.Format {
	case "auto", "text", "json":
	default:
		v.addError("log.format", cfg.Format, "must be one of auto, text, json")
	}
}

func (v *Validator) validateServer(cfg *ServerConfig) {
	if cfg.Port < 1 || cfg.Port > 65535 {
		v.addError("server.port", cfg.Port, "must be between 1 and 65535")
	}
	if cfg.ReadTimeout < 0 {
		v.addError("server.read_timeout", cfg.ReadTimeout, "must not be negative")
	}
	if cfg.WriteTimeout < 0 {
		v.addError("server.write_timeout", cfg.WriteTimeout, "must not be negative")
	}
}

func (v *Validator) validateProviders(cfg *ProvidersConfig) {
	for _, p := range core.AllProviders() {
		pc := cfg.Get(p)
		if pc.Model == "" {
			v.addError("providers."+string(p)+".model", pc.Model, "model is required")
		}
		if pc.BaseURL != "" && !strings.HasPrefix(pc.BaseURL, "http://") && !strings.HasPrefix(pc.BaseURL, "https://") {
			v.addError("providers."+string(p)+".base_url", pc.BaseURL, "must be an http(s) URL")
		}
	}
}

func (v *Validator) validateLLM(cfg *LLMConfig) {
	if cfg.MaxRetries < 0 || cfg.MaxRetries > 10 {
		v.addError("llm.max_retries", cfg.MaxRetries, "must be between 0 and 10")
	}
	if cfg.InitialBackoff < 0 {
		v.addError("llm.initial_backoff", cfg.InitialBackoff, "must not be negative")
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		v.addError("llm.max_backoff", cfg.MaxBackoff, "must be at least llm.initial_backoff")
	}
	if cfg.RequestsPerMinute < 0 {
		v.addError("llm.requests_per_minute", cfg.RequestsPerMinute, "must not be negative")
	}
}

func (v *Validator) validateRitual(cfg *RitualConfig) {
	if cfg.DefaultPreset == "" {
		v.addError("ritual.default_preset", cfg.DefaultPreset, "must not be empty")
	}
	if cfg.SynthesisMaxTokens <= 0 {
		v.addError("ritual.synthesis_max_tokens", cfg.SynthesisMaxTokens, "must be positive")
	}
	if !core.Provider(cfg.UtilityProvider).Valid() {
		v.addError("ritual.utility_provider", cfg.UtilityProvider, "unsupported provider")
	}
}

func (v *Validator) validateStorage(cfg *StorageConfig) {
	switch cfg.Driver {
	case "sqlite":
		if cfg.Path == "" {
			v.addError("storage.path", cfg.Path, "required for sqlite")
		}
	case "mysql":
		if cfg.DSN == "" {
			v.addError("storage.dsn", cfg.DSN, "required for mysql")
		}
	default:
		v.addError("storage.driver", cfg.Driver, "must be sqlite or mysql")
	}
}

// ValidateConfig is a convenience wrapper.
func ValidateConfig(cfg *Config) error {
	return NewValidator().Validate(cfg)
}
