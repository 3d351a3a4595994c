package core

import (
	"context"
	"fmt"
)

// =============================================================================
// LLM Port
// =============================================================================

// Provider identifies an LLM vendor.
type Provider string

const (
	ProviderOpenAI     Provider = "openai"
	ProviderAnthropic  Provider = "anthropic"
	ProviderXAI        Provider = "xai"
	ProviderGoogle     Provider = "google"
	ProviderPerplexity Provider = "perplexity"
)

// AllProviders lists every supported provider in display order.
func AllProviders() []Provider {
	return []Provider{
		ProviderOpenAI,
		ProviderAnthropic,
		ProviderXAI,
		ProviderGoogle,
		ProviderPerplexity,
	}
}

// ParseProvider validates a provider name.
func ParseProvider(s string) (Provider, error) {
	p := Provider(s)
	if !p.Valid() {
		return "", ErrValidation(CodeUnknownProvider, fmt.Sprintf("unsupported provider: %s", s))
	}
	return p, nil
}

// Valid reports whether p is a supported provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderXAI, ProviderGoogle, ProviderPerplexity:
		return true
	}
	return false
}

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single message in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SystemMessage builds a system message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Default call parameters.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2000
)

// CallOptions tune a single completion.
type CallOptions struct {
	Temperature float64
	MaxTokens   int
}

// DefaultCallOptions returns the defaults applied when a caller passes none.
func DefaultCallOptions() CallOptions {
	return CallOptions{
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
}

// Usage reports token consumption for a call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is a normalized vendor response.
type Completion struct {
	Content  string   `json:"content"`
	Provider Provider `json:"provider"`
	Model    string   `json:"model"`
	Usage    Usage    `json:"usage"`
}

// LLM routes chat completions to a vendor.
type LLM interface {
	// Call sends messages to the given provider.
	Call(ctx context.Context, provider Provider, messages []Message, opts CallOptions) (*Completion, error)
}

// ProviderTester probes provider connectivity.
type ProviderTester interface {
	TestAll(ctx context.Context) map[Provider]bool
}

// SplitSystem separates the first system message from the conversation.
// Vendors with a dedicated system field use this.
func SplitSystem(messages []Message) (string, []Message) {
	var system string
	found := false
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			if !found {
				system = m.Content
				found = true
			}
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
