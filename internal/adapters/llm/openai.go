package llm

import (
	"context"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/helix-collective/z88/internal/config"
	"github.com/helix-collective/z88/internal/core"
)

// chatCompletions serves every vendor with an OpenAI-compatible
// chat-completions endpoint: OpenAI itself, xAI and Perplexity.
type chatCompletions struct {
	provider core.Provider
	client   *openai.Client
}

func newChatCompletions(provider core.Provider, cfg config.ProviderConfig, hc *http.Client) *chatCompletions {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if hc != nil {
		oc.HTTPClient = hc
	}
	return &chatCompletions{
		provider: provider,
		client:   openai.NewClientWithConfig(oc),
	}
}

func (c *chatCompletions) complete(ctx context.Context, model string, messages []core.Message, opts core.CallOptions) (*core.Completion, error) {
	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		Temperature: float32(opts.Temperature),
		MaxTokens:   opts.MaxTokens,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    chatRole(m.Role),
			Content: m.Content,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, emptyCompletion(c.provider)
	}

	out := &core.Completion{
		Content:  resp.Choices[0].Message.Content,
		Provider: c.provider,
		Model:    resp.Model,
		Usage: core.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if out.Model == "" {
		out.Model = model
	}
	return out, nil
}

func chatRole(r core.Role) string {
	switch r {
	case core.RoleSystem:
		return openai.ChatMessageRoleSystem
	case core.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
