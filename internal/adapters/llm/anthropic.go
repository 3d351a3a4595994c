package llm

import (
	"context"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/helix-collective/z88/internal/config"
	"github.com/helix-collective/z88/internal/core"
)

// messagesAPI calls Anthropic's Messages endpoint.
type messagesAPI struct {
	client anthropic.Client
}

func newMessagesAPI(cfg config.ProviderConfig, hc *http.Client) *messagesAPI {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// the router owns retries
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if hc != nil {
		opts = append(opts, option.WithHTTPClient(hc))
	}
	return &messagesAPI{client: anthropic.NewClient(opts...)}
}

func (c *messagesAPI) complete(ctx context.Context, model string, messages []core.Message, opts core.CallOptions) (*core.Completion, error) {
	system, rest := core.SplitSystem(messages)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(opts.MaxTokens),
		Messages:    make([]anthropic.MessageParam, 0, len(rest)),
		Temperature: anthropic.Float(opts.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, m := range rest {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == core.RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, emptyCompletion(core.ProviderAnthropic)
	}

	in, out := int(message.Usage.InputTokens), int(message.Usage.OutputTokens)
	resolved := string(message.Model)
	if resolved == "" {
		resolved = model
	}
	return &core.Completion{
		Content:  text.String(),
		Provider: core.ProviderAnthropic,
		Model:    resolved,
		Usage: core.Usage{
			PromptTokens:     in,
			CompletionTokens: out,
			TotalTokens:      in + out,
		},
	}, nil
}
