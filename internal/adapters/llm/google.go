package llm

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/helix-collective/z88/internal/config"
	"github.com/helix-collective/z88/internal/core"
)

// generateContent calls the Gemini API.
type generateContent struct {
	client *genai.Client
}

func newGenerateContent(ctx context.Context, cfg config.ProviderConfig, hc *http.Client) (*generateContent, error) {
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: hc,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &generateContent{client: client}, nil
}

func (c *generateContent) complete(ctx context.Context, model string, messages []core.Message, opts core.CallOptions) (*core.Completion, error) {
	system, rest := core.SplitSystem(messages)

	contents := make([]*genai.Content, 0, len(rest))
	for _, m := range rest {
		var role genai.Role = genai.RoleUser
		if m.Role == core.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	gc := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(opts.Temperature)),
		MaxOutputTokens: int32(opts.MaxTokens),
	}
	if system != "" {
		gc.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, contents, gc)
	if err != nil {
		return nil, err
	}

	text := resp.Text()
	if text == "" {
		return nil, emptyCompletion(core.ProviderGoogle)
	}

	out := &core.Completion{
		Content:  text,
		Provider: core.ProviderGoogle,
		Model:    model,
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = core.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}
