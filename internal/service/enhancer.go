package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/helix-collective/z88/internal/core"
	"github.com/helix-collective/z88/internal/logging"
)

// Fallbacks used when the model reply cannot be parsed.
const (
	FallbackGenre = "Cyberpunk"
	FallbackTone  = "Dark"
)

// detailedPromptWords is the length above which prompts are only analyzed.
const detailedPromptWords = 100

const utilityMaxTokens = 1000

// EnhancedPrompt is the enhancer's answer.
type EnhancedPrompt struct {
	Original        string   `json:"original"`
	Enhanced        string   `json:"enhanced"`
	DetectedGenre   string   `json:"detected_genre"`
	DetectedTone    string   `json:"detected_tone"`
	SuggestedThemes []string `json:"suggested_themes"`
	WordCount       int      `json:"word_count"`
}

// Enhancer expands short prompts and classifies long ones.
type Enhancer struct {
	llm      core.LLM
	prompts  *PromptRenderer
	provider core.Provider
	logger   *logging.Logger
}

// NewEnhancer creates an enhancer that calls provider.
func NewEnhancer(llm core.LLM, prompts *PromptRenderer, provider core.Provider, logger *logging.Logger) *Enhancer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Enhancer{llm: llm, prompts: prompts, provider: provider, logger: logger}
}

type enhanceReply struct {
	Enhanced string   `json:"enhanced"`
	Genre    string   `json:"genre"`
	Tone     string   `json:"tone"`
	Themes   []string `json:"themes"`
}

// Enhance expands prompts of up to 100 words and only analyzes longer ones.
// An unparseable reply keeps the original prompt with fallback genre and tone.
func (e *Enhancer) Enhance(ctx context.Context, prompt string) (*EnhancedPrompt, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, core.ErrValidation(core.CodeEmptyPrompt, "prompt is required")
	}

	detailed := WordCount(prompt) > detailedPromptWords
	render := e.prompts.RenderExpand
	if detailed {
		render = e.prompts.RenderAnalyze
	}
	system, user, err := render(EnhanceParams{Prompt: prompt})
	if err != nil {
		return nil, err
	}

	resp, err := e.llm.Call(ctx, e.provider, []core.Message{
		core.SystemMessage(system),
		core.UserMessage(user),
	}, core.CallOptions{Temperature: core.DefaultTemperature, MaxTokens: utilityMaxTokens})
	if err != nil {
		return nil, fmt.Errorf("enhancing prompt: %w", err)
	}

	var reply enhanceReply
	if err := decodeJSONReply(resp.Content, &reply); err != nil {
		e.logger.Warn("enhancer reply not parsed, using fallbacks", "error", err)
		reply = enhanceReply{}
	}

	out := &EnhancedPrompt{
		Original:        prompt,
		Enhanced:        prompt,
		DetectedGenre:   firstNonEmpty(reply.Genre, FallbackGenre),
		DetectedTone:    firstNonEmpty(reply.Tone, FallbackTone),
		SuggestedThemes: reply.Themes,
	}
	if !detailed && strings.TrimSpace(reply.Enhanced) != "" {
		out.Enhanced = strings.TrimSpace(reply.Enhanced)
	}
	if out.SuggestedThemes == nil {
		out.SuggestedThemes = []string{}
	}
	out.WordCount = WordCount(out.Enhanced)
	return out, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// PromptTemplate is a fill-in-the-blanks story seed.
type PromptTemplate struct {
	Key          string   `json:"key"`
	Template     string   `json:"template"`
	Placeholders []string `json:"placeholders"`
}

var promptTemplates = map[string]string{
	"hacker":    "A skilled hacker in a neon-lit megacity discovers {secret} and must {action} before {threat}.",
	"detective": "An augmented detective investigates {mystery} in a city where {twist}.",
	"rebel":     "A street samurai protects {target} from {antagonist} while navigating {conflict}.",
	"memory":    "A memory trader finds {artifact} containing {revelation}, forcing them to {choice}.",
	"ai":        "An AI {role} questions its existence when {trigger}, leading to {consequence}.",
}

// PromptTemplates lists the templates sorted by key.
func PromptTemplates() []PromptTemplate {
	keys := make([]string, 0, len(promptTemplates))
	for k := range promptTemplates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]PromptTemplate, 0, len(keys))
	for _, k := range keys {
		out = append(out, PromptTemplate{
			Key:          k,
			Template:     promptTemplates[k],
			Placeholders: placeholders(promptTemplates[k]),
		})
	}
	return out
}

func placeholders(tmpl string) []string {
	var out []string
	for {
		start := strings.IndexByte(tmpl, '{')
		if start < 0 {
			return out
		}
		end := strings.IndexByte(tmpl[start:], '}')
		if end < 0 {
			return out
		}
		out = append(out, tmpl[start+1:start+end])
		tmpl = tmpl[start+end+1:]
	}
}

// ApplyTemplate fills a template's placeholders. Placeholders without a
// value are left in place.
func ApplyTemplate(key string, vars map[string]string) (string, error) {
	tmpl, ok := promptTemplates[key]
	if !ok {
		return "", core.ErrValidation(core.CodeUnknownTemplate, fmt.Sprintf("unknown template: %s", key))
	}
	for k, v := range vars {
		tmpl = strings.ReplaceAll(tmpl, "{"+k+"}", v)
	}
	return tmpl, nil
}
