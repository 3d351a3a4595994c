package service

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"
)

//go:embed prompts/*.md.tmpl
var promptsFS embed.FS

// PromptRenderer renders prompts from templates.
type PromptRenderer struct {
	templates map[string]*template.Template
	mu        sync.RWMutex
}

// NewPromptRenderer creates a new prompt renderer.
func NewPromptRenderer() (*PromptRenderer, error) {
	r := &PromptRenderer{
		templates: make(map[string]*template.Template),
	}

	if err := r.loadTemplates(); err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	return r, nil
}

// loadTemplates loads all templates from the embedded filesystem.
func (r *PromptRenderer) loadTemplates() error {
	return fs.WalkDir(promptsFS, "prompts", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || !strings.HasSuffix(path, ".md.tmpl") {
			return nil
		}

		content, err := promptsFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		name := strings.TrimPrefix(path, "prompts/")
		name = strings.TrimSuffix(name, ".md.tmpl")

		tmpl, err := template.New(name).Funcs(templateFuncs()).Parse(string(content))
		if err != nil {
			return fmt.Errorf("parsing template %s: %w", name, err)
		}

		r.templates[name] = tmpl
		return nil
	})
}

// templateFuncs returns custom template functions.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"join":    func(items []string, sep string) string { return strings.Join(items, sep) },
		"excerpt": excerpt,
		"longer":  func(n int, s string) bool { return utf8.RuneCountInString(s) > n },
		"add":     func(a, b int) int { return a + b },
	}
}

// excerpt returns at most n runes of s.
func excerpt(n int, s string) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func (r *PromptRenderer) render(name string, data any) (string, error) {
	r.mu.RLock()
	tmpl, ok := r.templates[name]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("template %q not found", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template %s: %w", name, err)
	}

	return strings.TrimSpace(buf.String()), nil
}

// ListTemplates returns available template names, sorted.
func (r *PromptRenderer) ListTemplates() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasTemplate checks if a template exists.
func (r *PromptRenderer) HasTemplate(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.templates[name]
	return ok
}

// PlotParams feeds the plot architect.
type PlotParams struct {
	Prompt string
}

// RenderPlot renders the three-act plot request.
func (r *PromptRenderer) RenderPlot(p PlotParams) (string, error) {
	return r.render("oracle-plot", p)
}

// CharactersParams feeds the character psychologist.
type CharactersParams struct {
	Plot string
}

// RenderCharacters renders the character arc request.
func (r *PromptRenderer) RenderCharacters(p CharactersParams) (string, error) {
	return r.render("lumina-characters", p)
}

// WorldParams feeds the world-builder.
type WorldParams struct {
	Plot string
}

// RenderWorld renders the world-building request.
func (r *PromptRenderer) RenderWorld(p WorldParams) (string, error) {
	return r.render("gemini-world", p)
}

// TwistsParams feeds the creative catalyst. Only excerpts are sent.
type TwistsParams struct {
	Plot       string
	Characters string
}

// RenderTwists renders the twist request.
func (r *PromptRenderer) RenderTwists(p TwistsParams) (string, error) {
	return r.render("agni-twists", p)
}

// GroundingParams feeds the researcher.
type GroundingParams struct {
	Prompt string
	World  string
}

// RenderGrounding renders the research request.
func (r *PromptRenderer) RenderGrounding(p GroundingParams) (string, error) {
	return r.render("researcher-grounding", p)
}

// SynthesisParams carries every contribution into the final story.
// Empty sections are omitted.
type SynthesisParams struct {
	Prompt     string
	Plot       string
	Characters string
	World      string
	Twists     string
	Research   string
}

// RenderSynthesis renders the system and user messages for synthesis.
func (r *PromptRenderer) RenderSynthesis(p SynthesisParams) (system, user string, err error) {
	if system, err = r.render("synthesis-system", nil); err != nil {
		return "", "", err
	}
	if user, err = r.render("synthesis", p); err != nil {
		return "", "", err
	}
	return system, user, nil
}

// StoryParams carries a finished story to a reviewer.
type StoryParams struct {
	Story string
}

// RenderQuality renders the quality assessment request.
func (r *PromptRenderer) RenderQuality(p StoryParams) (string, error) {
	return r.render("quality-assess", p)
}

// RenderEthics renders the ethical review request.
func (r *PromptRenderer) RenderEthics(p StoryParams) (string, error) {
	return r.render("ethics-review", p)
}

// EnhanceParams carries a user prompt to the enhancer.
type EnhanceParams struct {
	Prompt string
}

// RenderAnalyze renders the analysis-only enhancer messages.
func (r *PromptRenderer) RenderAnalyze(p EnhanceParams) (system, user string, err error) {
	return r.renderPair("enhance-analyze", p)
}

// RenderExpand renders the expanding enhancer messages.
func (r *PromptRenderer) RenderExpand(p EnhanceParams) (system, user string, err error) {
	return r.renderPair("enhance-expand", p)
}

// ContinuationParams describes the chapter being continued.
type ContinuationParams struct {
	SeriesTitle   string
	Title         string
	Content       string
	ChapterNumber int
	Direction     string
	Context       *StoryContext
}

// RenderContinuation renders the next-chapter planning messages.
func (r *PromptRenderer) RenderContinuation(p ContinuationParams) (system, user string, err error) {
	return r.renderPair("continuation", p)
}

// ContextParams carries a story to the context extractor.
type ContextParams struct {
	Content string
}

// RenderContextExtract renders the context extraction messages.
func (r *PromptRenderer) RenderContextExtract(p ContextParams) (system, user string, err error) {
	return r.renderPair("context-extract", p)
}

// renderPair renders "<name>-system" and "<name>".
func (r *PromptRenderer) renderPair(name string, data any) (system, user string, err error) {
	if system, err = r.render(name+"-system", data); err != nil {
		return "", "", err
	}
	if user, err = r.render(name, data); err != nil {
		return "", "", err
	}
	return system, user, nil
}
