// Package service runs the Z-88 creative ritual and the story workflows
// built on it.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/helix-collective/z88/internal/agents"
	"github.com/helix-collective/z88/internal/config"
	"github.com/helix-collective/z88/internal/core"
	"github.com/helix-collective/z88/internal/events"
	"github.com/helix-collective/z88/internal/logging"
	"github.com/helix-collective/z88/internal/telemetry"
)

const scope = "github.com/helix-collective/z88/service"

// Genre is recorded on every story.
const Genre = "cyberpunk"

// CustomPreset names setups built from caller-selected agents.
const CustomPreset = "custom"

const (
	synthesisTemperature = 0.8
	qualityTemperature   = 0.3
	ethicsTemperature    = 0.2
)

// progress checkpoints
const (
	pctInvocation = 10
	pctRollCall   = 25
	pctOracle     = 35
	pctLumina     = 45
	pctGemini     = 55
	pctAgni       = 65
	pctResearcher = 70
	pctSynthesis  = 75
	pctQuality    = 85
	pctEthics     = 90
	pctComplete   = 100
)

// RitualOptions selects the agents for a ritual. CustomAgents, when
// non-empty, take precedence over Preset.
type RitualOptions struct {
	Preset       string              `json:"preset,omitempty"`
	CustomAgents []agents.CustomAgent `json:"custom_agents,omitempty"`
	OwnerID      string              `json:"-"`
}

// RitualResult is the outcome of one ritual. On failure Success is false
// and Error holds the message.
type RitualResult struct {
	Success    bool                   `json:"success"`
	RitualID   string                 `json:"ritual_id"`
	Title      string                 `json:"title"`
	StoryText  string                 `json:"story_text"`
	Metadata   core.StoryMetadata     `json:"metadata"`
	Trajectory []core.TrajectoryPoint `json:"ucf_trajectory"`
	Outputs    []core.AgentOutput     `json:"agent_outputs"`
	Error      string                 `json:"error,omitempty"`
}

// Ritual runs the sequential multi-agent story pipeline.
type Ritual struct {
	llm      core.LLM
	presets  *agents.Registry
	prompts  *PromptRenderer
	bus      *events.EventBus
	logger   *logging.Logger
	settings config.RitualConfig
	now      func() time.Time

	metricsOnce sync.Once
	runs        metric.Int64Counter
	duration    metric.Float64Histogram
}

// RitualOption customizes a Ritual.
type RitualOption func(*Ritual)

// WithEventBus publishes progress to bus.
func WithEventBus(bus *events.EventBus) RitualOption {
	return func(r *Ritual) { r.bus = bus }
}

// WithLogger sets the ritual logger.
func WithLogger(l *logging.Logger) RitualOption {
	return func(r *Ritual) { r.logger = l }
}

// WithSettings overrides the default preset, timeout and synthesis budget.
func WithSettings(cfg config.RitualConfig) RitualOption {
	return func(r *Ritual) { r.settings = cfg }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) RitualOption {
	return func(r *Ritual) { r.now = now }
}

// NewRitual creates a ritual runner over llm.
func NewRitual(llm core.LLM, presets *agents.Registry, opts ...RitualOption) (*Ritual, error) {
	prompts, err := NewPromptRenderer()
	if err != nil {
		return nil, err
	}
	r := &Ritual{
		llm:      llm,
		presets:  presets,
		prompts:  prompts,
		logger:   logging.NewNop(),
		settings: config.Default().Ritual,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.presets == nil {
		r.presets = agents.NewRegistry()
	}
	return r, nil
}

// Prompts exposes the renderer for the other story workflows.
func (r *Ritual) Prompts() *PromptRenderer {
	return r.prompts
}

// ValidatePrompt trims prompt and checks its length in characters.
func ValidatePrompt(prompt string) (string, error) {
	p := strings.TrimSpace(prompt)
	n := utf8.RuneCountInString(p)
	switch {
	case n == 0:
		return "", core.ErrValidation(core.CodeEmptyPrompt, "prompt is required")
	case n < core.MinPromptLength:
		return "", core.ErrValidation(core.CodePromptTooShort,
			fmt.Sprintf("prompt must be at least %d characters", core.MinPromptLength))
	case n > core.MaxPromptLength:
		return "", core.ErrValidation(core.CodePromptTooLong,
			fmt.Sprintf("prompt must be at most %d characters", core.MaxPromptLength))
	}
	return p, nil
}

// Resolve returns the agent setup and preset label for opts.
func (r *Ritual) Resolve(opts RitualOptions) (agents.Setup, string, error) {
	var (
		setup  agents.Setup
		preset string
	)
	if len(opts.CustomAgents) > 0 {
		setup = agents.BuildCustomSetup(opts.CustomAgents)
		preset = CustomPreset
	} else {
		preset = opts.Preset
		if preset == "" {
			preset = r.settings.DefaultPreset
		}
		if preset == "" {
			preset = agents.DefaultPreset
		}
		var err error
		if setup, err = r.presets.ApplyPreset(preset); err != nil {
			return nil, "", err
		}
	}
	if _, ok := setup.Lookup(agents.Oracle); !ok {
		return nil, "", core.ErrValidation(core.CodeOracleRequired, "Oracle agent is required")
	}
	return setup, preset, nil
}

// run is the mutable state of one ritual.
type run struct {
	id       string
	owner    string
	prompt   string
	preset   string
	setup    agents.Setup
	ucf      core.UCFState
	points   []core.TrajectoryPoint
	outputs  []core.AgentOutput
	contribs map[string]core.AgentContribution
	log      *logging.Logger
}

// Run executes the ritual for prompt. Invalid input returns an error and
// no result. Once the ritual starts, any failure returns a result with
// Success false together with the error.
func (r *Ritual) Run(ctx context.Context, prompt string, opts RitualOptions) (*RitualResult, error) {
	prompt, err := ValidatePrompt(prompt)
	if err != nil {
		return nil, err
	}
	setup, preset, err := r.Resolve(opts)
	if err != nil {
		return nil, err
	}

	r.metricsOnce.Do(r.initMetrics)

	rn := &run{
		id:       NewRitualID(r.now()),
		owner:    opts.OwnerID,
		prompt:   prompt,
		preset:   preset,
		setup:    setup,
		ucf:      core.InitialUCF(),
		contribs: make(map[string]core.AgentContribution, len(setup)),
	}
	for _, a := range setup {
		rn.contribs[a.Key] = core.AgentContribution{Provider: a.Provider, Role: a.Agent.Role}
	}
	rn.log = logging.FromContext(ctx, r.logger).WithRitual(rn.id)

	if r.settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.settings.Timeout)
		defer cancel()
	}

	ctx, span := telemetry.Tracer(scope).Start(ctx, "ritual.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("z88.ritual.id", rn.id),
		attribute.String("z88.ritual.preset", preset),
		attribute.Int("z88.ritual.agents", len(setup)),
	)

	rn.log.Info("ritual started", "preset", preset, "agents", strings.Join(setup.Keys(), ","))
	r.publish(events.NewRitualStartedEvent(rn.id, rn.owner, prompt, preset, setup.Keys()))

	start := r.now()
	result, err := r.execute(ctx, rn)
	elapsed := time.Since(start)

	presetAttr := attribute.String("preset", preset)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !core.IsCategory(err, core.ErrCatTimeout) {
			err = core.ErrTimeout("ritual timed out").WithCause(err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.runs.Add(ctx, 1, metric.WithAttributes(presetAttr, attribute.String("outcome", "error")))
		rn.log.Error("ritual failed", "duration", elapsed, "error", err)
		r.publishTerminal(events.NewRitualFailedEvent(rn.id, rn.owner, err))
		return &RitualResult{
			Success:    false,
			RitualID:   rn.id,
			Title:      "Error",
			Trajectory: rn.points,
			Outputs:    rn.outputs,
			Error:      err.Error(),
		}, err
	}

	r.runs.Add(ctx, 1, metric.WithAttributes(presetAttr, attribute.String("outcome", "ok")))
	r.duration.Record(ctx, float64(elapsed.Milliseconds()), metric.WithAttributes(presetAttr))
	span.SetAttributes(
		attribute.Int("z88.ritual.word_count", result.Metadata.WordCount),
		attribute.Float64("z88.ritual.quality", result.Metadata.QualityScore),
		attribute.Bool("z88.ritual.approved", result.Metadata.EthicalApproval),
	)
	rn.log.Info("ritual complete",
		"title", result.Title,
		"words", result.Metadata.WordCount,
		"quality", result.Metadata.QualityScore,
		"approved", result.Metadata.EthicalApproval,
		"duration", elapsed,
	)
	r.publishTerminal(events.NewRitualCompletedEvent(rn.id, rn.owner, result.Metadata))
	return result, nil
}

func (r *Ritual) initMetrics() {
	m := telemetry.Meter(scope)
	r.runs, _ = m.Int64Counter("z88.rituals",
		metric.WithDescription("Rituals run by preset and outcome"),
	)
	r.duration, _ = m.Float64Histogram("z88.ritual.duration",
		metric.WithDescription("Ritual wall time in milliseconds"),
		metric.WithUnit("ms"),
	)
}

func (r *Ritual) execute(ctx context.Context, rn *run) (*RitualResult, error) {
	r.advance(rn, "Phase 1: Invocation & Intent Setting", pctInvocation, 0.2, core.StepInvocation)
	r.advance(rn, "Phase 2: Agent Roll Call", pctRollCall, 0.3, core.StepRollCall)

	oracle, _ := rn.setup.Lookup(agents.Oracle)
	r.progress(rn, agentPhase(oracle), pctOracle)
	user, err := r.prompts.RenderPlot(PlotParams{Prompt: rn.prompt})
	if err != nil {
		return nil, err
	}
	plot, err := r.invoke(ctx, rn, oracle, user, oracle.Temperature)
	if err != nil {
		return nil, err
	}

	var characters, world, twists, research string

	if a, ok := rn.setup.Lookup(agents.Lumina); ok {
		r.progress(rn, agentPhase(a), pctLumina)
		if user, err = r.prompts.RenderCharacters(CharactersParams{Plot: plot}); err != nil {
			return nil, err
		}
		if characters, err = r.invoke(ctx, rn, a, user, a.Temperature); err != nil {
			return nil, err
		}
	}

	if a, ok := rn.setup.Lookup(agents.Gemini); ok {
		r.progress(rn, agentPhase(a), pctGemini)
		if user, err = r.prompts.RenderWorld(WorldParams{Plot: plot}); err != nil {
			return nil, err
		}
		if world, err = r.invoke(ctx, rn, a, user, a.Temperature); err != nil {
			return nil, err
		}
	}

	if a, ok := rn.setup.Lookup(agents.Agni); ok {
		r.progress(rn, agentPhase(a), pctAgni)
		if user, err = r.prompts.RenderTwists(TwistsParams{Plot: plot, Characters: characters}); err != nil {
			return nil, err
		}
		if twists, err = r.invoke(ctx, rn, a, user, a.Temperature); err != nil {
			return nil, err
		}
	}

	if a, ok := rn.setup.Lookup(agents.Researcher); ok {
		r.progress(rn, agentPhase(a), pctResearcher)
		if user, err = r.prompts.RenderGrounding(GroundingParams{Prompt: rn.prompt, World: world}); err != nil {
			return nil, err
		}
		if research, err = r.invoke(ctx, rn, a, user, a.Temperature); err != nil {
			return nil, err
		}
	}

	r.advance(rn, "", 0, 0.7, core.StepCreative)

	r.progress(rn, "Phase 4: Synthesizing story", pctSynthesis)
	story, err := r.synthesize(ctx, rn, oracle.Provider, SynthesisParams{
		Prompt:     rn.prompt,
		Plot:       plot,
		Characters: characters,
		World:      world,
		Twists:     twists,
		Research:   research,
	})
	if err != nil {
		return nil, err
	}

	quality := core.DefaultQualityScore
	r.progress(rn, "Phase 4: Quality assessment with Claude", pctQuality)
	if a, ok := rn.setup.Lookup(agents.Claude); ok {
		if user, err = r.prompts.RenderQuality(StoryParams{Story: story}); err != nil {
			return nil, err
		}
		reply, err := r.invoke(ctx, rn, a, user, qualityTemperature)
		if err != nil {
			return nil, err
		}
		quality = ParseQualityScore(reply)
		rn.log.Debug("quality assessed", "score", quality)
	}

	approved := true
	r.progress(rn, "Phase 4: Ethical scan with Kavach", pctEthics)
	if a, ok := rn.setup.Lookup(agents.Kavach); ok {
		if user, err = r.prompts.RenderEthics(StoryParams{Story: story}); err != nil {
			return nil, err
		}
		reply, err := r.invoke(ctx, rn, a, user, ethicsTemperature)
		if err != nil {
			return nil, err
		}
		approved = ParseEthicalApproval(reply)
		rn.log.Debug("ethical review", "approved", approved)
	}

	r.advance(rn, "", 0, 1.0, core.StepComplete)

	title := ExtractTitle(story)
	meta := core.StoryMetadata{
		RitualID:           rn.id,
		Title:              title,
		Prompt:             rn.prompt,
		Genre:              Genre,
		Preset:             rn.preset,
		WordCount:          WordCount(story),
		QualityScore:       quality,
		EthicalApproval:    approved,
		AgentContributions: rn.contribs,
		UCFSnapshot:        rn.ucf.Settle(quality, approved),
		Timestamp:          r.now(),
	}
	r.progress(rn, "Phase 5: Ritual complete!", pctComplete)

	return &RitualResult{
		Success:    true,
		RitualID:   rn.id,
		Title:      title,
		StoryText:  story,
		Metadata:   meta,
		Trajectory: rn.points,
		Outputs:    rn.outputs,
	}, nil
}

func agentPhase(a agents.Assignment) string {
	return fmt.Sprintf("Phase 3: Invoking %s (%s)", a.Agent.Name, a.Agent.Role)
}

// advance eases the UCF state, records a trajectory point and, when msg
// is set, emits a progress event.
func (r *Ritual) advance(rn *run, msg string, pct int, progress float64, step int) {
	rn.ucf = core.Modulate(rn.ucf, core.TargetUCF(), progress)
	rn.points = append(rn.points, core.TrajectoryPoint{
		UCFState:  rn.ucf,
		Step:      step,
		Timestamp: r.now(),
	})
	if msg != "" {
		r.progress(rn, msg, pct)
	}
}

func (r *Ritual) progress(rn *run, msg string, pct int) {
	rn.log.Debug("ritual progress", "percent", pct, "message", msg)
	ucf := rn.ucf
	r.publish(events.NewRitualProgressEvent(rn.id, rn.owner, msg, pct, &ucf))
}

// invoke runs one agent call and records its transcript.
func (r *Ritual) invoke(ctx context.Context, rn *run, a agents.Assignment, user string, temperature float64) (string, error) {
	log := rn.log.WithAgent(a.Key).WithProvider(string(a.Provider))
	resp, err := r.llm.Call(logging.IntoContext(ctx, log), a.Provider, []core.Message{
		core.SystemMessage(a.Agent.SystemPrompt),
		core.UserMessage(user),
	}, core.CallOptions{Temperature: temperature, MaxTokens: core.DefaultMaxTokens})
	if err != nil {
		return "", fmt.Errorf("%s (%s): %w", a.Agent.Name, a.Provider, err)
	}

	out := core.AgentOutput{
		AgentKey:  a.Key,
		Name:      a.Agent.Name,
		Symbol:    a.Agent.Emoji,
		Role:      a.Agent.Role,
		Provider:  a.Provider,
		Model:     resp.Model,
		Content:   resp.Content,
		Tokens:    resp.Usage.TotalTokens,
		UCF:       rn.ucf,
		Timestamp: r.now(),
	}
	rn.outputs = append(rn.outputs, out)

	c := rn.contribs[a.Key]
	c.Tokens += resp.Usage.TotalTokens
	c.Model = resp.Model
	rn.contribs[a.Key] = c

	log.Debug("agent complete", "tokens", out.Tokens, "model", out.Model)
	r.publish(events.NewAgentCompletedEvent(rn.id, rn.owner, out))
	return resp.Content, nil
}

// Synthesis transcript identity.
const (
	synthesisKey    = "synthesis"
	synthesisName   = "Synthesis"
	synthesisSymbol = "✨"
	synthesisRole   = "Story Synthesizer"
)

func (r *Ritual) synthesize(ctx context.Context, rn *run, provider core.Provider, p SynthesisParams) (string, error) {
	system, user, err := r.prompts.RenderSynthesis(p)
	if err != nil {
		return "", err
	}
	maxTokens := r.settings.SynthesisMaxTokens
	if maxTokens <= 0 {
		maxTokens = config.Default().Ritual.SynthesisMaxTokens
	}

	log := rn.log.WithPhase(synthesisKey).WithProvider(string(provider))
	resp, err := r.llm.Call(logging.IntoContext(ctx, log), provider, []core.Message{
		core.SystemMessage(system),
		core.UserMessage(user),
	}, core.CallOptions{Temperature: synthesisTemperature, MaxTokens: maxTokens})
	if err != nil {
		return "", fmt.Errorf("synthesis (%s): %w", provider, err)
	}

	out := core.AgentOutput{
		AgentKey:  synthesisKey,
		Name:      synthesisName,
		Symbol:    synthesisSymbol,
		Role:      synthesisRole,
		Provider:  provider,
		Model:     resp.Model,
		Content:   resp.Content,
		Tokens:    resp.Usage.TotalTokens,
		UCF:       rn.ucf,
		Timestamp: r.now(),
	}
	rn.outputs = append(rn.outputs, out)
	r.publish(events.NewAgentCompletedEvent(rn.id, rn.owner, out))
	return resp.Content, nil
}

func (r *Ritual) publish(ev events.Event) {
	if r.bus != nil {
		r.bus.Publish(ev)
	}
}

func (r *Ritual) publishTerminal(ev events.Event) {
	if r.bus != nil {
		r.bus.PublishTerminal(ev)
	}
}
