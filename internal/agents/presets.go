package agents

import (
	"fmt"
	"sort"
	"sync"

	"github.com/helix-collective/z88/internal/core"
)

// DefaultPreset is used when a ritual names none.
const DefaultPreset = "balanced"

// MaxMultiplicity bounds how many instances of one agent a custom setup may run.
const MaxMultiplicity = 4

// Preset is a named selection of agents with optional overrides.
type Preset struct {
	ID                   string                   `json:"id" yaml:"id"`
	Name                 string                   `json:"name" yaml:"name"`
	Description          string                   `json:"description" yaml:"description"`
	Agents               []string                 `json:"agents" yaml:"agents"`
	ProviderOverrides    map[string]core.Provider `json:"provider_overrides,omitempty" yaml:"provider_overrides,omitempty"`
	TemperatureOverrides map[string]float64       `json:"temperature_overrides,omitempty" yaml:"temperature_overrides,omitempty"`
}

var builtinPresets = []Preset{
	{
		ID:          "balanced",
		Name:        "Balanced",
		Description: "Default configuration with all agents using their optimal LLMs",
		Agents:      []string{Oracle, Lumina, Gemini, Agni, Claude, Kavach},
	},
	{
		ID:          "creative",
		Name:        "Creative",
		Description: "Maximum creativity with Grok leading and higher temperatures",
		Agents:      []string{Oracle, Lumina, Gemini, Agni, Claude, Kavach},
		ProviderOverrides: map[string]core.Provider{
			Oracle: core.ProviderXAI,
			Gemini: core.ProviderXAI,
		},
		TemperatureOverrides: map[string]float64{
			Oracle: 0.9,
			Lumina: 0.9,
			Gemini: 0.9,
			Agni:   1.0,
		},
	},
	{
		ID:          "structured",
		Name:        "Structured",
		Description: "Focus on plot coherence and quality with GPT-4 and Claude",
		Agents:      []string{Oracle, Lumina, Claude, Kavach},
		ProviderOverrides: map[string]core.Provider{
			Lumina: core.ProviderOpenAI,
		},
		TemperatureOverrides: map[string]float64{
			Oracle: 0.6,
			Lumina: 0.6,
			Claude: 0.4,
		},
	},
	{
		ID:          "experimental",
		Name:        "Experimental",
		Description: "All agents enabled with mixed LLMs for ensemble generation",
		Agents:      []string{Oracle, Lumina, Gemini, Agni, Claude, Kavach, Researcher},
	},
	{
		ID:          "research",
		Name:        "Research-Grounded",
		Description: "Emphasizes factual accuracy and real-world grounding",
		Agents:      []string{Oracle, Gemini, Researcher, Claude, Kavach},
		ProviderOverrides: map[string]core.Provider{
			Gemini: core.ProviderPerplexity,
		},
	},
}

// Assignment binds an agent to the provider and temperature it runs with.
type Assignment struct {
	Key         string        `json:"key"`
	Agent       Agent         `json:"agent"`
	Provider    core.Provider `json:"provider"`
	Temperature float64       `json:"temperature"`
}

// Setup is the ordered set of agents taking part in a ritual.
type Setup []Assignment

// Lookup returns the assignment for id. When the agent runs with
// multiplicity the first instance answers for it.
func (s Setup) Lookup(id string) (Assignment, bool) {
	for _, a := range s {
		if a.Key == id {
			return a, true
		}
	}
	first := id + "_1"
	for _, a := range s {
		if a.Key == first {
			return a, true
		}
	}
	return Assignment{}, false
}

// Keys returns the assignment keys in order.
func (s Setup) Keys() []string {
	out := make([]string, len(s))
	for i, a := range s {
		out[i] = a.Key
	}
	return out
}

// CustomAgent is a caller-supplied agent selection. Nil fields fall back
// to the agent defaults.
type CustomAgent struct {
	AgentID      string         `json:"agent_id"`
	Provider     *core.Provider `json:"provider,omitempty"`
	Temperature  *float64       `json:"temperature,omitempty"`
	Multiplicity int            `json:"multiplicity,omitempty"`
}

// Registry serves the built-in presets plus any loaded from a presets file.
// Overlay presets replace built-ins with the same ID.
type Registry struct {
	mu      sync.RWMutex
	overlay map[string]Preset
}

// NewRegistry returns a registry holding only the built-in presets.
func NewRegistry() *Registry {
	return &Registry{overlay: make(map[string]Preset)}
}

// Preset returns the preset with id.
func (r *Registry) Preset(id string) (Preset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.overlay[id]; ok {
		return p, true
	}
	for _, p := range builtinPresets {
		if p.ID == id {
			return p, true
		}
	}
	return Preset{}, false
}

// Presets lists built-ins in their fixed order followed by overlay-only
// presets sorted by ID.
func (r *Registry) Presets() []Preset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Preset, 0, len(builtinPresets)+len(r.overlay))
	seen := make(map[string]bool, len(builtinPresets))
	for _, p := range builtinPresets {
		if o, ok := r.overlay[p.ID]; ok {
			p = o
		}
		seen[p.ID] = true
		out = append(out, p)
	}

	var extra []string
	for id := range r.overlay {
		if !seen[id] {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	for _, id := range extra {
		out = append(out, r.overlay[id])
	}
	return out
}

// SetOverlay replaces the overlay presets.
func (r *Registry) SetOverlay(presets []Preset) {
	m := make(map[string]Preset, len(presets))
	for _, p := range presets {
		m[p.ID] = p
	}
	r.mu.Lock()
	r.overlay = m
	r.mu.Unlock()
}

// ApplyPreset resolves a preset into a Setup. Unknown agent IDs inside
// the preset are skipped. An override, including 0, wins over the agent
// default.
func (r *Registry) ApplyPreset(id string) (Setup, error) {
	p, ok := r.Preset(id)
	if !ok {
		return nil, core.ErrValidation(core.CodeUnknownPreset, fmt.Sprintf("unknown preset mode: %s", id))
	}

	setup := make(Setup, 0, len(p.Agents))
	for _, agentID := range p.Agents {
		a, ok := Get(agentID)
		if !ok {
			continue
		}
		provider := a.DefaultProvider
		if o, ok := p.ProviderOverrides[agentID]; ok && o != "" {
			provider = o
		}
		temp := a.DefaultTemperature
		if o, ok := p.TemperatureOverrides[agentID]; ok {
			temp = o
		}
		setup = append(setup, Assignment{
			Key:         agentID,
			Agent:       a,
			Provider:    provider,
			Temperature: core.Clamp(temp, 0, 1),
		})
	}
	return setup, nil
}

// BuildCustomSetup resolves caller-selected agents. Unknown agents are
// skipped and multiplicity is clamped to [1, MaxMultiplicity]; more than
// one instance yields keys id_1..id_n.
func BuildCustomSetup(custom []CustomAgent) Setup {
	setup := make(Setup, 0, len(custom))
	for _, c := range custom {
		a, ok := Get(c.AgentID)
		if !ok {
			continue
		}
		provider := a.DefaultProvider
		if c.Provider != nil && *c.Provider != "" {
			provider = *c.Provider
		}
		temp := a.DefaultTemperature
		if c.Temperature != nil {
			temp = *c.Temperature
		}
		temp = core.Clamp(temp, 0, 1)

		n := c.Multiplicity
		if n < 1 {
			n = 1
		}
		if n > MaxMultiplicity {
			n = MaxMultiplicity
		}
		for i := 1; i <= n; i++ {
			key := a.ID
			if n > 1 {
				key = fmt.Sprintf("%s_%d", a.ID, i)
			}
			setup = setup.put(Assignment{Key: key, Agent: a, Provider: provider, Temperature: temp})
		}
	}
	return setup
}

// put replaces an existing key in place or appends a new one.
func (s Setup) put(a Assignment) Setup {
	for i := range s {
		if s[i].Key == a.Key {
			s[i] = a
			return s
		}
	}
	return append(s, a)
}
