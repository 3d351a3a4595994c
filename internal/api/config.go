package api

import (
	"net/http"

	"github.com/helix-collective/z88/internal/agents"
	"github.com/helix-collective/z88/internal/core"
	"github.com/helix-collective/z88/internal/service"
)

// AgentResponse is an agent as shown to clients. System prompts are
// not exposed.
type AgentResponse struct {
	ID                 string        `json:"id"`
	Name               string        `json:"name"`
	Emoji              string        `json:"emoji"`
	Role               string        `json:"role"`
	Description        string        `json:"description"`
	DefaultProvider    core.Provider `json:"default_provider"`
	DefaultTemperature float64       `json:"default_temperature"`
}

// ProviderStatus is one row of the provider probe.
type ProviderStatus struct {
	Provider  core.Provider `json:"provider"`
	Available bool          `json:"available"`
}

func (s *Server) handleListAgents(w http.ResponseWriter, _ *http.Request) {
	all := agents.All()
	out := make([]AgentResponse, 0, len(all))
	for _, a := range all {
		out = append(out, AgentResponse{
			ID:                 a.ID,
			Name:               a.Name,
			Emoji:              a.Emoji,
			Role:               a.Role,
			Description:        a.Description,
			DefaultProvider:    a.DefaultProvider,
			DefaultTemperature: a.DefaultTemperature,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleListPresets(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, nonNil(s.presets.Presets()))
}

// handleTestProviders probes every provider and reports which answered.
func (s *Server) handleTestProviders(w http.ResponseWriter, r *http.Request) {
	results := map[core.Provider]bool{}
	if s.prober != nil {
		results = s.prober.TestAll(r.Context())
	}
	out := make([]ProviderStatus, 0, len(core.AllProviders()))
	for _, p := range core.AllProviders() {
		out = append(out, ProviderStatus{Provider: p, Available: results[p]})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, service.PromptTemplates())
}
