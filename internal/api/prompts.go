package api

import (
	"net/http"

	"github.com/helix-collective/z88/internal/service"
)

// EnhanceRequest is the body for prompt enhancement.
type EnhanceRequest struct {
	Prompt string `json:"prompt"`
}

// TemplateRequest fills a prompt template.
type TemplateRequest struct {
	Template  string            `json:"template"`
	Variables map[string]string `json:"variables"`
}

func (s *Server) handleEnhancePrompt(w http.ResponseWriter, r *http.Request) {
	if s.enhancer == nil {
		respondError(w, http.StatusServiceUnavailable, "prompt enhancement not configured")
		return
	}
	var req EnhanceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.enhancer.Enhance(r.Context(), req.Prompt)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleApplyTemplate(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	prompt, err := service.ApplyTemplate(req.Template, req.Variables)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"prompt": prompt})
}
