// Package api provides the HTTP JSON API for the Z-88 story engine.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/helix-collective/z88/internal/agents"
	apimw "github.com/helix-collective/z88/internal/api/middleware"
	"github.com/helix-collective/z88/internal/core"
	"github.com/helix-collective/z88/internal/events"
	"github.com/helix-collective/z88/internal/logging"
	"github.com/helix-collective/z88/internal/service"
)

// Deps are the services the API exposes.
type Deps struct {
	Stories  *service.Stories
	Enhancer *service.Enhancer
	Store    core.StoryStore
	Presets  *agents.Registry
	Prober   core.ProviderTester
	Events   *events.EventBus
}

// Server provides the HTTP endpoints.
type Server struct {
	router         chi.Router
	stories        *service.Stories
	enhancer       *service.Enhancer
	store          core.StoryStore
	presets        *agents.Registry
	prober         core.ProviderTester
	eventBus       *events.EventBus
	logger         *logging.Logger
	corsOrigins    []string
	requestTimeout time.Duration
	heartbeat      time.Duration
	now            func() time.Time
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *logging.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithCORSOrigins sets the browser origins allowed to call the API.
func WithCORSOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// WithRequestTimeout bounds CRUD requests. Generation and the event
// stream are not bounded by it.
func WithRequestTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		s.requestTimeout = d
	}
}

// WithHeartbeat sets the SSE keepalive interval.
func WithHeartbeat(d time.Duration) ServerOption {
	return func(s *Server) {
		s.heartbeat = d
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ServerOption {
	return func(s *Server) {
		s.now = now
	}
}

// NewServer creates a new API server.
func NewServer(deps Deps, opts ...ServerOption) *Server {
	s := &Server{
		stories:        deps.Stories,
		enhancer:       deps.Enhancer,
		store:          deps.Store,
		presets:        deps.Presets,
		prober:         deps.Prober,
		eventBus:       deps.Events,
		logger:         logging.NewNop(),
		corsOrigins:    []string{"*"},
		requestTimeout: 60 * time.Second,
		heartbeat:      15 * time.Second,
		now:            time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}
	if s.presets == nil {
		s.presets = agents.NewRegistry()
	}

	s.router = s.setupRouter()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRouter configures Chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With", apimw.UserHeader},
		AllowCredentials: false,
		MaxAge:           300,
	})
	r.Use(corsHandler.Handler)
	r.Use(apimw.Identity)

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// long-running
		r.Group(func(r chi.Router) {
			r.Use(apimw.RequireIdentity)
			r.Post("/stories/generate", s.handleGenerate)
			r.Post("/stories/{storyID}/continue", s.handleContinue)
		})
		r.Get("/events", s.handleSSE)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.requestTimeout))

			r.Route("/config", func(r chi.Router) {
				r.Get("/agents", s.handleListAgents)
				r.Get("/presets", s.handleListPresets)
				r.Get("/providers/test", s.handleTestProviders)
				r.Get("/templates", s.handleListTemplates)
			})

			r.Route("/prompts", func(r chi.Router) {
				r.Post("/enhance", s.handleEnhancePrompt)
				r.Post("/template", s.handleApplyTemplate)
			})

			r.Group(func(r chi.Router) {
				r.Use(apimw.RequireIdentity)

				r.Route("/stories", func(r chi.Router) {
					r.Get("/", s.handleListStories)
					r.Get("/deleted", s.handleListDeleted)
					r.Get("/search", s.handleSearchStories)

					r.Route("/ritual/{ritualID}", func(r chi.Router) {
						r.Get("/", s.handleGetStoryByRitual)
						r.Get("/trajectory", s.handleGetTrajectory)
						r.Get("/agent-logs", s.handleGetAgentLogs)
					})

					r.Route("/{storyID}", func(r chi.Router) {
						r.Get("/", s.handleGetStory)
						r.Delete("/", s.handleDeleteStory)
						r.Post("/restore", s.handleRestoreStory)
						r.Delete("/purge", s.handlePurgeStory)
						r.Put("/favorite", s.handleSetFavorite)
						r.Put("/tags", s.handleUpdateTags)
						r.Put("/collection", s.handleMoveToCollection)
					})
				})

				r.Get("/tags", s.handleListTags)
				r.Get("/tags/{tag}/stories", s.handleStoriesByTag)

				r.Route("/collections", func(r chi.Router) {
					r.Get("/", s.handleListCollections)
					r.Post("/", s.handleCreateCollection)
					r.Route("/{collectionID}", func(r chi.Router) {
						r.Put("/", s.handleUpdateCollection)
						r.Delete("/", s.handleDeleteCollection)
						r.Get("/stories", s.handleCollectionStories)
					})
				})
			})
		})
	})

	return r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"bytes", ww.BytesWritten(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r.WithContext(logging.IntoContext(r.Context(),
			s.logger.With("request_id", middleware.GetReqID(r.Context())))))
	})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondError sends a JSON error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondErr maps err to a status and writes it. Internal errors are
// logged and their message is not echoed.
func (s *Server) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	if status, ok := httpStatusForDomainError(err); ok {
		var de *core.DomainError
		errors.As(err, &de)
		if status >= http.StatusInternalServerError {
			logging.FromContext(r.Context(), s.logger).Error("request failed", "path", r.URL.Path, "error", err)
		}
		respondError(w, status, de.Message)
		return
	}
	if errors.Is(err, context.Canceled) {
		respondError(w, statusClientClosedRequest, "request cancelled")
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		respondError(w, http.StatusGatewayTimeout, "request timed out")
		return
	}
	logging.FromContext(r.Context(), s.logger).Error("request failed", "path", r.URL.Path, "error", err)
	respondError(w, http.StatusInternalServerError, "internal error")
}

// statusClientClosedRequest is the nginx convention for abandoned requests.
const statusClientClosedRequest = 499

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// pathID parses an int64 URL parameter.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", name))
		return 0, false
	}
	return id, true
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   s.now().UTC().Format(time.RFC3339),
	})
}

// Timeouts bounds the HTTP server. Zero disables a limit. The event
// stream clears its own write deadline.
type Timeouts struct {
	Read     time.Duration
	Write    time.Duration
	Shutdown time.Duration
}

// ListenAndServe starts the HTTP server and shuts it down when ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string, t Timeouts) error {
	srv := s.httpServer(addr, t)
	shutdownTimeout := t.Shutdown

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("starting API server", "addr", addr, "write_timeout", t.Write)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) httpServer(addr string, t Timeouts) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       t.Read,
		WriteTimeout:      t.Write,
	}
}
