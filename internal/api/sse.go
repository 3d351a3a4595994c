package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	apimw "github.com/helix-collective/z88/internal/api/middleware"
	"github.com/helix-collective/z88/internal/events"
)

// handleSSE streams ritual events of the caller. EventSource cannot set
// headers, so the identity may also come from ?user_id=. ?ritual_id=
// narrows the stream to one ritual.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	owner := apimw.UserID(r.Context())
	if owner == "" {
		owner = strings.TrimSpace(r.URL.Query().Get("user_id"))
	}
	if owner == "" {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	ritualID := r.URL.Query().Get("ritual_id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	if s.eventBus == nil {
		respondError(w, http.StatusServiceUnavailable, "event bus not available")
		return
	}

	// Streams outlive server.write_timeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.logger.Warn("clearing SSE write deadline", "error", err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ctx := r.Context()
	eventCh := s.eventBus.Watch(events.Filter{Owner: owner, Ritual: ritualID})
	defer s.eventBus.Unsubscribe(eventCh)

	connID := uuid.NewString()
	log := s.logger.With("remote_addr", r.RemoteAddr, "owner", owner, "conn_id", connID)
	log.Info("SSE client connected", "ritual_id", ritualID)

	s.sendSSEEvent(w, flusher, "connected", map[string]string{"status": "connected", "conn_id": connID})

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("SSE client disconnected")
			return

		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()

		case event, ok := <-eventCh:
			if !ok {
				log.Info("event bus closed, ending SSE stream")
				return
			}
			s.sendSSEEvent(w, flusher, event.EventType(), event)
		}
	}
}

// sendSSEEvent writes an event to the SSE stream.
func (s *Server) sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()
}
