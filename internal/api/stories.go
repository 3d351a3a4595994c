package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/helix-collective/z88/internal/agents"
	apimw "github.com/helix-collective/z88/internal/api/middleware"
	"github.com/helix-collective/z88/internal/core"
	"github.com/helix-collective/z88/internal/service"
)

// GenerateRequest is the request body for generating a story.
type GenerateRequest struct {
	Prompt       string               `json:"prompt"`
	Preset       string               `json:"preset,omitempty"`
	CustomAgents []agents.CustomAgent `json:"custom_agents,omitempty"`
}

// GenerateResponse flattens the ritual result and adds the stored story.
type GenerateResponse struct {
	*service.RitualResult
	Story *core.Story `json:"story"`
}

// ContinueRequest is the request body for writing the next chapter.
type ContinueRequest struct {
	Direction string `json:"direction,omitempty"`
}

// ContinueResponse adds the continuation plan to a generate response.
type ContinueResponse struct {
	GenerateResponse
	Plan service.ContinuationPlan `json:"plan"`
}

// FavoriteRequest toggles the favorite flag.
type FavoriteRequest struct {
	Favorite bool `json:"favorite"`
}

// TagsRequest replaces a story's tags.
type TagsRequest struct {
	Tags []string `json:"tags"`
}

// MoveRequest files a story into a collection. A null collection_id
// detaches it.
type MoveRequest struct {
	CollectionID *int64 `json:"collection_id"`
}

// handleGenerate runs a ritual for the caller and stores the story.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := s.stories.Generate(r.Context(), apimw.UserID(r.Context()), req.Prompt, service.RitualOptions{
		Preset:       req.Preset,
		CustomAgents: req.CustomAgents,
	})
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, GenerateResponse{RitualResult: res.Ritual, Story: res.Story})
}

// handleContinue writes the next chapter of a story's series.
func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "storyID")
	if !ok {
		return
	}
	var req ContinueRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := s.stories.Continue(r.Context(), apimw.UserID(r.Context()), id, req.Direction)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ContinueResponse{
		GenerateResponse: GenerateResponse{RitualResult: res.Ritual, Story: res.Story},
		Plan:             res.Plan,
	})
}

// handleListStories lists the caller's live stories.
func (s *Server) handleListStories(w http.ResponseWriter, r *http.Request) {
	filter := core.StoryFilter{}
	q := r.URL.Query()

	if raw := strings.TrimSpace(q.Get("since")); raw != "" {
		since, err := parseSince(raw, s.now())
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Since = &since
	}
	if raw := q.Get("favorites"); raw != "" {
		fav, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid favorites flag")
			return
		}
		filter.FavoritesOnly = fav
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	stories, err := s.store.ListStories(r.Context(), apimw.UserID(r.Context()), filter)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, nonNil(stories))
}

var sinceParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseSince accepts RFC 3339 timestamps, plain dates and English
// expressions such as "3 days ago" or "last monday".
func parseSince(raw string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	res, err := sinceParser.Parse(raw, now)
	if err != nil {
		return time.Time{}, core.ErrValidation("INVALID_SINCE", "invalid since: "+err.Error())
	}
	if res == nil {
		return time.Time{}, core.ErrValidation("INVALID_SINCE", "unrecognized since: "+raw)
	}
	return res.Time, nil
}

// ownedStory loads a story and hides it from other owners.
func (s *Server) ownedStory(ctx context.Context, id int64) (*core.Story, error) {
	story, err := s.store.GetStory(ctx, id)
	if err != nil {
		return nil, err
	}
	if story.OwnerID != apimw.UserID(ctx) {
		return nil, core.ErrStoryNotFound(strconv.FormatInt(id, 10))
	}
	return story, nil
}

// storyFromPath resolves {storyID} to a story of the caller. When live is
// set, trashed stories are reported as not found.
func (s *Server) storyFromPath(w http.ResponseWriter, r *http.Request, live bool) (*core.Story, bool) {
	id, ok := pathID(w, r, "storyID")
	if !ok {
		return nil, false
	}
	story, err := s.ownedStory(r.Context(), id)
	if err == nil && live && story.Deleted() {
		err = core.ErrStoryNotFound(strconv.FormatInt(id, 10))
	}
	if err != nil {
		s.respondErr(w, r, err)
		return nil, false
	}
	return story, true
}

// handleGetStory returns a single live story.
func (s *Server) handleGetStory(w http.ResponseWriter, r *http.Request) {
	story, ok := s.storyFromPath(w, r, true)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, story)
}

// storyFromRitual resolves {ritualID} to a story of the caller.
func (s *Server) storyFromRitual(w http.ResponseWriter, r *http.Request) (*core.Story, bool) {
	ritualID := chi.URLParam(r, "ritualID")
	story, err := s.store.GetStoryByRitualID(r.Context(), ritualID)
	if err == nil && story.OwnerID != apimw.UserID(r.Context()) {
		err = core.ErrStoryNotFound(ritualID)
	}
	if err != nil {
		s.respondErr(w, r, err)
		return nil, false
	}
	return story, true
}

// handleGetStoryByRitual returns the story produced by a ritual.
func (s *Server) handleGetStoryByRitual(w http.ResponseWriter, r *http.Request) {
	story, ok := s.storyFromRitual(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, story)
}

// handleGetTrajectory returns a ritual's UCF trajectory.
func (s *Server) handleGetTrajectory(w http.ResponseWriter, r *http.Request) {
	story, ok := s.storyFromRitual(w, r)
	if !ok {
		return
	}
	points, err := s.store.Trajectory(r.Context(), story.RitualID)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, nonNil(points))
}

// handleGetAgentLogs returns a ritual's agent transcripts.
func (s *Server) handleGetAgentLogs(w http.ResponseWriter, r *http.Request) {
	story, ok := s.storyFromRitual(w, r)
	if !ok {
		return
	}
	logs, err := s.store.AgentLogs(r.Context(), story.RitualID)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, nonNil(logs))
}

// handleDeleteStory moves a story to the trash.
func (s *Server) handleDeleteStory(w http.ResponseWriter, r *http.Request) {
	story, ok := s.storyFromPath(w, r, true)
	if !ok {
		return
	}
	if err := s.store.SoftDelete(r.Context(), story.ID); err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleRestoreStory takes a story out of the trash.
func (s *Server) handleRestoreStory(w http.ResponseWriter, r *http.Request) {
	story, ok := s.storyFromPath(w, r, false)
	if !ok {
		return
	}
	if err := s.store.Restore(r.Context(), story.ID); err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handlePurgeStory deletes a story and its ritual artifacts for good.
func (s *Server) handlePurgeStory(w http.ResponseWriter, r *http.Request) {
	story, ok := s.storyFromPath(w, r, false)
	if !ok {
		return
	}
	if err := s.store.Purge(r.Context(), story.ID); err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleListDeleted lists the caller's trash.
func (s *Server) handleListDeleted(w http.ResponseWriter, r *http.Request) {
	stories, err := s.store.ListDeleted(r.Context(), apimw.UserID(r.Context()))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, nonNil(stories))
}

// handleSetFavorite sets or clears the favorite flag.
func (s *Server) handleSetFavorite(w http.ResponseWriter, r *http.Request) {
	story, ok := s.storyFromPath(w, r, true)
	if !ok {
		return
	}
	var req FavoriteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.store.SetFavorite(r.Context(), story.ID, req.Favorite); err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"favorite": req.Favorite})
}

// handleUpdateTags replaces a story's tags and returns the normalized set.
func (s *Server) handleUpdateTags(w http.ResponseWriter, r *http.Request) {
	story, ok := s.storyFromPath(w, r, true)
	if !ok {
		return
	}
	var req TagsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tags, err := s.store.UpdateTags(r.Context(), story.ID, req.Tags)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string][]string{"tags": nonNil(tags)})
}

// handleMoveToCollection files a story into one of the caller's
// collections, or detaches it.
func (s *Server) handleMoveToCollection(w http.ResponseWriter, r *http.Request) {
	story, ok := s.storyFromPath(w, r, true)
	if !ok {
		return
	}
	var req MoveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.CollectionID != nil {
		if _, err := s.ownedCollection(r.Context(), *req.CollectionID); err != nil {
			s.respondErr(w, r, err)
			return
		}
	}
	if err := s.store.MoveToCollection(r.Context(), story.ID, req.CollectionID); err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]*int64{"collection_id": req.CollectionID})
}

// handleSearchStories ranks the caller's stories against ?q=.
func (s *Server) handleSearchStories(w http.ResponseWriter, r *http.Request) {
	stories, err := s.store.SearchStories(r.Context(), apimw.UserID(r.Context()), r.URL.Query().Get("q"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, nonNil(stories))
}

// handleListTags lists every tag the caller uses.
func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.store.AllTags(r.Context(), apimw.UserID(r.Context()))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, nonNil(tags))
}

// handleStoriesByTag lists the caller's stories carrying a tag.
func (s *Server) handleStoriesByTag(w http.ResponseWriter, r *http.Request) {
	stories, err := s.store.StoriesByTag(r.Context(), apimw.UserID(r.Context()), chi.URLParam(r, "tag"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, nonNil(stories))
}

// nonNil keeps empty listings encoded as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
