package api

import (
	"context"
	"net/http"
	"strconv"

	apimw "github.com/helix-collective/z88/internal/api/middleware"
	"github.com/helix-collective/z88/internal/core"
)

// CollectionRequest is the body for creating or renaming a collection.
type CollectionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) ownedCollection(ctx context.Context, id int64) (*core.Collection, error) {
	c, err := s.store.GetCollection(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.OwnerID != apimw.UserID(ctx) {
		return nil, core.ErrCollectionNotFound(strconv.FormatInt(id, 10))
	}
	return c, nil
}

func (s *Server) collectionFromPath(w http.ResponseWriter, r *http.Request) (*core.Collection, bool) {
	id, ok := pathID(w, r, "collectionID")
	if !ok {
		return nil, false
	}
	c, err := s.ownedCollection(r.Context(), id)
	if err != nil {
		s.respondErr(w, r, err)
		return nil, false
	}
	return c, true
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	cols, err := s.store.ListCollections(r.Context(), apimw.UserID(r.Context()))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, nonNil(cols))
}

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var req CollectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c := &core.Collection{
		OwnerID:     apimw.UserID(r.Context()),
		Name:        req.Name,
		Description: req.Description,
	}
	if err := s.store.CreateCollection(r.Context(), c); err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

func (s *Server) handleUpdateCollection(w http.ResponseWriter, r *http.Request) {
	c, ok := s.collectionFromPath(w, r)
	if !ok {
		return
	}
	var req CollectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c.Name = req.Name
	c.Description = req.Description
	if err := s.store.UpdateCollection(r.Context(), c); err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// handleDeleteCollection removes a collection. Its stories stay, detached.
func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	c, ok := s.collectionFromPath(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteCollection(r.Context(), c.ID); err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleCollectionStories(w http.ResponseWriter, r *http.Request) {
	c, ok := s.collectionFromPath(w, r)
	if !ok {
		return
	}
	stories, err := s.store.StoriesInCollection(r.Context(), c.ID)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, nonNil(stories))
}
