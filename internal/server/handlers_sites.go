package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/formflow/automation/internal/models"
)

type siteCreateRequest struct {
	URL  string `json:"url" validate:"required,url"`
	Name string `json:"name"`
}

type sitePatchRequest struct {
	URL     *string `json:"url,omitempty"`
	Name    *string `json:"name,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
}

// sitesWithStats is the list response shape (spec §6 "list + aggregate
// stats"): the sites themselves plus a small rollup the UI renders without
// recomputing client-side.
type sitesWithStats struct {
	Sites   []*models.Site `json:"sites"`
	Total   int            `json:"total"`
	Enabled int            `json:"enabled"`
	Success int            `json:"success"`
	Failed  int            `json:"failed"`
}

func (s *Server) listSites(w http.ResponseWriter, r *http.Request) {
	sites, err := s.deps.Sites.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	stats := sitesWithStats{Sites: sites, Total: len(sites)}
	for _, site := range sites {
		if site.Enabled {
			stats.Enabled++
		}
		switch site.LastStatus {
		case models.SiteStatusSuccess:
			stats.Success++
		case models.SiteStatusFailed:
			stats.Failed++
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) getSite(w http.ResponseWriter, r *http.Request) {
	id := pathID(r.URL.Path, "/api/sites/")
	if id == "" {
		http.Error(w, "site id required", http.StatusBadRequest)
		return
	}
	site, err := s.deps.Sites.Get(r.Context(), id)
	if err != nil {
		s.writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, site)
}

func (s *Server) createSite(w http.ResponseWriter, r *http.Request) {
	var req siteCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := profileValidate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	site := &models.Site{
		ID:         uuid.NewString(),
		URL:        req.URL,
		Name:       req.Name,
		Enabled:    true,
		LastStatus: models.SiteStatusPending,
		CreatedAt:  time.Now(),
	}
	if err := s.deps.Sites.Create(r.Context(), site); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, site)
}

func (s *Server) updateSite(w http.ResponseWriter, r *http.Request) {
	id := pathID(r.URL.Path, "/api/sites/")
	if id == "" {
		http.Error(w, "site id required", http.StatusBadRequest)
		return
	}

	site, err := s.deps.Sites.Get(r.Context(), id)
	if err != nil {
		s.writeRepoError(w, err)
		return
	}

	var req sitePatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.URL != nil {
		site.URL = *req.URL
	}
	if req.Name != nil {
		site.Name = *req.Name
	}
	if req.Enabled != nil {
		site.Enabled = *req.Enabled
	}

	if err := s.deps.Sites.Update(r.Context(), site); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, site)
}

func (s *Server) toggleSite(w http.ResponseWriter, r *http.Request) {
	id := pathID(r.URL.Path, "/api/sites/")
	if id == "" {
		http.Error(w, "site id required", http.StatusBadRequest)
		return
	}

	site, err := s.deps.Sites.Get(r.Context(), id)
	if err != nil {
		s.writeRepoError(w, err)
		return
	}
	site.Enabled = !site.Enabled
	if err := s.deps.Sites.Update(r.Context(), site); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, site)
}

func (s *Server) deleteSite(w http.ResponseWriter, r *http.Request) {
	id := pathID(r.URL.Path, "/api/sites/")
	if id == "" {
		http.Error(w, "site id required", http.StatusBadRequest)
		return
	}
	if err := s.deps.Sites.Delete(r.Context(), id); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
