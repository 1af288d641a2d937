package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/formflow/automation/internal/common"
	"github.com/formflow/automation/internal/scheduler"
)

// automationStartRequest is the wire shape for POST /api/automation/start
// (spec §6): exactly one of URL/SiteID must be supplied.
type automationStartRequest struct {
	ProfileID string `json:"profile_id" validate:"required"`
	URL       string `json:"url,omitempty"`
	SiteID    string `json:"site_id,omitempty"`
	Submit    bool   `json:"submit,omitempty"`
	Headless  bool   `json:"headless,omitempty"`
}

func (s *Server) handleAutomationStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req automationStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := profileValidate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	targetURL := req.URL
	if req.SiteID != "" {
		site, err := s.deps.Sites.Get(r.Context(), req.SiteID)
		if err != nil {
			s.writeRepoError(w, err)
			return
		}
		targetURL = site.URL
	}
	if targetURL == "" {
		http.Error(w, "one of url or site_id is required", http.StatusBadRequest)
		return
	}

	job, err := s.deps.Scheduler.StartJob(r.Context(), req.ProfileID, targetURL, req.SiteID, req.Submit, req.Headless)
	if err != nil {
		s.writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": job.ID})
}

func (s *Server) handleAutomationStopAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	n := s.deps.Scheduler.StopAll()
	writeJSON(w, http.StatusOK, map[string]int{"stopped": n})
}

func (s *Server) handleAutomationStopOne(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	jobID := pathID(r.URL.Path, "/api/automation/stop/")
	if jobID == "" {
		http.Error(w, "job id required", http.StatusBadRequest)
		return
	}
	if err := s.deps.Scheduler.StopJob(jobID); err != nil {
		s.writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// statusResponse is the GET /api/status shape (spec §6: "scheduler +
// version + update flags").
type statusResponse struct {
	Scheduler scheduler.Status `json:"scheduler"`
	Version   string           `json:"version"`
	Build     string           `json:"build"`
	GitCommit string           `json:"git_commit"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Scheduler: s.deps.Scheduler.Status(),
		Version:   common.GetVersion(),
		Build:     common.GetBuild(),
		GitCommit: common.GetGitCommit(),
	})
}

func (s *Server) writeSchedulerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduler.ErrCapacityExhausted):
		http.Error(w, "capacity_exhausted", http.StatusServiceUnavailable)
	case errors.Is(err, scheduler.ErrLicenseInvalid):
		http.Error(w, "license_invalid", http.StatusForbidden)
	case errors.Is(err, scheduler.ErrJobNotFound):
		http.Error(w, "job not found", http.StatusNotFound)
	default:
		s.writeError(w, http.StatusInternalServerError, err)
	}
}
