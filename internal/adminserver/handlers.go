package adminserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/formflow/automation/internal/common"
	"github.com/formflow/automation/internal/models"
)

var validate = validator.New()

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleHeartbeat registers or refreshes a client and reports whether its
// license key is accepted (spec.md §4.9 step 1 & 3).
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	client, err := s.deps.Clients.Get(r.Context(), req.MachineID)
	if err != nil {
		client = &models.Client{MachineID: req.MachineID, CreatedAt: now}
	}
	client.Hostname = req.Hostname
	client.LocalIP = req.LocalIP
	client.Platform = req.Platform
	client.Version = req.ClientVersion
	client.LicenseKey = req.LicenseKey
	client.LastSeenAt = now

	if err := s.deps.Clients.Upsert(r.Context(), client); err != nil {
		s.deps.Logger.Error().Err(err).Msg("upsert client failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"license_valid": licenseValid(req.LicenseKey),
	})
}

// licenseValid is intentionally simple: this repo has no real licensing
// backend, so any non-empty key is accepted. require_valid_license then
// governs whether an empty key degrades the node's scheduler.
func licenseValid(key string) bool {
	return key != ""
}

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	clients, err := s.deps.Clients.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	interval := time.Duration(s.deps.Config.Admin.HeartbeatIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	now := time.Now().UTC()

	type clientView struct {
		*models.Client
		IsOnline bool `json:"is_online"`
	}
	views := make([]clientView, 0, len(clients))
	for _, c := range clients {
		views = append(views, clientView{Client: c, IsOnline: c.IsOnline(now, interval)})
	}
	writeJSON(w, http.StatusOK, views)
}

type sendCommandRequest struct {
	ClientID string                 `json:"client_id" validate:"required"`
	Kind     models.CommandKind     `json:"kind" validate:"required"`
	Params   map[string]interface{} `json:"params,omitempty"`
}

func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req sendCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cmd := &models.Command{
		ID:        common.NewCommandID(),
		ClientID:  req.ClientID,
		Kind:      req.Kind,
		Params:    req.Params,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.deps.Commands.Enqueue(r.Context(), cmd); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, cmd)
}

// handlePendingCommands serves the per-machine pending-command pull the
// node's admin callback loop polls (spec.md §4.9 step 2). Not itself in
// the §6 admin-UI endpoint table, which lists only the operator-facing
// surface; this is the node-facing counterpart that makes step 2 work.
func (s *Server) handlePendingCommands(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	machineID := r.URL.Query().Get("machine_id")
	if machineID == "" {
		http.Error(w, "machine_id query parameter is required", http.StatusBadRequest)
		return
	}
	cmds, err := s.deps.Commands.ListPending(r.Context(), machineID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"commands": cmds})
}

func (s *Server) handleCommandResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var result models.CommandResult
	if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if result.ReportedAt.IsZero() {
		result.ReportedAt = time.Now().UTC()
	}

	if err := s.deps.Results.Save(r.Context(), &result); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	// Acknowledge dispatch by removing the command from the pending queue
	// (spec.md §8 P5: deletion on ack is what makes ListPending reflect
	// at-most-once delivery).
	if err := s.deps.Commands.Delete(r.Context(), result.CommandID); err != nil {
		s.deps.Logger.Warn().Err(err).Str("command_id", result.CommandID).Msg("delete acknowledged command failed")
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleListCommandResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	results, err := s.deps.Results.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, results)
}
