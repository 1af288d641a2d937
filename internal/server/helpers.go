package server

import (
	"encoding/json"
	"net/http"
	"strings"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.deps.Logger.Error().Err(err).Msg("request failed")
	http.Error(w, err.Error(), status)
}

// pathID extracts the id (and drops any trailing /subpath) from a request
// path given its known resource prefix, e.g. pathID("/api/sites/abc/toggle",
// "/api/sites/") -> "abc".
func pathID(path, prefix string) string {
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	rest := path[len(prefix):]
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		rest = rest[:idx]
	}
	return rest
}
