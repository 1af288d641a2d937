package server

import "net/http"

// setupRoutes configures the node HTTP surface (spec §6).
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.ws.HandleWebSocket)

	// API routes - Profiles
	mux.HandleFunc("/api/profiles", s.handleProfilesRoute)  // GET (list), POST (create)
	mux.HandleFunc("/api/profiles/", s.handleProfileRoutes) // GET/PUT/DELETE /{id}

	// API routes - Sites
	mux.HandleFunc("/api/sites", s.handleSitesRoute)  // GET (list+stats), POST (create)
	mux.HandleFunc("/api/sites/", s.handleSiteRoutes) // GET/PUT/DELETE /{id}, POST /{id}/toggle

	// API routes - Automation
	mux.HandleFunc("/api/automation/start", s.handleAutomationStart)
	mux.HandleFunc("/api/automation/stop", s.handleAutomationStopAll)
	mux.HandleFunc("/api/automation/stop/", s.handleAutomationStopOne)

	// API routes - Status and logs
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/logs/recent", s.ws.GetRecentLogsHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/shutdown", s.ShutdownHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.handleNotFound)

	return mux
}

// handleProfilesRoute routes /api/profiles requests (list and create).
func (s *Server) handleProfilesRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r, s.listProfiles, s.createProfile)
}

// handleProfileRoutes routes /api/profiles/{id} requests.
func (s *Server) handleProfileRoutes(w http.ResponseWriter, r *http.Request) {
	RouteResourceItem(w, r, s.getProfile, s.updateProfile, s.deleteProfile)
}

// handleSitesRoute routes /api/sites requests (list and create).
func (s *Server) handleSitesRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r, s.listSites, s.createSite)
}

// handleSiteRoutes routes /api/sites/{id} and /api/sites/{id}/toggle requests.
func (s *Server) handleSiteRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		if RouteByPathSuffix(w, r, "/api/sites/", []PathSuffixRouter{{Suffix: "/toggle", Handler: s.toggleSite}}) {
			return
		}
	}
	RouteResourceItem(w, r, s.getSite, s.updateSite, s.deleteSite)
}
