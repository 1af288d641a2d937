package adminserver

import "net/http"

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/heartbeat", s.handleHeartbeat)
	mux.HandleFunc("/api/clients", s.handleListClients)
	mux.HandleFunc("/api/send_command", s.handleSendCommand)
	mux.HandleFunc("/api/commands", s.handlePendingCommands)
	mux.HandleFunc("/api/command_result", s.handleCommandResult)
	mux.HandleFunc("/api/command_results", s.handleListCommandResults)

	return mux
}
