package server

import (
	"net/http"
)

// handleListCircuits handles GET /v1/circuits.
func (s *Server) handleListCircuits(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"circuits": s.breakers.Snapshot()})
}

// handleResetCircuit handles POST /v1/circuits/{name}/reset.
func (s *Server) handleResetCircuit(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !s.breakers.Reset(name) {
		writeError(w, http.StatusNotFound, "unknown circuit")
		return
	}
	s.logger.Info("circuit reset", "circuit", name)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset", "circuit": name})
}
