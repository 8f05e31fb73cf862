package server

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthStatus is the payload of the /healthz probe. The solver's state is
// sampled at request time through the configured HealthFunc.
type HealthStatus struct {
	// Status is "ok" while the process is serving.
	Status string `json:"status"`
	// State is the solver state ("iterating", "converged", ...).
	State string `json:"state,omitempty"`
	// Iterations is the number of completed iterations so far.
	Iterations int `json:"iterations"`
}

// HealthFunc samples the current run for the health probe.
type HealthFunc func() HealthStatus

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	status := s.health()
	response := map[string]any{
		"status":     status.Status,
		"state":      status.State,
		"iterations": status.Iterations,
		"timestamp":  time.Now().Unix(),
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Printf("Error encoding JSON response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSON(w, statusCode, map[string]any{
		"error":   http.StatusText(statusCode),
		"message": message,
	})
}
