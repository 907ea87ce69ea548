package server

import (
	"math"
	"net/http"
	"strconv"

	"github.com/groblegark/payd/internal/command"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *Server) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/accounts", s.handleOpenAccount)
	mux.HandleFunc("GET /v1/accounts/{id}", s.handleGetAccount)
	mux.HandleFunc("GET /v1/accounts/{id}/events", s.handleGetEvents)
	mux.HandleFunc("POST /v1/accounts/{id}/activate", s.handleActivate)
	mux.HandleFunc("POST /v1/accounts/{id}/suspend", s.handleSuspend)
	mux.HandleFunc("POST /v1/accounts/{id}/payment-methods", s.handleUpdatePaymentMethods)
	mux.HandleFunc("GET /v1/circuits", s.handleListCircuits)
	mux.HandleFunc("POST /v1/circuits/{name}/reset", s.handleResetCircuit)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	return AuthMiddleware(authToken, mux)
}

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeResult maps a command result to an HTTP response. Failure codes map
// to statuses; concurrency conflicts carry the current version in the body
// and open circuits set Retry-After.
func writeResult(w http.ResponseWriter, res command.Result) {
	if res.Success {
		writeJSON(w, http.StatusOK, res)
		return
	}

	status := http.StatusInternalServerError
	switch res.Error {
	case command.CodeValidation:
		status = http.StatusBadRequest
	case command.CodeNotFound:
		status = http.StatusNotFound
	case command.CodeInvalidState, command.CodeConcurrency:
		status = http.StatusConflict
	case command.CodeRejected:
		status = http.StatusUnprocessableEntity
	case command.CodeCircuitOpen:
		status = http.StatusServiceUnavailable
		if res.RetryAfterSeconds != nil {
			secs := int(math.Ceil(*res.RetryAfterSeconds))
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
	case command.CodeTimeout:
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, res)
}
