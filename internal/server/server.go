// Package server exposes the command pipeline and read models over HTTP.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/groblegark/payd/internal/breaker"
	"github.com/groblegark/payd/internal/command"
	"github.com/groblegark/payd/internal/store"
)

// CommandService is the write-side surface the server fronts.
type CommandService interface {
	Open(ctx context.Context, cmd command.OpenCommand) command.Result
	Activate(ctx context.Context, cmd command.ActivateCommand) command.Result
	Suspend(ctx context.Context, cmd command.SuspendCommand) command.Result
	UpdatePaymentMethods(ctx context.Context, cmd command.UpdatePaymentMethodsCommand) command.Result
}

// Server handles HTTP requests for account commands, reads, and circuit
// administration.
type Server struct {
	commands CommandService
	store    store.Store
	breakers *breaker.Registry
	logger   *slog.Logger
}

// New returns a Server backed by the given command service, store, and
// circuit registry.
func New(commands CommandService, s store.Store, reg *breaker.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		commands: commands,
		store:    s,
		breakers: reg,
		logger:   logger,
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
