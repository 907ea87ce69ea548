package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/groblegark/payd/internal/command"
	"github.com/groblegark/payd/internal/idgen"
	"github.com/groblegark/payd/internal/model"
	"github.com/groblegark/payd/internal/store"
)

type openAccountInput struct {
	AccountID string `json:"account_id"`
	UserID    string `json:"user_id"`
	RequestID string `json:"request_id"`
}

type actionInput struct {
	Reason          string `json:"reason"`
	AdminID         int64  `json:"admin_id"`
	RequestID       string `json:"request_id"`
	ExpectedVersion *int64 `json:"expected_version"`
}

type paymentMethodsInput struct {
	Methods         []model.PaymentMethod `json:"methods"`
	DefaultMethod   string                `json:"default_method"`
	RequestID       string                `json:"request_id"`
	ExpectedVersion *int64                `json:"expected_version"`
}

// requestID returns the client-supplied id, minting one when absent so
// every command is idempotent under retries of the same response.
func requestID(given string) (string, error) {
	if given != "" {
		return given, nil
	}
	return idgen.NewRequestID()
}

// handleOpenAccount handles POST /v1/accounts.
func (s *Server) handleOpenAccount(w http.ResponseWriter, r *http.Request) {
	var in openAccountInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if in.AccountID == "" {
		id, err := idgen.NewAccountID()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "id generation failed")
			return
		}
		in.AccountID = id
	}
	reqID, err := requestID(in.RequestID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "id generation failed")
		return
	}

	res := s.commands.Open(r.Context(), command.OpenCommand{
		AccountID: in.AccountID,
		UserID:    in.UserID,
		RequestID: reqID,
	})
	writeResult(w, res)
}

// handleActivate handles POST /v1/accounts/{id}/activate.
func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	var in actionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	reqID, err := requestID(in.RequestID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "id generation failed")
		return
	}

	res := s.commands.Activate(r.Context(), command.ActivateCommand{
		AccountID:       r.PathValue("id"),
		Reason:          in.Reason,
		AdminID:         in.AdminID,
		RequestID:       reqID,
		ExpectedVersion: in.ExpectedVersion,
	})
	writeResult(w, res)
}

// handleSuspend handles POST /v1/accounts/{id}/suspend.
func (s *Server) handleSuspend(w http.ResponseWriter, r *http.Request) {
	var in actionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	reqID, err := requestID(in.RequestID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "id generation failed")
		return
	}

	res := s.commands.Suspend(r.Context(), command.SuspendCommand{
		AccountID:       r.PathValue("id"),
		Reason:          in.Reason,
		AdminID:         in.AdminID,
		RequestID:       reqID,
		ExpectedVersion: in.ExpectedVersion,
	})
	writeResult(w, res)
}

// handleUpdatePaymentMethods handles POST /v1/accounts/{id}/payment-methods.
func (s *Server) handleUpdatePaymentMethods(w http.ResponseWriter, r *http.Request) {
	var in paymentMethodsInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	reqID, err := requestID(in.RequestID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "id generation failed")
		return
	}

	res := s.commands.UpdatePaymentMethods(r.Context(), command.UpdatePaymentMethodsCommand{
		AccountID:       r.PathValue("id"),
		Methods:         in.Methods,
		DefaultMethod:   in.DefaultMethod,
		RequestID:       reqID,
		ExpectedVersion: in.ExpectedVersion,
	})
	writeResult(w, res)
}

// handleGetAccount handles GET /v1/accounts/{id}.
func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetAccount(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	if err != nil {
		s.logger.Error("get account failed", "id", r.PathValue("id"), "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleGetEvents handles GET /v1/accounts/{id}/events. Optional from and
// to query parameters bound the version range.
func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	q := r.URL.Query()

	from := int64(1)
	if v := q.Get("from"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid from version")
			return
		}
		from = n
	}
	var to int64
	if v := q.Get("to"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid to version")
			return
		}
		to = n
	}

	events, err := s.store.LoadEventStream(r.Context(), id, from, to)
	if errors.Is(err, store.ErrStreamNotFound) {
		writeError(w, http.StatusNotFound, "event stream not found")
		return
	}
	if err != nil {
		s.logger.Error("load event stream failed", "id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"aggregate_id": id,
		"events":       events,
	})
}
