/*
response.go - JSON envelope and error-to-status mapping

ENVELOPE:
  { "success": bool, "data": ..., "message": "...", "error": "..." }
  data and message are omitted when empty; error is set only on failure.

STATUS MAPPING:
  ErrNotFound                                      404
  ErrUnauthorized                                  401
  ErrForbidden                                     403
  ErrValidation, ErrExpired, ErrInactive,
  ErrNoCashbackAvailable, ErrNoRecycleReward,
  ErrInsufficientBalance, ErrInvalidTransition     400
  ErrAlreadyClaimed, ErrAlreadyCompleted,
  ErrDuplicate, ErrConflict                        409
  anything else                                    500, generic message

  Client errors echo err.Error(); server errors never leak internals.
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ecoback/reward-engine/core"
)

type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	// Fields lists per-field problems of a validation error.
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func ok(w http.ResponseWriter, data any, message string) {
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: data, Message: message})
}

func created(w http.ResponseWriter, data any, message string) {
	writeJSON(w, http.StatusCreated, Envelope{Success: true, Data: data, Message: message})
}

func fail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Envelope{Success: false, Error: message})
}

var statusTable = []struct {
	target error
	status int
}{
	{core.ErrNotFound, http.StatusNotFound},
	{core.ErrUnauthorized, http.StatusUnauthorized},
	{core.ErrForbidden, http.StatusForbidden},
	{core.ErrAlreadyClaimed, http.StatusConflict},
	{core.ErrAlreadyCompleted, http.StatusConflict},
	{core.ErrDuplicate, http.StatusConflict},
	{core.ErrConflict, http.StatusConflict},
	{core.ErrValidation, http.StatusBadRequest},
	{core.ErrExpired, http.StatusBadRequest},
	{core.ErrInactive, http.StatusBadRequest},
	{core.ErrNoCashbackAvailable, http.StatusBadRequest},
	{core.ErrNoRecycleReward, http.StatusBadRequest},
	{core.ErrInsufficientBalance, http.StatusBadRequest},
	{core.ErrInvalidTransition, http.StatusBadRequest},
}

// StatusFor maps a service error to its HTTP status.
func StatusFor(err error) int {
	for _, e := range statusTable {
		if errors.Is(err, e.target) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// writeError renders err in the envelope. 5xx errors are logged with the
// request id and replaced by a generic message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("request_id", requestID(r)),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		fail(w, status, "internal server error")
		return
	}

	env := Envelope{Success: false, Error: err.Error()}
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		env.Fields = ve.Fields
	}
	writeJSON(w, status, env)
}
