package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/mistakeknot/concord/internal/core"
	"github.com/mistakeknot/concord/internal/storage/sqlite"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Success *bool       `json:"success,omitempty"`
	Error   errorBody   `json:"error"`
	HeldBy  *lockHolder `json:"heldBy,omitempty"`
}

type lockHolder struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Since  string `json:"since"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a store error onto the wire contract. Raw store errors
// never reach the caller; anything unclassified becomes a logged 500.
func writeError(w http.ResponseWriter, err error) {
	var notFound *core.NotFoundError
	if errors.As(err, &notFound) {
		writeJSON(w, http.StatusNotFound, errorEnvelope{
			Error: errorBody{Code: notFound.Code, Message: notFound.Message},
		})
		return
	}
	if errors.Is(err, core.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorEnvelope{
			Error: errorBody{Code: "NOT_FOUND", Message: "not found"},
		})
		return
	}

	var conflict *core.ConflictError
	if errors.As(err, &conflict) {
		writeJSON(w, http.StatusConflict, errorEnvelope{
			Error: errorBody{Code: conflict.Code, Message: conflict.Message},
		})
		return
	}

	var held *core.LockHeldError
	if errors.As(err, &held) {
		status := http.StatusConflict
		if held.Code == core.CodeNotLockHolder {
			status = http.StatusForbidden
		}
		success := false
		writeJSON(w, status, errorEnvelope{
			Success: &success,
			Error:   errorBody{Code: held.Code, Message: "node is locked by another user"},
			HeldBy: &lockHolder{
				UserID: held.Lock.HolderID,
				Email:  held.Lock.HolderDisplay,
				Since:  held.Lock.AcquiredAt.Format(timeFormat),
			},
		})
		return
	}

	if errors.Is(err, sqlite.ErrCircuitOpen) {
		writeJSON(w, http.StatusServiceUnavailable, errorEnvelope{
			Error: errorBody{Code: core.CodeServiceUnavailable, Message: "store unavailable"},
		})
		return
	}

	log.Printf("http: internal error: %v", err)
	writeJSON(w, http.StatusInternalServerError, errorEnvelope{
		Error: errorBody{Code: core.CodeInternal, Message: "internal error"},
	})
}

func writeBadRequest(w http.ResponseWriter, code, message string) {
	writeJSON(w, http.StatusBadRequest, errorEnvelope{
		Error: errorBody{Code: code, Message: message},
	})
}
