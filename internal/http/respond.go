package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/andrianfaa/Studi-Bareng/pkg/apperr"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// envelope is the body shape of every JSON response.
type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeSuccess wraps data in a success envelope.
func writeSuccess(w http.ResponseWriter, status int, msg string, data any) {
	writeJSON(w, status, envelope{Status: statusSuccess, Message: msg, Data: data})
}

// writeError sends an error message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Status: statusError, Message: msg})
}

// writeAppError maps a service error to its status and client-safe message.
func writeAppError(w http.ResponseWriter, err error) {
	writeError(w, apperr.Status(err), apperr.PublicMessage(err))
}
