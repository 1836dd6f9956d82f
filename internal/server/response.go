package server

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every failed request. Stage names the
// pipeline step that failed, when there is one.
type ErrorResponse struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

// JSON writes a JSON response
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		// The status line is already out; nothing useful to send on failure.
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Error writes an error response
func Error(w http.ResponseWriter, status int, message, stage string) {
	JSON(w, status, ErrorResponse{Error: message, Stage: stage})
}
