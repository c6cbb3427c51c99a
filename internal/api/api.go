// Package api provides the JSON response envelope shared by every HTTP
// endpoint of the service.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// CodeSuccess is the code of every successful response.
const CodeSuccess = "SUCCESS"

// Success sends a successful response carrying data.
func Success(w http.ResponseWriter, status int, data any) {
	write(w, status, Envelope{Success: true, Code: CodeSuccess, Message: "ok", Data: data})
}

// Error sends a failed response with a machine-readable code.
func Error(w http.ResponseWriter, status int, code, message string) {
	write(w, status, Envelope{Success: false, Code: code, Message: message})
}

func write(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("encode response", "error", err)
	}
}
