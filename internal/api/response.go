package api

import (
	"encoding/json"
	"net/http"
)

// writeJSON encodes v as JSON with the given status code. Admin responses
// describe live scheduler state and must not be cached.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

type errorResponse struct {
	Error  string `json:"error"`
	Status string `json:"status"`
}

// writeError replies with {"error": msg, "status": "<reason phrase>"}.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Status: http.StatusText(status)})
}
