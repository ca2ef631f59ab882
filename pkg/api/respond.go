// Package api holds the HTTP surface shared by all gateway endpoints:
// JSON responders, the policy error body, and transport middleware.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// PolicyProblem is the error body for blocked requests: the failure code
// from the enforcement taxonomy plus enough context to correlate the
// attempt.
type PolicyProblem struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	ActionID string `json:"actionId,omitempty"`
	RouteID  string `json:"routeId,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}

// WriteProblem writes a PolicyProblem error body.
func WriteProblem(w http.ResponseWriter, status int, code, message, actionID, routeID string) {
	WriteJSON(w, status, PolicyProblem{
		Code:     code,
		Message:  message,
		ActionID: actionID,
		RouteID:  routeID,
	})
}

// WriteInternal writes a 500 body. The error is logged but never exposed.
func WriteInternal(w http.ResponseWriter, err error) {
	slog.Error("internal server error", "error", err)
	WriteProblem(w, http.StatusInternalServerError, "INTERNAL", "An unexpected error occurred.", "", "")
}

// WriteNotFound writes a 404 body.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteProblem(w, http.StatusNotFound, "NOT_FOUND", message, "", "")
}

// WriteMethodNotAllowed writes a 405 body.
func WriteMethodNotAllowed(w http.ResponseWriter) {
	WriteProblem(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "The HTTP method is not supported for this endpoint.", "", "")
}
