package server

import (
	"encoding/json"
	"net/http"

	"github.com/archonhq/archon/errors"
)

// errorResponse is the JSON body of every non-2xx API response. Fields
// carries per-field validation messages on 400s.
type errorResponse struct {
	Error     string            `json:"error"`
	RequestID string            `json:"request_id,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, requestID, message string) {
	writeJSON(w, status, errorResponse{Error: message, RequestID: requestID})
}

// writeFieldErrors writes a 400 with structured per-field messages
func writeFieldErrors(w http.ResponseWriter, requestID string, fields map[string]string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Error:     "validation failed",
		RequestID: requestID,
		Fields:    fields,
	})
}

// requireMethod checks if the request method matches the expected method
func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		writeError(w, http.StatusMethodNotAllowed, "", "Method not allowed")
		return false
	}
	return true
}

// statusFromError maps engine errors to HTTP status codes
func statusFromError(err error) int {
	switch {
	case errors.IsNotFoundError(err):
		return http.StatusNotFound
	case errors.IsInvalidRequestError(err):
		return http.StatusBadRequest
	case errors.IsForbiddenError(err):
		return http.StatusForbidden
	case errors.Is(err, errors.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.IsTimeoutError(err):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// shortID truncates an ID to 8 characters for logging
func shortID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}
