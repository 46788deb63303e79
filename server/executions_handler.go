package server

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/archonhq/archon/auth"
	"github.com/archonhq/archon/exec"
)

// handleGetExecution returns one execution with its step results. Owner-only,
// like the chains themselves.
func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()
	claims := auth.UserFromContext(r.Context())
	executionID := r.PathValue("id")

	execution, err := s.store.GetExecution(r.Context(), executionID)
	if err != nil {
		writeError(w, statusFromError(err), requestID, err.Error())
		return
	}
	if execution.UserID != claims.UserID {
		writeError(w, http.StatusForbidden, requestID, "execution belongs to another user")
		return
	}

	results, err := s.store.ListStepResults(r.Context(), executionID)
	if err != nil {
		writeError(w, statusFromError(err), requestID, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"execution": execution,
		"steps":     results,
	})
}

// handleGetExecutionEvents returns the append-only progress log for polling
// clients that cannot hold an SSE stream open.
func (s *Server) handleGetExecutionEvents(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()
	claims := auth.UserFromContext(r.Context())
	executionID := r.PathValue("id")

	execution, err := s.store.GetExecution(r.Context(), executionID)
	if err != nil {
		writeError(w, statusFromError(err), requestID, err.Error())
		return
	}
	if execution.UserID != claims.UserID {
		writeError(w, http.StatusForbidden, requestID, "execution belongs to another user")
		return
	}

	events, err := s.store.ListEvents(r.Context(), executionID)
	if err != nil {
		writeError(w, statusFromError(err), requestID, err.Error())
		return
	}
	if events == nil {
		events = []*exec.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"execution_id": executionID,
		"status":       execution.Status,
		"events":       events,
	})
}
