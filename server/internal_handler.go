package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/archonhq/archon/exec"
)

type internalExecuteRequest struct {
	ScheduleID  string                 `json:"schedule_id"`
	ArchitectID string                 `json:"architect_id"`
	Inputs      map[string]interface{} `json:"inputs"`
	UserID      string                 `json:"user_id"`
	TriggeredBy string                 `json:"triggered_by,omitempty"`
	ScheduledAt string                 `json:"scheduled_at,omitempty"`
}

type internalExecuteResponse struct {
	ExecutionID string               `json:"execution_id"`
	Status      string               `json:"status"`
	Results     []internalStepResult `json:"results"`
}

type internalStepResult struct {
	PromptID   string `json:"prompt_id"`
	Status     string `json:"status"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// handleInternalExecute runs a chain to completion on behalf of the
// scheduler. Callers authenticate with a scheduler-issued internal token,
// not a user session.
func (s *Server) handleInternalExecute(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()
	log := s.log.With("request_id", requestID)

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" || token == r.Header.Get("Authorization") {
		writeError(w, http.StatusUnauthorized, requestID, "missing bearer token")
		return
	}
	claims, err := s.internalTokens.ValidateToken(token)
	if err != nil {
		log.Warnw("internal token rejected", "error", err)
		writeError(w, http.StatusUnauthorized, requestID, "invalid token")
		return
	}

	var req internalExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, requestID, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.ArchitectID == "" || req.UserID == "" {
		writeFieldErrors(w, requestID, map[string]string{
			"architect_id": "required",
			"user_id":      "required",
		})
		return
	}
	if claims.UserID != "" && claims.UserID != req.UserID {
		writeError(w, http.StatusForbidden, requestID, "token user does not match request user")
		return
	}
	if fields := s.validateInputs(req.Inputs); len(fields) > 0 {
		writeFieldErrors(w, requestID, fields)
		return
	}

	log = log.With("architect_id", shortID(req.ArchitectID), "schedule_id", req.ScheduleID)
	ctx := r.Context()

	loaded, err := s.loader.Load(ctx, req.ArchitectID, req.UserID)
	if err != nil {
		log.Warnw("chain load failed", "error", err)
		writeError(w, statusFromError(err), requestID, err.Error())
		return
	}

	drv := &scheduledDriver{defaultTimeout: time.Duration(s.cfg.Chain.DefaultStepTimeout) * time.Second}
	outcome, err := s.runner.Run(ctx, exec.Plan{
		Chain:    loaded,
		Inputs:   req.Inputs,
		CallerID: req.UserID,
	}, drv)
	if err != nil {
		// the run already wrote its terminal state; the scheduler gets a
		// sanitized error, details live in the execution record
		log.Errorw("scheduled execution failed", "error", err)
		writeError(w, http.StatusInternalServerError, requestID, "execution failed")
		return
	}

	completed := outcome.(exec.OutcomeCompleted)
	resp := internalExecuteResponse{
		ExecutionID: completed.Execution.ID,
		Status:      completed.Execution.Status,
	}
	for _, result := range completed.Results {
		resp.Results = append(resp.Results, internalStepResult{
			PromptID:   result.PromptID,
			Status:     result.Status,
			Output:     result.OutputData,
			Error:      result.ErrorMessage,
			DurationMs: result.DurationMs,
		})
	}
	log.Infow("scheduled execution finished", "execution_id", shortID(resp.ExecutionID), "steps", len(resp.Results))
	writeJSON(w, http.StatusOK, resp)
}
