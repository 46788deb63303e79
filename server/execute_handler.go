package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/archonhq/archon/auth"
	"github.com/archonhq/archon/exec"
)

type executeRequest struct {
	Inputs         map[string]interface{} `json:"inputs"`
	ConversationID string                 `json:"conversation_id,omitempty"`
}

// handleExecute runs a chain interactively, streaming progress and the last
// step's tokens as server-sent events.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()
	claims := auth.UserFromContext(r.Context())
	architectID := r.PathValue("id")
	log := s.log.With("request_id", requestID, "architect_id", shortID(architectID), "user_id", claims.UserID)

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, requestID, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if fields := s.validateInputs(req.Inputs); len(fields) > 0 {
		writeFieldErrors(w, requestID, fields)
		return
	}

	ctx := r.Context()
	if s.cfg.Server.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.Server.RequestTimeout)*time.Second)
		defer cancel()
	}

	loaded, err := s.loader.Load(ctx, architectID, claims.UserID)
	if err != nil {
		log.Warnw("chain load failed", "error", err)
		writeError(w, statusFromError(err), requestID, err.Error())
		return
	}

	drv := newInteractiveDriver()
	outcome, err := s.runner.Run(ctx, exec.Plan{
		Chain:          loaded,
		Inputs:         req.Inputs,
		CallerID:       claims.UserID,
		SessionID:      claims.SessionID,
		ConversationID: req.ConversationID,
	}, drv)
	if err != nil {
		log.Errorw("chain execution failed before streaming", "error", err)
		writeError(w, statusFromError(err), requestID, err.Error())
		return
	}
	streamed := outcome.(exec.OutcomeStreaming)
	log = log.With("execution_id", shortID(streamed.Execution.ID))

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.markFailed(streamed.Execution.ID, "response writer does not support streaming")
		writeError(w, http.StatusInternalServerError, requestID, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Execution-Id", streamed.Execution.ID)
	w.Header().Set("X-Architect-Id", loaded.Architect.ID)
	w.Header().Set("X-Step-Count", strconv.Itoa(streamed.StepCount))
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.pipeStream(ctx, w, flusher, drv, streamed, log)
}

// pipeStream forwards progress events and live tokens until the chain
// finishes or the client goes away.
func (s *Server) pipeStream(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, drv *interactiveDriver, streamed exec.OutcomeStreaming, log *zap.SugaredLogger) {
	chunks := streamed.Handle.Chunks
	for {
		select {
		case ev := <-drv.progress:
			writeSSE(w, flusher, ev.Type, ev)
			if ev.Type == exec.EventExecutionCompleted || ev.Type == exec.EventExecutionFailed {
				writeSSE(w, flusher, "done", map[string]string{"execution_id": streamed.Execution.ID})
				return
			}
		case chunk, ok := <-chunks:
			if !ok {
				// tokens exhausted, wait for the terminal progress event
				chunks = nil
				continue
			}
			if chunk.Error != nil {
				log.Warnw("stream failed mid-chain", "error", chunk.Error)
				s.markFailed(streamed.Execution.ID, chunk.Error.Error())
				writeSSE(w, flusher, "error", map[string]string{"error": chunk.Error.Error()})
				return
			}
			if chunk.Content != "" {
				writeSSE(w, flusher, "token", map[string]string{"content": chunk.Content})
			}
		case <-ctx.Done():
			log.Warnw("client disconnected or request timed out", "error", ctx.Err())
			s.markFailed(streamed.Execution.ID, ctx.Err().Error())
			return
		}
	}
}

// markFailed records a failure discovered at the transport layer. The
// exactly-once guard keeps this from clobbering a terminal status the
// runner already wrote.
func (s *Server) markFailed(executionID, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.UpdateExecutionStatus(ctx, executionID, exec.StatusFailed, message); err != nil {
		s.log.Errorw("failed to mark execution failed", "execution_id", executionID, "error", err)
	}
}

func (s *Server) validateInputs(inputs map[string]interface{}) map[string]string {
	fields := map[string]string{}
	if len(inputs) > s.cfg.Chain.MaxInputFields {
		fields["inputs"] = fmt.Sprintf("too many fields: %d, maximum is %d", len(inputs), s.cfg.Chain.MaxInputFields)
		return fields
	}
	encoded, err := json.Marshal(inputs)
	if err != nil {
		fields["inputs"] = "inputs are not serializable"
		return fields
	}
	if len(encoded) > s.cfg.Chain.MaxInputBytes {
		fields["inputs"] = fmt.Sprintf("inputs too large: %d bytes, maximum is %d", len(encoded), s.cfg.Chain.MaxInputBytes)
	}
	return fields
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}
