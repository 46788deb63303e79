// Package server hosts the two HTTP execution drivers: the interactive SSE
// endpoint for browser sessions and the internal endpoint the scheduler
// calls, plus read-only execution polling routes.
package server

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/archonhq/archon/ai"
	"github.com/archonhq/archon/auth"
	"github.com/archonhq/archon/chain"
	"github.com/archonhq/archon/config"
	"github.com/archonhq/archon/errors"
	"github.com/archonhq/archon/exec"
	"github.com/archonhq/archon/knowledge"
	"github.com/archonhq/archon/logger"
	"github.com/archonhq/archon/version"
)

// Server wires the chain engine behind HTTP
type Server struct {
	cfg    *config.Config
	db     *sql.DB
	loader *chain.Loader
	runner *exec.Runner
	store  *exec.Store

	middleware     *auth.Middleware
	internalTokens *auth.InternalTokenManager

	httpServer *http.Server
	log        *zap.SugaredLogger
}

// Deps are the collaborators a Server needs beyond the database
type Deps struct {
	Streaming ai.StreamingService
	Retriever knowledge.Retriever
	Tools     exec.ToolProvider
	Notifier  exec.Notifier
}

// New builds a fully wired server
func New(cfg *config.Config, conn *sql.DB, deps Deps) (*Server, error) {
	sessions, err := auth.NewSessionManager(cfg.Auth.JWTSecret, 0)
	if err != nil {
		return nil, err
	}
	internalTokens, err := auth.NewInternalTokenManager(
		cfg.Auth.JWTSecret, cfg.Auth.InternalIssuer, cfg.Auth.InternalAudience)
	if err != nil {
		return nil, err
	}

	chainStore := chain.NewStore(conn)
	execStore := exec.NewStore(conn)
	models := ai.NewModelStore(conn)

	retrieval := knowledge.DefaultConfig()
	if cfg.Chain.RetrievalMaxChunks > 0 {
		retrieval.MaxChunks = cfg.Chain.RetrievalMaxChunks
		retrieval.MaxTokens = cfg.Chain.RetrievalMaxTokens
		retrieval.SimilarityThreshold = cfg.Chain.SimilarityFloor
		retrieval.VectorWeight = cfg.Chain.VectorWeight
	}

	executor := exec.NewStepExecutor(execStore, models, deps.Streaming, deps.Retriever, retrieval, deps.Tools)
	runner := exec.NewRunner(execStore, executor, deps.Notifier, cfg.Chain.MaxContextTurns)

	s := &Server{
		cfg:            cfg,
		db:             conn,
		loader:         chain.NewLoader(chainStore, cfg.Chain.MaxSteps),
		runner:         runner,
		store:          execStore,
		middleware:     auth.NewMiddleware(sessions),
		internalTokens: internalTokens,
		log:            logger.Named("server"),
	}

	mux := http.NewServeMux()
	s.routes(mux)
	s.httpServer = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		// no WriteTimeout: SSE responses stay open for the whole chain
	}
	return s, nil
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.handleHealth))
	mux.HandleFunc("POST /api/architects/{id}/execute",
		s.corsMiddleware(s.middleware.RequireSession(s.handleExecute)))
	mux.HandleFunc("GET /api/executions/{id}",
		s.corsMiddleware(s.middleware.RequireSession(s.handleGetExecution)))
	mux.HandleFunc("GET /api/executions/{id}/events",
		s.corsMiddleware(s.middleware.RequireSession(s.handleGetExecutionEvents)))
	mux.HandleFunc("POST /internal/executions", s.handleInternalExecute)
}

// Start blocks serving HTTP until Shutdown or a listener error
func (s *Server) Start() error {
	s.log.Infow("server listening", "addr", s.cfg.Server.Addr, "version", version.Version)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server failed")
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Infow("server shutting down")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.Server.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	status := "ok"
	code := http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.log.Errorw("health check database ping failed", "error", err)
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status":  status,
		"version": version.Version,
	})
}
