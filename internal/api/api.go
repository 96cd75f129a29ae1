package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/joescharf/repochat/internal/agent"
	"github.com/joescharf/repochat/internal/git"
	"github.com/joescharf/repochat/internal/github"
	"github.com/joescharf/repochat/internal/llm"
	"github.com/joescharf/repochat/internal/repo"
	"github.com/joescharf/repochat/internal/sessions"
	"github.com/joescharf/repochat/internal/store"
)

// Server provides the REST API handlers.
type Server struct {
	repo     *repo.Store
	gateway  github.Gateway
	agent    *agent.Agent
	sessions *sessions.Manager
	archive  store.Store
}

// NewServer creates a new API server. archive may be nil when scan history
// persistence is disabled.
func NewServer(repoStore *repo.Store, gateway github.Gateway, ag *agent.Agent, sess *sessions.Manager, archive store.Store) *Server {
	return &Server{
		repo:     repoStore,
		gateway:  gateway,
		agent:    ag,
		sessions: sess,
		archive:  archive,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/repo/load", s.loadRepo)
	mux.HandleFunc("GET /api/v1/repo/status", s.repoStatus)

	mux.HandleFunc("POST /api/v1/chat/{session}", s.chat)
	mux.HandleFunc("GET /api/v1/chat/{session}/history", s.chatHistory)
	mux.HandleFunc("DELETE /api/v1/chat/{session}", s.resetChat)

	mux.HandleFunc("GET /api/v1/scans", s.listScans)

	mux.HandleFunc("GET /api/v1/files/{path...}", s.getFile)
	mux.HandleFunc("GET /api/v1/usage/{path...}", s.getUsage)

	return corsMiddleware(mux)
}

// Serve runs the API server on the given port until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("api server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- Repository ---

func (s *Server) loadRepo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	if err := s.repo.Load(r.Context(), req.URL); err != nil {
		var cloneErr *git.CloneError
		if errors.As(err, &cloneErr) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	structure, err := s.repo.FileStructure()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"url":       req.URL,
		"structure": structure,
	})
}

func (s *Server) repoStatus(w http.ResponseWriter, r *http.Request) {
	sourceURL, ok := s.repo.SourceURL()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"loaded": false})
		return
	}

	resp := map[string]any{
		"loaded": true,
		"url":    sourceURL,
	}
	if structure, err := s.repo.FileStructure(); err == nil {
		resp["structure"] = structure
	}
	// Metadata is decoration; a gateway failure never hides the status.
	if meta, err := s.gateway.GetRepoMetadata(r.Context(), sourceURL); err == nil {
		resp["metadata"] = meta
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Chat ---

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")

	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	answer, err := s.agent.HandleTurn(r.Context(), sessionID, req.Message)
	if err != nil {
		var completionErr *llm.CompletionError
		switch {
		case errors.Is(err, sessions.ErrTooManySessions):
			writeError(w, http.StatusTooManyRequests, err.Error())
		case errors.As(err, &completionErr):
			writeError(w, http.StatusBadGateway, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session": sessionID,
		"answer":  answer,
		"history": s.sessions.History(sessionID),
	})
}

func (s *Server) chatHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")
	writeJSON(w, http.StatusOK, map[string]any{
		"session":  sessionID,
		"messages": s.sessions.History(sessionID),
	})
}

func (s *Server) resetChat(w http.ResponseWriter, r *http.Request) {
	s.sessions.Reset(r.PathValue("session"))
	w.WriteHeader(http.StatusNoContent)
}

// --- Scans ---

func (s *Server) listScans(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	scans, err := s.archive.ListScans(r.Context(), 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, scans)
}

// --- Files ---

func (s *Server) getFile(w http.ResponseWriter, r *http.Request) {
	rec, err := s.repo.FetchFile(r.PathValue("path"))
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) getUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := s.repo.UsageOf(r.PathValue("path"))
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

func writeRepoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repo.ErrNoRepository):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, repo.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
