package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"devlens/internal/api"
	"devlens/internal/calendar"
	"devlens/internal/config"
	"devlens/internal/logging"
	"devlens/internal/services"
)

const maxRequestBody = 4 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api"),
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", srv.handleStatus)
	mux.HandleFunc("GET /api/sessions", srv.handleListSessions)
	mux.HandleFunc("POST /api/sessions", srv.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", srv.handleGetSession)
	mux.HandleFunc("POST /api/sessions/{id}/cancel", srv.handleCancel)
	mux.HandleFunc("POST /api/sessions/{id}/process", srv.handleProcess)
	mux.HandleFunc("GET /api/active-session", srv.handleActive)
	mux.HandleFunc("GET /api/drafts", srv.handleDrafts)
	mux.HandleFunc("POST /api/drafts/{id}/import", srv.handleImport)
	mux.HandleFunc("GET /api/modes", srv.handleModes)
	mux.HandleFunc("GET /api/traces", srv.handleTraces)

	srv.server = &http.Server{
		Handler:           requestIDMiddleware(authMiddleware(cfg.Paths.APIToken, mux)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

// handler exposes the routed handler for in-process tests.
func (s *apiServer) handler() http.Handler {
	return s.server.Handler
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		s.logger.Info("api server disabled", logging.String("reason", "paths.api_bind is empty"))
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Unlock()
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, api.SessionListResponse{Sessions: s.daemon.sessions.List(r.Context())})
}

func (s *apiServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req api.CreateSessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	mode := strings.TrimSpace(req.Mode)
	if mode != "" && !s.daemon.catalog.Has(mode) {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown documentation mode %q", mode))
		return
	}
	proj, err := s.daemon.sessions.Create(r.Context(), req.SessionID, req.Metadata)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, proj)
}

func (s *apiServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	proj, ok := s.daemon.sessions.StatusOrDraft(r.Context(), id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	s.writeJSON(w, http.StatusOK, proj)
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	ok := s.daemon.sessions.Cancel(r.Context(), r.PathValue("id"))
	s.writeJSON(w, http.StatusOK, api.ActionResponse{Success: ok})
}

func (s *apiServer) handleProcess(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var material api.ProcessRequest
	if !s.decode(w, r, &material) {
		return
	}
	ctx := services.WithSessionID(r.Context(), id)
	if err := s.daemon.workflow.Submit(ctx, id, material); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.ProcessResponse{SessionID: id, Accepted: true})
}

func (s *apiServer) handleActive(w http.ResponseWriter, r *http.Request) {
	proj, ok := s.daemon.sessions.GetActiveSession(r.Context())
	if !ok {
		s.writeJSON(w, http.StatusOK, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, proj)
}

func (s *apiServer) handleDrafts(w http.ResponseWriter, r *http.Request) {
	var statuses []calendar.DraftStatus
	for _, value := range r.URL.Query()["status"] {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		status, ok := calendar.ParseDraftStatus(trimmed)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid draft status %q", trimmed))
			return
		}
		statuses = append(statuses, status)
	}
	s.writeJSON(w, http.StatusOK, api.DraftListResponse{Drafts: s.daemon.calendar.ListDrafts(r.Context(), statuses...)})
}

func (s *apiServer) handleImport(w http.ResponseWriter, r *http.Request) {
	resp, err := s.daemon.Import(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, resp)
}

func (s *apiServer) handleModes(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.ModesResponse{Modes: s.daemon.catalog.List()})
}

func (s *apiServer) handleTraces(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.TraceListResponse{Traces: s.daemon.traces.Records()})
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *apiServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := api.StatusCodeFor(err)
	if code >= http.StatusInternalServerError {
		logging.WithContext(r.Context(), s.logger).Warn("api request failed",
			logging.String("path", r.URL.Path),
			logging.Int("status", code),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.Classify(err)),
		)
	}
	s.writeError(w, code, err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("api write failed", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

// requestIDMiddleware tags every request with an id, reusing X-Request-ID
// when the caller supplies one.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}
