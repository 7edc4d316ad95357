// Package gateway is the HTTP surface: guest auth, session messaging,
// uploads, ticket type listing, the admin event stream, and the usual
// health/metrics endpoints.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atlasdesk/switchboard/internal/artifacts"
	"github.com/atlasdesk/switchboard/internal/auth"
	"github.com/atlasdesk/switchboard/internal/config"
	"github.com/atlasdesk/switchboard/internal/observability"
	"github.com/atlasdesk/switchboard/internal/providers/tickets"
	"github.com/atlasdesk/switchboard/internal/sessions"
	"github.com/atlasdesk/switchboard/internal/turn"
	"github.com/atlasdesk/switchboard/pkg/models"
)

// Server hosts the HTTP gateway.
type Server struct {
	cfg        config.ServerConfig
	controller *turn.Controller
	picker     *turn.Picker
	store      sessions.Store
	tickets    tickets.Store
	artifacts  *artifacts.Repository
	jwt        *auth.JWTService
	hub        *Hub
	logger     *observability.Logger
	registry   *prometheus.Registry

	httpServer *http.Server
}

// Options wires a Server.
type Options struct {
	Config     config.ServerConfig
	Controller *turn.Controller
	Picker     *turn.Picker
	Store      sessions.Store
	Tickets    tickets.Store
	Artifacts  *artifacts.Repository
	JWT        *auth.JWTService
	Hub        *Hub
	Logger     *observability.Logger
	Registry   *prometheus.Registry
}

// NewServer assembles the gateway.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Server{
		cfg:        opts.Config,
		controller: opts.Controller,
		picker:     opts.Picker,
		store:      opts.Store,
		tickets:    opts.Tickets,
		artifacts:  opts.Artifacts,
		jwt:        opts.JWT,
		hub:        opts.Hub,
		logger:     opts.Logger,
		registry:   opts.Registry,
	}
}

// Handler builds the full route table, exposed separately for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if s.registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("POST /v1/auth/guest", s.handleGuestAuth)
	mux.Handle("POST /v1/sessions", s.authenticated(s.handleCreateSession))
	mux.Handle("GET /v1/sessions/{id}/messages", s.authenticated(s.handleHistory))
	mux.Handle("POST /v1/sessions/{id}/messages", s.authenticated(s.handleSendMessage))
	mux.Handle("POST /v1/uploads", s.authenticated(s.handleUpload))
	mux.Handle("GET /v1/ticket-types", s.authenticated(s.handleTicketTypes))
	mux.Handle("POST /v1/debug/pick", s.authenticated(s.handleDebugPick))
	if s.hub != nil {
		mux.Handle("GET /v1/ws", s.hub)
	}

	return s.requestID(s.accessLog(s.recovered(mux)))
}

// Start listens and serves until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info(context.Background(), "gateway listening", "addr", addr)

	if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// ---------------------------------------------------------------- middleware

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), observability.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

func (s *Server) recovered(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error(r.Context(), "handler panicked", "panic", fmt.Sprintf("%v", rec))
				writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authenticated resolves the bearer token into a user on the context. With
// auth disabled (no secret) every request passes anonymously.
func (s *Server) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		user, err := s.jwt.Validate(token)
		if err != nil {
			if errors.Is(err, auth.ErrAuthDisabled) {
				next.ServeHTTP(w, r)
				return
			}
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), observability.UserIDKey, user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get("token")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// ------------------------------------------------------------------ handlers

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGuestAuth(w http.ResponseWriter, r *http.Request) {
	user, token, err := s.jwt.IssueGuest()
	if err != nil {
		if errors.Is(err, auth.ErrAuthDisabled) {
			writeError(w, http.StatusNotImplemented, "auth_disabled", "guest tokens are not enabled")
			return
		}
		writeError(w, http.StatusInternalServerError, "token_error", "could not issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": user.ID, "token": token})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value(observability.UserIDKey).(string)
	session, err := s.store.CreateSession(r.Context(), userID)
	if err != nil {
		s.logger.Error(r.Context(), "session create failed", "error", err)
		writeError(w, http.StatusInternalServerError, "session_error", "could not create session")
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if _, err := s.requireSession(w, r, sessionID); err != nil {
		return
	}
	history, err := s.store.History(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "history_error", "could not load history")
		return
	}
	// Internal system rows (breadcrumbs, banners) never leave the service.
	visible := make([]models.Message, 0, len(history))
	for _, m := range history {
		if m.Role != models.RoleSystem {
			visible = append(visible, m)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": visible})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if _, err := s.requireSession(w, r, sessionID); err != nil {
		return
	}

	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Content) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "content is required")
		return
	}

	result, err := s.controller.RunTurn(r.Context(), sessionID, body.Content)
	if err != nil {
		s.logger.Error(r.Context(), "turn failed", "error", err)
		writeError(w, http.StatusBadGateway, "turn_error", "assistant is unavailable, please retry")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.artifacts == nil {
		writeError(w, http.StatusNotImplemented, "uploads_disabled", "uploads are not enabled")
		return
	}
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = r.FormValue("session_id")
	}
	if _, err := s.requireSession(w, r, sessionID); err != nil {
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "multipart field 'file' is required")
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	artifact, err := s.artifacts.Save(r.Context(), sessionID, header.Filename, mimeType, file)
	if err != nil {
		if errors.Is(err, artifacts.ErrTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", "file exceeds the upload limit")
			return
		}
		s.logger.Error(r.Context(), "upload failed", "error", err)
		writeError(w, http.StatusInternalServerError, "upload_error", "could not store the file")
		return
	}
	writeJSON(w, http.StatusCreated, artifact)
}

func (s *Server) handleTicketTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.tickets.ListTypes(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "types_error", "could not list ticket types")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ticket_types": types, "count": len(types)})
}

// handleDebugPick exposes the routing pass for operators: the rendered
// prompt plus the live decision for a session's history.
func (s *Server) handleDebugPick(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.SessionID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "session_id is required")
		return
	}
	history, err := s.store.History(r.Context(), body.SessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "unknown session")
		return
	}

	result, _, err := s.picker.Pick(r.Context(), history)
	prompt := s.picker.BuildPrompt(r.Context(), history)
	resp := map[string]any{"prompt": prompt.Prompt}
	if err != nil {
		resp["error"] = err.Error()
	} else {
		resp["pick"] = result
	}
	writeJSON(w, http.StatusOK, resp)
}

// requireSession loads the session and enforces ownership when both auth
// and the session's user binding are present.
func (s *Server) requireSession(w http.ResponseWriter, r *http.Request, sessionID string) (*models.Session, error) {
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "session id is required")
		return nil, errors.New("missing session id")
	}
	session, err := s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "unknown session")
		return nil, err
	}
	userID, _ := r.Context().Value(observability.UserIDKey).(string)
	if userID != "" && session.UserID != "" && session.UserID != userID {
		writeError(w, http.StatusForbidden, "forbidden", "session belongs to another user")
		return nil, errors.New("session ownership mismatch")
	}
	return session, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}
