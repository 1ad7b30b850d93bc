package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dvcrn/amazonq-proxy/internal/amazonq"
	"github.com/dvcrn/amazonq-proxy/internal/auth"
	"github.com/dvcrn/amazonq-proxy/internal/config"
	"github.com/dvcrn/amazonq-proxy/internal/credentials"
	"github.com/dvcrn/amazonq-proxy/internal/metrics"
	"github.com/rs/zerolog"
)

const (
	pathIndex           = "/"
	pathChatCompletions = "/v1/chat/completions"
	pathMessages        = "/v1/messages"
	pathModels          = "/v1/models"
	pathCredentials     = "/credentials"
	pathHealth          = "/health"
)

// maxRequestBody bounds inbound JSON bodies.
const maxRequestBody = 10 << 20

// sseFlushWriter wraps a ResponseWriter to flush after each write.
type sseFlushWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func (fw sseFlushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if err == nil {
		fw.f.Flush()
	}
	return n, err
}

// CredentialManager is the token lifecycle surface used by the HTTP handlers.
type CredentialManager interface {
	Status(ctx context.Context) auth.Status
	SetCredentials(ctx context.Context, rec *credentials.Credentials) error
	ProfileARN(ctx context.Context) string
}

// Upstream sends one prompt to the vendor.
type Upstream interface {
	Generate(ctx context.Context, req amazonq.Request) (*http.Response, error)
}

type Server struct {
	creds    CredentialManager
	upstream Upstream
	cfg      *config.Config
	mux      *http.ServeMux
	logger   zerolog.Logger
	now      func() time.Time
}

func New(logger zerolog.Logger, cfg *config.Config, creds CredentialManager, upstream Upstream) *Server {
	s := &Server{
		creds:    creds,
		upstream: upstream,
		cfg:      cfg,
		mux:      http.NewServeMux(),
		logger:   logger,
		now:      time.Now,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.handle("chat_completions", pathChatCompletions, s.chatCompletionsHandler)
	s.handle("messages", pathMessages, s.messagesHandler)
	s.handle("models", pathModels, s.modelsHandler)
	s.handle("credentials", pathCredentials, s.credentialsHandler)
	s.handle("health", pathHealth, s.healthHandler)
	if s.cfg.Metrics.Enabled {
		s.mux.Handle(s.cfg.Metrics.Path, metrics.Handler())
	}
	s.handle("index", pathIndex, s.indexHandler)
}

func (s *Server) handle(route, pattern string, h http.HandlerFunc) {
	var handler http.Handler = h
	if s.cfg.Metrics.Enabled {
		handler = metrics.Middleware(route, handler)
	}
	s.mux.Handle(pattern, handler)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.loggingMiddleware(s.mux).ServeHTTP(w, r)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.logger.Info().
			Str("method", r.Method).
			Str("uri", r.RequestURI).
			Str("remote_addr", r.RemoteAddr).
			Str("user_agent", r.UserAgent()).
			Msg("Incoming request")
		next.ServeHTTP(w, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("uri", r.RequestURI).
			Dur("duration", time.Since(start)).
			Msg("Finished request")
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	for _, m := range allowed {
		w.Header().Add("Allow", m)
	}
	s.writeError(w, http.StatusMethodNotAllowed, apiError{
		Message: "Method " + r.Method + " not allowed",
		Type:    errTypeMethod,
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r, http.MethodGet)
		return
	}

	st := s.creds.Status(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"timestamp":       formatTimestamp(s.now()),
		"has_credentials": st.HasCredentials,
	})
}

func (s *Server) modelsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r, http.MethodGet)
		return
	}

	s.writeJSON(w, http.StatusOK, modelsResponse{
		Object: "list",
		Data:   supportedModels(s.now()),
	})
}

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != pathIndex {
		s.notFoundHandler(w, r)
		return
	}
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r, http.MethodGet)
		return
	}
	s.writeJSON(w, http.StatusOK, newIndexResponse())
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	s.logger.Warn().
		Str("method", r.Method).
		Str("uri", r.RequestURI).
		Str("remote_addr", r.RemoteAddr).
		Str("user_agent", r.UserAgent()).
		Msg("Unhandled route")
	s.writeError(w, http.StatusNotFound, apiError{Message: "Not Found", Type: errTypeNotFound})
}

// formatTimestamp renders t as ISO-8601 UTC with millisecond precision.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
