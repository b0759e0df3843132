// Package api serves CineBot sessions over HTTP and WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/nugget/cinebot/internal/buildinfo"
	"github.com/nugget/cinebot/internal/health"
	"github.com/nugget/cinebot/internal/observability"
	"github.com/nugget/cinebot/internal/session"
	"github.com/nugget/cinebot/internal/usage"
)

const (
	maxJSONBody     = 1 << 20
	maxDocumentBody = 10 << 20
)

// Config holds the listener settings.
type Config struct {
	Address string
	Port    int

	// RateLimit is requests per second per client address. Zero
	// disables limiting.
	RateLimit float64
	RateBurst int

	// AllowAnyOrigin accepts WebSocket upgrades from any browser origin.
	AllowAnyOrigin bool
}

// DependencyReporter reports the reachability of external services.
type DependencyReporter interface {
	Status() []health.Status
	Ready() bool
}

// UsageReporter answers token usage queries.
type UsageReporter interface {
	Summary(ctx context.Context, start, end time.Time) (*usage.Summary, error)
	SummaryByModel(ctx context.Context, start, end time.Time) (map[string]*usage.Summary, error)
	SessionSummary(ctx context.Context, sessionID string) (*usage.Summary, error)
}

// Server is the HTTP API server.
type Server struct {
	cfg      Config
	sessions *session.Manager
	gatherer prometheus.Gatherer
	deps     DependencyReporter
	usage    UsageReporter
	logger   *slog.Logger
	upgrader websocket.Upgrader
	server   *http.Server
}

// NewServer creates an API server. gatherer may be nil, in which case
// /metrics is not served.
func NewServer(cfg Config, sessions *session.Manager, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		gatherer: gatherer,
		logger:   logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// SetDependencies makes /healthz report on external services.
func (s *Server) SetDependencies(d DependencyReporter) {
	s.deps = d
}

// SetUsage enables the usage endpoints.
func (s *Server) SetUsage(u UsageReporter) {
	s.usage = u
}

// Handler returns the routed handler with middleware applied. Every
// request except health and metrics scrapes gets a server span.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.withLogging)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/v1/version", s.handleVersion)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", observability.Handler(s.gatherer))
	}

	r.Group(func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			r.Use(newRateLimiter(s.cfg.RateLimit, s.cfg.RateBurst).middleware)
		}

		r.Get("/v1/personas", s.handlePersonas)
		r.Get("/v1/usage", s.handleUsage)
		r.Post("/v1/sessions", s.handleCreateSession)
		r.Route("/v1/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleEndSession)
			r.Post("/messages", s.handleMessage)
			r.Get("/stream", s.handleStream)
			r.Get("/history", s.handleHistory)
			r.Post("/reset", s.handleReset)
			r.Put("/persona", s.handlePersona)
			r.Get("/watchlist", s.handleWatchlist)
			r.Put("/watchlist", s.handleImportWatchlist)
			r.Delete("/watchlist", s.handleClearWatchlist)
			r.Get("/watchlist/recommend", s.handleRecommend)
			r.Post("/document", s.handleDocument)
			r.Get("/usage", s.handleSessionUsage)
		})
	})

	return otelhttp.NewHandler(r, "cinebot.api",
		otelhttp.WithFilter(func(req *http.Request) bool {
			return req.URL.Path != "/healthz" && req.URL.Path != "/metrics"
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
			return "HTTP " + req.Method
		}),
	)
}

// Start begins serving and blocks until the server stops. It returns
// nil after a clean Shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Address, s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      180 * time.Second, // blocking turns make two model calls
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	addr := s.cfg.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.cfg.Port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		level := slog.LevelInfo
		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			level = slog.LevelDebug
		}
		s.logger.Log(r.Context(), level, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// checkOrigin allows non-browser clients and same-origin browsers.
func (s *Server) checkOrigin(r *http.Request) bool {
	if s.cfg.AllowAnyOrigin {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// handleHealth always answers 200 while the process is serving; a
// failing dependency only marks the report degraded.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":   "healthy",
		"sessions": s.sessions.ActiveCount(),
	}
	if s.deps != nil {
		if !s.deps.Ready() {
			resp["status"] = "degraded"
		}
		resp["dependencies"] = s.deps.Status()
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildinfo.Runtime())
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
