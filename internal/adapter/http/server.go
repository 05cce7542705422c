package http

import (
	"context"
	"net/http"
	"time"

	"github.com/bnema/tubeaudit/internal/adapter/http/middleware"
	"github.com/bnema/tubeaudit/internal/adapter/http/ratelimit"
)

// ServerDeps wires the HTTP surface to the services.
type ServerDeps struct {
	Auth        AuthService
	Audits      AuditService
	Runner      TaskRunner
	Maintenance Maintainer
	TaskAuth    *TaskAuthenticator
	// Local is nil when artifacts live in object storage.
	Local LocalArtifacts
	// Metrics serves /metrics; nil disables the route.
	Metrics http.Handler
	// Health reports store reachability for /healthz.
	Health func(ctx context.Context) error

	AuthSecret  string
	BehindProxy bool
}

type Server struct {
	mux         *http.ServeMux
	deps        ServerDeps
	handlers    *Handlers
	api         *API
	internal    *Internal
	rateLimiter *ratelimit.LoginRateLimiter
	failures    *ratelimit.FailureDelay
	csrf        *middleware.CSRFProtection
	handler     http.Handler
}

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		mux:      http.NewServeMux(),
		deps:     deps,
		handlers: NewHandlers(deps.Audits),
		api:      NewAPI(deps.Audits, deps.Local),
		internal: NewInternal(deps.Runner, deps.Audits, deps.Maintenance),
		rateLimiter: ratelimit.NewLoginRateLimiter(
			5,
			15*time.Minute,
			30*time.Minute,
		),
		failures: ratelimit.NewFailureDelay(ratelimit.NewBackoff(
			500*time.Millisecond,
			10*time.Second,
			2.0,
		)),
		// Session-authenticated JSON writes still need the X-CSRF-Token header.
		csrf: middleware.NewCSRFProtection(deps.AuthSecret, "/internal/", "/api/local-artifacts/", "/healthz", "/metrics"),
	}

	s.registerRoutes()
	s.handler = middleware.SecurityHeaders(s.csrf.Middleware(s.mux))
	return s
}

// Start runs background housekeeping for the login limiter until ctx ends.
func (s *Server) Start(ctx context.Context) {
	s.rateLimiter.Start(ctx)
}

func (s *Server) registerRoutes() {
	auth := s.deps.Auth

	setupHandler := SetupHandler(auth)
	s.mux.HandleFunc("GET /setup", setupHandler)
	s.mux.HandleFunc("POST /setup", setupHandler)

	loginHandler := LoginHandler(auth, s.rateLimiter, s.failures, s.deps.BehindProxy)
	s.mux.HandleFunc("GET /login", loginHandler)
	s.mux.HandleFunc("POST /login", loginHandler)

	s.mux.HandleFunc("POST /logout", LogoutHandler())

	s.mux.HandleFunc("GET /{$}", AuthMiddleware(auth, s.handlers.Dashboard()))
	s.mux.HandleFunc("POST /audits", AuthMiddleware(auth, s.handlers.CreateAudit()))
	s.mux.HandleFunc("GET /audits/{id}", AuthMiddleware(auth, s.handlers.AuditDetail()))
	s.mux.HandleFunc("POST /audits/{id}/delete", AuthMiddleware(auth, s.handlers.DeleteAudit()))

	s.mux.HandleFunc("GET /api/audits", APIAuthMiddleware(auth, s.api.ListAudits()))
	s.mux.HandleFunc("POST /api/audits", APIAuthMiddleware(auth, s.api.CreateAudit()))
	s.mux.HandleFunc("GET /api/audits/{id}/status", APIAuthMiddleware(auth, s.api.AuditStatus()))
	s.mux.HandleFunc("GET /api/audits/{id}/artifacts/{type}", APIAuthMiddleware(auth, s.api.ArtifactLink()))
	s.mux.HandleFunc("POST /api/account/password", APIAuthMiddleware(auth, ChangePasswordHandler(auth)))
	s.mux.HandleFunc("GET /api/local-artifacts/{id}/download", s.api.LocalDownload())

	s.mux.HandleFunc("POST /internal/tasks/run-audit", s.deps.TaskAuth.Middleware(s.internal.RunAudit()))
	s.mux.HandleFunc("POST /internal/cleanup", s.deps.TaskAuth.Middleware(s.internal.Cleanup()))

	s.mux.HandleFunc("GET /healthz", s.healthz)
	if s.deps.Metrics != nil {
		s.mux.Handle("GET /metrics", s.deps.Metrics)
	}
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Health(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
