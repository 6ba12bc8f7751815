// Package web provides the HTTP server, dashboard and JSON API.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/JonMunkholm/ThreatBoard/internal/config"
	"github.com/JonMunkholm/ThreatBoard/internal/core"
	mw "github.com/JonMunkholm/ThreatBoard/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Server is the HTTP server for the dashboard and API.
type Server struct {
	service *core.Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server

	requestLimiter *rateLimiter
	uploadLimiter  *rateLimiter
	stopCleanup    chan struct{}
	stopOnce       sync.Once

	checksMu sync.RWMutex
	checks   map[string]HealthChecker
}

// NewServer creates a Server with all middleware and routes installed.
func NewServer(service *core.Service, cfg *config.Config) *Server {
	s := &Server{
		service:     service,
		cfg:         cfg,
		router:      chi.NewRouter(),
		stopCleanup: make(chan struct{}),
		checks:      make(map[string]HealthChecker),
	}
	if cfg.Rate.Enabled {
		s.requestLimiter = newRateLimiter(cfg.Rate.RequestsPerMinute)
		s.uploadLimiter = newRateLimiter(cfg.Rate.UploadLimit)
		go s.requestLimiter.run(s.stopCleanup)
		go s.uploadLimiter.run(s.stopCleanup)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.requestLimiter != nil {
		s.router.Use(s.rateLimit(s.requestLimiter))
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/static/*", staticHandler())

	// Dashboard: plain HTML forms with post/redirect/get
	s.router.Group(func(r chi.Router) {
		r.Use(s.withSession)
		r.Get("/", s.handleDashboard)
		r.With(s.uploadRateLimit).Post("/upload", s.handleUploadForm)
		r.Post("/analyze", s.handleAnalyzeForm)
		r.Post("/reset", s.handleResetForm)
	})

	s.router.Route("/api", func(r chi.Router) {
		if len(s.cfg.Security.AllowedOrigins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins:   s.cfg.Security.AllowedOrigins,
				AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders:   []string{"Accept", "Content-Type", mw.APIKeyHeader, SessionHeader},
				ExposedHeaders:   []string{SessionHeader, "Retry-After"},
				AllowCredentials: true,
				MaxAge:           300,
			}))
		}
		r.Use(mw.APIKeyAuth(s.cfg.Security))

		// Reference data
		r.Get("/attack-types", s.handleAttackTypes)
		r.Get("/attack-types/{attackType}", s.handleAttackType)
		r.Get("/history", s.handleHistory)
		r.Get("/status", s.handleStatus)
		r.Post("/classify", s.handleClassify)

		// Session-scoped analysis
		r.Group(func(r chi.Router) {
			r.Use(s.withSession)
			r.With(s.uploadRateLimit).Post("/upload", s.handleUpload)
			r.Post("/analyze", s.handleAnalyze)
			r.Get("/summary", s.handleSummary)
			r.Post("/reset", s.handleReset)
		})
	})
}

// uploadRateLimit applies the stricter per-IP upload limit when rate limiting is on.
func (s *Server) uploadRateLimit(next http.Handler) http.Handler {
	if s.uploadLimiter == nil {
		return next
	}
	return s.rateLimit(s.uploadLimiter)(next)
}

// Start begins listening for HTTP requests on the configured address.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("http server listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server and background cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			if enableCSP {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'; img-src 'self' data:; form-action 'self'; frame-ancestors 'none'")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeJSON encodes v as JSON with the given status.
// Encoding errors are logged since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
