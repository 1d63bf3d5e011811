package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ansoraGROUP/dupaboard/internal/config"
	"github.com/ansoraGROUP/dupaboard/internal/middleware"
	"github.com/ansoraGROUP/dupaboard/internal/repository"
	"github.com/ansoraGROUP/dupaboard/internal/session"
	"github.com/ansoraGROUP/dupaboard/internal/web"
)

// Deps are the collaborators the server is built from.
type Deps struct {
	Config      *config.Config
	Factory     repository.Factory
	Verifier    session.Verifier
	Refresher   session.Refresher
	AuthLimiter middleware.Limiter
	APILimiter  middleware.Limiter
}

type Server struct {
	mux         *http.ServeMux
	cfg         *config.Config
	factory     repository.Factory
	sessionAuth *middleware.SessionAuth
	authLimiter *middleware.RateLimit
	apiLimiter  *middleware.RateLimit
	metrics     *middleware.Metrics
	origins     map[string]bool
}

func New(d Deps) *Server {
	mux := http.NewServeMux()
	s := &Server{
		mux:         mux,
		cfg:         d.Config,
		factory:     d.Factory,
		sessionAuth: middleware.NewSessionAuth(d.Verifier, d.Refresher, d.Config.CookieSecure),
		authLimiter: middleware.NewRateLimit(d.AuthLimiter, "auth", d.Config.TrustProxy),
		apiLimiter:  middleware.NewRateLimit(d.APILimiter, "api", d.Config.TrustProxy),
		metrics:     middleware.NewMetrics(mux),
		origins:     allowedOrigins(d.Config.AllowedOrigins),
	}

	if d.Config.TaskAccess == config.TaskAccessPrivileged {
		slog.Warn("Task routes run with the service-role key and no session check; every caller sees every task",
			"task_access", d.Config.TaskAccess)
	}

	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return securityHeaders(s.cors(s.metrics.Middleware(s.mux)))
}

// securityHeaders adds security headers to every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")

		if isAPIRoute(r.URL.Path) {
			w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		} else {
			// The dashboard signs in against the platform directly from the browser.
			w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data: https:; connect-src 'self' http: https:; frame-ancestors 'none'")
		}

		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

func isAPIRoute(path string) bool {
	return strings.HasPrefix(path, "/api/") ||
		strings.HasPrefix(path, "/auth/") ||
		path == "/health" ||
		path == "/metrics"
}

// maxBody limits request body size.
func maxBody(next http.Handler, maxBytes int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerRoutes() {
	const bodyLimit = 1 << 20

	api := func(h http.HandlerFunc) http.Handler {
		return s.apiLimiter.Middleware(maxBody(h, bodyLimit))
	}
	guarded := func(h http.HandlerFunc) http.Handler {
		return s.apiLimiter.Middleware(s.sessionAuth.Middleware(maxBody(h, bodyLimit)))
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	if s.cfg.MetricsEnabled {
		s.mux.Handle("GET /metrics", promhttp.Handler())
	}

	// Session cookies (no session required, rate-limited)
	s.mux.Handle("POST /auth/callback", s.authLimiter.Middleware(maxBody(http.HandlerFunc(s.handleAuthCallback), bodyLimit)))
	s.mux.Handle("POST /auth/logout", s.authLimiter.Middleware(http.HandlerFunc(s.handleLogout)))

	s.mux.Handle("GET /api/config", api(s.handlePublicConfig))
	s.mux.Handle("GET /api/me", guarded(s.handleMe))

	// Projects (owner-scoped)
	s.mux.Handle("GET /api/projects", guarded(s.handleListProjects))
	s.mux.Handle("POST /api/projects", guarded(s.handleCreateProject))
	s.mux.Handle("PATCH /api/projects/{id}", guarded(s.handleUpdateProject))
	s.mux.Handle("DELETE /api/projects/{id}", guarded(s.handleDeleteProject))
	s.mux.Handle("PATCH /api/projects/{$}", api(s.handleMissingProjectID))
	s.mux.Handle("DELETE /api/projects/{$}", api(s.handleMissingProjectID))

	// Tasks
	if s.cfg.TaskAccess == config.TaskAccessPrivileged {
		s.mux.Handle("GET /api/tasks", api(s.handleListAllTasks))
		s.mux.Handle("POST /api/tasks", api(s.handleCreateTaskPrivileged))
	} else {
		s.mux.Handle("GET /api/tasks", guarded(s.handleListTasks))
		s.mux.Handle("POST /api/tasks", guarded(s.handleCreateTask))
	}

	s.mux.Handle("GET /{$}", web.Handler())
}

// allowedOrigins returns the origins permitted to send credentials.
func allowedOrigins(configured []string) map[string]bool {
	origins := map[string]bool{
		"http://localhost:3000": true,
		"http://localhost:3001": true,
	}
	for _, o := range configured {
		origins[o] = true
	}
	return origins
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		// Cookies only flow to whitelisted origins.
		if origin != "" && s.origins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
			w.Header().Set("Access-Control-Max-Age", "86400")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
