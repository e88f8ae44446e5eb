package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/sekolahku/merit/internal/auth"
	"github.com/sekolahku/merit/internal/domain"
	"github.com/sekolahku/merit/internal/metrics"
)

// Role groups for route protection.
var (
	rolesAdmin = []domain.Role{domain.RoleAdmin}
	rolesStaff = []domain.Role{domain.RoleAdmin, domain.RoleTeacher}
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker func(ctx context.Context) error

// Router assembles the HTTP API.
type Router struct {
	userHandler   *UserHandler
	pointHandler  *PointHandler
	questHandler  *QuestHandler
	appealHandler *AppealHandler
	authHandler   *AuthHandler
	auditHandler  *AuditHandler
	tokens        *auth.TokenService
	metrics       *metrics.Metrics
	healthChecks  map[string]HealthChecker
	rateLimitRPS  float64
	rateLimitBst  int
	logger        zerolog.Logger
}

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	UserHandler   *UserHandler
	PointHandler  *PointHandler
	QuestHandler  *QuestHandler
	AppealHandler *AppealHandler
	AuthHandler   *AuthHandler
	AuditHandler  *AuditHandler
	Tokens        *auth.TokenService
	Metrics       *metrics.Metrics
	HealthChecks  map[string]HealthChecker
	RateLimitRPS  float64
	RateLimitBst  int
	Logger        zerolog.Logger
}

// NewRouter creates a new Router.
func NewRouter(config RouterConfig) *Router {
	return &Router{
		userHandler:   config.UserHandler,
		pointHandler:  config.PointHandler,
		questHandler:  config.QuestHandler,
		appealHandler: config.AppealHandler,
		authHandler:   config.AuthHandler,
		auditHandler:  config.AuditHandler,
		tokens:        config.Tokens,
		metrics:       config.Metrics,
		healthChecks:  config.HealthChecks,
		rateLimitRPS:  config.RateLimitRPS,
		rateLimitBst:  config.RateLimitBst,
		logger:        config.Logger.With().Str("component", "router").Logger(),
	}
}

// Handler returns the main HTTP handler.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(rt.logger))
	if rt.metrics != nil {
		r.Use(Metrics(rt.metrics))
	}
	if rt.rateLimitRPS > 0 {
		r.Use(RateLimit(rt.rateLimitRPS, rt.rateLimitBst))
	}

	r.Get("/health", rt.handleHealth)
	if rt.metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		rt.authHandler.RegisterPublicRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(rt.tokens))

			rt.userHandler.RegisterRoutes(r)
			rt.pointHandler.RegisterRoutes(r)
			rt.questHandler.RegisterRoutes(r)
			rt.appealHandler.RegisterRoutes(r)
			rt.authHandler.RegisterRoutes(r)
			rt.auditHandler.RegisterRoutes(r)
		})
	})

	return r
}

// handleHealth reports the health of the service and its dependencies.
func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(rt.healthChecks))
	for name, check := range rt.healthChecks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "degraded"
	}

	writeJSON(w, status, map[string]any{
		"status": overall,
		"checks": checks,
	})
}
