package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/heirloom-app/heirloom/infrastructure/di"
	"github.com/heirloom-app/heirloom/interfaces/http/rest/handlers"
	"github.com/heirloom-app/heirloom/interfaces/http/rest/middleware"
	"github.com/heirloom-app/heirloom/pkg/observability"
)

// Router creates and configures the HTTP router
type Router struct {
	container *di.Container
	metrics   *observability.Collector
}

// NewRouter creates a new router instance
func NewRouter(container *di.Container) *Router {
	return &Router{
		container: container,
		metrics:   observability.NewCollector("heirloom"),
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	c := rt.container
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(c.Logger))
	if c.Config.EnableMetrics {
		router.Use(middleware.Metrics(rt.metrics))
	}

	if c.Config.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"http://localhost:3000", "https://*.heirloom.app"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	router.Get("/healthz", rt.healthCheck)
	if c.Config.EnableMetrics {
		router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(
			rt.metrics.GetRegistry(),
			promhttp.HandlerOpts{},
		))
	}

	authHandler := handlers.NewAuthHandler(c.AuthService, c.Logger)
	spaceHandler := handlers.NewSpaceHandler(c.SpaceService, c.Logger)
	treeHandler := handlers.NewTreeHandler(c.TreeService, rt.metrics, c.Logger)
	versionHandler := handlers.NewVersionHandler(c.VersionService, rt.metrics, c.Logger)

	router.Route("/api/v1", func(r chi.Router) {
		// Public endpoints
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Get("/spaces", spaceHandler.List)

		// Authenticated endpoints
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(c.TokenManager, c.RateLimiter, c.Logger))

			r.Post("/spaces", spaceHandler.Create)
			r.Post("/spaces/select", authHandler.SelectSpace)

			r.Route("/tree", func(r chi.Router) {
				r.Get("/", treeHandler.GetTree)
				r.Post("/save", versionHandler.Save)
				r.Post("/recover", versionHandler.Recover)
				r.Get("/versions", versionHandler.List)
				r.Get("/unsaved", versionHandler.Unsaved)
				r.Post("/move", treeHandler.MoveMember)

				r.Route("/members", func(r chi.Router) {
					r.Post("/", treeHandler.CreateMember)
					r.Get("/{memberID}", treeHandler.GetMember)
					r.Patch("/{memberID}", treeHandler.UpdateMember)
					r.Delete("/{memberID}", treeHandler.DeleteMember)
					r.Post("/{memberID}/spouse", treeHandler.SetSpouse)
				})
			})
		})
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}
