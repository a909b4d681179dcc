package routes

import (
	"net/http"
	"time"

	"github.com/NathanYKo/RAG-Document-System/app"
	"github.com/NathanYKo/RAG-Document-System/middleware"
	"github.com/NathanYKo/RAG-Document-System/utils"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public surface
	r.Get("/", deps.HealthHandler.HandleRoot)
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)

	// Registration and login are the only unauthenticated writes; both
	// are throttled per client IP.
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimit.LimitByIP)
		r.Post("/auth/register", deps.AuthHandler.HandleRegister)
		r.Post("/auth/token", deps.AuthHandler.HandleLogin)
	})

	// Everything below requires a bearer token or an API key
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)

		r.Get("/users/me", deps.AuthHandler.HandleProfile)
		r.With(deps.Auth.RequireAdmin).Get("/users", deps.AuthHandler.HandleListUsers)

		r.Route("/documents", func(r chi.Router) {
			r.With(deps.Auth.RequirePermission(middleware.PermissionUpload)).
				Post("/upload", deps.DocumentHandler.HandleUpload)
			r.Get("/", deps.DocumentHandler.HandleList)
			r.Get("/{id}", deps.DocumentHandler.HandleGet)
			r.Delete("/{id}", deps.DocumentHandler.HandleDelete)
		})

		r.With(deps.Auth.RequirePermission(middleware.PermissionQuery), deps.RateLimit.LimitAuthenticated).
			Post("/query", deps.QueryHandler.HandleQuery)
		r.Get("/queries", deps.QueryHandler.HandleHistory)

		r.Post("/feedback", deps.FeedbackHandler.HandleCreate)
		r.Get("/feedback", deps.FeedbackHandler.HandleList)

		r.Route("/api-keys", func(r chi.Router) {
			r.Post("/", deps.APIKeyHandler.HandleCreate)
			r.Get("/", deps.APIKeyHandler.HandleList)
			r.Delete("/{id}", deps.APIKeyHandler.HandleRevoke)
		})

		r.Post("/evaluate", deps.EvaluationHandler.HandleEvaluate)

		// Experiment management is admin-only; assignment and result
		// recording are open to any authenticated caller.
		r.Route("/ab-tests", func(r chi.Router) {
			r.With(deps.Auth.RequireAdmin).Post("/", deps.EvaluationHandler.HandleCreateTest)
			r.With(deps.Auth.RequireAdmin).Get("/", deps.EvaluationHandler.HandleListTests)
			r.With(deps.Auth.RequireAdmin).Get("/{name}", deps.EvaluationHandler.HandleGetTest)
			r.Get("/{name}/variant", deps.EvaluationHandler.HandleVariant)
			r.Post("/{name}/results", deps.EvaluationHandler.HandleRecordResult)
			r.With(deps.Auth.RequireAdmin).Get("/{name}/analysis", deps.EvaluationHandler.HandleAnalysis)
			r.With(deps.Auth.RequireAdmin).Post("/{name}/end", deps.EvaluationHandler.HandleEndTest)
		})

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireAdmin)
			r.Get("/admin/stats", deps.AdminHandler.HandleSystemStats)
			r.Get("/metrics/performance", deps.AdminHandler.HandlePerformance)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "The requested endpoint does not exist")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed for this endpoint", nil)
	})

	return r
}
