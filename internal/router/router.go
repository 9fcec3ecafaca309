package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/mfigueiredo/person-registry/internal/api/person"
)

// Config contains dependencies needed for the router setup
type Config struct {
	PersonHandler          *person.PersonHandler
	AuthenticateMiddleware func(http.Handler) http.Handler
}

// SetupRouter initializes and configures the main application router.
// Server-wide middleware (logger, requestID, recoverer) are expected to be
// applied before mounting this router in main.go.
func SetupRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes: registration and login issue no credentials upfront.
		r.Group(func(r chi.Router) {
			r.Post("/persons", cfg.PersonHandler.Create)
			r.Post("/persons/login", cfg.PersonHandler.Login)
		})

		// Everything else requires a bearer token.
		r.Group(func(r chi.Router) {
			r.Use(cfg.AuthenticateMiddleware)

			r.Get("/persons", cfg.PersonHandler.List)
			r.Get("/persons/{id}", cfg.PersonHandler.GetByID)
			r.Patch("/persons/{id}", cfg.PersonHandler.Update)
			r.Delete("/persons/{id}", cfg.PersonHandler.Delete)
		})
	})

	return r
}
