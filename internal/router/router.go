package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	appMiddleware "github.com/FACorreiaa/go-itinerary-planner/app/middleware"
	"github.com/FACorreiaa/go-itinerary-planner/internal/api/itinerary"
)

// Config contains dependencies needed for the router setup
type Config struct {
	ItineraryHandler *itinerary.HandlerImpl
	AllowedOrigins   []string
}

// SetupRouter mounts the API routes. Request id, logging and recovery
// middleware are applied by the caller.
func SetupRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", appMiddleware.SessionHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	})

	r.Route("/api/v1/itinerary", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))
		r.Use(appMiddleware.SessionKey)

		r.Post("/chat", cfg.ItineraryHandler.Chat)
		r.Post("/rounds", cfg.ItineraryHandler.Rounds)
		r.Get("/plans/{key}", cfg.ItineraryHandler.GetPlan)
		r.Put("/plans/{key}", cfg.ItineraryHandler.PutPlan)
	})

	return r
}
