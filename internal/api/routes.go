package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all routes.
func SetupRoutes(h *Handlers, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if h.health != nil {
		r.Get("/health", h.health.HandleHealth)
		r.Get("/health/live", h.health.HandleLiveness)
		r.Get("/health/ready", h.health.HandleReadiness)
	} else {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	}

	r.Post("/webhooks/gateway/{instance}", h.HandleGatewayWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Post("/campaigns", h.CreateCampaign)
		r.Get("/campaigns/{id}", h.GetCampaign)
		r.Post("/campaigns/{id}/resume", h.ResumeCampaign)
		r.Post("/campaigns/{id}/pause", h.PauseCampaign)
		r.Get("/review-queue", h.ListReviewQueue)

		r.Get("/accounts/{id}/warmup", h.GetWarmup)
		r.Post("/accounts/{id}/warmup", h.StartWarmup)
		r.Put("/accounts/{id}/warmup", h.OverrideWarmup)

		r.Post("/tasks/{name}", h.TriggerTask)
	})

	return r
}
