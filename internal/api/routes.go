package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the router.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://realtechee.com", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (no auth required)
	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		// Signal ingestion: the pipeline's front door.
		r.Post("/signals", h.IngestSignal)
		r.Get("/signals/{id}", h.GetSignal)

		// Direct enqueue, bypassing hooks.
		r.Post("/notifications", h.EnqueueNotification)
		r.Get("/notifications/{id}", h.GetNotification)
		r.Get("/notifications/{id}/events", h.NotificationEvents)
		r.Get("/notifications", h.ListNotifications)

		r.Route("/hooks", func(r chi.Router) {
			r.Get("/", h.ListHooks)
			r.Post("/", h.CreateHook)
			r.Get("/{id}", h.GetHook)
			r.Put("/{id}", h.UpdateHook)
			r.Delete("/{id}", h.DeleteHook)
		})

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", h.ListTemplates)
			r.Post("/", h.CreateTemplate)
			r.Get("/{id}", h.GetTemplate)
			r.Put("/{id}", h.UpdateTemplate)
			r.Delete("/{id}", h.DeactivateTemplate)
		})

		r.Route("/suppressions", func(r chi.Router) {
			r.Get("/", h.ListSuppressions)
			r.Post("/", h.CreateSuppression)
			r.Delete("/", h.DeleteSuppression)
			r.Get("/stats", h.SuppressionStats)
		})

		r.Get("/events", h.ListEvents)
		r.Get("/queue/depth", h.QueueDepth)
		r.Get("/reputation/{provider}", h.ReputationHistory)
	})

	// Provider webhooks (no auth; signature checks are the provider's).
	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/ses", h.SESWebhook)
		r.Post("/sms", h.SMSWebhook)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	})

	return r
}
