/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:      Unique ID per request, read by the two below
  2. RequestLogging: One structured line per request
  3. Recovery:       Panic recovery (500 instead of crash)
  4. CORS:           Cross-origin requests from RouterConfig.CORSOrigins
  5. Idempotency:    POST /api/bookings and the payment webhook only

ROUTE GROUPS:
  /api/sessions/*       Session catalog and lifecycle
  /api/bookings/*       Reservations, cancellation, join window
  /api/webhooks/*       Payment processor callbacks
  /api/policy           Active refund/reschedule policy
  /api/scenarios/*      Demo scenarios
  /healthz              Liveness and database check

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/session-engine/logger"
)

// RouterConfig carries the cross-cutting pieces the router needs.
type RouterConfig struct {
	Logger      *logger.Logger
	CORSOrigins []string

	// Idempotency may be nil, which turns off response replay.
	Idempotency IdempotencyStore
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r.Use(middleware.RequestID)
	r.Use(RequestLogging(cfg.Logger))
	r.Use(Recovery(cfg.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", IdempotencyHeader},
		ExposedHeaders:   []string{"Idempotent-Replayed"},
		AllowCredentials: true,
	}))

	replay := func(next http.Handler) http.Handler { return next }
	if cfg.Idempotency != nil {
		replay = Idempotency(cfg.Idempotency, IdempotencyHeader)
	}

	r.Get("/healthz", h.Healthz)

	r.Route("/api", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.ListSessions)
			r.Post("/", h.CreateSession)
			r.Get("/{id}", h.GetSession)
			r.Post("/{id}/start", h.StartSession)
			r.Post("/{id}/complete", h.CompleteSession)
			r.Post("/{id}/cancel", h.CancelSession)
			r.Post("/{id}/reschedule", h.RescheduleSession)
			r.Get("/{id}/reschedules", h.ListReschedules)
		})

		r.Route("/bookings", func(r chi.Router) {
			r.Get("/", h.ListBookings)
			r.With(replay).Post("/", h.CreateBooking)
			r.Get("/{id}", h.GetBooking)
			r.Post("/{id}/cancel", h.CancelBooking)
			r.Get("/{id}/join", h.GetJoinStatus)
		})

		r.With(replay).Post("/webhooks/payments", h.PaymentWebhook)
		r.Get("/policy", h.GetPolicy)

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
