// Package api serves the queue over HTTP: enqueue, entry lookup, manual
// drain, stats, in-app notifications, supervisor control, health and
// metrics.
package api

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sungwon/mailqueue/internal/auth"
)

// Deps are the router's collaborators. Notifications, DB, ProviderHealth
// and Supervisor are optional.
type Deps struct {
	Emails         EmailService
	Notifications  NotificationSender
	Supervisor     Lifecycle
	DB             Pinger
	ProviderHealth ProviderHealth
	ProviderName   string
	APIKeys        []string
	// BaseContext outlives requests; supervisor starts run under it.
	BaseContext context.Context
}

// NewRouter creates a chi.Mux with all routes, middleware, and handlers configured.
func NewRouter(deps Deps, log zerolog.Logger) *chi.Mux {
	base := deps.BaseContext
	if base == nil {
		base = context.Background()
	}

	r := chi.NewRouter()

	r.Use(CorrelationIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(RecoverMiddleware(log))
	r.Use(MetricsMiddleware)

	r.Get("/healthz", HealthzHandler())
	r.Get("/readyz", ReadyzHandler(deps.DB, deps.ProviderHealth, deps.ProviderName))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.BearerAuth(log, deps.APIKeys...))

		r.Post("/emails", EnqueueEmailHandler(deps.Emails))
		r.Get("/emails/{id}", GetEmailHandler(deps.Emails))
		r.Get("/emails/{id}/events", ListEmailEventsHandler(deps.Emails))

		if deps.Notifications != nil {
			r.Post("/notifications", CreateNotificationHandler(deps.Notifications))
		}

		r.Post("/queue/process", ProcessQueueHandler(deps.Emails))
		r.Get("/queue/stats", QueueStatsHandler(deps.Emails))

		if deps.Supervisor != nil {
			r.Get("/supervisor", SupervisorStatusHandler(deps.Supervisor))
			r.Post("/supervisor/start", StartSupervisorHandler(base, deps.Supervisor))
			r.Post("/supervisor/stop", StopSupervisorHandler(deps.Supervisor))
		}
	})

	return r
}
