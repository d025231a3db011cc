package api

import (
	"context"
	"net/http"
)

// Pinger checks a dependency's connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProviderHealth reports the last health check result per provider.
type ProviderHealth interface {
	IsHealthy(name string) bool
}

// HealthzHandler handles GET /healthz.
// Always returns 200 OK with {"status":"ok"}.
func HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler handles GET /readyz. It checks database connectivity when
// db is set and the delivery provider's health when health is set.
// Returns 503 with Retry-After when either is down.
func ReadyzHandler(db Pinger, health ProviderHealth, providerName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				w.Header().Set("Retry-After", "30")
				respondError(w, http.StatusServiceUnavailable, "database unavailable")
				return
			}
		}
		if health != nil && !health.IsHealthy(providerName) {
			w.Header().Set("Retry-After", "30")
			respondError(w, http.StatusServiceUnavailable, "provider "+providerName+" unhealthy")
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
