package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/sungwon/mailqueue/internal/logger"
)

const (
	defaultBatchSize = 10
	maxBatchSize     = 100
)

// Lifecycle is the supervisor control surface.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop()
	Running() bool
}

// ProcessQueueHandler handles POST /api/v1/queue/process?batch_size=N.
func ProcessQueueHandler(svc EmailService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		batchSize := defaultBatchSize
		if raw := r.URL.Query().Get("batch_size"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > maxBatchSize {
				respondError(w, http.StatusBadRequest, "batch_size must be between 1 and 100")
				return
			}
			batchSize = n
		}

		res, err := svc.ProcessQueue(r.Context(), batchSize)
		if err != nil {
			log := logger.FromContext(r.Context())
			log.Error().Err(err).Msg("manual drain failed")
			respondError(w, http.StatusInternalServerError, "failed to process queue")
			return
		}
		respondJSON(w, http.StatusOK, res)
	}
}

// QueueStatsHandler handles GET /api/v1/queue/stats.
func QueueStatsHandler(svc EmailService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := svc.Stats(r.Context())
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to read queue stats")
			return
		}
		respondJSON(w, http.StatusOK, st)
	}
}

// SupervisorStatusHandler handles GET /api/v1/supervisor.
func SupervisorStatusHandler(sup Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]bool{"running": sup.Running()})
	}
}

// StartSupervisorHandler handles POST /api/v1/supervisor/start. The
// supervisor runs under base, not the request context.
func StartSupervisorHandler(base context.Context, sup Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := sup.Start(base); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to start supervisor")
			return
		}
		respondJSON(w, http.StatusOK, map[string]bool{"running": sup.Running()})
	}
}

// StopSupervisorHandler handles POST /api/v1/supervisor/stop.
func StopSupervisorHandler(sup Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sup.Stop()
		respondJSON(w, http.StatusOK, map[string]bool{"running": sup.Running()})
	}
}
