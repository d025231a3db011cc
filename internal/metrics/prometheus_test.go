package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsRegistered(t *testing.T) {
	tests := []struct {
		name   string
		metric prometheus.Collector
	}{
		{"EmailsEnqueuedTotal", EmailsEnqueuedTotal},
		{"EmailsProcessedTotal", EmailsProcessedTotal},
		{"SendDuration", SendDuration},
		{"ClaimConflictsTotal", ClaimConflictsTotal},
		{"BatchesSkippedTotal", BatchesSkippedTotal},
		{"QueueDepth", QueueDepth},
		{"StaleRecoveredTotal", StaleRecoveredTotal},
		{"SupervisorRunning", SupervisorRunning},
		{"SupervisorRestartsTotal", SupervisorRestartsTotal},
		{"APIRequestsTotal", APIRequestsTotal},
		{"APIRequestDuration", APIRequestDuration},
		{"APIAuthFailuresTotal", APIAuthFailuresTotal},
		{"DBConnectionsActive", DBConnectionsActive},
		{"DBConnectionsIdle", DBConnectionsIdle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.metric == nil {
				t.Errorf("%s is nil", tt.name)
			}
		})
	}
}

func TestQueueCounters(t *testing.T) {
	EmailsEnqueuedTotal.WithLabelValues("welcome").Inc()
	for _, outcome := range []string{"sent", "retried", "failed", "cancelled", "deferred"} {
		EmailsProcessedTotal.WithLabelValues(outcome).Inc()
	}
	SendDuration.WithLabelValues("stdout").Observe(0.01)
}

func TestQueueDepthGauge(t *testing.T) {
	QueueDepth.WithLabelValues("pending").Set(12)
	QueueDepth.WithLabelValues("processing").Set(0)
}

func TestSupervisorGauge(t *testing.T) {
	SupervisorRunning.Set(1)
	SupervisorRestartsTotal.Inc()
	SupervisorRunning.Set(0)
}
