package provider

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestHealthChecker_UnknownProviderIsUnhealthy(t *testing.T) {
	hc := NewHealthChecker(NewRegistry(), 0)
	if hc.IsHealthy("nonexistent") {
		t.Error("expected unknown provider to be unhealthy")
	}
}

func TestHealthChecker_ThresholdAndRecovery(t *testing.T) {
	r := NewRegistry()
	mp := &mockProvider{name: "p", err: errors.New("down")}
	r.Register(mp)
	hc := NewHealthChecker(r, time.Hour)
	ctx := context.Background()

	for i := 1; i < unhealthyThreshold; i++ {
		hc.checkAll(ctx)
		if !hc.IsHealthy("p") {
			t.Fatalf("unhealthy after %d failures, threshold is %d", i, unhealthyThreshold)
		}
	}
	hc.checkAll(ctx)
	if hc.IsHealthy("p") {
		t.Fatal("expected unhealthy at threshold")
	}
	status, _ := hc.GetStatus("p")
	if status.LastError != "down" || status.ConsecutiveFailures != unhealthyThreshold {
		t.Errorf("status = %+v", status)
	}

	mp.err = nil
	hc.checkAll(ctx)
	if !hc.IsHealthy("p") {
		t.Error("one success should restore health")
	}
}

func TestHealthChecker_StartStop(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockProvider{name: "p"})
	hc := NewHealthChecker(r, time.Hour)

	hc.Start(context.Background())
	if !hc.IsHealthy("p") {
		t.Error("Start should run an initial check")
	}
	hc.Stop()
	hc.Stop()
}
