package wakeup

import (
	"context"
	"testing"
	"time"
)

func TestLocal_NotifyCoalesces(t *testing.T) {
	l := NewLocal()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := l.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		if err := l.Notify(ctx); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no signal received")
	}
	select {
	case <-ch:
		t.Fatal("signals were not coalesced")
	default:
	}
}

func TestLocal_FansOutAndCloses(t *testing.T) {
	l := NewLocal()
	ctx, cancel := context.WithCancel(context.Background())

	a, _ := l.Subscribe(ctx)
	b, _ := l.Subscribe(ctx)
	_ = l.Notify(context.Background())

	for name, ch := range map[string]<-chan struct{}{"a": a, "b": b} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s missed signal", name)
		}
	}

	cancel()
	for name, ch := range map[string]<-chan struct{}{"a": a, "b": b} {
		select {
		case _, ok := <-ch:
			if ok {
				t.Errorf("subscriber %s received after cancel", name)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s not closed", name)
		}
	}

	// Notify after every subscriber left must not block or panic.
	if err := l.Notify(context.Background()); err != nil {
		t.Fatal(err)
	}
}
