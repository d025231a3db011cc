// Package wakeup carries "work was enqueued" signals from producers to the
// supervisor so it can drain without waiting for the next tick. Signals are
// hints: they coalesce and may be dropped.
package wakeup

import (
	"context"
	"sync"
)

// Subscriber delivers wake-up signals until ctx is done, then closes the
// returned channel.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan struct{}, error)
}

// Local is an in-process Notifier and Subscriber.
type Local struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

// NewLocal creates a Local signal hub.
func NewLocal() *Local {
	return &Local{subs: make(map[chan struct{}]struct{})}
}

// Notify signals every subscriber. A subscriber with a signal already
// pending does not get a second one.
func (l *Local) Notify(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ch := range l.subs {
		signal(ch)
	}
	return nil
}

func (l *Local) Subscribe(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	l.mu.Lock()
	l.subs[ch] = struct{}{}
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		delete(l.subs, ch)
		close(ch)
		l.mu.Unlock()
	}()
	return ch, nil
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
