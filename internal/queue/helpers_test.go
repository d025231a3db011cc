package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/mailqueue/internal/provider"
	"github.com/sungwon/mailqueue/internal/template"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// scriptedProvider replays results in order, then repeats the last one.
// A nil script entry means success.
type scriptedProvider struct {
	mu      sync.Mutex
	script  []error
	calls   int
	sent    []*provider.Message
	panicOn int
	delay   time.Duration
}

func (p *scriptedProvider) Send(ctx context.Context, msg *provider.Message) (*provider.DeliveryResult, error) {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	p.calls++
	call := p.calls
	var err error
	if len(p.script) > 0 {
		idx := call - 1
		if idx >= len(p.script) {
			idx = len(p.script) - 1
		}
		err = p.script[idx]
	}
	p.sent = append(p.sent, msg)
	p.mu.Unlock()

	if p.panicOn == call {
		panic("provider exploded")
	}
	if err != nil {
		return nil, err
	}
	return &provider.DeliveryResult{
		ProviderMessageID: "msg-" + msg.ID,
		Status:            provider.StatusSent,
		Timestamp:         time.Now(),
	}, nil
}

func (p *scriptedProvider) GetName() string { return "scripted" }

func (p *scriptedProvider) HealthCheck(context.Context) error { return nil }

func (p *scriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *scriptedProvider) Sent() []*provider.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*provider.Message, len(p.sent))
	copy(out, p.sent)
	return out
}

var errTransient = &provider.ProviderError{Provider: "scripted", StatusCode: 503, Message: "service unavailable"}

// stubCompiler renders a fixed snapshot and fails for the "missing" type.
type stubCompiler struct {
	mu    sync.Mutex
	calls int
}

func (c *stubCompiler) Compile(_ context.Context, templateType string, vars map[string]any) (*template.Content, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	switch templateType {
	case "missing":
		return nil, template.ErrTemplateNotFound
	case "broken":
		return nil, errors.Join(template.ErrTemplateCompile, errors.New("empty subject"))
	}
	return &template.Content{
		Subject: "Subject " + templateType,
		HTML:    "<p>" + templateType + "</p>",
		Text:    templateType,
	}, nil
}

var testNow = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func newTestProcessor(store Store, p provider.Provider, clock *fakeClock, opts ...Option) *Processor {
	cfg := Config{
		BatchSize:   10,
		Concurrency: 3,
		MaxAttempts: 3,
		SendTimeout: 5 * time.Second,
		StaleAfter:  10 * time.Minute,
		FromEmail:   "no-reply@example.com",
		FromName:    "Directory",
	}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewProcessor(store, &stubCompiler{}, p, cfg, zerolog.Nop(), opts...)
}

func enqueue(p *Processor, recipient, templateType string, priority Priority) (*Email, error) {
	ctx := context.Background()
	id, err := p.Enqueue(ctx, EnqueueParams{
		RecipientEmail: recipient,
		RecipientName:  "Ada Lovelace",
		TemplateType:   templateType,
		TemplateData:   map[string]any{"user": map[string]any{"name": "Ada"}},
		Priority:       priority,
	})
	if err != nil {
		return nil, err
	}
	return p.Get(ctx, id)
}
