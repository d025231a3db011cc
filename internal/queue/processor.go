package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sungwon/mailqueue/internal/metrics"
	"github.com/sungwon/mailqueue/internal/preference"
	"github.com/sungwon/mailqueue/internal/provider"
	"github.com/sungwon/mailqueue/internal/template"
)

// Compiler produces the content snapshot for an entry at enqueue time.
type Compiler interface {
	Compile(ctx context.Context, templateType string, vars map[string]any) (*template.Content, error)
}

// NotificationMarker flags a domain notification record once its email is
// sent.
type NotificationMarker interface {
	MarkEmailSent(ctx context.Context, notificationID uuid.UUID, at time.Time) error
}

// Notifier is signalled after every successful enqueue so a listening
// supervisor can drain without waiting for its next tick.
type Notifier interface {
	Notify(ctx context.Context) error
}

// Config tunes a Processor.
type Config struct {
	BatchSize   int
	Concurrency int
	MaxAttempts int
	SendTimeout time.Duration
	StaleAfter  time.Duration
	FromEmail   string
	FromName    string
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 3
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 30 * time.Second
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 10 * time.Minute
	}
}

// Option configures optional Processor collaborators.
type Option func(*Processor)

// WithPreferences enables opt-out and quiet-hours checks.
func WithPreferences(l preference.Lookup) Option {
	return func(p *Processor) { p.prefs = l }
}

// WithNotificationMarker marks linked notifications after a send.
func WithNotificationMarker(m NotificationMarker) Option {
	return func(p *Processor) { p.notifications = m }
}

// WithNotifier signals n after each enqueue.
func WithNotifier(n Notifier) Option {
	return func(p *Processor) { p.notifier = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// Processor enqueues compiled entries and drains the queue through a
// delivery provider.
type Processor struct {
	store         Store
	compiler      Compiler
	provider      provider.Provider
	prefs         preference.Lookup
	notifications NotificationMarker
	notifier      Notifier
	cfg           Config
	log           zerolog.Logger
	now           func() time.Time

	draining atomic.Bool
}

// NewProcessor creates a Processor.
func NewProcessor(store Store, compiler Compiler, p provider.Provider, cfg Config, log zerolog.Logger, opts ...Option) *Processor {
	cfg.applyDefaults()
	if cfg.StaleAfter <= cfg.SendTimeout {
		log.Warn().
			Dur("stale_after", cfg.StaleAfter).
			Dur("send_timeout", cfg.SendTimeout).
			Msg("stale_after must exceed send_timeout, raising it")
		cfg.StaleAfter = 2 * cfg.SendTimeout
	}
	proc := &Processor{
		store:    store,
		compiler: compiler,
		provider: p,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(proc)
	}
	return proc
}

// BatchResult summarizes one ProcessQueue call.
type BatchResult struct {
	Skipped   bool `json:"skipped"`
	Selected  int  `json:"selected"`
	Claimed   int  `json:"claimed"`
	Conflicts int  `json:"conflicts"`
	Sent      int  `json:"sent"`
	Retried   int  `json:"retried"`
	Failed    int  `json:"failed"`
	Cancelled int  `json:"cancelled"`
	Deferred  int  `json:"deferred"`
	Errors    int  `json:"errors"`
}

type outcome string

const (
	outcomeSent      outcome = "sent"
	outcomeRetried   outcome = "retried"
	outcomeFailed    outcome = "failed"
	outcomeCancelled outcome = "cancelled"
	outcomeDeferred  outcome = "deferred"
	outcomeConflict  outcome = "conflict"
	outcomeError     outcome = "error"
)

func (r *BatchResult) record(o outcome) {
	switch o {
	case outcomeSent:
		r.Sent++
	case outcomeRetried:
		r.Retried++
	case outcomeFailed:
		r.Failed++
	case outcomeCancelled:
		r.Cancelled++
	case outcomeDeferred:
		r.Deferred++
	case outcomeConflict:
		r.Conflicts++
	default:
		r.Errors++
	}
}

// ProcessQueue selects up to batchSize ready entries, then claims and
// delivers each one with at most Concurrency in flight.
// A call made while another drain in this Processor is running returns
// immediately with Skipped set. batchSize <= 0 uses the configured size.
func (p *Processor) ProcessQueue(ctx context.Context, batchSize int) (BatchResult, error) {
	if !p.draining.CompareAndSwap(false, true) {
		metrics.BatchesSkippedTotal.Inc()
		p.log.Debug().Msg("drain already in progress, skipping")
		return BatchResult{Skipped: true}, nil
	}
	defer p.draining.Store(false)

	if batchSize <= 0 {
		batchSize = p.cfg.BatchSize
	}

	var result BatchResult
	now := p.now()
	entries, err := p.store.SelectReady(ctx, now, batchSize)
	if err != nil {
		return result, fmt.Errorf("select ready entries: %w", err)
	}
	result.Selected = len(entries)
	if len(entries) == 0 {
		return result, nil
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(p.cfg.Concurrency)
	for _, e := range entries {
		g.Go(func() error {
			o, claimed := p.claimAndProcess(ctx, e)
			if claimed {
				metrics.EmailsProcessedTotal.WithLabelValues(string(o)).Inc()
			}
			mu.Lock()
			if claimed {
				result.Claimed++
			}
			result.record(o)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	p.log.Info().
		Int("selected", result.Selected).
		Int("claimed", result.Claimed).
		Int("conflicts", result.Conflicts).
		Int("sent", result.Sent).
		Int("retried", result.Retried).
		Int("failed", result.Failed).
		Int("cancelled", result.Cancelled).
		Int("deferred", result.Deferred).
		Msg("batch processed")

	return result, nil
}

// claimAndProcess claims e just before working on it, so the time an entry
// spends in processing is bounded by one preference lookup and one send.
func (p *Processor) claimAndProcess(ctx context.Context, e *Email) (outcome, bool) {
	lease, ok, err := p.store.Claim(ctx, e.ID, p.now())
	if err != nil {
		p.log.Error().Err(err).Str("email_id", e.ID.String()).Msg("claim failed")
		return outcomeError, false
	}
	if !ok {
		metrics.ClaimConflictsTotal.Inc()
		return outcomeConflict, false
	}
	e.Status = StatusProcessing
	return p.processEntry(ctx, e, lease), true
}

// processEntry applies preference and quiet-hours policy to a claimed entry,
// then delivers it and records the outcome under lease.
func (p *Processor) processEntry(ctx context.Context, e *Email, lease Lease) outcome {
	log := p.log.With().
		Str("email_id", e.ID.String()).
		Str("template_type", e.TemplateType).
		Str("priority", string(e.Priority)).
		Logger()

	prefs := p.lookupPreferences(ctx, e, log)

	if !prefs.Allows(e.TemplateType) {
		reason := "recipient opted out of " + e.TemplateType
		if err := p.store.Cancel(ctx, lease, reason, p.now()); err != nil {
			return p.writeFailed(log, "cancel", err)
		}
		log.Info().Msg("email cancelled by recipient preference")
		return outcomeCancelled
	}

	if e.Priority != PriorityUrgent && prefs != nil && prefs.QuietHours != nil {
		if until, inside := prefs.QuietHours.DeferUntil(p.now()); inside {
			if err := p.store.Defer(ctx, lease, until, p.now()); err != nil {
				return p.writeFailed(log, "defer", err)
			}
			log.Info().Time("scheduled_for", until).Msg("email deferred by quiet hours")
			return outcomeDeferred
		}
	}

	result, sendErr := p.send(ctx, e)
	if sendErr == nil {
		now := p.now()
		if err := p.store.MarkSent(ctx, lease, result.ProviderMessageID, now); err != nil {
			return p.writeFailed(log, "mark sent", err)
		}
		log.Info().Str("provider_message_id", result.ProviderMessageID).Msg("email sent")
		p.markNotification(ctx, e, now, log)
		return outcomeSent
	}

	attempts := e.Attempts + 1
	errMsg := sendErr.Error()
	now := p.now()

	if attempts >= e.MaxAttempts {
		if err := p.store.MarkFailed(ctx, lease, attempts, errMsg, now); err != nil {
			return p.writeFailed(log, "mark failed", err)
		}
		log.Error().Err(sendErr).Int("attempts", attempts).Msg("email failed permanently")
		return outcomeFailed
	}

	delay := Backoff(attempts)
	if err := p.store.Retry(ctx, lease, attempts, now.Add(delay), errMsg, now); err != nil {
		return p.writeFailed(log, "retry", err)
	}
	log.Warn().
		Err(sendErr).
		Int("attempts", attempts).
		Bool("permanent", provider.IsPermanent(sendErr)).
		Dur("backoff", delay).
		Msg("email send failed, retry scheduled")
	return outcomeRetried
}

// lookupPreferences fails open: a lookup error is logged and the entry is
// processed as if the recipient had no preferences.
func (p *Processor) lookupPreferences(ctx context.Context, e *Email, log zerolog.Logger) *preference.Preferences {
	if p.prefs == nil {
		return nil
	}
	prefs, err := p.prefs.Get(ctx, e.RecipientEmail)
	if err != nil {
		log.Warn().Err(err).Msg("preference lookup failed, continuing without preferences")
		return nil
	}
	return prefs
}

// send calls the provider with the stored snapshot. Panics are recovered
// and returned as errors so every failure follows the same retry path.
func (p *Processor) send(ctx context.Context, e *Email) (result *provider.DeliveryResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("provider panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.SendTimeout)
	defer cancel()

	start := time.Now()
	result, err = p.provider.Send(ctx, p.buildMessage(e))
	metrics.SendDuration.WithLabelValues(p.provider.GetName()).Observe(time.Since(start).Seconds())
	if err == nil && result == nil {
		err = errors.New("provider returned no result")
	}
	return result, err
}

func (p *Processor) buildMessage(e *Email) *provider.Message {
	metadata := map[string]string{"queue_id": e.ID.String()}
	if e.NotificationID != nil {
		metadata["notification_id"] = e.NotificationID.String()
	}
	return &provider.Message{
		ID:       e.ID.String(),
		From:     p.cfg.FromEmail,
		FromName: p.cfg.FromName,
		To:       e.RecipientEmail,
		ToName:   e.RecipientName,
		Subject:  e.Subject,
		HTMLBody: e.HTMLContent,
		TextBody: e.TextContent,
		Tags: map[string]string{
			"template": e.TemplateType,
			"priority": string(e.Priority),
		},
		Metadata: metadata,
		Headers:  map[string]string{"X-Queue-ID": e.ID.String()},
	}
}

func (p *Processor) markNotification(ctx context.Context, e *Email, at time.Time, log zerolog.Logger) {
	if p.notifications == nil || e.NotificationID == nil {
		return
	}
	if err := p.notifications.MarkEmailSent(ctx, *e.NotificationID, at); err != nil {
		log.Error().Err(err).Str("notification_id", e.NotificationID.String()).Msg("failed to mark notification email sent")
	}
}

func (p *Processor) writeFailed(log zerolog.Logger, op string, err error) outcome {
	if errors.Is(err, ErrNotClaimed) {
		log.Warn().Err(err).Str("op", op).Msg("entry left processing state before write")
	} else {
		log.Error().Err(err).Str("op", op).Msg("status write failed")
	}
	return outcomeError
}

// Stats returns counts by status and refreshes the queue depth gauges.
func (p *Processor) Stats(ctx context.Context) (Stats, error) {
	st, err := p.store.Stats(ctx)
	if err != nil {
		return st, fmt.Errorf("queue stats: %w", err)
	}
	metrics.QueueDepth.WithLabelValues(string(StatusPending)).Set(float64(st.Pending))
	metrics.QueueDepth.WithLabelValues(string(StatusProcessing)).Set(float64(st.Processing))
	metrics.QueueDepth.WithLabelValues(string(StatusSent)).Set(float64(st.Sent))
	metrics.QueueDepth.WithLabelValues(string(StatusFailed)).Set(float64(st.Failed))
	metrics.QueueDepth.WithLabelValues(string(StatusCancelled)).Set(float64(st.Cancelled))
	return st, nil
}

// RecoverStale returns entries stuck in processing longer than StaleAfter to
// pending without counting an attempt.
func (p *Processor) RecoverStale(ctx context.Context) (int64, error) {
	now := p.now()
	n, err := p.store.RecoverStale(ctx, now.Add(-p.cfg.StaleAfter), now)
	if err != nil {
		return 0, fmt.Errorf("recover stale entries: %w", err)
	}
	if n > 0 {
		metrics.StaleRecoveredTotal.Add(float64(n))
		p.log.Warn().Int64("recovered", n).Msg("returned stale processing entries to pending")
	}
	return n, nil
}

// Get returns a single entry.
func (p *Processor) Get(ctx context.Context, id uuid.UUID) (*Email, error) {
	return p.store.Get(ctx, id)
}

// Events returns the audit events for an entry.
func (p *Processor) Events(ctx context.Context, id uuid.UUID) ([]Event, error) {
	return p.store.Events(ctx, id)
}
