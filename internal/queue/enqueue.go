package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sungwon/mailqueue/internal/metrics"
	"github.com/sungwon/mailqueue/internal/provider"
)

// EnqueueParams describes one send request.
type EnqueueParams struct {
	RecipientEmail string
	RecipientName  string
	TemplateType   string
	TemplateData   map[string]any
	Priority       Priority
	ScheduledFor   time.Time
	NotificationID *uuid.UUID
	Metadata       map[string]any
	MaxAttempts    int
}

// Enqueue compiles the template and persists a pending entry carrying the
// compiled content. Any failure is returned as *EnqueueError and nothing is
// stored.
func (p *Processor) Enqueue(ctx context.Context, params EnqueueParams) (uuid.UUID, error) {
	fail := func(err error) (uuid.UUID, error) {
		return uuid.Nil, &EnqueueError{TemplateType: params.TemplateType, Err: err}
	}

	recipient := strings.TrimSpace(params.RecipientEmail)
	if recipient == "" {
		return fail(ErrInvalidRecipient)
	}
	if err := provider.ValidateAddress(recipient); err != nil {
		return fail(fmt.Errorf("%w: %q: %v", ErrInvalidRecipient, recipient, err))
	}

	priority := params.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	if !priority.Valid() {
		return fail(fmt.Errorf("%w: %q", ErrInvalidPriority, priority))
	}

	content, err := p.compiler.Compile(ctx, params.TemplateType, params.TemplateData)
	if err != nil {
		return fail(err)
	}

	now := p.now()
	scheduled := params.ScheduledFor
	if scheduled.IsZero() {
		scheduled = now
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = p.cfg.MaxAttempts
	}

	e := &Email{
		ID:             uuid.New(),
		NotificationID: params.NotificationID,
		RecipientEmail: recipient,
		RecipientName:  params.RecipientName,
		TemplateType:   params.TemplateType,
		TemplateData:   params.TemplateData,
		Subject:        content.Subject,
		HTMLContent:    content.HTML,
		TextContent:    content.Text,
		Priority:       priority,
		Status:         StatusPending,
		MaxAttempts:    maxAttempts,
		ScheduledFor:   scheduled,
		Metadata:       params.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := p.store.Insert(ctx, e); err != nil {
		return fail(fmt.Errorf("insert: %w", err))
	}

	metrics.EmailsEnqueuedTotal.WithLabelValues(params.TemplateType).Inc()
	p.log.Info().
		Str("email_id", e.ID.String()).
		Str("template_type", e.TemplateType).
		Str("priority", string(priority)).
		Time("scheduled_for", scheduled).
		Msg("email enqueued")

	if p.notifier != nil {
		if err := p.notifier.Notify(ctx); err != nil {
			p.log.Warn().Err(err).Msg("wake-up notify failed")
		}
	}
	return e.ID, nil
}
