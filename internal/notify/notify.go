// Package notify holds the producer-facing adapters. Each one maps a domain
// event to a template type and variables and enqueues it; none of them
// talk to a provider.
package notify

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/mailqueue/internal/queue"
	"github.com/sungwon/mailqueue/internal/storage"
	"github.com/sungwon/mailqueue/internal/template"
)

const (
	reviewExcerptLen  = 140
	messagePreviewLen = 100
)

// Enqueuer is the queue's enqueue API.
type Enqueuer interface {
	Enqueue(ctx context.Context, params queue.EnqueueParams) (uuid.UUID, error)
}

// Recorder persists in-app notifications so their email copy can be
// linked back.
type Recorder interface {
	Create(ctx context.Context, n *storage.Notification) error
}

// User identifies a recipient or actor.
type User struct {
	Email string
	Name  string
}

// Business is a directory listing.
type Business struct {
	ID   string
	Name string
	Slug string
}

// Review is a customer review of a business.
type Review struct {
	ID     string
	Author string
	Rating int
	Text   string
}

// Message is a direct message between users.
type Message struct {
	ThreadID string
	Body     string
}

// Alert is a generic in-app notification with an email copy.
type Alert struct {
	Title     string
	Message   string
	ActionURL string
	Priority  queue.Priority
}

// Option configures Adapters.
type Option func(*Adapters)

// WithRecorder stores a notification row for every Notification call.
func WithRecorder(r Recorder) Option {
	return func(a *Adapters) { a.recorder = r }
}

// Adapters enqueues transactional email for domain events.
type Adapters struct {
	queue    Enqueuer
	recorder Recorder
	baseURL  string
	log      zerolog.Logger
}

// New creates Adapters. baseURL builds links to listings and threads.
func New(q Enqueuer, baseURL string, log zerolog.Logger, opts ...Option) *Adapters {
	a := &Adapters{queue: q, baseURL: strings.TrimRight(baseURL, "/"), log: log}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Welcome greets a newly registered user.
func (a *Adapters) Welcome(ctx context.Context, u User) (uuid.UUID, error) {
	return a.enqueue(ctx, u, template.TypeWelcome, queue.PriorityHigh, map[string]any{
		"user": userVars(u),
	})
}

// BusinessApproved tells an owner their listing is live.
func (a *Adapters) BusinessApproved(ctx context.Context, owner User, b Business) (uuid.UUID, error) {
	return a.enqueue(ctx, owner, template.TypeBusinessApproved, queue.PriorityNormal, map[string]any{
		"user":     userVars(owner),
		"business": a.businessVars(b),
	})
}

// BusinessRejected tells an owner why their listing was declined.
func (a *Adapters) BusinessRejected(ctx context.Context, owner User, b Business, reason string) (uuid.UUID, error) {
	if strings.TrimSpace(reason) == "" {
		reason = "The listing did not meet our guidelines."
	}
	return a.enqueue(ctx, owner, template.TypeBusinessRejected, queue.PriorityNormal, map[string]any{
		"user":     userVars(owner),
		"business": a.businessVars(b),
		"reason":   reason,
	})
}

// ReviewReceived tells an owner about a new review.
func (a *Adapters) ReviewReceived(ctx context.Context, owner User, b Business, r Review) (uuid.UUID, error) {
	if r.Rating < 1 || r.Rating > 5 {
		return uuid.Nil, fmt.Errorf("review rating %d out of range", r.Rating)
	}
	return a.enqueue(ctx, owner, template.TypeReviewReceived, queue.PriorityNormal, map[string]any{
		"user":     userVars(owner),
		"business": a.businessVars(b),
		"review": map[string]any{
			"author":  r.Author,
			"rating":  r.Rating,
			"excerpt": truncate(r.Text, reviewExcerptLen),
			"url":     a.baseURL + "/reviews/" + r.ID,
		},
	})
}

// MessageReceived tells a user they have a new direct message.
func (a *Adapters) MessageReceived(ctx context.Context, to, from User, m Message) (uuid.UUID, error) {
	return a.enqueue(ctx, to, template.TypeMessageReceived, queue.PriorityNormal, map[string]any{
		"user":   userVars(to),
		"sender": userVars(from),
		"message": map[string]any{
			"preview": truncate(m.Body, messagePreviewLen),
			"url":     a.baseURL + "/messages/" + m.ThreadID,
		},
	})
}

// Notification records an in-app notification, when a Recorder is set, and
// enqueues its email copy linked to that record.
func (a *Adapters) Notification(ctx context.Context, u User, alert Alert) (uuid.UUID, error) {
	actionURL := alert.ActionURL
	if actionURL == "" {
		actionURL = a.baseURL + "/notifications"
	}

	params := queue.EnqueueParams{
		RecipientEmail: u.Email,
		RecipientName:  u.Name,
		TemplateType:   template.TypeNotification,
		Priority:       alert.Priority,
		TemplateData: map[string]any{
			"user":       userVars(u),
			"title":      alert.Title,
			"message":    alert.Message,
			"action_url": actionURL,
		},
	}

	if a.recorder != nil {
		n := &storage.Notification{
			UserEmail: u.Email,
			Title:     alert.Title,
			Message:   alert.Message,
			ActionURL: actionURL,
		}
		if err := a.recorder.Create(ctx, n); err != nil {
			return uuid.Nil, fmt.Errorf("record notification: %w", err)
		}
		params.NotificationID = &n.ID
	}

	return a.send(ctx, params)
}

func (a *Adapters) enqueue(ctx context.Context, u User, templateType string, priority queue.Priority, vars map[string]any) (uuid.UUID, error) {
	return a.send(ctx, queue.EnqueueParams{
		RecipientEmail: u.Email,
		RecipientName:  u.Name,
		TemplateType:   templateType,
		TemplateData:   vars,
		Priority:       priority,
	})
}

func (a *Adapters) send(ctx context.Context, params queue.EnqueueParams) (uuid.UUID, error) {
	id, err := a.queue.Enqueue(ctx, params)
	if err != nil {
		a.log.Error().Err(err).Str("template_type", params.TemplateType).Msg("enqueue failed")
		return uuid.Nil, err
	}
	return id, nil
}

func userVars(u User) map[string]any {
	name := u.Name
	if name == "" {
		name = strings.SplitN(u.Email, "@", 2)[0]
	}
	return map[string]any{"name": name, "email": u.Email}
}

func (a *Adapters) businessVars(b Business) map[string]any {
	slug := b.Slug
	if slug == "" {
		slug = b.ID
	}
	return map[string]any{
		"id":   b.ID,
		"name": b.Name,
		"url":  a.baseURL + "/business/" + slug,
	}
}

// truncate shortens s to at most n runes, ending with an ellipsis when cut.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimRight(string(r[:n-1]), " ") + "…"
}
