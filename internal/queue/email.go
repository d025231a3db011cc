// Package queue implements the durable email queue: entry types, the store
// contract with its status state machine, and the processor that drains it.
package queue

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Priority orders selection. Higher ranks are selected first.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Rank returns the sort weight of p, or 0 for an unknown priority.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether p is one of the four known priorities.
func (p Priority) Valid() bool { return p.Rank() > 0 }

// ParsePriority parses s. The empty string is normal.
func ParsePriority(s string) (Priority, error) {
	if s == "" {
		return PriorityNormal, nil
	}
	p := Priority(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPriority, s)
	}
	return p, nil
}

// Status is a queue entry's position in the state machine:
//
//	pending -> processing -> sent | failed | cancelled | pending
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transitions can happen.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed || s == StatusCancelled
}

// Email is one queued send request. Subject, HTMLContent and TextContent are
// written once at enqueue and never recompiled.
type Email struct {
	ID             uuid.UUID
	NotificationID *uuid.UUID
	RecipientEmail string
	RecipientName  string
	TemplateType   string
	TemplateData   map[string]any

	Subject     string
	HTMLContent string
	TextContent string

	Priority     Priority
	Status       Status
	Attempts     int
	MaxAttempts  int
	ScheduledFor time.Time
	ErrorMessage string
	Metadata     map[string]any

	ProviderMessageID string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	SentAt            *time.Time
	FailedAt          *time.Time
}

// EventType names an audit event.
type EventType string

const (
	EventSent   EventType = "sent"
	EventFailed EventType = "failed"
)

// Event is an append-only audit record written with each sent or failed
// transition.
type Event struct {
	ID             uuid.UUID
	QueuedEmailID  uuid.UUID
	EventType      EventType
	RecipientEmail string
	Metadata       map[string]any
	CreatedAt      time.Time
}

// Stats counts entries by status.
type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Sent       int64 `json:"sent"`
	Failed     int64 `json:"failed"`
	Cancelled  int64 `json:"cancelled"`
}

// Add increments the counter for status by n.
func (s *Stats) Add(status Status, n int64) {
	switch status {
	case StatusPending:
		s.Pending += n
	case StatusProcessing:
		s.Processing += n
	case StatusSent:
		s.Sent += n
	case StatusFailed:
		s.Failed += n
	case StatusCancelled:
		s.Cancelled += n
	}
}
