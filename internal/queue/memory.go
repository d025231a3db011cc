package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. It is safe for concurrent use and is
// shared between processors in tests to exercise claim races.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*memEntry
	events  []Event
	seq     int64
}

type memEntry struct {
	email Email
	seq   int64
	token uuid.UUID
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[uuid.UUID]*memEntry)}
}

func copyEmail(e Email) *Email {
	if e.TemplateData != nil {
		data := make(map[string]any, len(e.TemplateData))
		for k, v := range e.TemplateData {
			data[k] = v
		}
		e.TemplateData = data
	}
	if e.Metadata != nil {
		meta := make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			meta[k] = v
		}
		e.Metadata = meta
	}
	return &e
}

func (s *MemoryStore) Insert(_ context.Context, e *Email) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.entries[e.ID] = &memEntry{email: *copyEmail(*e), seq: s.seq}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Email, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ent, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyEmail(ent.email), nil
}

func (s *MemoryStore) SelectReady(_ context.Context, now time.Time, limit int) ([]*Email, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ready := make([]*memEntry, 0)
	for _, ent := range s.entries {
		if ent.email.Status == StatusPending && !ent.email.ScheduledFor.After(now) {
			ready = append(ready, ent)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		a, b := ready[i], ready[j]
		if ra, rb := a.email.Priority.Rank(), b.email.Priority.Rank(); ra != rb {
			return ra > rb
		}
		if !a.email.CreatedAt.Equal(b.email.CreatedAt) {
			return a.email.CreatedAt.Before(b.email.CreatedAt)
		}
		return a.seq < b.seq
	})
	if limit > 0 && len(ready) > limit {
		ready = ready[:limit]
	}

	out := make([]*Email, len(ready))
	for i, ent := range ready {
		out[i] = copyEmail(ent.email)
	}
	return out, nil
}

func (s *MemoryStore) Claim(_ context.Context, id uuid.UUID, now time.Time) (Lease, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ent, ok := s.entries[id]
	if !ok || ent.email.Status != StatusPending || ent.email.ScheduledFor.After(now) {
		return Lease{}, false, nil
	}
	ent.email.Status = StatusProcessing
	ent.email.UpdatedAt = now
	ent.token = uuid.New()
	return Lease{ID: id, Token: ent.token}, true, nil
}

// claimed returns the entry held under l and releases the lease. Callers
// hold mu and must complete the transition.
func (s *MemoryStore) claimed(l Lease) (*Email, error) {
	ent, ok := s.entries[l.ID]
	if !ok {
		return nil, ErrNotFound
	}
	if ent.email.Status != StatusProcessing || ent.token != l.Token {
		return nil, ErrNotClaimed
	}
	ent.token = uuid.Nil
	return &ent.email, nil
}

func (s *MemoryStore) appendEvent(e *Email, typ EventType, meta map[string]any, now time.Time) {
	s.events = append(s.events, Event{
		ID:             uuid.New(),
		QueuedEmailID:  e.ID,
		EventType:      typ,
		RecipientEmail: e.RecipientEmail,
		Metadata:       meta,
		CreatedAt:      now,
	})
}

func (s *MemoryStore) MarkSent(_ context.Context, l Lease, providerMessageID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.claimed(l)
	if err != nil {
		return err
	}
	sentAt := now
	e.Status = StatusSent
	e.SentAt = &sentAt
	e.ProviderMessageID = providerMessageID
	e.ErrorMessage = ""
	e.UpdatedAt = now
	s.appendEvent(e, EventSent, map[string]any{
		"provider_message_id": providerMessageID,
		"attempts":            e.Attempts + 1,
	}, now)
	return nil
}

func (s *MemoryStore) MarkFailed(_ context.Context, l Lease, attempts int, errMsg string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.claimed(l)
	if err != nil {
		return err
	}
	failedAt := now
	e.Status = StatusFailed
	e.Attempts = attempts
	e.FailedAt = &failedAt
	e.ErrorMessage = errMsg
	e.UpdatedAt = now
	s.appendEvent(e, EventFailed, map[string]any{
		"error":    errMsg,
		"attempts": attempts,
	}, now)
	return nil
}

func (s *MemoryStore) Retry(_ context.Context, l Lease, attempts int, scheduledFor time.Time, errMsg string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.claimed(l)
	if err != nil {
		return err
	}
	e.Status = StatusPending
	e.Attempts = attempts
	e.ScheduledFor = scheduledFor
	e.ErrorMessage = errMsg
	e.UpdatedAt = now
	return nil
}

func (s *MemoryStore) Defer(_ context.Context, l Lease, scheduledFor time.Time, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.claimed(l)
	if err != nil {
		return err
	}
	e.Status = StatusPending
	e.ScheduledFor = scheduledFor
	e.UpdatedAt = now
	return nil
}

func (s *MemoryStore) Cancel(_ context.Context, l Lease, reason string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.claimed(l)
	if err != nil {
		return err
	}
	e.Status = StatusCancelled
	e.ErrorMessage = reason
	e.UpdatedAt = now
	return nil
}

func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st Stats
	for _, ent := range s.entries {
		st.Add(ent.email.Status, 1)
	}
	return st, nil
}

func (s *MemoryStore) RecoverStale(_ context.Context, olderThan time.Time, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, ent := range s.entries {
		if ent.email.Status == StatusProcessing && ent.email.UpdatedAt.Before(olderThan) {
			ent.email.Status = StatusPending
			ent.email.UpdatedAt = now
			ent.token = uuid.Nil
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Events(_ context.Context, id uuid.UUID) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, ev := range s.events {
		if ev.QueuedEmailID == id {
			out = append(out, ev)
		}
	}
	return out, nil
}
