package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Lease identifies one successful claim. Writes after a claim carry its
// lease, so once a stale entry is recovered and claimed again the earlier
// holder can no longer change it.
type Lease struct {
	ID    uuid.UUID
	Token uuid.UUID
}

// Store persists queue entries. Every method after Claim is conditional on
// the entry being in StatusProcessing under the given lease and returns
// ErrNotClaimed otherwise. Only Claim sets StatusProcessing and no method
// rewrites content.
type Store interface {
	// Insert persists a new pending entry.
	Insert(ctx context.Context, e *Email) error
	// Get returns the entry with id or ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Email, error)
	// SelectReady returns up to limit pending entries with ScheduledFor <= now,
	// ordered by priority (urgent first) then CreatedAt (oldest first).
	SelectReady(ctx context.Context, now time.Time, limit int) ([]*Email, error)
	// Claim atomically moves a pending entry due at now to processing under
	// a new lease. It returns false when another claimer won or the entry is
	// no longer pending and due.
	Claim(ctx context.Context, id uuid.UUID, now time.Time) (Lease, bool, error)

	// MarkSent records a successful delivery and appends a sent event.
	MarkSent(ctx context.Context, l Lease, providerMessageID string, now time.Time) error
	// MarkFailed records the final attempt and appends a failed event.
	MarkFailed(ctx context.Context, l Lease, attempts int, errMsg string, now time.Time) error
	// Retry returns the entry to pending with a new attempt count and schedule.
	Retry(ctx context.Context, l Lease, attempts int, scheduledFor time.Time, errMsg string, now time.Time) error
	// Defer returns the entry to pending at scheduledFor without touching attempts.
	Defer(ctx context.Context, l Lease, scheduledFor time.Time, now time.Time) error
	// Cancel moves the entry to cancelled.
	Cancel(ctx context.Context, l Lease, reason string, now time.Time) error

	// Stats counts entries by status.
	Stats(ctx context.Context) (Stats, error)
	// RecoverStale returns processing entries last updated before olderThan
	// to pending, leaving attempts unchanged and revoking their leases.
	RecoverStale(ctx context.Context, olderThan time.Time, now time.Time) (int64, error)
	// Events lists audit events for an entry, oldest first.
	Events(ctx context.Context, id uuid.UUID) ([]Event, error)
}
