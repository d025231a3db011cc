package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotificationNotFound indicates no notification row has the given ID.
var ErrNotificationNotFound = errors.New("notification not found")

// Notification is an in-app notification that may have an email copy.
type Notification struct {
	ID          uuid.UUID
	UserEmail   string
	Title       string
	Message     string
	ActionURL   string
	EmailSent   bool
	EmailSentAt *time.Time
	CreatedAt   time.Time
}

// NotificationStore reads and writes the notifications table.
type NotificationStore struct {
	pool *pgxpool.Pool
}

// NewNotificationStore creates a NotificationStore.
func NewNotificationStore(pool *pgxpool.Pool) *NotificationStore {
	return &NotificationStore{pool: pool}
}

// Create inserts n, assigning an ID when unset.
func (s *NotificationStore) Create(ctx context.Context, n *Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (id, user_email, title, message, action_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		n.ID, n.UserEmail, n.Title, n.Message, n.ActionURL, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// Get returns a notification by ID.
func (s *NotificationStore) Get(ctx context.Context, id uuid.UUID) (*Notification, error) {
	var n Notification
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_email, title, message, action_url, email_sent, email_sent_at, created_at
		FROM notifications WHERE id = $1`, id).Scan(
		&n.ID, &n.UserEmail, &n.Title, &n.Message, &n.ActionURL, &n.EmailSent, &n.EmailSentAt, &n.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return &n, nil
}

// MarkEmailSent flags the notification's email copy as delivered.
func (s *NotificationStore) MarkEmailSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications SET email_sent = true, email_sent_at = $2
		WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("mark notification email sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
