package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sungwon/mailqueue/internal/queue"
)

// QueueStore is the PostgreSQL queue.Store. Claim is a conditional UPDATE so
// any number of processes can share one table.
type QueueStore struct {
	pool *pgxpool.Pool
}

var _ queue.Store = (*QueueStore)(nil)

// NewQueueStore creates a QueueStore.
func NewQueueStore(pool *pgxpool.Pool) *QueueStore {
	return &QueueStore{pool: pool}
}

const emailColumns = `id, notification_id, recipient_email, recipient_name, template_type,
	template_data, subject, html_content, text_content, priority, status, attempts,
	max_attempts, scheduled_for, error_message, metadata, provider_message_id,
	created_at, updated_at, sent_at, failed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmail(row rowScanner) (*queue.Email, error) {
	var (
		e           queue.Email
		priority    string
		status      string
		errMsg      *string
		providerMsg *string
	)
	err := row.Scan(
		&e.ID, &e.NotificationID, &e.RecipientEmail, &e.RecipientName, &e.TemplateType,
		&e.TemplateData, &e.Subject, &e.HTMLContent, &e.TextContent, &priority, &status,
		&e.Attempts, &e.MaxAttempts, &e.ScheduledFor, &errMsg, &e.Metadata, &providerMsg,
		&e.CreatedAt, &e.UpdatedAt, &e.SentAt, &e.FailedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Priority = queue.Priority(priority)
	e.Status = queue.Status(status)
	if errMsg != nil {
		e.ErrorMessage = *errMsg
	}
	if providerMsg != nil {
		e.ProviderMessageID = *providerMsg
	}
	return &e, nil
}

func jsonObject(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func (s *QueueStore) Insert(ctx context.Context, e *queue.Email) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO email_queue (
			id, notification_id, recipient_email, recipient_name, template_type,
			template_data, subject, html_content, text_content, priority, status,
			attempts, max_attempts, scheduled_for, metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		e.ID, e.NotificationID, e.RecipientEmail, e.RecipientName, e.TemplateType,
		jsonObject(e.TemplateData), e.Subject, e.HTMLContent, e.TextContent,
		string(e.Priority), string(e.Status), e.Attempts, e.MaxAttempts, e.ScheduledFor,
		jsonObject(e.Metadata), e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert queue entry: %w", err)
	}
	return nil
}

func (s *QueueStore) Get(ctx context.Context, id uuid.UUID) (*queue.Email, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+emailColumns+` FROM email_queue WHERE id = $1`, id)
	e, err := scanEmail(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, queue.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get queue entry: %w", err)
	}
	return e, nil
}

func (s *QueueStore) SelectReady(ctx context.Context, now time.Time, limit int) ([]*queue.Email, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+emailColumns+`
		FROM email_queue
		WHERE status = 'pending' AND scheduled_for <= $1
		ORDER BY CASE priority
				WHEN 'urgent' THEN 4
				WHEN 'high' THEN 3
				WHEN 'normal' THEN 2
				ELSE 1
			END DESC,
			created_at ASC,
			id ASC
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("select ready entries: %w", err)
	}
	defer rows.Close()

	var out []*queue.Email
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ready entries: %w", err)
	}
	return out, nil
}

func (s *QueueStore) Claim(ctx context.Context, id uuid.UUID, now time.Time) (queue.Lease, bool, error) {
	lease := queue.Lease{ID: id, Token: uuid.New()}
	tag, err := s.pool.Exec(ctx, `
		UPDATE email_queue SET status = 'processing', claim_token = $3, updated_at = $2
		WHERE id = $1 AND status = 'pending' AND scheduled_for <= $2`, id, now, lease.Token)
	if err != nil {
		return queue.Lease{}, false, fmt.Errorf("claim queue entry: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return queue.Lease{}, false, nil
	}
	return lease, true, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// notClaimed explains why a conditional post-claim update matched no row.
func notClaimed(ctx context.Context, q querier, id uuid.UUID) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM email_queue WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check queue entry: %w", err)
	}
	if !exists {
		return queue.ErrNotFound
	}
	return queue.ErrNotClaimed
}

// Post-claim updates match on the lease token, so a writer whose claim was
// revoked by RecoverStale changes nothing.

func (s *QueueStore) MarkSent(ctx context.Context, l queue.Lease, providerMessageID string, now time.Time) error {
	return s.finish(ctx, l.ID, queue.EventSent, func(tx pgx.Tx) (string, map[string]any, error) {
		var (
			recipient string
			attempts  int
		)
		err := tx.QueryRow(ctx, `
			UPDATE email_queue
			SET status = 'sent', sent_at = $3, provider_message_id = $4,
				error_message = NULL, claim_token = NULL, updated_at = $3
			WHERE id = $1 AND status = 'processing' AND claim_token = $2
			RETURNING recipient_email, attempts`, l.ID, l.Token, now, providerMessageID).Scan(&recipient, &attempts)
		return recipient, map[string]any{
			"provider_message_id": providerMessageID,
			"attempts":            attempts + 1,
		}, err
	}, now)
}

func (s *QueueStore) MarkFailed(ctx context.Context, l queue.Lease, attempts int, errMsg string, now time.Time) error {
	return s.finish(ctx, l.ID, queue.EventFailed, func(tx pgx.Tx) (string, map[string]any, error) {
		var recipient string
		err := tx.QueryRow(ctx, `
			UPDATE email_queue
			SET status = 'failed', attempts = $3, failed_at = $4,
				error_message = $5, claim_token = NULL, updated_at = $4
			WHERE id = $1 AND status = 'processing' AND claim_token = $2
			RETURNING recipient_email`, l.ID, l.Token, attempts, now, errMsg).Scan(&recipient)
		return recipient, map[string]any{
			"error":    errMsg,
			"attempts": attempts,
		}, err
	}, now)
}

// finish runs a terminal status update and appends its event in one
// transaction.
func (s *QueueStore) finish(ctx context.Context, id uuid.UUID, typ queue.EventType, update func(pgx.Tx) (string, map[string]any, error), now time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	recipient, meta, err := update(tx)
	if errors.Is(err, pgx.ErrNoRows) {
		return notClaimed(ctx, tx, id)
	}
	if err != nil {
		return fmt.Errorf("mark %s: %w", typ, err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO email_events (id, queued_email_id, event_type, recipient_email, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), id, string(typ), recipient, meta, now)
	if err != nil {
		return fmt.Errorf("insert %s event: %w", typ, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// execClaimed runs a single conditional update on a leased entry. The SQL
// binds the lease as $1 (id) and $2 (token).
func (s *QueueStore) execClaimed(ctx context.Context, op string, l queue.Lease, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, append([]any{l.ID, l.Token}, args...)...)
	if err != nil {
		return fmt.Errorf("%s queue entry: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return notClaimed(ctx, s.pool, l.ID)
	}
	return nil
}

func (s *QueueStore) Retry(ctx context.Context, l queue.Lease, attempts int, scheduledFor time.Time, errMsg string, now time.Time) error {
	return s.execClaimed(ctx, "retry", l, `
		UPDATE email_queue
		SET status = 'pending', attempts = $3, scheduled_for = $4,
			error_message = $5, claim_token = NULL, updated_at = $6
		WHERE id = $1 AND status = 'processing' AND claim_token = $2`, attempts, scheduledFor, errMsg, now)
}

func (s *QueueStore) Defer(ctx context.Context, l queue.Lease, scheduledFor time.Time, now time.Time) error {
	return s.execClaimed(ctx, "defer", l, `
		UPDATE email_queue
		SET status = 'pending', scheduled_for = $3, claim_token = NULL, updated_at = $4
		WHERE id = $1 AND status = 'processing' AND claim_token = $2`, scheduledFor, now)
}

func (s *QueueStore) Cancel(ctx context.Context, l queue.Lease, reason string, now time.Time) error {
	return s.execClaimed(ctx, "cancel", l, `
		UPDATE email_queue
		SET status = 'cancelled', error_message = $3, claim_token = NULL, updated_at = $4
		WHERE id = $1 AND status = 'processing' AND claim_token = $2`, reason, now)
}

func (s *QueueStore) Stats(ctx context.Context) (queue.Stats, error) {
	var st queue.Stats
	rows, err := s.pool.Query(ctx, `SELECT status, count(*) FROM email_queue GROUP BY status`)
	if err != nil {
		return st, fmt.Errorf("count queue entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return st, fmt.Errorf("scan status count: %w", err)
		}
		st.Add(queue.Status(status), n)
	}
	return st, rows.Err()
}

func (s *QueueStore) RecoverStale(ctx context.Context, olderThan time.Time, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE email_queue SET status = 'pending', claim_token = NULL, updated_at = $2
		WHERE status = 'processing' AND updated_at < $1`, olderThan, now)
	if err != nil {
		return 0, fmt.Errorf("recover stale entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *QueueStore) Events(ctx context.Context, id uuid.UUID) ([]queue.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, queued_email_id, event_type, recipient_email, metadata, created_at
		FROM email_events
		WHERE queued_email_id = $1
		ORDER BY created_at ASC, id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []queue.Event
	for rows.Next() {
		var (
			ev  queue.Event
			typ string
		)
		if err := rows.Scan(&ev.ID, &ev.QueuedEmailID, &typ, &ev.RecipientEmail, &ev.Metadata, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.EventType = queue.EventType(typ)
		out = append(out, ev)
	}
	return out, rows.Err()
}
