package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sungwon/mailqueue/internal/preference"
)

// PreferenceStore reads and writes notification_preferences.
type PreferenceStore struct {
	pool *pgxpool.Pool
}

var _ preference.Lookup = (*PreferenceStore)(nil)

// NewPreferenceStore creates a PreferenceStore.
func NewPreferenceStore(pool *pgxpool.Pool) *PreferenceStore {
	return &PreferenceStore{pool: pool}
}

// Get returns the stored preferences for email, or nil when none exist.
func (s *PreferenceStore) Get(ctx context.Context, email string) (*preference.Preferences, error) {
	var (
		p        preference.Preferences
		enabled  bool
		start    *string
		end      *string
		timezone string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT email, types, quiet_hours_enabled,
			quiet_hours_start::text, quiet_hours_end::text, timezone
		FROM notification_preferences
		WHERE email = $1`, preference.NormalizeEmail(email)).Scan(
		&p.Email, &p.Types, &enabled, &start, &end, &timezone,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}

	if start != nil && end != nil {
		qh := &preference.QuietHours{Enabled: enabled, Timezone: timezone}
		if qh.Start, err = preference.ParseClock(*start); err != nil {
			return nil, fmt.Errorf("quiet hours start: %w", err)
		}
		if qh.End, err = preference.ParseClock(*end); err != nil {
			return nil, fmt.Errorf("quiet hours end: %w", err)
		}
		p.QuietHours = qh
	}
	return &p, nil
}

// Set upserts p keyed by its normalized email.
func (s *PreferenceStore) Set(ctx context.Context, p preference.Preferences) error {
	types := p.Types
	if types == nil {
		types = map[string]bool{}
	}
	var (
		enabled    bool
		start, end *string
		timezone   = "UTC"
	)
	if qh := p.QuietHours; qh != nil {
		enabled = qh.Enabled
		startText, endText := qh.Start.String(), qh.End.String()
		start, end = &startText, &endText
		if qh.Timezone != "" {
			timezone = qh.Timezone
		}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO notification_preferences
			(email, types, quiet_hours_enabled, quiet_hours_start, quiet_hours_end, timezone, updated_at)
		VALUES ($1, $2, $3, $4::time, $5::time, $6, now())
		ON CONFLICT (email) DO UPDATE SET
			types = EXCLUDED.types,
			quiet_hours_enabled = EXCLUDED.quiet_hours_enabled,
			quiet_hours_start = EXCLUDED.quiet_hours_start,
			quiet_hours_end = EXCLUDED.quiet_hours_end,
			timezone = EXCLUDED.timezone,
			updated_at = now()`,
		preference.NormalizeEmail(p.Email), types, enabled, start, end, timezone)
	if err != nil {
		return fmt.Errorf("upsert preferences: %w", err)
	}
	return nil
}
