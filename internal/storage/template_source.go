package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sungwon/mailqueue/internal/template"
)

// TemplateSource reads active definitions from email_templates.
type TemplateSource struct {
	pool *pgxpool.Pool
}

var _ template.Source = (*TemplateSource)(nil)

// NewTemplateSource creates a TemplateSource.
func NewTemplateSource(pool *pgxpool.Pool) *TemplateSource {
	return &TemplateSource{pool: pool}
}

func (s *TemplateSource) Get(ctx context.Context, templateType string) (*template.Definition, error) {
	var (
		def          template.Definition
		format       string
		htmlTemplate *string
		textTemplate *string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT template_type, subject, body, format, html_template, text_template, active, updated_at
		FROM email_templates
		WHERE template_type = $1 AND active
		ORDER BY updated_at DESC
		LIMIT 1`, templateType).Scan(
		&def.Type, &def.Subject, &def.Body, &format, &htmlTemplate, &textTemplate, &def.Active, &def.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", template.ErrTemplateNotFound, templateType)
	}
	if err != nil {
		return nil, fmt.Errorf("get template %s: %w", templateType, err)
	}
	def.Format = template.Format(format)
	if htmlTemplate != nil {
		def.HTMLTemplate = *htmlTemplate
	}
	if textTemplate != nil {
		def.TextTemplate = *textTemplate
	}
	return &def, nil
}

// Put makes def the active definition for its type, deactivating any
// previous one.
func (s *TemplateSource) Put(ctx context.Context, def template.Definition) error {
	format := def.Format
	if format == "" {
		format = template.FormatMarkdown
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		UPDATE email_templates SET active = false, updated_at = now()
		WHERE template_type = $1 AND active`, def.Type); err != nil {
		return fmt.Errorf("deactivate template %s: %w", def.Type, err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO email_templates (template_type, subject, body, format, html_template, text_template, active)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7)`,
		def.Type, def.Subject, def.Body, string(format), def.HTMLTemplate, def.TextTemplate, def.Active); err != nil {
		return fmt.Errorf("insert template %s: %w", def.Type, err)
	}
	return tx.Commit(ctx)
}

// SeedMissing stores each definition whose type has no active row yet and
// returns how many were added.
func (s *TemplateSource) SeedMissing(ctx context.Context, defs []template.Definition) (int, error) {
	added := 0
	for _, def := range defs {
		_, err := s.Get(ctx, def.Type)
		if err == nil {
			continue
		}
		if !errors.Is(err, template.ErrTemplateNotFound) {
			return added, err
		}
		if err := s.Put(ctx, def); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}
