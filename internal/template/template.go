// Package template compiles email template definitions into the immutable
// subject/HTML/text snapshot stored on each queue entry.
package template

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTemplateNotFound indicates no active definition exists for a type.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrTemplateCompile indicates a definition could not produce content.
	ErrTemplateCompile = errors.New("template compile failed")

	// ErrInvalidFrontmatter indicates invalid YAML frontmatter in a template file.
	ErrInvalidFrontmatter = errors.New("invalid frontmatter")
)

// Format describes how a definition body is written.
type Format string

const (
	FormatHTML     Format = "html"
	FormatMarkdown Format = "markdown"
)

// Definition is a stored template for one template type.
type Definition struct {
	Type    string
	Subject string
	// Body is an HTML fragment or markdown, wrapped in the default shell.
	Body   string
	Format Format
	// HTMLTemplate is a complete HTML document. When set it is used as-is
	// after interpolation and Body is ignored for the HTML part.
	HTMLTemplate string
	// TextTemplate overrides the text part derived from HTML.
	TextTemplate string
	Active       bool
	UpdatedAt    time.Time
}

// Content is a compiled, ready-to-send snapshot.
type Content struct {
	Subject string
	HTML    string
	Text    string
}

// Source looks up the active definition for a template type. Implementations
// return an error wrapping ErrTemplateNotFound when none exists.
type Source interface {
	Get(ctx context.Context, templateType string) (*Definition, error)
}
