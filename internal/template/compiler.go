package template

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"html/template"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

// Defaults holds the site-wide values merged under caller variables.
type Defaults struct {
	SiteName     string
	BaseURL      string
	SupportEmail string
}

// Compiler turns a template type and variables into a Content snapshot.
// It is safe for concurrent use.
type Compiler struct {
	source   Source
	defaults Defaults
	md       goldmark.Markdown
	strip    *bluemonday.Policy
	now      func() time.Time
}

// NewCompiler creates a compiler reading definitions from source.
func NewCompiler(source Source, defaults Defaults) *Compiler {
	return &Compiler{
		source:   source,
		defaults: defaults,
		md:       goldmark.New(),
		strip:    bluemonday.StrictPolicy(),
		now:      time.Now,
	}
}

// DefaultVars returns the variables every template can reference.
func (c *Compiler) DefaultVars() map[string]any {
	base := strings.TrimRight(c.defaults.BaseURL, "/")
	return map[string]any{
		"site_name":       c.defaults.SiteName,
		"base_url":        base,
		"current_year":    strconv.Itoa(c.now().Year()),
		"unsubscribe_url": base + "/unsubscribe",
		"preferences_url": base + "/settings/notifications",
		"support_email":   c.defaults.SupportEmail,
	}
}

// Compile produces the subject, HTML and text for templateType.
// Placeholders that do not resolve are left verbatim. An empty compiled
// subject or a definition with no body is ErrTemplateCompile.
func (c *Compiler) Compile(ctx context.Context, templateType string, vars map[string]any) (*Content, error) {
	def, err := c.source.Get(ctx, templateType)
	if err != nil {
		return nil, err
	}
	if def == nil || !def.Active {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, templateType)
	}

	merged := mergeVars(c.DefaultVars(), vars)

	subject := strings.TrimSpace(interpolate(def.Subject, merged, nil))
	if subject == "" {
		return nil, fmt.Errorf("%w: %s: empty subject", ErrTemplateCompile, templateType)
	}

	htmlOut, err := c.compileHTML(def, subject, merged)
	if err != nil {
		return nil, err
	}

	text := ""
	if def.TextTemplate != "" {
		text = strings.TrimSpace(interpolate(def.TextTemplate, merged, nil))
	} else {
		text = htmlToText(c.strip, htmlOut)
	}

	return &Content{Subject: subject, HTML: htmlOut, Text: text}, nil
}

func (c *Compiler) compileHTML(def *Definition, subject string, vars map[string]any) (string, error) {
	if def.HTMLTemplate != "" {
		return interpolate(def.HTMLTemplate, vars, html.EscapeString), nil
	}
	if strings.TrimSpace(def.Body) == "" {
		return "", fmt.Errorf("%w: %s: no body", ErrTemplateCompile, def.Type)
	}

	escape := html.EscapeString
	if def.Format == FormatMarkdown {
		escape = escapeMarkdown
	}
	body := interpolate(def.Body, vars, escape)
	if def.Format == FormatMarkdown {
		var buf bytes.Buffer
		if err := c.md.Convert([]byte(body), &buf); err != nil {
			return "", fmt.Errorf("%w: %s: markdown: %v", ErrTemplateCompile, def.Type, err)
		}
		body = buf.String()
	}

	out, err := wrapInShell(shellData{
		Subject:        subject,
		SiteName:       fmt.Sprint(vars["site_name"]),
		Year:           fmt.Sprint(vars["current_year"]),
		Body:           template.HTML(body),
		PreferencesURL: fmt.Sprint(vars["preferences_url"]),
		UnsubscribeURL: fmt.Sprint(vars["unsubscribe_url"]),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: shell: %v", ErrTemplateCompile, def.Type, err)
	}
	return out, nil
}
