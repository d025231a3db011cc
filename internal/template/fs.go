package template

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"

	"gopkg.in/yaml.v3"
)

// frontmatter is the YAML header of a template file.
type frontmatter struct {
	Subject string `yaml:"subject"`
	Active  *bool  `yaml:"active"`
	Format  string `yaml:"format"`
	Text    string `yaml:"text"`
}

// FSSource reads definitions from a directory of <type>.md or <type>.html
// files. A .md file is a markdown body wrapped in the default shell; a
// .html file is a complete HTML document.
type FSSource struct {
	fsys fs.FS
	dir  string
}

// NewFSSource creates a source reading from dir within fsys.
func NewFSSource(fsys fs.FS, dir string) *FSSource {
	if dir == "" {
		dir = "."
	}
	return &FSSource{fsys: fsys, dir: dir}
}

// Get parses the file for templateType. Files are read on every call so that
// edits take effect for the next enqueue.
func (s *FSSource) Get(_ context.Context, templateType string) (*Definition, error) {
	for _, ext := range []string{".md", ".html"} {
		name := path.Join(s.dir, templateType+ext)
		content, err := fs.ReadFile(s.fsys, name)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", name, err)
		}

		def, err := parseDefinition(templateType, ext, content)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrTemplateCompile, name, err)
		}
		if !def.Active {
			return nil, fmt.Errorf("%w: %s (inactive)", ErrTemplateNotFound, templateType)
		}
		if info, err := fs.Stat(s.fsys, name); err == nil {
			def.UpdatedAt = info.ModTime()
		}
		return def, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, templateType)
}

func parseDefinition(templateType, ext string, content []byte) (*Definition, error) {
	meta, body, err := splitFrontmatter(content)
	if err != nil {
		return nil, err
	}

	def := &Definition{
		Type:         templateType,
		Subject:      meta.Subject,
		TextTemplate: meta.Text,
		Active:       meta.Active == nil || *meta.Active,
	}

	if ext == ".html" {
		def.HTMLTemplate = body
		def.Format = FormatHTML
		return def, nil
	}

	def.Body = body
	def.Format = FormatMarkdown
	if meta.Format == string(FormatHTML) {
		def.Format = FormatHTML
	}
	return def, nil
}

// splitFrontmatter separates a leading --- delimited YAML block from the body.
// Content without a leading delimiter is all body.
func splitFrontmatter(content []byte) (frontmatter, string, error) {
	var meta frontmatter
	delimiter := []byte("---")

	if !bytes.HasPrefix(content, delimiter) {
		return meta, string(content), nil
	}

	rest := bytes.TrimLeft(bytes.TrimPrefix(content, delimiter), "\r\n")
	end := bytes.Index(rest, delimiter)
	if end == -1 {
		return meta, "", fmt.Errorf("%w: closing delimiter not found", ErrInvalidFrontmatter)
	}

	if header := bytes.TrimSpace(rest[:end]); len(header) > 0 {
		if err := yaml.Unmarshal(header, &meta); err != nil {
			return meta, "", fmt.Errorf("%w: %v", ErrInvalidFrontmatter, err)
		}
	}

	body := rest[end+len(delimiter):]
	body = bytes.TrimPrefix(body, []byte("\r"))
	body = bytes.TrimPrefix(body, []byte("\n"))
	return meta, string(body), nil
}
