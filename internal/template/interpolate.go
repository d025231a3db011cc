package template

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_\-]+(?:\.[A-Za-z0-9_\-]+)*)\s*\}\}`)

// escaper makes a value literal in the surrounding format. A nil escaper
// inserts values unchanged.
type escaper func(string) string

// interpolate replaces {{ path.to.value }} tokens with values looked up in
// vars. Unresolved tokens are left exactly as written.
func interpolate(s string, vars map[string]any, escape escaper) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(token string) string {
		path := placeholderPattern.FindStringSubmatch(token)[1]
		v, ok := lookup(vars, path)
		if !ok {
			return token
		}
		if escape != nil {
			return escape(v)
		}
		return v
	})
}

// markdownPunctuation is the ASCII punctuation CommonMark allows to be
// backslash-escaped.
const markdownPunctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// escapeMarkdown backslash-escapes every ASCII punctuation character so a
// value renders as plain text and cannot open links, images, emphasis or
// raw HTML. goldmark HTML-escapes the resulting text itself.
func escapeMarkdown(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(markdownPunctuation, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// lookup resolves a dotted path through nested maps. Only scalar leaves
// resolve; a path ending on a map or nil is treated as missing.
func lookup(vars map[string]any, path string) (string, bool) {
	var cur any = vars
	for _, key := range strings.Split(path, ".") {
		switch m := cur.(type) {
		case map[string]any:
			v, ok := m[key]
			if !ok {
				return "", false
			}
			cur = v
		case map[string]string:
			v, ok := m[key]
			if !ok {
				return "", false
			}
			cur = v
		default:
			return "", false
		}
	}

	switch v := cur.(type) {
	case nil, map[string]any, map[string]string:
		return "", false
	case string:
		return v, true
	case fmt.Stringer:
		return v.String(), true
	default:
		return fmt.Sprint(v), true
	}
}

// mergeVars overlays caller variables onto defaults. Caller values win.
func mergeVars(defaults, vars map[string]any) map[string]any {
	merged := make(map[string]any, len(defaults)+len(vars))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range vars {
		merged[k] = v
	}
	return merged
}
