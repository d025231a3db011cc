package template

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	droppedBlocks = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<head\b[^>]*>.*?</head\s*>`),
		regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style\s*>`),
		regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`),
	}
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// htmlToText derives a plain-text part from HTML: head, style and script
// blocks are dropped, remaining tags stripped, entities unescaped and
// whitespace collapsed.
func htmlToText(policy *bluemonday.Policy, s string) string {
	for _, re := range droppedBlocks {
		s = re.ReplaceAllString(s, " ")
	}
	// Keep words in adjacent blocks apart once tags are gone.
	s = strings.ReplaceAll(s, "<", " <")
	s = policy.Sanitize(s)
	s = html.UnescapeString(s)
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}
