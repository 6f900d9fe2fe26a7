// Package security holds input cleaning helpers.
package security

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer strips every HTML element from user text. Script and style
// bodies are dropped together with their tags. Safe for concurrent use.
type TextSanitizer struct {
	policy *bluemonday.Policy
}

func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize returns text with markup removed. The result is plain text, not
// HTML: bluemonday's entity escaping is undone, so consumers that render it
// as HTML must escape it themselves.
func (s *TextSanitizer) Sanitize(text string) string {
	return html.UnescapeString(s.policy.Sanitize(text))
}
