// Package privacy masks configured patterns in issue titles before they are
// published.
package privacy

import (
	"fmt"
	"regexp"
)

// DefaultReplacement is short so a redaction costs little of the title budget.
const DefaultReplacement = "[redacted]"

// Compile compiles a list of regex pattern strings into compiled regexps.
// Returns an error if any pattern is invalid.
func Compile(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile redact pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// Redactor replaces every match of its patterns. The zero value and a nil
// *Redactor leave text unchanged.
type Redactor struct {
	patterns    []*regexp.Regexp
	replacement string
}

// New compiles patterns into a Redactor. An empty replacement uses
// DefaultReplacement.
func New(patterns []string, replacement string) (*Redactor, error) {
	compiled, err := Compile(patterns)
	if err != nil {
		return nil, err
	}
	if replacement == "" {
		replacement = DefaultReplacement
	}
	return &Redactor{patterns: compiled, replacement: replacement}, nil
}

// Apply returns text with every match replaced.
func (r *Redactor) Apply(text string) string {
	if r == nil {
		return text
	}
	for _, re := range r.patterns {
		text = re.ReplaceAllLiteralString(text, r.replacement)
	}
	return text
}

// Active reports whether any pattern is configured.
func (r *Redactor) Active() bool {
	return r != nil && len(r.patterns) > 0
}
