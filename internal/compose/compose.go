// Package compose turns issues into length-constrained posts.
package compose

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ppiankov/issuetweet/internal/source"
	"golang.org/x/text/unicode/norm"
)

const (
	DefaultMaxLength  = 280
	DefaultLinkLength = 23

	// Ellipsis marks a truncated title. It counts as one character.
	Ellipsis = "…"

	// footerSeparators counts the newline before the id and the space
	// between the id and the url.
	footerSeparators = 2
)

// domainPattern matches dotted hostname-like runs such as "example.com" or
// "foo.bar.net" that the platform may auto-link.
var domainPattern = regexp.MustCompile(`[\p{L}\p{N}_]+(?:\.[\p{L}\p{N}_]+)+`)

// Candidate is a formatted, not yet published post for one issue.
type Candidate struct {
	ID        string // "<repository> #<number>"
	Title     string // final title, truncated to fit
	URL       string // issue url
	FullTitle string // trimmed title before truncation
}

// Compensation records one auto-linkable match and the budget it consumed.
type Compensation struct {
	Match     string
	MinPair   int
	Deduction int
}

// Breakdown explains how a candidate's title budget was computed.
type Breakdown struct {
	MaxLength     int
	LinkLength    int
	Footer        int
	Remaining     int // title budget before compensation
	Compensations []Compensation
	Final         int // title budget after compensation and clamping
	Truncated     bool
}

// Formatter builds candidates that fit MaxLength when rendered.
type Formatter struct {
	MaxLength  int
	LinkLength int
}

// New returns a formatter, substituting defaults for non-positive values.
func New(maxLength, linkLength int) *Formatter {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	if linkLength <= 0 {
		linkLength = DefaultLinkLength
	}
	return &Formatter{MaxLength: maxLength, LinkLength: linkLength}
}

// FormatID returns the identifier embedded in every post footer.
func FormatID(repository string, number int) string {
	return repository + " #" + strconv.Itoa(number)
}

// Format turns an issue into a candidate.
func (f *Formatter) Format(issue source.Issue) Candidate {
	c, _ := f.Explain(issue)
	return c
}

// Explain formats an issue and reports how the title budget was spent.
func (f *Formatter) Explain(issue source.Issue) (Candidate, Breakdown) {
	id := FormatID(issue.Repository, issue.Number)
	footer := utf8.RuneCountInString(id) + footerSeparators + f.LinkLength
	remaining := f.MaxLength - footer

	b := Breakdown{
		MaxLength:  f.MaxLength,
		LinkLength: f.LinkLength,
		Footer:     footer,
		Remaining:  remaining,
	}

	// The title must stay on the first line of the post.
	full := norm.NFC.String(strings.Join(strings.Fields(issue.Title), " "))
	title := enforceLength(full, max(remaining, 1))

	// Best-effort: the platform may shorten dotted names to LinkLength, but
	// only when they are shorter than that to begin with.
	for _, match := range domainPattern.FindAllString(title, -1) {
		minPair := minAdjacentSum(match)
		if minPair >= f.LinkLength {
			continue
		}
		deduction := f.LinkLength - minPair
		remaining -= deduction
		b.Compensations = append(b.Compensations, Compensation{
			Match:     match,
			MinPair:   minPair,
			Deduction: deduction,
		})
	}

	remaining = max(remaining, 1)
	title = enforceLength(title, remaining)

	b.Final = remaining
	b.Truncated = title != full

	return Candidate{
		ID:        id,
		Title:     title,
		URL:       issue.URL,
		FullTitle: full,
	}, b
}

// Render returns the literal post text for a candidate.
func Render(c Candidate) string {
	return c.Title + "\n" + c.ID + " " + c.URL
}

// DisplayLength is the rendered length as the platform counts it, with the
// url displayed at linkLength characters. Every rune counts as one, so titles
// with characters the platform weights double (CJK, most emoji) can still
// exceed the limit.
func DisplayLength(c Candidate, linkLength int) int {
	return utf8.RuneCountInString(c.Title) + 1 + utf8.RuneCountInString(c.ID) + 1 + linkLength
}

// enforceLength truncates value to length runes, replacing the last kept
// rune with an ellipsis.
func enforceLength(value string, length int) string {
	if utf8.RuneCountInString(value) <= length {
		return value
	}
	runes := []rune(value)
	return string(runes[:length-1]) + Ellipsis
}

// minAdjacentSum returns the smallest combined rune length of two
// neighbouring dot-separated segments.
func minAdjacentSum(match string) int {
	segments := strings.Split(match, ".")
	best := -1
	for i := 1; i < len(segments); i++ {
		sum := utf8.RuneCountInString(segments[i-1]) + utf8.RuneCountInString(segments[i])
		if best < 0 || sum < best {
			best = sum
		}
	}
	return best
}
