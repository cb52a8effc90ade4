// Package history recovers which issues were already posted by parsing the
// text of an account's recent posts.
package history

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ppiankov/issuetweet/internal/compose"
)

// Layout identifies which post-text format a published post was written in.
type Layout int

const (
	// LayoutUnknown is a post nothing can be recovered from.
	LayoutUnknown Layout = iota
	// LayoutFooterID is "title\n<id> <url>"; the id is trusted.
	LayoutFooterID
	// LayoutTruncatedFooter is a two-line post whose footer was cut with an
	// ellipsis; only the first line can be matched.
	LayoutTruncatedFooter
	// LayoutTitleOnly is a single-line post whose title was cut with an
	// ellipsis; the text before it is a title prefix.
	LayoutTitleOnly
)

func (l Layout) String() string {
	switch l {
	case LayoutFooterID:
		return "footer_id"
	case LayoutTruncatedFooter:
		return "truncated_footer"
	case LayoutTitleOnly:
		return "title_only"
	default:
		return "unknown"
	}
}

// Reason says why a candidate was considered already posted.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonExactID     Reason = "exact_id"
	ReasonTitlePrefix Reason = "title_prefix"
)

// Entry is what one published post yields.
type Entry struct {
	Layout Layout
	ID     string
	Prefix string
}

// Index is the set of keys recovered from a post history.
type Index struct {
	ExactIDs      map[string]struct{}
	TitlePrefixes []string
}

// compactID matches footer ids written without the space before '#'.
var compactID = regexp.MustCompile(`^(\S+?)\s*#(\d+)$`)

// Parse classifies one post text and extracts its id or title prefix.
func Parse(text string) Entry {
	firstLine, footer, twoLine := strings.Cut(text, "\n")

	switch {
	case twoLine && strings.Contains(footer, compose.Ellipsis):
		return entryOrUnknown(Entry{Layout: LayoutTruncatedFooter, Prefix: firstLine})
	case twoLine:
		return entryOrUnknown(Entry{Layout: LayoutFooterID, ID: footerID(footer)})
	default:
		prefix, _, _ := strings.Cut(text, compose.Ellipsis)
		return entryOrUnknown(Entry{Layout: LayoutTitleOnly, Prefix: prefix})
	}
}

// entryOrUnknown drops entries whose key is blank; an empty prefix would
// match every candidate.
func entryOrUnknown(e Entry) Entry {
	switch e.Layout {
	case LayoutFooterID:
		if e.ID == "" {
			return Entry{Layout: LayoutUnknown}
		}
	case LayoutTruncatedFooter, LayoutTitleOnly:
		if titleStem(e.Prefix) == "" {
			return Entry{Layout: LayoutUnknown}
		}
	}
	return e
}

// footerID strips the trailing url from a footer and normalizes the id.
func footerID(footer string) string {
	fields := strings.Fields(footer)
	if n := len(fields); n > 0 && strings.Contains(fields[n-1], "://") {
		fields = fields[:n-1]
	}
	return NormalizeID(strings.Join(fields, " "))
}

// NormalizeID maps historical id spellings ("owner\repo#42",
// "owner/repo#42") onto the current "owner/repo #42".
func NormalizeID(id string) string {
	id = strings.ReplaceAll(strings.TrimSpace(id), `\`, "/")
	if m := compactID.FindStringSubmatch(id); m != nil {
		if n, err := strconv.Atoi(m[2]); err == nil {
			return compose.FormatID(m[1], n)
		}
	}
	return id
}

// Partition parses every post text into one index.
func Partition(texts []string) Index {
	idx := Index{ExactIDs: make(map[string]struct{})}
	for _, text := range texts {
		e := Parse(text)
		switch e.Layout {
		case LayoutFooterID:
			idx.ExactIDs[e.ID] = struct{}{}
		case LayoutTruncatedFooter, LayoutTitleOnly:
			idx.TitlePrefixes = append(idx.TitlePrefixes, e.Prefix)
		}
	}
	return idx
}

// minStemRunes is the shortest stem compared against a full title.
const minStemRunes = 10

// Seen reports whether c matches an id or title prefix in the index. The
// full title is also compared with the prefix minus its ellipsis, so posts
// that were truncated under a different length budget still match. Stems
// shorter than minStemRunes only match the final title.
func (idx Index) Seen(c compose.Candidate) (bool, Reason) {
	if _, ok := idx.ExactIDs[NormalizeID(c.ID)]; ok {
		return true, ReasonExactID
	}
	for _, prefix := range idx.TitlePrefixes {
		if strings.HasPrefix(c.Title, prefix) {
			return true, ReasonTitlePrefix
		}
		if stem := titleStem(prefix); utf8.RuneCountInString(stem) >= minStemRunes && strings.HasPrefix(c.FullTitle, stem) {
			return true, ReasonTitlePrefix
		}
	}
	return false, ReasonNone
}

// titleStem is a prefix without its trailing ellipsis or surrounding space.
func titleStem(prefix string) string {
	return strings.TrimSpace(strings.TrimSuffix(prefix, compose.Ellipsis))
}

// Skipped is a candidate dropped by Filter.
type Skipped struct {
	Candidate compose.Candidate
	Reason    Reason
}

// Filter splits candidates into unseen and already posted, keeping order.
func (idx Index) Filter(candidates []compose.Candidate) (kept []compose.Candidate, skipped []Skipped) {
	for _, c := range candidates {
		if seen, reason := idx.Seen(c); seen {
			skipped = append(skipped, Skipped{Candidate: c, Reason: reason})
			continue
		}
		kept = append(kept, c)
	}
	return kept, skipped
}
