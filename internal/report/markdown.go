package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/ppiankov/issuetweet/internal/feedsync"
)

// MarkdownFormatter formats a run report as Markdown.
type MarkdownFormatter struct{}

// NewMarkdown creates a Markdown formatter.
func NewMarkdown() *MarkdownFormatter {
	return &MarkdownFormatter{}
}

// Format writes the run as Markdown to w.
func (f *MarkdownFormatter) Format(w io.Writer, run feedsync.RunResult) error {
	fmt.Fprintf(w, "# issuetweet run %s\n\n", shortID(run.RunID))
	summary := fmt.Sprintf("%d feeds, %d published, %d failed", len(run.Feeds), run.Published(), run.Failed())
	if run.DryRun {
		summary += " (dry run)"
	}
	fmt.Fprintf(w, "%s\n\n", summary)

	if len(run.Feeds) == 0 {
		fmt.Fprintln(w, "No feeds configured.")
		return nil
	}

	for _, fr := range run.Feeds {
		f.writeFeed(w, fr)
	}
	return nil
}

func (f *MarkdownFormatter) writeFeed(w io.Writer, fr feedsync.FeedResult) {
	fmt.Fprintf(w, "## @%s\n\n", fr.Account)
	fmt.Fprintf(w, "Repositories: %s\n\n", strings.Join(fr.Repositories, ", "))

	fmt.Fprintln(w, "| fetched | outside window | excluded | candidates | already posted | deferred |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|")
	fmt.Fprintf(w, "| %d | %d | %d | %d | %d | %d |\n\n",
		fr.IssuesFetched, fr.OutsideWindow, fr.Excluded, len(fr.Candidates), len(fr.Duplicates), len(fr.Capped))

	if len(fr.Published) > 0 {
		fmt.Fprintln(w, "### Published")
		fmt.Fprintln(w)
		for _, o := range fr.Published {
			status := ""
			if o.Err != nil {
				status = " (failed)"
			}
			fmt.Fprintf(w, "- [%s](%s) %s%s\n", o.Candidate.ID, o.Candidate.URL, escapeMarkdown(o.Candidate.Title), status)
		}
		fmt.Fprintln(w)
	}

	if len(fr.Capped) > 0 {
		fmt.Fprintln(w, "### Deferred")
		fmt.Fprintln(w)
		for _, c := range fr.Capped {
			fmt.Fprintf(w, "- [%s](%s) %s\n", c.ID, c.URL, escapeMarkdown(c.Title))
		}
		fmt.Fprintln(w)
	}

	if fr.Err != nil {
		fmt.Fprintf(w, "**Error:** `%s`\n\n", fr.Err)
	}
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"*", `\*`,
	"_", `\_`,
	"`", "\\`",
	"[", `\[`,
	"]", `\]`,
)

// escapeMarkdown keeps issue titles from being read as emphasis or links.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
