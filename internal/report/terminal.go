package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/ppiankov/issuetweet/internal/feedsync"
)

// TerminalFormatter formats a run report for terminal output.
type TerminalFormatter struct {
	color bool
}

// NewTerminal creates a terminal formatter. Set color=true for ANSI colors.
func NewTerminal(color bool) *TerminalFormatter {
	return &TerminalFormatter{color: color}
}

// Format writes one section per feed, in run order.
func (f *TerminalFormatter) Format(w io.Writer, run feedsync.RunResult) error {
	header := fmt.Sprintf("issuetweet run %s: %d feeds, %d published, %d failed",
		shortID(run.RunID), len(run.Feeds), run.Published(), run.Failed())
	if run.DryRun {
		header += " (dry run)"
	}
	fmt.Fprintln(w, f.bold(header))
	fmt.Fprintln(w)

	if len(run.Feeds) == 0 {
		fmt.Fprintln(w, "No feeds configured.")
		return nil
	}

	for _, fr := range run.Feeds {
		f.writeFeed(w, fr, run.DryRun)
	}
	return nil
}

func (f *TerminalFormatter) writeFeed(w io.Writer, fr feedsync.FeedResult, dryRun bool) {
	title := fmt.Sprintf("--- @%s (%s) ---", fr.Account, strings.Join(fr.Repositories, ", "))
	if fr.Err != nil {
		fmt.Fprintln(w, f.red(f.bold(title)))
	} else {
		fmt.Fprintln(w, f.green(f.bold(title)))
	}

	fmt.Fprintf(w, "  %s\n", f.dim(fmt.Sprintf(
		"fetched %d, outside window %d, excluded %d, candidates %d, already posted %d, deferred %d, took %s",
		fr.IssuesFetched, fr.OutsideWindow, fr.Excluded, len(fr.Candidates),
		len(fr.Duplicates), len(fr.Capped), formatDuration(fr.FinishedAt.Sub(fr.StartedAt)))))

	verb := "published"
	if dryRun {
		verb = "would publish"
	}
	for _, o := range fr.Published {
		if o.Err != nil {
			fmt.Fprintf(w, "  %s %s %s\n", f.red("failed"), o.Candidate.ID, o.Candidate.Title)
			continue
		}
		fmt.Fprintf(w, "  %s %s %s\n", f.green(verb), f.bold(o.Candidate.ID), o.Candidate.Title)
	}
	for _, c := range fr.Capped {
		fmt.Fprintf(w, "  %s %s %s\n", f.yellow("deferred"), c.ID, f.dim(c.Title))
	}
	if fr.Err != nil {
		fmt.Fprintf(w, "  %s %s\n", f.red("error:"), fr.Err)
	}
	fmt.Fprintln(w)
}

// ANSI helpers; no-op when color=false.

func (f *TerminalFormatter) bold(s string) string {
	return f.wrap("\033[1m", s)
}

func (f *TerminalFormatter) green(s string) string {
	return f.wrap("\033[32m", s)
}

func (f *TerminalFormatter) yellow(s string) string {
	return f.wrap("\033[33m", s)
}

func (f *TerminalFormatter) red(s string) string {
	return f.wrap("\033[31m", s)
}

func (f *TerminalFormatter) dim(s string) string {
	return f.wrap("\033[2m", s)
}

func (f *TerminalFormatter) wrap(code, s string) string {
	if !f.color {
		return s
	}
	return code + s + "\033[0m"
}
