// Package report renders the outcome of a sync run for humans and tools.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/ppiankov/issuetweet/internal/feedsync"
)

// Formatter writes a formatted run report to w.
type Formatter interface {
	Format(w io.Writer, run feedsync.RunResult) error
}

// Format names accepted by New.
const (
	FormatTerminal = "terminal"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// New returns the formatter for name. Color applies to the terminal format.
func New(name string, color bool) (Formatter, error) {
	switch name {
	case "", FormatTerminal:
		return NewTerminal(color), nil
	case FormatJSON:
		return NewJSON(), nil
	case FormatMarkdown:
		return NewMarkdown(), nil
	default:
		return nil, fmt.Errorf("unknown format %q (want terminal, json or markdown)", name)
	}
}

func shortID(runID string) string {
	if len(runID) > 8 {
		return runID[:8]
	}
	return runID
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(100 * time.Millisecond).String()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
