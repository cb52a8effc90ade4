package feedsync

import (
	"time"

	"github.com/ppiankov/issuetweet/internal/compose"
	"github.com/ppiankov/issuetweet/internal/history"
)

// Outcome is one publish attempt. Err is nil on success.
type Outcome struct {
	Candidate compose.Candidate
	Text      string
	Err       error
}

// FeedResult records what one feed pass saw and did.
type FeedResult struct {
	Account       string
	Repositories  []string
	IssuesFetched int
	OutsideWindow int
	Excluded      int
	Candidates    []compose.Candidate
	Duplicates    []history.Skipped
	Capped        []compose.Candidate
	Published     []Outcome
	Err           error
	StartedAt     time.Time
	FinishedAt    time.Time
}

// PublishedCount counts successful publishes.
func (r FeedResult) PublishedCount() int {
	n := 0
	for _, o := range r.Published {
		if o.Err == nil {
			n++
		}
	}
	return n
}

// RunResult is every feed pass of one invocation, in configuration order.
type RunResult struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	DryRun     bool
	Feeds      []FeedResult
}

// Failed counts feeds that ended in an error.
func (r RunResult) Failed() int {
	n := 0
	for _, f := range r.Feeds {
		if f.Err != nil {
			n++
		}
	}
	return n
}

// Published counts successful publishes across all feeds.
func (r RunResult) Published() int {
	n := 0
	for _, f := range r.Feeds {
		n += f.PublishedCount()
	}
	return n
}
