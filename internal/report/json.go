package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/ppiankov/issuetweet/internal/compose"
	"github.com/ppiankov/issuetweet/internal/feedsync"
)

type jsonRun struct {
	RunID      string     `json:"run_id"`
	StartedAt  string     `json:"started_at"`
	FinishedAt string     `json:"finished_at"`
	DryRun     bool       `json:"dry_run"`
	Published  int        `json:"published"`
	Failed     int        `json:"failed"`
	Feeds      []jsonFeed `json:"feeds"`
}

type jsonFeed struct {
	Account       string          `json:"account"`
	Repositories  []string        `json:"repositories"`
	IssuesFetched int             `json:"issues_fetched"`
	OutsideWindow int             `json:"outside_window"`
	Excluded      int             `json:"excluded"`
	Candidates    int             `json:"candidates"`
	Duplicates    []jsonDuplicate `json:"duplicates"`
	Published     []jsonPost      `json:"published"`
	Deferred      []jsonPost      `json:"deferred"`
	Error         string          `json:"error,omitempty"`
	DurationMS    int64           `json:"duration_ms"`
}

type jsonDuplicate struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

type jsonPost struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// JSONFormatter formats a run report as JSON.
type JSONFormatter struct{}

// NewJSON creates a JSON formatter.
func NewJSON() *JSONFormatter {
	return &JSONFormatter{}
}

// Format writes the run as indented JSON to w.
func (f *JSONFormatter) Format(w io.Writer, run feedsync.RunResult) error {
	out := jsonRun{
		RunID:      run.RunID,
		StartedAt:  run.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt: run.FinishedAt.UTC().Format(time.RFC3339),
		DryRun:     run.DryRun,
		Published:  run.Published(),
		Failed:     run.Failed(),
		Feeds:      make([]jsonFeed, 0, len(run.Feeds)),
	}
	for _, fr := range run.Feeds {
		out.Feeds = append(out.Feeds, toJSONFeed(fr))
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func toJSONFeed(fr feedsync.FeedResult) jsonFeed {
	jf := jsonFeed{
		Account:       fr.Account,
		Repositories:  fr.Repositories,
		IssuesFetched: fr.IssuesFetched,
		OutsideWindow: fr.OutsideWindow,
		Excluded:      fr.Excluded,
		Candidates:    len(fr.Candidates),
		Duplicates:    make([]jsonDuplicate, 0, len(fr.Duplicates)),
		Published:     make([]jsonPost, 0, len(fr.Published)),
		Deferred:      make([]jsonPost, 0, len(fr.Capped)),
		Error:         errString(fr.Err),
		DurationMS:    fr.FinishedAt.Sub(fr.StartedAt).Milliseconds(),
	}
	if jf.Repositories == nil {
		jf.Repositories = []string{}
	}
	for _, d := range fr.Duplicates {
		jf.Duplicates = append(jf.Duplicates, jsonDuplicate{ID: d.Candidate.ID, Reason: string(d.Reason)})
	}
	for _, o := range fr.Published {
		p := toJSONPost(o.Candidate)
		p.Text = o.Text
		p.Error = errString(o.Err)
		jf.Published = append(jf.Published, p)
	}
	for _, c := range fr.Capped {
		jf.Deferred = append(jf.Deferred, toJSONPost(c))
	}
	return jf
}

func toJSONPost(c compose.Candidate) jsonPost {
	return jsonPost{ID: c.ID, Title: c.Title, URL: c.URL}
}
