package cli

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/issuetweet/internal/compose"
	"github.com/ppiankov/issuetweet/internal/config"
	"github.com/ppiankov/issuetweet/internal/feedsync"
	"github.com/ppiankov/issuetweet/internal/publish"
	"github.com/ppiankov/issuetweet/internal/store"
	"github.com/spf13/cobra"
)

func TestParseRunEvery(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{name: "empty", input: "", want: 0},
		{name: "valid duration", input: "30m", want: 30 * time.Minute},
		{name: "parse error", input: "abc", wantErr: true},
		{name: "zero duration", input: "0s", wantErr: true},
		{name: "negative duration", input: "-1m", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseRunEvery(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error", tt.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.name, err)
		}
		if got != tt.want {
			t.Fatalf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func stubSync(t *testing.T, fn func(*cobra.Command, []string) error) {
	t.Helper()
	oldEvery := runEvery
	oldSync := runSyncAction
	t.Cleanup(func() {
		runEvery = oldEvery
		runSyncAction = oldSync
	})
	runSyncAction = fn
}

func TestRunActionRunsOnceWithoutEvery(t *testing.T) {
	calls := 0
	stubSync(t, func(_ *cobra.Command, _ []string) error {
		calls++
		return nil
	})
	runEvery = ""

	if err := runAction(&cobra.Command{}, nil); err != nil {
		t.Fatalf("runAction failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("sync called %d times, want 1", calls)
	}
}

func TestRunActionReturnsSyncError(t *testing.T) {
	stubSync(t, func(_ *cobra.Command, _ []string) error {
		return errors.New("feed dotnetissues: boom")
	})
	runEvery = ""

	err := runAction(&cobra.Command{}, nil)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("err = %v, want sync error", err)
	}
}

func TestRunActionWatchModeImmediateThenInterval(t *testing.T) {
	interval := 80 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var times []time.Time
	stubSync(t, func(_ *cobra.Command, _ []string) error {
		mu.Lock()
		times = append(times, time.Now())
		count := len(times)
		mu.Unlock()
		if count >= 2 {
			cancel()
		}
		// Failed passes do not stop the watch loop.
		return errors.New("transient")
	})
	runEvery = interval.String()

	cmd := &cobra.Command{}
	cmd.SetContext(ctx)
	start := time.Now()

	if err := runAction(cmd, nil); err == nil || err.Error() != "transient" {
		t.Fatalf("runAction error = %v, want the last pass's error", err)
	}

	mu.Lock()
	got := append([]time.Time(nil), times...)
	mu.Unlock()

	if len(got) < 2 {
		t.Fatalf("sync called %d times, want at least 2", len(got))
	}
	if firstDelay := got[0].Sub(start); firstDelay >= interval {
		t.Fatalf("first run delayed by %v, want less than %v", firstDelay, interval)
	}
	minGap := interval - 10*time.Millisecond
	if gap := got[1].Sub(got[0]); gap < minGap {
		t.Fatalf("interval gap too short: got %v, want at least %v", gap, minGap)
	}
}

func TestRunWatchStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	calls := 0
	start := time.Now()
	err := runWatch(ctx, 10*time.Second, func() error {
		calls++
		cancel()
		return nil
	})
	if err != nil {
		t.Fatalf("runWatch failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("runOnce called %d times, want 1", calls)
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Fatalf("watch shutdown took too long: %v", elapsed)
	}
}

func TestRunWatchReturnsLastPassError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	passErr := errors.New("feed @acct: boom")
	err := runWatch(ctx, 10*time.Second, func() error {
		cancel()
		return passErr
	})
	if !errors.Is(err, passErr) {
		t.Fatalf("runWatch error = %v, want %v", err, passErr)
	}
}

func feedsFor(accounts ...string) []config.Feed {
	feeds := make([]config.Feed, 0, len(accounts))
	for _, a := range accounts {
		feeds = append(feeds, config.Feed{
			Repositories: []string{"dotnet/runtime"},
			Twitter:      config.TwitterConfig{Account: a},
		})
	}
	return feeds
}

func TestSelectFeeds(t *testing.T) {
	feeds := feedsFor("dotnetissues", "efissues", "aspnetissues")

	all, err := selectFeeds(feeds, nil)
	if err != nil || len(all) != 3 {
		t.Fatalf("no filter: %d feeds, err %v", len(all), err)
	}

	got, err := selectFeeds(feeds, []string{"@AspNetIssues", "dotnetissues"})
	if err != nil {
		t.Fatalf("selectFeeds: %v", err)
	}
	if len(got) != 2 || got[0].Twitter.Account != "dotnetissues" || got[1].Twitter.Account != "aspnetissues" {
		t.Errorf("selected = %+v, want configuration order", got)
	}

	_, err = selectFeeds(feeds, []string{"dotnetissues", "nobody"})
	if err == nil || !strings.Contains(err.Error(), "nobody") {
		t.Errorf("err = %v, want unknown feed error", err)
	}
}

func TestPublisherFactory(t *testing.T) {
	feed := config.Feed{
		Repositories: []string{"dotnet/runtime"},
		Twitter: config.TwitterConfig{
			Account:           "@dotnetissues",
			ConsumerKey:       "ck",
			ConsumerSecret:    "cs",
			AccessToken:       "at",
			AccessTokenSecret: "ats",
		},
	}

	pub, err := publisherFactory(time.Second, false, logger)(feed)
	if err != nil {
		t.Fatalf("live factory: %v", err)
	}
	if _, ok := pub.(*publish.Twitter); !ok {
		t.Errorf("live publisher = %T, want *publish.Twitter", pub)
	}

	pub, err = publisherFactory(time.Second, true, logger)(feed)
	if err != nil {
		t.Fatalf("dry-run factory: %v", err)
	}
	if _, ok := pub.(*publish.DryRun); !ok {
		t.Errorf("dry-run publisher = %T, want *publish.DryRun", pub)
	}

	feed.Twitter.AccessToken = ""
	if _, err := publisherFactory(time.Second, false, logger)(feed); err == nil {
		t.Error("expected error for missing credentials")
	}
}

func TestNewSynchronizer_BadRedactPattern(t *testing.T) {
	cfg := &config.Config{}
	cfg.Privacy.Redact.Enabled = true
	cfg.Privacy.Redact.Patterns = []string{"("}

	if _, err := newSynchronizer(cfg, false, nil, logger); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func sampleResult(start time.Time) feedsync.RunResult {
	c := compose.Candidate{ID: "dotnet/runtime #1", Title: "Crash", URL: "https://github.com/dotnet/runtime/issues/1"}
	return feedsync.RunResult{
		RunID:      "3b241101-e2bb-4255-8caf-4136c566a962",
		StartedAt:  start,
		FinishedAt: start.Add(time.Second),
		Feeds: []feedsync.FeedResult{
			{
				Account:       "dotnetissues",
				Repositories:  []string{"dotnet/runtime"},
				IssuesFetched: 4,
				Candidates:    []compose.Candidate{c, c},
				Capped:        []compose.Candidate{c},
				Published:     []feedsync.Outcome{{Candidate: c}},
				StartedAt:     start,
				FinishedAt:    start.Add(500 * time.Millisecond),
			},
			{
				Account:    "efissues",
				Published:  []feedsync.Outcome{{Candidate: c, Err: errors.New("forbidden")}},
				Err:        errors.New("publish dotnet/runtime #1: forbidden"),
				StartedAt:  start,
				FinishedAt: start.Add(time.Second),
			},
		},
	}
}

func TestJournalRun(t *testing.T) {
	start := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	run := journalRun(sampleResult(start))

	if run.ID != "3b241101-e2bb-4255-8caf-4136c566a962" || !run.StartedAt.Equal(start) {
		t.Errorf("run = %+v", run)
	}
	if len(run.Feeds) != 2 {
		t.Fatalf("feeds = %d, want 2", len(run.Feeds))
	}
	ok := run.Feeds[0]
	if ok.Fetched != 4 || ok.Candidates != 2 || ok.Capped != 1 || ok.Published != 1 || ok.Error != "" {
		t.Errorf("ok feed = %+v", ok)
	}
	bad := run.Feeds[1]
	if bad.Published != 0 || bad.Error != "publish dotnet/runtime #1: forbidden" {
		t.Errorf("failed feed = %+v", bad)
	}
}

func TestRecordJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal", "runs.db")
	start := time.Now().Add(-time.Minute)
	ctx := context.Background()

	jc := config.JournalConfig{Path: path, RetainDays: 30}
	if err := recordJournal(ctx, jc, sampleResult(start), logger); err != nil {
		t.Fatalf("recordJournal: %v", err)
	}

	db, err := store.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = db.Close() }()

	stats, err := db.AccountStats(ctx, start.Add(-time.Hour))
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("stats = %+v, want 2 accounts", stats)
	}
	if stats[0].Account != "dotnetissues" || stats[0].Published != 1 {
		t.Errorf("dotnetissues = %+v", stats[0])
	}
	if stats[1].Account != "efissues" || stats[1].Failures != 1 {
		t.Errorf("efissues = %+v", stats[1])
	}
}

func TestSyncAction_ConfigErrors(t *testing.T) {
	useConfigDir(t, "")
	if err := syncAction(&cobra.Command{}, nil); err == nil || !strings.Contains(err.Error(), "load config") {
		t.Errorf("missing config: err = %v", err)
	}

	useConfigDir(t, testConfig(""))
	oldFeeds := runFeeds
	t.Cleanup(func() { runFeeds = oldFeeds })
	runFeeds = []string{"nobody"}

	if err := syncAction(&cobra.Command{}, nil); err == nil || !strings.Contains(err.Error(), "--feed") {
		t.Errorf("unknown feed: err = %v", err)
	}
}

func TestSyncAction_UnknownFormat(t *testing.T) {
	useConfigDir(t, testConfig(""))
	oldFormat := runFormat
	t.Cleanup(func() { runFormat = oldFormat })
	runFormat = "xml"

	if err := syncAction(&cobra.Command{}, nil); err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Errorf("err = %v", err)
	}
}
