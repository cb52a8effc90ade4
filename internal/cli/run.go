package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ppiankov/issuetweet/internal/compose"
	"github.com/ppiankov/issuetweet/internal/config"
	"github.com/ppiankov/issuetweet/internal/feedsync"
	"github.com/ppiankov/issuetweet/internal/metrics"
	"github.com/ppiankov/issuetweet/internal/privacy"
	"github.com/ppiankov/issuetweet/internal/publish"
	"github.com/ppiankov/issuetweet/internal/report"
	"github.com/ppiankov/issuetweet/internal/source"
	"github.com/ppiankov/issuetweet/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var (
	runDryRun  bool
	runFormat  string
	runFeeds   []string
	runNoColor bool
	runEvery   string
)

// runSyncAction is swapped out in tests.
var runSyncAction = syncAction

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one sync pass over every configured feed",
	Args:  cobra.NoArgs,
	RunE:  runAction,
}

func init() {
	addRunFlags(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&runDryRun, "dry-run", false, "read history and compose posts without publishing")
	cmd.Flags().StringVar(&runFormat, "format", report.FormatTerminal, "report format: terminal, json, markdown")
	cmd.Flags().StringSliceVar(&runFeeds, "feed", nil, "only sync the feed for this account (repeatable)")
	cmd.Flags().BoolVar(&runNoColor, "no-color", false, "disable ANSI colors")
	cmd.Flags().StringVar(&runEvery, "every", "", "repeat the sync at this interval until interrupted (e.g. 15m)")
}

func runAction(cmd *cobra.Command, args []string) error {
	every, err := parseRunEvery(runEvery)
	if err != nil {
		return err
	}
	if every == 0 {
		return runSyncAction(cmd, args)
	}

	ctx := commandContext(cmd)
	return runWatch(ctx, every, func() error {
		return runSyncAction(cmd, args)
	})
}

func parseRunEvery(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse --every: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("--every must be positive, got %s", s)
	}
	return d, nil
}

// runWatch calls runOnce immediately and then every interval until ctx is
// done. A failed pass is logged and the next one still runs; the last pass's
// error is returned once ctx is done.
func runWatch(ctx context.Context, every time.Duration, runOnce func() error) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		err := runOnce()
		if err != nil {
			logger.Error("sync pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return err
		case <-ticker.C:
		}
	}
}

func syncAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	feeds, err := selectFeeds(cfg.Feeds, runFeeds)
	if err != nil {
		return err
	}

	formatter, err := report.New(runFormat, !runNoColor)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	syncer, err := newSynchronizer(cfg, runDryRun, metrics.NewCollector(reg), logger)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)

	result, runErr := syncer.Run(ctx, feeds)

	if err := formatter.Format(cmd.OutOrStdout(), result); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	errs := []error{runErr}
	if cfg.Journal.Path != "" {
		if err := recordJournal(ctx, cfg.Journal, result, logger); err != nil {
			logger.Error("journal not updated", "path", cfg.Journal.Path, "error", err)
			errs = append(errs, err)
		}
	}
	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile, reg); err != nil {
			logger.Error("metrics textfile not written", "path", cfg.Metrics.Textfile, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// selectFeeds keeps the feeds whose account is named in only, preserving
// configuration order. An empty only keeps every feed.
func selectFeeds(feeds []config.Feed, only []string) ([]config.Feed, error) {
	if len(only) == 0 {
		return feeds, nil
	}

	wanted := make(map[string]bool, len(only))
	for _, name := range only {
		wanted[normalizeAccount(name)] = false
	}

	var selected []config.Feed
	for _, feed := range feeds {
		key := normalizeAccount(feed.Twitter.Account)
		if _, ok := wanted[key]; ok {
			wanted[key] = true
			selected = append(selected, feed)
		}
	}

	var unknown []string
	for _, name := range only {
		if !wanted[normalizeAccount(name)] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("--feed: no feed configured for %s", strings.Join(unknown, ", "))
	}
	return selected, nil
}

func normalizeAccount(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "@"))
}

// newSynchronizer wires the GitHub source, one Twitter publisher per feed
// and the title redactor from cfg.
func newSynchronizer(cfg *config.Config, dryRun bool, rec metrics.Recorder, logger *slog.Logger) (*feedsync.Synchronizer, error) {
	var redactor *privacy.Redactor
	if cfg.Privacy.Redact.Enabled {
		r, err := privacy.New(cfg.Privacy.Redact.Patterns, cfg.Privacy.Redact.Replacement)
		if err != nil {
			return nil, fmt.Errorf("privacy.redact: %w", err)
		}
		redactor = r
	}

	src := source.NewGitHub(source.GitHubOptions{
		Token:            cfg.GitHub.Token,
		SkipPullRequests: cfg.GitHub.SkipPullRequests,
		Timeout:          cfg.Sync.HTTPTimeout.Duration,
	})

	return feedsync.New(feedsync.Options{
		Source:          src,
		Publishers:      publisherFactory(cfg.Sync.HTTPTimeout.Duration, dryRun, logger),
		Formatter:       compose.New(cfg.Tweet.MaxLength, cfg.Tweet.LinkLength),
		Redactor:        redactor,
		ExcludedAuthors: cfg.ExcludedAccounts,
		Backlog:         cfg.Sync.Backlog.Duration,
		MaxPerRun:       cfg.Sync.MaxPerRun,
		HistorySize:     cfg.Sync.HistorySize,
		DryRun:          dryRun,
		Metrics:         rec,
		Logger:          logger,
	})
}

func publisherFactory(timeout time.Duration, dryRun bool, logger *slog.Logger) feedsync.PublisherFactory {
	return func(feed config.Feed) (publish.Publisher, error) {
		tw, err := newTwitter(feed.Twitter, timeout)
		if err != nil {
			return nil, err
		}
		if dryRun {
			return publish.NewDryRun(tw, logger.With("feed", tw.Account())), nil
		}
		return tw, nil
	}
}

func newTwitter(tc config.TwitterConfig, timeout time.Duration) (*publish.Twitter, error) {
	return publish.NewTwitter(publish.TwitterOptions{
		Account:           tc.Account,
		ConsumerKey:       tc.ConsumerKey,
		ConsumerSecret:    tc.ConsumerSecret,
		AccessToken:       tc.AccessToken,
		AccessTokenSecret: tc.AccessTokenSecret,
		Timeout:           timeout,
	})
}

// recordJournal appends the run to the sqlite journal and prunes runs older
// than the retention window.
func recordJournal(ctx context.Context, jc config.JournalConfig, result feedsync.RunResult, logger *slog.Logger) error {
	db, err := store.Open(jc.Path)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.RecordRun(ctx, journalRun(result)); err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	if jc.RetainDays > 0 {
		pruned, err := db.PruneOld(ctx, time.Now(), jc.RetainDays)
		if err != nil {
			return fmt.Errorf("prune journal: %w", err)
		}
		if pruned > 0 {
			logger.Debug("journal pruned", "runs", pruned, "retain_days", jc.RetainDays)
		}
	}
	return nil
}

func journalRun(result feedsync.RunResult) store.Run {
	run := store.Run{
		ID:         result.RunID,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
		DryRun:     result.DryRun,
		Feeds:      make([]store.FeedRun, 0, len(result.Feeds)),
	}
	for _, fr := range result.Feeds {
		entry := store.FeedRun{
			Account:      fr.Account,
			Repositories: fr.Repositories,
			StartedAt:    fr.StartedAt,
			FinishedAt:   fr.FinishedAt,
			Fetched:      fr.IssuesFetched,
			Candidates:   len(fr.Candidates),
			Duplicates:   len(fr.Duplicates),
			Capped:       len(fr.Capped),
			Published:    fr.PublishedCount(),
		}
		if fr.Err != nil {
			entry.Error = fr.Err.Error()
		}
		run.Feeds = append(run.Feeds, entry)
	}
	return run
}
