// Package feedsync drives one synchronization pass per feed: gather new
// issues, reconcile them against the account's post history and publish what
// is left.
package feedsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/issuetweet/internal/compose"
	"github.com/ppiankov/issuetweet/internal/config"
	"github.com/ppiankov/issuetweet/internal/history"
	"github.com/ppiankov/issuetweet/internal/metrics"
	"github.com/ppiankov/issuetweet/internal/privacy"
	"github.com/ppiankov/issuetweet/internal/publish"
	"github.com/ppiankov/issuetweet/internal/source"
	"golang.org/x/sync/errgroup"
)

// Skip reasons reported to metrics in addition to the history reasons.
const (
	ReasonOutsideWindow  = "outside_window"
	ReasonExcludedAuthor = "excluded_author"
	ReasonDuplicateIssue = "duplicate_issue"
	ReasonCapped         = "capped"
)

// PublisherFactory builds the publisher for one feed.
type PublisherFactory func(feed config.Feed) (publish.Publisher, error)

// Options configures a Synchronizer. Source and Publishers are required.
type Options struct {
	Source          source.IssueSource
	Publishers      PublisherFactory
	Formatter       *compose.Formatter
	Redactor        *privacy.Redactor
	ExcludedAuthors []string
	Backlog         time.Duration
	MaxPerRun       int
	HistorySize     int
	DryRun          bool
	Now             func() time.Time
	Metrics         metrics.Recorder
	Logger          *slog.Logger
}

// Synchronizer holds everything a pass needs; it has no package-level state.
type Synchronizer struct {
	source      source.IssueSource
	publishers  PublisherFactory
	formatter   *compose.Formatter
	redactor    *privacy.Redactor
	excluded    map[string]struct{}
	backlog     time.Duration
	maxPerRun   int
	historySize int
	dryRun      bool
	now         func() time.Time
	metrics     metrics.Recorder
	logger      *slog.Logger
}

// New validates opts and fills defaults.
func New(opts Options) (*Synchronizer, error) {
	if opts.Source == nil {
		return nil, errors.New("feedsync: issue source is required")
	}
	if opts.Publishers == nil {
		return nil, errors.New("feedsync: publisher factory is required")
	}

	s := &Synchronizer{
		source:      opts.Source,
		publishers:  opts.Publishers,
		formatter:   opts.Formatter,
		redactor:    opts.Redactor,
		excluded:    make(map[string]struct{}, len(opts.ExcludedAuthors)),
		backlog:     opts.Backlog,
		maxPerRun:   opts.MaxPerRun,
		historySize: opts.HistorySize,
		dryRun:      opts.DryRun,
		now:         opts.Now,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
	}
	for _, login := range opts.ExcludedAuthors {
		s.excluded[strings.ToLower(strings.TrimSpace(login))] = struct{}{}
	}
	if s.formatter == nil {
		s.formatter = compose.New(compose.DefaultMaxLength, compose.DefaultLinkLength)
	}
	if s.backlog <= 0 {
		s.backlog = config.DefaultBacklog
	}
	if s.maxPerRun <= 0 {
		s.maxPerRun = config.DefaultMaxPerRun
	}
	if s.historySize <= 0 {
		s.historySize = config.DefaultHistorySize
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop{}
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s, nil
}

// Run synchronizes feeds one after another in the order given. A failing
// feed does not stop the others; the returned error joins every feed error.
func (s *Synchronizer) Run(ctx context.Context, feeds []config.Feed) (RunResult, error) {
	res := RunResult{
		RunID:     uuid.NewString(),
		StartedAt: s.now(),
		DryRun:    s.dryRun,
	}
	logger := s.logger.With("run_id", res.RunID)
	logger.Info("sync started", "feeds", len(feeds), "dry_run", s.dryRun)

	var errs []error
	for _, feed := range feeds {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		fr, err := s.syncFeed(ctx, feed, logger)
		res.Feeds = append(res.Feeds, fr)
		if err != nil {
			errs = append(errs, fmt.Errorf("feed %s: %w", feed.Twitter.Account, err))
		}
	}

	res.FinishedAt = s.now()
	logger.Info("sync finished",
		"published", res.Published(),
		"failed_feeds", res.Failed(),
		"duration", res.FinishedAt.Sub(res.StartedAt))
	return res, errors.Join(errs...)
}

// SyncFeed runs one feed. The returned error is also stored in the result.
func (s *Synchronizer) SyncFeed(ctx context.Context, feed config.Feed) (FeedResult, error) {
	return s.syncFeed(ctx, feed, s.logger)
}

func (s *Synchronizer) syncFeed(ctx context.Context, feed config.Feed, logger *slog.Logger) (FeedResult, error) {
	account := feed.Twitter.Account
	logger = logger.With("feed", account)

	res := FeedResult{
		Account:      account,
		Repositories: append([]string(nil), feed.Repositories...),
		StartedAt:    s.now(),
	}
	err := s.runFeed(ctx, feed, &res, logger)
	res.FinishedAt = s.now()
	res.Err = err

	s.metrics.FeedDuration(account, res.FinishedAt.Sub(res.StartedAt))
	if err != nil {
		s.metrics.FeedFailed(account)
		logger.Error("feed failed", "error", err, "published", res.PublishedCount())
		return res, err
	}
	s.metrics.FeedSucceeded(account, res.FinishedAt)
	logger.Info("feed synchronized",
		"fetched", res.IssuesFetched,
		"candidates", len(res.Candidates),
		"duplicates", len(res.Duplicates),
		"capped", len(res.Capped),
		"published", res.PublishedCount())
	return res, nil
}

func (s *Synchronizer) runFeed(ctx context.Context, feed config.Feed, res *FeedResult, logger *slog.Logger) error {
	account := feed.Twitter.Account
	pub, err := s.publishers(feed)
	if err != nil {
		return fmt.Errorf("create publisher: %w", err)
	}

	since := res.StartedAt.Add(-s.backlog)
	perRepo, posts, err := s.gather(ctx, feed.Repositories, pub, since, logger)
	if err != nil {
		return err
	}

	issues := s.filterIssues(account, perRepo, since, res)
	s.metrics.IssuesFetched(account, res.IssuesFetched)

	cands := make([]compose.Candidate, 0, len(issues))
	for _, is := range issues {
		is.Title = s.redactor.Apply(is.Title)
		cands = append(cands, s.formatter.Format(is))
	}
	res.Candidates = cands
	s.metrics.Candidates(account, len(cands))

	kept, dups := history.Partition(posts).Filter(cands)
	res.Duplicates = dups
	for _, d := range dups {
		s.metrics.Skipped(account, string(d.Reason), 1)
		logger.Debug("already posted", "id", d.Candidate.ID, "reason", d.Reason)
	}

	if len(kept) > s.maxPerRun {
		res.Capped = kept[s.maxPerRun:]
		kept = kept[:s.maxPerRun]
		s.metrics.Skipped(account, ReasonCapped, len(res.Capped))
		logger.Warn("publish cap reached", "cap", s.maxPerRun, "deferred", len(res.Capped))
	}

	for _, c := range kept {
		if err := ctx.Err(); err != nil {
			return err
		}
		text := compose.Render(c)
		err := pub.Publish(ctx, text)
		res.Published = append(res.Published, Outcome{Candidate: c, Text: text, Err: err})
		if err != nil {
			s.metrics.PublishFailed(account)
			return fmt.Errorf("publish %s: %w", c.ID, err)
		}
		s.metrics.Published(account)
		logger.Info("published", "id", c.ID, "dry_run", s.dryRun)
	}
	return nil
}

// gather fetches every repository and the post history concurrently. Results
// are indexed by configuration position, so completion order never leaks into
// candidate order.
func (s *Synchronizer) gather(ctx context.Context, repos []string, pub publish.Publisher, since time.Time, logger *slog.Logger) ([][]source.Issue, []string, error) {
	g, gctx := errgroup.WithContext(ctx)

	perRepo := make([][]source.Issue, len(repos))
	for i, repo := range repos {
		g.Go(func() error {
			issues, err := s.source.Issues(gctx, repo, since)
			if err != nil {
				return fmt.Errorf("list issues %s: %w", repo, err)
			}
			logger.Debug("issues fetched", "repository", repo, "count", len(issues))
			perRepo[i] = issues
			return nil
		})
	}

	var posts []string
	g.Go(func() error {
		texts, err := pub.Recent(gctx, s.historySize)
		if err != nil {
			return fmt.Errorf("read post history: %w", err)
		}
		logger.Debug("history fetched", "posts", len(texts))
		posts = texts
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return perRepo, posts, nil
}

// filterIssues flattens per-repository issues in order and drops those outside
// the window, by excluded authors, or repeated across repositories.
func (s *Synchronizer) filterIssues(account string, perRepo [][]source.Issue, since time.Time, res *FeedResult) []source.Issue {
	var out []source.Issue
	seen := make(map[string]struct{})
	for _, issues := range perRepo {
		for _, is := range issues {
			res.IssuesFetched++
			if !is.CreatedAt.After(since) {
				res.OutsideWindow++
				s.metrics.Skipped(account, ReasonOutsideWindow, 1)
				continue
			}
			if _, ok := s.excluded[strings.ToLower(is.AuthorLogin)]; ok {
				res.Excluded++
				s.metrics.Skipped(account, ReasonExcludedAuthor, 1)
				continue
			}
			id := compose.FormatID(is.Repository, is.Number)
			if _, ok := seen[id]; ok {
				s.metrics.Skipped(account, ReasonDuplicateIssue, 1)
				continue
			}
			seen[id] = struct{}{}
			out = append(out, is)
		}
	}
	return out
}
