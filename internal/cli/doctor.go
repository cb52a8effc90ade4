package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/issuetweet/internal/config"
	"github.com/ppiankov/issuetweet/internal/source"
	"github.com/ppiankov/issuetweet/internal/store"
	"github.com/spf13/cobra"
)

// lowRateLimit is the remaining GitHub quota below which doctor warns.
const lowRateLimit = 100

var doctorOffline bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, credentials and API reachability",
	Args:  cobra.NoArgs,
	RunE:  doctorAction,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorOffline, "offline", false, "skip GitHub and X/Twitter requests")
}

func doctorAction(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	if !runDoctor(ctx, cmd.OutOrStdout(), configDir, doctorOffline) {
		return errors.New("some checks failed")
	}
	return nil
}

// runDoctor prints one line per check and reports whether all passed.
func runDoctor(ctx context.Context, w io.Writer, dir string, offline bool) bool {
	ok := true

	// Config dir
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		printCheck(w, false, "config directory %s", dir)
		return false
	}
	printCheck(w, true, "config directory %s", dir)

	// Config file
	cfg, err := config.Load(dir)
	if err != nil {
		printCheck(w, false, "config.yaml: %v", err)
		return false
	}
	repos := 0
	for _, feed := range cfg.Feeds {
		repos += len(feed.Repositories)
	}
	printCheck(w, true, "config.yaml (%d feeds, %d repositories)", len(cfg.Feeds), repos)

	if cfg.GitHub.Token == "" {
		printInfo(w, "github token not set, requests are anonymous and heavily rate limited")
	}

	// Journal
	if cfg.Journal.Path != "" {
		db, err := store.Open(cfg.Journal.Path)
		if err != nil {
			printCheck(w, false, "journal: %v", err)
			ok = false
		} else {
			_ = db.Close()
			printCheck(w, true, "journal %s", cfg.Journal.Path)
		}
	}

	// Metrics textfile
	if cfg.Metrics.Textfile != "" {
		metricsDir := filepath.Dir(cfg.Metrics.Textfile)
		if info, err := os.Stat(metricsDir); err != nil || !info.IsDir() {
			printCheck(w, false, "metrics textfile directory %s", metricsDir)
			ok = false
		} else {
			printCheck(w, true, "metrics textfile %s", cfg.Metrics.Textfile)
		}
	}

	if offline {
		fmt.Fprintln(w, "\nSkipped network checks (--offline).")
		return ok
	}

	timeout := cfg.Sync.HTTPTimeout.Duration

	// GitHub
	gh := source.NewGitHub(source.GitHubOptions{Token: cfg.GitHub.Token, Timeout: timeout})
	remaining, limit, err := gh.RateLimit(ctx)
	if err != nil {
		printCheck(w, false, "github: %v", err)
		ok = false
	} else {
		printCheck(w, true, "github rate limit %d/%d", remaining, limit)
		if remaining < lowRateLimit {
			printInfo(w, "github quota nearly exhausted, feeds may fail until it resets")
		}
	}

	// Accounts
	for _, feed := range cfg.Feeds {
		if !checkAccount(ctx, w, feed, timeout) {
			ok = false
		}
	}

	return ok
}

// checkAccount verifies the feed's credentials by reading its latest post.
func checkAccount(ctx context.Context, w io.Writer, feed config.Feed, timeout time.Duration) bool {
	name := "@" + strings.TrimPrefix(feed.Twitter.Account, "@")
	tw, err := newTwitter(feed.Twitter, timeout)
	if err != nil {
		printCheck(w, false, "%s: %v", name, err)
		return false
	}
	posts, err := tw.Recent(ctx, 1)
	if err != nil {
		printCheck(w, false, "%s: %v", name, err)
		return false
	}
	printCheck(w, true, "%s (%d recent posts readable, %d repositories)", name, len(posts), len(feed.Repositories))
	return true
}

func printCheck(w io.Writer, pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Fprintf(w, "[%s] %s\n", mark, fmt.Sprintf(format, args...))
}

func printInfo(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "[INFO] %s\n", fmt.Sprintf(format, args...))
}
