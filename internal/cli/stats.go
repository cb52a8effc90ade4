package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ppiankov/issuetweet/internal/config"
	"github.com/ppiankov/issuetweet/internal/store"
	"github.com/spf13/cobra"
)

var (
	statsSince  string
	statsFormat string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize journaled runs per account",
	Args:  cobra.NoArgs,
	RunE:  statsAction,
}

func init() {
	statsCmd.Flags().StringVar(&statsSince, "since", "30d", "time window (e.g. 7d, 48h)")
	statsCmd.Flags().StringVar(&statsFormat, "format", "terminal", "output format: terminal, json")
}

// staleDays is how long an account may go without a journaled run before
// stats flags it.
const staleDays = 2

func statsAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Journal.Path == "" {
		return errors.New("journal is disabled; set journal.path in config.yaml")
	}

	sinceDur, err := parseDuration(statsSince)
	if err != nil {
		return fmt.Errorf("parse --since: %w", err)
	}
	if statsFormat != "terminal" && statsFormat != "json" && statsFormat != "" {
		return fmt.Errorf("unknown format %q (want terminal or json)", statsFormat)
	}

	db, err := store.Open(cfg.Journal.Path)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer func() { _ = db.Close() }()

	now := time.Now()
	stats, err := db.AccountStats(commandContext(cmd), now.Add(-sinceDur))
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	w := cmd.OutOrStdout()
	if statsFormat == "json" {
		return printStatsJSON(w, stats)
	}
	printStats(w, stats, sinceDur, now)
	return nil
}

type jsonStatsOutput struct {
	Accounts []jsonAccountStats `json:"accounts"`
	Total    jsonTotals         `json:"total"`
}

type jsonAccountStats struct {
	Account    string `json:"account"`
	Runs       int    `json:"runs"`
	Failures   int    `json:"failures"`
	Fetched    int    `json:"fetched"`
	Duplicates int    `json:"duplicates"`
	Published  int    `json:"published"`
	LastRun    string `json:"last_run"`
	LastError  string `json:"last_error,omitempty"`
}

type jsonTotals struct {
	Runs      int `json:"runs"`
	Failures  int `json:"failures"`
	Published int `json:"published"`
}

func printStatsJSON(w io.Writer, stats []store.AccountStats) error {
	out := jsonStatsOutput{Accounts: make([]jsonAccountStats, 0, len(stats))}
	for _, as := range stats {
		out.Accounts = append(out.Accounts, jsonAccountStats{
			Account:    as.Account,
			Runs:       as.Runs,
			Failures:   as.Failures,
			Fetched:    as.Fetched,
			Duplicates: as.Duplicates,
			Published:  as.Published,
			LastRun:    as.LastRun.UTC().Format(time.RFC3339),
			LastError:  as.LastError,
		})
		out.Total.Runs += as.Runs
		out.Total.Failures += as.Failures
		out.Total.Published += as.Published
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printStats(w io.Writer, stats []store.AccountStats, since time.Duration, now time.Time) {
	if len(stats) == 0 {
		fmt.Fprintln(w, "No journaled runs found. Run 'issuetweet run' first.")
		return
	}

	published := 0
	for _, as := range stats {
		published += as.Published
	}
	fmt.Fprintf(w, "issuetweet stats: %s, %d posts from %d accounts\n\n", formatStatsDuration(since), published, len(stats))

	maxName := len("Account")
	for _, as := range stats {
		if n := len(as.Account) + 1; n > maxName {
			maxName = n
		}
	}

	fmt.Fprintf(w, "  %-*s  %4s  %6s  %7s  %10s  %9s  %s\n",
		maxName, "Account", "Runs", "Failed", "Fetched", "Duplicates", "Published", "Last run")
	for _, as := range stats {
		fmt.Fprintf(w, "  %-*s  %4d  %6d  %7d  %10d  %9d  %s\n",
			maxName, "@"+as.Account, as.Runs, as.Failures, as.Fetched, as.Duplicates, as.Published,
			as.LastRun.UTC().Format("2006-01-02 15:04"))
	}
	fmt.Fprintln(w)

	var failing, stale []store.AccountStats
	staleThreshold := now.AddDate(0, 0, -staleDays)
	for _, as := range stats {
		if as.LastError != "" {
			failing = append(failing, as)
		}
		if as.LastRun.Before(staleThreshold) {
			stale = append(stale, as)
		}
	}

	if len(failing) > 0 {
		fmt.Fprintln(w, "--- Failing Accounts (last run errored) ---")
		fmt.Fprintln(w)
		for _, as := range failing {
			fmt.Fprintf(w, "  @%s: %s\n", as.Account, as.LastError)
		}
		fmt.Fprintln(w)
	}

	if len(stale) > 0 {
		fmt.Fprintf(w, "--- Stale Accounts (no runs in %d+ days) ---\n\n", staleDays)
		for _, as := range stale {
			daysAgo := int(now.Sub(as.LastRun).Hours() / 24)
			fmt.Fprintf(w, "  @%s: last run %d days ago\n", as.Account, daysAgo)
		}
		fmt.Fprintln(w)
	}
}

// parseDuration handles both Go durations and "Nd" day notation.
func parseDuration(s string) (time.Duration, error) {
	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err == nil && days > 0 {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}
	return time.ParseDuration(s)
}

func formatStatsDuration(d time.Duration) string {
	hours := int(d.Hours())
	if hours >= 24 && hours%24 == 0 {
		return fmt.Sprintf("%d days", hours/24)
	}
	return fmt.Sprintf("%dh", hours)
}
