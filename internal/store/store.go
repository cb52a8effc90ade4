// Package store is the optional sqlite journal of sync runs. It records what
// each run did; it is never consulted to decide what to publish.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// Run is one invocation of the synchronizer.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	DryRun     bool
	Feeds      []FeedRun
}

// FeedRun is the outcome of one feed inside a run.
type FeedRun struct {
	Account      string
	Repositories []string
	StartedAt    time.Time
	FinishedAt   time.Time
	Fetched      int
	Candidates   int
	Duplicates   int
	Capped       int
	Published    int
	Error        string
}

// AccountStats aggregates journaled runs for one account.
type AccountStats struct {
	Account    string
	Runs       int
	Failures   int
	Fetched    int
	Duplicates int
	Published  int
	LastRun    time.Time
	LastError  string
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}

	// Pragmas in the DSN apply to every pooled connection.
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := migrate(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordRun writes a run and all of its feed outcomes in one transaction.
// A run without an ID is assigned a random one, which is returned.
func (s *Store) RecordRun(ctx context.Context, run Run) (string, error) {
	if s == nil || s.db == nil {
		return "", errors.New("store is not initialized")
	}
	if run.StartedAt.IsZero() {
		return "", errors.New("started_at is required")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = run.StartedAt
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin record transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO runs(id, started_at, finished_at, dry_run) VALUES(?, ?, ?, ?)",
		run.ID, formatTime(run.StartedAt), formatTime(run.FinishedAt), boolInt(run.DryRun),
	); err != nil {
		_ = tx.Rollback()
		return "", fmt.Errorf("insert run: %w", err)
	}

	for _, fr := range run.Feeds {
		if strings.TrimSpace(fr.Account) == "" {
			_ = tx.Rollback()
			return "", errors.New("feed account is required")
		}
		var errVal sql.NullString
		if fr.Error != "" {
			errVal = sql.NullString{String: fr.Error, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO feed_runs(run_id, account, repositories, started_at, finished_at,
				fetched, candidates, duplicates, capped, published, error)
			VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, fr.Account, strings.Join(fr.Repositories, ","),
			formatTime(fr.StartedAt), formatTime(fr.FinishedAt),
			fr.Fetched, fr.Candidates, fr.Duplicates, fr.Capped, fr.Published, errVal,
		); err != nil {
			_ = tx.Rollback()
			return "", fmt.Errorf("insert feed run %s: %w", fr.Account, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit run: %w", err)
	}
	return run.ID, nil
}

// AccountStats returns per-account aggregates of non dry-run feed runs
// started at or after since, ordered by account.
func (s *Store) AccountStats(ctx context.Context, since time.Time) ([]AccountStats, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.account,
			COUNT(*) AS runs,
			SUM(CASE WHEN f.error IS NOT NULL THEN 1 ELSE 0 END) AS failures,
			SUM(f.fetched),
			SUM(f.duplicates),
			SUM(f.published),
			MAX(f.started_at) AS last_run,
			(SELECT l.error FROM feed_runs l JOIN runs lr ON lr.id = l.run_id
				WHERE l.account = f.account AND lr.dry_run = 0
				ORDER BY l.started_at DESC, l.id DESC LIMIT 1) AS last_error
		FROM feed_runs f
		JOIN runs r ON r.id = f.run_id
		WHERE r.dry_run = 0 AND f.started_at >= ?
		GROUP BY f.account
		ORDER BY f.account
	`, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("get account stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []AccountStats
	for rows.Next() {
		var (
			as        AccountStats
			lastRun   string
			lastError sql.NullString
		)
		if err := rows.Scan(&as.Account, &as.Runs, &as.Failures, &as.Fetched, &as.Duplicates, &as.Published, &lastRun, &lastError); err != nil {
			return nil, fmt.Errorf("scan account stats: %w", err)
		}
		as.LastRun, err = parseTime(lastRun)
		if err != nil {
			return nil, fmt.Errorf("parse last_run: %w", err)
		}
		if lastError.Valid {
			as.LastError = lastError.String
		}
		stats = append(stats, as)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account stats: %w", err)
	}

	return stats, nil
}

// PruneOld deletes runs older than retainDays; their feed runs cascade.
// Returns the number of runs removed.
func (s *Store) PruneOld(ctx context.Context, now time.Time, retainDays int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("store is not initialized")
	}
	if retainDays <= 0 {
		return 0, nil
	}

	cutoff := formatTime(now.AddDate(0, 0, -retainDays))
	res, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE started_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune old runs: %w", err)
	}

	n, _ := res.RowsAffected()
	return n, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}
