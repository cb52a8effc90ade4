package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"

	"github.com/ppiankov/issuetweet/internal/compose"
	"github.com/ppiankov/issuetweet/internal/config"
	"github.com/ppiankov/issuetweet/internal/privacy"
	"github.com/ppiankov/issuetweet/internal/source"
	"github.com/spf13/cobra"
)

var previewTitle string

var previewCmd = &cobra.Command{
	Use:   "preview <owner/repo> <number>",
	Short: "Show how an issue would be posted",
	Long: "preview fetches one issue and prints the title budget breakdown and the exact post text. " +
		"With --title nothing is fetched and the given title is formatted instead.",
	Args: cobra.ExactArgs(2),
	RunE: previewAction,
}

func init() {
	previewCmd.Flags().StringVar(&previewTitle, "title", "", "format this title instead of fetching the issue")
}

func previewAction(cmd *cobra.Command, args []string) error {
	repo, err := source.CanonicalRepository(args[0])
	if err != nil {
		return err
	}
	number, err := strconv.Atoi(args[1])
	if err != nil || number <= 0 {
		return fmt.Errorf("invalid issue number %q", args[1])
	}

	// Without a config the defaults apply and GitHub is queried anonymously.
	cfg, err := config.Load(configDir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = &config.Config{}
	}

	var redactor *privacy.Redactor
	if cfg.Privacy.Redact.Enabled {
		redactor, err = privacy.New(cfg.Privacy.Redact.Patterns, cfg.Privacy.Redact.Replacement)
		if err != nil {
			return fmt.Errorf("privacy.redact: %w", err)
		}
	}

	var issue source.Issue
	if previewTitle != "" {
		issue = source.Issue{
			Repository: repo,
			Number:     number,
			Title:      previewTitle,
			URL:        fmt.Sprintf("https://github.com/%s/issues/%d", repo, number),
		}
	} else {
				gh := source.NewGitHub(source.GitHubOptions{
			Token:   cfg.GitHub.Token,
			Timeout: cfg.Sync.HTTPTimeout.Duration,
		})
		issue, err = gh.Issue(commandContext(cmd), repo, number)
		if err != nil {
			return err
		}
	}

	formatter := compose.New(cfg.Tweet.MaxLength, cfg.Tweet.LinkLength)
	printPreview(cmd.OutOrStdout(), issue, formatter, redactor)
	return nil
}

func printPreview(w io.Writer, issue source.Issue, f *compose.Formatter, redactor *privacy.Redactor) {
	original := issue.Title
	issue.Title = redactor.Apply(issue.Title)
	c, b := f.Explain(issue)

	fmt.Fprintf(w, "Issue:   %s\n", c.ID)
	fmt.Fprintf(w, "URL:     %s\n", c.URL)
	if issue.AuthorLogin != "" {
		fmt.Fprintf(w, "Author:  %s\n", issue.AuthorLogin)
	}
	if !issue.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Created: %s\n", issue.CreatedAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	fmt.Fprintf(w, "Title:   %s\n", original)
	if redactor.Active() && issue.Title != original {
		fmt.Fprintf(w, "Redacted: %s\n", issue.Title)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Budget:")
	fmt.Fprintf(w, "  %4d  max length\n", b.MaxLength)
	fmt.Fprintf(w, "  %4d  footer (id, separators, link at %d)\n", -b.Footer, b.LinkLength)
	fmt.Fprintf(w, "  %4d  title budget\n", b.Remaining)
	for _, comp := range b.Compensations {
		fmt.Fprintf(w, "  %4d  auto-link %q (shortest pair %d)\n", -comp.Deduction, comp.Match, comp.MinPair)
	}
	truncated := ""
	if b.Truncated {
		truncated = ", truncated"
	}
	fmt.Fprintf(w, "  %4d  final%s\n", b.Final, truncated)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Post (%d/%d):\n", compose.DisplayLength(c, f.LinkLength), f.MaxLength)
	fmt.Fprintln(w, compose.Render(c))
}
