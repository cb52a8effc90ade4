package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ppiankov/issuetweet/internal/config"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config directory with example files",
	Args:  cobra.NoArgs,
	RunE:  initAction,
}

func initAction(cmd *cobra.Command, _ []string) error {
	return initConfigDir(cmd.OutOrStdout(), configDir)
}

func initConfigDir(w io.Writer, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	files := []struct {
		name string
		data string
		perm os.FileMode
	}{
		{config.DefaultConfigFile, exampleConfig, 0o644},
		{".env.example", exampleEnv, 0o600},
	}

	created := 0
	for _, f := range files {
		wrote, err := writeIfNotExists(w, filepath.Join(dir, f.name), []byte(f.data), f.perm)
		if err != nil {
			return err
		}
		if wrote {
			created++
		}
	}

	if created == 0 {
		fmt.Fprintf(w, "Config directory %s already initialized.\n", dir)
	} else {
		fmt.Fprintf(w, "Initialized %s with %d files. Copy .env.example to .env and fill in credentials.\n", dir, created)
	}
	return nil
}

// writeIfNotExists writes data to path if the file does not exist.
// Returns true if the file was created.
func writeIfNotExists(w io.Writer, path string, data []byte, perm os.FileMode) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(w, "  exists: %s\n", path)
		return false, nil
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(w, "  created: %s\n", path)
	return true, nil
}

const exampleConfig = `# issuetweet configuration

github:
  token_env: GITHUB_TOKEN
  skip_pull_requests: false

# Issues opened by these logins are never announced.
excluded_accounts:
  - dependabot[bot]

feeds:
  - repositories:
      - owner/repo
    twitter:
      account: your_account
      consumer_key_env: TWITTER_CONSUMER_KEY
      consumer_secret_env: TWITTER_CONSUMER_SECRET
      access_token_env: TWITTER_ACCESS_TOKEN
      access_token_secret_env: TWITTER_ACCESS_TOKEN_SECRET

sync:
  backlog: 1h
  max_per_run: 5
  history_size: 200
  http_timeout: 30s

tweet:
  max_length: 280
  link_length: 23

privacy:
  redact:
    enabled: false
    patterns: []
    # - "(?i)token=\\S+"

journal:
  path: ""
  # path: .issuetweet/journal.db
  retain_days: 90

metrics:
  textfile: ""
  # textfile: /var/lib/node_exporter/textfile/issuetweet.prom
`

const exampleEnv = `GITHUB_TOKEN=
TWITTER_CONSUMER_KEY=
TWITTER_CONSUMER_SECRET=
TWITTER_ACCESS_TOKEN=
TWITTER_ACCESS_TOKEN_SECRET=
`
