package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigDir   = ".issuetweet"
	DefaultConfigFile  = "config.yaml"
	DefaultBacklog     = time.Hour
	DefaultMaxPerRun   = 5
	DefaultHistorySize = 200
	DefaultHTTPTimeout = 30 * time.Second
	DefaultMaxLength   = 280
	DefaultLinkLength  = 23

	// maxIssueDigits bounds the issue number width when checking that a
	// repository's footer leaves room for a title.
	maxIssueDigits = 7
)

// ErrNoFeeds is returned when the config defines no feeds.
var ErrNoFeeds = errors.New("feeds: at least one feed must be configured")

var repositoryPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+[/\\][A-Za-z0-9_.-]+$`)

// Duration wraps time.Duration for YAML unmarshaling from strings like "1h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	GitHub           GitHubConfig  `yaml:"github"`
	ExcludedAccounts []string      `yaml:"excluded_accounts"`
	Feeds            []Feed        `yaml:"feeds"`
	Sync             SyncConfig    `yaml:"sync"`
	Tweet            TweetConfig   `yaml:"tweet"`
	Privacy          PrivacyConfig `yaml:"privacy"`
	Journal          JournalConfig `yaml:"journal"`
	Metrics          MetricsConfig `yaml:"metrics"`
}

type GitHubConfig struct {
	Token            string `yaml:"token"`
	TokenEnv         string `yaml:"token_env"`
	SkipPullRequests bool   `yaml:"skip_pull_requests"`
}

// Feed is one target account and the repositories it announces.
type Feed struct {
	Repositories []string      `yaml:"repositories"`
	Twitter      TwitterConfig `yaml:"twitter"`
}

type TwitterConfig struct {
	Account              string `yaml:"account"`
	ConsumerKey          string `yaml:"consumer_key"`
	ConsumerKeyEnv       string `yaml:"consumer_key_env"`
	ConsumerSecret       string `yaml:"consumer_secret"`
	ConsumerSecretEnv    string `yaml:"consumer_secret_env"`
	AccessToken          string `yaml:"access_token"`
	AccessTokenEnv       string `yaml:"access_token_env"`
	AccessTokenSecret    string `yaml:"access_token_secret"`
	AccessTokenSecretEnv string `yaml:"access_token_secret_env"`
}

type SyncConfig struct {
	Backlog     Duration `yaml:"backlog"`
	MaxPerRun   int      `yaml:"max_per_run"`
	HistorySize int      `yaml:"history_size"`
	HTTPTimeout Duration `yaml:"http_timeout"`
}

type TweetConfig struct {
	MaxLength  int `yaml:"max_length"`
	LinkLength int `yaml:"link_length"`
}

type PrivacyConfig struct {
	Redact RedactConfig `yaml:"redact"`
}

// RedactConfig masks title fragments before they are composed into posts.
// An empty Replacement uses the redactor's default.
type RedactConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Patterns    []string `yaml:"patterns"`
	Replacement string   `yaml:"replacement"`
}

// JournalConfig enables the sqlite run journal. An empty path disables it;
// RetainDays of zero keeps every run.
type JournalConfig struct {
	Path       string `yaml:"path"`
	RetainDays int    `yaml:"retain_days"`
}

type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// Load reads config.yaml from dir, loads .env files, applies defaults,
// resolves env vars, and validates.
func Load(dir string) (*Config, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("config dir is required")
	}

	path := filepath.Join(dir, DefaultConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := loadDotEnv(dir); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	resolveEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv loads .env.local then .env from dir. Variables already present
// in the environment are left alone.
func loadDotEnv(dir string) error {
	for _, name := range []string{".env.local", ".env"} {
		p := filepath.Join(dir, name)
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Sync.Backlog.Duration == 0 {
		cfg.Sync.Backlog.Duration = DefaultBacklog
	}
	if cfg.Sync.MaxPerRun == 0 {
		cfg.Sync.MaxPerRun = DefaultMaxPerRun
	}
	if cfg.Sync.HistorySize == 0 {
		cfg.Sync.HistorySize = DefaultHistorySize
	}
	if cfg.Sync.HTTPTimeout.Duration == 0 {
		cfg.Sync.HTTPTimeout.Duration = DefaultHTTPTimeout
	}
	if cfg.Tweet.MaxLength == 0 {
		cfg.Tweet.MaxLength = DefaultMaxLength
	}
	if cfg.Tweet.LinkLength == 0 {
		cfg.Tweet.LinkLength = DefaultLinkLength
	}
}

func resolveEnv(cfg *Config) {
	fromEnv(&cfg.GitHub.Token, cfg.GitHub.TokenEnv)
	for i := range cfg.Feeds {
		tw := &cfg.Feeds[i].Twitter
		fromEnv(&tw.ConsumerKey, tw.ConsumerKeyEnv)
		fromEnv(&tw.ConsumerSecret, tw.ConsumerSecretEnv)
		fromEnv(&tw.AccessToken, tw.AccessTokenEnv)
		fromEnv(&tw.AccessTokenSecret, tw.AccessTokenSecretEnv)
	}
}

func fromEnv(dst *string, name string) {
	if name == "" {
		return
	}
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func validate(cfg *Config) error {
	if len(cfg.Feeds) == 0 {
		return ErrNoFeeds
	}

	if cfg.Sync.Backlog.Duration < 0 {
		return errors.New("sync.backlog: must be positive")
	}
	if cfg.Sync.MaxPerRun < 0 {
		return errors.New("sync.max_per_run: must be positive")
	}
	if cfg.Sync.HistorySize < 0 {
		return errors.New("sync.history_size: must be positive")
	}
	if cfg.Sync.HTTPTimeout.Duration < 0 {
		return errors.New("sync.http_timeout: must be positive")
	}
	if cfg.Journal.RetainDays < 0 {
		return errors.New("journal.retain_days: must not be negative")
	}
	if cfg.Tweet.LinkLength < 0 || cfg.Tweet.LinkLength >= cfg.Tweet.MaxLength {
		return fmt.Errorf("tweet.link_length: %d must be below max_length %d", cfg.Tweet.LinkLength, cfg.Tweet.MaxLength)
	}

	if cfg.Privacy.Redact.Enabled {
		for _, p := range cfg.Privacy.Redact.Patterns {
			if _, err := regexp.Compile(p); err != nil {
				return fmt.Errorf("privacy.redact: pattern %q: %w", p, err)
			}
		}
	}

	accounts := make(map[string]bool)
	for i, feed := range cfg.Feeds {
		prefix := fmt.Sprintf("feeds[%d]", i)
		tw := feed.Twitter
		if strings.TrimSpace(tw.Account) == "" {
			return fmt.Errorf("%s.twitter.account: required", prefix)
		}
		key := strings.ToLower(tw.Account)
		if accounts[key] {
			return fmt.Errorf("%s.twitter.account: %q configured twice", prefix, tw.Account)
		}
		accounts[key] = true

		missing := MissingCredentials(tw)
		if len(missing) > 0 {
			return fmt.Errorf("%s.twitter: missing %s", prefix, strings.Join(missing, ", "))
		}

		if len(feed.Repositories) == 0 {
			return fmt.Errorf("%s.repositories: at least one repository is required", prefix)
		}
		for _, repo := range feed.Repositories {
			if !repositoryPattern.MatchString(repo) {
				return fmt.Errorf("%s.repositories: %q is not owner/repo", prefix, repo)
			}
			footer := len([]rune(repo)) + len(" #") + maxIssueDigits + 2 + cfg.Tweet.LinkLength
			if footer >= cfg.Tweet.MaxLength {
				return fmt.Errorf("%s.repositories: %q leaves no room for a title within %d characters", prefix, repo, cfg.Tweet.MaxLength)
			}
		}
	}

	return nil
}

// MissingCredentials lists the credential keys that resolved to empty values.
func MissingCredentials(tw TwitterConfig) []string {
	var missing []string
	if tw.ConsumerKey == "" {
		missing = append(missing, "consumer_key")
	}
	if tw.ConsumerSecret == "" {
		missing = append(missing, "consumer_secret")
	}
	if tw.AccessToken == "" {
		missing = append(missing, "access_token")
	}
	if tw.AccessTokenSecret == "" {
		missing = append(missing, "access_token_secret")
	}
	return missing
}
