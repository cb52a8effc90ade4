package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/issuetweet/internal/config"
)

func TestInitConfigDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".issuetweet")

	var buf bytes.Buffer
	if err := initConfigDir(&buf, dir); err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(buf.String(), "Initialized "+dir+" with 2 files") {
		t.Errorf("output = %q", buf.String())
	}
	for _, name := range []string{"config.yaml", ".env.example"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}

	buf.Reset()
	if err := initConfigDir(&buf, dir); err != nil {
		t.Fatalf("second init: %v", err)
	}
	if !strings.Contains(buf.String(), "already initialized") {
		t.Errorf("second output = %q", buf.String())
	}
}

func TestInitConfigDir_KeepsExistingConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("custom: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := initConfigDir(&buf, dir); err != nil {
		t.Fatalf("init: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "custom: true\n" {
		t.Errorf("existing config overwritten: %q", data)
	}
}

func TestExampleConfigLoads(t *testing.T) {
	dir := t.TempDir()
	if err := initConfigDir(&bytes.Buffer{}, dir); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TWITTER_CONSUMER_KEY", "ck")
	t.Setenv("TWITTER_CONSUMER_SECRET", "cs")
	t.Setenv("TWITTER_ACCESS_TOKEN", "at")
	t.Setenv("TWITTER_ACCESS_TOKEN_SECRET", "ats")

	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("example config does not load: %v", err)
	}
	if len(cfg.Feeds) != 1 || cfg.Feeds[0].Repositories[0] != "owner/repo" {
		t.Errorf("feeds = %+v", cfg.Feeds)
	}
	if cfg.Sync.MaxPerRun != 5 || cfg.Journal.RetainDays != 90 {
		t.Errorf("sync = %+v, journal = %+v", cfg.Sync, cfg.Journal)
	}
}
