// Package cli provides the command-line interface for issuetweet.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ppiankov/issuetweet/internal/config"
	"github.com/spf13/cobra"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

var (
	configDir string
	logLevel  string
	logger    = slog.New(slog.DiscardHandler)
)

var rootCmd = &cobra.Command{
	Use:   "issuetweet",
	Short: "Announce new GitHub issues on X/Twitter",
	Long: "issuetweet polls GitHub repositories for newly created issues and posts one short " +
		"announcement per issue to the account configured for each feed. Running it without a " +
		"subcommand performs one sync pass, the same as 'issuetweet run'.",
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
	RunE:              runAction,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "issuetweet %s (%s)\n", Version, Commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", config.DefaultConfigDir, "directory holding config.yaml and .env")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	addRunFlags(rootCmd)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statsCmd)
}

func setupLogging(_ *cobra.Command, _ []string) error {
	l, err := newLogger(os.Stderr, logLevel)
	if err != nil {
		return err
	}
	logger = l
	return nil
}

// newLogger returns a text logger writing to w at the named level.
func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q (want debug, info, warn or error)", level)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// commandContext returns the command's context, or Background when the
// command was invoked directly.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx, which an interrupt cancels
// to stop a watch loop or abort a pass between feeds.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
