package publish

import (
	"context"
	"log/slog"
	"sync"
)

// DryRun reads history from the wrapped publisher but never posts.
type DryRun struct {
	next   Publisher
	logger *slog.Logger

	mu    sync.Mutex
	posts []string
}

// NewDryRun wraps next. A nil logger discards.
func NewDryRun(next Publisher, logger *slog.Logger) *DryRun {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DryRun{next: next, logger: logger}
}

func (d *DryRun) Recent(ctx context.Context, n int) ([]string, error) {
	return d.next.Recent(ctx, n)
}

// Publish records text instead of posting it.
func (d *DryRun) Publish(_ context.Context, text string) error {
	d.mu.Lock()
	d.posts = append(d.posts, text)
	d.mu.Unlock()
	d.logger.Info("dry run: would publish", "text", text)
	return nil
}

// Posts returns what would have been published, in order.
func (d *DryRun) Posts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.posts...)
}
