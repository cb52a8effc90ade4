// Package publish posts rendered issue announcements to an account and reads
// back the account's recent posts.
package publish

import (
	"context"
	"fmt"
)

// Publisher is one destination account.
type Publisher interface {
	// Recent returns the text of up to n most recent posts, newest first.
	Recent(ctx context.Context, n int) ([]string, error)
	// Publish posts text.
	Publish(ctx context.Context, text string) error
}

// APIError is a non-success response from the posting API.
type APIError struct {
	Op     string
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: api returned status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: api returned status %d: %s", e.Op, e.Status, e.Detail)
}
