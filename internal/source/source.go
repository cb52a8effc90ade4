package source

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Issue represents a single issue (or pull request) fetched from a repository.
type Issue struct {
	Repository  string    // "owner/repo"
	Number      int       // issue number, unique per repository
	Title       string    // raw title as returned by the API
	CreatedAt   time.Time // creation timestamp
	URL         string    // canonical html url
	AuthorLogin string    // login of the author
}

// IssueSource fetches issues from a code-hosting service.
type IssueSource interface {
	// Issues returns all issues of repository created or updated at or after since.
	Issues(ctx context.Context, repository string, since time.Time) ([]Issue, error)
}

// ParseRepository splits "owner/repo" into its parts. The legacy
// "owner\repo" separator is also accepted.
func ParseRepository(repository string) (owner, repo string, err error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(repository), `\`, "/")
	owner, repo, ok := strings.Cut(normalized, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("invalid repository %q (want owner/repo)", repository)
	}
	return owner, repo, nil
}

// CanonicalRepository returns repository in "owner/repo" form.
func CanonicalRepository(repository string) (string, error) {
	owner, repo, err := ParseRepository(repository)
	if err != nil {
		return "", err
	}
	return owner + "/" + repo, nil
}
