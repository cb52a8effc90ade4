package source

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-github/v74/github"
)

const (
	githubTimeout = 30 * time.Second
	githubPerPage = 100
	githubState   = "all"
)

// GitHubOptions configures the GitHub issue source.
type GitHubOptions struct {
	Token            string        // personal access token; empty means unauthenticated
	SkipPullRequests bool          // drop pull requests returned by the issues API
	Timeout          time.Duration // per-request client timeout
}

// GitHubSource lists repository issues through the GitHub REST API.
type GitHubSource struct {
	client           *github.Client
	skipPullRequests bool
}

// NewGitHub creates a GitHub issue source. Without a token requests are
// unauthenticated and subject to the lower anonymous rate limit.
func NewGitHub(opts GitHubOptions) *GitHubSource {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = githubTimeout
	}

	client := github.NewClient(&http.Client{Timeout: timeout})
	if opts.Token != "" {
		client = client.WithAuthToken(opts.Token)
	}

	return &GitHubSource{
		client:           client,
		skipPullRequests: opts.SkipPullRequests,
	}
}

// Issues lists every issue of repository touched since the given time,
// including closed ones, following pagination.
func (g *GitHubSource) Issues(ctx context.Context, repository string, since time.Time) ([]Issue, error) {
	owner, repo, err := ParseRepository(repository)
	if err != nil {
		return nil, err
	}
	canonical := owner + "/" + repo

	opts := &github.IssueListByRepoOptions{
		State:       githubState,
		Since:       since,
		ListOptions: github.ListOptions{PerPage: githubPerPage},
	}

	var issues []Issue
	for {
		page, resp, err := g.client.Issues.ListByRepo(ctx, owner, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("list issues %s: %w", canonical, err)
		}

		for _, gi := range page {
			if g.skipPullRequests && gi.IsPullRequest() {
				continue
			}
			issues = append(issues, issueFromGitHub(canonical, gi))
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.ListOptions.Page = resp.NextPage
	}

	return issues, nil
}

// Issue fetches a single issue by number.
func (g *GitHubSource) Issue(ctx context.Context, repository string, number int) (Issue, error) {
	owner, repo, err := ParseRepository(repository)
	if err != nil {
		return Issue{}, err
	}

	gi, _, err := g.client.Issues.Get(ctx, owner, repo, number)
	if err != nil {
		return Issue{}, fmt.Errorf("get issue %s#%d: %w", owner+"/"+repo, number, err)
	}
	return issueFromGitHub(owner+"/"+repo, gi), nil
}

// RateLimit reports the remaining core API quota.
func (g *GitHubSource) RateLimit(ctx context.Context) (remaining, limit int, err error) {
	limits, _, err := g.client.RateLimit.Get(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("rate limit: %w", err)
	}
	core := limits.GetCore()
	if core == nil {
		return 0, 0, fmt.Errorf("rate limit: no core quota in response")
	}
	return core.Remaining, core.Limit, nil
}

func issueFromGitHub(repository string, gi *github.Issue) Issue {
	return Issue{
		Repository:  repository,
		Number:      gi.GetNumber(),
		Title:       gi.GetTitle(),
		CreatedAt:   gi.GetCreatedAt().Time,
		URL:         gi.GetHTMLURL(),
		AuthorLogin: gi.GetUser().GetLogin(),
	}
}
