package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
)

const (
	twitterBaseURL  = "https://api.twitter.com"
	twitterTimeout  = 30 * time.Second
	twitterPageSize = 100
	twitterMinPage  = 5
	maxErrorBody    = 4096
)

// TwitterOptions configures a Twitter publisher. Transport is the underlying
// round tripper that OAuth signing wraps; nil uses the default transport.
type TwitterOptions struct {
	Account           string
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string
	Timeout           time.Duration
	Transport         http.RoundTripper
}

// Twitter publishes through the X API v2 with OAuth 1.0a user context.
type Twitter struct {
	account string
	baseURL string
	client  *http.Client

	userID string
}

// NewTwitter creates a publisher for one account.
func NewTwitter(opts TwitterOptions) (*Twitter, error) {
	if opts.Account == "" {
		return nil, errors.New("twitter: account is required")
	}
	if opts.ConsumerKey == "" || opts.ConsumerSecret == "" || opts.AccessToken == "" || opts.AccessTokenSecret == "" {
		return nil, fmt.Errorf("twitter %s: incomplete credentials", opts.Account)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = twitterTimeout
	}

	base := &http.Client{Transport: opts.Transport}
	ctx := context.WithValue(context.Background(), oauth1.HTTPClient, base)
	cfg := oauth1.NewConfig(opts.ConsumerKey, opts.ConsumerSecret)
	client := cfg.Client(ctx, oauth1.NewToken(opts.AccessToken, opts.AccessTokenSecret))
	client.Timeout = timeout

	return &Twitter{
		account: strings.TrimPrefix(opts.Account, "@"),
		baseURL: twitterBaseURL,
		client:  client,
	}, nil
}

// Account returns the screen name posts go to.
func (tw *Twitter) Account() string {
	return tw.account
}

// Recent returns up to n of the account's most recent post texts with HTML
// entities decoded.
func (tw *Twitter) Recent(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	id, err := tw.lookupUserID(ctx)
	if err != nil {
		return nil, err
	}

	pageSize := min(max(n, twitterMinPage), twitterPageSize)
	var texts []string
	token := ""
	for len(texts) < n {
		q := url.Values{}
		q.Set("max_results", fmt.Sprint(pageSize))
		if token != "" {
			q.Set("pagination_token", token)
		}

		var page timelineResponse
		endpoint := fmt.Sprintf("%s/2/users/%s/tweets?%s", tw.baseURL, url.PathEscape(id), q.Encode())
		if err := tw.do(ctx, "read timeline", http.MethodGet, endpoint, nil, http.StatusOK, &page); err != nil {
			return nil, err
		}
		for _, t := range page.Data {
			texts = append(texts, html.UnescapeString(t.Text))
		}
		if page.Meta.NextToken == "" || len(page.Data) == 0 {
			break
		}
		token = page.Meta.NextToken
	}

	if len(texts) > n {
		texts = texts[:n]
	}
	return texts, nil
}

// Publish posts text as a new tweet.
func (tw *Twitter) Publish(ctx context.Context, text string) error {
	body, err := json.Marshal(createRequest{Text: text})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	var created createResponse
	return tw.do(ctx, "publish", http.MethodPost, tw.baseURL+"/2/tweets", body, http.StatusCreated, &created)
}

func (tw *Twitter) lookupUserID(ctx context.Context) (string, error) {
	if tw.userID != "" {
		return tw.userID, nil
	}
	var user userResponse
	endpoint := fmt.Sprintf("%s/2/users/by/username/%s", tw.baseURL, url.PathEscape(tw.account))
	if err := tw.do(ctx, "lookup user", http.MethodGet, endpoint, nil, http.StatusOK, &user); err != nil {
		return "", err
	}
	if user.Data.ID == "" {
		return "", fmt.Errorf("lookup user %s: %s", tw.account, errorDetail(user.Errors))
	}
	tw.userID = user.Data.ID
	return tw.userID, nil
}

func (tw *Twitter) do(ctx context.Context, op, method, endpoint string, body []byte, want int, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := tw.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != want {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Op: op, Status: resp.StatusCode, Detail: problemDetail(raw)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// problemDetail extracts a readable message from an error body.
func problemDetail(raw []byte) string {
	var p problemResponse
	if err := json.Unmarshal(raw, &p); err != nil {
		return strings.TrimSpace(string(raw))
	}
	switch {
	case p.Detail != "":
		return p.Detail
	case len(p.Errors) > 0:
		return errorDetail(p.Errors)
	case p.Title != "":
		return p.Title
	}
	return strings.TrimSpace(string(raw))
}

func errorDetail(errs []apiError) string {
	if len(errs) == 0 {
		return "user not found"
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		if e.Detail != "" {
			msgs = append(msgs, e.Detail)
		} else {
			msgs = append(msgs, e.Message)
		}
	}
	return strings.Join(msgs, "; ")
}

type userResponse struct {
	Data struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"data"`
	Errors []apiError `json:"errors"`
}

type timelineResponse struct {
	Data []struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
	Meta struct {
		NextToken   string `json:"next_token"`
		ResultCount int    `json:"result_count"`
	} `json:"meta"`
}

type createRequest struct {
	Text string `json:"text"`
}

type createResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

type problemResponse struct {
	Title  string     `json:"title"`
	Detail string     `json:"detail"`
	Errors []apiError `json:"errors"`
}

type apiError struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
}
