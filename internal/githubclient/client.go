// Package githubclient wraps google/go-github with the retry, rate-limit,
// and error-shaping policy the orchestrator's external calls rely on.
package githubclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/go-github/v68/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Config configures a Client.
type Config struct {
	Token   string
	BaseURL string // optional, for GitHub Enterprise; empty uses github.com

	// RetryAttempts bounds how many times the transport retries a
	// transient failure. Zero defaults to defaultMaxRetries.
	RetryAttempts int
}

// Client is a thin, typed façade over *github.Client exposing only the
// operations the pipeline needs, so call sites never touch go-github
// directly and every outbound request goes through the retry transport.
type Client struct {
	gh     *github.Client
	logger *zap.Logger
}

// New builds a Client. The returned http.Client chains oauth2 token
// injection with the retry transport so every request, regardless of
// call site, gets backoff and rate-limit handling for free.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("github token is required")
	}

	base := newRetryTransport(http.DefaultTransport, logger, cfg.RetryAttempts)
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	oauthTransport := &oauth2.Transport{Source: ts, Base: base}

	httpClient := &http.Client{Transport: oauthTransport}
	gh := github.NewClient(httpClient)
	gh.UserAgent = "archon-orchestrator"

	if cfg.BaseURL != "" {
		var err error
		gh, err = gh.WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("configure github enterprise urls: %w", err)
		}
	}

	return &Client{gh: gh, logger: logger.With(zap.String("component", "githubclient"))}, nil
}

// AddLabels applies labels to an issue, creating no duplicates (GitHub's
// API is idempotent for labels already present).
func (c *Client) AddLabels(ctx context.Context, owner, repo string, number int, labels []string) error {
	_, _, err := c.gh.Issues.AddLabelsToIssue(ctx, owner, repo, number, labels)
	if err != nil {
		return wrapIssueError(err, owner, repo, number)
	}
	return nil
}

// RemoveLabel removes a single label from an issue. A 404 (label already
// absent) is treated as success.
func (c *Client) RemoveLabel(ctx context.Context, owner, repo string, number int, label string) error {
	_, err := c.gh.Issues.RemoveLabelForIssue(ctx, owner, repo, number, label)
	if err != nil {
		if isGithubNotFound(err) {
			return nil
		}
		return wrapIssueError(err, owner, repo, number)
	}
	return nil
}

// CreateComment posts a comment on an issue.
func (c *Client) CreateComment(ctx context.Context, owner, repo string, number int, body string) error {
	_, _, err := c.gh.Issues.CreateComment(ctx, owner, repo, number, &github.IssueComment{Body: &body})
	if err != nil {
		return wrapIssueError(err, owner, repo, number)
	}
	return nil
}

// ListIssueLabels returns the current label names on an issue.
func (c *Client) ListIssueLabels(ctx context.Context, owner, repo string, number int) ([]string, error) {
	issue, _, err := c.gh.Issues.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, wrapIssueError(err, owner, repo, number)
	}
	names := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		if l.Name != nil {
			names = append(names, *l.Name)
		}
	}
	return names, nil
}

// IssueDetails is the subset of a GitHub issue the pipeline consumes.
type IssueDetails struct {
	Number int
	Title  string
	Body   string
	Labels []string
	Owner  string
	Repo   string
}

// GetIssue fetches an issue's current state.
func (c *Client) GetIssue(ctx context.Context, owner, repo string, number int) (*IssueDetails, error) {
	issue, _, err := c.gh.Issues.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, wrapIssueError(err, owner, repo, number)
	}
	labels := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		if l.Name != nil {
			labels = append(labels, *l.Name)
		}
	}
	return &IssueDetails{
		Number: issue.GetNumber(),
		Title:  issue.GetTitle(),
		Body:   issue.GetBody(),
		Labels: labels,
		Owner:  owner,
		Repo:   repo,
	}, nil
}

// RequestReviewers requests the named users as reviewers on a pull request.
func (c *Client) RequestReviewers(ctx context.Context, owner, repo string, prNumber int, reviewers []string) error {
	if len(reviewers) == 0 {
		return nil
	}
	_, _, err := c.gh.PullRequests.RequestReviewers(ctx, owner, repo, prNumber, github.ReviewersRequest{
		Reviewers: reviewers,
	})
	if err != nil {
		return wrapIssueError(err, owner, repo, prNumber)
	}
	return nil
}

// HealthCheck verifies GitHub API reachability and token validity via a
// lightweight rate-limit lookup.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, _, err := c.gh.RateLimit.Get(ctx)
	if err != nil {
		return fmt.Errorf("github health check: %w", err)
	}
	return nil
}

// PullRequestInput describes a PR to create.
type PullRequestInput struct {
	Owner string
	Repo  string
	Title string
	Head  string
	Base  string
	Body  string
}

// CreatePullRequest opens a PR and returns its number.
func (c *Client) CreatePullRequest(ctx context.Context, in PullRequestInput) (int, error) {
	pr, _, err := c.gh.PullRequests.Create(ctx, in.Owner, in.Repo, &github.NewPullRequest{
		Title: &in.Title,
		Head:  &in.Head,
		Base:  &in.Base,
		Body:  &in.Body,
	})
	if err != nil {
		return 0, fmt.Errorf("create pull request %s/%s %s->%s: %w", in.Owner, in.Repo, in.Head, in.Base, err)
	}
	return pr.GetNumber(), nil
}

// LinkIssueToPR comments on the issue referencing the PR, the
// cross-linking convention GitHub itself recognizes for #N references.
func (c *Client) LinkIssueToPR(ctx context.Context, owner, repo string, issueNumber, prNumber int) error {
	body := fmt.Sprintf("Opened #%d to address this issue.", prNumber)
	return c.CreateComment(ctx, owner, repo, issueNumber, body)
}

func wrapIssueError(err error, owner, repo string, number int) error {
	url := fmt.Sprintf("%s/%s#%d", owner, repo, number)
	if isGithubNotFound(err) {
		return &NotFoundError{URL: url}
	}
	if ge, ok := err.(*github.ErrorResponse); ok {
		if ge.Response != nil && (ge.Response.StatusCode == http.StatusUnauthorized || ge.Response.StatusCode == http.StatusForbidden) {
			return &AccessDeniedError{URL: url}
		}
		status := 0
		if ge.Response != nil {
			status = ge.Response.StatusCode
		}
		return &APIError{StatusCode: status, Body: ge.Message, URL: url}
	}
	return fmt.Errorf("github request for %s: %w", url, err)
}

func isGithubNotFound(err error) bool {
	ge, ok := err.(*github.ErrorResponse)
	return ok && ge.Response != nil && ge.Response.StatusCode == http.StatusNotFound
}
