// Package prcreator opens the pull request that closes an issue once the
// implementation CLI has run, and links it back to the issue.
package prcreator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/archon-run/orchestrator-pipeline/internal/githubclient"
	"github.com/archon-run/orchestrator-pipeline/internal/runner"
	"github.com/archon-run/orchestrator-pipeline/internal/store"
)

const maxSummaryChars = 2100

const truncationMarker = "\n\n_...output truncated..._"

var typeLabels = map[string]string{
	"feature":        "enhancement",
	"bug":            "bug",
	"documentation":  "documentation",
	"infrastructure": "infrastructure",
}

// GitHubClient is the subset of internal/githubclient.Client this package
// needs.
type GitHubClient interface {
	CreatePullRequest(ctx context.Context, in githubclient.PullRequestInput) (int, error)
	RequestReviewers(ctx context.Context, owner, repo string, prNumber int, reviewers []string) error
	AddLabels(ctx context.Context, owner, repo string, number int, labels []string) error
	LinkIssueToPR(ctx context.Context, owner, repo string, issueNumber, prNumber int) error
}

// Input describes everything needed to create a PR for a resolved issue.
type Input struct {
	Owner          string
	Repo           string
	IssueNumber    int
	IssueTitle     string
	Branch         string
	BaseBranch     string
	Classification store.Classification
	CLIResult      runner.Result
	Reviewers      []string
	FilesChanged   []string
}

// Result is the outcome of CreateFor.
type Result struct {
	PRNumber      int
	CommentPosted bool
}

// Creator opens PRs and links them back to their source issue.
type Creator struct {
	gh     GitHubClient
	logger *zap.Logger
}

// New builds a Creator.
func New(gh GitHubClient, logger *zap.Logger) *Creator {
	return &Creator{gh: gh, logger: logger.With(zap.String("component", "prcreator"))}
}

// CreateFor opens a PR for in, applies labels, requests reviewers, and
// best-effort links the PR from the original issue.
func (c *Creator) CreateFor(ctx context.Context, in Input) (*Result, error) {
	base := in.BaseBranch
	if base == "" {
		base = "main"
	}

	prNumber, err := c.gh.CreatePullRequest(ctx, githubclient.PullRequestInput{
		Owner: in.Owner,
		Repo:  in.Repo,
		Title: fmt.Sprintf("Fix #%d: %s", in.IssueNumber, in.IssueTitle),
		Head:  in.Branch,
		Base:  base,
		Body:  buildBody(in),
	})
	if err != nil {
		return nil, fmt.Errorf("create pull request: %w", err)
	}

	labels := append([]string{"archon-automated"}, labelFor(in.Classification.IssueType)...)
	if err := c.gh.AddLabels(ctx, in.Owner, in.Repo, prNumber, labels); err != nil {
		c.logger.Warn("applying PR labels failed", zap.Int("pr", prNumber), zap.Error(err))
	}

	if len(in.Reviewers) > 0 {
		if err := c.gh.RequestReviewers(ctx, in.Owner, in.Repo, prNumber, in.Reviewers); err != nil {
			c.logger.Warn("requesting PR reviewers failed", zap.Int("pr", prNumber), zap.Error(err))
		}
	}

	result := &Result{PRNumber: prNumber}

	if err := c.gh.LinkIssueToPR(ctx, in.Owner, in.Repo, in.IssueNumber, prNumber); err != nil {
		c.logger.Warn("linking PR back to issue failed", zap.Int("issue", in.IssueNumber), zap.Int("pr", prNumber), zap.Error(err))
		result.CommentPosted = false
	} else {
		result.CommentPosted = true
	}

	return result, nil
}

func labelFor(issueType string) []string {
	label, ok := typeLabels[issueType]
	if !ok {
		return nil
	}
	return []string{label}
}

func buildBody(in Input) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Closes #%d\n\n", in.IssueNumber)

	b.WriteString("## Summary\n\n")
	b.WriteString(summaryFrom(in.CLIResult.Stdout))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "**Type:** %s\n\n", orUnknown(in.Classification.IssueType))

	b.WriteString("**Affected packages:** ")
	if len(in.Classification.AffectedPackages) == 0 {
		b.WriteString("none")
	} else {
		b.WriteString(strings.Join(in.Classification.AffectedPackages, ", "))
	}
	b.WriteString("\n")

	if len(in.FilesChanged) > 0 {
		b.WriteString("\n## Files Changed\n\n")
		for _, f := range in.FilesChanged {
			fmt.Fprintf(&b, "- `%s`\n", f)
		}
	}

	return b.String()
}

func summaryFrom(stdout string) string {
	summary := strings.TrimSpace(stdout)
	if summary == "" {
		return "_No summary output was produced by the implementation run._"
	}
	if len(summary) > maxSummaryChars {
		summary = summary[:maxSummaryChars] + truncationMarker
	}
	return summary
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}
