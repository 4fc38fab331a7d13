package prcreator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/archon-run/orchestrator-pipeline/internal/githubclient"
	"github.com/archon-run/orchestrator-pipeline/internal/runner"
	"github.com/archon-run/orchestrator-pipeline/internal/store"
)

type fakeGH struct {
	prNumber   int
	labels     []string
	reviewers  []string
	comments   []string
	commentErr error
}

func (f *fakeGH) CreatePullRequest(ctx context.Context, in githubclient.PullRequestInput) (int, error) {
	return f.prNumber, nil
}

func (f *fakeGH) RequestReviewers(ctx context.Context, owner, repo string, prNumber int, reviewers []string) error {
	f.reviewers = reviewers
	return nil
}

func (f *fakeGH) AddLabels(ctx context.Context, owner, repo string, number int, labels []string) error {
	f.labels = labels
	return nil
}

func (f *fakeGH) LinkIssueToPR(ctx context.Context, owner, repo string, issueNumber, prNumber int) error {
	f.comments = append(f.comments, fmt.Sprintf("Opened #%d to address this issue.", prNumber))
	return f.commentErr
}

func TestCreateForAppliesLabelsAndLinksIssue(t *testing.T) {
	gh := &fakeGH{prNumber: 42}
	c := New(gh, zap.NewNop())

	in := Input{
		Owner: "acme", Repo: "widgets", IssueNumber: 7, IssueTitle: "Add OAuth2",
		Branch: "archon/acme-widgets-issue-7", BaseBranch: "main",
		Classification: store.Classification{IssueType: "feature", AffectedPackages: []string{"auth"}},
		CLIResult:      runner.Result{Stdout: "implemented OAuth2 flow"},
		Reviewers:      []string{"reviewer1"},
	}

	res, err := c.CreateFor(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, 42, res.PRNumber)
	assert.True(t, res.CommentPosted)
	assert.ElementsMatch(t, []string{"archon-automated", "enhancement"}, gh.labels)
	assert.Equal(t, []string{"reviewer1"}, gh.reviewers)
	require.Len(t, gh.comments, 1)
	assert.Contains(t, gh.comments[0], "#42")
}

func TestCreateForCommentFailureDoesNotFailOverall(t *testing.T) {
	gh := &fakeGH{prNumber: 1, commentErr: errors.New("rate limited")}
	c := New(gh, zap.NewNop())

	res, err := c.CreateFor(context.Background(), Input{Owner: "a", Repo: "b", IssueNumber: 1})
	require.NoError(t, err)
	assert.False(t, res.CommentPosted)
}

func TestSummaryFromTruncatesLongOutput(t *testing.T) {
	long := strings.Repeat("x", maxSummaryChars+500)
	summary := summaryFrom(long)
	assert.LessOrEqual(t, len(summary), maxSummaryChars+len(truncationMarker))
	assert.Contains(t, summary, "truncated")
}

func TestSummaryFromEmptyFallback(t *testing.T) {
	assert.Contains(t, summaryFrom("   "), "No summary output")
}

func TestLabelForUnknownTypeYieldsNoExtraLabel(t *testing.T) {
	assert.Nil(t, labelFor("unknown"))
	assert.Equal(t, []string{"bug"}, labelFor("bug"))
}
