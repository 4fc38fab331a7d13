// Package clarification keeps the needs-clarification label and checklist
// comment on a GitHub issue in sync with the latest classification verdict.
package clarification

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/archon-run/orchestrator-pipeline/internal/store"
)

const (
	needsClarificationLabel = "needs-clarification"
	completenessThreshold   = 3

	commentHeader = "## Clarification needed\n\nBefore this issue can be worked automatically, please answer the following:\n"
	commentFooter = "\n_This checklist was generated automatically. Editing the issue to address these points will allow the pipeline to proceed._"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// GitHubClient is the subset of internal/githubclient.Client this package
// needs, kept as an interface so tests don't need a live client.
type GitHubClient interface {
	ListIssueLabels(ctx context.Context, owner, repo string, number int) ([]string, error)
	AddLabels(ctx context.Context, owner, repo string, number int, labels []string) error
	RemoveLabel(ctx context.Context, owner, repo string, number int, label string) error
	CreateComment(ctx context.Context, owner, repo string, number int, body string) error
}

// Manager syncs the needs-clarification label and checklist comment.
type Manager struct {
	gh     GitHubClient
	logger *zap.Logger
}

// New builds a Manager.
func New(gh GitHubClient, logger *zap.Logger) *Manager {
	return &Manager{gh: gh, logger: logger.With(zap.String("component", "clarification"))}
}

// Sync inspects v and idempotently adds or removes the label, posting a
// checklist comment when adding. needs-clarification is present iff
// v.CompletenessScore < 3.
func (m *Manager) Sync(ctx context.Context, owner, repo string, number int, v store.Classification) error {
	needs := v.CompletenessScore < completenessThreshold

	if !needs {
		if err := m.gh.RemoveLabel(ctx, owner, repo, number, needsClarificationLabel); err != nil {
			return fmt.Errorf("remove clarification label: %w", err)
		}
		return nil
	}

	if err := m.gh.AddLabels(ctx, owner, repo, number, []string{needsClarificationLabel}); err != nil {
		return fmt.Errorf("add clarification label: %w", err)
	}

	if len(v.ClarificationQuestions) == 0 {
		return nil
	}

	body := buildChecklistComment(v.ClarificationQuestions)
	if err := m.gh.CreateComment(ctx, owner, repo, number, body); err != nil {
		m.logger.Warn("posting clarification checklist comment failed",
			zap.String("repository", fmt.Sprintf("%s/%s", owner, repo)),
			zap.Int("issue", number), zap.Error(err))
		return fmt.Errorf("post clarification comment: %w", err)
	}
	return nil
}

func buildChecklistComment(questions []string) string {
	var b strings.Builder
	b.WriteString(commentHeader)
	for _, q := range questions {
		b.WriteString("- [ ] ")
		b.WriteString(sanitizeQuestion(q))
		b.WriteString("\n")
	}
	b.WriteString(commentFooter)
	return b.String()
}

// sanitizeQuestion collapses newlines and repeated whitespace into single
// spaces so a multi-line question can't break the checklist markdown.
func sanitizeQuestion(q string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(q, " "))
}
