// Package contextbuilder writes the context.md and task.md artifacts a
// workspace needs before the CLI runner is invoked.
package contextbuilder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/archon-run/orchestrator-pipeline/internal/store"
)

// KnowledgeProvider optionally enriches context.md with prior-art text.
// A nil Provider, or one that errors, never fails the build.
type KnowledgeProvider interface {
	Query(ctx context.Context, query string) (string, error)
}

// IssueDetails is the minimal issue context Build needs.
type IssueDetails struct {
	Title string
	Body  string
}

// Builder writes context.md and task.md.
type Builder struct {
	knowledge KnowledgeProvider
	logger    *zap.Logger
}

// New builds a Builder. knowledge may be nil.
func New(knowledge KnowledgeProvider, logger *zap.Logger) *Builder {
	return &Builder{knowledge: knowledge, logger: logger.With(zap.String("component", "contextbuilder"))}
}

// Build writes context.md and task.md into workspacePath.
func (b *Builder) Build(ctx context.Context, workspacePath string, issue IssueDetails, c store.Classification) error {
	knowledgeText := b.queryKnowledge(ctx, issue, c)

	if err := os.WriteFile(filepath.Join(workspacePath, "context.md"), []byte(buildContextMD(issue, c, knowledgeText)), 0644); err != nil {
		return fmt.Errorf("write context.md: %w", err)
	}
	if err := os.WriteFile(filepath.Join(workspacePath, "task.md"), []byte(buildTaskMD(issue, c)), 0644); err != nil {
		return fmt.Errorf("write task.md: %w", err)
	}
	return nil
}

func (b *Builder) queryKnowledge(ctx context.Context, issue IssueDetails, c store.Classification) string {
	if b.knowledge == nil {
		return ""
	}
	query := strings.Join(append([]string{issue.Title}, c.Requirements...), " ")
	text, err := b.knowledge.Query(ctx, query)
	if err != nil {
		b.logger.Warn("knowledge provider query failed, continuing without it", zap.Error(err))
		return ""
	}
	return strings.TrimSpace(text)
}

func buildContextMD(issue IssueDetails, c store.Classification, knowledgeText string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Context: %s\n\n", issue.Title)

	b.WriteString("## Issue Details\n\n")
	fmt.Fprintf(&b, "**%s**\n\n", issue.Title)
	body := strings.TrimSpace(issue.Body)
	if body == "" {
		body = "_No description provided._"
	}
	b.WriteString(body)
	b.WriteString("\n\n")

	b.WriteString("## Classification\n\n")
	fmt.Fprintf(&b, "- **Type:** %s\n", orUnknown(c.IssueType))
	fmt.Fprintf(&b, "- **Completeness:** %d/5\n", c.CompletenessScore)
	fmt.Fprintf(&b, "- **Affected packages:** %s\n", commaList(c.AffectedPackages))
	b.WriteString("- **Requirements:**\n")
	for i, r := range c.Requirements {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, r)
	}
	b.WriteString("\n")

	if knowledgeText != "" {
		b.WriteString("## Knowledge Context\n\n")
		b.WriteString(knowledgeText)
		b.WriteString("\n")
	}

	return b.String()
}

func buildTaskMD(issue IssueDetails, c store.Classification) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Task: %s\n\n", issue.Title)
	fmt.Fprintf(&b, "**Type:** %s\n\n", orUnknown(c.IssueType))

	b.WriteString("## Objective\n\n")
	objective := strings.TrimSpace(issue.Body)
	if objective == "" {
		objective = issue.Title
	}
	b.WriteString(objective)
	b.WriteString("\n\n")

	b.WriteString("## Requirements\n\n")
	for i, r := range c.Requirements {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r)
	}
	b.WriteString("\n")

	b.WriteString("## Affected Packages\n\n")
	for _, p := range c.AffectedPackages {
		fmt.Fprintf(&b, "- %s\n", p)
	}

	return b.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}

func commaList(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
