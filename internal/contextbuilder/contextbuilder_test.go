package contextbuilder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/archon-run/orchestrator-pipeline/internal/store"
)

type fakeKnowledge struct {
	text string
	err  error
}

func (f fakeKnowledge) Query(ctx context.Context, query string) (string, error) {
	return f.text, f.err
}

func TestBuildWritesBothFiles(t *testing.T) {
	dir := t.TempDir()
	b := New(fakeKnowledge{text: "prior art here"}, zap.NewNop())

	issue := IssueDetails{Title: "Add OAuth2", Body: "Support OAuth2 login"}
	c := store.Classification{
		IssueType:         "feature",
		CompletenessScore: 4,
		Requirements:      []string{"support google", "support github"},
		AffectedPackages:  []string{"auth", "api"},
	}

	require.NoError(t, b.Build(context.Background(), dir, issue, c))

	contextBytes, err := os.ReadFile(filepath.Join(dir, "context.md"))
	require.NoError(t, err)
	contextMD := string(contextBytes)
	assert.Contains(t, contextMD, "# Context: Add OAuth2")
	assert.Contains(t, contextMD, "## Classification")
	assert.Contains(t, contextMD, "4/5")
	assert.Contains(t, contextMD, "## Knowledge Context")
	assert.Contains(t, contextMD, "prior art here")

	taskBytes, err := os.ReadFile(filepath.Join(dir, "task.md"))
	require.NoError(t, err)
	taskMD := string(taskBytes)
	assert.Contains(t, taskMD, "# Task: Add OAuth2")
	assert.Contains(t, taskMD, "**Type:** feature")
	assert.Contains(t, taskMD, "1. support google")
	assert.Contains(t, taskMD, "## Affected Packages")
}

func TestBuildOmitsKnowledgeSectionOnProviderError(t *testing.T) {
	dir := t.TempDir()
	b := New(fakeKnowledge{err: errors.New("provider down")}, zap.NewNop())

	err := b.Build(context.Background(), dir, IssueDetails{Title: "X"}, store.Classification{})
	require.NoError(t, err)

	contextBytes, err := os.ReadFile(filepath.Join(dir, "context.md"))
	require.NoError(t, err)
	assert.NotContains(t, string(contextBytes), "## Knowledge Context")
}

func TestBuildWithNilKnowledgeProvider(t *testing.T) {
	dir := t.TempDir()
	b := New(nil, zap.NewNop())

	err := b.Build(context.Background(), dir, IssueDetails{Title: "X", Body: ""}, store.Classification{})
	require.NoError(t, err)

	contextBytes, err := os.ReadFile(filepath.Join(dir, "context.md"))
	require.NoError(t, err)
	assert.Contains(t, string(contextBytes), "_No description provided._")
}
