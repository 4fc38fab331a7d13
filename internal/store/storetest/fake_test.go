package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archon-run/orchestrator-pipeline/internal/stage"
	"github.com/archon-run/orchestrator-pipeline/internal/store"
)

func TestSaveThenGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := New()

	s := &store.PipelineState{
		IssueID:      "acme/widgets#42",
		Repository:   "acme/widgets",
		CurrentStage: stage.Pending,
		StateHistory: []stage.Transition{
			{FromStage: "", ToStage: stage.Pending, Timestamp: time.Now().UTC()},
		},
	}
	require.NoError(t, repo.Save(ctx, s))
	assert.Equal(t, 1, s.Version)

	got, err := repo.Get(ctx, s.IssueID)
	require.NoError(t, err)
	assert.Equal(t, s.IssueID, got.IssueID)
	assert.Equal(t, stage.Pending, got.CurrentStage)
	require.Len(t, got.StateHistory, 1)
	assert.Equal(t, stage.Pending, got.StateHistory[0].ToStage)
}

func TestSaveDuplicateIssueIDFails(t *testing.T) {
	ctx := context.Background()
	repo := New()
	s := &store.PipelineState{IssueID: "acme/widgets#1", CurrentStage: stage.Pending}
	require.NoError(t, repo.Save(ctx, s))

	err := repo.Save(ctx, &store.PipelineState{IssueID: "acme/widgets#1", CurrentStage: stage.Pending})
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestUpdateWithVersionAdvancesVersionByOne(t *testing.T) {
	ctx := context.Background()
	repo := New()
	s := &store.PipelineState{IssueID: "acme/widgets#2", CurrentStage: stage.Pending}
	require.NoError(t, repo.Save(ctx, s))

	s.CurrentStage = stage.Intake
	s.Version++
	require.NoError(t, repo.UpdateWithVersion(ctx, s, stage.Transition{
		FromStage: stage.Pending, ToStage: stage.Intake, Timestamp: time.Now().UTC(),
	}))
	assert.Equal(t, 2, s.Version)

	got, err := repo.Get(ctx, s.IssueID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.Len(t, got.StateHistory, 1)
}

func TestUpdateWithVersionConflict(t *testing.T) {
	ctx := context.Background()
	repo := New()
	s := &store.PipelineState{IssueID: "acme/widgets#3", CurrentStage: stage.Pending}
	require.NoError(t, repo.Save(ctx, s))

	stale := *s
	stale.Version = s.Version + 1
	stale.CurrentStage = stage.Intake
	require.NoError(t, repo.UpdateWithVersion(ctx, &stale))

	// Retry the same (now stale) version again.
	staleAgain := stale
	staleAgain.Version = s.Version + 1
	err := repo.UpdateWithVersion(ctx, &staleAgain)
	assert.ErrorIs(t, err, store.ErrVersionConflict)
}

func TestUpdateWithVersionNotFound(t *testing.T) {
	repo := New()
	err := repo.UpdateWithVersion(context.Background(), &store.PipelineState{IssueID: "missing", Version: 2})
	assert.ErrorIs(t, err, store.ErrStateNotFound)
}

func TestHistoryIsAppendOnlyPrefix(t *testing.T) {
	ctx := context.Background()
	repo := New()
	s := &store.PipelineState{IssueID: "acme/widgets#4", CurrentStage: stage.Pending}
	require.NoError(t, repo.Save(ctx, s))

	before, err := repo.Get(ctx, s.IssueID)
	require.NoError(t, err)

	s.Version++
	s.CurrentStage = stage.Intake
	require.NoError(t, repo.UpdateWithVersion(ctx, s, stage.Transition{
		FromStage: stage.Pending, ToStage: stage.Intake, Timestamp: time.Now().UTC(),
	}))

	after, err := repo.Get(ctx, s.IssueID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(after.StateHistory), len(before.StateHistory))
	for i := range before.StateHistory {
		assert.Equal(t, before.StateHistory[i], after.StateHistory[i])
	}
}
