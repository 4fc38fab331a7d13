// Package store defines the durable state repository contract for pipeline
// states. The concrete PostgreSQL implementation lives in the postgres
// subpackage.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/archon-run/orchestrator-pipeline/internal/stage"
)

// Sentinel errors surfaced by Repository implementations. The orchestrator
// distinguishes them with errors.Is; they are never coerced into one
// another.
var (
	ErrAlreadyExists   = errors.New("pipeline state already exists")
	ErrStateNotFound   = errors.New("pipeline state not found")
	ErrVersionConflict = errors.New("pipeline state version conflict")
)

// Classification is the structured verdict produced by the classifier and
// persisted on the state.
type Classification struct {
	IssueType              string   `json:"issue_type"`
	Requirements           []string `json:"requirements"`
	AffectedPackages       []string `json:"affected_packages"`
	CompletenessScore      int      `json:"completeness_score"`
	ClarificationQuestions []string `json:"clarification_questions"`
	Confidence             *float64 `json:"confidence,omitempty"`
	Reasoning              *string  `json:"reasoning,omitempty"`
}

// NeedsClarification reports whether this verdict should keep the
// needs-clarification label set.
func (c *Classification) NeedsClarification() bool {
	return c != nil && c.CompletenessScore < 3
}

// PipelineState is the full durable record for one tracked issue.
type PipelineState struct {
	IssueID        string // "{owner}/{repo}#{number}"
	Repository     string // "{owner}/{repo}"
	CurrentStage   stage.Stage
	StateHistory   []stage.Transition
	Classification *Classification
	WorkspacePath  *string
	PRNumber       *int
	Error          *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Version        int
}

// Repository is the durable state store contract. Every implementation
// must uphold these invariants: version starts at 1 and increases by
// exactly one per successful update; state_history is append-only; a row
// whose current_stage is failed always carries a non-empty error.
type Repository interface {
	// Save inserts a brand-new state row. Fails with ErrAlreadyExists if
	// IssueID collides.
	Save(ctx context.Context, s *PipelineState) error

	// Get returns the complete state, including history, or
	// ErrStateNotFound.
	Get(ctx context.Context, issueID string) (*PipelineState, error)

	// ListByStage returns all states currently in the given stage,
	// oldest-created first.
	ListByStage(ctx context.Context, st stage.Stage) ([]*PipelineState, error)

	// UpdateWithVersion persists s only if the stored row's version equals
	// s.Version-1, appending newTransitions to state_transitions in the
	// same database transaction. On success s.Version and s.UpdatedAt are
	// refreshed in place. Returns ErrStateNotFound or ErrVersionConflict
	// without mutating anything on failure.
	UpdateWithVersion(ctx context.Context, s *PipelineState, newTransitions ...stage.Transition) error

	// Delete removes the state and cascade-deletes its transitions.
	Delete(ctx context.Context, issueID string) error

	// HealthCheck performs a single round-trip probe.
	HealthCheck(ctx context.Context) error
}
