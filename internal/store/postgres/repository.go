package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/archon-run/orchestrator-pipeline/internal/stage"
	"github.com/archon-run/orchestrator-pipeline/internal/store"
)

// Repository implements store.Repository against a *pgxpool.Pool.
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New constructs a Repository over an already-established pool.
func New(pool *pgxpool.Pool, logger *zap.Logger) *Repository {
	return &Repository{pool: pool, logger: logger.With(zap.String("component", "state-repository"))}
}

const insertStateQuery = `
INSERT INTO pipeline_states (
    issue_id, repository, current_stage, classification,
    workspace_path, pr_number, error
) VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING created_at, updated_at, version
`

func (r *Repository) Save(ctx context.Context, s *store.PipelineState) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	classificationJSON, err := marshalClassification(s.Classification)
	if err != nil {
		return fmt.Errorf("marshal classification: %w", err)
	}

	row := tx.QueryRow(ctx, insertStateQuery,
		s.IssueID, s.Repository, string(s.CurrentStage), classificationJSON,
		s.WorkspacePath, s.PRNumber, s.Error,
	)
	if err := row.Scan(&s.CreatedAt, &s.UpdatedAt, &s.Version); err != nil {
		if isUniqueViolation(err) {
			return store.ErrAlreadyExists
		}
		return fmt.Errorf("insert pipeline state: %w", err)
	}

	if err := insertTransitions(ctx, tx, s.IssueID, s.StateHistory); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	r.logger.Info("pipeline state created", zap.String("issue_id", s.IssueID))
	return nil
}

const getStateQuery = `
SELECT issue_id, repository, current_stage, classification,
       workspace_path, pr_number, error, created_at, updated_at, version
FROM pipeline_states
WHERE issue_id = $1
`

func (r *Repository) Get(ctx context.Context, issueID string) (*store.PipelineState, error) {
	s := &store.PipelineState{}
	var currentStage string
	var classificationJSON []byte

	err := r.pool.QueryRow(ctx, getStateQuery, issueID).Scan(
		&s.IssueID, &s.Repository, &currentStage, &classificationJSON,
		&s.WorkspacePath, &s.PRNumber, &s.Error, &s.CreatedAt, &s.UpdatedAt, &s.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrStateNotFound
		}
		return nil, fmt.Errorf("get pipeline state: %w", err)
	}
	s.CurrentStage = stage.Stage(currentStage)

	if s.Classification, err = unmarshalClassification(classificationJSON); err != nil {
		return nil, fmt.Errorf("unmarshal classification: %w", err)
	}
	if s.StateHistory, err = r.getHistory(ctx, issueID); err != nil {
		return nil, err
	}
	return s, nil
}

const listByStageQuery = `
SELECT issue_id, repository, current_stage, classification,
       workspace_path, pr_number, error, created_at, updated_at, version
FROM pipeline_states
WHERE current_stage = $1
ORDER BY created_at ASC
`

func (r *Repository) ListByStage(ctx context.Context, st stage.Stage) ([]*store.PipelineState, error) {
	rows, err := r.pool.Query(ctx, listByStageQuery, string(st))
	if err != nil {
		return nil, fmt.Errorf("list pipeline states: %w", err)
	}
	defer rows.Close()

	var out []*store.PipelineState
	for rows.Next() {
		s := &store.PipelineState{}
		var currentStage string
		var classificationJSON []byte
		if err := rows.Scan(
			&s.IssueID, &s.Repository, &currentStage, &classificationJSON,
			&s.WorkspacePath, &s.PRNumber, &s.Error, &s.CreatedAt, &s.UpdatedAt, &s.Version,
		); err != nil {
			return nil, fmt.Errorf("scan pipeline state: %w", err)
		}
		s.CurrentStage = stage.Stage(currentStage)
		if s.Classification, err = unmarshalClassification(classificationJSON); err != nil {
			return nil, fmt.Errorf("unmarshal classification: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pipeline states: %w", err)
	}

	for _, s := range out {
		if s.StateHistory, err = r.getHistory(ctx, s.IssueID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

const updateStateQuery = `
UPDATE pipeline_states SET
    repository = $2,
    current_stage = $3,
    classification = $4,
    workspace_path = $5,
    pr_number = $6,
    error = $7,
    updated_at = now(),
    version = version + 1
WHERE issue_id = $1 AND version = $8
RETURNING version, updated_at
`

// UpdateWithVersion performs the atomic check-and-update: the UPDATE is
// constrained by both issue_id and the expected prior version, and the new
// transitions are inserted in the same transaction. A RETURNING miss is
// disambiguated by a follow-up read, never a blind retry.
func (r *Repository) UpdateWithVersion(ctx context.Context, s *store.PipelineState, newTransitions ...stage.Transition) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	classificationJSON, err := marshalClassification(s.Classification)
	if err != nil {
		return fmt.Errorf("marshal classification: %w", err)
	}

	expectedPriorVersion := s.Version - 1
	row := tx.QueryRow(ctx, updateStateQuery,
		s.IssueID, s.Repository, string(s.CurrentStage), classificationJSON,
		s.WorkspacePath, s.PRNumber, s.Error, expectedPriorVersion,
	)

	var newVersion int
	var updatedAt = s.UpdatedAt
	if err := row.Scan(&newVersion, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the row doesn't exist or another writer already
			// advanced its version; a plain read tells us which.
			if _, getErr := r.Get(ctx, s.IssueID); getErr != nil {
				if errors.Is(getErr, store.ErrStateNotFound) {
					return store.ErrStateNotFound
				}
				return getErr
			}
			return store.ErrVersionConflict
		}
		return fmt.Errorf("update pipeline state: %w", err)
	}

	if err := insertTransitions(ctx, tx, s.IssueID, newTransitions); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.Version = newVersion
	s.UpdatedAt = updatedAt
	r.logger.Info("pipeline state updated",
		zap.String("issue_id", s.IssueID), zap.Int("version", newVersion))
	return nil
}

const deleteStateQuery = `DELETE FROM pipeline_states WHERE issue_id = $1 RETURNING issue_id`

func (r *Repository) Delete(ctx context.Context, issueID string) error {
	var deleted string
	err := r.pool.QueryRow(ctx, deleteStateQuery, issueID).Scan(&deleted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrStateNotFound
		}
		return fmt.Errorf("delete pipeline state: %w", err)
	}
	return nil
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	var one int
	if err := r.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	return nil
}

const insertTransitionQuery = `
INSERT INTO state_transitions (issue_id, from_stage, to_stage, timestamp, details)
VALUES ($1, $2, $3, $4, $5)
RETURNING id
`

func insertTransitions(ctx context.Context, tx pgx.Tx, issueID string, transitions []stage.Transition) error {
	for i := range transitions {
		detailsJSON, err := marshalDetails(transitions[i].Details)
		if err != nil {
			return fmt.Errorf("marshal transition details: %w", err)
		}
		row := tx.QueryRow(ctx, insertTransitionQuery,
			issueID, string(transitions[i].FromStage), string(transitions[i].ToStage),
			transitions[i].Timestamp, detailsJSON,
		)
		if err := row.Scan(&transitions[i].ID); err != nil {
			return fmt.Errorf("insert transition: %w", err)
		}
	}
	return nil
}

const getHistoryQuery = `
SELECT id, from_stage, to_stage, timestamp, details
FROM state_transitions
WHERE issue_id = $1
ORDER BY id ASC
`

func (r *Repository) getHistory(ctx context.Context, issueID string) ([]stage.Transition, error) {
	rows, err := r.pool.Query(ctx, getHistoryQuery, issueID)
	if err != nil {
		return nil, fmt.Errorf("get state history: %w", err)
	}
	defer rows.Close()

	var history []stage.Transition
	for rows.Next() {
		var t stage.Transition
		var fromStage, toStage string
		var detailsJSON []byte
		if err := rows.Scan(&t.ID, &fromStage, &toStage, &t.Timestamp, &detailsJSON); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.FromStage, t.ToStage = stage.Stage(fromStage), stage.Stage(toStage)
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &t.Details); err != nil {
				return nil, fmt.Errorf("unmarshal transition details: %w", err)
			}
		}
		history = append(history, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate state history: %w", err)
	}
	return history, nil
}

func marshalClassification(c *store.Classification) ([]byte, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}

func unmarshalClassification(data []byte) (*store.Classification, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var c store.Classification
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func marshalDetails(details map[string]any) ([]byte, error) {
	if len(details) == 0 {
		return nil, nil
	}
	return json.Marshal(details)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
