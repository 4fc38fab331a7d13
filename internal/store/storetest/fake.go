// Package storetest provides an in-memory store.Repository fake for tests,
// implementing the same version/history invariants the Postgres repository
// upholds so callers can be tested without a database.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/archon-run/orchestrator-pipeline/internal/stage"
	"github.com/archon-run/orchestrator-pipeline/internal/store"
)

// Fake is a goroutine-safe in-memory store.Repository.
type Fake struct {
	mu         sync.Mutex
	states     map[string]*store.PipelineState
	history    map[string][]stage.Transition
	nextTransID int64
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		states:  make(map[string]*store.PipelineState),
		history: make(map[string][]stage.Transition),
	}
}

func clonePipelineState(s *store.PipelineState) *store.PipelineState {
	c := *s
	if s.Classification != nil {
		cc := *s.Classification
		c.Classification = &cc
	}
	return &c
}

func (f *Fake) Save(ctx context.Context, s *store.PipelineState) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.states[s.IssueID]; exists {
		return store.ErrAlreadyExists
	}

	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt, s.Version = now, now, 1

	for i := range s.StateHistory {
		f.nextTransID++
		s.StateHistory[i].ID = f.nextTransID
	}

	f.states[s.IssueID] = clonePipelineState(s)
	f.history[s.IssueID] = append([]stage.Transition(nil), s.StateHistory...)
	return nil
}

func (f *Fake) Get(ctx context.Context, issueID string) (*store.PipelineState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.states[issueID]
	if !ok {
		return nil, store.ErrStateNotFound
	}
	out := clonePipelineState(s)
	out.StateHistory = append([]stage.Transition(nil), f.history[issueID]...)
	return out, nil
}

func (f *Fake) ListByStage(ctx context.Context, st stage.Stage) ([]*store.PipelineState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*store.PipelineState
	for _, s := range f.states {
		if s.CurrentStage == st {
			c := clonePipelineState(s)
			c.StateHistory = append([]stage.Transition(nil), f.history[s.IssueID]...)
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *Fake) UpdateWithVersion(ctx context.Context, s *store.PipelineState, newTransitions ...stage.Transition) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	existing, ok := f.states[s.IssueID]
	if !ok {
		return store.ErrStateNotFound
	}
	if existing.Version != s.Version-1 {
		return store.ErrVersionConflict
	}

	for i := range newTransitions {
		f.nextTransID++
		newTransitions[i].ID = f.nextTransID
	}
	f.history[s.IssueID] = append(f.history[s.IssueID], newTransitions...)

	now := time.Now().UTC()
	s.Version = existing.Version + 1
	s.UpdatedAt = now
	f.states[s.IssueID] = clonePipelineState(s)
	return nil
}

func (f *Fake) Delete(ctx context.Context, issueID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.states[issueID]; !ok {
		return store.ErrStateNotFound
	}
	delete(f.states, issueID)
	delete(f.history, issueID)
	return nil
}

func (f *Fake) HealthCheck(ctx context.Context) error {
	return nil
}

var _ store.Repository = (*Fake)(nil)
