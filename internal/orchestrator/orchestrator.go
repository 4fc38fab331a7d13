// Package orchestrator drives a GitHub issue through the classify,
// provision, implement, and PR-creation stages, recording every
// transition durably and emitting observability events along the way.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/archon-run/orchestrator-pipeline/internal/classifier"
	"github.com/archon-run/orchestrator-pipeline/internal/clarification"
	"github.com/archon-run/orchestrator-pipeline/internal/contextbuilder"
	"github.com/archon-run/orchestrator-pipeline/internal/events"
	"github.com/archon-run/orchestrator-pipeline/internal/githubclient"
	"github.com/archon-run/orchestrator-pipeline/internal/prcreator"
	"github.com/archon-run/orchestrator-pipeline/internal/provisioner"
	"github.com/archon-run/orchestrator-pipeline/internal/runner"
	"github.com/archon-run/orchestrator-pipeline/internal/stage"
	"github.com/archon-run/orchestrator-pipeline/internal/store"
	"github.com/archon-run/orchestrator-pipeline/internal/webhook"
)

// WebhookEvent is the orchestrator-facing alias of the normalized webhook
// payload.
type WebhookEvent = webhook.Event

// GitHubClient is the subset of githubclient.Client the orchestrator calls
// directly (beyond what its collaborators already wrap).
type GitHubClient interface {
	GetIssue(ctx context.Context, owner, repo string, number int) (*githubclient.IssueDetails, error)
}

// Provisioner is the subset of provisioner.Provisioner the orchestrator
// depends on, kept as an interface since its real implementation shells
// out to git.
type Provisioner interface {
	Provision(ctx context.Context, issueID string, c store.Classification, issue provisioner.IssueDetails) (*provisioner.ProvisionedWorkspace, error)
}

// ContextBuilder is the subset of contextbuilder.Builder the orchestrator
// depends on.
type ContextBuilder interface {
	Build(ctx context.Context, workspacePath string, issue contextbuilder.IssueDetails, c store.Classification) error
}

// CLIRunner is the subset of runner.Runner the orchestrator depends on,
// kept as an interface since its real implementation execs a subprocess.
type CLIRunner interface {
	Run(ctx context.Context, workspacePath, taskFile string, logCb runner.LogCallback) runner.Result
}

// Config tunes orchestration policy.
type Config struct {
	MaxVersionConflictRetries int
	DefaultBaseBranch         string
}

// Orchestrator wires every pipeline collaborator together. All
// dependencies arrive via constructor injection so each stage can be
// substituted independently in tests.
type Orchestrator struct {
	machine        *stage.Machine
	repo           store.Repository
	classifier     classifier.Classifier
	clarifier      *clarification.Manager
	provisioner    Provisioner
	contextBuilder ContextBuilder
	runner         CLIRunner
	gh             GitHubClient
	prCreator      *prcreator.Creator
	emitter        events.Emitter
	cfg            Config
	logger         *zap.Logger
}

// New builds an Orchestrator.
func New(
	repo store.Repository,
	cl classifier.Classifier,
	clarifier *clarification.Manager,
	prov Provisioner,
	cb ContextBuilder,
	run CLIRunner,
	gh GitHubClient,
	prCreator *prcreator.Creator,
	emitter events.Emitter,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.MaxVersionConflictRetries <= 0 {
		cfg.MaxVersionConflictRetries = 3
	}
	if cfg.DefaultBaseBranch == "" {
		cfg.DefaultBaseBranch = "main"
	}
	return &Orchestrator{
		machine:        stage.NewMachine(),
		repo:           repo,
		classifier:     cl,
		clarifier:      clarifier,
		provisioner:    prov,
		contextBuilder: cb,
		runner:         run,
		gh:             gh,
		prCreator:      prCreator,
		emitter:        emitter,
		cfg:            cfg,
		logger:         logger.With(zap.String("component", "orchestrator")),
	}
}

// runState threads the last CLI result through a single HandleWebhook call
// without persisting it; the durable state never stores raw stdout.
type runState struct {
	*store.PipelineState
	cliResult runner.Result
}

// cliFailureError wraps a failed runner.Result so fail()/emitError can tell
// a timed-out run apart from an ordinary non-zero exit without a second
// event emission.
type cliFailureError struct {
	exitCode int
	stderr   string
	timedOut bool
}

func (e *cliFailureError) Error() string {
	return fmt.Sprintf("implementation CLI failed: exit_code=%d stderr=%s", e.exitCode, e.stderr)
}

// HandleWebhook drives the pipeline state for ev forward by as many
// stages as the current state allows in a single call.
func (o *Orchestrator) HandleWebhook(ctx context.Context, ev WebhookEvent) error {
	issueID := fmt.Sprintf("%s/%s#%d", ev.Owner, ev.Repository, ev.Number)
	repository := fmt.Sprintf("%s/%s", ev.Owner, ev.Repository)

	base, err := o.loadOrCreate(ctx, issueID, repository)
	if err != nil {
		o.emitError(issueID, repository, "", err)
		return fmt.Errorf("load or create pipeline state: %w", err)
	}
	s := &runState{PipelineState: base}

	if s.CurrentStage == stage.Clarification && (ev.Action == "edited" || ev.Action == "labeled") {
		if err := o.advanceToIntake(ctx, s, ev); err != nil {
			return o.fail(ctx, s, stage.Clarification, err)
		}
	}

	if s.CurrentStage == stage.Pending {
		if err := o.advanceToIntake(ctx, s, ev); err != nil {
			return o.fail(ctx, s, stage.Intake, err)
		}
	}

	if s.CurrentStage != stage.Provisioning {
		// Either stopped in CLARIFICATION awaiting a follow-up webhook, or
		// already terminal (COMPLETED/FAILED) — nothing further to drive now.
		return nil
	}

	if err := o.provision(ctx, s); err != nil {
		return o.fail(ctx, s, stage.Provisioning, err)
	}

	if err := o.implement(ctx, s); err != nil {
		return o.fail(ctx, s, stage.Implementation, err)
	}

	if err := o.createPR(ctx, s, ev); err != nil {
		return o.fail(ctx, s, stage.PRCreation, err)
	}

	o.logger.Info("issue pipeline completed", zap.String("issue_id", issueID), zap.Int("pr_number", derefInt(s.PRNumber)))
	return nil
}

func (o *Orchestrator) loadOrCreate(ctx context.Context, issueID, repository string) (*store.PipelineState, error) {
	existing, err := o.repo.Get(ctx, issueID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrStateNotFound) {
		return nil, err
	}

	now := time.Now()
	s := &store.PipelineState{
		IssueID:      issueID,
		Repository:   repository,
		CurrentStage: stage.Pending,
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
	}
	if err := o.repo.Save(ctx, s); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return o.repo.Get(ctx, issueID)
		}
		return nil, fmt.Errorf("create pending state: %w", err)
	}

	o.emit(events.Event{
		Type: events.TypeStateTransition, IssueID: issueID, Repository: repository,
		Timestamp: now, Details: map[string]any{"to_stage": string(stage.Pending)},
	})
	return s, nil
}

// advanceToIntake moves s into INTAKE, classifies the issue, syncs the
// needs-clarification label, and moves on to either CLARIFICATION or
// PROVISIONING. Used both for a brand-new PENDING state and to re-run
// classification when a CLARIFICATION state receives an edited/labeled
// webhook.
func (o *Orchestrator) advanceToIntake(ctx context.Context, s *runState, ev WebhookEvent) error {
	if err := o.transition(ctx, s.PipelineState, stage.Intake, nil); err != nil {
		return err
	}

	verdict := o.classifier.Classify(ctx, ev.Title, ev.Body, ev.Labels)
	s.Classification = verdict

	if err := o.clarifier.Sync(ctx, ev.Owner, ev.Repository, ev.Number, *verdict); err != nil {
		o.logger.Warn("clarification sync failed", zap.String("issue_id", s.IssueID), zap.Error(err))
	}

	if verdict.NeedsClarification() {
		return o.transition(ctx, s.PipelineState, stage.Clarification, map[string]any{"completeness_score": verdict.CompletenessScore})
	}
	return o.transition(ctx, s.PipelineState, stage.Provisioning, nil)
}

func (o *Orchestrator) provision(ctx context.Context, s *runState) error {
	owner, repo := splitRepository(s.Repository)
	issue, err := o.gh.GetIssue(ctx, owner, repo, issueNumber(s.IssueID))
	if err != nil {
		return fmt.Errorf("fetch issue for provisioning: %w", err)
	}

	ws, err := o.provisioner.Provision(ctx, s.IssueID, *s.Classification, provisioner.IssueDetails{Owner: owner, Repository: repo})
	if err != nil {
		return fmt.Errorf("provision workspace: %w", err)
	}
	s.WorkspacePath = &ws.Path

	if err := o.contextBuilder.Build(ctx, ws.Path, contextbuilder.IssueDetails{Title: issue.Title, Body: issue.Body}, *s.Classification); err != nil {
		return fmt.Errorf("build context artifacts: %w", err)
	}

	return o.transition(ctx, s.PipelineState, stage.Implementation, map[string]any{"workspace_path": ws.Path})
}

func (o *Orchestrator) implement(ctx context.Context, s *runState) error {
	if s.WorkspacePath == nil {
		return fmt.Errorf("implement called without a provisioned workspace")
	}

	result := o.runner.Run(ctx, *s.WorkspacePath, "task.md", func(l runner.LogLine) {
		o.logger.Debug("cli output", zap.String("issue_id", s.IssueID), zap.String("stream", l.Stream), zap.String("line", l.Text))
	})
	s.cliResult = result

	if !result.Success {
		return &cliFailureError{exitCode: result.ExitCode, stderr: result.Stderr, timedOut: result.ExitCode == -1}
	}

	return o.transition(ctx, s.PipelineState, stage.PRCreation, map[string]any{"duration_seconds": result.Duration.Seconds()})
}

func (o *Orchestrator) createPR(ctx context.Context, s *runState, ev WebhookEvent) error {
	owner, repo := splitRepository(s.Repository)
	branch := fmt.Sprintf("archon/%s-%s-issue-%d", owner, repo, ev.Number)

	res, err := o.prCreator.CreateFor(ctx, prcreator.Input{
		Owner: owner, Repo: repo, IssueNumber: ev.Number, IssueTitle: ev.Title,
		Branch: branch, BaseBranch: o.cfg.DefaultBaseBranch,
		Classification: *s.Classification, CLIResult: s.cliResult,
	})
	if err != nil {
		return fmt.Errorf("create pull request: %w", err)
	}
	s.PRNumber = &res.PRNumber

	if err := o.transition(ctx, s.PipelineState, stage.Completed, map[string]any{"pr_number": res.PRNumber}); err != nil {
		return err
	}

	o.emit(events.Event{
		Type: events.TypeCompletion, IssueID: s.IssueID, Repository: s.Repository, Timestamp: time.Now(),
		Details: map[string]any{
			"pr_number":        res.PRNumber,
			"comment_posted":   res.CommentPosted,
			"duration_seconds": time.Since(s.CreatedAt).Seconds(),
		},
	})
	return nil
}

// transition validates and performs a stage move, retrying on optimistic
// lock conflicts up to MaxVersionConflictRetries, then emits a
// state_transition event on success.
func (o *Orchestrator) transition(ctx context.Context, s *store.PipelineState, to stage.Stage, details map[string]any) error {
	if err := o.machine.Validate(s.CurrentStage, to); err != nil {
		return err
	}

	from := s.CurrentStage
	sincePrevious := time.Since(s.UpdatedAt).Seconds()
	s.CurrentStage = to

	var lastErr error
	for attempt := 0; attempt < o.cfg.MaxVersionConflictRetries; attempt++ {
		s.Version++
		err := o.repo.UpdateWithVersion(ctx, s, stage.Transition{
			FromStage: from, ToStage: to, Timestamp: time.Now(), Details: details,
		})
		if err == nil {
			o.emit(events.Event{
				Type: events.TypeStateTransition, IssueID: s.IssueID, Repository: s.Repository,
				Timestamp: time.Now(),
				Details: map[string]any{
					"from_stage":                      string(from),
					"to_stage":                        string(to),
					"duration_since_previous_seconds": sincePrevious,
				},
			})
			return nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return err
		}
		lastErr = err

		fresh, getErr := o.repo.Get(ctx, s.IssueID)
		if getErr != nil {
			return getErr
		}
		s.Version = fresh.Version
	}
	return fmt.Errorf("transition %s->%s: %w after %d attempts", from, to, lastErr, o.cfg.MaxVersionConflictRetries)
}

// fail wraps cause, transitions s to FAILED, and emits a single error (or
// timeout) event. A FAILED transition that itself fails is logged but never
// re-raised: the caller already has the original cause to report.
func (o *Orchestrator) fail(ctx context.Context, s *runState, failedAt stage.Stage, cause error) error {
	msg := cause.Error()
	s.Error = &msg

	if err := o.transition(ctx, s.PipelineState, stage.Failed, map[string]any{"error": msg, "failed_at": string(failedAt)}); err != nil {
		o.logger.Error("transition to failed itself failed", zap.String("issue_id", s.IssueID), zap.String("stage", string(failedAt)), zap.Error(err))
	}

	o.emitError(s.IssueID, s.Repository, string(failedAt), cause)
	return fmt.Errorf("stage %s: %w", failedAt, cause)
}

func (o *Orchestrator) emit(e events.Event) {
	if o.emitter == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Warn("event emitter panicked", zap.Any("recovered", r))
		}
	}()
	o.emitter.Emit(e)
}

func (o *Orchestrator) emitError(issueID, repository, stageName string, cause error) {
	eventType := events.TypeError
	var cliErr *cliFailureError
	if errors.As(cause, &cliErr) && cliErr.timedOut {
		eventType = events.TypeTimeout
	}
	o.emit(events.Event{
		Type: eventType, IssueID: issueID, Repository: repository, Timestamp: time.Now(),
		Details: map[string]any{"stage": stageName, "error": cause.Error()},
	})
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// splitRepository splits a "owner/repo" string. IssueID and Repository are
// always constructed in this form in HandleWebhook, so absence of "/" never
// happens in practice; callers on a malformed value get an empty owner.
func splitRepository(repository string) (owner, repo string) {
	for i := 0; i < len(repository); i++ {
		if repository[i] == '/' {
			return repository[:i], repository[i+1:]
		}
	}
	return "", repository
}

// issueNumber extracts the trailing "#123" number from an issue ID of the
// form "owner/repo#123".
func issueNumber(issueID string) int {
	idx := -1
	for i := 0; i < len(issueID); i++ {
		if issueID[i] == '#' {
			idx = i
		}
	}
	if idx == -1 {
		return 0
	}
	n := 0
	for _, r := range issueID[idx+1:] {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	return n
}
