// Package pipeline runs a transformation session end to end: provision an
// environment, clone, analyze, generate and apply a plan, validate, publish.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/transformd/internal/analysis"
	"github.com/fyrsmithlabs/transformd/internal/environment"
	"github.com/fyrsmithlabs/transformd/internal/events"
	"github.com/fyrsmithlabs/transformd/internal/executor"
	"github.com/fyrsmithlabs/transformd/internal/githost"
	"github.com/fyrsmithlabs/transformd/internal/logging"
	"github.com/fyrsmithlabs/transformd/internal/planner"
	"github.com/fyrsmithlabs/transformd/internal/session"
	"github.com/fyrsmithlabs/transformd/internal/transform"
	"github.com/fyrsmithlabs/transformd/internal/validation"
	"github.com/fyrsmithlabs/transformd/internal/vcs"
)

const (
	// stageCount is the number of pipeline stages reported in events.
	stageCount = 6

	// repoDir is the repository directory relative to the environment root.
	repoDir = "repo"

	// commitSubjectLimit caps how much of the prompt ends up in the commit
	// message.
	commitSubjectLimit = 50
)

// Deps collects everything an Orchestrator needs.
type Deps struct {
	Provisioner *environment.Provisioner
	Sandbox     environment.Sandbox
	Analyzer    *analysis.Analyzer
	Generator   planner.Generator
	Executor    *executor.Executor
	Validator   *validation.Runner
	Registry    *session.Registry
	Emitter     *events.Emitter
	Logger      *logging.Logger

	// BlockOnValidationFailure stops the pipeline before deploying when
	// validation fails. Default is to annotate and proceed.
	BlockOnValidationFailure bool
}

// Orchestrator drives the stage machine for one session at a time. Run is
// safe to call from multiple goroutines for different sessions.
type Orchestrator struct {
	deps Deps
}

// New creates an Orchestrator.
func New(deps Deps) *Orchestrator {
	return &Orchestrator{deps: deps}
}

// Start launches the session pipeline in its own goroutine.
func (o *Orchestrator) Start(ctx context.Context, sess session.Session) {
	go o.Run(ctx, sess)
}

// stageError carries the failing stage alongside the cause.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string {
	return fmt.Sprintf("%s: %v", e.stage, e.err)
}

func (e *stageError) Unwrap() error { return e.err }

// Run executes every stage in order. Any stage failure tears the
// environment down, marks the session failed and emits the failure event;
// nothing is published after a failure.
func (o *Orchestrator) Run(ctx context.Context, sess session.Session) {
	ctx = logging.WithSessionID(ctx, sess.ID)
	logger := o.deps.Logger.Named("pipeline")

	logger.Info(ctx, "pipeline started", zap.String("repo", sess.Request.RepoURL))

	env, err := o.run(ctx, sess)

	// Teardown precedes the terminal event on every path.
	o.deps.Provisioner.Teardown(ctx, env)

	if err != nil {
		logger.Error(ctx, "pipeline failed", zap.Error(err))
		if ferr := o.deps.Registry.Fail(sess.ID, err.Error()); ferr != nil {
			logger.Warn(ctx, "failed to mark session failed", zap.Error(ferr))
		}
		stage := stageCount
		var serr *stageError
		if errors.As(err, &serr) {
			stage = stageIndex(serr.stage)
		}
		o.emit(sess.ID, stage, events.Event{Kind: events.KindFailed, Message: err.Error()})
		return
	}

	logger.Info(ctx, "pipeline completed")
	o.emit(sess.ID, stageCount, events.Event{Kind: events.KindCompleted, Message: "transformation complete"})
}

// run performs the stages and returns the environment for teardown. The
// environment may be nil when provisioning itself never produced one.
func (o *Orchestrator) run(ctx context.Context, sess session.Session) (*environment.Environment, error) {
	d := o.deps

	// Stage 1: initializing. Provision the environment and clone.
	if err := o.enter(sess.ID, 1, session.StatusInitializing, "provisioning environment"); err != nil {
		return nil, err
	}
	env, err := d.Provisioner.Provision(ctx)
	if err != nil {
		return nil, &stageError{stage: "initializing", err: err}
	}

	vcsClient, err := vcs.New(env, d.Sandbox)
	if err != nil {
		return env, &stageError{stage: "initializing", err: err}
	}
	creds := vcs.Credentials{
		Username: sess.Credentials.Username,
		Token:    sess.Credentials.GitHubToken,
	}
	cloneURL := githost.NormalizeURL(sess.Request.RepoURL)
	if err := vcsClient.Clone(ctx, env, cloneURL, repoDir, creds); err != nil {
		return env, &stageError{stage: "initializing", err: err}
	}

	// Stage 2: analyzing.
	if err := o.enter(sess.ID, 2, session.StatusAnalyzing, "analyzing codebase"); err != nil {
		return env, err
	}
	summary, err := d.Analyzer.Analyze(ctx, env, repoDir)
	if err != nil {
		return env, &stageError{stage: "analyzing", err: err}
	}
	o.emitPayload(sess.ID, 2, events.KindAnalysis,
		fmt.Sprintf("%d files analyzed", summary.TotalFiles), summary)

	// Stage 3: generating.
	if err := o.enter(sess.ID, 3, session.StatusGenerating, "generating transformation plan"); err != nil {
		return env, err
	}
	raw, err := d.Generator.GeneratePlan(ctx, sess.Request.Prompt, summary)
	if err != nil {
		return env, &stageError{stage: "generating", err: err}
	}
	plan, err := transform.Parse(raw)
	if err != nil {
		return env, &stageError{stage: "generating", err: err}
	}
	o.emitPayload(sess.ID, 3, events.KindPlan,
		fmt.Sprintf("plan with %d transformations", len(plan)), plan)

	// Stage 4: executing. First failure aborts with partial application
	// reported.
	if err := o.enter(sess.ID, 4, session.StatusExecuting, "applying transformations"); err != nil {
		return env, err
	}
	applied, err := d.Executor.Apply(ctx, env, repoDir, plan)
	if err != nil {
		o.emitPayload(sess.ID, 4, events.KindApplied, "partial application", applied)
		return env, &stageError{stage: "executing", err: err}
	}
	o.emitPayload(sess.ID, 4, events.KindApplied,
		fmt.Sprintf("%d files changed", len(applied)), applied)

	// Validation is annotated; it only blocks when configured to.
	result, err := d.Validator.Run(ctx, env, repoDir)
	if err != nil {
		return env, &stageError{stage: "executing", err: err}
	}
	o.emitPayload(sess.ID, 4, events.KindValidation, validationMessage(result), result)
	if !result.Passed && d.BlockOnValidationFailure {
		cause := fmt.Errorf("validation failed")
		if result.TimedOut {
			cause = validation.ErrTimeout
		}
		return env, &stageError{stage: "executing", err: cause}
	}

	// Stage 5: deploying. Stage, commit, branch, push; all or nothing.
	if err := o.enter(sess.ID, 5, session.StatusDeploying, "publishing results"); err != nil {
		return env, err
	}
	branch := sess.Request.BranchName
	if branch == "" {
		branch = branchName(sess.ID)
	}
	message := sess.Request.CommitMessage
	if message == "" {
		message = commitMessage(sess.Request.Prompt)
	}
	if err := vcsClient.Publish(ctx, env, repoDir, branch, message, creds); err != nil {
		return env, &stageError{stage: "deploying", err: err}
	}
	if err := d.Registry.SetBranch(sess.ID, branch); err != nil {
		return env, &stageError{stage: "deploying", err: err}
	}
	o.emit(sess.ID, 5, events.Event{Kind: events.KindDeployed, Message: branch})

	// Stage 6: completed.
	if err := d.Registry.UpdateStatus(sess.ID, session.StatusCompleted); err != nil {
		return env, &stageError{stage: "completing", err: err}
	}
	return env, nil
}

// enter advances the session status and emits the stage transition event.
func (o *Orchestrator) enter(sessionID string, stage int, status session.Status, message string) error {
	if err := o.deps.Registry.UpdateStatus(sessionID, status); err != nil {
		return &stageError{stage: string(status), err: err}
	}
	o.emit(sessionID, stage, events.Event{Kind: events.KindStatus, Message: message})
	return nil
}

func (o *Orchestrator) emit(sessionID string, stage int, ev events.Event) {
	ev.Stage = stage
	ev.StageCount = stageCount
	o.deps.Emitter.Emit(sessionID, ev)
}

func (o *Orchestrator) emitPayload(sessionID string, stage int, kind events.Kind, message string, payload any) {
	ev := events.Event{Kind: kind, Message: message}
	if blob, err := json.Marshal(payload); err == nil {
		ev.Payload = blob
	}
	o.emit(sessionID, stage, ev)
}

func validationMessage(r validation.Result) string {
	switch {
	case r.TimedOut:
		return "validation timed out"
	case r.Passed:
		return "validation passed"
	default:
		return "validation failed"
	}
}

// branchName derives the publish branch from the session id.
func branchName(sessionID string) string {
	short := sessionID
	if len(short) > 8 {
		short = short[:8]
	}
	return "transform-" + short
}

// commitMessage summarizes the prompt in the commit subject, truncating on
// a rune boundary.
func commitMessage(prompt string) string {
	subject := []rune(prompt)
	if len(subject) > commitSubjectLimit {
		subject = subject[:commitSubjectLimit]
	}
	return "Apply AI transformations: " + string(subject)
}

func stageIndex(stage string) int {
	switch stage {
	case string(session.StatusInitializing):
		return 1
	case string(session.StatusAnalyzing):
		return 2
	case string(session.StatusGenerating):
		return 3
	case string(session.StatusExecuting):
		return 4
	case string(session.StatusDeploying):
		return 5
	default:
		return stageCount
	}
}
