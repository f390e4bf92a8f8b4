// Package executor applies a validated transformation plan to an execution
// environment, entry by entry, in plan order.
package executor

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/transformd/internal/environment"
	"github.com/fyrsmithlabs/transformd/internal/logging"
	"github.com/fyrsmithlabs/transformd/internal/transform"
)

// ApplyError reports the first entry that failed to apply. Entries before it
// are already applied and are not rolled back; partial application is a
// reportable terminal state, not a hidden one.
type ApplyError struct {
	Path string
	Err  error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("failed to apply transformation to %s: %v", e.Path, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// Executor applies transformation plans. Dispatch is environment-typed:
// remote environments receive structured sandbox requests, local
// environments get direct filesystem writes. Both paths produce the same
// final state for the same plan.
type Executor struct {
	sandbox environment.Sandbox
	logger  *logging.Logger
}

// New creates an executor. sandbox may be nil when only local environments
// are in use.
func New(sandbox environment.Sandbox, logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Executor{
		sandbox: sandbox,
		logger:  logger.Named("executor"),
	}
}

// Apply runs the plan against the environment, strictly in plan order,
// rooted at dir (a path relative to the environment root, typically the
// cloned repository directory).
//
// It returns the file paths applied so far. On the first failing entry it
// stops and returns those paths together with an *ApplyError naming the
// failed path; later entries are never attempted.
func (x *Executor) Apply(ctx context.Context, env *environment.Environment, dir string, plan []transform.Transformation) ([]string, error) {
	applied := make([]string, 0, len(plan))

	for _, t := range plan {
		if err := ctx.Err(); err != nil {
			return applied, &ApplyError{Path: t.FilePath, Err: err}
		}
		// The parser validates entries, but plans can also be handed in
		// directly; re-check before touching the filesystem.
		if err := t.Validate(); err != nil {
			return applied, &ApplyError{Path: t.FilePath, Err: err}
		}

		if err := x.applyOne(ctx, env, dir, t); err != nil {
			return applied, &ApplyError{Path: t.FilePath, Err: err}
		}

		applied = append(applied, t.FilePath)
		x.logger.Debug(ctx, "transformation applied",
			zap.String("path", t.FilePath),
			zap.String("operation", string(t.Operation)))
	}

	return applied, nil
}

func (x *Executor) applyOne(ctx context.Context, env *environment.Environment, dir string, t transform.Transformation) error {
	switch env.Kind() {
	case environment.KindRemote:
		return x.applyRemote(ctx, env, dir, t)
	case environment.KindLocal:
		return applyLocal(env, dir, t)
	default:
		return fmt.Errorf("unknown environment kind %q", env.Kind())
	}
}

// applyRemote expresses the operation as a structured sandbox request.
// Path and content are transmitted as data, never interpolated into
// command text.
func (x *Executor) applyRemote(ctx context.Context, env *environment.Environment, dir string, t transform.Transformation) error {
	if x.sandbox == nil {
		return fmt.Errorf("no sandbox client for remote environment")
	}
	target := path.Join(dir, t.FilePath)

	switch t.Operation {
	case transform.OpCreate, transform.OpModify:
		return x.sandbox.WriteFile(ctx, env.SessionID(), target, t.Content)
	case transform.OpDelete:
		return x.sandbox.RemoveFile(ctx, env.SessionID(), target)
	}
	return fmt.Errorf("unknown operation %q", t.Operation)
}

func applyLocal(env *environment.Environment, dir string, t transform.Transformation) error {
	target := filepath.Join(env.Root(), dir, filepath.FromSlash(t.FilePath))

	switch t.Operation {
	case transform.OpCreate, transform.OpModify:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("failed to create parent directories: %w", err)
		}
		if err := os.WriteFile(target, []byte(t.Content), 0o644); err != nil {
			return fmt.Errorf("failed to write file: %w", err)
		}
		return nil
	case transform.OpDelete:
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove file: %w", err)
		}
		return nil
	}
	return fmt.Errorf("unknown operation %q", t.Operation)
}
