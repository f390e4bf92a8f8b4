// Package validation runs the configured test command against a transformed
// repository. A failing or timed-out run is reported, not raised; the
// pipeline decides whether it blocks publishing.
package validation

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/executor"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/transformd/internal/config"
	"github.com/fyrsmithlabs/transformd/internal/environment"
	"github.com/fyrsmithlabs/transformd/internal/logging"
)

// ErrTimeout indicates the validation command exceeded its deadline.
var ErrTimeout = errors.New("validation timed out")

// Result captures the outcome of a validation run.
type Result struct {
	Passed   bool
	TimedOut bool
	Output   string
}

// Runner executes the validation command in local or remote environments.
type Runner struct {
	command []string
	timeout config.Duration
	sandbox environment.Sandbox
	logger  *logging.Logger
}

// NewRunner creates a Runner from the validation config.
func NewRunner(cfg config.ValidationConfig, sandbox environment.Sandbox, logger *logging.Logger) (*Runner, error) {
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("validation command must not be empty")
	}
	timeout := cfg.Timeout
	if timeout.Duration() <= 0 {
		timeout = config.Duration(60 * time.Second)
	}
	return &Runner{
		command: cfg.Command,
		timeout: timeout,
		sandbox: sandbox,
		logger:  logger,
	}, nil
}

// Run executes the validation command against dir inside env. Test failures
// and timeouts come back in the Result; only infrastructure problems return
// an error.
func (r *Runner) Run(ctx context.Context, env *environment.Environment, dir string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout.Duration())
	defer cancel()

	r.logger.Info(ctx, "running validation",
		zap.String("command", strings.Join(r.command, " ")),
		zap.String("kind", string(env.Kind())),
	)

	var res Result
	var err error
	switch env.Kind() {
	case environment.KindLocal:
		res, err = r.runLocal(ctx, env, dir)
	case environment.KindRemote:
		res, err = r.runRemote(ctx, env, dir)
	default:
		return Result{}, fmt.Errorf("unknown environment kind %q", env.Kind())
	}
	if err != nil {
		return Result{}, err
	}

	if res.TimedOut {
		r.logger.Warn(ctx, "validation timed out")
	} else if !res.Passed {
		r.logger.Warn(ctx, "validation failed")
	}
	return res, nil
}

func (r *Runner) runLocal(ctx context.Context, env *environment.Environment, dir string) (Result, error) {
	workdir := filepath.Join(env.Root(), filepath.FromSlash(dir))

	cmd := executor.New(r.command[0], r.command[1:]...)
	res, err := cmd.Execute(ctx,
		executor.WithCapture(true, true, true),
		executor.WithWorkingDir(workdir),
	)

	if ctx.Err() == context.DeadlineExceeded {
		output := ""
		if res != nil {
			output = res.Combined
		}
		return Result{TimedOut: true, Output: output}, nil
	}
	if res == nil {
		return Result{}, fmt.Errorf("failed to run validation command: %w", err)
	}

	return Result{Passed: res.ExitCode == 0, Output: res.Combined}, nil
}

func (r *Runner) runRemote(ctx context.Context, env *environment.Environment, dir string) (Result, error) {
	if r.sandbox == nil {
		return Result{}, fmt.Errorf("remote environment requires a sandbox client")
	}

	res, err := r.sandbox.RunCommand(ctx, env.SessionID(), dir, r.command)
	if ctx.Err() == context.DeadlineExceeded {
		return Result{TimedOut: true, Output: res.Output}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("failed to run validation command: %w", err)
	}

	return Result{Passed: !res.Failed(), Output: res.Output}, nil
}
