package environment

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/transformd/internal/logging"
)

// Provisioner creates and destroys execution environments, remote-first
// with silent local fallback.
type Provisioner struct {
	sandbox Sandbox
	logger  *logging.Logger
}

// NewProvisioner creates a provisioner. sandbox may be nil when no remote
// execution service is configured; every run then uses a local environment.
func NewProvisioner(sandbox Sandbox, logger *logging.Logger) *Provisioner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Provisioner{
		sandbox: sandbox,
		logger:  logger.Named("provisioner"),
	}
}

// Provision acquires an environment for one pipeline run. The remote path
// is attempted first; on any error (missing credential, network failure,
// quota) it falls back to a fresh local scratch directory. The fallback is
// logged, not raised: callers proceed with whatever environment they get.
func (p *Provisioner) Provision(ctx context.Context) (*Environment, error) {
	if p.sandbox != nil {
		sessionID, err := p.sandbox.CreateSession(ctx)
		if err == nil {
			p.logger.Info(ctx, "remote environment provisioned",
				zap.String("sandbox_session", sessionID))
			return NewRemote(sessionID), nil
		}
		p.logger.Warn(ctx, "remote provisioning failed, falling back to local",
			zap.Error(fmt.Errorf("%w: %v", ErrProvision, err)))
	}

	root, err := os.MkdirTemp("", "transformd-")
	if err != nil {
		return nil, fmt.Errorf("failed to create local environment: %w", err)
	}
	p.logger.Info(ctx, "local environment provisioned", zap.String("root", root))
	return NewLocal(root), nil
}

// Teardown releases whichever resource the environment holds. It is
// idempotent: tearing down an already-released or nil environment is a
// no-op. Errors are logged, never returned; teardown runs on every exit
// path including failures, and must not mask the original error.
func (p *Provisioner) Teardown(ctx context.Context, env *Environment) {
	if env == nil || !env.markReleased() {
		return
	}

	switch env.kind {
	case KindRemote:
		if p.sandbox == nil {
			return
		}
		if err := p.sandbox.CloseSession(ctx, env.sessionID); err != nil {
			p.logger.Warn(ctx, "failed to close sandbox session",
				zap.String("sandbox_session", env.sessionID), zap.Error(err))
			return
		}
		p.logger.Info(ctx, "remote environment released",
			zap.String("sandbox_session", env.sessionID))
	case KindLocal:
		if err := os.RemoveAll(env.root); err != nil {
			p.logger.Warn(ctx, "failed to remove local environment",
				zap.String("root", env.root), zap.Error(err))
			return
		}
		p.logger.Info(ctx, "local environment removed", zap.String("root", env.root))
	}
}
