// Package environment provides the isolated execution environment a
// pipeline run operates against: a remote sandbox session when one can be
// provisioned, otherwise a local scratch directory.
package environment

import (
	"context"
	"errors"
	"sync/atomic"
)

// Kind discriminates the environment variant.
type Kind string

const (
	// KindRemote is a session on the remote execution service.
	KindRemote Kind = "remote"

	// KindLocal is a scratch directory on the local filesystem.
	KindLocal Kind = "local"
)

// ErrProvision indicates the remote provisioning path failed. It is
// recovered internally by falling back to a local environment and never
// surfaces to pipeline callers.
var ErrProvision = errors.New("remote provisioning failed")

// Environment is the execution context for one pipeline run. Exactly one
// variant backs it, selected at provisioning time and fixed for the run.
type Environment struct {
	kind Kind

	// sessionID identifies the remote sandbox session (remote only).
	sessionID string

	// root is the scratch directory path (local only).
	root string

	released atomic.Bool
}

// NewRemote returns an environment backed by a sandbox session.
func NewRemote(sessionID string) *Environment {
	return &Environment{kind: KindRemote, sessionID: sessionID}
}

// NewLocal returns an environment backed by a local directory.
func NewLocal(root string) *Environment {
	return &Environment{kind: KindLocal, root: root}
}

// Kind returns the environment variant.
func (e *Environment) Kind() Kind { return e.kind }

// SessionID returns the remote sandbox session handle. Empty for local
// environments.
func (e *Environment) SessionID() string { return e.sessionID }

// Root returns the local scratch directory. Empty for remote environments.
func (e *Environment) Root() string { return e.root }

// markReleased flips the released flag, returning false if it was already
// set. Teardown uses this to stay idempotent.
func (e *Environment) markReleased() bool {
	return e.released.CompareAndSwap(false, true)
}

// CommandResult is the outcome of a command run in a remote sandbox session.
type CommandResult struct {
	Output   string `json:"output"`
	ExitCode int    `json:"exit_code"`
}

// Failed reports whether the command exited non-zero.
func (r CommandResult) Failed() bool { return r.ExitCode != 0 }

// Sandbox is the remote execution service. File operations are transmitted
// as structured requests (operation kind, path, content as data) rather than
// interpolated command text.
type Sandbox interface {
	// CreateSession provisions a fresh sandbox session.
	CreateSession(ctx context.Context) (sessionID string, err error)

	// WriteFile writes content to path inside the session, creating parent
	// directories as needed.
	WriteFile(ctx context.Context, sessionID, path, content string) error

	// RemoveFile removes path inside the session. Removing an absent file
	// is not an error.
	RemoveFile(ctx context.Context, sessionID, path string) error

	// RunCommand executes argv inside the session with dir as the working
	// directory and captures its output. An empty dir runs at the session
	// root.
	RunCommand(ctx context.Context, sessionID, dir string, argv []string) (CommandResult, error)

	// ListFiles returns paths under dir inside the session.
	ListFiles(ctx context.Context, sessionID, dir string) ([]string, error)

	// CloseSession releases the session. Closing an unknown session is
	// not an error.
	CloseSession(ctx context.Context, sessionID string) error
}
