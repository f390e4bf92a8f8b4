// Package vcs provides repository cloning and publishing for transformation
// sessions. Local environments use go-git directly; remote environments run
// git inside the sandbox.
package vcs

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/transformd/internal/config"
	"github.com/fyrsmithlabs/transformd/internal/environment"
)

// ErrClone indicates the repository could not be cloned into the environment.
var ErrClone = errors.New("repository clone failed")

// PublishError reports which step of the publish chain failed. Publish is
// all-or-nothing: a failed step leaves no partial branch on the remote.
type PublishError struct {
	Step string
	Err  error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish failed at %s: %v", e.Step, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// Credentials authenticates clone and push operations over https.
type Credentials struct {
	Username string
	Token    config.Secret
}

// Client performs version-control operations inside an environment. The dir
// argument is the repository directory relative to the environment root.
type Client interface {
	// Clone checks out the repository at cloneURL into dir.
	Clone(ctx context.Context, env *environment.Environment, cloneURL, dir string, creds Credentials) error

	// Publish stages all changes, commits them with message, creates branch
	// and pushes it to origin.
	Publish(ctx context.Context, env *environment.Environment, dir, branch, message string, creds Credentials) error
}

// New selects the client implementation matching the environment kind.
func New(env *environment.Environment, sandbox environment.Sandbox) (Client, error) {
	switch env.Kind() {
	case environment.KindLocal:
		return NewGoGit(), nil
	case environment.KindRemote:
		if sandbox == nil {
			return nil, fmt.Errorf("remote environment requires a sandbox client")
		}
		return NewSandboxGit(sandbox), nil
	default:
		return nil, fmt.Errorf("unknown environment kind %q", env.Kind())
	}
}
