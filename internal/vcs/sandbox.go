package vcs

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/transformd/internal/environment"
	"github.com/fyrsmithlabs/transformd/internal/githost"
)

// SandboxGit is a Client that drives git inside a remote sandbox session.
// Commands are argv arrays; no argument is ever interpolated into a shell
// string.
type SandboxGit struct {
	sandbox environment.Sandbox
}

// NewSandboxGit creates a sandbox-backed client for remote environments.
func NewSandboxGit(sandbox environment.Sandbox) *SandboxGit {
	return &SandboxGit{sandbox: sandbox}
}

func (c *SandboxGit) run(ctx context.Context, env *environment.Environment, dir string, argv []string) (environment.CommandResult, error) {
	res, err := c.sandbox.RunCommand(ctx, env.SessionID(), dir, argv)
	if err != nil {
		return environment.CommandResult{}, err
	}
	if res.Failed() {
		return res, fmt.Errorf("%s exited %d: %s", argv[0], res.ExitCode, res.Output)
	}
	return res, nil
}

// Clone checks out cloneURL into dir inside the sandbox session.
func (c *SandboxGit) Clone(ctx context.Context, env *environment.Environment, cloneURL, dir string, creds Credentials) error {
	url := cloneURL
	if creds.Token.IsSet() {
		url = githost.AuthenticatedURL(cloneURL, creds.Username, creds.Token.Value())
	}
	if _, err := c.run(ctx, env, "", []string{"git", "clone", url, dir}); err != nil {
		return fmt.Errorf("%w: %v", ErrClone, err)
	}
	return nil
}

// Publish stages, commits, branches and pushes inside the sandbox session.
// Each step runs with the repository directory as the working directory.
func (c *SandboxGit) Publish(ctx context.Context, env *environment.Environment, dir, branch, message string, creds Credentials) error {
	steps := []struct {
		name string
		argv []string
	}{
		{"identity", []string{"git", "config", "user.name", defaultCommitterName}},
		{"identity", []string{"git", "config", "user.email", defaultCommitterEmail}},
		{"stage", []string{"git", "add", "-A"}},
		{"commit", []string{"git", "commit", "-m", message}},
		{"branch", []string{"git", "checkout", "-b", branch}},
	}
	for _, step := range steps {
		if _, err := c.run(ctx, env, dir, step.argv); err != nil {
			return &PublishError{Step: step.name, Err: err}
		}
	}

	pushArgv := []string{"git", "push", "origin", branch}
	if creds.Token.IsSet() {
		// Push to a credentialed URL so the non-interactive push can
		// authenticate without touching the remote config.
		originURL, err := c.run(ctx, env, dir, []string{"git", "remote", "get-url", "origin"})
		if err != nil {
			return &PublishError{Step: "push", Err: err}
		}
		authURL := githost.AuthenticatedURL(strings.TrimSpace(originURL.Output), creds.Username, creds.Token.Value())
		pushArgv = []string{"git", "push", authURL, branch}
	}
	if _, err := c.run(ctx, env, dir, pushArgv); err != nil {
		return &PublishError{Step: "push", Err: err}
	}
	return nil
}
