package vcs

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/fyrsmithlabs/transformd/internal/environment"
)

const (
	defaultRemoteName     = "origin"
	defaultCommitterName  = "transformd"
	defaultCommitterEmail = "transformd@localhost"
)

// GoGit is a Client backed by go-git operating on the local filesystem.
type GoGit struct{}

// NewGoGit creates a go-git backed client for local environments.
func NewGoGit() *GoGit {
	return &GoGit{}
}

func (c *GoGit) auth(creds Credentials) *http.BasicAuth {
	if !creds.Token.IsSet() {
		return nil
	}
	username := creds.Username
	if username == "" {
		username = "git"
	}
	return &http.BasicAuth{Username: username, Password: creds.Token.Value()}
}

// Clone checks out cloneURL under the environment root.
func (c *GoGit) Clone(ctx context.Context, env *environment.Environment, cloneURL, dir string, creds Credentials) error {
	target := filepath.Join(env.Root(), filepath.FromSlash(dir))

	_, err := git.PlainCloneContext(ctx, target, false, &git.CloneOptions{
		URL:  cloneURL,
		Auth: c.auth(creds),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrClone, err)
	}
	return nil
}

// Publish stages everything in the worktree, commits, creates branch and
// pushes it to origin.
func (c *GoGit) Publish(ctx context.Context, env *environment.Environment, dir, branch, message string, creds Credentials) error {
	target := filepath.Join(env.Root(), filepath.FromSlash(dir))

	repo, err := git.PlainOpen(target)
	if err != nil {
		return &PublishError{Step: "open", Err: err}
	}

	wt, err := repo.Worktree()
	if err != nil {
		return &PublishError{Step: "open", Err: err}
	}

	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return &PublishError{Step: "stage", Err: err}
	}

	now := time.Now()
	_, err = wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  defaultCommitterName,
			Email: defaultCommitterEmail,
			When:  now,
		},
	})
	if err != nil {
		return &PublishError{Step: "commit", Err: err}
	}

	branchRef := plumbing.NewBranchReferenceName(branch)
	if err := wt.Checkout(&git.CheckoutOptions{Branch: branchRef, Create: true}); err != nil {
		return &PublishError{Step: "branch", Err: err}
	}

	refSpec := gitconfig.RefSpec(fmt.Sprintf("%s:%s", branchRef, branchRef))
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: defaultRemoteName,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Auth:       c.auth(creds),
	})
	if err != nil {
		return &PublishError{Step: "push", Err: err}
	}
	return nil
}
