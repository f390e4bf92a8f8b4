// Package session tracks transformation sessions from creation through
// completion and expires the ones nobody came back for.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/transformd/internal/config"
)

// Status is the lifecycle state of a transformation session.
type Status string

const (
	// StatusPending is the state at creation, before the pipeline starts.
	StatusPending Status = "pending"

	// StatusInitializing covers environment provisioning and repository
	// clone.
	StatusInitializing Status = "initializing"

	// StatusAnalyzing covers codebase analysis.
	StatusAnalyzing Status = "analyzing"

	// StatusGenerating covers plan generation and parsing.
	StatusGenerating Status = "generating"

	// StatusExecuting covers applying the plan and validation.
	StatusExecuting Status = "executing"

	// StatusDeploying covers staging, committing and pushing results.
	StatusDeploying Status = "deploying"

	// StatusCompleted is the terminal success state.
	StatusCompleted Status = "completed"

	// StatusFailed is the terminal failure state, reachable from any
	// non-terminal state.
	StatusFailed Status = "failed"
)

// order positions each non-failure status on the pipeline timeline.
var order = map[Status]int{
	StatusPending:      0,
	StatusInitializing: 1,
	StatusAnalyzing:    2,
	StatusGenerating:   3,
	StatusExecuting:    4,
	StatusDeploying:    5,
	StatusCompleted:    6,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := order[s]
	return ok || s == StatusFailed
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether moving from s to next is allowed.
// Statuses only move forward; StatusFailed is reachable from any
// non-terminal status.
func (s Status) CanTransitionTo(next Status) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	from, okFrom := order[s]
	to, okTo := order[next]
	return okFrom && okTo && to > from
}

// ErrNotFound indicates the session id is unknown or already expired.
var ErrNotFound = errors.New("session not found")

// ErrInvalidTransition indicates a status update that would move backwards
// or out of a terminal state.
type ErrInvalidTransition struct {
	From Status
	To   Status
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

// Credentials holds the tokens a session uses against external services.
type Credentials struct {
	GitHubToken config.Secret `json:"github_token"`
	Username    string        `json:"username"`
}

// Request is what the caller asked for. BranchName and CommitMessage are
// optional; the pipeline derives them from the session when absent.
type Request struct {
	RepoURL       string `json:"repo_url"`
	Prompt        string `json:"prompt"`
	BranchName    string `json:"branch_name,omitempty"`
	CommitMessage string `json:"commit_message,omitempty"`
}

// Session is one transformation run.
type Session struct {
	ID          string      `json:"id"`
	Status      Status      `json:"status"`
	Request     Request     `json:"request"`
	Credentials Credentials `json:"-"`

	// Branch is the branch results were pushed to, set on completion.
	Branch string `json:"branch,omitempty"`

	// Error is the failure message, set when Status is failed.
	Error string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
