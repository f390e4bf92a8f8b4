// Package http provides the HTTP API for transformd.
package http

import (
	"time"

	"github.com/fyrsmithlabs/transformd/internal/session"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// RepositoriesRequest is the request body for POST /api/v1/repositories.
type RepositoriesRequest struct {
	GitHubToken string `json:"github_token"`
}

// RepositoryItem is one entry in a RepositoriesResponse.
type RepositoryItem struct {
	Owner       string `json:"owner"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	Language    string `json:"language,omitempty"`
}

// RepositoriesResponse is the response body for POST /api/v1/repositories.
type RepositoriesResponse struct {
	Repositories []RepositoryItem `json:"repositories"`
}

// CreateSessionRequest is the request body for POST /api/v1/sessions.
// BranchName and CommitMessage are optional; the server derives them from
// the session id and prompt when absent.
type CreateSessionRequest struct {
	RepoURL       string `json:"repo_url"`
	Prompt        string `json:"prompt"`
	BranchName    string `json:"branch_name,omitempty"`
	CommitMessage string `json:"commit_message,omitempty"`
	GitHubToken   string `json:"github_token,omitempty"`
	Username      string `json:"username,omitempty"`
}

// SessionResponse describes a session's current state.
type SessionResponse struct {
	ID        string         `json:"id"`
	Status    session.Status `json:"status"`
	RepoURL   string         `json:"repo_url"`
	Prompt    string         `json:"prompt"`
	Branch    string         `json:"branch,omitempty"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func toSessionResponse(s session.Session) SessionResponse {
	return SessionResponse{
		ID:        s.ID,
		Status:    s.Status,
		RepoURL:   s.Request.RepoURL,
		Prompt:    s.Request.Prompt,
		Branch:    s.Branch,
		Error:     s.Error,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}
