// Package githost lists repositories from the hosting provider on behalf of
// a user-supplied token.
package githost

import (
	"context"

	"github.com/fyrsmithlabs/transformd/internal/config"
)

// Repository describes one hosted repository.
type Repository struct {
	Owner       string `json:"owner"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	Language    string `json:"language,omitempty"`
}

// Host is the repository hosting provider.
type Host interface {
	// ListRepositories returns the token owner's repositories, forks
	// excluded.
	ListRepositories(ctx context.Context, token config.Secret) ([]Repository, error)
}
