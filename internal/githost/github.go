package githost

import (
	"context"
	"fmt"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/fyrsmithlabs/transformd/internal/config"
)

// GitHub implements Host against the GitHub API.
type GitHub struct {
	// baseURL overrides the API endpoint, for tests and GitHub Enterprise.
	baseURL string
}

// NewGitHub creates a GitHub host client.
func NewGitHub() *GitHub {
	return &GitHub{}
}

// NewGitHubWithBaseURL creates a GitHub host client against a custom API
// endpoint.
func NewGitHubWithBaseURL(baseURL string) *GitHub {
	return &GitHub{baseURL: baseURL}
}

func (g *GitHub) newClient(ctx context.Context, token config.Secret) (*github.Client, error) {
	if !token.IsSet() {
		return nil, fmt.Errorf("GitHub token not set")
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token.Value()})
	client := github.NewClient(oauth2.NewClient(ctx, ts))
	if g.baseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(g.baseURL, g.baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub base URL: %w", err)
		}
	}
	return client, nil
}

// ListRepositories returns the authenticated user's repositories, forks
// excluded, following pagination.
func (g *GitHub) ListRepositories(ctx context.Context, token config.Secret) ([]Repository, error) {
	client, err := g.newClient(ctx, token)
	if err != nil {
		return nil, err
	}

	opts := &github.RepositoryListOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var repos []Repository
	for {
		page, resp, err := client.Repositories.List(ctx, "", opts)
		if err != nil {
			return nil, fmt.Errorf("failed to retrieve repositories: %w", err)
		}

		for _, r := range page {
			if r.GetFork() {
				continue
			}
			repos = append(repos, Repository{
				Owner:       r.GetOwner().GetLogin(),
				Name:        r.GetName(),
				URL:         r.GetHTMLURL(),
				Description: r.GetDescription(),
				Language:    r.GetLanguage(),
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return repos, nil
}
