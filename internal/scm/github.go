package scm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// GitHub reads the latest commit of a branch through the GitHub API. Useful
// when the machine running the automation has no local clone.
type GitHub struct {
	client              *github.Client
	owner               string
	repo                string
	branch              string
	expectedIdentifiers []string
}

// NewGitHub creates a GitHub-backed remote. ownerRepo is "owner/repo".
// An empty token produces an unauthenticated client (public repos only).
func NewGitHub(ownerRepo, branch, token string, identifiers []string) (*GitHub, error) {
	parts := strings.Split(ownerRepo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("invalid owner/repo format: %s", ownerRepo)
	}

	var client *github.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		client = github.NewClient(oauth2.NewClient(context.Background(), ts))
	} else {
		client = github.NewClient(nil)
	}

	return &GitHub{
		client:              client,
		owner:               parts[0],
		repo:                parts[1],
		branch:              branch,
		expectedIdentifiers: identifiers,
	}, nil
}

// SetBaseURL points the client at a different API endpoint. Used by tests.
func (g *GitHub) SetBaseURL(raw string) error {
	u, err := g.client.BaseURL.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	g.client.BaseURL = u
	return nil
}

// Verify checks the owner/repo pair against the expected identifiers and that
// the repository is reachable with the configured credentials.
func (g *GitHub) Verify(ctx context.Context) error {
	full := g.owner + "/" + g.repo
	if !matchesIdentifiers(full, g.expectedIdentifiers) {
		return fmt.Errorf("repository %q does not match any expected identifier %v",
			full, g.expectedIdentifiers)
	}

	if _, _, err := g.client.Repositories.Get(ctx, g.owner, g.repo); err != nil {
		return fmt.Errorf("repository %s not reachable: %w", full, err)
	}

	return nil
}

// LatestCommit returns the SHA at the tip of the watched branch.
func (g *GitHub) LatestCommit(ctx context.Context) (string, error) {
	branch, _, err := g.client.Repositories.GetBranch(ctx, g.owner, g.repo, g.branch, 0)
	if err != nil {
		return "", fmt.Errorf("failed to query branch %s: %w", g.branch, err)
	}

	if branch.Commit == nil || branch.Commit.SHA == nil {
		return "", fmt.Errorf("branch %s has no commit information", g.branch)
	}

	return *branch.Commit.SHA, nil
}
