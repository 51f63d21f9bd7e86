package scm

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Local reads the latest commit from a local clone's remote-tracking ref
// (refs/remotes/<remote>/<branch>). It assumes the ref is kept current by the
// normal push/fetch workflow; the push-build alias runs right after a push, so
// the tracking ref is always fresh at that point.
type Local struct {
	Path                string
	RemoteName          string
	Branch              string
	ExpectedIdentifiers []string
}

// NewLocal creates a Local remote for the repository at path.
func NewLocal(path, remote, branch string, identifiers []string) *Local {
	return &Local{
		Path:                path,
		RemoteName:          remote,
		Branch:              branch,
		ExpectedIdentifiers: identifiers,
	}
}

func (l *Local) open() (*git.Repository, error) {
	// DetectDotGit walks up the directory tree, so the tool can run from a
	// subdirectory of the checkout.
	repo, err := git.PlainOpenWithOptions(l.Path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open repository at %s: %w", l.Path, err)
	}
	return repo, nil
}

// Verify checks that the configured remote's URL matches one of the expected
// repository identifiers. This automation must never trigger builds from the
// wrong checkout.
func (l *Local) Verify(ctx context.Context) error {
	repo, err := l.open()
	if err != nil {
		return err
	}

	remote, err := repo.Remote(l.RemoteName)
	if err != nil {
		return fmt.Errorf("remote %q not found: %w", l.RemoteName, err)
	}

	urls := remote.Config().URLs
	if len(urls) == 0 {
		return fmt.Errorf("remote %q has no URL configured", l.RemoteName)
	}

	if !matchesIdentifiers(urls[0], l.ExpectedIdentifiers) {
		return fmt.Errorf("repository %q does not match any expected identifier %v",
			urls[0], l.ExpectedIdentifiers)
	}

	return nil
}

// LatestCommit returns the hash the remote-tracking branch points at.
func (l *Local) LatestCommit(ctx context.Context) (string, error) {
	repo, err := l.open()
	if err != nil {
		return "", err
	}

	refName := plumbing.NewRemoteReferenceName(l.RemoteName, l.Branch)
	ref, err := repo.Reference(refName, true)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", refName, err)
	}

	hash := ref.Hash()
	if hash.IsZero() {
		return "", fmt.Errorf("ref %s has no commit", refName)
	}

	return hash.String(), nil
}

// Describe returns a human-readable name for logs.
func (l *Local) Describe() string {
	return fmt.Sprintf("%s/%s in %s", l.RemoteName, l.Branch, strings.TrimSuffix(l.Path, "/"))
}
