// Package scm answers "what is the latest commit on the watched branch" and
// verifies that the automation is pointed at the intended repository before
// any build is triggered.
package scm

import (
	"context"
	"strings"
)

// Remote is the narrow view of a source-control remote the pipeline needs.
type Remote interface {
	// Verify checks that the remote is the repository this automation is
	// allowed to operate on. It must be called before any side effects.
	Verify(ctx context.Context) error

	// LatestCommit returns the identifier of the newest commit on the
	// watched branch.
	LatestCommit(ctx context.Context) (string, error)
}

// matchesIdentifiers reports whether the repository location contains any of
// the expected identifiers (case-insensitive). An empty identifier list
// disables the check.
func matchesIdentifiers(location string, identifiers []string) bool {
	if len(identifiers) == 0 {
		return true
	}
	lower := strings.ToLower(location)
	for _, id := range identifiers {
		if id != "" && strings.Contains(lower, strings.ToLower(id)) {
			return true
		}
	}
	return false
}
