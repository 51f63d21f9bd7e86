// Package hooks installs the git aliases that make triggering the pipeline a
// deliberate act: plain `git push-only` never starts anything, `git
// push-build` chains the push with a pipeline run.
package hooks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kballard/go-shellquote"

	"github.com/krislette/gl-jenkins-tem/pkg/cmdutil"
)

const (
	aliasPushOnly  = "alias.push-only"
	aliasPushBuild = "alias.push-build"
)

// Verifier confirms the working directory is the expected repository before
// any alias is touched. scm.Local satisfies it.
type Verifier interface {
	Verify(ctx context.Context) error
}

// execFunc runs a command in a directory. Injectable for tests.
type execFunc func(ctx context.Context, dir string, args []string) ([]byte, error)

// Manager installs and removes the pipeline git aliases.
type Manager struct {
	repoPath string
	remote   string
	branch   string
	// binary is the command the push-build alias invokes after a push.
	binary   string
	verifier Verifier
	logger   *slog.Logger
	exec     execFunc
}

// NewManager creates an alias manager for the repository at repoPath. binary
// is the automation executable the push-build alias should call.
func NewManager(repoPath, remote, branch, binary string, verifier Verifier, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		repoPath: repoPath,
		remote:   remote,
		branch:   branch,
		binary:   binary,
		verifier: verifier,
		logger:   logger,
		exec:     cmdutil.RunSimple,
	}
}

// Install verifies the repository and writes both aliases into its git
// config. Installing twice simply overwrites.
func (m *Manager) Install(ctx context.Context) error {
	if err := m.verifier.Verify(ctx); err != nil {
		return fmt.Errorf("refusing to install aliases: %w", err)
	}

	pushOnly := fmt.Sprintf("push %s %s", m.remote, m.branch)
	if err := m.setAlias(ctx, aliasPushOnly, pushOnly); err != nil {
		return err
	}

	pushBuild := fmt.Sprintf("!git push %s %s && %s run --build",
		m.remote, m.branch, shellquote.Join(m.binary))
	if err := m.setAlias(ctx, aliasPushBuild, pushBuild); err != nil {
		return err
	}

	m.logger.Info("Git aliases installed", "repo", m.repoPath)
	return nil
}

// Remove unsets both aliases. Aliases that were never installed are not an
// error.
func (m *Manager) Remove(ctx context.Context) error {
	for _, alias := range []string{aliasPushOnly, aliasPushBuild} {
		if _, err := m.exec(ctx, m.repoPath, []string{"git", "config", "--unset", alias}); err != nil {
			m.logger.Debug("Alias was not set", "alias", alias)
		}
	}

	m.logger.Info("Git aliases removed", "repo", m.repoPath)
	return nil
}

func (m *Manager) setAlias(ctx context.Context, name, value string) error {
	output, err := m.exec(ctx, m.repoPath, []string{"git", "config", name, value})
	if err != nil {
		return fmt.Errorf("failed to set %s: %w: %s", name, err, output)
	}
	return nil
}
