package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/krislette/gl-jenkins-tem/internal/hooks"
	"github.com/krislette/gl-jenkins-tem/internal/report"
	"github.com/krislette/gl-jenkins-tem/internal/scm"
)

var hooksCmd = &cobra.Command{
	Use:   "hooks",
	Short: "Manage the push-only and push-build git aliases",
	Long: `hooks installs convenience aliases into the watched repository:

  git push-only    push without triggering anything
  git push-build   push, then run the pipeline

Only push-build ever starts a build, so a plain push stays safe.`,
}

var hooksInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the git aliases",
	RunE:  runHooksInstall,
}

var hooksRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove the git aliases",
	RunE:  runHooksRemove,
}

func init() {
	hooksCmd.AddCommand(hooksInstallCmd)
	hooksCmd.AddCommand(hooksRemoveCmd)
}

func newHooksManager() (*hooks.Manager, *report.Reporter, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reporter := report.New(os.Stdout)

	verifier := scm.NewLocal(cfg.Repo.Path, cfg.Repo.Remote, cfg.Repo.Branch,
		cfg.Repo.ExpectedIdentifiers)
	manager := hooks.NewManager(cfg.Repo.Path, cfg.Repo.Remote, cfg.Repo.Branch,
		executablePath(), verifier, logger)

	return manager, reporter, nil
}

func runHooksInstall(cmd *cobra.Command, args []string) error {
	manager, reporter, err := newHooksManager()
	if err != nil {
		return err
	}

	if err := manager.Install(cmd.Context()); err != nil {
		reporter.Errorf("%v", err)
		return err
	}

	reporter.Successf("Git aliases installed")
	reporter.Infof("  git push-only    normal push, no automation")
	reporter.Infof("  git push-build   push and trigger the pipeline")
	return nil
}

func runHooksRemove(cmd *cobra.Command, args []string) error {
	manager, reporter, err := newHooksManager()
	if err != nil {
		return err
	}

	if err := manager.Remove(cmd.Context()); err != nil {
		return err
	}

	reporter.Successf("Git aliases removed")
	return nil
}
