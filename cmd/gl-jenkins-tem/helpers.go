package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/krislette/gl-jenkins-tem/internal/config"
	"github.com/krislette/gl-jenkins-tem/internal/jenkins"
	"github.com/krislette/gl-jenkins-tem/internal/pipeline"
	"github.com/krislette/gl-jenkins-tem/internal/report"
	"github.com/krislette/gl-jenkins-tem/internal/scm"
	"github.com/krislette/gl-jenkins-tem/internal/tem"
	"github.com/krislette/gl-jenkins-tem/internal/tracker"
	"github.com/krislette/gl-jenkins-tem/pkg/fileutil"
)

const configFileName = "automation.yaml"

// configPath is the --config flag value, shared by all subcommands.
var configPath string

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = fileutil.FindConfigOptional(configFileName)
	}
	if path == "" {
		return nil, fmt.Errorf("no %s found; create one or pass --config", configFileName)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func newRemote(cfg *config.Config) (scm.Remote, error) {
	switch cfg.Repo.Provider {
	case "github":
		return scm.NewGitHub(cfg.Repo.GitHub.OwnerRepo, cfg.Repo.Branch,
			cfg.Repo.GitHub.Token, cfg.Repo.ExpectedIdentifiers)
	default:
		return scm.NewLocal(cfg.Repo.Path, cfg.Repo.Remote, cfg.Repo.Branch,
			cfg.Repo.ExpectedIdentifiers), nil
	}
}

func newTracker(cfg *config.Config, logger *slog.Logger) (*tracker.Tracker, error) {
	return tracker.New(cfg.Tracker.DBPath, logger)
}

func pollPolicy(cfg *config.Config) pipeline.Policy {
	return pipeline.Policy{
		QueueInterval:    cfg.Poll.QueueInterval.Std(),
		QueueWait:        cfg.Poll.QueueWait.Std(),
		MinBeforePoll:    cfg.Poll.MinBeforePoll.Std(),
		Interval:         cfg.Poll.Interval.Std(),
		MaxWait:          cfg.Poll.MaxWait.Std(),
		TransientRetries: cfg.Poll.TransientRetries,
	}
}

func newJenkinsClient(cfg *config.Config, logger *slog.Logger) *jenkins.Client {
	return jenkins.NewClient(cfg.Jenkins.BaseURL, cfg.Jenkins.Username,
		cfg.Jenkins.APIToken, cfg.Jenkins.JobName, logger)
}

func newTEMDriver(cfg *config.Config, reporter *report.Reporter, logger *slog.Logger) *tem.Driver {
	headless := cfg.TEM.HeadlessEnabled()
	factory := func(ctx context.Context) (tem.Browser, error) {
		return tem.NewChromeBrowser(ctx, headless)
	}
	return tem.NewDriver(cfg.TEM.BaseURL, cfg.TEM.ScriptBranch, cfg.TEM.ScriptVersion,
		cfg.TEM.UsageType, factory, reporter, logger)
}

// executablePath returns the path of the running binary, falling back to the
// bare command name when it cannot be resolved.
func executablePath() string {
	if exe, err := os.Executable(); err == nil {
		return exe
	}
	return "gl-jenkins-tem"
}
