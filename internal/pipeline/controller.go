package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/krislette/gl-jenkins-tem/internal/jenkins"
	"github.com/krislette/gl-jenkins-tem/internal/scm"
	"github.com/krislette/gl-jenkins-tem/internal/tem"
	"github.com/krislette/gl-jenkins-tem/internal/tracker"
	"github.com/krislette/gl-jenkins-tem/pkg/cmdutil"
)

// notifyTimeout bounds the optional on-complete notification command.
const notifyTimeout = 30 * time.Second

// CommitTracker is the subset of the tracker the controller needs.
type CommitTracker interface {
	LastProcessed(ctx context.Context) string
	HasNewCommit(ctx context.Context, remoteLatest string) bool
	MarkProcessed(ctx context.Context, commitHash string) error
	RecordRun(ctx context.Context, record *tracker.RunRecord) (int64, error)
}

// BuildPoller triggers a build and follows it to a terminal state.
type BuildPoller interface {
	Run(ctx context.Context, params map[string]string) (*BuildRun, error)
}

// TestDriver submits a test plan against the built environment.
type TestDriver interface {
	Submit(ctx context.Context, req tem.Request) (*tem.Submission, error)
}

// ControllerConfig wires the controller's collaborators and per-run inputs.
type ControllerConfig struct {
	Remote   scm.Remote
	Tracker  CommitTracker
	Poller   BuildPoller
	Driver   TestDriver
	Reporter Reporter
	Logger   *slog.Logger

	// BuildParams are passed to Jenkins verbatim.
	BuildParams map[string]string
	// PlanName and NotifyEmail form the TEM submission request.
	PlanName    string
	NotifyEmail string
	// OnComplete is an optional shell-quoted command run after a fully
	// successful pipeline.
	OnComplete string
	// Force runs the pipeline even when no new commit is present.
	Force bool
}

// Controller chains the pipeline stages: check, trigger, poll, submit, done.
// Stages are strictly sequential and fail fast; the commit marker is written
// at exactly one point, after the submission was accepted.
type Controller struct {
	remote   scm.Remote
	tracker  CommitTracker
	poller   BuildPoller
	driver   TestDriver
	reporter Reporter
	logger   *slog.Logger

	buildParams map[string]string
	planName    string
	notifyEmail string
	onComplete  string
	force       bool
}

// NewController creates a pipeline controller.
func NewController(cfg ControllerConfig) *Controller {
	reporter := cfg.Reporter
	if reporter == nil {
		reporter = nopReporter{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		remote:      cfg.Remote,
		tracker:     cfg.Tracker,
		poller:      cfg.Poller,
		driver:      cfg.Driver,
		reporter:    reporter,
		logger:      logger,
		buildParams: cfg.BuildParams,
		planName:    cfg.PlanName,
		notifyEmail: cfg.NotifyEmail,
		onComplete:  cfg.OnComplete,
		force:       cfg.Force,
	}
}

// CheckResult is the outcome of the side-effect-free new-commit check.
type CheckResult struct {
	Latest        string `json:"latest"`
	LastProcessed string `json:"last_processed"`
	New           bool   `json:"new"`
}

// Check verifies the repository and compares the remote head against the
// persisted marker. It never triggers anything.
func (c *Controller) Check(ctx context.Context) (*CheckResult, error) {
	if err := c.remote.Verify(ctx); err != nil {
		return nil, fmt.Errorf("repository verification failed: %w", err)
	}

	latest, err := c.remote.LatestCommit(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not read latest commit: %w", err)
	}

	return &CheckResult{
		Latest:        latest,
		LastProcessed: c.tracker.LastProcessed(ctx),
		New:           c.tracker.HasNewCommit(ctx, latest),
	}, nil
}

// Run executes the full pipeline for the latest commit. A run with nothing to
// do (no new commit, no force) returns nil without side effects.
func (c *Controller) Run(ctx context.Context) error {
	check, err := c.Check(ctx)
	if err != nil {
		return stageErr(StageCheck, err)
	}

	if !check.New {
		if !c.force {
			c.reporter.Infof("No new commits since %s, nothing to do", shortHash(check.LastProcessed))
			return nil
		}
		c.reporter.Warnf("No new commits, reprocessing %s anyway", shortHash(check.Latest))
	} else {
		c.reporter.Infof("New commit detected: %s", shortHash(check.Latest))
	}

	started := time.Now().UTC()

	run, err := c.poller.Run(ctx, c.buildParams)
	if err != nil {
		stage, status := classifyBuildError(run, err)
		if run != nil && run.ConsoleExcerpt != "" {
			c.reporter.Errorf("Last console output:\n%s", run.ConsoleExcerpt)
		}
		c.recordRun(ctx, check.Latest, run, status, stage, started, err)
		return stageErr(stage, err)
	}

	c.reporter.Infof("Submitting test plan %q to TEM", c.planName)
	sub, err := c.driver.Submit(ctx, tem.Request{
		PlanName:    c.planName,
		NotifyEmail: c.notifyEmail,
	})
	if err != nil {
		c.recordRun(ctx, check.Latest, run, "submit_failed", StageSubmit, started, err)
		return stageErr(StageSubmit, err)
	}
	if sub.Result != tem.Accepted {
		err := fmt.Errorf("%w: %s: %s", ErrSubmissionRejected, sub.Result, sub.Reason)
		// An unconfirmed submission is indeterminate, not rejected; the
		// history row keeps that visible.
		status := "submit_failed"
		if sub.Result == tem.TimedOut {
			status = "submit_timed_out"
		}
		c.recordRun(ctx, check.Latest, run, status, StageSubmit, started, err)
		return stageErr(StageSubmit, err)
	}

	if err := c.tracker.MarkProcessed(ctx, check.Latest); err != nil {
		// The pipeline itself succeeded; the next run will redo the work
		// because the marker was not advanced.
		c.recordRun(ctx, check.Latest, run, "success", StageDone, started, err)
		return stageErr(StageDone, fmt.Errorf("pipeline succeeded but marker update failed: %w", err))
	}

	c.recordRun(ctx, check.Latest, run, "success", StageDone, started, nil)
	c.reporter.Successf("Pipeline complete for %s (build #%d)", shortHash(check.Latest), run.BuildNumber)

	c.runOnComplete(ctx)
	return nil
}

// classifyBuildError attributes a poller failure to the trigger or poll stage
// and picks the run-history status.
func classifyBuildError(run *BuildRun, err error) (stage, status string) {
	var trigErr *jenkins.TriggerError
	if errors.As(err, &trigErr) {
		return StageTrigger, "trigger_failed"
	}

	if run != nil {
		switch run.State {
		case StateTimedOut:
			return StagePoll, "timed_out"
		case StateAborted:
			return StagePoll, "build_aborted"
		}
	}
	return StagePoll, "build_failed"
}

func (c *Controller) recordRun(ctx context.Context, commitHash string, run *BuildRun, status, stage string, started time.Time, runErr error) {
	record := &tracker.RunRecord{
		CommitHash: commitHash,
		Status:     status,
		Stage:      stage,
		StartedAt:  started,
	}
	if run != nil && run.BuildNumber > 0 {
		number := run.BuildNumber
		record.BuildNumber = &number
	}
	if runErr != nil {
		msg := runErr.Error()
		record.ErrorMessage = &msg
	}

	if _, err := c.tracker.RecordRun(ctx, record); err != nil {
		c.logger.Warn("Could not record run history", "error", err)
	}
}

// runOnComplete executes the configured notification command. Failures are
// reported but never fail the pipeline.
func (c *Controller) runOnComplete(ctx context.Context) {
	if c.onComplete == "" {
		return
	}

	parts, err := cmdutil.ParseCommandString(c.onComplete)
	if err != nil {
		c.reporter.Warnf("Invalid on_complete command: %v", err)
		return
	}

	c.logger.Info("Running on_complete command", "command", cmdutil.FormatCommand(parts))
	result, err := cmdutil.Run(ctx, cmdutil.ExecOptions{Timeout: notifyTimeout}, parts)
	if err != nil {
		c.reporter.Warnf("on_complete command failed: %v", err)
		if result != nil && len(result.Output) > 0 {
			c.logger.Warn("on_complete output", "output", string(result.Output))
		}
	}
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	if hash == "" {
		return "(none)"
	}
	return hash
}
