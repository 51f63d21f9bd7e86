// Package pipeline drives the Jenkins build to a terminal state and hands the
// result off to the test-execution manager. The Poller is an explicit state
// machine; the Controller chains the stages and owns the single point where a
// commit is marked processed.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/krislette/gl-jenkins-tem/internal/jenkins"
)

// State of a build run.
type State string

const (
	StateIdle       State = "idle"
	StateTriggering State = "triggering"
	StateQueued     State = "queued"
	StateRunning    State = "running"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
	StateAborted    State = "aborted"
	StateTimedOut   State = "timed_out"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateAborted, StateTimedOut:
		return true
	}
	return false
}

// consoleTailLines is how much console output is captured when a build ends
// in FAILURE or ABORTED.
const consoleTailLines = 20

// Policy bounds every wait in the poller.
type Policy struct {
	// QueueInterval is the delay between queue checks.
	QueueInterval time.Duration
	// QueueWait bounds how long a build may sit in the queue.
	QueueWait time.Duration
	// MinBeforePoll is the floor before the first status query. Builds are
	// long; polling earlier only generates load.
	MinBeforePoll time.Duration
	// Interval is the delay between status queries.
	Interval time.Duration
	// MaxWait bounds the polling phase. Measured from the first status query.
	MaxWait time.Duration
	// TransientRetries is how many consecutive failed status queries are
	// tolerated before the run is abandoned.
	TransientRetries int
}

// BuildService is the subset of the Jenkins client the poller needs.
type BuildService interface {
	TriggerBuild(ctx context.Context, params map[string]string) (string, error)
	QueueItem(ctx context.Context, queueURL string) (*jenkins.QueueItem, error)
	BuildStatus(ctx context.Context, number int64) (*jenkins.BuildStatus, error)
	ConsoleTail(ctx context.Context, number int64, n int) (string, error)
}

// Reporter receives human-facing progress lines. The report package provides
// the styled implementation.
type Reporter interface {
	Infof(format string, args ...any)
	Successf(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type nopReporter struct{}

func (nopReporter) Infof(string, ...any)    {}
func (nopReporter) Successf(string, ...any) {}
func (nopReporter) Warnf(string, ...any)    {}
func (nopReporter) Errorf(string, ...any)   {}

// BuildRun is the outcome of one trigger-and-poll cycle.
type BuildRun struct {
	State       State
	QueueURL    string
	BuildNumber int64
	Started     time.Time
	Finished    time.Time
	// Result is Jenkins' raw result string for terminal builds.
	Result string
	// ConsoleExcerpt holds the console tail when the build failed or was
	// aborted.
	ConsoleExcerpt string
}

// Poller triggers a build and follows it through
// Triggering, Queued and Running to a terminal state.
type Poller struct {
	svc      BuildService
	policy   Policy
	clock    Clock
	reporter Reporter
	logger   *slog.Logger
}

// NewPoller creates a poller. A nil clock means the wall clock; a nil
// reporter discards progress output.
func NewPoller(svc BuildService, policy Policy, clock Clock, reporter Reporter, logger *slog.Logger) *Poller {
	if clock == nil {
		clock = RealClock()
	}
	if reporter == nil {
		reporter = nopReporter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{svc: svc, policy: policy, clock: clock, reporter: reporter, logger: logger}
}

// Run triggers a build with the given parameters and polls until it reaches a
// terminal state. The returned BuildRun is non-nil whenever a trigger was
// attempted, even on error, so callers can record what happened.
func (p *Poller) Run(ctx context.Context, params map[string]string) (*BuildRun, error) {
	run := &BuildRun{State: StateTriggering, Started: p.clock.Now()}

	p.reporter.Infof("Triggering Jenkins build...")
	queueURL, err := p.svc.TriggerBuild(ctx, params)
	if err != nil {
		run.State = StateFailed
		run.Finished = p.clock.Now()
		return run, err
	}
	run.QueueURL = queueURL
	p.logger.Info("Build triggered", "queue_url", queueURL)

	run.State = StateQueued
	number, err := p.waitForExecutor(ctx, run)
	if err != nil {
		run.Finished = p.clock.Now()
		return run, err
	}
	run.BuildNumber = number
	p.reporter.Infof("Build #%d started", number)

	run.State = StateRunning
	if err := p.waitForResult(ctx, run); err != nil {
		run.Finished = p.clock.Now()
		return run, err
	}

	run.Finished = p.clock.Now()
	p.reporter.Successf("Build #%d succeeded after %s", run.BuildNumber,
		run.Finished.Sub(run.Started).Round(time.Second))
	return run, nil
}

// waitForExecutor polls the queue item until an executor assigns a build
// number or the queue wait expires.
func (p *Poller) waitForExecutor(ctx context.Context, run *BuildRun) (int64, error) {
	start := p.clock.Now()
	retries := 0

	for {
		item, err := p.svc.QueueItem(ctx, run.QueueURL)
		if err != nil {
			retries++
			if retries > p.policy.TransientRetries {
				run.State = StateFailed
				return 0, fmt.Errorf("%w: queue check kept failing: %v", ErrPollExhausted, err)
			}
			p.logger.Warn("Queue check failed, will retry", "error", err, "attempt", retries)
		} else {
			retries = 0
			if item.BuildNumber > 0 {
				return item.BuildNumber, nil
			}
			if item.Why != "" {
				p.reporter.Infof("Still queued: %s", item.Why)
			}
		}

		if p.clock.Now().Sub(start) >= p.policy.QueueWait {
			run.State = StateTimedOut
			return 0, fmt.Errorf("%w after %s", ErrQueueTimeout, p.policy.QueueWait)
		}
		if err := p.clock.Sleep(ctx, p.policy.QueueInterval); err != nil {
			run.State = StateFailed
			return 0, err
		}
	}
}

// waitForResult polls the build status until a terminal result, honoring the
// MinBeforePoll floor and the MaxWait ceiling.
func (p *Poller) waitForResult(ctx context.Context, run *BuildRun) error {
	if p.policy.MinBeforePoll > 0 {
		p.reporter.Infof("Waiting %s before polling build status", p.policy.MinBeforePoll)
		if err := p.clock.Sleep(ctx, p.policy.MinBeforePoll); err != nil {
			run.State = StateFailed
			return err
		}
	}

	pollStart := p.clock.Now()
	retries := 0

	for {
		status, err := p.svc.BuildStatus(ctx, run.BuildNumber)
		if err != nil {
			retries++
			if retries > p.policy.TransientRetries {
				run.State = StateFailed
				return fmt.Errorf("%w: status query kept failing: %v", ErrPollExhausted, err)
			}
			p.logger.Warn("Status query failed, will retry", "error", err, "attempt", retries)
		} else {
			retries = 0
			if !status.Building && status.Result != "" {
				return p.finish(ctx, run, status.Result)
			}
			p.reporter.Infof("Build #%d still running (%s elapsed)", run.BuildNumber,
				p.clock.Now().Sub(run.Started).Round(time.Second))
		}

		if p.clock.Now().Sub(pollStart) >= p.policy.MaxWait {
			run.State = StateTimedOut
			return fmt.Errorf("%w after %s", ErrPollTimeout, p.policy.MaxWait)
		}
		if err := p.clock.Sleep(ctx, p.policy.Interval); err != nil {
			run.State = StateFailed
			return err
		}
	}
}

// finish maps the Jenkins result string onto a terminal state, capturing the
// console tail for anything other than success.
func (p *Poller) finish(ctx context.Context, run *BuildRun, result string) error {
	run.Result = result

	switch result {
	case "SUCCESS":
		run.State = StateSucceeded
		return nil
	case "ABORTED":
		run.State = StateAborted
		run.ConsoleExcerpt = p.fetchConsole(ctx, run.BuildNumber)
		return fmt.Errorf("%w: build #%d", ErrBuildAborted, run.BuildNumber)
	default:
		// FAILURE, UNSTABLE, or anything Jenkins invents next
		run.State = StateFailed
		run.ConsoleExcerpt = p.fetchConsole(ctx, run.BuildNumber)
		return fmt.Errorf("%w: build #%d ended with %s", ErrBuildFailed, run.BuildNumber, result)
	}
}

func (p *Poller) fetchConsole(ctx context.Context, number int64) string {
	tail, err := p.svc.ConsoleTail(ctx, number, consoleTailLines)
	if err != nil {
		p.logger.Warn("Could not fetch console output", "build", number, "error", err)
		return ""
	}
	return tail
}
