package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/krislette/gl-jenkins-tem/internal/jenkins"
)

// fakeClock advances instantly on Sleep so hours of polling run in
// microseconds.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	return ctx.Err()
}

// statusStep scripts one BuildStatus response. The last step repeats forever.
type statusStep struct {
	status *jenkins.BuildStatus
	err    error
}

type fakeBuildService struct {
	clock *fakeClock

	triggerErr   error
	triggerCalls int

	// queueAfter is how many queue checks happen before an executor assigns
	// build 42. Negative means never.
	queueAfter int
	queueCalls int
	queueErr   error

	statusScript    []statusStep
	statusCalls     int
	firstStatusTime time.Time

	console    string
	consoleErr error
}

func (f *fakeBuildService) TriggerBuild(ctx context.Context, params map[string]string) (string, error) {
	f.triggerCalls++
	if f.triggerErr != nil {
		return "", f.triggerErr
	}
	return "https://jenkins.example.com/queue/item/7/", nil
}

func (f *fakeBuildService) QueueItem(ctx context.Context, queueURL string) (*jenkins.QueueItem, error) {
	f.queueCalls++
	if f.queueErr != nil {
		return nil, f.queueErr
	}
	if f.queueAfter < 0 || f.queueCalls <= f.queueAfter {
		return &jenkins.QueueItem{Why: "Waiting for next available executor"}, nil
	}
	return &jenkins.QueueItem{BuildNumber: 42}, nil
}

func (f *fakeBuildService) BuildStatus(ctx context.Context, number int64) (*jenkins.BuildStatus, error) {
	if f.statusCalls == 0 {
		f.firstStatusTime = f.clock.Now()
	}
	step := f.statusScript[min(f.statusCalls, len(f.statusScript)-1)]
	f.statusCalls++
	return step.status, step.err
}

func (f *fakeBuildService) ConsoleTail(ctx context.Context, number int64, n int) (string, error) {
	return f.console, f.consoleErr
}

func building() statusStep {
	return statusStep{status: &jenkins.BuildStatus{Number: 42, Building: true}}
}

func finished(result string) statusStep {
	return statusStep{status: &jenkins.BuildStatus{Number: 42, Result: result}}
}

func testPolicy() Policy {
	return Policy{
		QueueInterval:    10 * time.Second,
		QueueWait:        2 * time.Hour,
		MinBeforePoll:    30 * time.Minute,
		Interval:         15 * time.Minute,
		MaxWait:          3 * time.Hour,
		TransientRetries: 3,
	}
}

func newTestPoller(svc *fakeBuildService, clock *fakeClock, policy Policy) *Poller {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPoller(svc, policy, clock, nil, logger)
}

func TestPoller_Success(t *testing.T) {
	clock := newFakeClock()
	svc := &fakeBuildService{
		clock:        clock,
		queueAfter:   2,
		statusScript: []statusStep{building(), building(), finished("SUCCESS")},
	}

	run, err := newTestPoller(svc, clock, testPolicy()).Run(context.Background(), map[string]string{"VERSION": "2025.08"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.State != StateSucceeded {
		t.Errorf("State = %q, want %q", run.State, StateSucceeded)
	}
	if run.BuildNumber != 42 {
		t.Errorf("BuildNumber = %d, want 42", run.BuildNumber)
	}
	if run.Result != "SUCCESS" {
		t.Errorf("Result = %q, want SUCCESS", run.Result)
	}
	if svc.triggerCalls != 1 {
		t.Errorf("trigger calls = %d, want 1", svc.triggerCalls)
	}
}

func TestPoller_NoStatusQueryBeforeFloor(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	svc := &fakeBuildService{
		clock:        clock,
		statusScript: []statusStep{finished("SUCCESS")},
	}
	policy := testPolicy()

	if _, err := newTestPoller(svc, clock, policy).Run(context.Background(), nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	elapsed := svc.firstStatusTime.Sub(start)
	if elapsed < policy.MinBeforePoll {
		t.Errorf("first status query after %s, want at least %s", elapsed, policy.MinBeforePoll)
	}
}

func TestPoller_BuildFailureCapturesConsole(t *testing.T) {
	clock := newFakeClock()
	svc := &fakeBuildService{
		clock:        clock,
		statusScript: []statusStep{building(), finished("FAILURE")},
		console:      "compilation error in Foo.java",
	}

	run, err := newTestPoller(svc, clock, testPolicy()).Run(context.Background(), nil)
	if !errors.Is(err, ErrBuildFailed) {
		t.Fatalf("Run() error = %v, want ErrBuildFailed", err)
	}
	if run.State != StateFailed {
		t.Errorf("State = %q, want %q", run.State, StateFailed)
	}
	if run.ConsoleExcerpt != "compilation error in Foo.java" {
		t.Errorf("ConsoleExcerpt = %q, want the console tail", run.ConsoleExcerpt)
	}
}

func TestPoller_BuildAborted(t *testing.T) {
	clock := newFakeClock()
	svc := &fakeBuildService{
		clock:        clock,
		statusScript: []statusStep{finished("ABORTED")},
	}

	run, err := newTestPoller(svc, clock, testPolicy()).Run(context.Background(), nil)
	if !errors.Is(err, ErrBuildAborted) {
		t.Fatalf("Run() error = %v, want ErrBuildAborted", err)
	}
	if run.State != StateAborted {
		t.Errorf("State = %q, want %q", run.State, StateAborted)
	}
}

func TestPoller_TimeoutBound(t *testing.T) {
	clock := newFakeClock()
	svc := &fakeBuildService{
		clock:        clock,
		statusScript: []statusStep{building()},
	}
	policy := testPolicy()
	start := clock.Now()

	run, err := newTestPoller(svc, clock, policy).Run(context.Background(), nil)
	if !errors.Is(err, ErrPollTimeout) {
		t.Fatalf("Run() error = %v, want ErrPollTimeout", err)
	}
	if run.State != StateTimedOut {
		t.Errorf("State = %q, want %q", run.State, StateTimedOut)
	}

	// Simulated elapsed time must stay within MaxWait plus the floor and one
	// final interval.
	elapsed := clock.Now().Sub(start)
	bound := policy.MinBeforePoll + policy.MaxWait + policy.Interval
	if elapsed > bound {
		t.Errorf("run took %s of simulated time, bound is %s", elapsed, bound)
	}
}

func TestPoller_TransientErrorsRetried(t *testing.T) {
	clock := newFakeClock()
	svc := &fakeBuildService{
		clock: clock,
		statusScript: []statusStep{
			{err: errors.New("connection reset")},
			{err: errors.New("connection reset")},
			finished("SUCCESS"),
		},
	}

	run, err := newTestPoller(svc, clock, testPolicy()).Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run() error = %v, transient errors within budget should be absorbed", err)
	}
	if run.State != StateSucceeded {
		t.Errorf("State = %q, want %q", run.State, StateSucceeded)
	}
}

func TestPoller_TransientRetriesExhausted(t *testing.T) {
	clock := newFakeClock()
	svc := &fakeBuildService{
		clock:        clock,
		statusScript: []statusStep{{err: errors.New("connection reset")}},
	}

	run, err := newTestPoller(svc, clock, testPolicy()).Run(context.Background(), nil)
	if !errors.Is(err, ErrPollExhausted) {
		t.Fatalf("Run() error = %v, want ErrPollExhausted", err)
	}
	if run.State != StateFailed {
		t.Errorf("State = %q, want %q", run.State, StateFailed)
	}
	// retries budget + the initial attempt
	if svc.statusCalls != testPolicy().TransientRetries+1 {
		t.Errorf("status calls = %d, want %d", svc.statusCalls, testPolicy().TransientRetries+1)
	}
}

func TestPoller_QueueWaitTimeout(t *testing.T) {
	clock := newFakeClock()
	svc := &fakeBuildService{
		clock:        clock,
		queueAfter:   -1,
		statusScript: []statusStep{finished("SUCCESS")},
	}

	run, err := newTestPoller(svc, clock, testPolicy()).Run(context.Background(), nil)
	if !errors.Is(err, ErrQueueTimeout) {
		t.Fatalf("Run() error = %v, want ErrQueueTimeout", err)
	}
	if run.State != StateTimedOut {
		t.Errorf("State = %q, want %q", run.State, StateTimedOut)
	}
	if svc.statusCalls != 0 {
		t.Error("status should never be queried for a build that never started")
	}
}

func TestPoller_TriggerFailureNotRetried(t *testing.T) {
	clock := newFakeClock()
	svc := &fakeBuildService{
		clock:        clock,
		triggerErr:   &jenkins.TriggerError{StatusCode: 401, Body: "bad credentials"},
		statusScript: []statusStep{finished("SUCCESS")},
	}

	run, err := newTestPoller(svc, clock, testPolicy()).Run(context.Background(), nil)
	var trigErr *jenkins.TriggerError
	if !errors.As(err, &trigErr) {
		t.Fatalf("Run() error = %v, want *jenkins.TriggerError", err)
	}
	if run.State != StateFailed {
		t.Errorf("State = %q, want %q", run.State, StateFailed)
	}
	if svc.triggerCalls != 1 {
		t.Errorf("trigger calls = %d, trigger failures must not be retried", svc.triggerCalls)
	}
	if svc.queueCalls != 0 {
		t.Error("queue should not be polled after a failed trigger")
	}
}

func TestPoller_CancellationAbortsBetweenSleeps(t *testing.T) {
	clock := newFakeClock()
	svc := &fakeBuildService{
		clock:        clock,
		statusScript: []statusStep{building()},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestPoller(svc, clock, testPolicy()).Run(ctx, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
}

func TestStateTerminal(t *testing.T) {
	terminal := []State{StateSucceeded, StateFailed, StateAborted, StateTimedOut}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%q should be terminal", s)
		}
	}
	for _, s := range []State{StateIdle, StateTriggering, StateQueued, StateRunning} {
		if s.Terminal() {
			t.Errorf("%q should not be terminal", s)
		}
	}
}
