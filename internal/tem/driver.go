// Package tem drives the test-execution manager's web UI to submit a test
// plan against a freshly built environment. The UI is the only interface TEM
// offers, so the driver scripts a browser through the submission form.
//
// The driver only submits. Execution results arrive by email out of band, so
// nothing here waits for the tests themselves.
package tem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Result classifies the outcome of a submission attempt.
type Result string

const (
	// Accepted means TEM confirmed the job was queued.
	Accepted Result = "accepted"
	// Rejected means the form flow could not be completed.
	Rejected Result = "rejected"
	// TimedOut means the form was submitted but no confirmation appeared in
	// time. The job may or may not have been queued.
	TimedOut Result = "timed_out"
)

// Submission is the outcome of Driver.Submit.
type Submission struct {
	Result Result
	Reason string
}

// Request holds the per-run submission inputs.
type Request struct {
	// PlanName is the exact test execution plan name. Matching in the UI is
	// case sensitive.
	PlanName string
	// NotifyEmail receives the execution report.
	NotifyEmail string
}

// Browser is the minimal browser surface the driver needs. Selectors are
// XPath expressions except where noted. The chromedp implementation is the
// real one; tests use a scripted fake.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	// WaitVisible blocks until the element exists and is visible.
	WaitVisible(ctx context.Context, selector string) error
	// WaitGone blocks until no element matches the selector.
	WaitGone(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	// ClickScript clicks via injected script, for elements a pointer click
	// cannot reach (overlays, off-screen rows).
	ClickScript(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	Close() error
}

// BrowserFactory opens a fresh browser session. Each submission attempt gets
// its own session so a retry never inherits half-filled form state.
type BrowserFactory func(ctx context.Context) (Browser, error)

// Reporter receives human-facing progress lines.
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

// Selectors for the TEM submission form. The busy indicator is a CSS
// selector; everything else is XPath.
const (
	selBusyIndicator  = ".busy-indicator.active"
	selLoginButton    = "//*[@id='loginTaas']"
	selExecutionsTab  = "//*[@id='navManageExecution']"
	selCreateJob      = "//*[@id='executeTestPlan']"
	selBranchDropdown = "//label[normalize-space()='Script Branch']/following::div[contains(@class,'dropdown') and @role='combobox'][1]"
	selVersionDrop    = "//label[normalize-space()='Script Version']/following::div[contains(@class,'dropdown') and @role='combobox'][1]"
	selPlanSearch     = "//label[normalize-space()='Test Execution Plan']/following::span[@class='trigger'][1]"
	selPlanFilter     = "//*[@id='taas-lookup-datagrid-1-header-filter-1']"
	selBaseURLOK      = "//*[@id='modal-button-1']"
	selOwnerEmail     = "//label[normalize-space()='Environment Owner Email']/following::input[@formcontrolname='ownerEmailCtrl'][1]"
	selUsageDropdown  = "//label[normalize-space()='Usage Type']/following::div[contains(@class,'dropdown') and @role='combobox'][1]"
	selSubmitButton   = "//button[span[normalize-space()='Submit']]"
	selQueuedMessage  = "//span[contains(text(), 'The job has been successfully queued')]"
	selConfirmOK      = "//*[@id='modal-button-3']"
)

func dropdownOption(label string) string {
	return fmt.Sprintf("//li[normalize-space()='%s']", label)
}

func planResultRow(plan string) string {
	return fmt.Sprintf("//td//div[normalize-space()='%s']", plan)
}

// Driver submits test plans through the TEM UI.
type Driver struct {
	baseURL       string
	scriptBranch  string
	scriptVersion string
	usageType     string

	newBrowser BrowserFactory
	reporter   Reporter
	logger     *slog.Logger

	stepTimeout    time.Duration
	loginTimeout   time.Duration
	confirmTimeout time.Duration
}

// NewDriver creates a TEM driver. scriptBranch, scriptVersion and usageType
// are the dropdown labels selected for every submission.
func NewDriver(baseURL, scriptBranch, scriptVersion, usageType string, factory BrowserFactory, reporter Reporter, logger *slog.Logger) *Driver {
	if reporter == nil {
		reporter = nopReporter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		baseURL:        baseURL,
		scriptBranch:   scriptBranch,
		scriptVersion:  scriptVersion,
		usageType:      usageType,
		newBrowser:     factory,
		reporter:       reporter,
		logger:         logger,
		stepTimeout:    30 * time.Second,
		loginTimeout:   60 * time.Second,
		confirmTimeout: 30 * time.Second,
	}
}

// Submit walks the TEM submission form for the given request. A failed
// attempt is retried once end to end in a fresh browser session before the
// rejection is reported.
func (d *Driver) Submit(ctx context.Context, req Request) (*Submission, error) {
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		if attempt > 1 {
			d.reporter.Warnf("Submission failed, retrying once in a fresh session")
		}

		sub, err := d.submitOnce(ctx, req)
		if err == nil {
			return sub, nil
		}
		lastErr = err
		d.logger.Warn("TEM submission attempt failed", "attempt", attempt, "error", err)

		if ctx.Err() != nil {
			break
		}
	}

	// An element wait that ran out of time means the UI never reached a
	// terminal state. That is indeterminate, not a rejection: the form may
	// have been half-submitted.
	if errors.Is(lastErr, context.DeadlineExceeded) {
		return &Submission{Result: TimedOut, Reason: lastErr.Error()}, nil
	}

	return &Submission{Result: Rejected, Reason: lastErr.Error()}, lastErr
}

func (d *Driver) submitOnce(ctx context.Context, req Request) (*Submission, error) {
	browser, err := d.newBrowser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	defer browser.Close()

	d.reporter.Infof("Navigating to TEM")
	if err := browser.Navigate(ctx, d.baseURL); err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", d.baseURL, err)
	}

	d.reporter.Infof("Logging in")
	if err := d.safeClick(ctx, browser, selLoginButton, "login button"); err != nil {
		return nil, err
	}
	if err := d.waitVisible(ctx, browser, selExecutionsTab, d.loginTimeout, "executions tab after login"); err != nil {
		return nil, err
	}

	steps := []struct {
		selector string
		desc     string
	}{
		{selExecutionsTab, "executions tab"},
		{selCreateJob, "create execution job button"},
		{selBranchDropdown, "script branch dropdown"},
		{dropdownOption(d.scriptBranch), "script branch option"},
		{selVersionDrop, "script version dropdown"},
		{dropdownOption(d.scriptVersion), "script version option"},
		{selPlanSearch, "test plan search icon"},
	}
	for _, step := range steps {
		if err := d.safeClick(ctx, browser, step.selector, step.desc); err != nil {
			return nil, err
		}
	}

	d.reporter.Infof("Searching for test plan %q", req.PlanName)
	if err := d.fill(ctx, browser, selPlanFilter, req.PlanName, "test plan filter"); err != nil {
		return nil, err
	}
	if err := d.safeClick(ctx, browser, planResultRow(req.PlanName), "test plan search result"); err != nil {
		return nil, err
	}

	if err := d.safeClick(ctx, browser, selBaseURLOK, "base URL confirmation"); err != nil {
		return nil, err
	}

	d.reporter.Infof("Filling environment details")
	if err := d.fill(ctx, browser, selOwnerEmail, req.NotifyEmail, "owner email field"); err != nil {
		return nil, err
	}
	if err := d.safeClick(ctx, browser, selUsageDropdown, "usage type dropdown"); err != nil {
		return nil, err
	}
	if err := d.safeClick(ctx, browser, dropdownOption(d.usageType), "usage type option"); err != nil {
		return nil, err
	}

	d.reporter.Infof("Submitting execution job")
	if err := d.safeClick(ctx, browser, selSubmitButton, "submit button"); err != nil {
		return nil, err
	}

	// The confirmation modal is the only acceptance signal the UI gives.
	confirmCtx, cancel := context.WithTimeout(ctx, d.confirmTimeout)
	confirmErr := browser.WaitVisible(confirmCtx, selQueuedMessage)
	cancel()

	if confirmErr != nil {
		d.reporter.Warnf("No queue confirmation within %s", d.confirmTimeout)
		// Dismiss whatever modal is up so the session closes cleanly
		if err := d.safeClick(ctx, browser, selConfirmOK, "confirmation dismiss"); err != nil {
			d.logger.Warn("Could not dismiss confirmation modal", "error", err)
		}
		return &Submission{
			Result: TimedOut,
			Reason: "no queue confirmation from TEM; the job may still have been queued",
		}, nil
	}

	if err := d.safeClick(ctx, browser, selConfirmOK, "confirmation dismiss"); err != nil {
		d.logger.Warn("Could not dismiss confirmation modal", "error", err)
	}

	d.reporter.Successf("Execution job queued, report will arrive by email")
	return &Submission{Result: Accepted}, nil
}

// safeClick is one guarded interaction: wait for the busy indicator to clear,
// wait for the element, pointer click, script click as a fallback.
func (d *Driver) safeClick(ctx context.Context, browser Browser, selector, desc string) error {
	busyCtx, cancel := context.WithTimeout(ctx, d.stepTimeout)
	err := browser.WaitGone(busyCtx, selBusyIndicator)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.reporter.Warnf("Busy indicator still present before %s, proceeding anyway", desc)
	}

	if err := d.waitVisible(ctx, browser, selector, d.stepTimeout, desc); err != nil {
		return err
	}

	clickCtx, cancel := context.WithTimeout(ctx, d.stepTimeout)
	defer cancel()

	if err := browser.Click(clickCtx, selector); err != nil {
		d.reporter.Warnf("Click failed on %s, trying script click", desc)
		if scriptErr := browser.ClickScript(clickCtx, selector); scriptErr != nil {
			return fmt.Errorf("could not click %s: %w", desc, errors.Join(err, scriptErr))
		}
	}

	d.logger.Debug("Clicked element", "element", desc)
	return nil
}

func (d *Driver) waitVisible(ctx context.Context, browser Browser, selector string, timeout time.Duration, desc string) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := browser.WaitVisible(waitCtx, selector); err != nil {
		return fmt.Errorf("timed out waiting for %s: %w", desc, err)
	}
	return nil
}

func (d *Driver) fill(ctx context.Context, browser Browser, selector, value, desc string) error {
	if err := d.waitVisible(ctx, browser, selector, d.stepTimeout, desc); err != nil {
		return err
	}

	fillCtx, cancel := context.WithTimeout(ctx, d.stepTimeout)
	defer cancel()

	if err := browser.Fill(fillCtx, selector, value); err != nil {
		return fmt.Errorf("could not fill %s: %w", desc, err)
	}
	return nil
}
