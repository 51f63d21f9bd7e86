package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/krislette/gl-jenkins-tem/internal/report"
	"github.com/krislette/gl-jenkins-tem/internal/tem"
)

var testJenkinsCmd = &cobra.Command{
	Use:   "test-jenkins",
	Short: "Trigger a Jenkins build to verify connectivity",
	Long: `test-jenkins triggers a build with the configured parameters and reports the
queue URL. It does not wait for the build and never touches TEM or the commit
marker. Note that the triggered build is real.`,
	RunE: runTestJenkins,
}

var testTEMCmd = &cobra.Command{
	Use:   "test-tem",
	Short: "Submit the test plan to TEM without building",
	Long: `test-tem walks the TEM submission flow for the configured test plan against
whatever environment is currently deployed. Jenkins and the commit marker are
not touched.`,
	RunE: runTestTEM,
}

func runTestJenkins(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reporter := report.New(os.Stdout)

	client := newJenkinsClient(cfg, logger)

	reporter.Infof("Triggering a test build of %s", cfg.Jenkins.JobName)
	queueURL, err := client.TriggerBuild(cmd.Context(), cfg.Jenkins.Parameters)
	if err != nil {
		reporter.Errorf("Trigger failed: %v", err)
		return err
	}

	reporter.Successf("Build triggered: %s", queueURL)
	reporter.Warnf("This started a real build; abort it in Jenkins if it was only a connectivity check.")
	return nil
}

func runTestTEM(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reporter := report.New(os.Stdout)

	driver := newTEMDriver(cfg, reporter, logger)

	sub, err := driver.Submit(cmd.Context(), tem.Request{
		PlanName:    cfg.TEM.TestPlanName,
		NotifyEmail: cfg.TEM.NotifyEmail,
	})
	if err != nil {
		reporter.Errorf("TEM submission failed: %v", err)
		return err
	}

	switch sub.Result {
	case tem.Accepted:
		reporter.Successf("TEM accepted the submission")
	case tem.TimedOut:
		reporter.Warnf("No confirmation from TEM: %s", sub.Reason)
	default:
		reporter.Errorf("TEM rejected the submission: %s", sub.Reason)
		return fmt.Errorf("submission rejected")
	}
	return nil
}
