package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/krislette/gl-jenkins-tem/internal/pipeline"
	"github.com/krislette/gl-jenkins-tem/internal/report"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check for new commits without triggering anything",
	Long: `Check compares the latest commit on the watched branch against the last
processed commit. It has zero side effects: nothing is triggered, nothing is
marked.`,
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reporter := report.New(os.Stdout)

	remote, err := newRemote(cfg)
	if err != nil {
		return err
	}

	track, err := newTracker(cfg, logger)
	if err != nil {
		return err
	}
	defer track.Close()

	controller := pipeline.NewController(pipeline.ControllerConfig{
		Remote:  remote,
		Tracker: track,
		Logger:  logger,
	})

	result, err := controller.Check(cmd.Context())
	if err != nil {
		return fmt.Errorf("check failed: %w", err)
	}

	if result.LastProcessed == "" {
		reporter.Infof("No commit has been processed yet")
	} else {
		reporter.Infof("Last processed commit: %s", result.LastProcessed)
	}
	reporter.Infof("Latest remote commit:  %s", result.Latest)

	if result.New {
		reporter.Successf("New commit detected. Run '%s run --build' to start the pipeline.", rootCmd.Use)
	} else {
		reporter.Infof("No new commits.")
	}

	return nil
}
