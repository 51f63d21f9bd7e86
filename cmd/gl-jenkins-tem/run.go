package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/krislette/gl-jenkins-tem/internal/pipeline"
	"github.com/krislette/gl-jenkins-tem/internal/report"
)

var (
	runBuild   bool
	runForce   bool
	runLogFile string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline for the latest commit",
	Long: `Run executes the full pipeline: check for a new commit, trigger the Jenkins
build, poll it to completion and submit the test plan to TEM.

The --build flag is a deliberate opt-in. Without it nothing is triggered; this
guards against accidentally starting a multi-hour build.`,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().BoolVar(&runBuild, "build", false, "actually trigger the build (required)")
	runCmd.Flags().BoolVar(&runForce, "force", false, "run even when no new commit is present")
	runCmd.Flags().StringVar(&runLogFile, "log-file",
		getEnvOrDefault("GLJT_LOG_FILE", "logs/automation.log"), "structured log file path")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	if !runBuild {
		fmt.Println("Refusing to run without --build.")
		fmt.Println()
		fmt.Println("The pipeline triggers a remote Jenkins build and a TEM submission,")
		fmt.Println("which together take hours. Pass --build when you mean it:")
		fmt.Printf("  %s run --build\n", rootCmd.Use)
		fmt.Println()
		fmt.Printf("To only look for new commits, use '%s check'.\n", rootCmd.Use)
		return fmt.Errorf("--build flag is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, logFile, err := report.SetupLogging(runLogFile)
	if err != nil {
		return err
	}
	defer logFile.Close()

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

	poller := pipeline.NewPoller(newJenkinsClient(cfg, logger), pollPolicy(cfg), nil, reporter, logger)
	driver := newTEMDriver(cfg, reporter, logger)

	controller := pipeline.NewController(pipeline.ControllerConfig{
		Remote:      remote,
		Tracker:     track,
		Poller:      poller,
		Driver:      driver,
		Reporter:    reporter,
		Logger:      logger,
		BuildParams: cfg.Jenkins.Parameters,
		PlanName:    cfg.TEM.TestPlanName,
		NotifyEmail: cfg.TEM.NotifyEmail,
		OnComplete:  cfg.Notify.OnComplete,
		Force:       runForce,
	})

	ctx := cmd.Context()
	reporter.Reminder()
	reporter.TriviaLine(ctx)

	if err := controller.Run(ctx); err != nil {
		reporter.Errorf("Pipeline failed: %v", err)
		return err
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
