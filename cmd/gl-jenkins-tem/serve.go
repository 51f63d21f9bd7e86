package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/krislette/gl-jenkins-tem/internal/report"
	"github.com/krislette/gl-jenkins-tem/internal/server"
)

var (
	serveHost    string
	servePort    int
	serveLogFile string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a read-only pipeline status endpoint",
	Long: `serve starts a small HTTP server exposing the pipeline state:

  GET /health    liveness check
  GET /status    last processed commit and recent run history

The server is read-only; pipelines only run through the CLI.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host",
		getEnvOrDefault("GLJT_HOST", ""), "host to bind to (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveLogFile, "log-file",
		getEnvOrDefault("GLJT_LOG_FILE", "logs/server.log"), "structured log file path")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	host := cfg.Server.Host
	if serveHost != "" {
		host = serveHost
	}
	port := cfg.Server.Port
	if servePort != 0 {
		port = servePort
	}

	logger, logFile, err := report.SetupLogging(serveLogFile)
	if err != nil {
		return err
	}
	defer logFile.Close()

	track, err := newTracker(cfg, logger)
	if err != nil {
		return err
	}
	defer track.Close()

	srv := server.NewServer(track, logger, false)
	if err := srv.Start(host, port); err != nil {
		logger.Error("Server failed", "error", err)
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}
