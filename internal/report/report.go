// Package report owns the human-facing console output and the structured log
// file. Pipeline runs are long and mostly waiting, so the console gets
// timestamped, leveled, colored lines while slog records the same events as
// JSON for later inspection.
package report

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

// Reporter writes timestamped, leveled progress lines.
type Reporter struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

// New creates a reporter writing to out.
func New(out io.Writer) *Reporter {
	return &Reporter{out: out, now: time.Now}
}

func (r *Reporter) line(level string, style lipgloss.Style, format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stamp := r.now().Format("2006-01-02 15:04:05")
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(r.out, "[%s] %s %s\n", stamp, style.Render("["+level+"]"), msg)
}

func (r *Reporter) Infof(format string, args ...any) {
	r.line("INFO", infoStyle, format, args...)
}

func (r *Reporter) Successf(format string, args ...any) {
	r.line("SUCCESS", successStyle, format, args...)
}

func (r *Reporter) Warnf(format string, args ...any) {
	r.line("WARNING", warnStyle, format, args...)
}

func (r *Reporter) Errorf(format string, args ...any) {
	r.line("ERROR", errorStyle, format, args...)
}

// Reminder prints the periodic long-wait notes. Runs take hours and die
// silently when the machine sleeps or drops off the VPN.
func (r *Reporter) Reminder() {
	r.Infof("Please don't close this terminal while waiting.")
	r.Infof("Stay connected to the VPN to avoid failures.")
}

// SetupLogging configures slog to write JSON to both stdout and a log file.
// The caller must close the returned file.
func SetupLogging(logPath string) (*slog.Logger, *os.File, error) {
	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	handler := slog.NewJSONHandler(multiWriter, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})

	return slog.New(handler), file, nil
}
