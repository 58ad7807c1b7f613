// Package logger provides logging implementations for packrat operations.
//
// The logger package offers structured logging of operation progress at the
// job, entry and summary levels. Implementations are thread-safe and support
// various output destinations (console, file, etc.).
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/fatih/color"

	"github.com/harrison/packrat/internal/models"
)

// Log level constants for filtering
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

// ConsoleLogger logs operation progress to a writer with timestamps and thread safety.
// All output is prefixed with [HH:MM:SS] timestamps for tracking execution flow.
// It supports log level filtering to control message verbosity.
// Color output is automatically enabled for terminal output (os.Stdout/os.Stderr).
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
	scheme      *colorScheme
}

// NewConsoleLogger creates a ConsoleLogger that writes to the provided io.Writer.
// If writer is nil, messages are silently discarded.
// logLevel determines the minimum log level for messages to be output.
// Valid levels: trace, debug, info, warn, error (case-insensitive).
// If logLevel is empty or invalid, defaults to "info".
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: isTerminal(writer),
		scheme:      newColorScheme(),
	}
}

// isTerminal checks if the writer is a terminal that supports colors.
// Returns true for os.Stdout and os.Stderr when they are TTYs.
func isTerminal(w io.Writer) bool {
	if w == nil {
		return false
	}
	if w == os.Stdout || w == os.Stderr {
		// color.NoColor covers both NO_COLOR and non-TTY output
		return !color.NoColor
	}
	return false
}

// normalizeLogLevel converts a log level string to lowercase and validates it.
// Returns "info" as default for empty or invalid levels.
func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))
	switch normalized {
	case "trace", "debug", "info", "warn", "error":
		return normalized
	}
	return "info"
}

// shouldLog checks if a message at the given level should be logged.
func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(cl.logLevel)
}

// logLevelToInt converts a log level string to its numeric value.
func logLevelToInt(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// LogTrace logs a trace-level message (most verbose).
// Format: "[HH:MM:SS] [TRACE] <message>"
func (cl *ConsoleLogger) LogTrace(message string) {
	cl.logWithLevel("TRACE", message)
}

// LogDebug logs a debug-level message.
func (cl *ConsoleLogger) LogDebug(message string) {
	cl.logWithLevel("DEBUG", message)
}

// LogInfo logs an info-level message.
func (cl *ConsoleLogger) LogInfo(message string) {
	cl.logWithLevel("INFO", message)
}

// LogWarn logs a warning-level message.
func (cl *ConsoleLogger) LogWarn(message string) {
	cl.logWithLevel("WARN", message)
}

// LogError logs an error-level message.
func (cl *ConsoleLogger) LogError(message string) {
	cl.logWithLevel("ERROR", message)
}

func (cl *ConsoleLogger) logWithLevel(level string, message string) {
	if cl.writer == nil || !cl.shouldLog(strings.ToLower(level)) {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	label := level
	if cl.colorOutput {
		label = cl.scheme.level(level)
	}
	fmt.Fprintf(cl.writer, "[%s] [%s] %s\n", timestamp(), label, message)
}

// write emits pre-formatted lines at the given level.
func (cl *ConsoleLogger) write(level string, lines ...string) {
	if cl.writer == nil || !cl.shouldLog(level) {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	var sb strings.Builder
	for _, line := range lines {
		fmt.Fprintf(&sb, "[%s] %s\n", ts, line)
	}
	io.WriteString(cl.writer, sb.String())
}

// LogJobStart logs that a job was dispatched, at DEBUG level.
// Format: "[HH:MM:SS] Job <id> started: <inputs> -> <output>"
func (cl *ConsoleLogger) LogJobStart(job models.Job) {
	cl.write("debug", fmt.Sprintf("Job %d started: %s", job.ID, job.Describe()))
}

// LogJobResult logs the outcome of a job at INFO level; failures include the cause.
// Format: "[HH:MM:SS] Job <id> (<name>): <status> (<duration>)"
func (cl *ConsoleLogger) LogJobResult(result models.JobResult) error {
	if cl.writer == nil || !cl.shouldLog("info") {
		return nil
	}

	status := result.Status
	if cl.colorOutput {
		status = cl.scheme.status(result.Status)
	}
	line := fmt.Sprintf("Job %d (%s): %s (%s)", result.Job.ID, result.Job.Name(), status, formatDuration(result.Duration))
	if len(result.Skipped) > 0 {
		line += fmt.Sprintf(", %d skipped", len(result.Skipped))
	}

	lines := []string{line}
	if result.Failed() && result.Err != nil {
		lines = append(lines, "  "+result.Err.Error())
		if result.Partial() {
			lines = append(lines, fmt.Sprintf("  %d files were written before the failure", len(result.Written)))
		}
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	ts := timestamp()
	var sb strings.Builder
	for _, l := range lines {
		fmt.Fprintf(&sb, "[%s] %s\n", ts, l)
	}
	_, err := io.WriteString(cl.writer, sb.String())
	return err
}

// LogEntry logs each committed or skipped destination at DEBUG level.
func (cl *ConsoleLogger) LogEntry(job models.Job, path string, skipped bool) {
	verb := "wrote"
	if skipped {
		verb = "skipped"
	}
	cl.write("debug", fmt.Sprintf("  [job %d] %s %s", job.ID, verb, path))
}

// LogProgress logs completed jobs against the total with the average job duration.
// Format: "[HH:MM:SS] Progress: [====      ] 2/5 (40%) - Avg: 3s/job"
func (cl *ConsoleLogger) LogProgress(completed []models.JobResult, total int) {
	if cl.writer == nil || !cl.shouldLog("info") || total <= 1 {
		return
	}

	var totalDuration time.Duration
	for _, r := range completed {
		totalDuration += r.Duration
	}

	pb := NewProgressBar(total, 10, cl.colorOutput)
	pb.Update(len(completed))

	msg := "Progress: " + pb.Render()
	if len(completed) > 0 {
		avg := totalDuration / time.Duration(len(completed))
		msg += fmt.Sprintf(" - Avg: %s/job", formatDuration(avg))
	}
	cl.write("info", msg)
}

// LogSummary logs the operation summary with completion statistics at INFO level.
// Failed jobs are always listed, even when the level hides the statistics.
func (cl *ConsoleLogger) LogSummary(summary models.OperationSummary) {
	if cl.writer == nil {
		return
	}

	lines := []string{}
	if cl.shouldLog("info") {
		header := "=== " + strings.ToUpper(summary.Direction.String()[:1]) + summary.Direction.String()[1:] + " Summary ==="
		succeeded := fmt.Sprintf("Succeeded: %d", summary.Succeeded)
		failed := fmt.Sprintf("Failed: %d", summary.Failed)
		if cl.colorOutput {
			header = cl.scheme.header.Sprint(header)
			succeeded = cl.scheme.success.Sprint(succeeded)
			if summary.Failed > 0 {
				failed = cl.scheme.failure.Sprint(failed)
			}
		}
		lines = append(lines,
			header,
			fmt.Sprintf("Total jobs: %d", summary.TotalJobs),
		)
		if summary.Workers > 0 {
			lines = append(lines, fmt.Sprintf("Workers: %d", summary.Workers))
		}
		lines = append(lines,
			succeeded,
			fmt.Sprintf("Skipped: %d", summary.Skipped),
			failed,
			fmt.Sprintf("Data: %s", units.HumanSize(float64(summary.Bytes))),
			fmt.Sprintf("Duration: %s", formatDuration(summary.Duration)),
		)
	}

	if summary.Failed > 0 && len(summary.Failures) > 0 {
		title := "Failed jobs:"
		if cl.colorOutput {
			title = cl.scheme.failure.Sprint(title)
		}
		lines = append(lines, title)
		for _, f := range summary.Failures {
			reason := f.Status
			if f.Err != nil {
				reason = f.Err.Error()
			}
			lines = append(lines, fmt.Sprintf("  - %s: %s", f.Job.Describe(), reason))
		}
	}

	if len(lines) == 0 {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	ts := timestamp()
	var sb strings.Builder
	for _, l := range lines {
		fmt.Fprintf(&sb, "[%s] %s\n", ts, l)
	}
	io.WriteString(cl.writer, sb.String())
}

// timestamp returns the current time formatted as "15:04:05" (HH:MM:SS).
func timestamp() string {
	return time.Now().Format("15:04:05")
}

// formatDuration converts a time.Duration to a human-readable string.
// Examples: "5s", "1m30s", "2h15m"
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		hours := d / time.Hour
		remainder := d % time.Hour
		if remainder == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		minutes := remainder / time.Minute
		remainder = remainder % time.Minute
		if remainder == 0 {
			return fmt.Sprintf("%dh%dm", hours, minutes)
		}
		seconds := remainder / time.Second
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	case d >= time.Minute:
		minutes := d / time.Minute
		remainder := d % time.Minute
		if remainder == 0 {
			return fmt.Sprintf("%dm", minutes)
		}
		seconds := remainder / time.Second
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	case d > 0 && d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%ds", int64(d.Seconds()))
	}
}

// NoOpLogger is a Logger implementation that discards all log messages.
// Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// NewNoOpLogger creates a NoOpLogger instance.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (n *NoOpLogger) LogJobStart(job models.Job) {}

func (n *NoOpLogger) LogJobResult(result models.JobResult) error { return nil }

func (n *NoOpLogger) LogEntry(job models.Job, path string, skipped bool) {}

func (n *NoOpLogger) LogProgress(completed []models.JobResult, total int) {}

func (n *NoOpLogger) LogSummary(summary models.OperationSummary) {}

func (n *NoOpLogger) LogWarn(message string) {}
