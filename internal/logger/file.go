package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/docker/go-units"

	"github.com/harrison/packrat/internal/models"
)

// FileLogger logs operation events to files in the configured log directory.
// It creates timestamped per-run log files, per-job detail logs for failed
// jobs, and maintains a latest.log symlink pointing to the most recent run.
// It is thread-safe and implements the executor.Logger interface.
type FileLogger struct {
	logDir   string
	runLog   *os.File
	runFile  string
	jobsDir  string
	logLevel string
	mu       sync.Mutex
}

// NewFileLogger creates a new FileLogger with a custom log directory and log level.
// It creates the log directory if it doesn't exist, opens a timestamped
// run log file, and creates/updates the latest.log symlink.
func NewFileLogger(logDir string, logLevel string) (*FileLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	jobsDir := filepath.Join(logDir, "jobs")
	if err := os.MkdirAll(jobsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create jobs directory: %w", err)
	}

	// Generate timestamped filename: run-YYYYMMDD-HHMMSS.log
	now := time.Now()
	runFile := filepath.Join(logDir, fmt.Sprintf("run-%s.log", now.Format("20060102-150405")))

	file, err := os.OpenFile(runFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log file: %w", err)
	}

	symlinkPath := filepath.Join(logDir, "latest.log")
	if _, err := os.Lstat(symlinkPath); err == nil {
		if err := os.Remove(symlinkPath); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to remove old symlink: %w", err)
		}
	}
	if err := os.Symlink(filepath.Base(runFile), symlinkPath); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create symlink: %w", err)
	}

	logger := &FileLogger{
		logDir:   logDir,
		runLog:   file,
		runFile:  runFile,
		jobsDir:  jobsDir,
		logLevel: normalizeLogLevel(logLevel),
	}

	logger.writeRunLog("=== Packrat Run Log ===\n")
	logger.writeRunLog(fmt.Sprintf("Started at: %s\n\n", now.Format(time.RFC3339)))

	return logger, nil
}

// RunFile returns the path of this run's log file.
func (fl *FileLogger) RunFile() string {
	return fl.runFile
}

func (fl *FileLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(fl.logLevel)
}

// LogDebug logs a debug-level message.
func (fl *FileLogger) LogDebug(message string) {
	fl.logWithLevel("DEBUG", message)
}

// LogInfo logs an info-level message.
func (fl *FileLogger) LogInfo(message string) {
	fl.logWithLevel("INFO", message)
}

// LogWarn logs a warning-level message.
func (fl *FileLogger) LogWarn(message string) {
	fl.logWithLevel("WARN", message)
}

// LogError logs an error-level message.
func (fl *FileLogger) LogError(message string) {
	fl.logWithLevel("ERROR", message)
}

func (fl *FileLogger) logWithLevel(level string, message string) {
	if !fl.shouldLog(strings.ToLower(level)) {
		return
	}
	fl.writeRunLog(fmt.Sprintf("[%s] [%s] %s\n", timestamp(), level, message))
}

// LogJobStart records the dispatch of a job at INFO level.
func (fl *FileLogger) LogJobStart(job models.Job) {
	if !fl.shouldLog("info") {
		return
	}
	fl.writeRunLog(fmt.Sprintf("[%s] Job %d started: %s (%s)\n", timestamp(), job.ID, job.Describe(), job.Direction))
}

// LogJobResult records the job outcome in the run log. Failed jobs also get
// a detail file jobs/job-N.log listing the cause and every completed write.
func (fl *FileLogger) LogJobResult(result models.JobResult) error {
	if fl.shouldLog("info") {
		line := fmt.Sprintf("[%s] Job %d: %s (%.1fs, %d written, %d skipped)\n",
			timestamp(), result.Job.ID, result.Status, result.Duration.Seconds(), len(result.Written), len(result.Skipped))
		fl.writeRunLog(line)
	}
	if !result.Failed() {
		return nil
	}

	fl.mu.Lock()
	defer fl.mu.Unlock()

	jobLogPath := filepath.Join(fl.jobsDir, fmt.Sprintf("job-%d.log", result.Job.ID))
	file, err := os.OpenFile(jobLogPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create job log file: %w", err)
	}
	defer file.Close()

	var sb strings.Builder
	fmt.Fprintf(&sb, "=== Job %d: %s ===\n", result.Job.ID, result.Job.Describe())
	fmt.Fprintf(&sb, "Direction: %s\n", result.Job.Direction)
	fmt.Fprintf(&sb, "Status: %s\n", result.Status)
	fmt.Fprintf(&sb, "Duration: %.1fs\n\n", result.Duration.Seconds())
	if result.Err != nil {
		fmt.Fprintf(&sb, "Error:\n%v\n\n", result.Err)
	}
	if result.Path != "" {
		fmt.Fprintf(&sb, "Offending path: %s\n\n", result.Path)
	}
	if len(result.Written) > 0 {
		sb.WriteString("Written before failure:\n")
		for _, p := range result.Written {
			fmt.Fprintf(&sb, "  %s\n", p)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Completed at: %s\n", time.Now().Format(time.RFC3339))

	if _, err := file.WriteString(sb.String()); err != nil {
		return fmt.Errorf("failed to write job log: %w", err)
	}
	return nil
}

// LogEntry records each destination at DEBUG level.
func (fl *FileLogger) LogEntry(job models.Job, path string, skipped bool) {
	if !fl.shouldLog("debug") {
		return
	}
	verb := "wrote"
	if skipped {
		verb = "skipped"
	}
	fl.writeRunLog(fmt.Sprintf("[%s] [job %d] %s %s\n", timestamp(), job.ID, verb, path))
}

// LogProgress is a no-op: progress bars are console-only.
func (fl *FileLogger) LogProgress(completed []models.JobResult, total int) {}

// LogSummary writes the operation summary at INFO level.
func (fl *FileLogger) LogSummary(summary models.OperationSummary) {
	if !fl.shouldLog("info") {
		return
	}

	status := "SUCCESS"
	if summary.Failed > 0 {
		if summary.Succeeded == 0 && summary.Skipped == 0 {
			status = "FAILED"
		} else {
			status = "PARTIAL"
		}
	}

	ts := timestamp()
	var sb strings.Builder
	fmt.Fprintf(&sb, "\n[%s] === OPERATION SUMMARY ===\n", ts)
	fmt.Fprintf(&sb, "[%s] Operation:    %s (%s)\n", ts, summary.ID, summary.Direction)
	fmt.Fprintf(&sb, "[%s] Total jobs:   %d\n", ts, summary.TotalJobs)
	if summary.Workers > 0 {
		fmt.Fprintf(&sb, "[%s] Workers:      %d\n", ts, summary.Workers)
	}
	fmt.Fprintf(&sb, "[%s] Succeeded:    %d\n", ts, summary.Succeeded)
	fmt.Fprintf(&sb, "[%s] Skipped:      %d\n", ts, summary.Skipped)
	fmt.Fprintf(&sb, "[%s] Failed:       %d\n", ts, summary.Failed)
	fmt.Fprintf(&sb, "[%s] Data:         %s\n", ts, units.HumanSize(float64(summary.Bytes)))
	fmt.Fprintf(&sb, "[%s] Total time:   %.1fs\n", ts, summary.Duration.Seconds())
	fmt.Fprintf(&sb, "[%s] Status:       %s (%d/%d jobs failed)\n", ts, status, summary.Failed, summary.TotalJobs)
	for _, f := range summary.Failures {
		fmt.Fprintf(&sb, "[%s]   - %s: %v\n", ts, f.Job.Describe(), f.Err)
	}
	fmt.Fprintf(&sb, "[%s] Completed at: %s\n", ts, time.Now().Format(time.RFC3339))

	fl.writeRunLog(sb.String())
}

// Close flushes and closes the run log file.
// It should be called when the logger is no longer needed.
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog != nil {
		if err := fl.runLog.Sync(); err != nil {
			return fmt.Errorf("failed to sync run log: %w", err)
		}
		if err := fl.runLog.Close(); err != nil {
			return fmt.Errorf("failed to close run log: %w", err)
		}
		fl.runLog = nil
	}
	return nil
}

// writeRunLog is a thread-safe helper to write to the run log file.
func (fl *FileLogger) writeRunLog(message string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog != nil {
		fl.runLog.WriteString(message)
		fl.runLog.Sync()
	}
}
