package cmd

import (
	"github.com/harrison/packrat/internal/executor"
	"github.com/harrison/packrat/internal/models"
)

// multiLogger implements executor.Logger by delegating to multiple loggers
type multiLogger struct {
	loggers []executor.Logger
}

func (ml *multiLogger) LogJobStart(job models.Job) {
	for _, logger := range ml.loggers {
		logger.LogJobStart(job)
	}
}

// LogJobResult forwards to all loggers and returns the last error.
func (ml *multiLogger) LogJobResult(result models.JobResult) error {
	var lastErr error
	for _, logger := range ml.loggers {
		if err := logger.LogJobResult(result); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (ml *multiLogger) LogEntry(job models.Job, path string, skipped bool) {
	for _, logger := range ml.loggers {
		logger.LogEntry(job, path, skipped)
	}
}

func (ml *multiLogger) LogProgress(completed []models.JobResult, total int) {
	for _, logger := range ml.loggers {
		logger.LogProgress(completed, total)
	}
}

func (ml *multiLogger) LogSummary(summary models.OperationSummary) {
	for _, logger := range ml.loggers {
		logger.LogSummary(summary)
	}
}

func (ml *multiLogger) LogWarn(message string) {
	for _, logger := range ml.loggers {
		logger.LogWarn(message)
	}
}
