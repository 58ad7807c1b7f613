package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harrison/packrat/internal/config"
	"github.com/harrison/packrat/internal/conflict"
	"github.com/harrison/packrat/internal/executor"
	"github.com/harrison/packrat/internal/history"
	"github.com/harrison/packrat/internal/logger"
	"github.com/harrison/packrat/internal/pipeline"
)

// runOperation plans and executes one compress or decompress invocation.
// Planning errors fail before any job starts; job failures come back as an
// *executor.OperationError after every job has finished.
func runOperation(cmd *cobra.Command, req executor.Request) error {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	jobs, err := executor.Plan(req)
	if err != nil {
		return err
	}

	consoleLog := logger.NewConsoleLogger(cmd.OutOrStdout(), cfg.LogLevel)
	fileLog, err := logger.NewFileLogger(cfg.LogDir, "debug")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	defer fileLog.Close()

	multiLog := &multiLogger{
		loggers: []executor.Logger{consoleLog, fileLog},
	}

	prompter, err := newPrompter(cmd, cfg)
	if err != nil {
		return err
	}

	runner := executor.NewJobRunner(
		pipeline.NewRegistry(cfg.CompressionLevel, 0),
		conflict.NewPolicy(prompter),
		multiLog,
		executor.RunnerOptions{FollowSymlinks: cfg.FollowSymlinks},
	)
	orch := executor.NewOrchestrator(executor.NewPool(runner, multiLog, cfg.Parallelism), multiLog)

	if cfg.History.Enabled {
		store, err := history.NewStore(cfg.History.DBPath)
		if err != nil {
			// History is best effort; the operation itself still runs.
			multiLog.LogWarn(fmt.Sprintf("History disabled: %v", err))
		} else {
			defer store.Close()
			orch.SetRecorder(store)
		}
	}

	_, err = orch.Run(cmd.Context(), req.Direction, jobs)
	return err
}

// newPrompter picks the conflict prompter. Asking needs a terminal on stdin;
// anything else falls back to skipping.
func newPrompter(cmd *cobra.Command, cfg *config.Config) (conflict.Prompter, error) {
	in, _ := cmd.InOrStdin().(*os.File)
	prompter, err := conflict.NewPrompter(cfg.OverwritePolicy, in, cmd.ErrOrStderr())
	if err != nil {
		return nil, fmt.Errorf("invalid overwrite policy: %w", err)
	}
	return prompter, nil
}

// exitCode maps a command error to the process exit status: 1 when jobs
// failed, 2 for usage and planning errors.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case executor.IsJobError(err):
		return 1
	default:
		return 2
	}
}

// ExitCode is exitCode for main.
func ExitCode(err error) int {
	return exitCode(err)
}
