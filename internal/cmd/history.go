package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/harrison/packrat/internal/history"
)

// NewHistoryCommand creates the history command
func NewHistoryCommand() *cobra.Command {
	var (
		limit  int
		schema bool
	)

	cmd := &cobra.Command{
		Use:   "history [operation-id]",
		Short: "Show recorded operations",
		Long: `History lists past compress and decompress operations, newest first.
Pass an operation ID to see its jobs, or --schema to see the database
location and its applied migrations.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			if !cfg.History.Enabled {
				return errors.New("history is disabled in the configuration")
			}

			store, err := history.NewStore(cfg.History.DBPath)
			if err != nil {
				return fmt.Errorf("failed to open history: %w", err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if schema {
				return printSchema(out, store)
			}
			if len(args) == 1 {
				op, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printOperation(out, op)
				return nil
			}

			ops, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(ops) == 0 {
				fmt.Fprintln(out, "No operations recorded.")
				return nil
			}
			for _, op := range ops {
				fmt.Fprintf(out, "%s  %s  %-10s  %d jobs: %d ok, %d skipped, %d failed  %s\n",
					op.ID, op.RecordedAt.Local().Format("2006-01-02 15:04:05"), op.Direction,
					op.TotalJobs, op.Succeeded, op.Skipped, op.Failed, units.HumanSize(float64(op.Bytes)))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum operations to show (0 = all)")
	cmd.Flags().BoolVar(&schema, "schema", false, "Show the history database schema version")
	return cmd
}

func printSchema(out io.Writer, store *history.Store) error {
	latest, err := store.GetLatestVersion()
	if err != nil {
		return err
	}
	applied, err := store.GetAppliedVersions()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Database: %s\n", store.Path())
	fmt.Fprintf(out, "Schema:   version %d\n", latest)
	for _, v := range applied {
		fmt.Fprintf(out, "  migration %d applied %s\n", v.Version, v.AppliedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}

func printOperation(out io.Writer, op *history.Operation) {
	fmt.Fprintf(out, "Operation: %s (%s)\n", op.ID, op.Direction)
	fmt.Fprintf(out, "Recorded:  %s\n", op.RecordedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Jobs:      %d total, %d succeeded, %d skipped, %d failed\n",
		op.TotalJobs, op.Succeeded, op.Skipped, op.Failed)
	fmt.Fprintf(out, "Data:      %s in %s\n", units.HumanSize(float64(op.Bytes)), op.Duration)

	for _, job := range op.Jobs {
		fmt.Fprintf(out, "\n  Job %d: %s\n", job.JobID, job.Status)
		for _, in := range job.Inputs {
			fmt.Fprintf(out, "    in:  %s\n", in)
		}
		fmt.Fprintf(out, "    out: %s (%d written, %d skipped)\n", job.Output, job.Written, job.Skipped)
		if job.Error != "" {
			fmt.Fprintf(out, "    error: %s\n", job.Error)
			if job.Path != "" {
				fmt.Fprintf(out, "    path:  %s\n", job.Path)
			}
		}
	}
}
