package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/assetflow/internal/history"
	"github.com/ShayCichocki/assetflow/pkg/models"
)

func newHistoryCmd(flags *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recent runs",
		Long: `Show recent runs recorded in the project's history database.

With a run ID, show the tasks of that run.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			dbPath := cfg.Abs(cfg.History.Path)
			if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
				fmt.Fprintln(out, "No runs recorded yet. Run 'assetflow build' to start.")
				return nil
			}
			db, err := history.OpenMigrated(dbPath)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer db.Close()

			if len(args) == 1 {
				return showRun(cmd, db, args[0])
			}
			runs, err := db.ListRuns(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded yet.")
				return nil
			}
			return writeRuns(out, runs)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of runs to show (0 for all)")
	return cmd
}

func showRun(cmd *cobra.Command, db *history.DB, id string) error {
	run, err := db.GetRun(cmd.Context(), id)
	if err != nil {
		return err
	}
	taskRuns, err := db.ListTaskRuns(cmd.Context(), run.ID)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s (%s)\n", run.ID, run.Env)
	fmt.Fprintf(out, "  Targets:  %s\n", strings.Join(run.Targets, ", "))
	fmt.Fprintf(out, "  Started:  %s\n", run.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "  Status:   %s\n", runStatus(run.Status))
	if run.Error != "" {
		fmt.Fprintf(out, "  Error:    %s\n", color.RedString(run.Error))
	}
	fmt.Fprintln(out)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tSTATUS\tDURATION\tERROR")
	for _, tr := range taskRuns {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", tr.Task, taskStatus(tr.Status), formatDuration(tr.Duration), tr.Error)
	}
	return tw.Flush()
}

func writeRuns(w io.Writer, runs []models.Run) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tENV\tTARGETS\tSTATUS\tDURATION")
	for _, r := range runs {
		duration := "-"
		if r.FinishedAt != nil {
			duration = formatDuration(r.FinishedAt.Sub(r.StartedAt))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(r.ID),
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Env,
			strings.Join(r.Targets, " "),
			runStatus(r.Status),
			duration,
		)
	}
	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runStatus(s models.RunStatus) string {
	switch s {
	case models.RunStatusSucceeded:
		return color.GreenString(string(s))
	case models.RunStatusFailed:
		return color.RedString(string(s))
	default:
		return color.YellowString(string(s))
	}
}

func taskStatus(s models.TaskStatus) string {
	switch s {
	case models.TaskStatusDone:
		return color.GreenString(string(s))
	case models.TaskStatusFailed:
		return color.RedString(string(s))
	case models.TaskStatusSkipped:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}
