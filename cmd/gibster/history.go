package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"gibster/internal/history"
	"gibster/internal/models"

	"github.com/spf13/cobra"
)

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	var (
		limit    int
		export   string
		withLogs bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent sync jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if limit <= 0 {
				limit = a.cfg.Sync.HistoryLimit
			}
			jobs, err := a.history.Refresh(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printJobs(cmd.OutOrStdout(), jobs)

			if export == "" {
				return nil
			}
			return exportHistory(cmd.Context(), cmd.OutOrStdout(), a, export, jobs, withLogs)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "number of jobs to show (default sync.history_limit)")
	cmd.Flags().StringVar(&export, "export", "", "also write the list to an .xlsx file")
	cmd.Flags().BoolVar(&withLogs, "with-logs", false, "include the first page of each job's logs in the export")
	return cmd
}

func exportHistory(ctx context.Context, out io.Writer, a *app, path string, jobs []models.SyncJob, withLogs bool) error {
	if !filepath.IsAbs(path) && filepath.Dir(path) == "." {
		path = filepath.Join(a.cfg.Exports.Path, path)
	}

	var logs map[string][]models.SyncJobLog
	if withLogs {
		logs = make(map[string][]models.SyncJobLog, len(jobs))
		for _, job := range jobs {
			page, err := a.history.FetchLogs(ctx, job.ID, models.LogQuery{Limit: models.MaxLogPageSize})
			if err != nil {
				return fmt.Errorf("logs of job %s: %w", job.ID, err)
			}
			logs[job.ID] = page.Logs
		}
	}

	if err := history.ExportXLSX(path, jobs, logs); err != nil {
		return err
	}
	a.logger.Info().Str("file_path", path).Int("jobs", len(jobs)).Msg("Excel file created")
	fmt.Fprintf(out, "Exported to %s\n", path)
	return nil
}

func printJobs(out io.Writer, jobs []models.SyncJob) {
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No sync jobs yet.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tSTATUS\tSTARTED\tDURATION\tBOOKINGS\tDETAIL")
	for _, job := range jobs {
		detail := job.ErrorText()
		if detail == "" {
			detail = job.ProgressText()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			job.ID,
			job.Status,
			formatWhen(job.StartedAt),
			formatDuration(job),
			job.BookingsSynced,
			detail,
		)
	}
	_ = w.Flush()
}

func formatWhen(ts models.Timestamp) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format(time.DateTime)
}

func formatDuration(job models.SyncJob) string {
	if job.CompletedAt == nil || job.StartedAt.IsZero() {
		return "-"
	}
	return job.CompletedAt.Sub(job.StartedAt.Time).Round(time.Second).String()
}
