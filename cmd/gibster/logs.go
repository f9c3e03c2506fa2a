package main

import (
	"fmt"
	"io"
	"time"

	"gibster/internal/models"

	"github.com/spf13/cobra"
)

func newLogsCommand(opts *rootOptions) *cobra.Command {
	var (
		page  int
		limit int
		level string
	)
	cmd := &cobra.Command{
		Use:   "logs <job-id>",
		Short: "Show the logs of a sync job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			query := models.LogQuery{Page: page, Limit: limit, Level: models.LogLevel(level)}
			result, err := a.history.FetchLogs(cmd.Context(), args[0], query)
			if err != nil {
				return err
			}
			printLogs(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&limit, "limit", models.DefaultLogPageSize, fmt.Sprintf("lines per page, at most %d", models.MaxLogPageSize))
	cmd.Flags().StringVar(&level, "level", "", "only DEBUG, INFO, WARNING or ERROR lines")
	return cmd
}

func printLogs(out io.Writer, page *models.SyncJobLogPage) {
	if len(page.Logs) == 0 {
		fmt.Fprintln(out, "No log entries.")
		return
	}
	for _, entry := range page.Logs {
		fmt.Fprintf(out, "%s %-7s %s\n", entry.Timestamp.Local().Format(time.DateTime), entry.Level, entry.Message)
	}
	fmt.Fprintf(out, "\nPage %d of %d (%d entries)\n", page.Page, page.Pages(), page.Total)
}
