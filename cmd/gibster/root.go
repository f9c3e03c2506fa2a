package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	baseURL    string
	backend    string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "gibster",
		Short:         "Sync bookings with the gibster service",
		Version:       fmt.Sprintf("%s (built %s, commit %s)", Version, BuildDate, GitCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (default $CONFIG_PATH or configs/config.yaml)")
	root.PersistentFlags().StringVar(&opts.baseURL, "server", "", "service base URL, overrides api.base_url")
	root.PersistentFlags().StringVar(&opts.backend, "session-backend", "", "token storage: memory, sqlite, redis or failover")

	root.AddCommand(
		newLoginCommand(opts),
		newRegisterCommand(opts),
		newLogoutCommand(opts),
		newStatusCommand(opts),
		newSyncCommand(opts),
		newHistoryCommand(opts),
		newLogsCommand(opts),
		newBookingsCommand(opts),
		newServeCommand(opts),
	)
	return root
}
