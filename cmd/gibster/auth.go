package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"gibster/internal/api"
	"gibster/internal/models"
	"gibster/internal/session"

	"github.com/spf13/cobra"
)

func addCredentialFlags(cmd *cobra.Command, c *credentials) {
	cmd.Flags().StringVar(&c.email, "email", "", "account email")
	cmd.Flags().StringVar(&c.passwordFile, "password-file", "", "read the password from a file ($"+passwordEnv+" takes precedence)")
}

func newLoginCommand(opts *rootOptions) *cobra.Command {
	var creds credentials
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			email, password, err := creds.resolve(cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return runLogin(cmd, a, email, password)
		},
	}
	addCredentialFlags(cmd, &creds)
	return cmd
}

func runLogin(cmd *cobra.Command, a *app, email, password string) error {
	out := cmd.OutOrStdout()
	if _, err := a.client.SignIn(cmd.Context(), email, password, a.secure); err != nil {
		var statusErr *api.StatusError
		if errors.As(err, &statusErr) && statusErr.Detail != "" {
			return fmt.Errorf("login failed: %s", statusErr.Detail)
		}
		return fmt.Errorf("login failed: %w", err)
	}
	fmt.Fprintf(out, "✓ Logged in as %s\n", email)
	return nil
}

func newRegisterCommand(opts *rootOptions) *cobra.Command {
	var creds credentials
	var noLogin bool
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			email, password, err := creds.resolve(cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}

			user, err := api.Result[models.User](a.client.Register(cmd.Context(), email, password))
			if err != nil {
				var statusErr *api.StatusError
				if errors.As(err, &statusErr) && statusErr.Detail != "" {
					return fmt.Errorf("registration failed: %s", statusErr.Detail)
				}
				return fmt.Errorf("registration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Registered %s\n", user.Email)

			if noLogin {
				return nil
			}
			return runLogin(cmd, a, email, password)
		},
	}
	addCredentialFlags(cmd, &creds)
	cmd.Flags().BoolVar(&noLogin, "no-login", false, "do not log in after registering")
	return cmd
}

func newLogoutCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.client.SignOut(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Logged out")
			return nil
		},
	}
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session and the latest sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			return runStatus(cmd, a)
		},
	}
}

func runStatus(cmd *cobra.Command, a *app) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	token, ok, err := a.store.Read(ctx)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(out, "Not logged in. Run 'gibster login'.")
		return nil
	}
	printTokenInfo(out, token)

	user, err := api.Result[models.User](a.client.Profile(ctx))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Account:   %s\n", user.Email)
	if user.CalendarUUID != "" {
		fmt.Fprintf(out, "Calendar:  %s/calendar/%s.ics\n", a.client.BaseURL(), user.CalendarUUID)
	}

	status, err := api.Result[models.SyncStatus](a.client.SyncStatus(ctx))
	if err != nil {
		return err
	}
	if status.Job.Status == models.JobNeverSynced {
		fmt.Fprintln(out, "Last sync: never")
		return nil
	}
	fmt.Fprintf(out, "Last job:  %s (%s)\n", status.Job.Summary(), status.Job.ID)
	if status.LastSyncAt != nil {
		fmt.Fprintf(out, "Last sync: %s\n", status.LastSyncAt.Local().Format(time.DateTime))
	}
	return nil
}

func printTokenInfo(out io.Writer, token string) {
	info, err := session.Inspect(token)
	if err != nil {
		fmt.Fprintln(out, "Session:   stored (opaque token)")
		return
	}
	switch {
	case info.ExpiresAt.IsZero():
		fmt.Fprintln(out, "Session:   stored, no expiry")
	case info.Expired(time.Now()):
		fmt.Fprintf(out, "Session:   expired at %s\n", info.ExpiresAt.Local().Format(time.DateTime))
	default:
		fmt.Fprintf(out, "Session:   valid until %s\n", info.ExpiresAt.Local().Format(time.DateTime))
	}
}
