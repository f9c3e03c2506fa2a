package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"gibster/internal/api"
	"gibster/internal/events"
	"gibster/internal/orchestrator"

	"github.com/spf13/cobra"
)

func newSyncCommand(opts *rootOptions) *cobra.Command {
	var detach bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Start a sync and follow it until it finishes",
		Long: "Start a sync and follow it until it finishes. Ctrl-C stops following;\n" +
			"the job keeps running on the server.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			return runSync(cmd.Context(), cmd.OutOrStdout(), a, detach)
		},
	}
	cmd.Flags().BoolVar(&detach, "detach", false, "start the sync and exit without waiting")
	return cmd
}

func runSync(ctx context.Context, out io.Writer, a *app, detach bool) error {
	if detach {
		return startDetached(ctx, out, a)
	}

	printer := &progressPrinter{out: out}
	a.bus.Subscribe(events.EventSyncStateChanged, printer.handle)

	if err := a.orch.StartSync(ctx); err != nil {
		snap := a.orch.Snapshot()
		if snap.ErrorKind == orchestrator.KindAuthExpired {
			return err
		}
		if snap.Message != "" {
			return errors.New(snap.Message)
		}
		return err
	}

	// Wait returns when the run is terminal; Ctrl-C reaches the poll loop
	// through ctx and finishes the run as cancelled.
	snap, err := a.orch.Wait(context.WithoutCancel(ctx))
	if err != nil {
		return err
	}
	return runResult(snap)
}

// startDetached leaves the server job running and stops watching it right away.
func startDetached(ctx context.Context, out io.Writer, a *app) error {
	if err := a.orch.StartSync(ctx); err != nil {
		return err
	}
	snap := a.orch.Snapshot()
	_ = a.orch.Cancel()
	fmt.Fprintf(out, "Sync started, job %s\n", snap.JobID)
	fmt.Fprintln(out, "Run 'gibster status' or 'gibster history' to follow it.")
	return nil
}

func runResult(snap orchestrator.Snapshot) error {
	switch snap.State {
	case orchestrator.StateCompleted, orchestrator.StateCancelled:
		return nil
	case orchestrator.StateFailed:
		if snap.ErrorKind == orchestrator.KindAuthExpired {
			return api.ErrAuthRequired
		}
	}
	if snap.Message == "" {
		return fmt.Errorf("sync ended in state %s", snap.State)
	}
	return errors.New(snap.Message)
}

// progressPrinter prints one line per change of state or progress text.
type progressPrinter struct {
	mu   sync.Mutex
	out  io.Writer
	last string
}

func (p *progressPrinter) handle(e *events.Event) error {
	var snap orchestrator.Snapshot
	if err := e.Decode(&snap); err != nil {
		return err
	}

	line := formatProgress(snap)
	p.mu.Lock()
	defer p.mu.Unlock()
	if line == "" || line == p.last {
		return nil
	}
	p.last = line
	fmt.Fprintln(p.out, line)
	return nil
}

func formatProgress(snap orchestrator.Snapshot) string {
	switch snap.State {
	case orchestrator.StateStarting:
		return snap.Message
	case orchestrator.StatePolling:
		text := snap.Progress
		if text == "" {
			text = string(snap.Status)
		}
		return fmt.Sprintf("[%s] %s", shortID(snap.JobID), text)
	case orchestrator.StateCompleted:
		return "✓ " + snap.Message
	case orchestrator.StateCancelled:
		return snap.Message
	case orchestrator.StateFailed, orchestrator.StateTimedOut:
		return "✗ " + snap.Message
	}
	return ""
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
