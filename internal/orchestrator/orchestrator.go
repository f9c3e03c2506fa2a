package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gibster/internal/api"
	"gibster/internal/config"
	"gibster/internal/events"
	"gibster/internal/metrics"
	"gibster/internal/models"

	"github.com/rs/zerolog"
)

// SyncAPI is the part of the API client the orchestrator drives.
type SyncAPI interface {
	StartSync(ctx context.Context) (*api.Response, error)
	SyncStatus(ctx context.Context) (*api.Response, error)
}

// HistoryRefresher reloads the sync history list.
type HistoryRefresher interface {
	Refresh(ctx context.Context, limit int) ([]models.SyncJob, error)
}

const postRunTimeout = 30 * time.Second

// pollHandle owns one poll loop. Results are applied only while the handle
// is current and not stopped.
type pollHandle struct {
	jobID   string
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool

	// finished is the run's Done channel, closed once subscribers have
	// seen the terminal snapshot and the post-run refresh is over.
	finished chan struct{}
}

type Orchestrator struct {
	api     SyncAPI
	history HistoryRefresher
	bus     *events.EventBus
	cfg     config.SyncConfig
	logger  *zerolog.Logger
	now     func() time.Time

	mu       sync.Mutex
	snap     Snapshot
	handle   *pollHandle
	run      uint64
	issued   uint64
	applied  uint64
	finished chan struct{}
}

func New(client SyncAPI, history HistoryRefresher, bus *events.EventBus, cfg config.SyncConfig, logger *zerolog.Logger) *Orchestrator {
	finished := make(chan struct{})
	close(finished)

	o := &Orchestrator{
		api:      client,
		history:  history,
		bus:      bus,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		snap:     Snapshot{State: StateIdle},
		finished: finished,
	}
	if bus != nil {
		bus.Subscribe(events.EventSessionExpired, o.onSessionExpired)
	}
	return o
}

// Snapshot returns a copy of the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snap
}

// Done is closed after the current run's terminal snapshot was published.
// Without a run in flight the returned channel is already closed.
func (o *Orchestrator) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.finished
}

// Wait blocks until the current run is over and returns its final snapshot.
func (o *Orchestrator) Wait(ctx context.Context) (Snapshot, error) {
	select {
	case <-o.Done():
		return o.Snapshot(), nil
	case <-ctx.Done():
		return o.Snapshot(), ctx.Err()
	}
}

// StartSync asks the remote service for a new job and begins polling it.
// Polling stops when ctx is cancelled, which counts as a manual cancel.
func (o *Orchestrator) StartSync(ctx context.Context) error {
	o.mu.Lock()
	if o.snap.State.Busy() {
		o.mu.Unlock()
		return ErrSyncInProgress
	}
	o.run++
	run := o.run
	o.finished = make(chan struct{})
	now := o.now()
	snap := o.setLocked(Snapshot{
		State:     StateStarting,
		Message:   msgStarting,
		StartedAt: now,
	})
	o.mu.Unlock()
	o.emit(snap, true)

	o.logger.Info().Msg("Starting sync")

	resp, err := o.api.StartSync(ctx)
	if err != nil {
		switch {
		case errors.Is(err, api.ErrAuthRequired):
			o.failStart(run, StateFailed, msgAuthRequired, KindAuthExpired, false)
		case ctx.Err() != nil:
			o.failStart(run, StateCancelled, msgCancelled, KindNone, false)
		default:
			o.failStart(run, StateFailed, msgStartFailed, KindNetworkFailure, true)
		}
		return fmt.Errorf("start sync: %w", err)
	}

	if !resp.OK() {
		msg := resp.Detail()
		if msg == "" {
			msg = msgStartFailed
		}
		o.failStart(run, StateFailed, msg, KindValidationFailure, true)
		return fmt.Errorf("start sync: %w", resp.Err())
	}

	var result models.SyncStartResult
	if err := resp.Decode(&result); err != nil || result.JobID == "" {
		o.failStart(run, StateFailed, msgStartFailed, KindValidationFailure, true)
		if err == nil {
			err = errors.New("response carries no job id")
		}
		return fmt.Errorf("start sync: %w", err)
	}

	return o.beginPolling(ctx, run, result.JobID, result.Status, result.Message, o.cfg.StartupDelay)
}

// Resume picks up a job that is already running on the server, for example
// one started from another device. It reports whether polling began.
func (o *Orchestrator) Resume(ctx context.Context) (bool, error) {
	o.mu.Lock()
	if o.snap.State.Busy() {
		o.mu.Unlock()
		return false, ErrSyncInProgress
	}
	o.mu.Unlock()

	o.refreshHistory(ctx)

	status, err := api.Result[models.SyncStatus](o.api.SyncStatus(ctx))
	if err != nil {
		return false, fmt.Errorf("resume sync: %w", err)
	}
	if !status.Job.Status.IsActive() {
		return false, nil
	}

	o.mu.Lock()
	if o.snap.State.Busy() {
		o.mu.Unlock()
		return false, ErrSyncInProgress
	}
	o.run++
	run := o.run
	o.finished = make(chan struct{})
	o.setLocked(Snapshot{State: StateStarting, StartedAt: o.now()})
	o.mu.Unlock()

	o.logger.Info().Str("job_id", status.Job.ID).Msg("Resuming sync already in progress")

	if err := o.beginPolling(ctx, run, status.Job.ID, status.Job.Status, status.Job.ProgressText(), 0); err != nil {
		return false, err
	}
	return true, nil
}

// Cancel stops polling. The server job is not affected.
func (o *Orchestrator) Cancel() error {
	o.mu.Lock()
	h := o.handle
	if o.snap.State != StatePolling || h == nil {
		o.mu.Unlock()
		return ErrNotPolling
	}
	snap := o.finishLocked(h, StateCancelled, msgCancelled, KindNone, false)
	o.mu.Unlock()

	o.logger.Info().Str("job_id", h.jobID).Msg("Sync polling cancelled")
	o.afterFinish(h, snap)
	return nil
}

func (o *Orchestrator) beginPolling(ctx context.Context, run uint64, jobID string, status models.JobStatus, message string, delay time.Duration) error {
	pollCtx, cancel := context.WithCancel(ctx)
	h := &pollHandle{jobID: jobID, cancel: cancel, done: make(chan struct{})}

	o.mu.Lock()
	if o.run != run || o.snap.State != StateStarting {
		o.mu.Unlock()
		cancel()
		return ErrSyncInProgress
	}
	h.finished = o.finished
	o.handle = h
	next := o.snap
	next.State = StatePolling
	next.JobID = jobID
	next.Status = status
	next.Message = message
	next.StartedAt = o.now()
	snap := o.setLocked(next)
	o.mu.Unlock()

	o.logger.Info().Str("job_id", jobID).Msg("Polling sync status")
	o.emit(snap, true)

	go o.poll(pollCtx, h, delay)
	return nil
}

// failStart ends a run that never reached polling.
func (o *Orchestrator) failStart(run uint64, state State, message string, kind ErrorKind, retryable bool) {
	o.mu.Lock()
	if o.run != run || o.snap.State != StateStarting {
		o.mu.Unlock()
		return
	}
	next := o.snap
	next.State = state
	next.Message = message
	next.ErrorKind = kind
	next.Retryable = retryable
	snap := o.setLocked(next)
	finished := o.finished
	o.mu.Unlock()

	o.logger.Warn().Str("state", string(state)).Str("kind", string(kind)).Msg(message)
	o.emit(snap, true)
	close(finished)
}

// onSessionExpired stops polling as soon as any call reports an expired session.
func (o *Orchestrator) onSessionExpired(*events.Event) error {
	o.mu.Lock()
	h := o.handle
	if h == nil || o.snap.State != StatePolling {
		o.mu.Unlock()
		return nil
	}
	snap := o.finishLocked(h, StateFailed, msgAuthRequired, KindAuthExpired, false)
	o.mu.Unlock()

	o.logger.Info().Str("job_id", h.jobID).Msg("Session expired, polling stopped")
	o.afterFinish(h, snap)
	return nil
}

// setLocked replaces the snapshot, stamping version and time. Caller holds mu.
func (o *Orchestrator) setLocked(next Snapshot) Snapshot {
	next.Version = o.snap.Version + 1
	next.UpdatedAt = o.now()
	o.snap = next
	return next
}

// finishLocked moves a polling run to a terminal state and stops its handle.
// Caller holds mu.
func (o *Orchestrator) finishLocked(h *pollHandle, state State, message string, kind ErrorKind, retryable bool) Snapshot {
	h.stopped = true
	h.cancel()
	if o.handle == h {
		o.handle = nil
	}

	next := o.snap
	next.State = state
	next.Message = message
	next.ErrorKind = kind
	next.Retryable = retryable
	return o.setLocked(next)
}

func (o *Orchestrator) afterFinish(h *pollHandle, snap Snapshot) {
	o.publishFinal(snap)
	close(h.finished)
}

func (o *Orchestrator) publishFinal(snap Snapshot) {
	metrics.ObservePollAttempts(snap.Attempts)
	o.emit(snap, true)
}

// emit publishes a snapshot. Never called with mu held: subscribers may
// read the orchestrator.
func (o *Orchestrator) emit(snap Snapshot, transition bool) {
	if transition {
		metrics.IncSyncTransition(string(snap.State))
	}
	if o.bus == nil {
		return
	}
	if err := o.bus.PublishJSON(events.EventSyncStateChanged, snap); err != nil {
		o.logger.Error().Err(err).Msg("Failed to publish sync state")
	}
}

func (o *Orchestrator) refreshHistory(ctx context.Context) {
	if o.history == nil {
		return
	}
	if _, err := o.history.Refresh(ctx, o.cfg.HistoryLimit); err != nil {
		o.logger.Warn().Err(err).Msg("Failed to refresh sync history")
	}
}
