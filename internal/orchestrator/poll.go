package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"gibster/internal/api"
	"gibster/internal/events"
	"gibster/internal/models"
	"gibster/internal/worker"
)

// poll is the body of a run's poll loop. It exits when the handle is stopped.
func (o *Orchestrator) poll(ctx context.Context, h *pollHandle, delay time.Duration) {
	defer close(h.done)

	// give the server a moment to create the job record
	if err := worker.Sleep(ctx, delay); err != nil {
		o.stopOnContext(h)
		return
	}

	if o.fetch(ctx, h) {
		return
	}
	o.refreshHistory(ctx)

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	deadline := time.NewTimer(o.cfg.Timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			o.stopOnContext(h)
			return
		case <-deadline.C:
			if o.checkCeiling(h) {
				return
			}
			continue
		case <-ticker.C:
		}

		attempt, ok := o.countAttempt(h)
		if !ok {
			return
		}
		if o.fetch(ctx, h) {
			return
		}
		if o.cfg.HistoryEvery > 0 && attempt%o.cfg.HistoryEvery == 0 {
			o.refreshHistory(ctx)
		}
		if o.checkCeiling(h) {
			return
		}
	}
}

func (o *Orchestrator) countAttempt(h *pollHandle) (int, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if h.stopped || o.handle != h {
		return 0, false
	}
	o.snap.Attempts++
	return o.snap.Attempts, true
}

// fetch issues one status request and applies its result. It reports
// whether the run is over.
func (o *Orchestrator) fetch(ctx context.Context, h *pollHandle) bool {
	o.mu.Lock()
	if h.stopped || o.handle != h {
		o.mu.Unlock()
		return true
	}
	o.issued++
	seq := o.issued
	o.mu.Unlock()

	resp, err := o.api.SyncStatus(ctx)
	return o.apply(ctx, h, seq, resp, err)
}

type outcome struct {
	snap     Snapshot
	terminal bool
	changed  bool
	job      models.SyncJob
}

func (o *Orchestrator) apply(ctx context.Context, h *pollHandle, seq uint64, resp *api.Response, err error) bool {
	o.mu.Lock()
	if h.stopped || o.handle != h {
		o.mu.Unlock()
		return true
	}
	if seq <= o.applied {
		// an older request finished after a newer one
		o.mu.Unlock()
		return false
	}
	o.applied = seq

	var out outcome
	switch {
	case errors.Is(err, api.ErrAuthRequired):
		out = o.terminateLocked(h, StateFailed, msgAuthRequired, KindAuthExpired, false)
	case err != nil:
		o.logger.Warn().Err(err).Str("job_id", h.jobID).Msg("Sync status check failed")
		out = o.failureLocked(h, KindNetworkFailure)
	case !resp.OK():
		o.logger.Warn().Int("status", resp.StatusCode).Str("detail", resp.Detail()).Msg("Sync status check rejected")
		kind := KindValidationFailure
		if resp.StatusCode >= http.StatusInternalServerError {
			kind = KindNetworkFailure
		}
		out = o.failureLocked(h, kind)
	default:
		var status models.SyncStatus
		if decodeErr := resp.Decode(&status); decodeErr != nil {
			o.logger.Warn().Err(decodeErr).Msg("Sync status response malformed")
			out = o.failureLocked(h, KindValidationFailure)
			break
		}
		out = o.observeLocked(h, status.Job)
	}
	o.mu.Unlock()

	switch {
	case out.terminal:
		o.afterTerminal(ctx, h, out)
	case out.changed:
		o.emit(out.snap, false)
	}
	return out.terminal
}

// failureLocked counts a failed status check and gives up at the threshold.
func (o *Orchestrator) failureLocked(h *pollHandle, kind ErrorKind) outcome {
	o.snap.Failures++
	if o.snap.Failures >= o.cfg.FailureThreshold {
		return o.terminateLocked(h, StateFailed, msgCheckFailed, kind, true)
	}
	return outcome{}
}

// observeLocked applies a decoded snapshot of the server job.
func (o *Orchestrator) observeLocked(h *pollHandle, job models.SyncJob) outcome {
	o.snap.Failures = 0

	// the server has not materialized our job yet
	if job.ID != h.jobID {
		return outcome{}
	}

	switch {
	case job.Status == models.JobCompleted:
		o.snap.Status = job.Status
		o.snap.BookingsSynced = job.BookingsSynced
		out := o.terminateLocked(h, StateCompleted, fmt.Sprintf(msgCompletedTmpl, job.BookingsSynced), KindNone, false)
		out.job = job
		return out
	case job.Status == models.JobFailed:
		msg := job.ErrorText()
		if msg == "" {
			msg = msgRemoteFailed
		}
		o.snap.Status = job.Status
		out := o.terminateLocked(h, StateFailed, msg, KindRemoteJobFailure, true)
		out.job = job
		return out
	case job.Status.IsActive():
		if o.snap.Status == job.Status && o.snap.Progress == job.ProgressText() {
			return outcome{}
		}
		next := o.snap
		next.Status = job.Status
		next.Progress = job.ProgressText()
		if next.Progress != "" {
			next.Message = next.Progress
		}
		return outcome{snap: o.setLocked(next), changed: true}
	default:
		return outcome{}
	}
}

func (o *Orchestrator) terminateLocked(h *pollHandle, state State, message string, kind ErrorKind, retryable bool) outcome {
	return outcome{snap: o.finishLocked(h, state, message, kind, retryable), terminal: true}
}

// afterTerminal runs the side effects of a finished run outside the lock.
func (o *Orchestrator) afterTerminal(ctx context.Context, h *pollHandle, out outcome) {
	defer close(h.finished)

	o.logger.Info().
		Str("job_id", out.snap.JobID).
		Str("state", string(out.snap.State)).
		Int("attempts", out.snap.Attempts).
		Msg(out.snap.Message)
	o.publishFinal(out.snap)

	if out.snap.ErrorKind == KindAuthExpired {
		return
	}

	postCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), postRunTimeout)
	defer cancel()
	if out.snap.State == StateCompleted || out.snap.State == StateFailed {
		o.refreshHistory(postCtx)
	}
	if out.snap.State == StateCompleted {
		o.scheduleReload(out.job)
	}
}

func (o *Orchestrator) scheduleReload(job models.SyncJob) {
	if o.bus == nil {
		return
	}
	payload := events.DataReloadPayload{JobID: job.ID, BookingsSynced: job.BookingsSynced}
	time.AfterFunc(o.cfg.ReloadDelay, func() {
		if err := o.bus.PublishJSON(events.EventDataReload, payload); err != nil {
			o.logger.Error().Err(err).Msg("Failed to publish data reload")
		}
	})
}

// checkCeiling ends the run once the attempt budget or the deadline is spent.
func (o *Orchestrator) checkCeiling(h *pollHandle) bool {
	o.mu.Lock()
	if h.stopped || o.handle != h {
		o.mu.Unlock()
		return true
	}
	elapsed := o.now().Sub(o.snap.StartedAt)
	if o.snap.Attempts < o.cfg.MaxAttempts && elapsed < o.cfg.Timeout {
		o.mu.Unlock()
		return false
	}
	snap := o.finishLocked(h, StateTimedOut, msgTimedOut, KindClientTimeout, false)
	o.mu.Unlock()

	o.logger.Warn().Str("job_id", snap.JobID).Int("attempts", snap.Attempts).Dur("elapsed", elapsed).Msg("Sync polling timed out")
	o.afterFinish(h, snap)
	return true
}

// stopOnContext handles cancellation of the context the run was started with.
func (o *Orchestrator) stopOnContext(h *pollHandle) {
	o.mu.Lock()
	if h.stopped || o.handle != h {
		o.mu.Unlock()
		return
	}
	snap := o.finishLocked(h, StateCancelled, msgCancelled, KindNone, false)
	o.mu.Unlock()

	o.logger.Info().Str("job_id", h.jobID).Msg("Sync polling cancelled by caller")
	o.afterFinish(h, snap)
}
