package orchestrator

import (
	"errors"
	"time"

	"gibster/internal/models"
)

// State is the orchestrator's lifecycle position.
type State string

const (
	StateIdle      State = "idle"
	StateStarting  State = "starting"
	StatePolling   State = "polling"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
	StateCancelled State = "cancelled"
)

// IsTerminal reports whether the run is over. Terminal states accept a new
// StartSync the same way idle does.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateTimedOut, StateCancelled:
		return true
	}
	return false
}

// Busy reports whether a run is in flight.
func (s State) Busy() bool {
	return s == StateStarting || s == StatePolling
}

// ErrorKind classifies why a run did not complete.
type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindAuthExpired       ErrorKind = "AuthExpired"
	KindNetworkFailure    ErrorKind = "NetworkFailure"
	KindRemoteJobFailure  ErrorKind = "RemoteJobFailure"
	KindClientTimeout     ErrorKind = "ClientTimeout"
	KindValidationFailure ErrorKind = "ValidationFailure"
)

var (
	ErrSyncInProgress = errors.New("a sync is already in progress")
	ErrNotPolling     = errors.New("no sync is being polled")
)

const (
	msgStarting      = "Starting sync..."
	msgStartFailed   = "Failed to start sync"
	msgCheckFailed   = "Failed to check sync status"
	msgRemoteFailed  = "Sync failed"
	msgTimedOut      = "Sync is taking longer than expected. It may still be running on the server."
	msgCancelled     = "Stopped watching the sync. It may still be running on the server."
	msgAuthRequired  = "Authentication required"
	msgCompletedTmpl = "Sync completed successfully! %d bookings were synced."
)

// Snapshot is a consistent copy of the orchestrator state.
type Snapshot struct {
	Version        uint64           `json:"version"`
	State          State            `json:"state"`
	JobID          string           `json:"job_id,omitempty"`
	Status         models.JobStatus `json:"status,omitempty"`
	Progress       string           `json:"progress,omitempty"`
	Message        string           `json:"message,omitempty"`
	BookingsSynced int              `json:"bookings_synced,omitempty"`
	Attempts       int              `json:"attempts"`
	Failures       int              `json:"failures"`
	Retryable      bool             `json:"retryable"`
	ErrorKind      ErrorKind        `json:"error_kind,omitempty"`
	StartedAt      time.Time        `json:"started_at,omitempty"`
	UpdatedAt      time.Time        `json:"updated_at,omitempty"`
}
