package models

import "fmt"

// JobStatus is the lifecycle state of a server-side sync job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"

	// JobNeverSynced is reported by the status endpoint before the user has
	// any job at all. It is a placeholder, not a real job.
	JobNeverSynced JobStatus = "never_synced"
)

// IsTerminal reports whether no further polling is meaningful.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// IsActive reports whether the job is still expected to progress.
func (s JobStatus) IsActive() bool {
	return s == JobPending || s == JobRunning
}

// SyncJob is a read-only snapshot of a server-side sync job.
type SyncJob struct {
	ID                string     `json:"id"`
	Status            JobStatus  `json:"status"`
	Progress          *string    `json:"progress"`
	BookingsSynced    int        `json:"bookings_synced"`
	ErrorMessage      *string    `json:"error_message"`
	StartedAt         Timestamp  `json:"started_at"`
	CompletedAt       *Timestamp `json:"completed_at"`
	TriggeredManually bool       `json:"triggered_manually"`
}

// ProgressText returns the progress message or an empty string.
func (j SyncJob) ProgressText() string {
	if j.Progress == nil {
		return ""
	}
	return *j.Progress
}

// ErrorText returns the server error message or an empty string.
func (j SyncJob) ErrorText() string {
	if j.ErrorMessage == nil {
		return ""
	}
	return *j.ErrorMessage
}

// Summary is a one-line human description of the job.
func (j SyncJob) Summary() string {
	switch j.Status {
	case JobCompleted:
		return fmt.Sprintf("%s: %d bookings synced", j.Status, j.BookingsSynced)
	case JobFailed:
		if msg := j.ErrorText(); msg != "" {
			return fmt.Sprintf("%s: %s", j.Status, msg)
		}
		return string(j.Status)
	default:
		if p := j.ProgressText(); p != "" {
			return fmt.Sprintf("%s: %s", j.Status, p)
		}
		return string(j.Status)
	}
}

// SyncStatus is the latest status snapshot. It is always replaced as a whole.
type SyncStatus struct {
	Job        SyncJob    `json:"job"`
	LastSyncAt *Timestamp `json:"last_sync_at"`
}

// SyncStartResult is returned by the start-sync endpoint. When a job is
// already in progress the server returns that job's id instead of a new one.
type SyncStartResult struct {
	JobID   string    `json:"job_id"`
	Message string    `json:"message"`
	Status  JobStatus `json:"status"`
}

// SyncHistory is the envelope of the history endpoint, most recent first.
type SyncHistory struct {
	Jobs []SyncJob `json:"jobs"`
}
