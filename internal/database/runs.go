package database

import (
	"context"
	"fmt"
	"time"
)

// SyncRun is one finished orchestrator run as seen by this client.
type SyncRun struct {
	ID         int64
	JobID      string
	State      string
	Message    string
	ErrorKind  string
	Attempts   int
	StartedAt  time.Time
	FinishedAt time.Time
}

func (db *DB) RecordSyncRun(ctx context.Context, run *SyncRun) error {
	query := `INSERT INTO sync_runs (job_id, state, message, error_kind, attempts, started_at, finished_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)`
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}
	result, err := db.ExecContext(ctx, query,
		run.JobID,
		run.State,
		run.Message,
		run.ErrorKind,
		run.Attempts,
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record sync run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	run.ID = id
	return nil
}

// RecentSyncRuns returns the latest runs, most recent first.
func (db *DB) RecentSyncRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	query := `SELECT id, job_id, state, message, error_kind, attempts, started_at, finished_at
              FROM sync_runs ORDER BY finished_at DESC, id DESC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync runs: %w", err)
	}
	defer rows.Close()

	var runs []SyncRun
	for rows.Next() {
		var r SyncRun
		if err := rows.Scan(&r.ID, &r.JobID, &r.State, &r.Message, &r.ErrorKind, &r.Attempts, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
