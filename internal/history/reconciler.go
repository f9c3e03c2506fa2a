package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gibster/internal/api"
	"gibster/internal/models"
	"gibster/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrStaleLogPage is returned when a newer FetchLogs call for the same
	// job was issued while this one was in flight.
	ErrStaleLogPage = errors.New("log page superseded by a newer request")

	ErrInvalidLogQuery = errors.New("invalid log query")

	// ErrRefreshGaveUp ends Run once the retry policy is exhausted.
	ErrRefreshGaveUp = errors.New("history refresh gave up")
)

// HistoryAPI is the part of the API client the reconciler reads from.
type HistoryAPI interface {
	SyncHistory(ctx context.Context, limit int) (*api.Response, error)
	JobLogs(ctx context.Context, jobID string, q models.LogQuery) (*api.Response, error)
}

// Reconciler keeps the recent-jobs list. The list is only ever replaced as a whole.
type Reconciler struct {
	api    HistoryAPI
	retry  worker.RetryPolicy
	logger *zerolog.Logger

	mu        sync.Mutex
	jobs      []models.SyncJob
	updatedAt time.Time
	issued    uint64
	applied   uint64
	logSeq    map[string]uint64
}

func NewReconciler(client HistoryAPI, retry worker.RetryPolicy, logger *zerolog.Logger) *Reconciler {
	return &Reconciler{
		api:    client,
		retry:  retry,
		logger: logger,
		logSeq: make(map[string]uint64),
	}
}

// Refresh fetches up to limit jobs and replaces the list. A result that
// arrives after a newer refresh was applied is dropped and the current list
// is returned instead.
func (r *Reconciler) Refresh(ctx context.Context, limit int) ([]models.SyncJob, error) {
	if limit <= 0 {
		limit = models.DefaultHistoryLimit
	}

	r.mu.Lock()
	r.issued++
	seq := r.issued
	r.mu.Unlock()

	history, err := api.Result[models.SyncHistory](r.api.SyncHistory(ctx, limit))
	if err != nil {
		return nil, fmt.Errorf("refresh history: %w", err)
	}

	jobs := history.Jobs
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if seq < r.applied {
		r.logger.Debug().Uint64("seq", seq).Uint64("applied", r.applied).Msg("Dropping stale history result")
		return cloneJobs(r.jobs), nil
	}
	r.applied = seq
	r.jobs = cloneJobs(jobs)
	r.updatedAt = time.Now()
	return cloneJobs(jobs), nil
}

// Jobs returns a copy of the current list, most recent first.
func (r *Reconciler) Jobs() []models.SyncJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneJobs(r.jobs)
}

// UpdatedAt is when the list was last replaced.
func (r *Reconciler) UpdatedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updatedAt
}

// Run refreshes the list every interval until ctx is done, backing off
// while refreshes fail. An expired session or more consecutive failures than
// the retry policy allows ends the loop.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration, limit int) error {
	failures := 0
	for {
		wait := interval
		if _, err := r.Refresh(ctx, limit); err != nil {
			if errors.Is(err, api.ErrAuthRequired) {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			if r.retry.Exhausted(failures) {
				return fmt.Errorf("%w after %d failures: %w", ErrRefreshGaveUp, failures-1, err)
			}
			wait = r.retry.NextDelay(failures)
			r.logger.Warn().Err(err).Int("failures", failures).Dur("retry_in", wait).Msg("History refresh failed")
		} else {
			failures = 0
		}

		if err := worker.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// FetchLogs returns one page of a job's logs. Pages are never cached.
func (r *Reconciler) FetchLogs(ctx context.Context, jobID string, q models.LogQuery) (*models.SyncJobLogPage, error) {
	q, err := normalizeQuery(jobID, q)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.logSeq[jobID]++
	seq := r.logSeq[jobID]
	r.mu.Unlock()

	page, err := api.Result[models.SyncJobLogPage](r.api.JobLogs(ctx, jobID, q))

	r.mu.Lock()
	current := r.logSeq[jobID]
	r.mu.Unlock()
	if seq != current {
		return nil, ErrStaleLogPage
	}
	if err != nil {
		return nil, fmt.Errorf("fetch logs: %w", err)
	}
	return page, nil
}

func normalizeQuery(jobID string, q models.LogQuery) (models.LogQuery, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return q, fmt.Errorf("%w: job id %q is not a uuid", ErrInvalidLogQuery, jobID)
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Limit == 0 {
		q.Limit = models.DefaultLogPageSize
	}
	if q.Page < 1 {
		return q, fmt.Errorf("%w: page must be at least 1", ErrInvalidLogQuery)
	}
	if q.Limit < 1 || q.Limit > models.MaxLogPageSize {
		return q, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidLogQuery, models.MaxLogPageSize)
	}
	level, err := models.ParseLogLevel(string(q.Level))
	if err != nil {
		return q, fmt.Errorf("%w: %v", ErrInvalidLogQuery, err)
	}
	q.Level = level
	return q, nil
}

func cloneJobs(jobs []models.SyncJob) []models.SyncJob {
	if jobs == nil {
		return nil
	}
	out := make([]models.SyncJob, len(jobs))
	copy(out, jobs)
	return out
}
