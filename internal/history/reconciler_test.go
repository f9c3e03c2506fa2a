package history

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gibster/internal/api"
	"gibster/internal/models"
	"gibster/internal/worker"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJobID = "7c9e6679-7425-40de-944b-e07fc1f90ae7"

type fakeHistoryAPI struct {
	mu      sync.Mutex
	history func(call int, limit int) (*api.Response, error)
	logs    func(call int, q models.LogQuery) (*api.Response, error)
	hCalls  int
	lCalls  int
	queries []models.LogQuery
}

func (f *fakeHistoryAPI) SyncHistory(ctx context.Context, limit int) (*api.Response, error) {
	f.mu.Lock()
	f.hCalls++
	call := f.hCalls
	fn := f.history
	f.mu.Unlock()
	return fn(call, limit)
}

func (f *fakeHistoryAPI) JobLogs(ctx context.Context, jobID string, q models.LogQuery) (*api.Response, error) {
	f.mu.Lock()
	f.lCalls++
	call := f.lCalls
	f.queries = append(f.queries, q)
	fn := f.logs
	f.mu.Unlock()
	return fn(call, q)
}

func jsonResp(t *testing.T, code int, v any) *api.Response {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return &api.Response{StatusCode: code, Header: http.Header{}, Body: body}
}

func jobs(ids ...string) models.SyncHistory {
	out := models.SyncHistory{}
	for _, id := range ids {
		out.Jobs = append(out.Jobs, models.SyncJob{ID: id, Status: models.JobCompleted})
	}
	return out
}

func newReconciler(client HistoryAPI) *Reconciler {
	logger := zerolog.Nop()
	return NewReconciler(client, worker.RetryPolicy{InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}, &logger)
}

func TestRefreshReplacesList(t *testing.T) {
	fake := &fakeHistoryAPI{
		history: func(call, limit int) (*api.Response, error) {
			if call == 1 {
				return jsonResp(t, http.StatusOK, jobs("a", "b", "c")), nil
			}
			return jsonResp(t, http.StatusOK, jobs("d")), nil
		},
	}
	r := newReconciler(fake)

	got, err := r.Refresh(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = r.Refresh(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "d", got[0].ID)
	assert.Equal(t, []models.SyncJob{{ID: "d", Status: models.JobCompleted}}, r.Jobs())
	assert.False(t, r.UpdatedAt().IsZero())
}

func TestRefreshTruncatesToLimit(t *testing.T) {
	var gotLimit int
	fake := &fakeHistoryAPI{
		history: func(call, limit int) (*api.Response, error) {
			gotLimit = limit
			return jsonResp(t, http.StatusOK, jobs("a", "b", "c")), nil
		},
	}
	r := newReconciler(fake)

	got, err := r.Refresh(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, gotLimit)
	assert.Len(t, got, 2)
}

func TestRefreshDefaultLimit(t *testing.T) {
	var gotLimit int
	fake := &fakeHistoryAPI{
		history: func(call, limit int) (*api.Response, error) {
			gotLimit = limit
			return jsonResp(t, http.StatusOK, jobs()), nil
		},
	}
	r := newReconciler(fake)

	_, err := r.Refresh(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultHistoryLimit, gotLimit)
}

func TestRefreshFailureKeepsList(t *testing.T) {
	fake := &fakeHistoryAPI{
		history: func(call, limit int) (*api.Response, error) {
			if call == 1 {
				return jsonResp(t, http.StatusOK, jobs("a")), nil
			}
			return jsonResp(t, http.StatusInternalServerError, map[string]string{"detail": "boom"}), nil
		},
	}
	r := newReconciler(fake)

	_, err := r.Refresh(context.Background(), 5)
	require.NoError(t, err)

	_, err = r.Refresh(context.Background(), 5)
	var statusErr *api.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, "boom", statusErr.Detail)
	assert.Len(t, r.Jobs(), 1)
}

func TestRefreshDropsStaleResult(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	fake := &fakeHistoryAPI{
		history: func(call, limit int) (*api.Response, error) {
			if call == 1 {
				close(entered)
				<-release
				return jsonResp(t, http.StatusOK, jobs("old")), nil
			}
			return jsonResp(t, http.StatusOK, jobs("new")), nil
		},
	}
	r := newReconciler(fake)

	done := make(chan []models.SyncJob)
	go func() {
		got, _ := r.Refresh(context.Background(), 5)
		done <- got
	}()
	<-entered

	_, err := r.Refresh(context.Background(), 5)
	require.NoError(t, err)
	close(release)

	stale := <-done
	require.Len(t, stale, 1)
	assert.Equal(t, "new", stale[0].ID)
	assert.Equal(t, "new", r.Jobs()[0].ID)
}

func TestJobsReturnsCopy(t *testing.T) {
	fake := &fakeHistoryAPI{
		history: func(call, limit int) (*api.Response, error) {
			return jsonResp(t, http.StatusOK, jobs("a")), nil
		},
	}
	r := newReconciler(fake)
	_, err := r.Refresh(context.Background(), 5)
	require.NoError(t, err)

	list := r.Jobs()
	list[0].ID = "mutated"
	assert.Equal(t, "a", r.Jobs()[0].ID)
}

func TestRunStopsOnAuthRequired(t *testing.T) {
	fake := &fakeHistoryAPI{
		history: func(call, limit int) (*api.Response, error) {
			if call < 3 {
				return jsonResp(t, http.StatusOK, jobs("a")), nil
			}
			return nil, api.ErrAuthRequired
		},
	}
	r := newReconciler(fake)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := r.Run(ctx, time.Millisecond, 5)
	assert.ErrorIs(t, err, api.ErrAuthRequired)
}

func TestRunBacksOffAndRecovers(t *testing.T) {
	var calls atomic.Int32
	fake := &fakeHistoryAPI{
		history: func(call, limit int) (*api.Response, error) {
			calls.Add(1)
			if call <= 2 {
				return nil, &api.NetworkError{Method: http.MethodGet, Path: "/api/v1/user/sync/history", Err: errors.New("refused")}
			}
			return jsonResp(t, http.StatusOK, jobs("a")), nil
		},
	}
	r := newReconciler(fake)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx, time.Millisecond, 5) }()

	require.Eventually(t, func() bool { return len(r.Jobs()) == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestRunGivesUpAfterMaxRetries(t *testing.T) {
	fake := &fakeHistoryAPI{
		history: func(call, limit int) (*api.Response, error) {
			return nil, &api.NetworkError{Method: http.MethodGet, Path: "/api/v1/user/sync/history", Err: errors.New("refused")}
		},
	}
	logger := zerolog.Nop()
	r := NewReconciler(fake, worker.RetryPolicy{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}, &logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := r.Run(ctx, time.Millisecond, 5)
	assert.ErrorIs(t, err, ErrRefreshGaveUp)
	var netErr *api.NetworkError
	assert.ErrorAs(t, err, &netErr)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, 4, fake.hCalls, "first attempt plus three retries")
}

func TestFetchLogsNormalizesQuery(t *testing.T) {
	page := models.SyncJobLogPage{
		Logs:  []models.SyncJobLog{{ID: "1", SyncJobID: testJobID, Level: models.LogInfo, Message: "started"}},
		Total: 1, Page: 1, Limit: 100,
	}
	fake := &fakeHistoryAPI{
		logs: func(call int, q models.LogQuery) (*api.Response, error) {
			return jsonResp(t, http.StatusOK, page), nil
		},
	}
	r := newReconciler(fake)

	got, err := r.FetchLogs(context.Background(), testJobID, models.LogQuery{Level: "info"})
	require.NoError(t, err)
	assert.Equal(t, 1, got.Total)
	require.Len(t, fake.queries, 1)
	assert.Equal(t, models.LogQuery{Page: 1, Limit: models.DefaultLogPageSize, Level: models.LogInfo}, fake.queries[0])
}

func TestFetchLogsValidation(t *testing.T) {
	fake := &fakeHistoryAPI{
		logs: func(call int, q models.LogQuery) (*api.Response, error) {
			t.Fatal("request must not be sent")
			return nil, nil
		},
	}
	r := newReconciler(fake)

	tests := []struct {
		name  string
		jobID string
		query models.LogQuery
	}{
		{"bad job id", "not-a-uuid", models.LogQuery{}},
		{"negative page", testJobID, models.LogQuery{Page: -1}},
		{"limit too large", testJobID, models.LogQuery{Limit: models.MaxLogPageSize + 1}},
		{"negative limit", testJobID, models.LogQuery{Limit: -5}},
		{"unknown level", testJobID, models.LogQuery{Level: "TRACE"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.FetchLogs(context.Background(), tt.jobID, tt.query)
			assert.ErrorIs(t, err, ErrInvalidLogQuery)
		})
	}
}

func TestFetchLogsSupersededPage(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	fake := &fakeHistoryAPI{
		logs: func(call int, q models.LogQuery) (*api.Response, error) {
			if call == 1 {
				close(entered)
				<-release
			}
			return jsonResp(t, http.StatusOK, models.SyncJobLogPage{Page: q.Page, Limit: q.Limit}), nil
		},
	}
	r := newReconciler(fake)

	errCh := make(chan error, 1)
	go func() {
		_, err := r.FetchLogs(context.Background(), testJobID, models.LogQuery{Page: 1})
		errCh <- err
	}()
	<-entered

	page, err := r.FetchLogs(context.Background(), testJobID, models.LogQuery{Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Page)

	close(release)
	assert.ErrorIs(t, <-errCh, ErrStaleLogPage)
}

func TestFetchLogsNotCached(t *testing.T) {
	fake := &fakeHistoryAPI{
		logs: func(call int, q models.LogQuery) (*api.Response, error) {
			return jsonResp(t, http.StatusOK, models.SyncJobLogPage{Total: call}), nil
		},
	}
	r := newReconciler(fake)

	first, err := r.FetchLogs(context.Background(), testJobID, models.LogQuery{})
	require.NoError(t, err)
	second, err := r.FetchLogs(context.Background(), testJobID, models.LogQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Total)
	assert.Equal(t, 2, second.Total)
}

func TestFetchLogsAuthRequired(t *testing.T) {
	fake := &fakeHistoryAPI{
		logs: func(call int, q models.LogQuery) (*api.Response, error) {
			return nil, api.ErrAuthRequired
		},
	}
	r := newReconciler(fake)

	_, err := r.FetchLogs(context.Background(), testJobID, models.LogQuery{})
	assert.ErrorIs(t, err, api.ErrAuthRequired)
}
