package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"gibster/internal/api"
	"gibster/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testJobID = "3f2504e0-4f89-41d3-9a0c-0305e82c3301"
	testToken = "token-abc"
)

// fakeService imitates the remote booking service.
type fakeService struct {
	mu          sync.Mutex
	revoked     bool
	statusCalls int
	lastLevel   string
}

func (f *fakeService) authorized(r *http.Request) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.revoked && r.Header.Get("Authorization") == "Bearer "+testToken
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON := func(code int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(v)
	}

	if r.URL.Path == "/api/v1/auth/token" {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("password") != "secret" {
			writeJSON(http.StatusUnauthorized, map[string]string{"detail": "Incorrect email or password"})
			return
		}
		writeJSON(http.StatusOK, models.TokenResponse{AccessToken: testToken, TokenType: "bearer"})
		return
	}
	if !f.authorized(r) {
		writeJSON(http.StatusUnauthorized, map[string]string{"detail": "Could not validate credentials"})
		return
	}

	progress := "Logging in"
	switch r.URL.Path {
	case "/api/v1/user/profile":
		writeJSON(http.StatusOK, models.User{ID: "u1", Email: "me@example.com", CalendarUUID: "cal-1"})
	case "/api/v1/user/sync":
		writeJSON(http.StatusOK, models.SyncStartResult{JobID: testJobID, Status: models.JobPending, Message: "Sync started"})
	case "/api/v1/user/sync/status":
		f.mu.Lock()
		f.statusCalls++
		calls := f.statusCalls
		f.mu.Unlock()
		job := models.SyncJob{ID: testJobID, Status: models.JobRunning, Progress: &progress}
		if calls >= 3 {
			job = models.SyncJob{ID: testJobID, Status: models.JobCompleted, BookingsSynced: 3}
		}
		writeJSON(http.StatusOK, models.SyncStatus{Job: job})
	case "/api/v1/user/sync/history":
		writeJSON(http.StatusOK, models.SyncHistory{Jobs: []models.SyncJob{{ID: testJobID, Status: models.JobCompleted, BookingsSynced: 3}}})
	case "/api/v1/user/sync/job/" + testJobID + "/logs":
		f.mu.Lock()
		f.lastLevel = r.URL.Query().Get("level")
		f.mu.Unlock()
		writeJSON(http.StatusOK, models.SyncJobLogPage{
			Logs:  []models.SyncJobLog{{ID: "l1", SyncJobID: testJobID, Level: models.LogError, Message: "scraper hiccup"}},
			Total: 1, Page: 1, Limit: 100,
		})
	case "/api/v1/user/bookings":
		price := 25.0
		writeJSON(http.StatusOK, []models.Booking{{ID: "b1", Name: "Rehearsal", Studio: "Studio A", Price: &price}})
	default:
		http.NotFound(w, r)
	}
}

type testEnv struct {
	t       *testing.T
	service *fakeService
	config  string
	dir     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	service := &fakeService{}
	ts := httptest.NewServer(service)
	t.Cleanup(ts.Close)

	dir := t.TempDir()
	cfg := fmt.Sprintf(`
api:
  base_url: %s
session:
  backend: sqlite
  sqlite_path: %s
sync:
  startup_delay: 1ms
  poll_interval: 1ms
  reload_delay: 1ms
logging:
  level: error
exports:
  path: %s
`, ts.URL, filepath.Join(dir, "session.db"), filepath.Join(dir, "exports"))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))

	t.Setenv(passwordEnv, "secret")
	return &testEnv{t: t, service: service, config: path, dir: dir}
}

func (e *testEnv) run(args ...string) (string, error) {
	e.t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(append([]string{"--config", e.config}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLoginStatusLogout(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run("status")
	require.NoError(t, err)
	assert.Contains(t, out, "Not logged in")

	out, err = env.run("login", "--email", "me@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as me@example.com")

	out, err = env.run("status")
	require.NoError(t, err)
	assert.Contains(t, out, "Session:   stored (opaque token)")
	assert.Contains(t, out, "Account:   me@example.com")
	assert.Contains(t, out, "/calendar/cal-1.ics")

	out, err = env.run("logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")

	out, err = env.run("status")
	require.NoError(t, err)
	assert.Contains(t, out, "Not logged in")
}

func TestLoginRejected(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv(passwordEnv, "wrong")

	_, err := env.run("login", "--email", "me@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Incorrect email or password")
	assert.NotErrorIs(t, err, api.ErrAuthRequired)
}

func TestSyncFollowsJob(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run("login", "--email", "me@example.com")
	require.NoError(t, err)

	out, err := env.run("sync")
	require.NoError(t, err)
	assert.Contains(t, out, "Starting sync...")
	assert.Contains(t, out, "[3f2504e0] Logging in")
	assert.Contains(t, out, "✓ Sync completed successfully! 3 bookings were synced.")
}

func TestSyncDetach(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run("login", "--email", "me@example.com")
	require.NoError(t, err)

	out, err := env.run("sync", "--detach")
	require.NoError(t, err)
	assert.Contains(t, out, "Sync started, job "+testJobID)
}

func TestSessionExpiredMidCommand(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run("login", "--email", "me@example.com")
	require.NoError(t, err)

	env.service.mu.Lock()
	env.service.revoked = true
	env.service.mu.Unlock()

	_, err = env.run("status")
	assert.ErrorIs(t, err, api.ErrAuthRequired)

	// the 401 purged the stored token
	out, err := env.run("status")
	require.NoError(t, err)
	assert.Contains(t, out, "Not logged in")
}

func TestHistoryAndExport(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run("login", "--email", "me@example.com")
	require.NoError(t, err)

	out, err := env.run("history", "--export", "history.xlsx", "--with-logs")
	require.NoError(t, err)
	assert.Contains(t, out, testJobID)
	assert.Contains(t, out, "completed")

	exported := filepath.Join(env.dir, "exports", "history.xlsx")
	assert.Contains(t, out, "Exported to "+exported)
	_, err = os.Stat(exported)
	assert.NoError(t, err)
}

func TestLogsCommand(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run("login", "--email", "me@example.com")
	require.NoError(t, err)

	out, err := env.run("logs", testJobID, "--level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "scraper hiccup")
	assert.Contains(t, out, "Page 1 of 1 (1 entries)")

	env.service.mu.Lock()
	assert.Equal(t, "ERROR", env.service.lastLevel)
	env.service.mu.Unlock()

	_, err = env.run("logs", "not-a-job", "--level", "error")
	require.Error(t, err)

	_, err = env.run("logs", testJobID, "--limit", "1000")
	require.Error(t, err)
}

func TestBookingsCommand(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run("login", "--email", "me@example.com")
	require.NoError(t, err)

	out, err := env.run("bookings")
	require.NoError(t, err)
	assert.Contains(t, out, "Rehearsal")
	assert.Contains(t, out, "25.00")
}

func TestUnknownBackend(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run("--session-backend", "floppy", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown session backend "floppy"`)
}
