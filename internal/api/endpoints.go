package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"gibster/internal/models"
)

const (
	pathSync       = "/api/v1/user/sync"
	pathSyncStatus = "/api/v1/user/sync/status"
	pathHistory    = "/api/v1/user/sync/history"
	pathProfile    = "/api/v1/user/profile"
	pathBookings   = "/api/v1/user/bookings"
	pathToken      = "/api/v1/auth/token"
	pathRegister   = "/api/v1/auth/register"
)

func (c *Client) StartSync(ctx context.Context) (*Response, error) {
	return c.Request(ctx, http.MethodPost, pathSync, nil, WithEndpoint("sync_start"))
}

func (c *Client) SyncStatus(ctx context.Context) (*Response, error) {
	return c.Request(ctx, http.MethodGet, pathSyncStatus, nil, WithEndpoint("sync_status"))
}

func (c *Client) SyncHistory(ctx context.Context, limit int) (*Response, error) {
	path := pathHistory
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	return c.Request(ctx, http.MethodGet, path, nil, WithEndpoint("sync_history"))
}

func (c *Client) JobLogs(ctx context.Context, jobID string, q models.LogQuery) (*Response, error) {
	params := url.Values{}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Level != "" {
		params.Set("level", string(q.Level))
	}

	path := fmt.Sprintf("/api/v1/user/sync/job/%s/logs", url.PathEscape(jobID))
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	return c.Request(ctx, http.MethodGet, path, nil, WithEndpoint("sync_job_logs"))
}

func (c *Client) Profile(ctx context.Context) (*Response, error) {
	return c.Request(ctx, http.MethodGet, pathProfile, nil, WithEndpoint("profile"))
}

func (c *Client) Bookings(ctx context.Context) (*Response, error) {
	return c.Request(ctx, http.MethodGet, pathBookings, nil, WithEndpoint("bookings"))
}

// Login exchanges credentials for a token. It never triggers session expiry handling.
func (c *Client) Login(ctx context.Context, email, password string) (*Response, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)
	return c.Request(ctx, http.MethodPost, pathToken, form, WithSkipAuth(), WithEndpoint("auth_token"))
}

func (c *Client) Register(ctx context.Context, email, password string) (*Response, error) {
	body := models.RegisterRequest{Email: email, Password: password}
	return c.Request(ctx, http.MethodPost, pathRegister, body, WithSkipAuth(), WithEndpoint("auth_register"))
}

// SignIn logs in and stores the token in the credential store.
func (c *Client) SignIn(ctx context.Context, email, password string, secure bool) (*models.TokenResponse, error) {
	token, err := Result[models.TokenResponse](c.Login(ctx, email, password))
	if err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("login response carries no access token")
	}
	if err := c.store.Write(ctx, token.AccessToken, secure); err != nil {
		return nil, err
	}
	return token, nil
}

// SignOut forgets the local session. The remote service keeps no session state.
func (c *Client) SignOut(ctx context.Context) error {
	return c.store.Clear(ctx)
}
