package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gibster/internal/config"
	"gibster/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	headerRequestID = "X-Request-ID"
	maxBodySize     = 8 << 20
)

// TokenStore is the credential store as seen by the client.
type TokenStore interface {
	Read(ctx context.Context) (string, bool, error)
	Write(ctx context.Context, token string, secure bool) error
	Clear(ctx context.Context) error
}

type requestOptions struct {
	skipAuth bool
	endpoint string
}

// RequestOption tunes a single Request call.
type RequestOption func(*requestOptions)

// WithSkipAuth sends the request without credentials and disables session
// expiry handling. Login and registration use it.
func WithSkipAuth() RequestOption {
	return func(o *requestOptions) { o.skipAuth = true }
}

// WithEndpoint sets the metrics and rate limiter label. Defaults to the path.
func WithEndpoint(name string) RequestOption {
	return func(o *requestOptions) { o.endpoint = name }
}

// Client is the only way to reach the remote service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      TokenStore
	navigator  Navigator
	limiter    *rateLimiter
	logger     *zerolog.Logger
}

func NewClient(cfg config.APIConfig, jar http.CookieJar, store TokenStore, navigator Navigator, logger *zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout, Jar: jar},
		store:      store,
		navigator:  navigator,
		limiter:    newRateLimiter(cfg.RateLimit),
		logger:     logger,
	}
}

// BaseURL returns the remote service root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Request performs one call. It returns ErrAuthRequired after a 401 on an
// authenticated call and *NetworkError when no response arrived; every other
// outcome, including non-2xx statuses, is a *Response.
//
// body may be nil, url.Values (form encoded), []byte, or any JSON-encodable value.
func (c *Client) Request(ctx context.Context, method, path string, body any, opts ...RequestOption) (*Response, error) {
	o := requestOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	endpoint := o.endpoint
	if endpoint == "" {
		endpoint = pathOnly(path)
	}

	if err := c.limiter.wait(ctx, endpoint); err != nil {
		return nil, &NetworkError{Method: method, Path: path, Err: err}
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	if !o.skipAuth {
		c.addAuth(ctx, req)
	}

	log := c.logger.With().
		Str("method", method).
		Str("path", path).
		Str("request_id", req.Header.Get(headerRequestID)).
		Logger()

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.IncAPIRequest(endpoint, 0)
		log.Debug().Err(err).Msg("Remote call failed")
		return nil, &NetworkError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		metrics.IncAPIRequest(endpoint, 0)
		return nil, &NetworkError{Method: method, Path: path, Err: fmt.Errorf("read body: %w", err)}
	}

	metrics.IncAPIRequest(endpoint, resp.StatusCode)
	log.Debug().Int("status", resp.StatusCode).Dur("dur", time.Since(start)).Msg("Remote call")

	if resp.StatusCode == http.StatusUnauthorized && !o.skipAuth {
		c.expireSession(ctx, method, path)
		return nil, ErrAuthRequired
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var (
		reader      io.Reader
		contentType string
	)

	switch b := body.(type) {
	case nil:
	case url.Values:
		reader = strings.NewReader(b.Encode())
		contentType = "application/x-www-form-urlencoded"
	case []byte:
		reader = bytes.NewReader(b)
		contentType = "application/json"
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerRequestID, uuid.NewString())
	return req, nil
}

// addAuth attaches the bearer token when one exists. A missing or unreadable
// token never fails the call.
func (c *Client) addAuth(ctx context.Context, req *http.Request) {
	token, ok, err := c.store.Read(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to read session token")
		return
	}
	if ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func (c *Client) expireSession(ctx context.Context, method, path string) {
	metrics.IncSessionExpired()
	c.logger.Info().Str("method", method).Str("path", path).Msg("Session rejected, signing out")

	// the purge must not be skipped because the caller's context is already done
	if err := c.store.Clear(context.WithoutCancel(ctx)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to clear session token")
	}
	c.navigator.RedirectToLogin(ctx, method, path)
}

func pathOnly(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}
