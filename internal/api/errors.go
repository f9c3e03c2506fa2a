package api

import (
	"errors"
	"fmt"
)

// ErrAuthRequired is returned when the remote service rejected the session.
// By the time a caller sees it the token is gone and the login redirect was issued.
var ErrAuthRequired = errors.New("authentication required")

// NetworkError means no HTTP response was obtained.
type NetworkError struct {
	Method string
	Path   string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: network error: %v", e.Method, e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// StatusError is a non-2xx response turned into an error by the typed helpers.
type StatusError struct {
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("http %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("http %d", e.StatusCode)
}

// IsNetwork reports whether err carries a *NetworkError.
func IsNetwork(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}
