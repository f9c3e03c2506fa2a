package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"gibster/internal/domain"
	"gibster/internal/models"

	"github.com/rs/zerolog"
)

// ErrCookieRejected means the jar did not keep the token cookie, for example
// a Secure cookie for a plain http origin.
var ErrCookieRejected = errors.New("token cookie rejected by jar")

// Store is the credential store. The token lives in the key/value location
// and in the cookie location, or in neither.
type Store struct {
	kv      domain.KeyValueStore
	cookies *CookieStore
	origin  string
	key     string
	logger  *zerolog.Logger
}

// Origin reduces a base URL to scheme://host, the scope of stored values.
func Origin(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse origin: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("origin requires scheme and host: %q", rawURL)
	}
	return u.Scheme + "://" + u.Host, nil
}

func NewStore(kv domain.KeyValueStore, cookies *CookieStore, origin, key string, logger *zerolog.Logger) *Store {
	if key == "" {
		key = models.DefaultTokenKey
	}
	return &Store{
		kv:      kv,
		cookies: cookies,
		origin:  origin,
		key:     key,
		logger:  logger,
	}
}

// Read returns the key/value copy when present, otherwise the cookie copy.
func (s *Store) Read(ctx context.Context) (string, bool, error) {
	token, ok, err := s.kv.Get(ctx, s.origin, s.key)
	if err == nil && ok && token != "" {
		return token, true, nil
	}

	if cookie, found := s.cookies.Get(); found {
		if err != nil {
			s.logger.Warn().Err(err).Msg("Token key/value read failed, using cookie copy")
		}
		return cookie, true, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("read token: %w", err)
	}
	return "", false, nil
}

// Write stores token in both locations. When either write fails nothing is
// left behind.
func (s *Store) Write(ctx context.Context, token string, secure bool) error {
	if token == "" {
		return errors.New("token must not be empty")
	}

	if err := s.setCookie(token, secure); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	if err := s.kv.Set(ctx, s.origin, s.key, token); err != nil {
		s.cookies.Delete()
		return fmt.Errorf("write token: %w", err)
	}

	s.logger.Debug().Str("origin", s.origin).Msg("Session token stored")
	return nil
}

// Clear removes the token from both locations. Clearing an empty store is not an error.
func (s *Store) Clear(ctx context.Context) error {
	s.cookies.Delete()

	if err := s.kv.Delete(ctx, s.origin, s.key); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}

	s.logger.Debug().Str("origin", s.origin).Msg("Session token cleared")
	return nil
}

// Restore copies a persisted token back into a fresh cookie jar, so a new
// process starts with the token in both locations.
func (s *Store) Restore(ctx context.Context, secure bool) error {
	token, ok, err := s.kv.Get(ctx, s.origin, s.key)
	if err != nil {
		return fmt.Errorf("restore token: %w", err)
	}
	if !ok || token == "" {
		return nil
	}
	if _, found := s.cookies.Get(); found {
		return nil
	}
	if err := s.setCookie(token, secure); err != nil {
		return fmt.Errorf("restore token: %w", err)
	}
	return nil
}

func (s *Store) setCookie(token string, secure bool) error {
	s.cookies.Set(token, secure)
	if got, found := s.cookies.Get(); !found || got != token {
		s.cookies.Delete()
		return ErrCookieRejected
	}
	return nil
}
