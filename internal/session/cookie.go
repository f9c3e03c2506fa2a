package session

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"gibster/internal/models"

	"golang.org/x/net/publicsuffix"
)

// CookieStore keeps the token as a cookie in the jar shared with the HTTP
// client, so the remote service sees the same value the store reports.
type CookieStore struct {
	jar    http.CookieJar
	origin *url.URL
	name   string
	maxAge time.Duration
}

// NewCookieJar returns a jar that applies public suffix domain rules.
func NewCookieJar() (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return jar, nil
}

func NewCookieStore(jar http.CookieJar, origin, name string) (*CookieStore, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("parse cookie origin: %w", err)
	}
	if name == "" {
		name = models.DefaultTokenCookieName
	}
	return &CookieStore{
		jar:    jar,
		origin: &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"},
		name:   name,
		maxAge: models.TokenCookieMaxAge,
	}, nil
}

// Jar returns the underlying jar for use by an http.Client.
func (c *CookieStore) Jar() http.CookieJar {
	return c.jar
}

func (c *CookieStore) Get() (string, bool) {
	for _, cookie := range c.jar.Cookies(c.origin) {
		if cookie.Name == c.name && cookie.Value != "" {
			return cookie.Value, true
		}
	}
	return "", false
}

func (c *CookieStore) Set(value string, secure bool) {
	c.jar.SetCookies(c.origin, []*http.Cookie{{
		Name:     c.name,
		Value:    value,
		Path:     "/",
		Expires:  time.Now().Add(c.maxAge),
		MaxAge:   int(c.maxAge / time.Second),
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}})
}

// Delete expires the cookie. Deleting an absent cookie is a no-op.
func (c *CookieStore) Delete() {
	c.jar.SetCookies(c.origin, []*http.Cookie{{
		Name:   c.name,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	}})
}
