package auth

import (
	"context"
	"net/http"
)

// DefaultCookieName is the session cookie the trigger service expects.
const DefaultCookieName = "_BEAMER"

// CookieProvider sends the credential as a single session cookie.
type CookieProvider struct {
	name  string
	value string
}

// NewCookieProvider creates a provider that sends "Cookie: <name>=<value>".
// An empty name falls back to DefaultCookieName.
func NewCookieProvider(name, value string) *CookieProvider {
	if name == "" {
		name = DefaultCookieName
	}
	return &CookieProvider{name: name, value: value}
}

func (p *CookieProvider) Token(ctx context.Context) (string, error) {
	return p.value, nil
}

// InjectHeader replaces any Cookie header on req. The value is written
// verbatim, without the quoting net/http applies to cookies it builds.
func (p *CookieProvider) InjectHeader(ctx context.Context, req *http.Request) error {
	req.Header.Set("Cookie", p.name+"="+p.value)
	return nil
}

func (p *CookieProvider) Close() error {
	return nil
}
