package auth

import (
	"fmt"
	"strings"
)

// Scheme selects how the credential is carried on the wire.
type Scheme string

const (
	SchemeCookie Scheme = "cookie"
	SchemeBearer Scheme = "bearer"
)

// ParseScheme maps a configuration value to a Scheme. Empty means cookie.
func ParseScheme(value string) (Scheme, error) {
	switch Scheme(strings.ToLower(strings.TrimSpace(value))) {
	case "", SchemeCookie:
		return SchemeCookie, nil
	case SchemeBearer:
		return SchemeBearer, nil
	default:
		return "", fmt.Errorf("unsupported auth scheme %q (expected cookie or bearer)", value)
	}
}

// Factory builds the Provider for one credential.
type Factory func(credential string) (Provider, error)

// NewFactory returns a Factory for scheme. cookieName is only used by the
// cookie scheme.
func NewFactory(scheme Scheme, cookieName string) (Factory, error) {
	if strings.ContainsAny(cookieName, "\r\n=; ") {
		return nil, fmt.Errorf("invalid cookie name %q", cookieName)
	}
	switch scheme {
	case "", SchemeCookie:
		return func(credential string) (Provider, error) {
			if err := checkCredential(credential); err != nil {
				return nil, err
			}
			return NewCookieProvider(cookieName, credential), nil
		}, nil
	case SchemeBearer:
		return func(credential string) (Provider, error) {
			if err := checkCredential(credential); err != nil {
				return nil, err
			}
			return NewBearerProvider(credential), nil
		}, nil
	default:
		return nil, fmt.Errorf("unsupported auth scheme %q", scheme)
	}
}

// checkCredential refuses values that would split the header.
func checkCredential(credential string) error {
	if strings.ContainsAny(credential, "\r\n") {
		return fmt.Errorf("credential contains a line break")
	}
	return nil
}
