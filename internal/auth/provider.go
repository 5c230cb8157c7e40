package auth

import (
	"context"
	"net/http"
)

// Provider defines the interface for credential providers that inject the
// caller's credential into outgoing trigger requests.
type Provider interface {
	// Token returns the credential as it will be sent.
	Token(ctx context.Context) (string, error)

	// InjectHeader writes the credential header into the provided HTTP request.
	InjectHeader(ctx context.Context, req *http.Request) error

	// Close releases any resources held by the provider.
	Close() error
}
