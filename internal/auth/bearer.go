package auth

import (
	"context"
	"net/http"
	"strings"
)

// BearerProvider sends the credential as "Authorization: Bearer <token>".
type BearerProvider struct {
	token string
}

// NewBearerProvider accepts the token with or without a leading "Bearer "
// so a header value copied from a browser session can be pasted as is.
func NewBearerProvider(credential string) *BearerProvider {
	token := credential
	if len(token) > len("bearer ") && strings.EqualFold(token[:len("bearer ")], "bearer ") {
		token = strings.TrimSpace(token[len("bearer "):])
	}
	return &BearerProvider{token: token}
}

func (p *BearerProvider) Token(ctx context.Context) (string, error) {
	return p.token, nil
}

// InjectHeader replaces any Authorization header on req.
func (p *BearerProvider) InjectHeader(ctx context.Context, req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+p.token)
	return nil
}

func (p *BearerProvider) Close() error {
	return nil
}
