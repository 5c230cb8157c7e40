package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/torosent/rulefire/internal/config"
	"github.com/torosent/rulefire/internal/feeder"
)

// AuthProvider supplies the credential and injects it into HTTP requests.
type AuthProvider interface {
	Token(ctx context.Context) (string, error)
	InjectHeader(ctx context.Context, req *http.Request) error
	Close() error
}

// Payload is the JSON body of one trigger call.
type Payload struct {
	System string `json:"system"`
	RuleID string `json:"ruleId"`
	GameID string `json:"gameId"`
}

// PayloadFor maps a parsed row onto the request body.
func PayloadFor(item feeder.WorkItem) Payload {
	return Payload{System: item.System, RuleID: item.RuleID, GameID: item.GameID}
}

// RequestBuilder produces trigger requests for a fixed endpoint.
type RequestBuilder struct {
	method  string
	target  string
	headers http.Header
}

// NewRequestBuilder resolves cfg.BaseURL and cfg.Path into the trigger endpoint.
func NewRequestBuilder(cfg *config.Config) (*RequestBuilder, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	target, err := JoinURL(cfg.BaseURL, cfg.Path)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	for key, value := range cfg.Headers {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		if strings.ContainsAny(trimmedKey, "\r\n") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		canonicalKey := http.CanonicalHeaderKey(trimmedKey)
		if canonicalKey == "" {
			return nil, fmt.Errorf("invalid header key %q", key)
		}

		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", canonicalKey)
		}

		headers.Set(canonicalKey, value)
	}
	headers.Set("Content-Type", "application/json")
	if headers.Get("Accept") == "" {
		headers.Set("Accept", "application/json, text/plain, */*")
	}

	return &RequestBuilder{
		method:  http.MethodPost,
		target:  target,
		headers: headers,
	}, nil
}

// JoinURL appends path to base, normalising the slash between them.
func JoinURL(base, path string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return "", errors.New("base URL is required")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("base URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("base URL %q has no host", base)
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return strings.TrimRight(base, "/"), nil
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/"), nil
}

// Target returns the resolved endpoint URL.
func (b *RequestBuilder) Target() string {
	return b.target
}

// Build creates the POST for item and lets provider attach the credential.
// provider may be nil.
func (b *RequestBuilder) Build(ctx context.Context, item feeder.WorkItem, provider AuthProvider) (*http.Request, error) {
	if b == nil {
		return nil, errors.New("builder cannot be nil")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	body, err := NewBodySource(PayloadFor(item))
	if err != nil {
		return nil, err
	}
	reader, err := body.NewReader()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, b.method, b.target, reader)
	if err != nil {
		_ = reader.Close()
		return nil, err
	}

	req.Header = make(http.Header, len(b.headers))
	for key, values := range b.headers {
		for _, val := range values {
			req.Header.Add(key, val)
		}
	}

	if length, ok := body.ContentLength(); ok {
		req.ContentLength = length
	}

	req.GetBody = func() (io.ReadCloser, error) {
		return body.NewReader()
	}

	if provider != nil {
		if err := provider.InjectHeader(ctx, req); err != nil {
			return nil, fmt.Errorf("auth provider inject header: %w", err)
		}
	}

	return req, nil
}

func NewClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		// The trigger endpoint answers directly; a redirect is reported as
		// the response it is.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
