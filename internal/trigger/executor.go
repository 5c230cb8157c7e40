// Package trigger performs the remote rule trigger call for one work item.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/rulefire/internal/auth"
	"github.com/torosent/rulefire/internal/feeder"
	"github.com/torosent/rulefire/internal/httpclient"
	"github.com/torosent/rulefire/internal/metrics"
	"github.com/torosent/rulefire/internal/runner"
	"github.com/torosent/rulefire/internal/tracing"
)

// StatusPolicy decides which completed responses count as success.
type StatusPolicy int

const (
	// PolicyAnyResponse treats every completed response as success,
	// whatever its status code.
	PolicyAnyResponse StatusPolicy = iota
	// PolicyStrict2xx treats only 2xx responses as success.
	PolicyStrict2xx
)

// maxBodyBytes bounds how much of a response is read for its message.
const maxBodyBytes = 1 << 10

// messagePaths are the response fields searched for a server message.
var messagePaths = []string{"message", "error.message", "error", "title", "detail"}

// Options configure an HTTPExecutor.
type Options struct {
	Client    *http.Client               // required
	Builder   *httpclient.RequestBuilder // required
	Auth      auth.Factory               // builds the credential provider; nil sends no credential
	Policy    StatusPolicy
	Recorder  metrics.Recorder // optional
	Tracer    trace.Tracer     // optional
	Propagate bool             // inject W3C trace headers
}

// HTTPExecutor sends one trigger call per Execute. It never retries.
type HTTPExecutor struct {
	opt Options

	mu         sync.Mutex
	credential string
	provider   auth.Provider
}

// NewHTTPExecutor validates opt and returns an executor.
func NewHTTPExecutor(opt Options) (*HTTPExecutor, error) {
	if opt.Client == nil {
		return nil, errors.New("http client is required")
	}
	if opt.Builder == nil {
		return nil, errors.New("request builder is required")
	}
	if opt.Tracer == nil {
		opt.Tracer = noop.NewTracerProvider().Tracer("")
	}
	return &HTTPExecutor{opt: opt}, nil
}

var _ runner.Executor = (*HTTPExecutor)(nil)

// Execute performs the call for item and classifies the result.
func (e *HTTPExecutor) Execute(ctx context.Context, item feeder.WorkItem, credential string) runner.Outcome {
	ctx, span := tracing.StartTriggerSpan(ctx, e.opt.Tracer, e.opt.Builder.Target(), item)

	start := time.Now()
	outcome, err := e.do(ctx, item, credential)
	outcome.Latency = time.Since(start)

	if e.opt.Recorder != nil {
		e.opt.Recorder.RecordRequest(outcome.Latency, outcome.StatusCode, outcome.Success, outcome.Reason)
	}

	var attrs []attribute.KeyValue
	if outcome.StatusCode != 0 {
		attrs = append(attrs, attribute.Int("http.response.status_code", outcome.StatusCode))
	}
	if err == nil && !outcome.Success {
		err = errors.New(outcome.Reason)
	}
	tracing.EndSpan(span, err, attrs...)
	return outcome
}

func (e *HTTPExecutor) do(ctx context.Context, item feeder.WorkItem, credential string) (runner.Outcome, error) {
	provider, err := e.providerFor(credential)
	if err != nil {
		return runner.Failed(0, err.Error()), err
	}

	req, err := e.opt.Builder.Build(ctx, item, provider)
	if err != nil {
		return runner.Failed(0, err.Error()), err
	}
	if e.opt.Propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	resp, err := e.opt.Client.Do(req)
	if err != nil {
		return runner.Failed(0, metrics.FailureReason(err)), err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	var outcome runner.Outcome
	if e.opt.Policy == PolicyStrict2xx && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		outcome = runner.Failed(resp.StatusCode, fmt.Sprintf("HTTP %d", resp.StatusCode))
	} else {
		outcome = runner.Succeeded(resp.StatusCode)
	}
	outcome.Message = serverMessage(body)
	return outcome, nil
}

// providerFor returns the provider for credential, reusing the last one
// while the credential does not change.
func (e *HTTPExecutor) providerFor(credential string) (auth.Provider, error) {
	if e.opt.Auth == nil {
		return nil, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.provider != nil && e.credential == credential {
		return e.provider, nil
	}
	p, err := e.opt.Auth(credential)
	if err != nil {
		return nil, fmt.Errorf("credential: %w", err)
	}
	if e.provider != nil {
		_ = e.provider.Close()
	}
	e.provider, e.credential = p, credential
	return p, nil
}

// Close releases the cached credential provider.
func (e *HTTPExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.provider == nil {
		return nil
	}
	err := e.provider.Close()
	e.provider = nil
	return err
}

// serverMessage extracts a short single-line message from a JSON response body.
func serverMessage(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}
	for _, path := range messagePaths {
		res := gjson.GetBytes(body, path)
		if res.Type == gjson.String {
			if msg := strings.Join(strings.Fields(res.String()), " "); msg != "" {
				return truncate(msg, 120)
			}
		}
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
