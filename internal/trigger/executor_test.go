package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/torosent/rulefire/internal/auth"
	"github.com/torosent/rulefire/internal/config"
	"github.com/torosent/rulefire/internal/feeder"
	"github.com/torosent/rulefire/internal/httpclient"
	"github.com/torosent/rulefire/internal/metrics"
)

var item = feeder.WorkItem{System: "wsc", RuleID: "r-1", GameID: "g-1"}

type request struct {
	method  string
	path    string
	cookie  string
	auth    string
	ctype   string
	payload httpclient.Payload
	headers http.Header
}

type captured struct {
	mu    sync.Mutex
	calls int
	last  request
}

func (c *captured) snapshot() (int, request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls, c.last
}

func newServer(t *testing.T, status int, body string, delay time.Duration) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := request{
			method:  r.Method,
			path:    r.URL.Path,
			cookie:  r.Header.Get("Cookie"),
			auth:    r.Header.Get("Authorization"),
			ctype:   r.Header.Get("Content-Type"),
			headers: r.Header.Clone(),
		}
		_ = json.NewDecoder(r.Body).Decode(&req.payload)

		c.mu.Lock()
		c.calls++
		c.last = req
		c.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func newExecutor(t *testing.T, baseURL string, mutate func(*Options)) *HTTPExecutor {
	t.Helper()
	builder, err := httpclient.NewRequestBuilder(&config.Config{
		BaseURL: baseURL,
		Path:    "/api/mcservicecore/rules-manager/trigger",
	})
	if err != nil {
		t.Fatalf("NewRequestBuilder() error = %v", err)
	}
	factory, err := auth.NewFactory(auth.SchemeCookie, "")
	if err != nil {
		t.Fatalf("NewFactory() error = %v", err)
	}
	opt := Options{
		Client:  httpclient.NewClient(2 * time.Second),
		Builder: builder,
		Auth:    factory,
	}
	if mutate != nil {
		mutate(&opt)
	}
	exec, err := NewHTTPExecutor(opt)
	if err != nil {
		t.Fatalf("NewHTTPExecutor() error = %v", err)
	}
	t.Cleanup(func() { _ = exec.Close() })
	return exec
}

func TestExecuteSendsTriggerRequest(t *testing.T) {
	srv, server := newServer(t, http.StatusOK, `{"message":"rule queued"}`, 0)
	exec := newExecutor(t, srv.URL, nil)

	outcome := exec.Execute(context.Background(), item, "cookie-value")
	calls, got := server.snapshot()

	if !outcome.Success || outcome.StatusCode != http.StatusOK {
		t.Fatalf("outcome = %+v, want success 200", outcome)
	}
	if outcome.Message != "rule queued" {
		t.Errorf("Message = %q, want %q", outcome.Message, "rule queued")
	}
	if outcome.Latency <= 0 {
		t.Errorf("Latency = %v, want > 0", outcome.Latency)
	}
	if calls != 1 {
		t.Fatalf("server calls = %d, want exactly 1", calls)
	}
	if got.method != http.MethodPost || got.path != "/api/mcservicecore/rules-manager/trigger" {
		t.Errorf("request = %s %s", got.method, got.path)
	}
	if got.cookie != "_BEAMER=cookie-value" {
		t.Errorf("Cookie = %q", got.cookie)
	}
	if got.ctype != "application/json" {
		t.Errorf("Content-Type = %q", got.ctype)
	}
	if got.payload != (httpclient.Payload{System: "wsc", RuleID: "r-1", GameID: "g-1"}) {
		t.Errorf("payload = %+v", got.payload)
	}
}

func TestAnyCompletedResponseIsSuccess(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusNoContent, http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError} {
		srv, _ := newServer(t, status, "", 0)
		exec := newExecutor(t, srv.URL, nil)

		outcome := exec.Execute(context.Background(), item, "c")
		if !outcome.Success {
			t.Errorf("status %d: outcome = %+v, want success", status, outcome)
		}
		if outcome.StatusCode != status {
			t.Errorf("status %d: StatusCode = %d", status, outcome.StatusCode)
		}
	}
}

func TestStrictPolicyFailsNon2xx(t *testing.T) {
	tests := []struct {
		status  int
		success bool
	}{
		{http.StatusOK, true},
		{http.StatusAccepted, true},
		{http.StatusFound, false},
		{http.StatusForbidden, false},
		{http.StatusBadGateway, false},
	}
	for _, tt := range tests {
		srv, _ := newServer(t, tt.status, `{"error":{"message":"nope"}}`, 0)
		exec := newExecutor(t, srv.URL, func(o *Options) { o.Policy = PolicyStrict2xx })

		outcome := exec.Execute(context.Background(), item, "c")
		if outcome.Success != tt.success {
			t.Errorf("status %d: Success = %v, want %v", tt.status, outcome.Success, tt.success)
		}
		if outcome.StatusCode != tt.status {
			t.Errorf("status %d: StatusCode = %d", tt.status, outcome.StatusCode)
		}
		if !tt.success && outcome.Reason != fmt.Sprintf("HTTP %d", tt.status) {
			t.Errorf("status %d: Reason = %q", tt.status, outcome.Reason)
		}
		if outcome.Message != "nope" {
			t.Errorf("status %d: Message = %q", tt.status, outcome.Message)
		}
	}
}

func TestTimeoutIsTransportFailure(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, "", 2*time.Second)
	exec := newExecutor(t, srv.URL, func(o *Options) {
		o.Client = httpclient.NewClient(50 * time.Millisecond)
	})

	outcome := exec.Execute(context.Background(), item, "c")
	if outcome.Success {
		t.Fatalf("outcome = %+v, want failure", outcome)
	}
	if outcome.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0", outcome.StatusCode)
	}
	if outcome.Reason != "timeout" {
		t.Errorf("Reason = %q, want timeout", outcome.Reason)
	}
}

func TestRefusedConnectionIsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	exec := newExecutor(t, url, nil)
	outcome := exec.Execute(context.Background(), item, "c")
	if outcome.Success || outcome.StatusCode != 0 {
		t.Fatalf("outcome = %+v, want transport failure", outcome)
	}
	if outcome.Reason == "" {
		t.Error("Reason should describe the transport failure")
	}
}

func TestBearerSchemeAndCredentialReuse(t *testing.T) {
	srv, server := newServer(t, http.StatusOK, "", 0)
	built := 0
	exec := newExecutor(t, srv.URL, func(o *Options) {
		inner, _ := auth.NewFactory(auth.SchemeBearer, "")
		o.Auth = func(credential string) (auth.Provider, error) {
			built++
			return inner(credential)
		}
	})

	exec.Execute(context.Background(), item, "tok")
	exec.Execute(context.Background(), item, "tok")
	if built != 1 {
		t.Errorf("providers built = %d, want 1 for an unchanged credential", built)
	}
	if _, got := server.snapshot(); got.auth != "Bearer tok" {
		t.Errorf("Authorization = %q", got.auth)
	}

	exec.Execute(context.Background(), item, "other")
	if built != 2 {
		t.Errorf("providers built = %d, want 2 after the credential changed", built)
	}
}

func TestInvalidCredentialFailsWithoutCalling(t *testing.T) {
	srv, server := newServer(t, http.StatusOK, "", 0)
	exec := newExecutor(t, srv.URL, nil)

	outcome := exec.Execute(context.Background(), item, "bad\r\nX-Injected: 1")
	if outcome.Success || outcome.StatusCode != 0 {
		t.Fatalf("outcome = %+v, want failure", outcome)
	}
	if calls, _ := server.snapshot(); calls != 0 {
		t.Errorf("server calls = %d, want 0", calls)
	}
}

type recorded struct {
	statusCode int
	success    bool
	reason     string
}

type fakeRecorder struct{ calls []recorded }

func (f *fakeRecorder) RecordRequest(latency time.Duration, statusCode int, success bool, reason string) {
	f.calls = append(f.calls, recorded{statusCode, success, reason})
}

func TestExecuteRecordsMetrics(t *testing.T) {
	srv, _ := newServer(t, http.StatusCreated, "", 0)
	rec := &fakeRecorder{}
	collector := metrics.NewCollector()
	exec := newExecutor(t, srv.URL, func(o *Options) { o.Recorder = metrics.Recorders{rec, collector} })

	exec.Execute(context.Background(), item, "c")

	if len(rec.calls) != 1 || rec.calls[0] != (recorded{http.StatusCreated, true, ""}) {
		t.Errorf("recorded = %+v", rec.calls)
	}
	if stats := collector.Stats(time.Second); stats.StatusCodes["201"] != 1 {
		t.Errorf("collector status codes = %v", stats.StatusCodes)
	}
}

func TestExecuteEmitsSpanAndPropagates(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	otel.SetTextMapPropagator(propagation.TraceContext{})

	srv, server := newServer(t, http.StatusOK, "", 0)
	exec := newExecutor(t, srv.URL, func(o *Options) {
		o.Tracer = tp.Tracer("test")
		o.Propagate = true
		o.Policy = PolicyStrict2xx
	})

	exec.Execute(context.Background(), item, "c")

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Status.Code != codes.Ok {
		t.Errorf("span status = %v, want Ok", spans[0].Status.Code)
	}
	if _, got := server.snapshot(); got.headers.Get("Traceparent") == "" {
		t.Error("traceparent header not propagated")
	}
}

func TestServerMessage(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{``, ""},
		{`not json`, ""},
		{`{"message":"  done "}`, "done"},
		{`{"error":"bad rule"}`, "bad rule"},
		{`{"error":{"message":"nested"}}`, "nested"},
		{`{"title":"Unauthorized","detail":"expired"}`, "Unauthorized"},
		{`{"message":42}`, ""},
		{`{"message":"line one\nline two\r\n"}`, "line one line two"},
	}
	for _, tt := range tests {
		if got := serverMessage([]byte(tt.body)); got != tt.want {
			t.Errorf("serverMessage(%q) = %q, want %q", tt.body, got, tt.want)
		}
	}
}

func TestNewHTTPExecutorRequiresDependencies(t *testing.T) {
	if _, err := NewHTTPExecutor(Options{}); err == nil {
		t.Error("expected error without client")
	}
	if _, err := NewHTTPExecutor(Options{Client: http.DefaultClient}); err == nil {
		t.Error("expected error without builder")
	}
}
