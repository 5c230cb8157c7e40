package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/torosent/rulefire/internal/config"
	"github.com/torosent/rulefire/internal/feeder"
	"github.com/torosent/rulefire/internal/runlog"
	"github.com/torosent/rulefire/internal/runner"
)

type triggerServer struct {
	*httptest.Server

	mu      sync.Mutex
	cookies []string
	bodies  []string
}

func newTriggerServer(t *testing.T, status func(n int) int) *triggerServer {
	t.Helper()
	ts := &triggerServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r.Body)
		ts.mu.Lock()
		ts.cookies = append(ts.cookies, r.Header.Get("Cookie"))
		ts.bodies = append(ts.bodies, buf.String())
		n := len(ts.bodies)
		ts.mu.Unlock()
		w.WriteHeader(status(n))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *triggerServer) snapshot() (cookies, bodies []string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]string(nil), ts.cookies...), append([]string(nil), ts.bodies...)
}

func writeInput(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rows.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return path
}

func testConfig(t *testing.T, serverURL, input string) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Input = input
	cfg.BaseURL = serverURL
	cfg.Path = "/trigger"
	cfg.Credential = "abc"
	cfg.BatchSize = 2
	cfg.Pause = 0
	cfg.JSONOutput = true
	cfg.LogDir = t.TempDir()
	return cfg
}

func runFiles(t *testing.T, dir string) (txt, csv []string) {
	t.Helper()
	txt, _ = filepath.Glob(filepath.Join(dir, "trigger-log-*.txt"))
	csv, _ = filepath.Glob(filepath.Join(dir, "trigger-log-*.csv"))
	return txt, csv
}

const threeRows = "system,ruleid,gameid\nsysA,r1,g1\nsysB,r2,g2\nsysC,r3,g3\n"

func TestExecuteEndToEnd(t *testing.T) {
	srv := newTriggerServer(t, func(n int) int {
		if n == 2 {
			return http.StatusInternalServerError
		}
		return http.StatusOK
	})
	cfg := testConfig(t, srv.URL, writeInput(t, threeRows))

	var stdout, stderr bytes.Buffer
	if err := execute(context.Background(), cfg, cfg.LogDir, &stdout, &stderr); err != nil {
		t.Fatalf("execute: %v (stderr %q)", err, stderr.String())
	}

	var report map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, stdout.String())
	}
	if report["total"] != float64(3) || report["success"] != float64(3) || report["failed"] != float64(0) {
		t.Errorf("unexpected counts: %v", report)
	}

	cookies, bodies := srv.snapshot()
	if len(bodies) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(bodies))
	}
	if cookies[0] != "_BEAMER=abc" {
		t.Errorf("cookie = %q", cookies[0])
	}
	if bodies[0] != `{"system":"sysA","ruleId":"r1","gameId":"g1"}` {
		t.Errorf("body = %s", bodies[0])
	}

	txt, csv := runFiles(t, cfg.LogDir)
	if len(txt) != 1 || len(csv) != 1 {
		t.Fatalf("expected one narrative and one structured sink, got %v %v", txt, csv)
	}
	rows, err := os.ReadFile(csv[0])
	if err != nil {
		t.Fatal(err)
	}
	wantRows := "gameid,ruleid,system,status\ng1,r1,sysA,success\ng2,r2,sysB,success\ng3,r3,sysC,success\n"
	if string(rows) != wantRows {
		t.Errorf("structured log = %q, want %q", rows, wantRows)
	}
	narrative, err := os.ReadFile(txt[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(narrative), "Completed. Total=3, Success=3, Failed=0.") {
		t.Errorf("narrative missing completion line:\n%s", narrative)
	}
}

func TestExecuteStrictStatusLogsFailures(t *testing.T) {
	srv := newTriggerServer(t, func(n int) int {
		if n == 2 {
			return http.StatusInternalServerError
		}
		return http.StatusOK
	})
	cfg := testConfig(t, srv.URL, writeInput(t, threeRows))
	cfg.StrictStatus = true
	cfg.LogErrors = true

	var stdout, stderr bytes.Buffer
	if err := execute(context.Background(), cfg, cfg.LogDir, &stdout, &stderr); err != nil {
		t.Fatalf("failed items must not fail the run: %v", err)
	}

	var report map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report["success"] != float64(2) || report["failed"] != float64(1) {
		t.Errorf("unexpected counts: %v", report)
	}
	want := "[rulefire] trigger failed: system=sysB gameId=g2 ruleId=r2 status=500 (HTTP 500)"
	if !strings.Contains(stderr.String(), want) {
		t.Errorf("stderr = %q, want %q", stderr.String(), want)
	}
}

func TestExecuteTextProgress(t *testing.T) {
	srv := newTriggerServer(t, func(int) int { return http.StatusOK })
	cfg := testConfig(t, srv.URL, writeInput(t, threeRows))
	cfg.JSONOutput = false

	var stdout, stderr bytes.Buffer
	if err := execute(context.Background(), cfg, cfg.LogDir, &stdout, &stderr); err != nil {
		t.Fatalf("execute: %v", err)
	}
	out := stdout.String()
	for _, want := range []string{
		"Loaded 3 rows. Running in 2 batch(es). Pause: 0s.",
		"Progress: 3/3 | Success: 3 | Failed: 0",
		"--- Run Results ---",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestExecuteMissingColumnCreatesNoSinks(t *testing.T) {
	srv := newTriggerServer(t, func(int) int { return http.StatusOK })
	cfg := testConfig(t, srv.URL, writeInput(t, "system,gameid\nsysA,g1\n"))

	var stdout, stderr bytes.Buffer
	err := execute(context.Background(), cfg, cfg.LogDir, &stdout, &stderr)
	var parseErr *feeder.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if parseErr.Kind != feeder.KindMissingColumn {
		t.Errorf("kind = %v, want missing column", parseErr.Kind)
	}
	if txt, csv := runFiles(t, cfg.LogDir); len(txt)+len(csv) != 0 {
		t.Errorf("no sinks should exist, got %v %v", txt, csv)
	}
	if _, bodies := srv.snapshot(); len(bodies) != 0 {
		t.Errorf("expected no calls, got %d", len(bodies))
	}
}

func TestExecuteCancelled(t *testing.T) {
	srv := newTriggerServer(t, func(int) int { return http.StatusOK })
	cfg := testConfig(t, srv.URL, writeInput(t, threeRows))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout, stderr bytes.Buffer
	err := execute(ctx, cfg, cfg.LogDir, &stdout, &stderr)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation error, got %v", err)
	}

	var report map[string]any
	if jerr := json.Unmarshal(stdout.Bytes(), &report); jerr != nil {
		t.Fatalf("a cancelled run still reports: %v", jerr)
	}
	if report["cancelled"] != true {
		t.Errorf("report = %v", report)
	}
	txt, _ := runFiles(t, cfg.LogDir)
	if len(txt) != 1 {
		t.Fatalf("expected narrative sink, got %v", txt)
	}
	narrative, _ := os.ReadFile(txt[0])
	if !strings.Contains(string(narrative), "Cancelled after 0/3 items.") {
		t.Errorf("narrative = %s", narrative)
	}
}

func TestExecuteLockedDirectory(t *testing.T) {
	srv := newTriggerServer(t, func(int) int { return http.StatusOK })
	cfg := testConfig(t, srv.URL, writeInput(t, threeRows))

	lock, err := runlog.Lock(cfg.LogDir)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer lock.Unlock()

	var stdout, stderr bytes.Buffer
	err = execute(context.Background(), cfg, cfg.LogDir, &stdout, &stderr)
	if !errors.Is(err, runlog.ErrDirLocked) {
		t.Fatalf("expected ErrDirLocked, got %v", err)
	}
}

func TestRunPrintLogDir(t *testing.T) {
	dir := t.TempDir()
	var stdout, stderr bytes.Buffer
	if err := run([]string{"--print-log-dir", "--log-dir", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := strings.TrimSpace(stdout.String()); got != dir {
		t.Errorf("printed %q, want %q", got, dir)
	}
}

func TestRunPrintConfigMasksCredential(t *testing.T) {
	var stdout, stderr bytes.Buffer
	args := []string{"--print-config", "--credential", "s3cret-value", "--batch-size", "7"}
	if err := run(args, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	out := stdout.String()
	if strings.Contains(out, "s3cret-value") {
		t.Errorf("credential leaked:\n%s", out)
	}
	if !strings.Contains(out, "batch_size: 7") {
		t.Errorf("expected batch size in:\n%s", out)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run([]string{"--input", "rows.csv", "--batch-size", "0"}, &stdout, &stderr)
	var verr config.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestBuildAuthFactory(t *testing.T) {
	tests := []struct {
		name    string
		scheme  string
		cookie  string
		wantErr bool
	}{
		{"cookie default", "", "", false},
		{"bearer", "bearer", "", false},
		{"unknown scheme", "basic", "", true},
		{"bad cookie name", "cookie", "bad name", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			cfg.AuthScheme = tt.scheme
			if tt.cookie != "" {
				cfg.CookieName = tt.cookie
			}
			_, err := buildAuthFactory(cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
	if _, err := buildAuthFactory(nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestStderrFailureLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newStderrFailureLogger(&buf)
	item := feeder.WorkItem{System: "s", RuleID: "r", GameID: "g"}

	logger.LogFailure(item, runner.Failed(0, "timeout"))
	logger.LogFailure(item, runner.Failed(404, ""))

	want := "[rulefire] trigger failed: system=s gameId=g ruleId=r status=ERR (timeout)\n" +
		"[rulefire] trigger failed: system=s gameId=g ruleId=r status=404\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}
