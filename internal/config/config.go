package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	DefaultBaseURL    = "https://prod-eus2.clipro.tv"
	DefaultPath       = "/api/mcservicecore/rules-manager/trigger"
	DefaultBatchSize  = 100
	DefaultPause      = 5 * time.Second
	DefaultTimeout    = 10 * time.Second
	DefaultAuthScheme = "cookie"
	DefaultCookieName = "_BEAMER"
)

type Config struct {
	Input        string            `mapstructure:"input" yaml:"input"`
	InputFormat  string            `mapstructure:"input_format" yaml:"input_format,omitempty"`
	Credential   string            `mapstructure:"credential" yaml:"credential,omitempty"`
	AuthScheme   string            `mapstructure:"auth_scheme" yaml:"auth_scheme"`
	CookieName   string            `mapstructure:"cookie_name" yaml:"cookie_name"`
	BaseURL      string            `mapstructure:"base_url" yaml:"base_url"`
	Path         string            `mapstructure:"path" yaml:"path"`
	Headers      map[string]string `mapstructure:"headers" yaml:"headers,omitempty"`
	BatchSize    int               `mapstructure:"batch_size" yaml:"batch_size"`
	Pause        time.Duration     `mapstructure:"pause" yaml:"pause"`
	Delay        time.Duration     `mapstructure:"delay" yaml:"delay"`
	Rate         int               `mapstructure:"rate" yaml:"rate"`
	Timeout      time.Duration     `mapstructure:"timeout" yaml:"timeout"`
	StrictStatus bool              `mapstructure:"strict_status" yaml:"strict_status"`
	LogDir       string            `mapstructure:"log_dir" yaml:"log_dir,omitempty"`
	JSONOutput   bool              `mapstructure:"json_output" yaml:"json_output"`
	Dashboard    bool              `mapstructure:"dashboard" yaml:"dashboard"`
	LogErrors    bool              `mapstructure:"log_errors" yaml:"log_errors"`
	MetricsAddr  string            `mapstructure:"metrics_addr" yaml:"metrics_addr,omitempty"`
	Tracing      TracingConfig     `mapstructure:"tracing" yaml:"tracing"`
	ConfigFile   string            `mapstructure:"-" yaml:"-"`

	// One-shot actions; no run is started when any is set.
	OpenLogs    bool `mapstructure:"-" yaml:"-"`
	PrintLogDir bool `mapstructure:"-" yaml:"-"`
	PrintConfig bool `mapstructure:"-" yaml:"-"`
}

// TracingConfig configures OpenTelemetry export of trigger call spans.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Protocol    string  `mapstructure:"protocol" yaml:"protocol,omitempty"` // "grpc" or "http"
	ServiceName string  `mapstructure:"service_name" yaml:"service_name,omitempty"`
	SampleRate  float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure" yaml:"insecure,omitempty"`
	Propagate   *bool   `mapstructure:"propagate" yaml:"propagate,omitempty"` // nil follows Enabled
}

// Enabled reports whether an OTLP endpoint is configured, directly or via
// OTEL_EXPORTER_OTLP_ENDPOINT.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ShouldPropagate reports whether W3C trace headers go out with each call.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

// IsAction reports whether cfg asks for a one-shot action instead of a run.
func (c Config) IsAction() bool {
	return c.OpenLogs || c.PrintLogDir || c.PrintConfig
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.Credential != "" {
		c.Credential = "***"
	}
	return c
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string
	var warnings []string

	if !c.IsAction() {
		if strings.TrimSpace(c.Input) == "" {
			issues = append(issues, "input is required (use --help for usage information)")
		}
		if c.Credential == "" {
			warnings = append(warnings, "WARNING: No credential configured. Trigger calls will be sent with an empty session cookie.")
		}
	}
	if strings.ContainsAny(c.Credential, "\r\n") {
		issues = append(issues, "credential must not contain line breaks")
	}

	if c.Rate > 50 {
		warnings = append(warnings, fmt.Sprintf("WARNING: High rate limit configured (%d RPS). Ensure the rules service can absorb it.", c.Rate))
	}

	if len(warnings) > 0 {
		for _, w := range warnings {
			fmt.Fprintln(os.Stderr, w)
		}
	}

	if c.BatchSize < 1 {
		issues = append(issues, "batch size must be >= 1")
	}
	if c.Pause < 0 {
		issues = append(issues, "pause must be >= 0")
	}
	if c.Delay < 0 {
		issues = append(issues, "delay must be >= 0")
	}
	if c.Rate < 0 {
		issues = append(issues, "rate must be >= 0")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.Dashboard && c.JSONOutput {
		issues = append(issues, "dashboard and json-output are mutually exclusive")
	}

	switch strings.ToLower(strings.TrimSpace(c.InputFormat)) {
	case "", "auto", "csv", "json":
	default:
		issues = append(issues, fmt.Sprintf("input format must be 'csv' or 'json', got %q", c.InputFormat))
	}

	issues = append(issues, validateEndpoint(c.BaseURL)...)
	issues = append(issues, validateAuth(c.AuthScheme, c.CookieName)...)
	issues = append(issues, validateTracing(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}

	return nil
}

func validateEndpoint(base string) []string {
	base = strings.TrimSpace(base)
	if base == "" {
		return []string{"base url is required"}
	}
	u, err := url.Parse(base)
	if err != nil {
		return []string{fmt.Sprintf("base url: %v", err)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return []string{fmt.Sprintf("base url: scheme must be http or https, got %q", u.Scheme)}
	}
	if u.Host == "" {
		return []string{"base url: host is required"}
	}
	return nil
}

func validateAuth(scheme, cookieName string) []string {
	var issues []string
	switch strings.ToLower(strings.TrimSpace(scheme)) {
	case "", "cookie":
		if strings.ContainsAny(cookieName, "\r\n=; ") {
			issues = append(issues, fmt.Sprintf("auth: invalid cookie name %q", cookieName))
		}
	case "bearer":
	default:
		issues = append(issues, fmt.Sprintf("auth: scheme must be 'cookie' or 'bearer', got %q", scheme))
	}
	return issues
}

func validateTracing(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(strings.TrimSpace(t.Protocol)) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing: sample_rate must be between 0.0 and 1.0, got %g", t.SampleRate))
	}
	return issues
}
