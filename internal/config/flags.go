package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "rulefire",
		Short:         "Trigger rules in paced batches from a CSV file",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Input flags
	flags.StringP("input", "i", "", "Path to the CSV (or JSON) file with system, ruleid and gameid columns")
	flags.String("input-format", "", "Input format: 'csv' or 'json' (default: by file extension)")

	// Request flags
	flags.String("credential", "", "Session credential sent with every call (or set RULEFIRE_CREDENTIAL)")
	flags.String("auth-scheme", DefaultAuthScheme, "How the credential is sent: 'cookie' or 'bearer'")
	flags.String("cookie-name", DefaultCookieName, "Cookie name used by the cookie auth scheme")
	flags.String("base-url", DefaultBaseURL, "Base URL of the rules service")
	flags.String("path", DefaultPath, "Path of the trigger endpoint")
	flags.StringSlice("header", nil, "Additional request header in key=value form")
	flags.Duration("timeout", DefaultTimeout, "Per-call timeout")
	flags.Bool("strict-status", false, "Count only 2xx responses as success")

	// Pacing flags
	flags.IntP("batch-size", "b", DefaultBatchSize, "Number of items per batch")
	flags.Duration("pause", DefaultPause, "Pause between batches (e.g. 5s, 1m)")
	flags.Duration("delay", 0, "Delay after every item (e.g. 250ms)")
	flags.IntP("rate", "r", 0, "Requests per second ceiling (0 means unlimited)")

	// Output flags
	flags.String("log-dir", "", "Directory for run logs (default: user config dir)")
	flags.Bool("json-output", false, "Emit JSON formatted summary")
	flags.Bool("dashboard", false, "Show live terminal dashboard")
	flags.Bool("log-errors", false, "Log each failed call to stderr")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	flags.String("config", "", "Path to configuration file (JSON, YAML or TOML)")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP endpoint for trace export (host:port)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: 'grpc' or 'http'")
	flags.String("tracing-service-name", "", "Service name reported with spans")
	flags.Float64("tracing-sample-rate", 1.0, "Fraction of calls to sample (0.0-1.0)")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Bool("tracing-propagate", false, "Inject W3C trace headers into trigger calls")

	// Actions
	flags.Bool("open-logs", false, "Open the log directory in the file manager and exit")
	flags.Bool("print-log-dir", false, "Print the log directory and exit")
	flags.Bool("print-config", false, "Print the effective configuration as YAML and exit")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file and the environment.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	var err error
	set := func(name string, apply func() error) {
		if err != nil || !fs.Changed(name) {
			return
		}
		err = apply()
	}

	set("input", func() error {
		val, err := fs.GetString("input")
		cfg.Input = strings.TrimSpace(val)
		return err
	})
	set("input-format", func() error {
		val, err := fs.GetString("input-format")
		cfg.InputFormat = strings.ToLower(strings.TrimSpace(val))
		return err
	})
	set("credential", func() error {
		val, err := fs.GetString("credential")
		cfg.Credential = strings.TrimSpace(val)
		return err
	})
	set("auth-scheme", func() error {
		val, err := fs.GetString("auth-scheme")
		cfg.AuthScheme = strings.ToLower(strings.TrimSpace(val))
		return err
	})
	set("cookie-name", func() error {
		val, err := fs.GetString("cookie-name")
		cfg.CookieName = strings.TrimSpace(val)
		return err
	})
	set("base-url", func() error {
		val, err := fs.GetString("base-url")
		cfg.BaseURL = strings.TrimSpace(val)
		return err
	})
	set("path", func() error {
		val, err := fs.GetString("path")
		cfg.Path = strings.TrimSpace(val)
		return err
	})
	set("timeout", func() error {
		val, err := fs.GetDuration("timeout")
		cfg.Timeout = val
		return err
	})
	set("strict-status", func() error {
		val, err := fs.GetBool("strict-status")
		cfg.StrictStatus = val
		return err
	})
	set("batch-size", func() error {
		val, err := fs.GetInt("batch-size")
		cfg.BatchSize = val
		return err
	})
	set("pause", func() error {
		val, err := fs.GetDuration("pause")
		cfg.Pause = val
		return err
	})
	set("delay", func() error {
		val, err := fs.GetDuration("delay")
		cfg.Delay = val
		return err
	})
	set("rate", func() error {
		val, err := fs.GetInt("rate")
		cfg.Rate = val
		return err
	})
	set("log-dir", func() error {
		val, err := fs.GetString("log-dir")
		cfg.LogDir = strings.TrimSpace(val)
		return err
	})
	set("json-output", func() error {
		val, err := fs.GetBool("json-output")
		cfg.JSONOutput = val
		return err
	})
	set("dashboard", func() error {
		val, err := fs.GetBool("dashboard")
		cfg.Dashboard = val
		return err
	})
	set("log-errors", func() error {
		val, err := fs.GetBool("log-errors")
		cfg.LogErrors = val
		return err
	})
	set("metrics-addr", func() error {
		val, err := fs.GetString("metrics-addr")
		cfg.MetricsAddr = strings.TrimSpace(val)
		return err
	})
	set("tracing-endpoint", func() error {
		val, err := fs.GetString("tracing-endpoint")
		cfg.Tracing.Endpoint = strings.TrimSpace(val)
		return err
	})
	set("tracing-protocol", func() error {
		val, err := fs.GetString("tracing-protocol")
		cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
		return err
	})
	set("tracing-service-name", func() error {
		val, err := fs.GetString("tracing-service-name")
		cfg.Tracing.ServiceName = strings.TrimSpace(val)
		return err
	})
	set("tracing-sample-rate", func() error {
		val, err := fs.GetFloat64("tracing-sample-rate")
		cfg.Tracing.SampleRate = val
		return err
	})
	set("tracing-insecure", func() error {
		val, err := fs.GetBool("tracing-insecure")
		cfg.Tracing.Insecure = val
		return err
	})
	set("tracing-propagate", func() error {
		val, err := fs.GetBool("tracing-propagate")
		cfg.Tracing.Propagate = &val
		return err
	})
	if err != nil {
		return err
	}

	vals, err := fs.GetStringSlice("header")
	if err != nil {
		return err
	}
	if len(vals) > 0 {
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for _, entry := range vals {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("header must be in key=value format: %s", entry)
			}
			key := http.CanonicalHeaderKey(strings.TrimSpace(parts[0]))
			if key == "" {
				return fmt.Errorf("header key cannot be empty")
			}
			cfg.Headers[key] = strings.TrimSpace(parts[1])
		}
	}

	// Actions are flag-only.
	for name, dst := range map[string]*bool{
		"open-logs":     &cfg.OpenLogs,
		"print-log-dir": &cfg.PrintLogDir,
		"print-config":  &cfg.PrintConfig,
	} {
		val, err := fs.GetBool(name)
		if err != nil {
			return err
		}
		*dst = val
	}

	return nil
}
