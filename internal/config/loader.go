package config

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces the environment variables read by the Loader.
const EnvPrefix = "RULEFIRE"

// envKeys are the settings that may come from RULEFIRE_* variables.
var envKeys = []string{
	"input", "input_format", "credential", "auth_scheme", "cookie_name",
	"base_url", "path", "batch_size", "pause", "delay", "rate", "timeout",
	"strict_status", "log_dir", "metrics_addr",
}

// Loader handles loading configuration from files, the environment and
// command-line arguments.
type Loader struct {
	// LookupEnv defaults to os.LookupEnv through viper; tests replace it.
	LookupEnv func(key string) (string, bool)
}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments, the environment and configuration files
// to produce a Config. Precedence is flags, then environment, then file.
func (l Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	configPath := flagSet.Lookup("config").Value.String()
	values := newSettings(nil)
	if configPath != "" {
		cfgViper := viper.New()
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
		values = newSettings(cfgViper.AllSettings())
	}

	fromEnv, err := l.mergeEnv(values)
	if err != nil {
		return nil, err
	}

	// A bare invocation with nothing configured anywhere shows usage.
	if len(args) == 0 && configPath == "" && fromEnv == 0 {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}

	cfg := Defaults()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(cfg, values); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.Input = strings.TrimSpace(cfg.Input)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}

	return cfg, nil
}

// mergeEnv overlays RULEFIRE_* variables onto the file settings and reports
// how many were set.
func (l Loader) mergeEnv(values settings) (int, error) {
	env := viper.New()
	env.SetEnvPrefix(EnvPrefix)
	found := 0
	for _, key := range envKeys {
		if l.LookupEnv != nil {
			if val, ok := l.LookupEnv(EnvPrefix + "_" + strings.ToUpper(key)); ok {
				values.set(key, val)
				found++
			}
			continue
		}
		if err := env.BindEnv(key); err != nil {
			return found, fmt.Errorf("bind env %s: %w", key, err)
		}
		if env.IsSet(key) {
			values.set(key, env.GetString(key))
			found++
		}
	}
	return found, nil
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() *Config {
	return &Config{
		AuthScheme: DefaultAuthScheme,
		CookieName: DefaultCookieName,
		BaseURL:    DefaultBaseURL,
		Path:       DefaultPath,
		Headers:    map[string]string{},
		BatchSize:  DefaultBatchSize,
		Pause:      DefaultPause,
		Timeout:    DefaultTimeout,
		Tracing: TracingConfig{
			Protocol:   "grpc",
			SampleRate: 1.0,
		},
	}
}

// WriteYAML dumps cfg, with the credential masked, as YAML.
func WriteYAML(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg.Redacted()); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

// applyConfigSettings copies the merged file and environment settings onto
// cfg. Every malformed setting is reported, not just the first.
func applyConfigSettings(cfg *Config, values settings) error {
	if len(values) == 0 {
		return nil
	}
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}

	errs := []error{
		values.text(&cfg.Input, false, "input", "csv", "csv_path"),
		values.text(&cfg.InputFormat, false, "input_format"),
		values.text(&cfg.Credential, false, "credential", "cookie"),
		values.text(&cfg.AuthScheme, true, "auth_scheme"),
		values.text(&cfg.CookieName, true, "cookie_name"),
		values.text(&cfg.BaseURL, true, "base_url"),
		values.text(&cfg.Path, true, "path"),
		values.headers(cfg.Headers, "headers"),
		values.integer(&cfg.BatchSize, "batch_size"),
		values.seconds(&cfg.Pause, "pause", "pause_seconds"),
		values.seconds(&cfg.Delay, "delay", "delay_seconds"),
		values.integer(&cfg.Rate, "rate"),
		values.seconds(&cfg.Timeout, "timeout"),
		values.boolean(&cfg.StrictStatus, "strict_status"),
		values.text(&cfg.LogDir, false, "log_dir"),
		values.boolean(&cfg.JSONOutput, "json_output"),
		values.boolean(&cfg.Dashboard, "dashboard"),
		values.boolean(&cfg.LogErrors, "log_errors"),
		values.text(&cfg.MetricsAddr, false, "metrics_addr"),
	}
	cfg.InputFormat = strings.ToLower(cfg.InputFormat)
	cfg.AuthScheme = strings.ToLower(cfg.AuthScheme)

	tracing, err := values.section("tracing")
	if err != nil {
		errs = append(errs, err)
	} else if tracing != nil {
		errs = append(errs, applyTracingSettings(&cfg.Tracing, tracing))
	}
	return errors.Join(errs...)
}

func applyTracingSettings(tc *TracingConfig, values settings) error {
	err := errors.Join(
		values.text(&tc.Endpoint, false, "endpoint"),
		values.text(&tc.Protocol, false, "protocol"),
		values.text(&tc.ServiceName, false, "service_name"),
		values.float(&tc.SampleRate, "sample_rate"),
		values.boolean(&tc.Insecure, "insecure"),
	)
	tc.Protocol = strings.ToLower(tc.Protocol)
	if _, _, ok := values.lookup("propagate"); ok {
		var propagate bool
		if perr := values.boolean(&propagate, "propagate"); perr != nil {
			err = errors.Join(err, perr)
		} else {
			tc.Propagate = &propagate
		}
	}
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	return nil
}
