package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/torosent/rulefire/internal/config"
	"github.com/torosent/rulefire/internal/dashboard"
	"github.com/torosent/rulefire/internal/feeder"
	"github.com/torosent/rulefire/internal/httpclient"
	"github.com/torosent/rulefire/internal/metrics"
	"github.com/torosent/rulefire/internal/output"
	"github.com/torosent/rulefire/internal/runlog"
	"github.com/torosent/rulefire/internal/runner"
	"github.com/torosent/rulefire/internal/tracing"
)

const tracingShutdownTimeout = 5 * time.Second

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logDir, err := resolveLogDir(cfg)
	if err != nil {
		return err
	}

	switch {
	case cfg.PrintLogDir:
		_, err := fmt.Fprintln(stdout, logDir)
		return err
	case cfg.OpenLogs:
		return runlog.Reveal(logDir)
	case cfg.PrintConfig:
		return config.WriteYAML(stdout, cfg)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return execute(ctx, cfg, logDir, stdout, stderr)
}

func resolveLogDir(cfg *config.Config) (string, error) {
	if cfg.LogDir != "" {
		return cfg.LogDir, nil
	}
	return runlog.DefaultDir()
}

// execute performs one run and prints its report. It returns an error for
// anything that should end the process with a non-zero status.
func execute(ctx context.Context, cfg *config.Config, logDir string, stdout, stderr io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lock, err := runlog.Lock(logDir)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	format, err := feeder.ParseFormat(cfg.InputFormat)
	if err != nil {
		return err
	}

	target, err := httpclient.JoinURL(cfg.BaseURL, cfg.Path)
	if err != nil {
		return err
	}
	tp, err := tracing.Init(ctx, cfg.Tracing, target)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), tracingShutdownTimeout)
		defer done()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(stderr, "[rulefire] tracing shutdown: %v\n", err)
		}
	}()

	collector := metrics.NewCollector()
	exporter := metrics.NewExporter()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := exporter.Serve(ctx, cfg.MetricsAddr); err != nil {
				fmt.Fprintf(stderr, "[rulefire] metrics server: %v\n", err)
			}
		}()
	}

	exec, builder, err := buildExecutor(cfg, metrics.Recorders{collector, exporter}, tp)
	if err != nil {
		return err
	}
	defer exec.Close()

	var wrapped runner.Executor = exec
	if cfg.LogErrors {
		wrapped = runner.WithLogging(wrapped, newStderrFailureLogger(stderr))
	}

	runCtx, runSpan := tracing.StartRunSpan(ctx, tp.Tracer(), target)
	defer runSpan.End()

	observers := []runner.Observer{exporter, runSpan}
	stopDashboard := func() {}
	if cfg.Dashboard {
		dash, err := dashboard.New(collector, dashboard.RunConfig{
			Target:     builder.Target(),
			BatchSize:  cfg.BatchSize,
			Pause:      cfg.Pause,
			Delay:      cfg.Delay,
			Rate:       float64(cfg.Rate),
			Timeout:    cfg.Timeout,
			Strict:     cfg.StrictStatus,
			ConfigFile: cfg.ConfigFile,
		}, cancel)
		if err != nil {
			return err
		}
		dash.Start()
		stopped := false
		stopDashboard = func() {
			if !stopped {
				stopped = true
				dash.Stop()
			}
		}
		defer stopDashboard()
		observers = append(observers, dash)
	} else if !cfg.JSONOutput {
		observers = append(observers, output.NewProgressReporter(stdout, true))
	}

	r := runner.New(runner.Options{
		Executor:      wrapped,
		OpenLog:       openRunLog(logDir),
		Observer:      runner.Observers(observers...),
		RatePerSecond: cfg.Rate,
	})

	summary, runErr := r.Run(runCtx, runner.RunConfig{
		Source: feeder.FileSource{
			Path:   cfg.Input,
			Format: format,
			OnSkipped: func(s feeder.Stats) {
				fmt.Fprintf(stderr, "[rulefire] skipped %d malformed row(s) in %s\n", s.Skipped, cfg.Input)
			},
		},
		Credential:          cfg.Credential,
		BatchSize:           cfg.BatchSize,
		PauseBetweenBatches: cfg.Pause,
		DelayBetweenItems:   cfg.Delay,
	})
	stopDashboard()
	if runErr != nil && !summary.Cancelled {
		return runErr
	}

	stats := collector.Stats(summary.Duration)
	if cfg.JSONOutput {
		if err := output.PrintJSONReport(stdout, summary, stats); err != nil {
			return err
		}
	} else {
		output.PrintReport(stdout, summary, stats)
	}

	if summary.Cancelled {
		return fmt.Errorf("run cancelled after %d/%d items: %w",
			summary.Succeeded+summary.Failed, summary.Total, runErr)
	}
	return nil
}

// openRunLog keeps a nil *runlog.RunLog from escaping as a non-nil interface.
func openRunLog(dir string) func(time.Time) (runner.RunLog, error) {
	return func(start time.Time) (runner.RunLog, error) {
		l, err := runlog.Open(dir, start)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
}
