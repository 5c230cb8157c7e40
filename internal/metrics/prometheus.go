package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/torosent/rulefire/internal/runner"
)

// Exporter publishes run metrics in the Prometheus text format. It records
// trigger calls and follows run progress as a runner.Observer.
type Exporter struct {
	runner.NopObserver

	registry *prometheus.Registry
	requests *prometheus.CounterVec
	latency  prometheus.Histogram
	total    prometheus.Gauge
	done     prometheus.Gauge
	runs     *prometheus.CounterVec
}

// NewExporter registers the rulefire collectors on a private registry.
func NewExporter() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rulefire_trigger_requests_total",
				Help: "Total number of trigger calls by outcome and status code.",
			},
			[]string{"status", "code"},
		),
		latency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rulefire_trigger_duration_seconds",
				Help:    "Duration of trigger calls in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		),
		total: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rulefire_run_items",
			Help: "Number of items in the active run.",
		}),
		done: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rulefire_run_items_done",
			Help: "Number of items of the active run already dispatched.",
		}),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rulefire_runs_total",
				Help: "Total number of finished runs by result.",
			},
			[]string{"result"},
		),
	}
	e.registry.MustRegister(e.requests, e.latency, e.total, e.done, e.runs)

	// Make the outcome series visible before the first call.
	for _, status := range []string{runner.StatusSuccess, runner.StatusFailed} {
		e.requests.WithLabelValues(status, "ERR")
	}
	return e
}

// Registry exposes the private registry, mainly for tests.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

func (e *Exporter) RecordRequest(latency time.Duration, statusCode int, success bool, reason string) {
	status := runner.StatusFailed
	if success {
		status = runner.StatusSuccess
	}
	e.requests.WithLabelValues(status, StatusLabel(statusCode)).Inc()
	e.latency.Observe(latency.Seconds())
}

func (e *Exporter) OnStart(info runner.RunInfo) {
	e.total.Set(float64(info.Total))
	e.done.Set(0)
}

func (e *Exporter) OnProgress(c runner.Counters) {
	e.done.Set(float64(c.Done))
}

func (e *Exporter) OnComplete(s runner.Summary) {
	if s.Cancelled {
		e.runs.WithLabelValues("cancelled").Inc()
		return
	}
	e.runs.WithLabelValues("completed").Inc()
}

func (e *Exporter) OnError(error) {
	e.runs.WithLabelValues("failed").Inc()
}

// Handler serves the registry.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (e *Exporter) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return e.serve(ctx, ln)
}

func (e *Exporter) serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
