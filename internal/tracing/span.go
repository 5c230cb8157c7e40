package tracing

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/rulefire/internal/feeder"
	"github.com/torosent/rulefire/internal/runner"
)

// RunSpan is the parent of every trigger span in one batch run. It observes
// the run so the span carries the run id and the final counts.
type RunSpan struct {
	span trace.Span
	once sync.Once
}

var _ runner.Observer = (*RunSpan)(nil)

// StartRunSpan opens the run span. Pass the returned context to the runner so
// trigger spans nest under it.
func StartRunSpan(ctx context.Context, tracer trace.Tracer, target string) (context.Context, *RunSpan) {
	ctx, span := tracer.Start(ctx, "rulefire run", trace.WithSpanKind(trace.SpanKindInternal))
	if target != "" {
		span.SetAttributes(attribute.String("rulefire.target", target))
	}
	return ctx, &RunSpan{span: span}
}

func (s *RunSpan) OnStart(info runner.RunInfo) {
	s.span.SetAttributes(
		attribute.String("rulefire.run_id", info.RunID),
		attribute.Int("rulefire.items", info.Total),
		attribute.Int("rulefire.batches", info.Batches),
	)
	if info.CSVFile != "" {
		s.span.SetAttributes(attribute.String("rulefire.csv_file", info.CSVFile))
	}
}

func (s *RunSpan) OnLog(string) {}

func (s *RunSpan) OnProgress(runner.Counters) {}

func (s *RunSpan) OnComplete(sum runner.Summary) {
	s.span.SetAttributes(
		attribute.Int("rulefire.succeeded", sum.Succeeded),
		attribute.Int("rulefire.failed", sum.Failed),
		attribute.Bool("rulefire.cancelled", sum.Cancelled),
	)
	var err error
	if sum.Failed > 0 {
		err = fmt.Errorf("%d of %d trigger calls failed", sum.Failed, sum.Total)
	}
	s.finish(err)
}

func (s *RunSpan) OnError(err error) {
	s.finish(err)
}

// End closes the span if the run never reported completion.
func (s *RunSpan) End() {
	s.finish(nil)
}

func (s *RunSpan) finish(err error) {
	s.once.Do(func() { EndSpan(s.span, err) })
}

// StartTriggerSpan starts a client span for the trigger call of one item.
func StartTriggerSpan(ctx context.Context, tracer trace.Tracer, target string, item feeder.WorkItem) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "POST rules-manager/trigger",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("http.request.method", http.MethodPost),
		attribute.String("rulefire.system", item.System),
		attribute.String("rulefire.rule_id", item.RuleID),
		attribute.String("rulefire.game_id", item.GameID),
	)
	if target != "" {
		span.SetAttributes(attribute.String("url.full", target))
	}
	return ctx, span
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders injects W3C trace context into HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
