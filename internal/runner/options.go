package runner

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/torosent/rulefire/internal/feeder"
	"github.com/torosent/rulefire/internal/runlog"
)

// Executor performs the remote call for one item and classifies it.
// Implementations must not retry.
type Executor interface {
	Execute(ctx context.Context, item feeder.WorkItem, credential string) Outcome
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, item feeder.WorkItem, credential string) Outcome

func (f ExecutorFunc) Execute(ctx context.Context, item feeder.WorkItem, credential string) Outcome {
	return f(ctx, item, credential)
}

// RunLog is the pair of durable sinks of one run.
type RunLog interface {
	WriteLine(line string) error
	WriteRow(row runlog.Row) error
	Paths() runlog.Paths
	Close() error
}

// Options configure the Runner.
type Options struct {
	Executor       Executor                              // request executor (required)
	OpenLog        func(start time.Time) (RunLog, error) // opens fresh sinks per run (required)
	Observer       Observer                              // progress consumer (optional)
	RatePerSecond  int                                   // dispatch ceiling (0 means unlimited)
	LimiterFactory func(rps int) *rate.Limiter           // optional injection for tests
	Sleep          SleepFunc                             // optional injection for tests
	Now            func() time.Time                      // optional clock
	NewRunID       func(start time.Time) string          // optional run id generator
}

func (o *Options) normalize() {
	if o.Observer == nil {
		o.Observer = NopObserver{}
	}
	if o.RatePerSecond < 0 {
		o.RatePerSecond = 0
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = newLimiter
	}
	if o.Sleep == nil {
		o.Sleep = Sleep
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewRunID == nil {
		o.NewRunID = newRunID
	}
}
