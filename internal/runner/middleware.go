package runner

import (
	"context"

	"github.com/torosent/rulefire/internal/feeder"
)

// FailureLogger logs failed trigger calls.
type FailureLogger interface {
	LogFailure(item feeder.WorkItem, outcome Outcome)
}

// loggingExecutor wraps an Executor with failure logging.
type loggingExecutor struct {
	inner  Executor
	logger FailureLogger
}

// WithLogging wraps an Executor to log failed outcomes.
func WithLogging(exec Executor, logger FailureLogger) Executor {
	if logger == nil {
		return exec
	}
	return &loggingExecutor{
		inner:  exec,
		logger: logger,
	}
}

func (l *loggingExecutor) Execute(ctx context.Context, item feeder.WorkItem, credential string) Outcome {
	outcome := l.inner.Execute(ctx, item, credential)
	if !outcome.Success {
		l.logger.LogFailure(item, outcome)
	}
	return outcome
}
