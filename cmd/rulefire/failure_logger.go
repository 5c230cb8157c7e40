package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/torosent/rulefire/internal/feeder"
	"github.com/torosent/rulefire/internal/runner"
)

type stderrFailureLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func newStderrFailureLogger(w io.Writer) *stderrFailureLogger {
	return &stderrFailureLogger{w: w}
}

func (l *stderrFailureLogger) LogFailure(item feeder.WorkItem, outcome runner.Outcome) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "[rulefire] trigger failed: system=%s gameId=%s ruleId=%s status=%s",
		item.System, item.GameID, item.RuleID, outcome.StatusLabel())
	if outcome.Reason != "" {
		fmt.Fprintf(l.w, " (%s)", outcome.Reason)
	}
	fmt.Fprintln(l.w)
}
