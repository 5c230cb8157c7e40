package output

import (
	"fmt"
	"io"
	"sync"

	"github.com/torosent/rulefire/internal/runner"
)

// ProgressReporter prints run events to a terminal. Narrative lines are
// printed in full; progress is redrawn in place on a single line.
type ProgressReporter struct {
	runner.NopObserver

	mu      sync.Mutex
	writer  io.Writer
	showLog bool
	inline  bool // a progress line is currently drawn
}

// NewProgressReporter creates a reporter writing to writer. When showLog is
// false only the progress line is drawn.
func NewProgressReporter(writer io.Writer, showLog bool) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{writer: writer, showLog: showLog}
}

func (p *ProgressReporter) OnStart(info runner.RunInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.writer, "Run %s: %d item(s) in %d batch(es)\n", info.RunID, info.Total, info.Batches)
	fmt.Fprintf(p.writer, "Log: %s\nCSV: %s\n", info.LogFile, info.CSVFile)
}

func (p *ProgressReporter) OnLog(line string) {
	if !p.showLog {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.breakLine()
	fmt.Fprintln(p.writer, line)
}

func (p *ProgressReporter) OnProgress(c runner.Counters) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.writer, "\rProgress: %d/%d | Success: %d | Failed: %d", c.Done, c.Total, c.Succeeded, c.Failed)
	p.inline = true
}

func (p *ProgressReporter) OnComplete(runner.Summary) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.breakLine()
}

func (p *ProgressReporter) OnError(error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.breakLine()
}

func (p *ProgressReporter) breakLine() {
	if p.inline {
		fmt.Fprintln(p.writer)
		p.inline = false
	}
}
