package runner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/torosent/rulefire/internal/runlog"
)

// LogWriteError marks a failure of the durable log. It is fatal for the run.
type LogWriteError struct {
	Err error
}

func (e *LogWriteError) Error() string {
	return fmt.Sprintf("write run log: %v", e.Err)
}

func (e *LogWriteError) Unwrap() error {
	return e.Err
}

// Runner owns the end-to-end run: it loads the items, drives the Scheduler,
// keeps the counters and reports through the durable log and the Observer.
// At most one run is active per Runner.
type Runner struct {
	opt    Options
	active int32

	mu    sync.Mutex
	state State
}

func New(opt Options) *Runner {
	opt.normalize()
	return &Runner{opt: opt}
}

// State returns the lifecycle state of the current or last run.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Run executes one run. Per-item failures are data in the returned Summary;
// the error is non-nil only when the input could not be loaded, the durable
// log failed, or ctx was cancelled (in which case Summary.Cancelled is set).
func (r *Runner) Run(ctx context.Context, cfg RunConfig) (Summary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !atomic.CompareAndSwapInt32(&r.active, 0, 1) {
		return Summary{}, ErrRunInProgress
	}
	defer atomic.StoreInt32(&r.active, 0)

	obs := r.opt.Observer
	if r.opt.Executor == nil || r.opt.OpenLog == nil {
		err := errors.New("runner requires an executor and a log opener")
		r.setState(StateFailed)
		obs.OnError(err)
		return Summary{}, err
	}
	if err := cfg.Validate(); err != nil {
		r.setState(StateFailed)
		obs.OnError(err)
		return Summary{}, err
	}

	r.setState(StateParsing)
	items, err := cfg.Source.Load()
	if err != nil {
		r.setState(StateFailed)
		obs.OnError(err)
		return Summary{}, err
	}

	start := r.opt.Now()
	sinks, err := r.opt.OpenLog(start)
	if err != nil {
		err = &LogWriteError{Err: err}
		r.setState(StateFailed)
		obs.OnError(err)
		return Summary{}, err
	}

	r.setState(StateDispatching)
	paths := sinks.Paths()
	batches := BatchCount(len(items), cfg.BatchSize)
	summary := Summary{
		RunID:     r.opt.NewRunID(start),
		Total:     len(items),
		LogFile:   paths.Narrative,
		CSVFile:   paths.Structured,
		StartedAt: start,
	}
	obs.OnStart(RunInfo{
		RunID:     summary.RunID,
		Total:     len(items),
		Batches:   batches,
		LogFile:   paths.Narrative,
		CSVFile:   paths.Structured,
		StartedAt: start,
	})

	d := &dispatch{
		exec:       r.opt.Executor,
		credential: cfg.Credential,
		log:        sinks,
		obs:        obs,
		counters:   Counters{Total: len(items)},
	}

	err = d.line(fmt.Sprintf("Loaded %d rows. Running in %d batch(es). Pause: %s.",
		len(items), batches, formatSeconds(cfg.PauseBetweenBatches)))
	if err == nil {
		sched := Scheduler{
			BatchSize:           cfg.BatchSize,
			PauseBetweenBatches: cfg.PauseBetweenBatches,
			DelayBetweenItems:   cfg.DelayBetweenItems,
			Limiter:             r.opt.LimiterFactory(r.opt.RatePerSecond),
			Sleep:               r.opt.Sleep,
		}
		err = sched.Run(ctx, items, d.step)
	}

	summary.Succeeded = d.counters.Succeeded
	summary.Failed = d.counters.Failed

	if isCancellation(err) {
		summary.Cancelled = true
		if lerr := d.line(fmt.Sprintf("Cancelled after %d/%d items. Success=%d, Failed=%d.",
			d.counters.Done, d.counters.Total, d.counters.Succeeded, d.counters.Failed)); lerr != nil {
			return r.abort(sinks, summary, lerr)
		}
		if cerr := sinks.Close(); cerr != nil {
			return r.abort(sinks, summary, &LogWriteError{Err: cerr})
		}
		summary.Duration = r.opt.Now().Sub(start)
		r.setState(StateCancelled)
		obs.OnComplete(summary)
		return summary, err
	}
	if err != nil {
		return r.abort(sinks, summary, err)
	}

	if err := d.line(fmt.Sprintf("Completed. Total=%d, Success=%d, Failed=%d.",
		summary.Total, summary.Succeeded, summary.Failed)); err != nil {
		return r.abort(sinks, summary, err)
	}
	if err := sinks.Close(); err != nil {
		return r.abort(sinks, summary, &LogWriteError{Err: err})
	}
	summary.Duration = r.opt.Now().Sub(start)
	r.setState(StateCompleted)
	obs.OnComplete(summary)
	return summary, nil
}

// isCancellation reports whether err ended the dispatch loop because the
// run's context was cancelled or ran out of time.
func isCancellation(err error) bool {
	var logErr *LogWriteError
	if err == nil || errors.As(err, &logErr) {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (r *Runner) abort(sinks RunLog, summary Summary, err error) (Summary, error) {
	_ = sinks.Close()
	summary.Duration = r.opt.Now().Sub(summary.StartedAt)
	r.setState(StateFailed)
	r.opt.Observer.OnError(err)
	return summary, err
}

// dispatch is the per-run state. A fresh one is built for every run, so the
// counters always start at zero.
type dispatch struct {
	exec       Executor
	credential string
	log        RunLog
	obs        Observer
	counters   Counters
}

func (d *dispatch) line(text string) error {
	if err := d.log.WriteLine(text); err != nil {
		return &LogWriteError{Err: err}
	}
	d.obs.OnLog(text)
	return nil
}

func (d *dispatch) step(ctx context.Context, step Step) error {
	switch step.Kind {
	case StepBatchStart:
		return d.line(fmt.Sprintf("— Batch %d/%d (%d items) —", step.Batch, step.Batches, step.BatchLen))
	case StepPause:
		return d.line(fmt.Sprintf("Pausing %s before batch %d/%d.", formatSeconds(step.Pause), step.Batch+1, step.Batches))
	case StepDispatch:
		// Cancellation is honoured between items only; the call itself is
		// bounded by the executor's timeout.
		outcome := d.exec.Execute(context.WithoutCancel(ctx), step.Item, d.credential)

		d.counters.Done++
		if outcome.Success {
			d.counters.Succeeded++
		} else {
			d.counters.Failed++
		}

		if err := d.line(narrative(step, outcome)); err != nil {
			return err
		}
		row := runlog.Row{
			GameID: step.Item.GameID,
			RuleID: step.Item.RuleID,
			System: step.Item.System,
			Status: outcome.Status(),
		}
		if err := d.log.WriteRow(row); err != nil {
			return &LogWriteError{Err: err}
		}
		d.obs.OnProgress(d.counters)
	}
	return nil
}

func narrative(step Step, outcome Outcome) string {
	tag := "[OK]"
	detail := outcome.Message
	if !outcome.Success {
		tag = "[FAIL]"
		if outcome.Reason != "" {
			detail = outcome.Reason
		}
	}
	line := fmt.Sprintf("%s system=%s gameId=%s ruleId=%s → %s",
		tag, step.Item.System, step.Item.GameID, step.Item.RuleID, outcome.StatusLabel())
	if detail != "" {
		line += " (" + detail + ")"
	}
	return line
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64) + "s"
}

func newRunID(start time.Time) string {
	return ulid.MustNew(ulid.Timestamp(start), ulid.DefaultEntropy()).String()
}
