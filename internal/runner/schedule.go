package runner

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/torosent/rulefire/internal/feeder"
)

// StepKind identifies a scheduler signal.
type StepKind int

const (
	StepBatchStart StepKind = iota + 1
	StepDispatch
	StepPause
)

// Step is one signal produced by the Scheduler.
type Step struct {
	Kind     StepKind
	Index    int // 0-based position of Item in the input; dispatch only
	Batch    int // 1-based batch number
	Batches  int
	BatchLen int
	Item     feeder.WorkItem
	Pause    time.Duration // pause only
}

// StepFunc handles one step. A non-nil error stops the scheduler.
type StepFunc func(ctx context.Context, step Step) error

// SleepFunc suspends for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Scheduler partitions items into batches and paces their dispatch.
type Scheduler struct {
	BatchSize           int
	PauseBetweenBatches time.Duration
	DelayBetweenItems   time.Duration
	Limiter             *rate.Limiter // optional requests-per-second ceiling
	Sleep               SleepFunc     // optional injection for tests
}

// BatchCount returns ceil(total/size).
func BatchCount(total, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// Batches splits items into contiguous slices of at most size elements.
func Batches(items []feeder.WorkItem, size int) [][]feeder.WorkItem {
	if size <= 0 {
		return nil
	}
	out := make([][]feeder.WorkItem, 0, BatchCount(len(items), size))
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}

// Run walks items in order. fn is called synchronously for every step, so
// the next item is never signalled before the previous one was handled.
// The context is checked before each dispatch and interrupts the delays.
func (s Scheduler) Run(ctx context.Context, items []feeder.WorkItem, fn StepFunc) error {
	if s.BatchSize < 1 {
		return errors.New("batch size must be >= 1")
	}
	sleep := s.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	batches := Batches(items, s.BatchSize)
	index := 0
	for b, batch := range batches {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ctx, Step{Kind: StepBatchStart, Batch: b + 1, Batches: len(batches), BatchLen: len(batch)}); err != nil {
			return err
		}

		for _, item := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			if s.Limiter != nil {
				if err := waitTurn(ctx, s.Limiter); err != nil {
					return err
				}
			}
			step := Step{
				Kind:     StepDispatch,
				Index:    index,
				Batch:    b + 1,
				Batches:  len(batches),
				BatchLen: len(batch),
				Item:     item,
			}
			if err := fn(ctx, step); err != nil {
				return err
			}
			index++
			if err := sleep(ctx, s.DelayBetweenItems); err != nil {
				return err
			}
		}

		if b < len(batches)-1 {
			step := Step{Kind: StepPause, Batch: b + 1, Batches: len(batches), BatchLen: len(batch), Pause: s.PauseBetweenBatches}
			if err := fn(ctx, step); err != nil {
				return err
			}
			if err := sleep(ctx, s.PauseBetweenBatches); err != nil {
				return err
			}
		}
	}
	return nil
}

// waitTurn blocks until l admits the next dispatch. The limiter refuses up
// front a wait that would outlive ctx's deadline; that is reported as
// context.DeadlineExceeded so callers see a cancellation, not a failure.
func waitTurn(ctx context.Context, l *rate.Limiter) error {
	err := l.Wait(ctx)
	if err == nil {
		return nil
	}
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	if _, ok := ctx.Deadline(); ok {
		return context.DeadlineExceeded
	}
	return err
}

// Sleep waits for d unless ctx is done first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// newLimiter builds a limiter for sequential dispatch: one token, refilled
// rps times per second. rps <= 0 disables the ceiling.
func newLimiter(rps int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}
