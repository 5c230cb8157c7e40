// Package runner provides the batch execution engine for rulefire.
//
// A run loads its work items once, then walks them strictly in input order,
// one request at a time:
//
//	r := runner.New(runner.Options{
//		Executor: executor,
//		OpenLog:  openLog,
//		Observer: observer,
//	})
//	summary, err := r.Run(ctx, runner.RunConfig{
//		Source:              feeder.FileSource{Path: "rules.csv"},
//		Credential:          cookie,
//		BatchSize:           100,
//		PauseBetweenBatches: 5 * time.Second,
//	})
//
// # Pacing
//
// The [Scheduler] splits the items into contiguous batches of BatchSize,
// sleeps DelayBetweenItems after every dispatched item and additionally
// PauseBetweenBatches between two batches. An optional requests-per-second
// ceiling is enforced with a [golang.org/x/time/rate] limiter.
//
// # Executor Interface
//
// The [Executor] interface performs the remote call for one item and
// classifies it:
//
//	type Executor interface {
//		Execute(ctx context.Context, item feeder.WorkItem, credential string) Outcome
//	}
//
// Executors never return errors: transport failures become a failed
// [Outcome]. Only an unreadable input or a durable log write failure aborts
// a run.
//
// # Observers
//
// Progress is pushed synchronously to an [Observer] after each item, so an
// observer never sees updates ahead of the durable log.
//
// # Cancellation
//
// Cancelling the context stops the run between items. An in-flight call is
// never interrupted by the runner itself; it is bounded by the executor's
// own timeout.
package runner
