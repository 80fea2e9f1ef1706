package executor

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/vk/buildgridgo/internal/config"
	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/events"
	"github.com/vk/buildgridgo/internal/op"
	"github.com/vk/buildgridgo/internal/opgraph"
	"github.com/vk/buildgridgo/internal/report"
	"github.com/vk/buildgridgo/internal/runner"
)

// Executor orchestrates the end-to-end execution of an operation graph.
type Executor struct {
	graph      *opgraph.Graph
	runner     *runner.Runner
	numWorkers int
	policy     config.FailurePolicy
	bus        *events.Bus
	aggregator *report.Aggregator

	wg sync.WaitGroup
	// anyFailure flips once the first operation fails; under fail-fast it
	// stops all further dispatch.
	anyFailure atomic.Bool
}

// New creates an executor over a validated, fingerprinted graph. bus may be
// nil when no progress subscribers exist.
func New(graph *opgraph.Graph, r *runner.Runner, numWorkers int, policy config.FailurePolicy, bus *events.Bus, aggregator *report.Aggregator) *Executor {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Executor{
		graph:      graph,
		runner:     r,
		numWorkers: numWorkers,
		policy:     policy,
		bus:        bus,
		aggregator: aggregator,
	}
}

// Run executes the graph and blocks until every operation is terminal. It
// returns true when the run was cancelled before completing. The caller
// finalizes the report from the aggregator.
func (e *Executor) Run(ctx context.Context) (cancelled bool) {
	logger := ctxlog.FromContext(ctx)

	readyChan := make(chan *op.Operation, e.graph.Len())

	logger.Debug("Initializing executor, finding root operations...")
	rootCount := 0
	// Operations() is key-ordered, which makes the initial dispatch order
	// deterministic.
	for _, o := range e.graph.Operations() {
		if o.DepCount() == 0 {
			e.transition(o, op.Pending, op.Ready)
			readyChan <- o
			rootCount++
		}
	}
	logger.Debug("Found all root operations.", "count", rootCount)

	e.wg.Add(e.graph.Len())

	logger.Debug("Starting worker pool.", "workers", e.numWorkers)
	for i := 0; i < e.numWorkers; i++ {
		go e.worker(ctx, readyChan, i)
	}

	logger.Info("Waiting for all operations to complete...")
	e.wg.Wait()
	logger.Info("All operations completed.")
	close(readyChan)

	return ctx.Err() != nil
}

// transition applies a status change, publishes it, and records terminal
// ones. The run itself never depends on event delivery.
func (e *Executor) transition(o *op.Operation, from, to op.Status) {
	o.SetStatus(to)
	e.announce(o, from, to)
}
