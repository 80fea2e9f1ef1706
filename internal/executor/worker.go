package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/buildgridgo/internal/config"
	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/events"
	"github.com/vk/buildgridgo/internal/op"
)

// worker is the core processing loop for a single concurrent worker.
func (e *Executor) worker(ctx context.Context, readyChan chan *op.Operation, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for o := range readyChan {
		workerLogger := logger.With("workerID", workerID, "operation", o.Key())

		// An operation can be enqueued after a skip cascade already
		// terminated it (its other predecessors completed). Its accounting
		// is done; just drop it.
		if o.Status().Terminal() {
			continue
		}

		if ctx.Err() != nil {
			workerLogger.Warn("Run cancelled, not dispatching operation.")
			o.Error = ctx.Err()
			o.Reason = op.ReasonCancelled
			e.transition(o, op.Ready, op.Failed)
			e.skipDependents(ctx, o)
			e.wg.Done()
			continue
		}

		if e.policy == config.FailFast && e.anyFailure.Load() {
			e.skipCascade(ctx, o, fmt.Errorf("not started: run is failing fast"))
			continue
		}

		hit, err := e.runner.TryRestore(ctx, o)
		if err != nil {
			workerLogger.Warn("Run cancelled while awaiting an equivalent operation.")
			o.Error = err
			o.Reason = op.ReasonCancelled
			e.transition(o, op.Ready, op.Failed)
			e.skipDependents(ctx, o)
			e.wg.Done()
			continue
		}
		if hit {
			workerLogger.Debug("Operation restored from cache.")
			e.transition(o, op.Ready, op.CacheHit)
			e.unlockDependents(workerLogger, o, readyChan)
			e.wg.Done()
			continue
		}

		workerLogger.Debug("Worker picked up operation for execution.")
		e.transition(o, op.Ready, op.Executing)

		if err := e.runner.Execute(ctx, o); err != nil {
			workerLogger.Error("Operation failed.", "error", err, "reason", string(o.Reason))
			o.Error = err
			e.anyFailure.Store(true)
			e.transition(o, op.Executing, op.Failed)
			e.skipDependents(ctx, o)
			e.wg.Done()
			continue
		}

		workerLogger.Debug("Operation succeeded.")
		e.transition(o, op.Executing, op.Succeeded)
		e.unlockDependents(workerLogger, o, readyChan)
		e.wg.Done()
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

// unlockDependents decrements each successor's unmet-predecessor count and
// enqueues any that become ready. A successor a skip cascade already
// terminated is accounted for and never enqueued.
func (e *Executor) unlockDependents(logger interface{ Debug(string, ...any) }, o *op.Operation, readyChan chan *op.Operation) {
	dependents, err := e.graph.Dependents(o.Key())
	if err != nil {
		return
	}
	for _, key := range dependents {
		dep, _ := e.graph.Get(key)
		if dep.DecrementDepCount() == 0 && !dep.Status().Terminal() {
			logger.Debug("Unlocking dependent operation.", "dependent", key)
			e.transition(dep, op.Pending, op.Ready)
			readyChan <- dep
		}
	}
}

// skipDependents marks every operation downstream of a failed one as
// skipped, recursively.
func (e *Executor) skipDependents(ctx context.Context, o *op.Operation) {
	dependents, err := e.graph.Dependents(o.Key())
	if err != nil {
		return
	}
	for _, key := range dependents {
		dep, _ := e.graph.Get(key)
		e.skipCascade(ctx, dep, fmt.Errorf("skipped due to upstream failure of '%s'", o.Key()))
	}
}

// skipCascade terminates one operation as Skipped exactly once, then
// cascades to its own dependents. The sync.Once inside Skip keeps racing
// cascades from double-counting the WaitGroup.
func (e *Executor) skipCascade(ctx context.Context, o *op.Operation, cause error) {
	logger := ctxlog.FromContext(ctx)
	from := o.Status()
	if !o.Skip(cause) {
		return
	}
	logger.Warn("Skipping operation.", "operation", o.Key(), "cause", cause)
	e.announce(o, from, op.Skipped)
	e.wg.Done()
	e.skipDependents(ctx, o)
}

// announce publishes and records a transition already applied to the
// operation (used where the status was set under a once-guard).
func (e *Executor) announce(o *op.Operation, from, to op.Status) {
	if e.bus != nil {
		_ = e.bus.Publish(events.StatusChange{
			OperationKey: o.Key(),
			OldStatus:    from.String(),
			NewStatus:    to.String(),
			Timestamp:    time.Now(),
		})
	}
	if to.Terminal() && e.aggregator != nil {
		e.aggregator.Record(o)
	}
}
