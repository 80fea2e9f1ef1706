// Package op defines the Operation, the single schedulable unit of work:
// one (project, phase) pair with its execution state. Operations live for
// exactly one run; only their fingerprints and cache entries persist.
package op

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/vk/buildgridgo/internal/config"
)

// Key builds the canonical operation key for a (project, phase) pair.
// Example: "core:build".
func Key(projectID, phase string) string {
	return projectID + ":" + phase
}

// Status is the execution state of an operation.
type Status int32

const (
	// Pending means at least one predecessor is not yet terminal.
	Pending Status = iota
	// Ready means every predecessor completed successfully and the
	// operation is queued for dispatch.
	Ready
	// Executing means a worker is running the operation's process.
	Executing
	// CacheHit means the result was restored from the cache. Terminal;
	// equivalent to Succeeded for downstream readiness.
	CacheHit
	// Succeeded means the operation's process completed successfully. Terminal.
	Succeeded
	// Failed means the operation's process failed, timed out, or was
	// cancelled. Terminal.
	Failed
	// Skipped means a predecessor failed so the operation never ran.
	// Terminal; distinct from Failed in reporting.
	Skipped
)

// String returns the lowercase name of the status.
func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Executing:
		return "executing"
	case CacheHit:
		return "cache-hit"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	switch s {
	case CacheHit, Succeeded, Failed, Skipped:
		return true
	}
	return false
}

// Completed reports whether the status counts as successful completion for
// downstream readiness.
func (s Status) Completed() bool {
	return s == Succeeded || s == CacheHit
}

// FailReason distinguishes why an operation ended Failed.
type FailReason string

const (
	// ReasonExit marks a non-zero or abnormal process termination.
	ReasonExit FailReason = "exit"
	// ReasonTimeout marks an operation that exceeded its configured timeout.
	ReasonTimeout FailReason = "timeout"
	// ReasonCancelled marks an operation terminated by run cancellation.
	ReasonCancelled FailReason = "cancelled"
)

// Operation is a single vertex in the operation graph.
type Operation struct {
	// ProjectID identifies the owning project.
	ProjectID string
	// ProjectDir is the absolute working directory for the process.
	ProjectDir string
	// Phase is the resolved definition of the phase to run.
	Phase *config.Phase

	// Fingerprint is the operation's content digest. Set exactly once,
	// before scheduling begins, and immutable afterwards.
	Fingerprint string

	// Error stores the failure cause once the operation is terminal.
	Error error
	// Reason classifies a Failed terminal state.
	Reason FailReason
	// Output is the captured combined process output. Owned exclusively by
	// the executing worker until the operation publishes a terminal state.
	Output []byte
	// ExitCode is the process exit code, or -1 when no process ran.
	ExitCode int
	// FromCache is true when the result was restored rather than executed.
	FromCache bool
	// Duration is how long execution or restoration took.
	Duration time.Duration

	key string

	// depCount is the atomic count of predecessors not yet completed.
	depCount atomic.Int32
	// state is the operation's current status, managed atomically.
	state atomic.Int32
	// skipOnce guarantees the skip transition is published exactly once
	// even when several failed predecessors race to propagate.
	skipOnce sync.Once
}

// New creates a pending operation for the given project and phase.
func New(projectID, projectDir string, phase *config.Phase) *Operation {
	return &Operation{
		ProjectID:  projectID,
		ProjectDir: projectDir,
		Phase:      phase,
		ExitCode:   -1,
		key:        Key(projectID, phase.Name),
	}
}

// Key returns the operation's unique key.
func (o *Operation) Key() string {
	return o.key
}

// Status atomically retrieves the operation's current status.
func (o *Operation) Status() Status {
	return Status(o.state.Load())
}

// SetStatus atomically sets the operation's status.
func (o *Operation) SetStatus(s Status) {
	o.state.Store(int32(s))
}

// SetDepCount initialises the unmet-predecessor counter.
func (o *Operation) SetDepCount(n int32) {
	o.depCount.Store(n)
}

// DepCount returns the current number of unmet predecessors.
func (o *Operation) DepCount() int32 {
	return o.depCount.Load()
}

// DecrementDepCount atomically decrements the predecessor counter and
// returns the new value.
func (o *Operation) DecrementDepCount() int32 {
	return o.depCount.Add(-1)
}

// Skip marks the operation Skipped exactly once, recording the upstream
// cause. It returns true if this call performed the transition.
func (o *Operation) Skip(cause error) bool {
	var first bool
	o.skipOnce.Do(func() {
		o.SetStatus(Skipped)
		o.Error = cause
		first = true
	})
	return first
}
