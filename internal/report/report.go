// Package report aggregates per-operation outcomes into the run report:
// live progress counts while the run executes, and a final immutable
// summary once it ends. A report is always produced, even for fatal
// configuration errors, so tooling can present a consistent summary
// regardless of failure kind.
package report

import (
	"time"

	"github.com/vk/buildgridgo/internal/op"
)

// OverallStatus classifies the whole run.
type OverallStatus string

const (
	// StatusSuccess means every operation ended Succeeded or CacheHit.
	StatusSuccess OverallStatus = "success"
	// StatusFailure means at least one operation ended Failed or Skipped.
	StatusFailure OverallStatus = "failure"
	// StatusCancelled means the run was interrupted before completing.
	// Never reported as partial success.
	StatusCancelled OverallStatus = "cancelled"
	// StatusConfigError means the run aborted before any operation was
	// dispatched.
	StatusConfigError OverallStatus = "config-error"
)

// Exit codes by run outcome.
const (
	ExitSuccess     = 0
	ExitFailure     = 1
	ExitConfigError = 2
	ExitCancelled   = 3
)

// ExitCode maps an overall status to the process exit status.
func (s OverallStatus) ExitCode() int {
	switch s {
	case StatusSuccess:
		return ExitSuccess
	case StatusCancelled:
		return ExitCancelled
	case StatusConfigError:
		return ExitConfigError
	default:
		return ExitFailure
	}
}

// Outcome is one operation's terminal result.
type Outcome struct {
	// Key is the operation key.
	Key string `json:"key"`
	// Status is the terminal status name.
	Status string `json:"status"`
	// DurationMs is how long execution or restoration took.
	DurationMs int64 `json:"durationMs"`
	// CacheHit is true when the result came from the cache.
	CacheHit bool `json:"cacheHit"`
	// Reason classifies a failure (exit, timeout, cancelled). Empty otherwise.
	Reason string `json:"reason,omitempty"`
	// OutputExcerpt holds the tail of the captured output for failed
	// operations.
	OutputExcerpt string `json:"outputExcerpt,omitempty"`
	// CompletedAt is when the terminal transition was recorded.
	CompletedAt time.Time `json:"completedAt"`
}

// Report is the final, immutable run summary.
type Report struct {
	// RunID uniquely identifies the run.
	RunID string `json:"runId"`
	// Overall is the run's overall status.
	Overall OverallStatus `json:"overallStatus"`
	// Error holds the fatal configuration error for config-error reports.
	Error string `json:"error,omitempty"`
	// StartedAt is when the run began.
	StartedAt time.Time `json:"startedAt"`
	// Duration is the total wall-clock run time.
	Duration time.Duration `json:"durationNs"`
	// Operations lists every terminal outcome in completion order.
	Operations []Outcome `json:"operations"`
	// FailedKeys lists the keys of operations that ended Failed.
	FailedKeys []string `json:"failedKeys,omitempty"`
}

// Counts returns the number of operations per terminal status name.
func (r *Report) Counts() map[string]int {
	counts := make(map[string]int)
	for _, o := range r.Operations {
		counts[o.Status]++
	}
	return counts
}

// CacheHits returns how many operations were served from the cache.
func (r *Report) CacheHits() int {
	n := 0
	for _, o := range r.Operations {
		if o.CacheHit {
			n++
		}
	}
	return n
}

// excerptLimit bounds how much failed-operation output the report retains.
const excerptLimit = 2048

func excerpt(output []byte) string {
	if len(output) <= excerptLimit {
		return string(output)
	}
	return string(output[len(output)-excerptLimit:])
}

// outcomeOf snapshots a terminal operation into a report row.
func outcomeOf(o *op.Operation, at time.Time) Outcome {
	out := Outcome{
		Key:         o.Key(),
		Status:      o.Status().String(),
		DurationMs:  o.Duration.Milliseconds(),
		CacheHit:    o.FromCache,
		CompletedAt: at,
	}
	if o.Status() == op.Failed {
		out.Reason = string(o.Reason)
		out.OutputExcerpt = excerpt(o.Output)
	}
	return out
}
