package report

import (
	"sort"
	"sync"
	"time"

	"github.com/vk/buildgridgo/internal/op"
)

// Aggregator accumulates terminal operation events in completion order and
// exposes live progress counts while the run is underway. Safe for
// concurrent use by multiple workers.
type Aggregator struct {
	mu        sync.Mutex
	runID     string
	total     int
	startedAt time.Time
	outcomes  []Outcome
	finalized bool
}

// NewAggregator creates an aggregator for a run over total operations.
func NewAggregator(runID string, total int) *Aggregator {
	return &Aggregator{
		runID:     runID,
		total:     total,
		startedAt: time.Now(),
	}
}

// Record captures an operation's terminal outcome. Called exactly once per
// operation, after its terminal transition is published.
func (a *Aggregator) Record(o *op.Operation) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized {
		return
	}
	a.outcomes = append(a.outcomes, outcomeOf(o, time.Now()))
}

// Progress is a live snapshot of the run state.
type Progress struct {
	// RunID identifies the run.
	RunID string `json:"runId"`
	// Total is the number of operations in the graph.
	Total int `json:"total"`
	// Done is the number of terminal operations so far.
	Done int `json:"done"`
	// ByStatus counts terminal operations per status name.
	ByStatus map[string]int `json:"byStatus"`
}

// Snapshot returns the current live progress.
func (a *Aggregator) Snapshot() Progress {
	a.mu.Lock()
	defer a.mu.Unlock()

	byStatus := make(map[string]int)
	for _, o := range a.outcomes {
		byStatus[o.Status]++
	}
	return Progress{
		RunID:    a.runID,
		Total:    a.total,
		Done:     len(a.outcomes),
		ByStatus: byStatus,
	}
}

// Finalize seals the aggregator and produces the immutable report. The
// overall status is derived from the outcomes unless the run was cancelled,
// which always dominates.
func (a *Aggregator) Finalize(cancelled bool) *Report {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finalized = true

	r := &Report{
		RunID:      a.runID,
		StartedAt:  a.startedAt,
		Duration:   time.Since(a.startedAt),
		Operations: append([]Outcome(nil), a.outcomes...),
	}

	clean := true
	for _, o := range a.outcomes {
		switch o.Status {
		case op.Failed.String():
			clean = false
			r.FailedKeys = append(r.FailedKeys, o.Key)
		case op.Skipped.String():
			clean = false
		}
	}
	sort.Strings(r.FailedKeys)

	switch {
	case cancelled:
		r.Overall = StatusCancelled
	case clean && len(a.outcomes) == a.total:
		r.Overall = StatusSuccess
	default:
		r.Overall = StatusFailure
	}
	return r
}

// ConfigErrorReport builds the minimal report for a run that aborted on a
// fatal configuration error before any operation was dispatched.
func ConfigErrorReport(runID string, err error) *Report {
	return &Report{
		RunID:     runID,
		Overall:   StatusConfigError,
		Error:     err.Error(),
		StartedAt: time.Now(),
	}
}
