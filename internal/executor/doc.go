// Package executor is the ready-set scheduler at the core of the
// orchestrator: a fixed-size worker pool walks the operation graph,
// dispatching every operation whose predecessors have all completed
// successfully, propagating skips below failures per the configured
// failure policy, and honoring run cancellation with a bounded grace
// period.
//
// Dispatch order among simultaneously ready operations is FIFO by
// readiness time through a buffered channel; with bounded workers no
// ready operation can wait indefinitely while capacity is free.
package executor
