package report

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/buildgridgo/internal/config"
	"github.com/vk/buildgridgo/internal/op"
)

func terminalOp(t *testing.T, projectID string, status op.Status) *op.Operation {
	t.Helper()
	o := op.New(projectID, "/ws/"+projectID, &config.Phase{Name: "build"})
	o.Duration = 42 * time.Millisecond
	switch status {
	case op.Failed:
		o.Reason = op.ReasonExit
		o.Error = errors.New("process failed")
		o.Output = []byte("boom\n")
		o.SetStatus(op.Failed)
	case op.CacheHit:
		o.FromCache = true
		o.SetStatus(op.CacheHit)
	default:
		o.SetStatus(status)
	}
	return o
}

func TestFinalize_Success(t *testing.T) {
	t.Parallel()

	agg := NewAggregator("run-1", 2)
	agg.Record(terminalOp(t, "core", op.Succeeded))
	agg.Record(terminalOp(t, "lib", op.CacheHit))

	rep := agg.Finalize(false)
	assert.Equal(t, StatusSuccess, rep.Overall)
	assert.Equal(t, ExitSuccess, rep.Overall.ExitCode())
	assert.Equal(t, "run-1", rep.RunID)
	assert.Len(t, rep.Operations, 2)
	assert.Equal(t, 1, rep.CacheHits())
	assert.Empty(t, rep.FailedKeys)
}

func TestFinalize_FailureDominates(t *testing.T) {
	t.Parallel()

	agg := NewAggregator("run-2", 3)
	agg.Record(terminalOp(t, "core", op.Failed))
	agg.Record(terminalOp(t, "lib", op.Skipped))
	agg.Record(terminalOp(t, "docs", op.Succeeded))

	rep := agg.Finalize(false)
	assert.Equal(t, StatusFailure, rep.Overall)
	assert.Equal(t, ExitFailure, rep.Overall.ExitCode())
	assert.Equal(t, []string{"core:build"}, rep.FailedKeys)

	counts := rep.Counts()
	assert.Equal(t, 1, counts["failed"])
	assert.Equal(t, 1, counts["skipped"])
	assert.Equal(t, 1, counts["succeeded"])
}

func TestFinalize_IncompleteRunIsNotSuccess(t *testing.T) {
	t.Parallel()

	// Only one of two operations reached a terminal state.
	agg := NewAggregator("run-3", 2)
	agg.Record(terminalOp(t, "core", op.Succeeded))

	rep := agg.Finalize(false)
	assert.Equal(t, StatusFailure, rep.Overall)
}

func TestFinalize_CancelledDominatesEverything(t *testing.T) {
	t.Parallel()

	agg := NewAggregator("run-4", 1)
	agg.Record(terminalOp(t, "core", op.Succeeded))

	rep := agg.Finalize(true)
	assert.Equal(t, StatusCancelled, rep.Overall)
	assert.Equal(t, ExitCancelled, rep.Overall.ExitCode())
}

func TestFinalize_SealsTheAggregator(t *testing.T) {
	t.Parallel()

	agg := NewAggregator("run-5", 1)
	agg.Record(terminalOp(t, "core", op.Succeeded))
	rep := agg.Finalize(false)

	// Late records must not mutate the sealed report.
	agg.Record(terminalOp(t, "late", op.Failed))
	assert.Len(t, rep.Operations, 1)
	assert.Equal(t, 1, agg.Snapshot().Done)
}

func TestSnapshot_LiveProgress(t *testing.T) {
	t.Parallel()

	agg := NewAggregator("run-6", 3)
	assert.Equal(t, 0, agg.Snapshot().Done)

	agg.Record(terminalOp(t, "core", op.Succeeded))
	agg.Record(terminalOp(t, "lib", op.Failed))

	progress := agg.Snapshot()
	assert.Equal(t, 3, progress.Total)
	assert.Equal(t, 2, progress.Done)
	assert.Equal(t, 1, progress.ByStatus["succeeded"])
	assert.Equal(t, 1, progress.ByStatus["failed"])
}

func TestConfigErrorReport(t *testing.T) {
	t.Parallel()

	rep := ConfigErrorReport("run-7", errors.New("unknown phase \"deploy\""))
	assert.Equal(t, StatusConfigError, rep.Overall)
	assert.Equal(t, ExitConfigError, rep.Overall.ExitCode())
	assert.Contains(t, rep.Error, "deploy")
}

func TestOutcome_FailureCarriesExcerptAndReason(t *testing.T) {
	t.Parallel()

	agg := NewAggregator("run-8", 1)
	agg.Record(terminalOp(t, "core", op.Failed))

	rep := agg.Finalize(false)
	require.Len(t, rep.Operations, 1)
	out := rep.Operations[0]
	assert.Equal(t, "exit", out.Reason)
	assert.Equal(t, "boom\n", out.OutputExcerpt)
}

func TestExcerpt_KeepsTheTail(t *testing.T) {
	t.Parallel()

	long := bytes.Repeat([]byte("x"), excerptLimit)
	long = append(long, []byte("the actual error")...)

	got := excerpt(long)
	assert.Len(t, got, excerptLimit)
	assert.Contains(t, got, "the actual error", "the end of the output holds the error and must survive truncation")
}

func TestRender_ContainsSummary(t *testing.T) {
	t.Parallel()

	agg := NewAggregator("run-9", 2)
	agg.Record(terminalOp(t, "core", op.Succeeded))
	agg.Record(terminalOp(t, "lib", op.Failed))
	rep := agg.Finalize(false)

	var buf bytes.Buffer
	Render(&buf, rep)
	out := buf.String()

	assert.Contains(t, out, "core:build")
	assert.Contains(t, out, "lib:build")
	assert.Contains(t, out, "boom")
}
