package report

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/vk/buildgridgo/internal/op"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func colorize(status string) string {
	switch status {
	case op.Succeeded.String():
		return green(status)
	case op.CacheHit.String():
		return cyan(status)
	case op.Failed.String():
		return red(status)
	case op.Skipped.String():
		return yellow(status)
	default:
		return status
	}
}

// Render writes a human-readable run summary to w.
func Render(w io.Writer, r *Report) {
	if r.Overall == StatusConfigError {
		fmt.Fprintf(w, "%s %s\n", red("✗ configuration error:"), r.Error)
		return
	}

	fmt.Fprintf(w, "\n%s run %s\n", bold("Run report"), r.RunID)
	for _, o := range r.Operations {
		marker := "  "
		if o.CacheHit {
			marker = "⚡ "
		}
		fmt.Fprintf(w, "  %s%-32s %-10s %6dms\n", marker, o.Key, colorize(o.Status), o.DurationMs)
		if o.Status == op.Failed.String() && o.OutputExcerpt != "" {
			fmt.Fprintf(w, "      %s (%s)\n", red("failure output:"), o.Reason)
			fmt.Fprintf(w, "      %s\n", o.OutputExcerpt)
		}
	}

	counts := r.Counts()
	fmt.Fprintf(w, "\n  %d operations in %s: %s succeeded, %s from cache, %s failed, %s skipped\n",
		len(r.Operations),
		r.Duration.Round(time.Millisecond),
		green(fmt.Sprint(counts[op.Succeeded.String()])),
		cyan(fmt.Sprint(counts[op.CacheHit.String()])),
		red(fmt.Sprint(counts[op.Failed.String()])),
		yellow(fmt.Sprint(counts[op.Skipped.String()])),
	)

	switch r.Overall {
	case StatusSuccess:
		fmt.Fprintf(w, "  %s\n", green("✔ success"))
	case StatusCancelled:
		fmt.Fprintf(w, "  %s\n", yellow("⚠ run cancelled, results are incomplete"))
	default:
		fmt.Fprintf(w, "  %s\n", red("✗ failure"))
	}
}
