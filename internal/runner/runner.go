// Package runner drives a single operation: it consults the result cache
// first, otherwise invokes the operation's process with a structured
// argument vector (never a shell string), captures its output, and stores
// the successful result back into the cache without blocking dependents.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/vk/buildgridgo/internal/cache"
	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/op"
)

// Runner executes or restores individual operations. Safe for concurrent
// use by all executor workers.
type Runner struct {
	// Cache is the result cache, or nil when caching is disabled.
	Cache cache.Cache
	// Timeout bounds one operation's execution. Zero means no limit.
	Timeout time.Duration
	// GracePeriod is how long a terminated process gets between SIGTERM
	// and SIGKILL.
	GracePeriod time.Duration

	mu       sync.Mutex
	inflight map[string]*inflightResult
}

// inflightResult memoizes one in-run execution per fingerprint so two
// operations sharing a fingerprint never both run the underlying process:
// the second waits for the first and adopts its result. Only the claiming
// operation (owner) ever resolves the claim; a waiter that degrades to a
// normal execution runs without touching it, so the done channel closes
// exactly once.
type inflightResult struct {
	owner string
	done  chan struct{}
	entry *cache.Entry
	err   error
}

// New creates a runner. c may be nil to disable result caching.
func New(c cache.Cache, timeout, gracePeriod time.Duration) *Runner {
	if gracePeriod <= 0 {
		gracePeriod = 10 * time.Second
	}
	return &Runner{
		Cache:       c,
		Timeout:     timeout,
		GracePeriod: gracePeriod,
		inflight:    make(map[string]*inflightResult),
	}
}

// TryRestore attempts to satisfy the operation without executing it:
// either from the result cache or by adopting the result of an equivalent
// operation already in flight in this run. It returns hit=true when the
// operation is complete. The only error it returns is run cancellation
// while waiting on an in-flight equivalent; every cache-level failure
// degrades to a miss.
func (r *Runner) TryRestore(ctx context.Context, o *op.Operation) (bool, error) {
	if !o.Phase.Cacheable || r.Cache == nil {
		return false, nil
	}
	logger := ctxlog.FromContext(ctx).With("operation", o.Key())

	r.mu.Lock()
	if existing, ok := r.inflight[o.Fingerprint]; ok {
		r.mu.Unlock()
		return r.adoptInflight(ctx, o, existing)
	}
	// Claim the fingerprint; Execute (or the restore below) resolves it.
	mine := &inflightResult{owner: o.Key(), done: make(chan struct{})}
	r.inflight[o.Fingerprint] = mine
	r.mu.Unlock()

	started := time.Now()
	entry, ok, err := r.Cache.Restore(ctx, o.Fingerprint)
	if err != nil {
		// Cache trouble is never an operation failure.
		logger.Warn("Cache restore failed, treating as miss.", "error", err)
	}
	if !ok {
		return false, nil
	}
	if err := materialize(o, entry); err != nil {
		logger.Warn("Restoring cached outputs failed, re-executing.", "error", err)
		return false, nil
	}

	o.FromCache = true
	o.ExitCode = entry.ExitCode
	o.Output = entry.Output
	o.Duration = time.Since(started)
	mine.entry = entry
	close(mine.done)
	logger.Debug("Cache hit.", "fingerprint", o.Fingerprint[:12])
	return true, nil
}

// adoptInflight waits for the first operation with this fingerprint and
// reuses its result. A failed or unadoptable equivalent degrades to a miss
// so the caller executes normally.
func (r *Runner) adoptInflight(ctx context.Context, o *op.Operation, res *inflightResult) (bool, error) {
	logger := ctxlog.FromContext(ctx).With("operation", o.Key())
	logger.Debug("Fingerprint already in flight, waiting for its result.", "fingerprint", o.Fingerprint[:12])
	started := time.Now()

	select {
	case <-res.done:
	case <-ctx.Done():
		return false, ctx.Err()
	}

	if res.err != nil || res.entry == nil {
		logger.Debug("Equivalent operation did not produce a result, executing.")
		return false, nil
	}
	if err := materialize(o, res.entry); err != nil {
		logger.Warn("Adopting in-flight result failed, executing.", "error", err)
		return false, nil
	}
	o.FromCache = true
	o.ExitCode = res.entry.ExitCode
	o.Output = res.entry.Output
	o.Duration = time.Since(started)
	return true, nil
}

// Execute runs the operation's process, classifies any failure into the
// operation's Reason field, and on success harvests declared outputs into
// the cache. The cache write is fire-and-forget: its latency never blocks
// dependents from becoming ready.
func (r *Runner) Execute(ctx context.Context, o *op.Operation) error {
	logger := ctxlog.FromContext(ctx).With("operation", o.Key())
	started := time.Now()
	defer func() { o.Duration = time.Since(started) }()

	err := r.execute(ctx, o)

	cacheable := o.Phase.Cacheable && r.Cache != nil
	var claim *inflightResult
	if cacheable {
		// Resolve only a claim this operation owns. A waiter that adopted
		// a failed equivalent and fell back to executing reaches here with
		// someone else's already-resolved claim in the map; closing it
		// again would panic.
		r.mu.Lock()
		if c := r.inflight[o.Fingerprint]; c != nil && c.owner == o.Key() {
			claim = c
		}
		r.mu.Unlock()
	}

	if err != nil {
		if claim != nil {
			claim.err = err
			close(claim.done)
		}
		return err
	}

	if cacheable {
		entry := harvest(ctx, o)
		if claim != nil {
			claim.entry = entry
			close(claim.done)
		}
		go func() {
			if storeErr := r.Cache.Store(context.WithoutCancel(ctx), entry); storeErr != nil {
				logger.Warn("Cache store failed, result not persisted.", "error", storeErr)
			}
		}()
	}

	return nil
}

// execute invokes the process and waits for completion, a timeout, or
// cancellation.
func (r *Runner) execute(ctx context.Context, o *op.Operation) error {
	logger := ctxlog.FromContext(ctx).With("operation", o.Key())

	if len(o.Phase.Command) == 0 {
		o.Reason = op.ReasonExit
		return fmt.Errorf("phase %q has no command", o.Phase.Name)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if r.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	var output bytes.Buffer
	cmd := exec.CommandContext(runCtx, o.Phase.Command[0], o.Phase.Command[1:]...)
	cmd.Dir = o.ProjectDir
	cmd.Stdout = &output
	cmd.Stderr = &output
	cmd.Env = append(os.Environ(), envList(o.Phase.Env)...)
	// Ask nicely first; the hard kill comes after the grace period.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = r.GracePeriod

	logger.Debug("Executing process.", "command", strings.Join(o.Phase.Command, " "), "dir", o.ProjectDir)
	err := cmd.Run()
	o.Output = output.Bytes()

	if err == nil {
		o.ExitCode = 0
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		o.ExitCode = exitErr.ExitCode()
	}

	switch {
	case ctx.Err() != nil:
		o.Reason = op.ReasonCancelled
		return fmt.Errorf("operation cancelled: %w", context.Cause(ctx))
	case runCtx.Err() != nil:
		o.Reason = op.ReasonTimeout
		return fmt.Errorf("operation timed out after %s", r.Timeout)
	default:
		o.Reason = op.ReasonExit
		return fmt.Errorf("process failed: %w", err)
	}
}

// harvest collects the declared output files of a successful operation
// into a cache entry.
func harvest(ctx context.Context, o *op.Operation) *cache.Entry {
	logger := ctxlog.FromContext(ctx).With("operation", o.Key())
	entry := &cache.Entry{
		Fingerprint: o.Fingerprint,
		ExitCode:    o.ExitCode,
		Output:      o.Output,
	}

	for _, pattern := range o.Phase.Outputs {
		matches, err := filepath.Glob(filepath.Join(o.ProjectDir, pattern))
		if err != nil {
			logger.Warn("Bad output pattern, not harvested.", "pattern", pattern, "error", err)
			continue
		}
		if len(matches) == 0 {
			logger.Warn("Declared output produced no files.", "pattern", pattern)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || info.IsDir() {
				continue
			}
			content, err := os.ReadFile(m)
			if err != nil {
				logger.Warn("Reading declared output failed, not harvested.", "path", m, "error", err)
				continue
			}
			rel, err := filepath.Rel(o.ProjectDir, m)
			if err != nil {
				continue
			}
			entry.Outputs = append(entry.Outputs, cache.OutputFile{
				Path:    filepath.ToSlash(rel),
				Content: content,
			})
		}
	}
	return entry
}

// materialize writes a cached entry's output files back into the project
// directory.
func materialize(o *op.Operation, entry *cache.Entry) error {
	for _, out := range entry.Outputs {
		dest := filepath.Join(o.ProjectDir, filepath.FromSlash(out.Path))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("creating output dir for %s: %w", out.Path, err)
		}
		if err := os.WriteFile(dest, out.Content, 0o644); err != nil {
			return fmt.Errorf("restoring output %s: %w", out.Path, err)
		}
	}
	return nil
}

func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
