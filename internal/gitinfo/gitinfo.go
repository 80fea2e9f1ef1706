// Package gitinfo interrogates the workspace's source-control state once
// at startup. The result is an explicit value threaded into the components
// that need it (fingerprinting), never a hidden process-wide memo.
package gitinfo

import (
	"context"
	"os/exec"
	"strings"

	"github.com/vk/buildgridgo/internal/ctxlog"
)

// Info is the captured source-control state of the workspace.
type Info struct {
	// Revision is the short head revision, or empty outside a repository.
	Revision string
	// Dirty reports uncommitted changes in the worktree.
	Dirty bool
}

// State renders the info as the opaque string folded into fingerprints.
// Empty when the workspace is not under source control.
func (i Info) State() string {
	if i.Revision == "" {
		return ""
	}
	if i.Dirty {
		return i.Revision + "+dirty"
	}
	return i.Revision
}

// Detect inspects the repository containing dir. Any failure (no git, not
// a repository) yields the zero Info; source-control state is an input to
// cache keys, never a requirement.
func Detect(ctx context.Context, dir string) Info {
	logger := ctxlog.FromContext(ctx)

	rev, err := gitOutput(ctx, dir, "rev-parse", "--short", "HEAD")
	if err != nil {
		logger.Debug("No source-control state detected.", "dir", dir, "error", err)
		return Info{}
	}

	status, err := gitOutput(ctx, dir, "status", "--porcelain")
	if err != nil {
		return Info{Revision: rev}
	}

	return Info{Revision: rev, Dirty: status != ""}
}

func gitOutput(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
