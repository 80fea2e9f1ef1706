package config

import "time"

// Model is the fully resolved workspace configuration: the project list with
// declared dependencies, the phase definitions, and workspace-level defaults.
type Model struct {
	// Workspace holds workspace-level settings and defaults.
	Workspace *Workspace
	// Projects maps project id to its definition.
	Projects map[string]*Project
	// Phases maps phase name to its definition.
	Phases map[string]*Phase
}

// Workspace holds settings that apply to the whole run rather than to a
// single project or phase.
type Workspace struct {
	// Name is the human-readable workspace name.
	Name string
	// CacheDir is the root directory for the local result cache. Empty means
	// the loader's default (".buildgrid/cache" under the workspace root).
	CacheDir string
	// ToolVersion identifies the orchestrator/toolchain generation. It is
	// folded into every fingerprint so upgrading the tool invalidates prior
	// cache entries.
	ToolVersion string
}

// Project describes one buildable project in the workspace.
type Project struct {
	// ID is the unique project identifier.
	ID string
	// Root is the project directory, relative to the workspace root.
	Root string
	// DependencyIDs lists the ids of projects this project depends on.
	DependencyIDs []string
	// PhaseNames lists the phases this project declares support for.
	PhaseNames []string
}

// Phase describes one build-like phase (build, test, lint, ...): how to
// fingerprint its inputs and how to execute it.
type Phase struct {
	// Name is the unique phase name.
	Name string
	// Command is the structured argument vector to execute, argv[0] being
	// the program. Never joined into a shell string.
	Command []string
	// Env holds extra environment variables for the process, appended to
	// the inherited environment as KEY=VALUE entries.
	Env map[string]string
	// Inputs are glob patterns (relative to the project root) declaring the
	// files that feed the phase's fingerprint.
	Inputs []string
	// Outputs are paths (relative to the project root) the phase produces;
	// they are harvested into the cache and restored on a hit.
	Outputs []string
	// DependsOnUpstream controls cross-project ordering: when true, the
	// operation for a project waits for the same phase of every dependency.
	// A lint-only phase typically sets this to false.
	DependsOnUpstream bool
	// After lists phases of the same project that must complete before this
	// one (a test phase typically runs after build).
	After []string
	// Cacheable controls whether results of this phase may be restored from
	// and stored into the result cache.
	Cacheable bool
}

// FailurePolicy selects how the scheduler reacts to a failed operation.
type FailurePolicy string

const (
	// FailFast stops dispatching new operations after the first failure,
	// letting in-flight operations finish.
	FailFast FailurePolicy = "fail-fast"
	// Continue keeps scheduling every operation whose dependencies
	// succeeded, skipping only operations downstream of a failure.
	Continue FailurePolicy = "continue"
)

// RunOptions are the per-invocation execution options resolved by the CLI.
type RunOptions struct {
	// Phases is the ordered set of requested phase names.
	Phases []string
	// ProjectIDs restricts the run to a subset of projects. Empty means all.
	// Transitive dependencies of the subset are always pulled in so that
	// ordering and fingerprints stay correct.
	ProjectIDs []string
	// MaxConcurrency bounds the number of simultaneously executing
	// operations. Must be > 0.
	MaxConcurrency int
	// Policy is the failure policy for the run.
	Policy FailurePolicy
	// Timeout bounds a single operation's execution. Zero means no limit.
	Timeout time.Duration
	// GracePeriod is how long a cancelled run waits for in-flight processes
	// before force-terminating them.
	GracePeriod time.Duration
	// CacheEnabled toggles the result cache for the whole run.
	CacheEnabled bool
}
