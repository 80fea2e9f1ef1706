// Package cache provides the content-addressed result cache: a pluggable
// store mapping an operation fingerprint to a reusable outcome. The cache
// is advisory: a miss (including a failed or corrupt read) is always
// safe, and losing a write only costs a future rebuild.
package cache

import "context"

// Entry is one cached operation result. Entries are immutable once stored.
type Entry struct {
	// Fingerprint identifies the entry.
	Fingerprint string `json:"fingerprint"`
	// ExitCode is the recorded process exit code.
	ExitCode int `json:"exit_code"`
	// Output is the captured combined process output.
	Output []byte `json:"output"`
	// Outputs holds the harvested output files.
	Outputs []OutputFile `json:"outputs"`
}

// OutputFile is a single produced file captured into the cache.
type OutputFile struct {
	// Path is the file path relative to the project root.
	Path string `json:"path"`
	// Content is the file content. Backends may store it out of line.
	Content []byte `json:"-"`
}

// Cache stores and retrieves operation results keyed by fingerprint.
// Implementations must support concurrent calls for distinct fingerprints
// without caller-side locking.
type Cache interface {
	// Restore returns the entry for the fingerprint, or ok=false on a miss.
	// Read failures degrade to a miss; the error is returned for logging
	// only and never aborts the run.
	Restore(ctx context.Context, fingerprint string) (entry *Entry, ok bool, err error)

	// Store persists an entry under its fingerprint. The first write for a
	// fingerprint wins; overwriting an existing entry is not required.
	Store(ctx context.Context, entry *Entry) error
}
