// Package opgraph builds and holds the operation graph for one run: every
// selected (project, phase) pair becomes an operation vertex, and project
// dependencies become predecessor edges for phases that require upstream
// completion. The graph is validated acyclic before any scheduling starts.
package opgraph
