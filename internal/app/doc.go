// Package app wires the orchestrator together: configuration loading,
// operation graph construction, fingerprinting, cache selection, the
// executor run itself, and the surrounding lifecycle (progress event bus,
// status server, run history, final report rendering).
package app
