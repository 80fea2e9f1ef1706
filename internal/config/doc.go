// Package config defines the format-agnostic configuration model the
// orchestration engine consumes. Loaders (currently HCL) translate raw
// workspace files into this model; the engine itself never touches a
// parser. This keeps the execution core decoupled from any particular
// configuration syntax.
package config
