// Package fingerprint computes the deterministic content digest that
// identifies an operation's inputs: declared input files, the phase
// configuration snapshot, the tool version, and the fingerprints of every
// predecessor operation. Identical fingerprints mean interchangeable
// results for caching purposes.
//
// Computation is pure: no wall-clock time, machine identity, or execution
// ordering ever feeds the digest.
package fingerprint
