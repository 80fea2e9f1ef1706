package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"os"
	"sort"

	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/op"
	"github.com/vk/buildgridgo/internal/opgraph"
)

// Calculator assigns every operation in a graph its fingerprint. The
// ambient inputs (tool version, source-control state) are captured once at
// startup and passed in explicitly rather than looked up through hidden
// global state.
type Calculator struct {
	// ToolVersion identifies the orchestrator generation.
	ToolVersion string
	// VCSState is an opaque source-control descriptor (e.g. "rev short
	// hash" plus a dirty marker) folded into every fingerprint. Empty when
	// source-control interrogation is disabled.
	VCSState string
}

// ComputeAll walks the graph in dependency order and sets each operation's
// fingerprint. It must run to completion before scheduling begins: an
// operation is never dispatched with an undefined fingerprint.
func (c *Calculator) ComputeAll(ctx context.Context, graph *opgraph.Graph) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Fingerprinting operations in dependency order.")

	for _, key := range graph.TopologicalOrder() {
		o, _ := graph.Get(key)

		depKeys, err := graph.Dependencies(key)
		if err != nil {
			return err
		}
		// Dependencies are already sorted by key, which keeps the
		// predecessor digest order stable regardless of execution order.
		predFPs := make([]string, 0, len(depKeys))
		for _, depKey := range depKeys {
			dep, _ := graph.Get(depKey)
			if dep.Fingerprint == "" {
				return fmt.Errorf("predecessor %s of %s has no fingerprint", depKey, key)
			}
			predFPs = append(predFPs, dep.Fingerprint)
		}

		fp, err := c.compute(o, predFPs)
		if err != nil {
			var missing *MissingInputError
			if errors.As(err, &missing) {
				missing.OperationKey = key
				return missing
			}
			return fmt.Errorf("fingerprinting %s: %w", key, err)
		}
		o.Fingerprint = fp
		logger.Debug("Operation fingerprinted.", "operation", key, "fingerprint", fp[:12])
	}

	return nil
}

// compute digests one operation: tool identity, phase configuration
// snapshot, resolved input files (relative path plus content), and the
// predecessor fingerprints. Every field is length-prefixed, and every
// variable-length section opens with its name and element count, so
// neither adjacent fields nor adjacent sections can alias each other.
func (c *Calculator) compute(o *op.Operation, predFPs []string) (string, error) {
	h := sha256.New()

	writeField(h, []byte(c.ToolVersion))
	writeField(h, []byte(c.VCSState))
	writeField(h, []byte(o.Phase.Name))

	writeSection(h, "command", len(o.Phase.Command))
	for _, arg := range o.Phase.Command {
		writeField(h, []byte(arg))
	}

	envKeys := make([]string, 0, len(o.Phase.Env))
	for k := range o.Phase.Env {
		envKeys = append(envKeys, k)
	}
	sort.Strings(envKeys)
	writeSection(h, "env", len(envKeys))
	for _, k := range envKeys {
		writeField(h, []byte(k))
		writeField(h, []byte(o.Phase.Env[k]))
	}

	outputs := append([]string(nil), o.Phase.Outputs...)
	sort.Strings(outputs)
	writeSection(h, "outputs", len(outputs))
	for _, out := range outputs {
		writeField(h, []byte(out))
	}

	inputs, err := resolveInputs(o.ProjectDir, o.Phase.Inputs)
	if err != nil {
		return "", err
	}
	writeSection(h, "inputs", len(inputs))
	for _, in := range inputs {
		content, err := os.ReadFile(in.Abs)
		if err != nil {
			return "", fmt.Errorf("reading input %s: %w", in.Rel, err)
		}
		writeField(h, []byte(in.Rel))
		writeField(h, content)
	}

	writeSection(h, "deps", len(predFPs))
	for _, fp := range predFPs {
		writeField(h, []byte(fp))
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// writeField writes a single length-prefixed field into the digest.
func writeField(h hash.Hash, data []byte) {
	var prefix [8]byte
	binary.BigEndian.PutUint64(prefix[:], uint64(len(data)))
	h.Write(prefix[:])
	h.Write(data)
}

// writeSection marks the start of a variable-length section. Without the
// name and count, dropping the last element of one section and prepending
// it to the next would leave the concatenated field stream, and therefore
// the fingerprint, unchanged.
func writeSection(h hash.Hash, name string, count int) {
	writeField(h, []byte(name))
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(count))
	h.Write(n[:])
}
