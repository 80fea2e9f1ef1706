package fingerprint

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/buildgridgo/internal/config"
	"github.com/vk/buildgridgo/internal/op"
	"github.com/vk/buildgridgo/internal/opgraph"
	"github.com/vk/buildgridgo/internal/project"
)

// fingerprintWorkspace writes a two-project workspace (lib <- app) with one
// source file each and returns its root.
func fingerprintWorkspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, p := range []string{"lib", "app"} {
		dir := filepath.Join(root, p)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "main.src"), []byte(p+" v1"), 0o600))
	}
	return root
}

func fingerprintModel() *config.Model {
	return &config.Model{
		Workspace: &config.Workspace{},
		Projects: map[string]*config.Project{
			"lib": {ID: "lib", Root: "lib", PhaseNames: []string{"build"}},
			"app": {ID: "app", Root: "app", DependencyIDs: []string{"lib"}, PhaseNames: []string{"build"}},
		},
		Phases: map[string]*config.Phase{
			"build": {
				Name:              "build",
				Command:           []string{"true"},
				Inputs:            []string{"*.src"},
				DependsOnUpstream: true,
				Cacheable:         true,
			},
		},
	}
}

func buildFingerprinted(t *testing.T, root string, calc *Calculator) *opgraph.Graph {
	t.Helper()
	model := fingerprintModel()
	projects, err := project.FromModel(model)
	require.NoError(t, err)
	graph, err := opgraph.Build(context.Background(), projects, model, &config.RunOptions{Phases: []string{"build"}}, root)
	require.NoError(t, err)
	require.NoError(t, calc.ComputeAll(context.Background(), graph))
	return graph
}

func TestCompute_SectionBoundariesAreUnambiguous(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	calc := &Calculator{ToolVersion: "v1"}

	// Both phases feed the identical value stream into the digest; only
	// which section the last value belongs to differs.
	tailInCommand := op.New("proj", dir, &config.Phase{
		Name:      "build",
		Command:   []string{"sh", "artifact.bin"},
		Cacheable: true,
	})
	tailInOutputs := op.New("proj", dir, &config.Phase{
		Name:      "build",
		Command:   []string{"sh"},
		Outputs:   []string{"artifact.bin"},
		Cacheable: true,
	})

	a, err := calc.compute(tailInCommand, nil)
	require.NoError(t, err)
	b, err := calc.compute(tailInOutputs, nil)
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "a value moving from command to outputs must change the fingerprint")
}

func TestComputeAll_Deterministic(t *testing.T) {
	t.Parallel()

	root := fingerprintWorkspace(t)
	calc := &Calculator{ToolVersion: "v1", VCSState: "abc123"}

	first := buildFingerprinted(t, root, calc)
	second := buildFingerprinted(t, root, calc)

	for _, key := range first.Keys() {
		a, _ := first.Get(key)
		b, _ := second.Get(key)
		require.NotEmpty(t, a.Fingerprint)
		assert.Equal(t, a.Fingerprint, b.Fingerprint, "fingerprint of %s must be stable across runs", key)
	}
}

func TestComputeAll_InputChangePropagatesDownstream(t *testing.T) {
	t.Parallel()

	root := fingerprintWorkspace(t)
	calc := &Calculator{ToolVersion: "v1"}

	before := buildFingerprinted(t, root, calc)

	// Flip one byte in lib's source.
	require.NoError(t, os.WriteFile(filepath.Join(root, "lib", "main.src"), []byte("lib v2"), 0o600))

	after := buildFingerprinted(t, root, calc)

	libBefore, _ := before.Get("lib:build")
	libAfter, _ := after.Get("lib:build")
	assert.NotEqual(t, libBefore.Fingerprint, libAfter.Fingerprint, "changed input must change the fingerprint")

	appBefore, _ := before.Get("app:build")
	appAfter, _ := after.Get("app:build")
	assert.NotEqual(t, appBefore.Fingerprint, appAfter.Fingerprint, "upstream change must cascade to dependents")
}

func TestComputeAll_ToolVersionInvalidates(t *testing.T) {
	t.Parallel()

	root := fingerprintWorkspace(t)

	v1 := buildFingerprinted(t, root, &Calculator{ToolVersion: "v1"})
	v2 := buildFingerprinted(t, root, &Calculator{ToolVersion: "v2"})

	a, _ := v1.Get("lib:build")
	b, _ := v2.Get("lib:build")
	assert.NotEqual(t, a.Fingerprint, b.Fingerprint)
}

func TestComputeAll_MissingLiteralInput(t *testing.T) {
	t.Parallel()

	root := fingerprintWorkspace(t)
	model := fingerprintModel()
	model.Phases["build"].Inputs = []string{"does-not-exist.txt"}

	projects, err := project.FromModel(model)
	require.NoError(t, err)
	graph, err := opgraph.Build(context.Background(), projects, model, &config.RunOptions{Phases: []string{"build"}}, root)
	require.NoError(t, err)

	calc := &Calculator{ToolVersion: "v1"}
	err = calc.ComputeAll(context.Background(), graph)
	require.Error(t, err)

	var missing *MissingInputError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "does-not-exist.txt", missing.Path)
	assert.NotEmpty(t, missing.OperationKey)
}

func TestComputeAll_EmptyGlobIsNotAnError(t *testing.T) {
	t.Parallel()

	root := fingerprintWorkspace(t)
	model := fingerprintModel()
	model.Phases["build"].Inputs = []string{"*.nothing"}

	projects, err := project.FromModel(model)
	require.NoError(t, err)
	graph, err := opgraph.Build(context.Background(), projects, model, &config.RunOptions{Phases: []string{"build"}}, root)
	require.NoError(t, err)

	require.NoError(t, (&Calculator{ToolVersion: "v1"}).ComputeAll(context.Background(), graph))
}

func TestResolveInputs_DirectoryWalksRecursively(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src", "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "a.txt"), []byte("a"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "nested", "b.txt"), []byte("b"), 0o600))

	files, err := resolveInputs(dir, []string{"src"})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "src/a.txt", files[0].Rel)
	assert.Equal(t, "src/nested/b.txt", files[1].Rel)
}
