package hclloader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeWorkspace writes each named HCL file into a fresh temp workspace
// and returns its root.
func writeWorkspace(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	return root
}

const validWorkspace = `
workspace {
  name         = "acme"
  cache_dir    = ".cache/results"
  tool_version = "2024.1"
}

phase "build" {
  command = ["make", "build"]
  inputs  = ["src/**", "Makefile"]
  outputs = ["dist/*"]
}

phase "test" {
  command = ["make", "test"]
  after   = ["build"]
  env     = { CI = "1" }
}

phase "lint" {
  command             = ["make", "lint"]
  depends_on_upstream = false
  cacheable           = false
}

project "core" {
  path = "core"
}

project "app" {
  path         = "services/app"
  dependencies = ["core"]
  phases       = ["build", "test"]
}
`

func TestLoad_FullWorkspace(t *testing.T) {
	t.Parallel()

	root := writeWorkspace(t, map[string]string{"main.hcl": validWorkspace})
	model, err := NewLoader().Load(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, "acme", model.Workspace.Name)
	assert.Equal(t, ".cache/results", model.Workspace.CacheDir)
	assert.Equal(t, "2024.1", model.Workspace.ToolVersion)

	require.Len(t, model.Phases, 3)
	build := model.Phases["build"]
	assert.Equal(t, []string{"make", "build"}, build.Command)
	assert.Equal(t, []string{"src/**", "Makefile"}, build.Inputs)
	assert.True(t, build.DependsOnUpstream, "depends_on_upstream must default to true")
	assert.True(t, build.Cacheable, "cacheable must default to true")

	test := model.Phases["test"]
	assert.Equal(t, []string{"build"}, test.After)
	assert.Equal(t, "1", test.Env["CI"])

	lint := model.Phases["lint"]
	assert.False(t, lint.DependsOnUpstream)
	assert.False(t, lint.Cacheable)

	require.Len(t, model.Projects, 2)
	app := model.Projects["app"]
	assert.Equal(t, "services/app", app.Root)
	assert.Equal(t, []string{"core"}, app.DependencyIDs)
	assert.Equal(t, []string{"build", "test"}, app.PhaseNames)
}

func TestLoad_ProjectWithoutPhasesInheritsAll(t *testing.T) {
	t.Parallel()

	root := writeWorkspace(t, map[string]string{"main.hcl": validWorkspace})
	model, err := NewLoader().Load(context.Background(), root)
	require.NoError(t, err)

	core := model.Projects["core"]
	assert.ElementsMatch(t, []string{"build", "test", "lint"}, core.PhaseNames)
}

func TestLoad_MergesMultipleFiles(t *testing.T) {
	t.Parallel()

	root := writeWorkspace(t, map[string]string{
		"phases.hcl": `
			phase "build" {
				command = ["make"]
			}
		`,
		"teams/core.hcl": `
			project "core" {
				path = "core"
			}
		`,
	})

	model, err := NewLoader().Load(context.Background(), root)
	require.NoError(t, err)
	assert.Len(t, model.Phases, 1)
	assert.Len(t, model.Projects, 1)
}

func TestLoad_WorkspaceRootVariable(t *testing.T) {
	t.Parallel()

	root := writeWorkspace(t, map[string]string{"main.hcl": `
		phase "build" {
			command = ["make"]
			env     = { WS_ROOT = "${workspace.root}" }
		}
	`})

	model, err := NewLoader().Load(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, root, model.Phases["build"].Env["WS_ROOT"])
}

func TestLoad_NoFilesIsAnError(t *testing.T) {
	t.Parallel()

	_, err := NewLoader().Load(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no .hcl workspace files")
}

func TestLoad_SyntaxError(t *testing.T) {
	t.Parallel()

	root := writeWorkspace(t, map[string]string{"broken.hcl": `phase "build" { command = [`})
	_, err := NewLoader().Load(context.Background(), root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestLoad_DuplicatePhase(t *testing.T) {
	t.Parallel()

	root := writeWorkspace(t, map[string]string{
		"a.hcl": `phase "build" { command = ["make"] }`,
		"b.hcl": `phase "build" { command = ["ninja"] }`,
	})
	_, err := NewLoader().Load(context.Background(), root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate phase "build"`)
}

func TestLoad_UnknownDependency(t *testing.T) {
	t.Parallel()

	root := writeWorkspace(t, map[string]string{"main.hcl": `
		phase "build" { command = ["make"] }
		project "app" {
			path         = "app"
			dependencies = ["ghost"]
		}
	`})
	_, err := NewLoader().Load(context.Background(), root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown project "ghost"`)
}

func TestLoad_UnknownDeclaredPhase(t *testing.T) {
	t.Parallel()

	root := writeWorkspace(t, map[string]string{"main.hcl": `
		phase "build" { command = ["make"] }
		project "app" {
			path   = "app"
			phases = ["deploy"]
		}
	`})
	_, err := NewLoader().Load(context.Background(), root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown phase "deploy"`)
}

func TestLoad_EmptyCommand(t *testing.T) {
	t.Parallel()

	root := writeWorkspace(t, map[string]string{"main.hcl": `
		phase "build" { command = [] }
	`})
	_, err := NewLoader().Load(context.Background(), root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty command")
}

func TestLoad_UnknownAfterPhase(t *testing.T) {
	t.Parallel()

	root := writeWorkspace(t, map[string]string{"main.hcl": `
		phase "test" {
			command = ["make", "test"]
			after   = ["build"]
		}
	`})
	_, err := NewLoader().Load(context.Background(), root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown phase "build"`)
}
