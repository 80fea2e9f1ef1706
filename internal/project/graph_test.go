package project

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/buildgridgo/internal/config"
)

func testModel() *config.Model {
	return &config.Model{
		Projects: map[string]*config.Project{
			"core": {ID: "core", Root: "core", PhaseNames: []string{"build", "test"}},
			"lib":  {ID: "lib", Root: "lib", DependencyIDs: []string{"core"}, PhaseNames: []string{"build"}},
			"app":  {ID: "app", Root: "app", DependencyIDs: []string{"lib"}, PhaseNames: []string{"build", "test"}},
			"docs": {ID: "docs", Root: "docs", PhaseNames: []string{"build"}},
		},
	}
}

func TestFromModel(t *testing.T) {
	t.Parallel()

	g, err := FromModel(testModel())
	require.NoError(t, err)
	require.Equal(t, 4, g.Len())

	lib, ok := g.Get("lib")
	require.True(t, ok)
	assert.Equal(t, []string{"core"}, lib.DependencyIDs)
	assert.True(t, lib.SupportsPhase("build"))
	assert.False(t, lib.SupportsPhase("test"))

	assert.Equal(t, []string{"app", "core", "docs", "lib"}, g.IDs())
}

func TestFromModel_UnknownDependency(t *testing.T) {
	t.Parallel()

	model := testModel()
	model.Projects["app"].DependencyIDs = []string{"missing"}

	_, err := FromModel(model)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown project "missing"`)
}

func TestTransitiveClosure(t *testing.T) {
	t.Parallel()

	g, err := FromModel(testModel())
	require.NoError(t, err)

	closure, err := g.TransitiveClosure([]string{"app"})
	require.NoError(t, err)
	assert.Equal(t, []string{"app", "core", "lib"}, closure, "selecting app must pull in its whole upstream chain")

	closure, err = g.TransitiveClosure([]string{"docs"})
	require.NoError(t, err)
	assert.Equal(t, []string{"docs"}, closure)
}

func TestTransitiveClosure_UnknownID(t *testing.T) {
	t.Parallel()

	g, err := FromModel(testModel())
	require.NoError(t, err)

	_, err = g.TransitiveClosure([]string{"nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown project "nope"`)
}
