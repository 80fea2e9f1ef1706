package integration_tests

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/buildgridgo/internal/app"
)

// setupWorkspace writes the given HCL configuration plus one directory per
// project id into a fresh temp workspace and returns its root.
func setupWorkspace(t *testing.T, hcl string, projectDirs ...string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "workspace.hcl"), []byte(hcl), 0o600))
	for _, dir := range projectDirs {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	}
	return root
}

// defaultConfig returns a validated config running the build phase over the
// whole workspace.
func defaultConfig(t *testing.T, root string, phases ...string) *app.Config {
	t.Helper()
	if len(phases) == 0 {
		phases = []string{"build"}
	}
	cfg, err := app.NewConfig(app.Config{
		WorkspacePath: root,
		Phases:        phases,
		Workers:       4,
		FailPolicy:    "fail-fast",
		CacheEnabled:  true,
		LogFormat:     "text",
		LogLevel:      "debug",
	})
	require.NoError(t, err)
	return cfg
}
