package cache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFingerprint = "ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12"

func testEntry() *Entry {
	return &Entry{
		Fingerprint: testFingerprint,
		ExitCode:    0,
		Output:      []byte("compiled 3 targets\n"),
		Outputs: []OutputFile{
			{Path: "dist/lib.a", Content: []byte("binary-ish")},
			{Path: "dist/meta.json", Content: []byte(`{"ok":true}`)},
		},
	}
}

func TestFSCache_RoundTrip(t *testing.T) {
	t.Parallel()

	c := NewFSCache(t.TempDir())
	ctx := context.Background()

	_, ok, err := c.Restore(ctx, testFingerprint)
	require.NoError(t, err)
	require.False(t, ok, "empty cache must miss")

	require.NoError(t, c.Store(ctx, testEntry()))

	got, ok, err := c.Restore(ctx, testFingerprint)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, got.ExitCode)
	assert.Equal(t, []byte("compiled 3 targets\n"), got.Output)
	require.Len(t, got.Outputs, 2)
	assert.Equal(t, "dist/lib.a", got.Outputs[0].Path)
	assert.Equal(t, []byte("binary-ish"), got.Outputs[0].Content)
}

func TestFSCache_ShardedLayout(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c := NewFSCache(dir)
	require.NoError(t, c.Store(context.Background(), testEntry()))

	entryFile := filepath.Join(dir, testFingerprint[:2], testFingerprint, "entry.json")
	_, err := os.Stat(entryFile)
	require.NoError(t, err, "entry must live under its two-character shard")
}

func TestFSCache_FirstProducerWins(t *testing.T) {
	t.Parallel()

	c := NewFSCache(t.TempDir())
	ctx := context.Background()

	first := testEntry()
	require.NoError(t, c.Store(ctx, first))

	second := testEntry()
	second.Output = []byte("a different but equivalent result\n")
	require.NoError(t, c.Store(ctx, second))

	got, ok, err := c.Restore(ctx, testFingerprint)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.Output, got.Output)
}

func TestFSCache_CorruptEntryDegradesToMiss(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c := NewFSCache(dir)
	ctx := context.Background()
	require.NoError(t, c.Store(ctx, testEntry()))

	entryFile := filepath.Join(dir, testFingerprint[:2], testFingerprint, "entry.json")
	require.NoError(t, os.WriteFile(entryFile, []byte("{ not json"), 0o644))

	_, ok, err := c.Restore(ctx, testFingerprint)
	assert.False(t, ok, "corrupt metadata must read as a miss")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "parsing cache entry"))
}

func TestFSCache_MissingBlobDegradesToMiss(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c := NewFSCache(dir)
	ctx := context.Background()
	require.NoError(t, c.Store(ctx, testEntry()))

	blob := filepath.Join(dir, testFingerprint[:2], testFingerprint, "outputs", "0.blob")
	require.NoError(t, os.Remove(blob))

	_, ok, err := c.Restore(ctx, testFingerprint)
	assert.False(t, ok)
	require.Error(t, err)
}

func TestMemCache_RoundTrip(t *testing.T) {
	t.Parallel()

	c := NewMemCache()
	ctx := context.Background()

	_, ok, err := c.Restore(ctx, testFingerprint)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Store(ctx, testEntry()))
	require.Equal(t, 1, c.Len())

	got, ok, err := c.Restore(ctx, testFingerprint)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, testFingerprint, got.Fingerprint)

	// First producer wins here too.
	other := testEntry()
	other.ExitCode = 99
	require.NoError(t, c.Store(ctx, other))
	got, _, _ = c.Restore(ctx, testFingerprint)
	assert.Equal(t, 0, got.ExitCode)
}
