package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/buildgridgo/internal/ctxlog"
)

// FSCache is the local filesystem backend. Layout:
//
//	{Dir}/
//	  {fp[0:2]}/
//	    {fp}/
//	      entry.json       (exit code, output, output-file manifest)
//	      outputs/
//	        {i}.blob       (output file contents, indexed by manifest order)
//
// Entries are committed by writing into a temp directory and renaming it
// into place, so a crash can only ever leave a miss, never a corrupt hit.
type FSCache struct {
	// Dir is the cache root directory.
	Dir string
}

// NewFSCache creates a filesystem-backed cache rooted at dir.
func NewFSCache(dir string) *FSCache {
	return &FSCache{Dir: dir}
}

// Restore implements Cache.
func (c *FSCache) Restore(ctx context.Context, fingerprint string) (*Entry, bool, error) {
	entryDir := c.entryPath(fingerprint)

	data, err := os.ReadFile(filepath.Join(entryDir, "entry.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading cache entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		// Corrupt metadata degrades to a miss.
		return nil, false, fmt.Errorf("parsing cache entry: %w", err)
	}

	outputsDir := filepath.Join(entryDir, "outputs")
	for i := range entry.Outputs {
		content, err := os.ReadFile(filepath.Join(outputsDir, fmt.Sprintf("%d.blob", i)))
		if err != nil {
			return nil, false, fmt.Errorf("reading cached output %d: %w", i, err)
		}
		entry.Outputs[i].Content = content
	}

	return &entry, true, nil
}

// Store implements Cache. An existing entry for the fingerprint is left
// untouched: first producer wins.
func (c *FSCache) Store(ctx context.Context, entry *Entry) error {
	logger := ctxlog.FromContext(ctx)
	entryDir := c.entryPath(entry.Fingerprint)

	if _, err := os.Stat(filepath.Join(entryDir, "entry.json")); err == nil {
		logger.Debug("Cache entry already present, keeping first write.", "fingerprint", entry.Fingerprint)
		return nil
	}

	parentDir := filepath.Dir(entryDir)
	if err := os.MkdirAll(parentDir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	// Stage the whole entry in a temp dir on the same filesystem, then
	// rename it into place.
	tmpDir, err := os.MkdirTemp(parentDir, "tmp-entry-")
	if err != nil {
		return fmt.Errorf("creating temp cache entry dir: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(tmpDir)
		}
	}()

	outputsDir := filepath.Join(tmpDir, "outputs")
	if err := os.MkdirAll(outputsDir, 0o755); err != nil {
		return fmt.Errorf("creating cache outputs dir: %w", err)
	}
	for i, out := range entry.Outputs {
		blobPath := filepath.Join(outputsDir, fmt.Sprintf("%d.blob", i))
		if err := os.WriteFile(blobPath, out.Content, 0o644); err != nil {
			return fmt.Errorf("writing cached output %d: %w", i, err)
		}
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "entry.json"), data, 0o644); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}

	if err := os.Rename(tmpDir, entryDir); err != nil {
		// A concurrent producer may have won the rename race; that result
		// is interchangeable with ours, so treat it as success.
		if _, statErr := os.Stat(filepath.Join(entryDir, "entry.json")); statErr == nil {
			return nil
		}
		return fmt.Errorf("committing cache entry: %w", err)
	}
	committed = true
	return nil
}

func (c *FSCache) entryPath(fingerprint string) string {
	shard := fingerprint
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return filepath.Join(c.Dir, shard, fingerprint)
}
