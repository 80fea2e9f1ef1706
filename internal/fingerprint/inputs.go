package fingerprint

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vk/buildgridgo/internal/fsutil"
)

// InputFile is one resolved input: its path relative to the project root
// (used in the digest, so fingerprints are machine-independent) and its
// absolute path (used to read content).
type InputFile struct {
	Rel string
	Abs string
}

// resolveInputs expands the declared glob patterns against the project
// directory into a sorted, de-duplicated file list. A literal pattern (no
// glob metacharacters) that matches nothing is a configuration error; an
// empty glob expansion is not.
func resolveInputs(projectDir string, patterns []string) ([]InputFile, error) {
	seen := make(map[string]bool)
	var files []InputFile

	add := func(abs string) error {
		rel, err := filepath.Rel(projectDir, abs)
		if err != nil {
			return fmt.Errorf("relativizing input %s: %w", abs, err)
		}
		rel = filepath.ToSlash(rel)
		if !seen[rel] {
			seen[rel] = true
			files = append(files, InputFile{Rel: rel, Abs: abs})
		}
		return nil
	}

	for _, pattern := range patterns {
		abs := filepath.Join(projectDir, pattern)

		if !strings.ContainsAny(pattern, "*?[") {
			info, err := os.Stat(abs)
			if err != nil {
				if os.IsNotExist(err) {
					return nil, &MissingInputError{Path: pattern}
				}
				return nil, fmt.Errorf("stating input %s: %w", pattern, err)
			}
			if info.IsDir() {
				// A literal directory declares everything under it.
				walked, err := fsutil.WalkFiles(abs)
				if err != nil {
					return nil, fmt.Errorf("walking input dir %s: %w", pattern, err)
				}
				for _, f := range walked {
					if err := add(f); err != nil {
						return nil, err
					}
				}
				continue
			}
			if err := add(abs); err != nil {
				return nil, err
			}
			continue
		}

		matches, err := filepath.Glob(abs)
		if err != nil {
			return nil, fmt.Errorf("bad input pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil {
				return nil, fmt.Errorf("stating input %s: %w", m, err)
			}
			if info.IsDir() {
				continue
			}
			if err := add(m); err != nil {
				return nil, err
			}
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Rel < files[j].Rel })
	return files, nil
}
