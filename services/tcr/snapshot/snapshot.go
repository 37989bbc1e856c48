// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package snapshot produces a bounded, deterministic listing of a workspace
// for inclusion in patch-generation prompts.
package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
)

// DefaultLimit is the number of entries kept when no limit is configured.
const DefaultLimit = 300

// DefaultIgnore names directories that are never listed or descended into.
var DefaultIgnore = []string{".git", "node_modules", ".vscode", ".idea", "dist", "out", "build", ".turbo"}

// Options controls a walk.
type Options struct {
	// Limit caps the number of entries. Zero selects DefaultLimit.
	Limit int
	// Ignore adds names to DefaultIgnore. Any path component matching a
	// name excludes the entry.
	Ignore []string
}

// Listing is the result of a walk.
type Listing struct {
	// Entries are slash-separated, workspace-relative paths in lexical walk
	// order. Directories carry a trailing slash.
	Entries []string
	// Truncated is true when the limit cut the walk short.
	Truncated bool
}

// Take walks root and returns at most opts.Limit entries.
//
// # Description
//
// Entries are visited in lexical order, so repeated calls on an unchanged
// tree return the same listing. Unreadable subdirectories are skipped.
//
// # Outputs
//
//   - Listing: The capped entries.
//   - error: Non-nil only if root itself cannot be read.
func Take(root string, opts Options) (Listing, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	ignored := make(map[string]struct{}, len(DefaultIgnore)+len(opts.Ignore))
	for _, name := range DefaultIgnore {
		ignored[name] = struct{}{}
	}
	for _, name := range opts.Ignore {
		ignored[name] = struct{}{}
	}

	var out Listing
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}
		if _, skip := ignored[d.Name()]; skip {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if len(out.Entries) >= limit {
			out.Truncated = true
			return fs.SkipAll
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			rel += "/"
		}
		out.Entries = append(out.Entries, rel)
		return nil
	})
	if err != nil && !errors.Is(err, fs.SkipAll) {
		return Listing{}, fmt.Errorf("snapshot %s: %w", root, err)
	}
	return out, nil
}
