// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ledger maintains the human-readable audit trail of a workspace:
// the shared Prompt Log and the per-session Thought Logs.
//
// Both files are plain Markdown meant to be committed alongside the code
// they describe. The Prompt Log is append-mostly; the only in-place edit is
// the decision rewrite of a single entry's Status and Commit lines. Thought
// Logs are written once and then only appended to.
package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// timestampLayout renders instants as UTC ISO-8601 with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp formats t the way every ledger line records time.
func Timestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// writeFileAtomic replaces path with content via a sibling temp file and a
// rename, so readers never observe a half-written ledger.
func writeFileAtomic(path string, content []byte, mode os.FileMode) error {
	parent := filepath.Dir(path)
	base := filepath.Base(path)

	tmp, err := os.CreateTemp(parent, "."+base+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		if runtime.GOOS != "windows" {
			return fmt.Errorf("rename temp file: %w", err)
		}
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			return fmt.Errorf("remove destination before rename: %w", rmErr)
		}
		if err := os.Rename(tmpPath, path); err != nil {
			return fmt.Errorf("rename temp file after remove: %w", err)
		}
	}
	cleanup = false
	return nil
}
