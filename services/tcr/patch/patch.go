// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package patch validates and applies unified diffs produced outside the
// workspace, typically by a language model.
package patch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// ErrNotADiff is returned when text carries none of the unified diff markers.
var ErrNotADiff = errors.New("text does not look like a unified diff")

// tempPrefix names the per-invocation temp directory.
const tempPrefix = "tcr-patch-"

// Gateway is the VCS capability the applier delegates to.
type Gateway interface {
	ApplyPatch(ctx context.Context, path string) error
}

// Applier writes a patch to a private temp file and hands it to the gateway.
//
// # Description
//
// Every invocation gets its own directory under the system temp dir, so
// concurrent applies never share a file and nothing is written inside the
// workspace. The directory is removed before Apply returns, on every path.
//
// # Thread Safety
//
// Safe for concurrent use.
type Applier struct {
	gateway Gateway
	tempDir string
}

// NewApplier returns an applier that delegates to gateway.
func NewApplier(gateway Gateway) *Applier {
	return &Applier{gateway: gateway, tempDir: os.TempDir()}
}

// Result describes an applied patch.
type Result struct {
	// Text is the normalized patch that was applied.
	Text string
	// Stats holds per-file line counts; Parsed is false when the patch
	// could not be parsed for statistics.
	Stats Stats
}

// Apply validates text and applies it.
//
// # Inputs
//
//   - ctx: Context for the gateway call.
//   - text: Raw diff text, optionally wrapped in a Markdown code fence.
//
// # Outputs
//
//   - Result: The applied patch and its statistics.
//   - error: ErrNotADiff without touching the workspace, a temp file error,
//     or the gateway's error.
func (a *Applier) Apply(ctx context.Context, text string) (Result, error) {
	normalized := Normalize(text)
	if !Plausible(normalized) {
		return Result{}, ErrNotADiff
	}

	dir, err := os.MkdirTemp(a.tempDir, tempPrefix)
	if err != nil {
		return Result{}, fmt.Errorf("create patch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "patch.diff")
	if err := os.WriteFile(path, []byte(normalized+"\n"), 0o600); err != nil {
		return Result{}, fmt.Errorf("write patch file: %w", err)
	}

	if err := a.gateway.ApplyPatch(ctx, path); err != nil {
		return Result{}, fmt.Errorf("apply patch: %w", err)
	}
	return Result{Text: normalized, Stats: ComputeStats(normalized)}, nil
}

// Plausible reports whether text carries a unified diff marker: "diff ",
// "+++" or "@@".
func Plausible(text string) bool {
	return strings.Contains(text, "diff ") ||
		strings.Contains(text, "+++") ||
		strings.Contains(text, "@@")
}

// Normalize trims text and removes a surrounding Markdown code fence.
func Normalize(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	lines := strings.Split(trimmed, "\n")
	lines = lines[1:]
	if n := len(lines); n > 0 && strings.TrimSpace(lines[n-1]) == "```" {
		lines = lines[:n-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// FileStat is the line count of one file in a patch.
type FileStat struct {
	Path    string
	Added   int
	Removed int
}

// Stats summarizes a multi-file patch.
type Stats struct {
	Parsed  bool
	Files   []FileStat
	Added   int
	Removed int
}

// Summary renders the stats on one line, or "" when they were not parsed.
func (s Stats) Summary() string {
	if !s.Parsed {
		return ""
	}
	noun := "files"
	if len(s.Files) == 1 {
		noun = "file"
	}
	return fmt.Sprintf("%d %s changed, +%d -%d", len(s.Files), noun, s.Added, s.Removed)
}

// ComputeStats parses text as a multi-file unified diff. A parse failure
// yields Stats with Parsed false.
func ComputeStats(text string) Stats {
	fileDiffs, err := diff.NewMultiFileDiffReader(strings.NewReader(text)).ReadAllFiles()
	if err != nil || len(fileDiffs) == 0 {
		return Stats{}
	}

	stats := Stats{Parsed: true}
	for _, fd := range fileDiffs {
		// A changed line is one removal paired with one addition.
		st := fd.Stat()
		fs := FileStat{
			Path:    filePath(fd),
			Added:   int(st.Added + st.Changed),
			Removed: int(st.Deleted + st.Changed),
		}
		stats.Added += fs.Added
		stats.Removed += fs.Removed
		stats.Files = append(stats.Files, fs)
	}
	return stats
}

func filePath(fd *diff.FileDiff) string {
	name := fd.NewName
	if name == "" || name == "/dev/null" {
		name = fd.OrigName
	}
	name = strings.TrimPrefix(name, "a/")
	name = strings.TrimPrefix(name, "b/")
	return name
}
