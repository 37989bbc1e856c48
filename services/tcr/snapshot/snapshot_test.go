// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTree(t *testing.T, files ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, f := range files {
		path := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}
	return root
}

func TestTakeOrderAndIgnores(t *testing.T) {
	root := buildTree(t,
		"b.txt",
		"a/z.go",
		"a/b/c.go",
		".git/HEAD",
		"node_modules/pkg/index.js",
		"src/dist/bundle.js",
		"tmp/cache.bin",
	)

	got, err := Take(root, Options{Ignore: []string{"tmp"}})
	require.NoError(t, err)
	assert.False(t, got.Truncated)
	assert.Equal(t, []string{
		"a/",
		"a/b/",
		"a/b/c.go",
		"a/z.go",
		"b.txt",
		"src/",
	}, got.Entries)
}

func TestTakeLimitIsDeterministic(t *testing.T) {
	root := buildTree(t, "a.txt", "b.txt", "c.txt", "d.txt")

	first, err := Take(root, Options{Limit: 2})
	require.NoError(t, err)
	second, err := Take(root, Options{Limit: 2})
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt", "b.txt"}, first.Entries)
	assert.True(t, first.Truncated)
	assert.Equal(t, first, second)
}

func TestTakeExactLimitNotTruncated(t *testing.T) {
	root := buildTree(t, "a.txt", "b.txt")
	got, err := Take(root, Options{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, got.Entries, 2)
	assert.False(t, got.Truncated)
}

func TestTakeMissingRoot(t *testing.T) {
	_, err := Take(filepath.Join(t.TempDir(), "missing"), Options{})
	assert.Error(t, err)
}
