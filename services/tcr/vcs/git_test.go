// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vcs

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gitAvailable checks if git is installed.
func gitAvailable() bool {
	return exec.Command("git", "--version").Run() == nil
}

// setupTestRepo creates a repository with one commit on main and a bare
// remote named origin. Identity is set locally so commits work without a
// global git config.
func setupTestRepo(t *testing.T) (dir string, remote string) {
	t.Helper()

	remote = t.TempDir()
	runGit(t, remote, "init", "--bare", "-q")

	dir = t.TempDir()
	runGit(t, dir, "init", "-q")
	runGit(t, dir, "config", "user.email", "agent@aleutian.ai")
	runGit(t, dir, "config", "user.name", "Aleutian Agent")
	runGit(t, dir, "checkout", "-q", "-b", "main")

	writeFile(t, dir, "README.md", "# Test Repo\n")
	writeFile(t, dir, "src/app.go", "package app\n")
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-q", "-m", "Initial commit")
	runGit(t, dir, "remote", "add", "origin", remote)
	runGit(t, dir, "push", "-q", "origin", "main")
	return dir, remote
}

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v failed: %v\nOutput: %s", args, err, output)
	}
	return string(output)
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, dir, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func newGit(t *testing.T, dir string) *Git {
	t.Helper()
	g, err := NewGit(dir, 30*time.Second)
	require.NoError(t, err)
	return g
}

func TestNewGitRequiresAbsolutePath(t *testing.T) {
	_, err := NewGit("relative/path", time.Second)
	assert.Error(t, err)

	g, err := NewGit(t.TempDir(), 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, g.timeout)
}

func TestMergePaths(t *testing.T) {
	got := mergePaths([]string{"b.go", "a.go"}, []string{"a.go", "c/d.go"})
	assert.Equal(t, []string{"a.go", "b.go", "c/d.go"}, got)
	assert.Nil(t, mergePaths(nil, nil))
}

func TestParseLog(t *testing.T) {
	out := "abc\x1fTCR: [APPROVE] x (p-1)\n\ndef\x1fTCR: [DENY] y (p-2)"
	got := parseLog(out)
	assert.Equal(t, []Commit{
		{SHA: "abc", Subject: "TCR: [APPROVE] x (p-1)"},
		{SHA: "def", Subject: "TCR: [DENY] y (p-2)"},
	}, got)
	assert.Nil(t, parseLog(""))
}

func TestCommandErrorFormatting(t *testing.T) {
	inner := errors.New("exit status 1")
	err := error(&CommandError{Args: []string{"push", "origin", "main"}, Output: "rejected", Err: inner})

	assert.Equal(t, "git push origin main: exit status 1: rejected", err.Error())
	assert.ErrorIs(t, err, inner)

	var ce *CommandError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "rejected", ce.Output)
}

func TestEmptyInputsAreNoOps(t *testing.T) {
	g := newGit(t, t.TempDir())
	ctx := context.Background()

	paths, err := g.ChangedPathsSince(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, paths)
	assert.NoError(t, g.Stage(ctx, nil))
	assert.NoError(t, g.RevertToRevision(ctx, "HEAD", nil))
}

func TestCurrentRevisionOutsideRepository(t *testing.T) {
	if !gitAvailable() {
		t.Skip("git not available")
	}
	g := newGit(t, t.TempDir())
	_, err := g.CurrentRevision(context.Background())

	var ce *CommandError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"rev-parse", "HEAD"}, ce.Args)
	assert.False(t, g.IsRepository(context.Background()))
}

func TestChangedPathsSinceIncludesUntracked(t *testing.T) {
	if !gitAvailable() {
		t.Skip("git not available")
	}
	dir, _ := setupTestRepo(t)
	g := newGit(t, dir)
	ctx := context.Background()

	base, err := g.CurrentRevision(ctx)
	require.NoError(t, err)

	writeFile(t, dir, "src/app.go", "package app\n\nfunc X() {}\n")
	writeFile(t, dir, "src/new.go", "package app\n")
	writeFile(t, dir, ".gitignore", "*.tmp\n")
	writeFile(t, dir, "junk.tmp", "ignored")
	require.NoError(t, os.Remove(filepath.Join(dir, "README.md")))

	paths, err := g.ChangedPathsSince(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, []string{".gitignore", "README.md", "src/app.go", "src/new.go"}, paths)
}

func TestStageCommitPush(t *testing.T) {
	if !gitAvailable() {
		t.Skip("git not available")
	}
	dir, remote := setupTestRepo(t)
	g := newGit(t, dir)
	ctx := context.Background()

	writeFile(t, dir, "src/app.go", "package app\n// changed\n")
	require.NoError(t, g.Stage(ctx, []string{"src/app.go"}))

	sha, err := g.Commit(ctx, "TCR: [APPROVE] change (p-1)")
	require.NoError(t, err)
	assert.Len(t, sha, 40)

	require.NoError(t, g.Push(ctx, "origin", "main"))
	remoteHead := runGit(t, remote, "rev-parse", "main")
	assert.Equal(t, sha+"\n", remoteHead)

	commits, err := g.FindDecisionCommits(ctx, "origin/main", "(p-1)")
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, sha, commits[0].SHA)
	assert.Equal(t, "TCR: [APPROVE] change (p-1)", commits[0].Subject)

	commits, err = g.FindDecisionCommits(ctx, "origin/main", "(p-2)")
	require.NoError(t, err)
	assert.Empty(t, commits)
}

func TestPushFailureIsCommandError(t *testing.T) {
	if !gitAvailable() {
		t.Skip("git not available")
	}
	dir, _ := setupTestRepo(t)
	g := newGit(t, dir)

	err := g.Push(context.Background(), "nowhere", "main")
	var ce *CommandError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "push", ce.Args[0])
	assert.NotEmpty(t, ce.Output)
}

func TestRevertToRevision(t *testing.T) {
	if !gitAvailable() {
		t.Skip("git not available")
	}
	dir, _ := setupTestRepo(t)
	g := newGit(t, dir)
	ctx := context.Background()

	base, err := g.CurrentRevision(ctx)
	require.NoError(t, err)

	writeFile(t, dir, "src/app.go", "package app\n// edited\n")
	writeFile(t, dir, "src/created.go", "package app\n")
	writeFile(t, dir, "README.md", "# edited\n")
	require.NoError(t, g.Stage(ctx, []string{"src/created.go"}))

	require.NoError(t, g.RevertToRevision(ctx, base, []string{"src/app.go", "src/created.go"}))

	assert.Equal(t, "package app\n", readFile(t, dir, "src/app.go"))
	assert.NoFileExists(t, filepath.Join(dir, "src", "created.go"))
	assert.Equal(t, "# edited\n", readFile(t, dir, "README.md"))

	paths, err := g.ChangedPathsSince(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, []string{"README.md"}, paths)
}

func TestSplitNULKeepsSurroundingSpaces(t *testing.T) {
	assert.Equal(t, []string{" lead", "trail ", "plain"}, splitNUL(" lead\x00trail \x00\x00plain\x00"))
	assert.Empty(t, splitNUL(""))
}

func TestRevertToRevisionPathWithTrailingSpace(t *testing.T) {
	if !gitAvailable() {
		t.Skip("git not available")
	}
	dir, _ := setupTestRepo(t)
	g := newGit(t, dir)
	ctx := context.Background()

	base, err := g.CurrentRevision(ctx)
	require.NoError(t, err)
	original := readFile(t, dir, "README.md")

	writeFile(t, dir, "README.md ", "shadow\n")
	paths, err := g.ChangedPathsSince(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, []string{"README.md "}, paths)

	require.NoError(t, g.RevertToRevision(ctx, base, paths))
	assert.NoFileExists(t, filepath.Join(dir, "README.md "))
	assert.Equal(t, original, readFile(t, dir, "README.md"))
}

func TestApplyPatch(t *testing.T) {
	if !gitAvailable() {
		t.Skip("git not available")
	}
	dir, _ := setupTestRepo(t)
	g := newGit(t, dir)
	ctx := context.Background()

	patch := "diff --git a/README.md b/README.md\n" +
		"--- a/README.md\n" +
		"+++ b/README.md\n" +
		"@@ -1 +1,2 @@\n" +
		" # Test Repo\n" +
		"+More.\n"
	patchPath := filepath.Join(t.TempDir(), "p.diff")
	require.NoError(t, os.WriteFile(patchPath, []byte(patch), 0o644))

	require.NoError(t, g.ApplyPatch(ctx, patchPath))
	assert.Equal(t, "# Test Repo\nMore.\n", readFile(t, dir, "README.md"))

	diff, err := g.DiffSince(ctx, "HEAD")
	require.NoError(t, err)
	assert.Contains(t, diff, "+More.")

	// Applying the same patch again cannot succeed.
	var ce *CommandError
	assert.ErrorAs(t, g.ApplyPatch(ctx, patchPath), &ce)
}
