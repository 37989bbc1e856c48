// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vcs is the narrow git gateway used by the TCR workflow.
//
// Every operation shells out to the git command line in the workspace root
// under a per-call timeout. Every failure is reported as a *CommandError
// carrying the arguments and captured output, so callers can surface git's
// own message verbatim. Nothing is retried.
package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultTimeout bounds a single git invocation when none is configured.
const DefaultTimeout = 60 * time.Second

// CommandError describes a failed git invocation.
type CommandError struct {
	// Args are the arguments passed to git.
	Args []string
	// Output is the combined stdout and stderr, trimmed.
	Output string
	// Err is the underlying exec or timeout error.
	Err error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Commit is one entry of git log output.
type Commit struct {
	SHA     string
	Subject string
}

// Git implements the gateway with the git CLI.
//
// # Description
//
// All commands run with the workspace root as working directory, so every
// path accepted or returned is relative to that root.
//
// # Thread Safety
//
// Methods may be called concurrently, but git itself serializes index
// writes; callers keep mutating calls sequential.
type Git struct {
	root    string
	timeout time.Duration
}

// NewGit creates a gateway for the workspace at root.
//
// # Inputs
//
//   - root: Absolute path of the workspace.
//   - timeout: Maximum duration of each git call. Zero selects DefaultTimeout.
//
// # Outputs
//
//   - *Git: Ready-to-use gateway.
//   - error: Non-nil if root is not absolute.
func NewGit(root string, timeout time.Duration) (*Git, error) {
	if !filepath.IsAbs(root) {
		return nil, fmt.Errorf("workspace root must be absolute: %s", root)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Git{root: root, timeout: timeout}, nil
}

// Root returns the workspace root.
func (g *Git) Root() string {
	return g.root
}

// run executes git and returns trimmed stdout.
func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	out, err := g.runRaw(ctx, args...)
	return strings.TrimSpace(out), err
}

// runRaw executes git and returns stdout untouched.
func (g *Git) runRaw(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.root
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	recordGitOp(ctx, args[0], time.Since(start), err)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timeout after %v: %w", g.timeout, context.DeadlineExceeded)
		}
		output := strings.TrimSpace(stdout.String() + stderr.String())
		return "", &CommandError{Args: args, Output: output, Err: err}
	}
	return stdout.String(), nil
}

// IsRepository reports whether the root is inside a git work tree.
func (g *Git) IsRepository(ctx context.Context) bool {
	out, err := g.run(ctx, "rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

// CurrentRevision returns the SHA of HEAD.
//
// # Outputs
//
//   - string: Full commit SHA.
//   - error: *CommandError when the root is not a repository or has no commits.
func (g *Git) CurrentRevision(ctx context.Context) (string, error) {
	return g.run(ctx, "rev-parse", "HEAD")
}

// ChangedPathsSince lists every path that differs from rev.
//
// # Description
//
// The result is the union of tracked paths whose working-tree content
// differs from rev (`git diff --name-only`) and untracked, non-ignored files.
// It is sorted and free of duplicates. An empty rev yields no paths.
//
// # Inputs
//
//   - ctx: Context for timeout and cancellation.
//   - rev: Baseline revision.
//
// # Outputs
//
//   - []string: Workspace-relative, slash-separated paths.
//   - error: *CommandError on git failure.
func (g *Git) ChangedPathsSince(ctx context.Context, rev string) ([]string, error) {
	if rev == "" {
		return nil, nil
	}
	tracked, err := g.runRaw(ctx, "diff", "--name-only", "--relative", "-z", rev)
	if err != nil {
		return nil, err
	}
	untracked, err := g.runRaw(ctx, "ls-files", "--others", "--exclude-standard", "-z")
	if err != nil {
		return nil, err
	}
	return mergePaths(splitNUL(tracked), splitNUL(untracked)), nil
}

// Stage adds paths to the index. An empty list is a no-op.
func (g *Git) Stage(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"add", "--all", "--"}, paths...)
	_, err := g.run(ctx, args...)
	return err
}

// Commit records the index with message and returns the new HEAD.
func (g *Git) Commit(ctx context.Context, message string) (string, error) {
	if _, err := g.run(ctx, "commit", "-m", message); err != nil {
		return "", err
	}
	return g.CurrentRevision(ctx)
}

// Push publishes branch to remote. It is never retried.
func (g *Git) Push(ctx context.Context, remote, branch string) error {
	_, err := g.run(ctx, "push", remote, branch)
	return err
}

// RevertToRevision makes paths match their content at rev.
//
// # Description
//
// Paths that exist at rev are restored in both index and working tree.
// Paths that did not exist at rev are removed from both. An empty list is a
// no-op. This discards local edits to those paths.
//
// # Inputs
//
//   - ctx: Context for timeout and cancellation.
//   - rev: Revision to restore from.
//   - paths: Workspace-relative paths.
//
// # Outputs
//
//   - error: *CommandError on git failure, or a filesystem error.
func (g *Git) RevertToRevision(ctx context.Context, rev string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	listed, err := g.runRaw(ctx, append([]string{"ls-tree", "-r", "-z", "--name-only", rev, "--"}, paths...)...)
	if err != nil {
		return err
	}
	atRev := make(map[string]bool)
	for _, p := range splitNUL(listed) {
		atRev[p] = true
	}

	var restore, remove []string
	for _, p := range paths {
		if atRev[p] {
			restore = append(restore, p)
		} else {
			remove = append(remove, p)
		}
	}

	if len(restore) > 0 {
		args := append([]string{"restore", "--source=" + rev, "--staged", "--worktree", "--"}, restore...)
		if _, err := g.run(ctx, args...); err != nil {
			return err
		}
	}
	if len(remove) > 0 {
		args := append([]string{"rm", "-q", "-r", "--cached", "--ignore-unmatch", "--"}, remove...)
		if _, err := g.run(ctx, args...); err != nil {
			return err
		}
		for _, p := range remove {
			if err := os.RemoveAll(filepath.Join(g.root, filepath.FromSlash(p))); err != nil {
				return fmt.Errorf("remove %s: %w", p, err)
			}
		}
	}
	return nil
}

// ApplyPatch runs a three-way apply of the patch file at path.
func (g *Git) ApplyPatch(ctx context.Context, path string) error {
	_, err := g.run(ctx, "apply", "--3way", "--whitespace=nowarn", path)
	return err
}

// DiffSince returns the unified diff of the working tree against rev.
func (g *Git) DiffSince(ctx context.Context, rev string) (string, error) {
	if rev == "" {
		return "", nil
	}
	return g.runRaw(ctx, "diff", "--relative", rev)
}

// FindDecisionCommits returns commits reachable from ref whose message
// contains token literally, newest first.
func (g *Git) FindDecisionCommits(ctx context.Context, ref, token string) ([]Commit, error) {
	out, err := g.run(ctx, "log", ref, "--fixed-strings", "--grep="+token, "--format=%H%x1f%s")
	if err != nil {
		return nil, err
	}
	return parseLog(out), nil
}

func parseLog(out string) []Commit {
	if out == "" {
		return nil
	}
	var commits []Commit
	for _, line := range strings.Split(out, "\n") {
		sha, subject, ok := strings.Cut(line, "\x1f")
		if !ok || sha == "" {
			continue
		}
		commits = append(commits, Commit{SHA: sha, Subject: subject})
	}
	return commits
}

// splitNUL splits -z output. Entries are kept verbatim, since file names
// may begin or end with spaces.
func splitNUL(s string) []string {
	var out []string
	for _, p := range strings.Split(s, "\x00") {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func mergePaths(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, p := range list {
			p = filepath.ToSlash(p)
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}
