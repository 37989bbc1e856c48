// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/tcr/services/tcr/ledger"
	"github.com/AleutianAI/tcr/services/tcr/session"
	tcrbadger "github.com/AleutianAI/tcr/services/tcr/storage/badger"
	"github.com/AleutianAI/tcr/services/tcr/store"
	"github.com/AleutianAI/tcr/services/tcr/testrunner"
	"github.com/AleutianAI/tcr/services/tcr/vcs"
)

func gitAvailable() bool {
	if _, err := exec.LookPath("bash"); err != nil {
		return false
	}
	return exec.Command("git", "--version").Run() == nil
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
	return strings.TrimSpace(string(output))
}

// setupWorkspace creates a repository on main with a bare origin and returns
// an orchestrator wired to real collaborators.
func setupWorkspace(t *testing.T, testCommand string) (*Orchestrator, string, string) {
	t.Helper()

	remote := t.TempDir()
	runGit(t, remote, "init", "--bare", "-q")

	root := t.TempDir()
	runGit(t, root, "init", "-q")
	runGit(t, root, "config", "user.email", "agent@aleutian.ai")
	runGit(t, root, "config", "user.name", "Aleutian Agent")
	runGit(t, root, "checkout", "-q", "-b", "main")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "app.go"), []byte("package app\n"), 0o644))
	runGit(t, root, "add", ".")
	runGit(t, root, "commit", "-q", "-m", "Initial commit")
	runGit(t, root, "remote", "add", "origin", remote)
	runGit(t, root, "push", "-q", "origin", "main")

	gw, err := vcs.NewGit(root, 30*time.Second)
	require.NoError(t, err)
	db, err := tcrbadger.Open(tcrbadger.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	orch, err := New(Config{Root: root}, Deps{
		Gateway: gw,
		Store:   store.New(db),
		Runner:  testrunner.New(root, testCommand, time.Minute),
	})
	require.NoError(t, err)
	return orch, root, remote
}

func TestEndToEndApprove(t *testing.T) {
	if !gitAvailable() {
		t.Skip("git not available")
	}
	orch, root, remote := setupWorkspace(t, "test -f src/cache.go")
	ctx := context.Background()

	sess, err := orch.Create(ctx, "Add caching", "Cache user lookups")
	require.NoError(t, err)
	require.True(t, sess.Baseline.Present())

	_, err = orch.Apply(ctx, "diff --git a/src/cache.go b/src/cache.go\n"+
		"new file mode 100644\n"+
		"--- /dev/null\n"+
		"+++ b/src/cache.go\n"+
		"@@ -0,0 +1 @@\n"+
		"+package app\n")
	require.NoError(t, err)

	got, err := orch.Approve(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.StatusApproved, got.Status)

	head := runGit(t, root, "rev-parse", "HEAD")
	assert.Equal(t, head, got.LastCommit)
	assert.Equal(t, head, runGit(t, remote, "rev-parse", "main"))

	files := strings.Split(runGit(t, root, "show", "--name-only", "--format=", "HEAD"), "\n")
	assert.ElementsMatch(t, []string{"prompts.md", sess.ThoughtLogPath, "src/cache.go"}, files)

	rec, err := ledger.NewPromptLog(orch.PromptLogPath()).Lookup(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusApproved, rec.Status)
	assert.Equal(t, head, rec.Commit)
}

func TestEndToEndDeny(t *testing.T) {
	if !gitAvailable() {
		t.Skip("git not available")
	}
	orch, root, _ := setupWorkspace(t, "true")
	ctx := context.Background()

	sess, err := orch.Create(ctx, "Risky change", "Rewrite the app")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "app.go"), []byte("package broken\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "extra.go"), []byte("package app\n"), 0o644))

	got, err := orch.Deny(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.StatusDenied, got.Status)

	data, err := os.ReadFile(filepath.Join(root, "src", "app.go"))
	require.NoError(t, err)
	assert.Equal(t, "package app\n", string(data))
	assert.NoFileExists(t, filepath.Join(root, "src", "extra.go"))

	files := strings.Split(runGit(t, root, "show", "--name-only", "--format=", "HEAD"), "\n")
	assert.ElementsMatch(t, []string{"prompts.md", sess.ThoughtLogPath}, files)
	assert.Equal(t, "TCR: [DENY] Risky change ("+sess.ID+")", runGit(t, root, "log", "-1", "--format=%s"))

	rec, err := ledger.NewPromptLog(orch.PromptLogPath()).Lookup(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusDenied, rec.Status)
}

func TestEndToEndReconcileAfterLostConfirmation(t *testing.T) {
	if !gitAvailable() {
		t.Skip("git not available")
	}
	orch, root, _ := setupWorkspace(t, "true")
	ctx := context.Background()

	sess, err := orch.Create(ctx, "Lost ack", "Push then crash")
	require.NoError(t, err)

	// Simulate a process that committed and pushed, then died.
	runGit(t, root, "add", "--all")
	runGit(t, root, "commit", "-q", "-m", "TCR: [APPROVE] Lost ack ("+sess.ID+")")
	runGit(t, root, "push", "-q", "origin", "main")
	head := runGit(t, root, "rev-parse", "HEAD")

	replays, err := orch.Reconcile(ctx)
	require.NoError(t, err)
	require.Len(t, replays, 1)
	assert.Equal(t, head, replays[0].Commit)

	active, err := orch.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.StatusApproved, active.Status)
	assert.Equal(t, head, active.LastCommit)
}
