// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/tcr/pkg/ux"
	"github.com/AleutianAI/tcr/services/tcr/orchestrator"
	"github.com/AleutianAI/tcr/services/tcr/session"
)

const newFileDiff = `diff --git a/src/cache.go b/src/cache.go
new file mode 100644
index 0000000..1b2c3d4
--- /dev/null
+++ b/src/cache.go
@@ -0,0 +1 @@
+package app
`

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

// setupWorkspace creates a repository on main pushed to a bare origin and
// points the CLI's environment at it.
func setupWorkspace(t *testing.T) (root, remote string) {
	t.Helper()

	remote = t.TempDir()
	runGit(t, remote, "init", "--bare", "-q")

	root = t.TempDir()
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

	t.Setenv("TCR_STATE_DIR", t.TempDir())
	t.Setenv("TCR_TEST_COMMAND", "test -f src/app.go")
	t.Setenv("TCR_LOG_LEVEL", "error")
	t.Setenv("TCR_LLM_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv(ux.PersonalityEnv, "machine")
	return root, remote
}

// tcr runs one CLI invocation against root and returns stdout and stderr.
func tcr(t *testing.T, root, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	restore := ux.SetOutput(&out, &errOut)
	defer restore()

	err := newCLI(strings.NewReader(stdin)).execute(context.Background(), append([]string{"--workspace", root}, args...))
	return out.String(), errOut.String(), err
}

func TestCLI_ApproveFlow(t *testing.T) {
	if !gitAvailable() {
		t.Skip("git not available")
	}
	root, remote := setupWorkspace(t)

	out, _, err := tcr(t, root, "", "new", "--title", "Add cache", "--body", "Cache lookups.")
	require.NoError(t, err)
	assert.Contains(t, out, "OK: Created session p-")

	out, _, err = tcr(t, root, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "status=PENDING")
	assert.Contains(t, out, "title=Add cache")

	out, _, err = tcr(t, root, newFileDiff, "apply", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "1 file changed, +1 -0")
	assert.FileExists(t, filepath.Join(root, "src", "cache.go"))

	out, _, err = tcr(t, root, "", "review")
	require.NoError(t, err)
	assert.Contains(t, out, "src/cache.go")

	_, errOut, err := tcr(t, root, "", "continue")
	assert.ErrorIs(t, err, errContinueNotApplied)
	assert.Contains(t, errOut, "No model is configured")

	out, _, err = tcr(t, root, "", "approve")
	require.NoError(t, err)
	assert.Contains(t, out, "OK: Approved")

	head := runGit(t, root, "rev-parse", "HEAD")
	assert.Equal(t, head, runGit(t, remote, "rev-parse", "main"))
	assert.True(t, strings.HasPrefix(runGit(t, root, "log", "-1", "--format=%s"), "TCR: [APPROVE] Add cache ("))

	promptLog, err := os.ReadFile(filepath.Join(root, "prompts.md"))
	require.NoError(t, err)
	assert.Contains(t, string(promptLog), "Status: APPROVED")
	assert.Contains(t, string(promptLog), "Commit: "+head)

	_, _, err = tcr(t, root, "", "approve")
	assert.ErrorIs(t, err, session.ErrTerminal)
}

func TestCLI_ApproveBlockedByTests(t *testing.T) {
	if !gitAvailable() {
		t.Skip("git not available")
	}
	root, remote := setupWorkspace(t)
	t.Setenv("TCR_TEST_COMMAND", "echo broken; exit 1")
	before := runGit(t, remote, "rev-parse", "main")

	_, _, err := tcr(t, root, "", "new", "--title", "Break things")
	require.NoError(t, err)

	out, errOut, err := tcr(t, root, "", "approve")
	assert.ErrorIs(t, err, orchestrator.ErrTestsFailed)
	assert.Contains(t, errOut, "Tests failed")
	assert.Contains(t, out, "broken")
	assert.Equal(t, before, runGit(t, remote, "rev-parse", "main"))

	out, _, err = tcr(t, root, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "status=PENDING")
	assert.Contains(t, out, "last_test=FAIL")
}

func TestCLI_DenyListSelectAndLog(t *testing.T) {
	if !gitAvailable() {
		t.Skip("git not available")
	}
	root, remote := setupWorkspace(t)

	_, _, err := tcr(t, root, "", "new", "--title", "First")
	require.NoError(t, err)
	_, _, err = tcr(t, root, "", "new", "--title", "Second", "--body-file", "-")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "app.go"), []byte("package broken\n"), 0o644))
	out, _, err := tcr(t, root, "", "deny", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "OK: Denied")

	app, err := os.ReadFile(filepath.Join(root, "src", "app.go"))
	require.NoError(t, err)
	assert.Equal(t, "package app\n", string(app))
	assert.True(t, strings.HasPrefix(runGit(t, remote, "log", "-1", "--format=%s", "main"), "TCR: [DENY] Second ("))

	out, _, err = tcr(t, root, "", "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "*\t"), lines[0])
	assert.Contains(t, lines[0], "DENIED\tSecond")
	assert.Contains(t, lines[1], "PENDING\tFirst")
	firstID := strings.Split(lines[1], "\t")[1]

	out, _, err = tcr(t, root, "", "select", firstID)
	require.NoError(t, err)
	assert.Contains(t, out, "id="+firstID)

	out, _, err = tcr(t, root, "", "log", "--raw")
	require.NoError(t, err)
	assert.Contains(t, out, "# Thought Log – "+firstID)

	_, _, err = tcr(t, root, "", "select", "p-missing")
	assert.Error(t, err)

	_, _, err = tcr(t, root, "", "select")
	assert.ErrorIs(t, err, ux.ErrNotInteractive)
}

func TestCLI_NoActiveSession(t *testing.T) {
	if !gitAvailable() {
		t.Skip("git not available")
	}
	root, _ := setupWorkspace(t)

	_, _, err := tcr(t, root, "", "status")
	require.ErrorIs(t, err, orchestrator.ErrNoActiveSession)
	assert.Contains(t, explain(err), "tcr new")

	out, _, err := tcr(t, root, "", "recover")
	require.NoError(t, err)
	assert.Empty(t, out)

	_, _, err = tcr(t, root, "", "new")
	assert.ErrorIs(t, err, ux.ErrNotInteractive)
}

func TestCLI_Config(t *testing.T) {
	root := t.TempDir()
	t.Setenv("TCR_LLM_API_KEY", "sk-secret")
	t.Setenv(ux.PersonalityEnv, "machine")

	out, _, err := tcr(t, root, "", "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, ".tcr.yaml")
	assert.FileExists(t, filepath.Join(root, ".tcr.yaml"))

	_, _, err = tcr(t, root, "", "config", "init")
	assert.Error(t, err)

	out, _, err = tcr(t, root, "", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "test_command: npm test")
	assert.Contains(t, out, "api_key:")
	assert.Contains(t, out, "********")
	assert.NotContains(t, out, "sk-secret")
}

func TestCLI_NotARepository(t *testing.T) {
	if !gitAvailable() {
		t.Skip("git not available")
	}
	root := t.TempDir()
	t.Setenv("TCR_STATE_DIR", t.TempDir())
	t.Setenv("TCR_LOG_LEVEL", "error")
	t.Setenv(ux.PersonalityEnv, "machine")

	out, _, err := tcr(t, root, "", "new", "--title", "Add caching", "--body", "Cache user lookups")
	require.NoError(t, err)
	assert.Contains(t, out, "OK: Created session p-")
	assert.Contains(t, out, "baseline=unknown")

	out, _, err = tcr(t, root, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "status=PENDING")

	out, _, err = tcr(t, root, "", "log", "--raw")
	require.NoError(t, err)
	assert.Contains(t, out, "Cache user lookups")

	for _, args := range [][]string{{"approve"}, {"deny", "--yes"}, {"review"}, {"recover"}, {"continue"}} {
		_, _, err = tcr(t, root, "", args...)
		require.Error(t, err, args[0])
		assert.ErrorIs(t, err, errNotARepository, args[0])
	}
	assert.Contains(t, explain(fmt.Errorf("%s is %w", root, errNotARepository)), "git init")
}

func TestOpenApp_StoreLockedByAnotherCommand(t *testing.T) {
	if !gitAvailable() {
		t.Skip("git not available")
	}
	root, _ := setupWorkspace(t)
	ctx := context.Background()
	cmd := newCLI(nil).rootCmd()
	flags := &globalFlags{workspace: root}

	first, err := openApp(ctx, cmd, flags)
	require.NoError(t, err)

	second, err := openApp(ctx, cmd, flags)
	require.Error(t, err)
	assert.Nil(t, second)
	assert.Contains(t, err.Error(), "is another tcr command running here?")

	require.NoError(t, first.Close())

	third, err := openApp(ctx, cmd, flags)
	require.NoError(t, err)
	require.NoError(t, third.Close())
}

func TestApp_CloseNil(t *testing.T) {
	var a *app
	assert.NoError(t, a.Close())
}

func TestExplain(t *testing.T) {
	assert.Equal(t, "boom", explain(errors.New("boom")))
	assert.Contains(t, explain(orchestrator.ErrTestsFailed), "tcr deny")
	assert.Contains(t, explain(orchestrator.ErrNoBaseline), "revert manually")
}
