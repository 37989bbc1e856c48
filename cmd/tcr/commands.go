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
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/tcr/pkg/ux"
	"github.com/AleutianAI/tcr/services/llm"
	"github.com/AleutianAI/tcr/services/tcr/ledger"
	"github.com/AleutianAI/tcr/services/tcr/orchestrator"
	"github.com/AleutianAI/tcr/services/tcr/patch"
	"github.com/AleutianAI/tcr/services/tcr/session"
	"github.com/AleutianAI/tcr/services/tcr/store"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	workspace   string
	configFile  string
	logLevel    string
	logDir      string
	personality string
}

// cli owns the command tree and the lazily opened app.
type cli struct {
	flags globalFlags
	stdin io.Reader
	app   *app
}

func newCLI(stdin io.Reader) *cli {
	if stdin == nil {
		stdin = os.Stdin
	}
	return &cli{stdin: stdin}
}

// open returns the workspace app, opening it on first use.
func (c *cli) open(cmd *cobra.Command) (*app, error) {
	if c.app != nil {
		return c.app, nil
	}
	a, err := openApp(cmd.Context(), cmd, &c.flags)
	if err != nil {
		return nil, err
	}
	c.app = a
	return a, nil
}

// openRepo is open for commands that cannot run outside git.
func (c *cli) openRepo(cmd *cobra.Command) (*app, error) {
	a, err := c.open(cmd)
	if err != nil {
		return nil, err
	}
	if err := a.requireRepo(); err != nil {
		return nil, err
	}
	return a, nil
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	c.app = nil
	return err
}

// execute runs the command tree once and releases the workspace.
func (c *cli) execute(ctx context.Context, args []string) error {
	root := c.rootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if closeErr := c.close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tcr",
		Short: "Test-Commit-Revert sessions for AI-assisted changes",
		Long: `tcr tracks each requested change as a session. A session either passes
its tests and is committed and pushed (approve), or has its code reverted to
the baseline while the logs are kept (deny). Every decision is recorded in the
Prompt Log and the session's Thought Log.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ux.InitPersonality(c.flags.personality)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&c.flags.workspace, "workspace", "w", "", "workspace root (default: current directory)")
	pf.StringVar(&c.flags.configFile, "config", "", "config file (default: <workspace>/.tcr.yaml)")
	pf.StringVar(&c.flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&c.flags.logDir, "log-dir", "", "also write JSON logs to this directory")
	pf.StringVar(&c.flags.personality, "personality", "", "output style: full, standard, minimal, machine")

	root.AddCommand(
		c.newCmd(),
		c.continueCmd(),
		c.applyCmd(),
		c.approveCmd(),
		c.denyCmd(),
		c.statusCmd(),
		c.selectCmd(),
		c.listCmd(),
		c.reviewCmd(),
		c.logCmd(),
		c.recoverCmd(),
		c.configCmd(),
	)
	return root
}

// explain adds a next step to errors the user can act on.
func explain(err error) string {
	msg := err.Error()
	switch {
	case errors.Is(err, orchestrator.ErrNoActiveSession):
		return msg + ". Start one with `tcr new` or pick one with `tcr select`."
	case errors.Is(err, session.ErrTerminal):
		return msg + ". Start a new session with `tcr new`."
	case errors.Is(err, orchestrator.ErrTestsFailed):
		return msg + ". Fix the code and approve again, or `tcr deny`."
	case errors.Is(err, orchestrator.ErrNoBaseline):
		return msg + ". The session started before the first commit; revert manually."
	case errors.Is(err, patch.ErrNotADiff):
		return msg + ". Expected a unified diff."
	case errors.Is(err, store.ErrNotFound), errors.Is(err, ledger.ErrEntryNotFound):
		return msg + ". See `tcr list`."
	case errors.Is(err, llm.ErrNotConfigured):
		return msg + ". Set llm.api_key, TCR_LLM_API_KEY or the provider's API key variable."
	case errors.Is(err, errNotARepository):
		return msg + ". Run `git init` and commit once; new, status, list, select and log work without git."
	case errors.Is(err, ux.ErrNotInteractive):
		return msg + ". Pass the values as flags."
	}
	return msg
}

func sessionView(s *session.Session, active bool) ux.SessionView {
	return ux.SessionView{
		ID:         s.ID,
		Title:      s.Title,
		Status:     string(s.Status),
		Baseline:   s.Baseline.String(),
		LastTest:   string(s.LastTestResult),
		LastCommit: s.LastCommit,
		ThoughtLog: s.ThoughtLogPath,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
		Active:     active,
	}
}

func printStats(stats patch.Stats) {
	if !stats.Parsed {
		return
	}
	for _, f := range stats.Files {
		ux.Info(fmt.Sprintf("%s  +%d -%d", f.Path, f.Added, f.Removed))
	}
	ux.Muted(stats.Summary())
}
