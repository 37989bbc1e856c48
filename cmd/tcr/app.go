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
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/tcr/cmd/tcr/config"
	"github.com/AleutianAI/tcr/pkg/logging"
	"github.com/AleutianAI/tcr/pkg/ux"
	"github.com/AleutianAI/tcr/services/llm"
	"github.com/AleutianAI/tcr/services/tcr/orchestrator"
	"github.com/AleutianAI/tcr/services/tcr/policy"
	"github.com/AleutianAI/tcr/services/tcr/snapshot"
	tcrbadger "github.com/AleutianAI/tcr/services/tcr/storage/badger"
	"github.com/AleutianAI/tcr/services/tcr/store"
	"github.com/AleutianAI/tcr/services/tcr/telemetry"
	"github.com/AleutianAI/tcr/services/tcr/testrunner"
	"github.com/AleutianAI/tcr/services/tcr/vcs"
)

// errNotARepository marks commands that need git run outside a work tree.
var errNotARepository = errors.New("not inside a git repository")

// app is everything one CLI invocation needs for a workspace.
type app struct {
	root   string
	cfg    *config.Config
	logger *logging.Logger
	db     *tcrbadger.DB
	orch   *orchestrator.Orchestrator

	shutdownTelemetry func(context.Context) error

	// repo is false when the workspace is not a git work tree. Sessions can
	// still be created and inspected; they record an absent baseline.
	repo bool
}

// workspaceRoot resolves the --workspace flag to an absolute path.
func workspaceRoot(flag string) (string, error) {
	if flag == "" {
		flag = "."
	}
	root, err := filepath.Abs(flag)
	if err != nil {
		return "", fmt.Errorf("resolve workspace: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("workspace %s: %w", root, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("workspace %s is not a directory", root)
	}
	return root, nil
}

// openApp wires the orchestrator for the workspace.
//
// # Description
//
// Loads configuration, starts logging and telemetry, opens the session
// store (which also takes the per-workspace lock), builds the git gateway,
// the test runner and, when a key is configured, the patch generator.
// A workspace outside git still opens; commands that need git check
// requireRepo. In a repository it finally replays any decision that reached
// the remote without being recorded locally. Reconcile failures are logged,
// never fatal.
//
// # Outputs
//
//   - *app: Must be closed by the caller.
//   - error: Configuration, repository or store failures.
func openApp(ctx context.Context, cmd *cobra.Command, flags *globalFlags) (a *app, err error) {
	root, err := workspaceRoot(flags.workspace)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(config.Options{Root: root, File: flags.configFile, Flags: cmd.Flags()})
	if err != nil {
		return nil, err
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	a = &app{root: root, cfg: cfg}
	a.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Log.Dir,
		Service: "tcr",
		JSON:    cfg.Log.JSON,
	})
	cleanup := a
	defer func() {
		if err != nil {
			_ = cleanup.Close()
		}
	}()
	logger := a.logger.Slog()

	a.shutdownTelemetry, err = telemetry.Init(ctx, cfg.TelemetryInit(version))
	if err != nil {
		return nil, err
	}
	metricsOn := cfg.Telemetry.MetricExporter != telemetry.ExporterNone
	orchestrator.SetMetricsEnabled(metricsOn)
	vcs.SetMetricsEnabled(metricsOn)

	gateway, err := vcs.NewGit(root, cfg.Git.Timeout)
	if err != nil {
		return nil, err
	}
	a.repo = gateway.IsRepository(ctx)
	if !a.repo {
		logger.Debug("workspace is not a git repository; baselines will be absent", slog.String("root", root))
	}

	stateDir, err := cfg.ResolveStateDir(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0o750); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	dbCfg := tcrbadger.DefaultConfig(stateDir)
	dbCfg.Logger = logger
	a.db, err = tcrbadger.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open session store (is another tcr command running here?): %w", err)
	}

	llmCfg, err := cfg.LLMClientConfig()
	if err != nil {
		return nil, err
	}
	llmCfg.Logger = logger
	generator, err := llm.New(llmCfg)
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		logger.Debug("no model key configured; continue is unavailable", slog.String("provider", cfg.LLM.Provider))
		generator = nil
	case err != nil:
		return nil, err
	}

	var redactor orchestrator.Redactor
	if cfg.LLM.RedactSecrets {
		engine, err := policy.New()
		if err != nil {
			return nil, fmt.Errorf("load redaction patterns: %w", err)
		}
		redactor = engine
	}

	a.orch, err = orchestrator.New(orchestrator.Config{
		Root:          root,
		PromptsRoot:   cfg.PromptsRoot,
		PromptLogFile: cfg.PromptLogFile,
		Remote:        cfg.Git.Remote,
		Branch:        cfg.Git.Branch,
		Snapshot: snapshot.Options{
			Limit:  cfg.Snapshot.Limit,
			Ignore: cfg.Snapshot.Ignore,
		},
		Generation:     llmCfg.Params(),
		TracingEnabled: cfg.Telemetry.TraceExporter != telemetry.ExporterNone,
		Logger:         logger,
	}, orchestrator.Deps{
		Gateway:   gateway,
		Store:     store.New(a.db),
		Runner:    testrunner.New(root, cfg.TestCommand, cfg.TestTimeout),
		Generator: generator,
		Redactor:  redactor,
	})
	if err != nil {
		return nil, err
	}

	if a.repo {
		a.reconcile(ctx)
	}
	return a, nil
}

// requireRepo fails for commands that commit, revert, diff or apply.
func (a *app) requireRepo() error {
	if !a.repo {
		return fmt.Errorf("%s is %w", a.root, errNotARepository)
	}
	return nil
}

// reconcile replays lost decisions and reports them.
func (a *app) reconcile(ctx context.Context) []orchestrator.Replay {
	replays, err := a.orch.Reconcile(ctx)
	if err != nil {
		a.logger.Debug("reconcile skipped", "error", err)
	}
	for _, r := range replays {
		ux.Info(fmt.Sprintf("Recovered %s decision for %s from commit %s", r.Status, r.SessionID, r.Commit))
	}
	return replays
}

// Close releases the store lock and flushes telemetry and logs.
func (a *app) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
		a.db = nil
	}
	if a.shutdownTelemetry != nil {
		if err := a.shutdownTelemetry(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
		}
		a.shutdownTelemetry = nil
	}
	if a.logger != nil {
		if err := a.logger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
