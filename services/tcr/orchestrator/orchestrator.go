// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator drives the Test-Commit-Revert session lifecycle.
//
// # Description
//
// An Orchestrator is bound to one workspace. It owns the session store and
// is the only writer of the Prompt Log and the Thought Logs. Each exported
// operation loads the active session, performs its side effects in a fixed
// order and persists the result.
//
// # Invariant
//
// Only Approve and Deny change a session's status, plus Reconcile, which
// replays a decision that is already in the pushed history. In all three
// the VCS commit and push happen before the Prompt Log and the store are
// told about the decision. A failure at any earlier step leaves the session
// PENDING.
//
// # Thread Safety
//
// Operations are serialized by an internal mutex. Concurrent processes are
// excluded by the store's directory lock.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/tcr/services/llm"
	"github.com/AleutianAI/tcr/services/tcr/ledger"
	"github.com/AleutianAI/tcr/services/tcr/patch"
	"github.com/AleutianAI/tcr/services/tcr/policy"
	"github.com/AleutianAI/tcr/services/tcr/session"
	"github.com/AleutianAI/tcr/services/tcr/snapshot"
	"github.com/AleutianAI/tcr/services/tcr/store"
	"github.com/AleutianAI/tcr/services/tcr/testrunner"
	"github.com/AleutianAI/tcr/services/tcr/vcs"
)

// Gateway is the version-control capability the workflow needs.
type Gateway interface {
	CurrentRevision(ctx context.Context) (string, error)
	ChangedPathsSince(ctx context.Context, rev string) ([]string, error)
	Stage(ctx context.Context, paths []string) error
	Commit(ctx context.Context, message string) (string, error)
	Push(ctx context.Context, remote, branch string) error
	RevertToRevision(ctx context.Context, rev string, paths []string) error
	ApplyPatch(ctx context.Context, path string) error
	DiffSince(ctx context.Context, rev string) (string, error)
	FindDecisionCommits(ctx context.Context, ref, token string) ([]vcs.Commit, error)
}

// SessionStore persists sessions and the active pointer.
type SessionStore interface {
	Get(ctx context.Context, id string) (*session.Session, error)
	Exists(ctx context.Context, id string) (bool, error)
	Put(ctx context.Context, sess *session.Session) error
	PutActive(ctx context.Context, sess *session.Session) error
	SetActive(ctx context.Context, id string) error
	Active(ctx context.Context) (*session.Session, error)
	List(ctx context.Context) ([]*session.Session, error)
}

// Redactor scrubs outbound request text.
type Redactor interface {
	Redact(text string) (string, []policy.Finding)
}

// TestRunner runs the workspace test command.
type TestRunner interface {
	Run(ctx context.Context) (testrunner.Result, error)
}

// Config holds the workspace-level settings of an Orchestrator.
type Config struct {
	// Root is the absolute workspace root.
	Root string
	// PromptsRoot is the workspace-relative directory of Thought Logs.
	PromptsRoot string
	// PromptLogFile is the workspace-relative Prompt Log path.
	PromptLogFile string
	// Remote and Branch are the push target.
	Remote string
	Branch string
	// Snapshot bounds the file listing sent with generation requests.
	Snapshot snapshot.Options
	// Generation is passed to the generator on every request.
	Generation llm.GenerationParams
	// TracingEnabled turns on operation spans.
	TracingEnabled bool
	Logger         *slog.Logger
	// Now is the clock; defaults to time.Now in UTC.
	Now func() time.Time
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Gateway Gateway
	Store   SessionStore
	Runner  TestRunner
	// Generator may be nil, in which case Continue reports the generator
	// as unavailable.
	Generator llm.LLMClient
	// Redactor, when set, scrubs every generation request.
	Redactor Redactor
}

// Orchestrator runs TCR operations for one workspace.
type Orchestrator struct {
	cfg       Config
	gateway   Gateway
	store     SessionStore
	runner    TestRunner
	generator llm.LLMClient
	redactor  Redactor
	applier   *patch.Applier
	promptLog *ledger.PromptLog
	tracer    *Tracer
	logger    *slog.Logger
	now       func() time.Time

	mu sync.Mutex
}

// New validates cfg and wires an Orchestrator.
//
// # Outputs
//
//   - *Orchestrator: Ready to use.
//   - error: ErrInvalidInput for a relative root or missing collaborators.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if !filepath.IsAbs(cfg.Root) {
		return nil, fmt.Errorf("%w: workspace root must be absolute: %q", ErrInvalidInput, cfg.Root)
	}
	if deps.Gateway == nil || deps.Store == nil || deps.Runner == nil {
		return nil, fmt.Errorf("%w: gateway, store and runner are required", ErrInvalidInput)
	}
	if cfg.PromptsRoot == "" {
		cfg.PromptsRoot = "prompts"
	}
	if cfg.PromptLogFile == "" {
		cfg.PromptLogFile = "prompts.md"
	}
	if cfg.Remote == "" {
		cfg.Remote = "origin"
	}
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	cfg.PromptsRoot = filepath.ToSlash(filepath.Clean(cfg.PromptsRoot))
	cfg.PromptLogFile = filepath.ToSlash(filepath.Clean(cfg.PromptLogFile))

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &Orchestrator{
		cfg:       cfg,
		gateway:   deps.Gateway,
		store:     deps.Store,
		runner:    deps.Runner,
		generator: deps.Generator,
		redactor:  deps.Redactor,
		applier:   patch.NewApplier(deps.Gateway),
		promptLog: ledger.NewPromptLog(filepath.Join(cfg.Root, filepath.FromSlash(cfg.PromptLogFile))),
		tracer:    NewTracer(logger, cfg.TracingEnabled),
		logger:    logger.With(slog.String("component", "orchestrator")),
		now:       now,
	}, nil
}

// PromptLogPath returns the absolute Prompt Log path.
func (o *Orchestrator) PromptLogPath() string {
	return o.promptLog.Path()
}

// ThoughtLogPath returns the absolute Thought Log path of sess.
func (o *Orchestrator) ThoughtLogPath(sess *session.Session) string {
	return filepath.Join(o.cfg.Root, filepath.FromSlash(sess.ThoughtLogPath))
}

func (o *Orchestrator) thoughtLog(sess *session.Session) *ledger.ThoughtLog {
	return ledger.NewThoughtLog(o.ThoughtLogPath(sess))
}

// operation brackets an exported operation with its span, metrics and
// trace-aware logger. The returned finish func must be deferred with the
// named error of the caller.
func (o *Orchestrator) operation(ctx context.Context, op, sessionID string) (context.Context, *slog.Logger, func(outcome *string, err *error)) {
	start := time.Now()
	ctx, span, opID := o.tracer.StartOperation(ctx, op, sessionID)
	logger := LoggerWithTrace(ctx, o.logger).With(slog.String("operation", op), slog.String("op_id", opID))
	return ctx, logger, func(outcome *string, err *error) {
		label := *outcome
		if label == "" {
			label = "ok"
			if *err != nil {
				label = "error"
			}
		}
		o.tracer.EndOperation(span, label, *err)
		recordOperation(context.WithoutCancel(ctx), op, label, time.Since(start))
	}
}

// Create opens a new PENDING session and makes it active.
//
// # Description
//
// Side effects, in order: capture the baseline revision (best-effort),
// create the prompts directory and Prompt Log, write the Thought Log
// skeleton, append the Prompt Log entry, and store the session as the
// active one.
//
// # Inputs
//
//   - ctx: Context for VCS and store calls.
//   - title: Short title. Must not be blank.
//   - body: Full request text. Must not be blank.
//
// # Outputs
//
//   - *session.Session: The created session.
//   - error: ErrInvalidInput for blank input, or a filesystem/store error.
func (o *Orchestrator) Create(ctx context.Context, title, body string) (sess *session.Session, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	outcome := ""
	ctx, logger, finish := o.operation(ctx, "create", "")
	defer finish(&outcome, &err)

	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)
	if title == "" || body == "" {
		outcome = "invalid"
		return nil, fmt.Errorf("%w: title and body are required", ErrInvalidInput)
	}

	now := o.now()
	baseline := session.AbsentBaseline()
	if rev, revErr := o.gateway.CurrentRevision(ctx); revErr != nil {
		logger.Warn("could not read baseline revision", slog.String("error", revErr.Error()))
	} else {
		baseline = session.PresentBaseline(rev)
	}

	if err := os.MkdirAll(filepath.Join(o.cfg.Root, filepath.FromSlash(o.cfg.PromptsRoot)), 0o755); err != nil {
		return nil, fmt.Errorf("create prompts dir: %w", err)
	}
	if err := o.promptLog.Ensure(); err != nil {
		return nil, err
	}

	id := session.NewID(now, func(candidate string) bool {
		if exists, _ := o.store.Exists(ctx, candidate); exists {
			return true
		}
		_, statErr := os.Stat(filepath.Join(o.cfg.Root, filepath.FromSlash(o.thoughtLogRel(candidate))))
		return statErr == nil
	})

	sess = session.New(id, title, body, o.thoughtLogRel(id), baseline, now)
	if err := o.thoughtLog(sess).WriteSkeleton(id, title, body, now); err != nil {
		return nil, err
	}
	if err := o.promptLog.Append(ledger.EntryFor(sess)); err != nil {
		return nil, err
	}
	if err := o.store.PutActive(ctx, sess); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	logger.Info("created session",
		slog.String("session_id", id),
		slog.String("baseline", baseline.String()),
	)
	return sess.Clone(), nil
}

const thoughtLogSuffix = "-log.md"

func (o *Orchestrator) thoughtLogRel(id string) string {
	return path.Join(o.cfg.PromptsRoot, id+thoughtLogSuffix)
}

// Status returns the active session without side effects.
func (o *Orchestrator) Status(ctx context.Context) (*session.Session, error) {
	return o.active(ctx)
}

// List returns every stored session, newest first.
func (o *Orchestrator) List(ctx context.Context) ([]*session.Session, error) {
	return o.store.List(ctx)
}

// Select makes id the active session. It changes nothing else.
func (o *Orchestrator) Select(ctx context.Context, id string) (*session.Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.store.SetActive(ctx, id); err != nil {
		return nil, fmt.Errorf("select %s: %w", id, err)
	}
	return o.store.Get(ctx, id)
}

// Get returns the stored session with the given id.
func (o *Orchestrator) Get(ctx context.Context, id string) (*session.Session, error) {
	return o.store.Get(ctx, id)
}

func (o *Orchestrator) active(ctx context.Context) (*session.Session, error) {
	sess, err := o.store.Active(ctx)
	if errors.Is(err, store.ErrNoActive) {
		return nil, ErrNoActiveSession
	}
	if err != nil {
		return nil, fmt.Errorf("load active session: %w", err)
	}
	return sess, nil
}

// activePending loads the active session and requires it to be PENDING.
func (o *Orchestrator) activePending(ctx context.Context) (*session.Session, error) {
	sess, err := o.active(ctx)
	if err != nil {
		return nil, err
	}
	if sess.Status != session.StatusPending {
		return nil, fmt.Errorf("%w: %s is %s", session.ErrTerminal, sess.ID, sess.Status)
	}
	return sess, nil
}

// Outcome classifies what Continue did.
type Outcome string

const (
	OutcomeGeneratorUnavailable Outcome = "generator_unavailable"
	OutcomeGenerationFailed     Outcome = "generation_failed"
	OutcomeNoResponse           Outcome = "no_response"
	OutcomeNotADiff             Outcome = "not_a_diff"
	OutcomeApplied              Outcome = "applied"
	OutcomeApplyFailed          Outcome = "apply_failed"
)

// ContinueResult reports a Continue call.
type ContinueResult struct {
	Session  *session.Session
	Outcome  Outcome
	Response string
	Stats    patch.Stats
	// Redacted lists the pattern ids scrubbed from the request.
	Redacted []string
	// Err is the generation or apply failure behind a failed outcome.
	Err error
}

// Continue asks the generator for a patch and applies it when plausible.
//
// # Description
//
// The request embeds the session intent, the baseline, a capped workspace
// listing and the paths already changed since the baseline. The listing
// and the changed paths are gathered concurrently. A timestamped Thought
// Log entry is appended whatever happens. The session stays PENDING.
//
// # Outputs
//
//   - ContinueResult: The outcome. Generator and apply failures are
//     outcomes, not errors.
//   - error: ErrNoActiveSession, session.ErrTerminal, or a Thought Log
//     write failure.
func (o *Orchestrator) Continue(ctx context.Context) (res ContinueResult, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	sess, err := o.activePending(ctx)
	if err != nil {
		return ContinueResult{}, err
	}
	res.Session = sess

	outcome := ""
	ctx, logger, finish := o.operation(ctx, "continue", sess.ID)
	defer func() {
		outcome = string(res.Outcome)
		finish(&outcome, &err)
	}()

	var (
		tree    snapshot.Listing
		changed []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		listing, snapErr := snapshot.Take(o.cfg.Root, o.cfg.Snapshot)
		if snapErr != nil {
			logger.Warn("workspace snapshot failed", slog.String("error", snapErr.Error()))
			return nil
		}
		tree = listing
		return nil
	})
	g.Go(func() error {
		paths, diffErr := o.gateway.ChangedPathsSince(gctx, sess.Baseline.Revision())
		if diffErr != nil {
			logger.Warn("could not list changed paths", slog.String("error", diffErr.Error()))
			return nil
		}
		changed = paths
		return nil
	})
	_ = g.Wait()

	prompt := buildPrompt(sess, tree, changed)
	tl := o.thoughtLog(sess)

	if o.generator == nil {
		res.Outcome = OutcomeGeneratorUnavailable
		logger.Warn("patch generator not configured")
		return res, tl.Event(o.now(), "Continued session. Patch generator not configured; nothing requested.")
	}

	if o.redactor != nil {
		var findings []policy.Finding
		prompt, findings = o.redactor.Redact(prompt)
		if len(findings) > 0 {
			res.Redacted = policy.PatternIDs(findings)
			logger.Warn("redacted secret-like values from request",
				slog.Int("count", len(findings)),
				slog.String("patterns", strings.Join(res.Redacted, ",")))
			if err := tl.Event(o.now(), fmt.Sprintf("Redacted %d secret-like value(s) from the request (%s).",
				len(findings), strings.Join(res.Redacted, ", "))); err != nil {
				return res, err
			}
		}
	}

	response, genErr := o.generator.Generate(ctx, prompt, o.cfg.Generation)
	switch {
	case genErr != nil:
		res.Outcome = OutcomeGenerationFailed
		res.Err = genErr
		logger.Error("patch generation failed", slog.String("error", genErr.Error()))
		return res, tl.Event(o.now(), "Continued session. Patch generation failed: "+oneLine(genErr.Error()))
	case strings.TrimSpace(response) == "":
		res.Outcome = OutcomeNoResponse
		logger.Warn("no patch returned")
		return res, tl.Event(o.now(), "Continued session. No patch returned; nothing applied.")
	}

	res.Response = response
	if err := tl.Event(o.now(), "Continued session.", ledger.Fence(response)); err != nil {
		return res, err
	}

	applied, applyErr := o.applyText(ctx, logger, sess, response)
	switch {
	case errors.Is(applyErr, patch.ErrNotADiff):
		res.Outcome = OutcomeNotADiff
		logger.Warn("response does not look like a unified diff; skipping apply")
		return res, tl.Event(o.now(), "Response does not look like a unified diff; skipped apply.")
	case applyErr != nil:
		res.Outcome = OutcomeApplyFailed
		res.Err = applyErr
		return res, nil
	}
	res.Outcome = OutcomeApplied
	res.Stats = applied.Stats
	return res, nil
}

// ApplyResult reports an Apply call.
type ApplyResult struct {
	Session *session.Session
	Stats   patch.Stats
}

// Apply applies an externally produced diff to the working tree.
//
// # Outputs
//
//   - ApplyResult: The session and patch statistics.
//   - error: patch.ErrNotADiff with no side effects, the gateway error on
//     a failed apply, or a session lookup error.
func (o *Orchestrator) Apply(ctx context.Context, diffText string) (res ApplyResult, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	sess, err := o.activePending(ctx)
	if err != nil {
		return ApplyResult{}, err
	}
	res.Session = sess

	outcome := ""
	ctx, logger, finish := o.operation(ctx, "apply", sess.ID)
	defer finish(&outcome, &err)

	if !patch.Plausible(patch.Normalize(diffText)) {
		outcome = "not_a_diff"
		return res, patch.ErrNotADiff
	}
	applied, err := o.applyText(ctx, logger, sess, diffText)
	if err != nil {
		return res, err
	}
	res.Stats = applied.Stats
	return res, nil
}

// applyText applies text and records the result in the Thought Log. An
// implausible text returns patch.ErrNotADiff without any side effect.
func (o *Orchestrator) applyText(ctx context.Context, logger *slog.Logger, sess *session.Session, text string) (patch.Result, error) {
	res, err := o.applier.Apply(ctx, text)
	if errors.Is(err, patch.ErrNotADiff) {
		return patch.Result{}, err
	}
	tl := o.thoughtLog(sess)
	if err != nil {
		logger.Error("failed to apply patch", slog.String("error", err.Error()))
		if logErr := tl.Event(o.now(), "Failed to apply patch: "+oneLine(err.Error())); logErr != nil {
			return patch.Result{}, errors.Join(err, logErr)
		}
		return patch.Result{}, err
	}

	msg := "Applied patch via git apply."
	if summary := res.Stats.Summary(); summary != "" {
		msg = fmt.Sprintf("Applied patch via git apply (%s).", summary)
	}
	logger.Info("applied patch", slog.String("session_id", sess.ID), slog.String("stats", res.Stats.Summary()))
	if err := tl.Event(o.now(), msg); err != nil {
		return res, err
	}
	return res, nil
}

// Approve runs the tests and, when they pass, commits and pushes the
// session's changes and marks it APPROVED.
//
// # Description
//
//  1. Run the test command, append its output under "Test run (approve)",
//     and persist the result on the session whatever it is.
//  2. On failure return ErrTestsFailed; nothing is staged.
//  3. Stage the paths changed since the baseline plus both logs, commit
//     "TCR: [APPROVE] <title> (<id>)" and push.
//  4. Only then rewrite the Prompt Log entry, transition the session,
//     persist it and append the final Thought Log line.
//
// # Outputs
//
//   - *session.Session: The session after the call, including the test
//     result when tests ran.
//   - error: ErrTestsFailed, a *vcs.CommandError, or a lookup error.
func (o *Orchestrator) Approve(ctx context.Context) (sess *session.Session, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	sess, err = o.activePending(ctx)
	if err != nil {
		return nil, err
	}

	outcome := ""
	ctx, logger, finish := o.operation(ctx, "approve", sess.ID)
	defer finish(&outcome, &err)

	result, err := o.runner.Run(ctx)
	if err != nil {
		return sess, fmt.Errorf("run tests: %w", err)
	}
	recordTestRun(ctx, result.Passed, result.Duration)

	tl := o.thoughtLog(sess)
	if err := tl.Section("Test run (approve)", result.Output); err != nil {
		return sess, err
	}
	sess.RecordTest(result.Passed, result.Output, o.now())
	if err := o.store.Put(ctx, sess); err != nil {
		return sess, fmt.Errorf("persist test result: %w", err)
	}

	if !result.Passed {
		outcome = "tests_failed"
		logger.Warn("tests failed; approve blocked", slog.String("session_id", sess.ID))
		return sess, ErrTestsFailed
	}

	changed, err := o.gateway.ChangedPathsSince(ctx, sess.Baseline.Revision())
	if err != nil {
		return sess, fmt.Errorf("list changed paths: %w", err)
	}
	toStage := uniquePaths(append([]string{o.cfg.PromptLogFile, sess.ThoughtLogPath}, changed...))

	sha, err := o.commitAndPush(ctx, toStage, commitMessage("APPROVE", sess))
	if err != nil {
		return sess, err
	}

	if err := o.recordDecision(ctx, sess, session.StatusApproved, sha, "operation"); err != nil {
		return sess, err
	}
	if logErr := tl.Event(o.now(), fmt.Sprintf("Approved and committed %s.", sha)); logErr != nil {
		logger.Warn("could not append final thought log line", slog.String("error", logErr.Error()))
	}
	logger.Info("session approved", slog.String("session_id", sess.ID), slog.String("commit", sha))
	return sess.Clone(), nil
}

// Deny reverts the session's code changes to the baseline, commits the
// logs alone and marks the session DENIED.
//
// # Description
//
// Paths changed since the baseline are split into the protected set (the
// Prompt Log and this session's Thought Log) and code. Code paths are
// restored to the baseline; paths that did not exist there are removed.
// Protected paths are staged but never reverted. A timeline line recording
// the revert is appended before the commit so the commit always carries a
// change.
//
// # Outputs
//
//   - *session.Session: The session after the call.
//   - error: ErrNoBaseline with no side effects, a *vcs.CommandError, or a
//     lookup error.
func (o *Orchestrator) Deny(ctx context.Context) (sess *session.Session, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	sess, err = o.activePending(ctx)
	if err != nil {
		return nil, err
	}

	outcome := ""
	ctx, logger, finish := o.operation(ctx, "deny", sess.ID)
	defer finish(&outcome, &err)

	if !sess.Baseline.Present() {
		outcome = "no_baseline"
		return sess, ErrNoBaseline
	}
	base := sess.Baseline.Revision()

	changed, err := o.gateway.ChangedPathsSince(ctx, base)
	if err != nil {
		return sess, fmt.Errorf("list changed paths: %w", err)
	}
	protected := []string{o.cfg.PromptLogFile, sess.ThoughtLogPath}
	code := o.withoutThoughtLogs(withoutPaths(changed, protected))

	if err := o.gateway.RevertToRevision(ctx, base, code); err != nil {
		return sess, fmt.Errorf("revert code: %w", err)
	}
	logger.Info("reverted code to baseline", slog.Int("paths", len(code)), slog.String("baseline", base))

	tl := o.thoughtLog(sess)
	if err := tl.Event(o.now(), fmt.Sprintf("Reverted %d code path(s) to baseline %s.", len(code), base)); err != nil {
		return sess, err
	}

	sha, err := o.commitAndPush(ctx, uniquePaths(protected), commitMessage("DENY", sess))
	if err != nil {
		return sess, err
	}

	if err := o.recordDecision(ctx, sess, session.StatusDenied, sha, "operation"); err != nil {
		return sess, err
	}
	if logErr := tl.Event(o.now(), fmt.Sprintf("Denied and reverted code. Committed %s (logs only).", sha)); logErr != nil {
		logger.Warn("could not append final thought log line", slog.String("error", logErr.Error()))
	}
	logger.Info("session denied", slog.String("session_id", sess.ID), slog.String("commit", sha))
	return sess.Clone(), nil
}

// commitAndPush stages paths, commits and pushes. Any failure is returned
// before the caller records a decision.
func (o *Orchestrator) commitAndPush(ctx context.Context, paths []string, message string) (string, error) {
	if err := o.gateway.Stage(ctx, paths); err != nil {
		return "", fmt.Errorf("stage: %w", err)
	}
	sha, err := o.gateway.Commit(ctx, message)
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	if err := o.gateway.Push(ctx, o.cfg.Remote, o.cfg.Branch); err != nil {
		return "", fmt.Errorf("push %s %s: %w", o.cfg.Remote, o.cfg.Branch, err)
	}
	return sha, nil
}

// recordDecision applies a decision that the VCS already holds: Prompt Log
// first, then the session transition and the store.
func (o *Orchestrator) recordDecision(ctx context.Context, sess *session.Session, status session.Status, sha, source string) error {
	if err := o.promptLog.SetDecision(sess.ID, status, sha); err != nil {
		return fmt.Errorf("update prompt log: %w", err)
	}

	from := sess.Status
	var err error
	switch status {
	case session.StatusApproved:
		err = sess.Approve(sha, o.now())
	case session.StatusDenied:
		err = sess.Deny(sha, o.now())
	default:
		err = fmt.Errorf("not a decision: %s", status)
	}
	if err != nil {
		return err
	}
	if err := o.store.Put(ctx, sess); err != nil {
		return fmt.Errorf("persist decision: %w", err)
	}

	o.tracer.RecordTransition(ctx, sess.ID, string(from), string(status), sha)
	recordDecision(context.WithoutCancel(ctx), string(status), source)
	return nil
}

// ReviewResult lists the pending change set of a session.
type ReviewResult struct {
	Session *session.Session
	Paths   []string
	Stats   patch.Stats
}

// Review lists the paths changed since the active session's baseline with
// line statistics for tracked files.
func (o *Orchestrator) Review(ctx context.Context) (ReviewResult, error) {
	sess, err := o.active(ctx)
	if err != nil {
		return ReviewResult{}, err
	}
	rev := sess.Baseline.Revision()
	paths, err := o.gateway.ChangedPathsSince(ctx, rev)
	if err != nil {
		return ReviewResult{}, fmt.Errorf("list changed paths: %w", err)
	}
	diffText, err := o.gateway.DiffSince(ctx, rev)
	if err != nil {
		return ReviewResult{}, fmt.Errorf("diff: %w", err)
	}
	return ReviewResult{Session: sess, Paths: paths, Stats: patch.ComputeStats(diffText)}, nil
}

// ReadThoughtLog returns the Thought Log of id, or of the active session
// when id is empty.
func (o *Orchestrator) ReadThoughtLog(ctx context.Context, id string) (*session.Session, string, error) {
	var (
		sess *session.Session
		err  error
	)
	if id == "" {
		sess, err = o.active(ctx)
	} else {
		sess, err = o.store.Get(ctx, id)
	}
	if err != nil {
		return nil, "", err
	}
	content, err := o.thoughtLog(sess).Read()
	if err != nil {
		return sess, "", err
	}
	return sess, content, nil
}

func commitMessage(kind string, sess *session.Session) string {
	return fmt.Sprintf("TCR: [%s] %s (%s)", kind, oneLine(sess.Title), sess.ID)
}

// decisionToken is the part of a decision commit message that names the
// session.
func decisionToken(id string) string {
	return "(" + id + ")"
}

func uniquePaths(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		p = filepath.ToSlash(p)
		if _, ok := seen[p]; ok || p == "" {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func withoutPaths(paths, exclude []string) []string {
	skip := make(map[string]struct{}, len(exclude))
	for _, p := range exclude {
		skip[filepath.ToSlash(p)] = struct{}{}
	}
	var out []string
	for _, p := range paths {
		if _, ok := skip[filepath.ToSlash(p)]; !ok {
			out = append(out, p)
		}
	}
	return out
}

// withoutThoughtLogs drops other sessions' Thought Logs. They are never
// code, and an uncommitted one exists nowhere else.
func (o *Orchestrator) withoutThoughtLogs(paths []string) []string {
	prefix := strings.TrimSuffix(filepath.ToSlash(o.cfg.PromptsRoot), "/") + "/"
	var out []string
	for _, p := range paths {
		slash := filepath.ToSlash(p)
		if strings.HasPrefix(slash, prefix) && strings.HasSuffix(slash, thoughtLogSuffix) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
