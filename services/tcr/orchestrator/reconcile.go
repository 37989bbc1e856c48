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
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/tcr/services/tcr/ledger"
	"github.com/AleutianAI/tcr/services/tcr/session"
)

// Replay is one decision recovered by Reconcile.
type Replay struct {
	SessionID string
	Status    session.Status
	Commit    string
}

// Reconcile brings PENDING sessions in line with decisions that already
// reached the remote.
//
// # Description
//
// A process can die after pushing a decision commit and before recording
// it. For every PENDING session, the pushed history (<remote>/<branch>) is
// searched for a "TCR: [APPROVE]" or "TCR: [DENY]" commit naming the
// session; when one exists, the Prompt Log rewrite and the status
// transition are replayed. Replays are idempotent. Sessions without such a
// commit are left untouched.
//
// # Outputs
//
//   - []Replay: Decisions replayed in this call.
//   - error: The first store or gateway failure. Replays completed before
//     the failure are still returned.
func (o *Orchestrator) Reconcile(ctx context.Context) (replays []Replay, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	outcome := ""
	ctx, logger, finish := o.operation(ctx, "reconcile", "")
	defer finish(&outcome, &err)

	sessions, err := o.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	ref := o.cfg.Remote + "/" + o.cfg.Branch
	for _, sess := range sessions {
		if sess.Status != session.StatusPending {
			continue
		}
		commits, err := o.gateway.FindDecisionCommits(ctx, ref, decisionToken(sess.ID))
		if err != nil {
			return replays, fmt.Errorf("search %s for %s: %w", ref, sess.ID, err)
		}

		var status session.Status
		var sha string
		for _, c := range commits {
			if s, ok := decisionOf(c.Subject, sess.ID); ok {
				status, sha = s, c.SHA
				break
			}
		}
		if status == "" {
			continue
		}

		if err := o.recordDecision(ctx, sess, status, sha, "reconcile"); err != nil {
			if errors.Is(err, ledger.ErrEntryNotFound) {
				logger.Warn("decision commit found but prompt log has no entry",
					slog.String("session_id", sess.ID), slog.String("commit", sha))
				continue
			}
			return replays, err
		}
		if logErr := o.thoughtLog(sess).Event(o.now(),
			fmt.Sprintf("Recovered %s decision from pushed commit %s.", status, sha)); logErr != nil {
			logger.Warn("could not append recovery line", slog.String("error", logErr.Error()))
		}

		logger.Info("replayed decision",
			slog.String("session_id", sess.ID),
			slog.String("status", string(status)),
			slog.String("commit", sha),
		)
		replays = append(replays, Replay{SessionID: sess.ID, Status: status, Commit: sha})
	}

	if len(replays) > 0 {
		outcome = "replayed"
	}
	return replays, nil
}

// decisionOf parses a decision commit subject written by commitMessage.
func decisionOf(subject, id string) (session.Status, bool) {
	if !strings.HasSuffix(subject, decisionToken(id)) {
		return "", false
	}
	switch {
	case strings.HasPrefix(subject, "TCR: [APPROVE] "):
		return session.StatusApproved, true
	case strings.HasPrefix(subject, "TCR: [DENY] "):
		return session.StatusDenied, true
	default:
		return "", false
	}
}
