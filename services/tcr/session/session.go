// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session defines the TCR session: the unit of work tracked from a
// change request through to approval or denial.
//
// # Lifecycle
//
//	PENDING ──Approve(commit)──▶ APPROVED
//	   │
//	   └─────Deny(commit)─────▶ DENIED
//
// APPROVED and DENIED are terminal. The only way to change Status is through
// the transition methods on Session, which refuse to leave a terminal state.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the decision state of a session.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusDenied   Status = "DENIED"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusDenied
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusDenied:
		return true
	default:
		return false
	}
}

// ParseStatus converts the textual form used in the prompt log into a Status.
func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown session status %q", v)
	}
	return s, nil
}

// TestResult is the classification of the last test run.
type TestResult string

const (
	TestPass TestResult = "PASS"
	TestFail TestResult = "FAIL"
)

// BaselineState distinguishes a baseline that was never captured from one
// that was looked up and found missing.
type BaselineState string

const (
	// BaselineUnchecked is the zero value: capture has not been attempted.
	BaselineUnchecked BaselineState = ""
	// BaselineAbsent means capture ran but the workspace had no revision.
	BaselineAbsent BaselineState = "absent"
	// BaselinePresent means SHA holds the captured revision.
	BaselinePresent BaselineState = "present"
)

// Baseline is the revision captured when the session was created.
type Baseline struct {
	State BaselineState `json:"state,omitempty"`
	SHA   string        `json:"sha,omitempty"`
}

// PresentBaseline returns a baseline anchored at sha.
func PresentBaseline(sha string) Baseline {
	return Baseline{State: BaselinePresent, SHA: sha}
}

// AbsentBaseline returns a baseline recording that no revision existed.
func AbsentBaseline() Baseline {
	return Baseline{State: BaselineAbsent}
}

// Present reports whether a revision was captured.
func (b Baseline) Present() bool {
	return b.State == BaselinePresent && b.SHA != ""
}

// Revision returns the captured SHA, or "" when none was captured.
func (b Baseline) Revision() string {
	if !b.Present() {
		return ""
	}
	return b.SHA
}

// String renders the baseline the way it appears in logs and prompts.
func (b Baseline) String() string {
	if b.Present() {
		return b.SHA
	}
	return "unknown"
}

// ErrTerminal is returned when a transition is attempted on a decided session.
var ErrTerminal = errors.New("session already decided")

// Session is one tracked change request.
type Session struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	PromptBody     string     `json:"prompt_body"`
	Status         Status     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DecidedAt      *time.Time `json:"decided_at,omitempty"`
	ThoughtLogPath string     `json:"thought_log_path"`
	Baseline       Baseline   `json:"baseline"`
	LastTestResult TestResult `json:"last_test_result,omitempty"`
	LastTestOutput string     `json:"last_test_output,omitempty"`
	LastCommit     string     `json:"last_commit,omitempty"`
}

// New returns a PENDING session. The thought log path is fixed for the
// lifetime of the session.
func New(id, title, body, thoughtLogPath string, baseline Baseline, now time.Time) *Session {
	return &Session{
		ID:             id,
		Title:          title,
		PromptBody:     body,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
		ThoughtLogPath: thoughtLogPath,
		Baseline:       baseline,
	}
}

// RecordTest overwrites the last test result and output.
func (s *Session) RecordTest(passed bool, output string, now time.Time) {
	if passed {
		s.LastTestResult = TestPass
	} else {
		s.LastTestResult = TestFail
	}
	s.LastTestOutput = output
	s.UpdatedAt = now
}

// Approve moves a pending session to APPROVED at the given commit.
func (s *Session) Approve(commit string, now time.Time) error {
	return s.decide(StatusApproved, commit, now)
}

// Deny moves a pending session to DENIED at the given commit.
func (s *Session) Deny(commit string, now time.Time) error {
	return s.decide(StatusDenied, commit, now)
}

func (s *Session) decide(to Status, commit string, now time.Time) error {
	if s.Status != StatusPending {
		return fmt.Errorf("%w: %s is %s", ErrTerminal, s.ID, s.Status)
	}
	s.Status = to
	s.LastCommit = commit
	s.UpdatedAt = now
	decided := now
	s.DecidedAt = &decided
	return nil
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.DecidedAt != nil {
		d := *s.DecidedAt
		c.DecidedAt = &d
	}
	return &c
}

// idLayout is the compact UTC timestamp used in session ids.
const idLayout = "20060102T150405"

// NewID returns a sortable, time-derived session id. exists is consulted to
// keep ids unique within a workspace; a numeric suffix is appended on
// collision.
func NewID(now time.Time, exists func(string) bool) string {
	base := "p-" + now.UTC().Format(idLayout)
	if exists == nil || !exists(base) {
		return base
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", base, n)
		if !exists(candidate) {
			return candidate
		}
	}
}
