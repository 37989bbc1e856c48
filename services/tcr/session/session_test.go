// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func TestStatusMonotonic(t *testing.T) {
	tests := []struct {
		name   string
		decide func(*Session) error
		want   Status
	}{
		{"approve", func(s *Session) error { return s.Approve("abc", t0) }, StatusApproved},
		{"deny", func(s *Session) error { return s.Deny("def", t0) }, StatusDenied},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := New("p-1", "title", "body", "prompts/p-1-log.md", AbsentBaseline(), t0)
			require.NoError(t, tc.decide(s))
			assert.Equal(t, tc.want, s.Status)
			require.NotNil(t, s.DecidedAt)

			// Neither transition is allowed from a terminal state.
			assert.ErrorIs(t, s.Approve("zzz", t0), ErrTerminal)
			assert.ErrorIs(t, s.Deny("zzz", t0), ErrTerminal)
			assert.Equal(t, tc.want, s.Status)
			assert.NotEqual(t, "zzz", s.LastCommit)
		})
	}
}

func TestRecordTestOverwrites(t *testing.T) {
	s := New("p-1", "t", "b", "l", AbsentBaseline(), t0)
	s.RecordTest(false, "boom", t0)
	assert.Equal(t, TestFail, s.LastTestResult)
	assert.Equal(t, "boom", s.LastTestOutput)

	s.RecordTest(true, "ok", t0.Add(time.Minute))
	assert.Equal(t, TestPass, s.LastTestResult)
	assert.Equal(t, "ok", s.LastTestOutput)
	assert.Equal(t, StatusPending, s.Status)
}

func TestBaselineTriState(t *testing.T) {
	var unchecked Baseline
	assert.Equal(t, BaselineUnchecked, unchecked.State)
	assert.False(t, unchecked.Present())
	assert.Equal(t, "unknown", unchecked.String())

	absent := AbsentBaseline()
	assert.False(t, absent.Present())
	assert.NotEqual(t, unchecked, absent)

	present := PresentBaseline("0123abc")
	assert.True(t, present.Present())
	assert.Equal(t, "0123abc", present.Revision())
	assert.Equal(t, "0123abc", present.String())
}

func TestNewID(t *testing.T) {
	assert.Equal(t, "p-20250314T092653", NewID(t0, nil))

	taken := map[string]bool{"p-20250314T092653": true, "p-20250314T092653-2": true}
	id := NewID(t0, func(s string) bool { return taken[s] })
	assert.Equal(t, "p-20250314T092653-3", id)
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" approved ")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, s)

	_, err = ParseStatus("MAYBE")
	assert.Error(t, err)
}

func TestCloneIsDeep(t *testing.T) {
	s := New("p-1", "t", "b", "l", AbsentBaseline(), t0)
	require.NoError(t, s.Approve("abc", t0))
	c := s.Clone()
	*c.DecidedAt = t0.Add(time.Hour)
	assert.Equal(t, t0, *s.DecidedAt)
}
