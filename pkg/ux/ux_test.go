// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// useLevel sets the personality level and captures output for one test.
func useLevel(t *testing.T, level PersonalityLevel) (out, errOut *bytes.Buffer) {
	t.Helper()
	prev := GetPersonality()
	SetPersonality(Personality{Level: level})
	out, errOut = &bytes.Buffer{}, &bytes.Buffer{}
	restore := SetOutput(out, errOut)
	t.Cleanup(func() {
		restore()
		SetPersonality(prev)
	})
	return out, errOut
}

func TestIcon_Render(t *testing.T) {
	for _, icon := range []Icon{IconSuccess, IconWarning, IconError, IconPending, IconActive, IconArrow} {
		assert.Contains(t, icon.Render(), string(icon))
	}
}

func TestMachineOutput(t *testing.T) {
	out, errOut := useLevel(t, PersonalityMachine)

	Title("hidden title")
	Muted("hidden muted")
	Success("committed abc123")
	Info("plain")
	Field("Last commit", "abc123")
	Warning("careful")
	Error("broken")

	assert.Equal(t, "OK: committed abc123\nplain\nlast_commit=abc123\n", out.String())
	assert.Equal(t, "WARN: careful\nERROR: broken\n", errOut.String())
}

func TestStyledOutput(t *testing.T) {
	out, errOut := useLevel(t, PersonalityFull)

	Title("Session")
	Success("done")
	Error("failed")
	Box("Heading", "content")

	assert.Contains(t, out.String(), "Session")
	assert.Contains(t, out.String(), "done")
	assert.Contains(t, out.String(), "Heading")
	assert.Contains(t, out.String(), "content")
	assert.Contains(t, errOut.String(), "failed")
	assert.NotContains(t, out.String(), "OK:")
}

func TestBlock(t *testing.T) {
	out, _ := useLevel(t, PersonalityMachine)
	Block("")
	assert.Empty(t, out.String())

	Block("line one\nline two\n\n")
	assert.Equal(t, "line one\nline two\n", out.String())
}

func TestSetOutput_Restore(t *testing.T) {
	var a, b bytes.Buffer
	restoreA := SetOutput(&a, nil)
	restoreB := SetOutput(&b, nil)
	assert.Same(t, &b, Stdout())
	restoreB()
	assert.Same(t, &a, Stdout())
	restoreA()
}

func TestParsePersonalityLevel(t *testing.T) {
	tests := map[string]PersonalityLevel{
		"full":     PersonalityFull,
		"F":        PersonalityFull,
		"std":      PersonalityStandard,
		"minimal":  PersonalityMinimal,
		"quiet":    PersonalityMachine,
		"machine":  PersonalityMachine,
		"whatever": PersonalityStandard,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParsePersonalityLevel(in), in)
	}
}

func TestInitPersonality(t *testing.T) {
	prev := GetPersonality()
	t.Cleanup(func() { SetPersonality(prev) })

	t.Setenv(PersonalityEnv, "minimal")
	InitPersonality("")
	assert.Equal(t, PersonalityMinimal, GetPersonality().Level)

	InitPersonality("machine")
	assert.Equal(t, PersonalityMachine, GetPersonality().Level)
	assert.False(t, IsInteractive())
	assert.False(t, ShouldShowProgress())
}

func TestStatusBadge(t *testing.T) {
	useLevel(t, PersonalityMachine)
	assert.Equal(t, "APPROVED", StatusBadge("APPROVED"))

	useLevel(t, PersonalityFull)
	for _, s := range []string{"PENDING", "APPROVED", "DENIED"} {
		assert.Contains(t, StatusBadge(s), s)
	}
}

func TestSessionCard_Machine(t *testing.T) {
	out, _ := useLevel(t, PersonalityMachine)
	SessionCard(SessionView{
		ID:         "p-20250601T120000",
		Title:      "Add cache",
		Status:     "PENDING",
		Baseline:   "abc123",
		ThoughtLog: "prompts/p-20250601T120000-log.md",
	})
	want := strings.Join([]string{
		"id=p-20250601T120000",
		"title=Add cache",
		"status=PENDING",
		"baseline=abc123",
		"last_test=-",
		"last_commit=-",
		"thought_log=prompts/p-20250601T120000-log.md",
		"",
	}, "\n")
	assert.Equal(t, want, out.String())
}

func TestSessionCard_Full(t *testing.T) {
	out, _ := useLevel(t, PersonalityFull)
	SessionCard(SessionView{
		ID:        "p-1",
		Title:     "Add cache",
		Status:    "APPROVED",
		Baseline:  "abc123",
		LastTest:  "PASS",
		UpdatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	})
	assert.Contains(t, out.String(), "Add cache")
	assert.Contains(t, out.String(), "APPROVED")
	assert.Contains(t, out.String(), "PASS")
}

func TestSessionList(t *testing.T) {
	out, _ := useLevel(t, PersonalityMachine)
	SessionList([]SessionView{
		{ID: "p-2", Status: "PENDING", Title: "second", Active: true},
		{ID: "p-1", Status: "DENIED", Title: "first"},
	})
	assert.Equal(t, "*\tp-2\tPENDING\tsecond\n\tp-1\tDENIED\tfirst\n", out.String())

	out, _ = useLevel(t, PersonalityFull)
	SessionList(nil)
	assert.Contains(t, out.String(), "No sessions yet")
}

func TestTestOutcome(t *testing.T) {
	out, errOut := useLevel(t, PersonalityMachine)
	TestOutcome(false, "FAIL: TestX\n", 1500*time.Millisecond)
	assert.Equal(t, "ERROR: Tests failed (1.5s)\n", errOut.String())
	assert.Equal(t, "FAIL: TestX\n", out.String())
}

func TestRenderMarkdown_PlainLevels(t *testing.T) {
	useLevel(t, PersonalityMachine)
	got, err := RenderMarkdown("# Title\n", 0)
	require.NoError(t, err)
	assert.Equal(t, "# Title\n", got)
}

func TestRenderMarkdown_Full(t *testing.T) {
	useLevel(t, PersonalityFull)
	got, err := RenderMarkdown("# Thought Log\n\n- entry one\n", 60)
	require.NoError(t, err)
	assert.Contains(t, got, "Thought Log")
	assert.Contains(t, got, "entry one")
}

func TestPrompts_NotInteractive(t *testing.T) {
	prev := GetPersonality()
	t.Cleanup(func() { SetPersonality(prev) })
	SetPersonality(Personality{Level: PersonalityStandard, Interactive: false})

	seed := NewSessionInput{Title: "t"}
	got, err := PromptNewSession(seed)
	assert.ErrorIs(t, err, ErrNotInteractive)
	assert.Equal(t, seed, got)

	_, err = PromptSelect("Pick", []Choice{{Label: "a", Value: "a"}}, "")
	assert.ErrorIs(t, err, ErrNotInteractive)

	ok, err := Confirm("sure?", true)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSpinner_Machine(t *testing.T) {
	_, errOut := useLevel(t, PersonalityMachine)
	err := WithSpinner("Running tests", func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, "PROGRESS: Running tests\n", errOut.String())
}

func TestSpinner_Animated(t *testing.T) {
	_, errOut := useLevel(t, PersonalityFull)
	spin := NewSpinner("Asking model")
	spin.Start()
	spin.Start()
	spin.UpdateMessage("Still asking")
	time.Sleep(200 * time.Millisecond)
	spin.Stop()
	spin.Stop()
	assert.Contains(t, errOut.String(), "Still asking")
}
