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
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// SessionView is the display shape of a session. The CLI fills it from the
// orchestrator's session records.
type SessionView struct {
	ID         string
	Title      string
	Status     string
	Baseline   string
	LastTest   string
	LastCommit string
	ThoughtLog string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Active     bool
}

// StatusBadge styles a session status.
func StatusBadge(status string) string {
	if GetPersonality().Level == PersonalityMachine {
		return status
	}
	switch status {
	case "APPROVED":
		return Styles.Success.Bold(true).Render(status)
	case "DENIED":
		return Styles.Error.Bold(true).Render(status)
	default:
		return Styles.Warning.Bold(true).Render(status)
	}
}

// SessionCard prints one session's details.
func SessionCard(v SessionView) {
	if GetPersonality().Level == PersonalityMachine {
		Field("id", v.ID)
		Field("title", v.Title)
		Field("status", v.Status)
		Field("baseline", v.Baseline)
		Field("last_test", orDash(v.LastTest))
		Field("last_commit", orDash(v.LastCommit))
		Field("thought_log", v.ThoughtLog)
		return
	}

	var b strings.Builder
	row := func(label, value string) {
		fmt.Fprintf(&b, "%s %s\n", Styles.Label.Render(label), value)
	}
	row("Status", StatusBadge(v.Status))
	row("Session", v.ID)
	row("Baseline", v.Baseline)
	row("Last test", orDash(v.LastTest))
	row("Last commit", orDash(v.LastCommit))
	row("Thought log", v.ThoughtLog)
	if !v.UpdatedAt.IsZero() {
		row("Updated", v.UpdatedAt.Local().Format(time.DateTime))
	}
	Box(v.Title, strings.TrimRight(b.String(), "\n"))
}

// SessionList prints sessions one per line, marking the active one.
func SessionList(views []SessionView) {
	if len(views) == 0 {
		Muted("No sessions yet. Start one with `tcr new`.")
		return
	}
	if GetPersonality().Level == PersonalityMachine {
		for _, v := range views {
			active := ""
			if v.Active {
				active = "*"
			}
			fmt.Fprintf(Stdout(), "%s\t%s\t%s\t%s\n", active, v.ID, v.Status, v.Title)
		}
		return
	}

	idWidth := 0
	for _, v := range views {
		idWidth = max(idWidth, lipgloss.Width(v.ID))
	}
	for _, v := range views {
		marker := " "
		if v.Active {
			marker = IconActive.Render()
		}
		id := lipgloss.NewStyle().Width(idWidth).Render(v.ID)
		status := lipgloss.NewStyle().Width(9).Render(StatusBadge(v.Status))
		fmt.Fprintf(Stdout(), "%s %s  %s  %s\n", marker, id, status, v.Title)
	}
}

// TestOutcome prints the result of a test run and its output. A zero
// duration is omitted.
func TestOutcome(passed bool, output string, duration time.Duration) {
	took := ""
	if duration > 0 {
		took = " (" + duration.Round(time.Millisecond).String() + ")"
	}
	if passed {
		Success("Tests passed" + took)
	} else {
		Error("Tests failed" + took)
	}
	Block(output)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
