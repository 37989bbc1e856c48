// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux renders tcr's terminal output.
//
// Every print helper respects the current personality level. Machine mode
// emits plain, prefix-tagged lines for scripts; the other levels use the
// lipgloss palette below.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Palette: deep ocean teals.
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorMuted   = lipgloss.Color("#5F7C85")
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
	Label     lipgloss.Style

	Box        lipgloss.Style
	WarningBox lipgloss.Style
	ErrorBox   lipgloss.Style
	CodeBlock  lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorMuted),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),
	Label:     lipgloss.NewStyle().Foreground(ColorTealPrimary).Width(12),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),
	CodeBlock: lipgloss.NewStyle().
		BorderLeft(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ColorSlate).
		PaddingLeft(1),
}

// Icon provides themed status icons.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
	IconActive  Icon = "●"
)

// Render returns the icon with its style applied.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	case IconActive:
		return Styles.Highlight.Render(string(i))
	default:
		return string(i)
	}
}

var (
	outMu  sync.RWMutex
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// SetOutput redirects all helpers and returns a function restoring the
// previous writers. Nil keeps the current writer.
func SetOutput(out, errOut io.Writer) (restore func()) {
	outMu.Lock()
	defer outMu.Unlock()
	prevOut, prevErr := stdout, stderr
	if out != nil {
		stdout = out
	}
	if errOut != nil {
		stderr = errOut
	}
	return func() {
		outMu.Lock()
		defer outMu.Unlock()
		stdout, stderr = prevOut, prevErr
	}
}

// Stdout returns the writer helpers print results to.
func Stdout() io.Writer {
	outMu.RLock()
	defer outMu.RUnlock()
	return stdout
}

// Stderr returns the writer helpers print diagnostics to.
func Stderr() io.Writer {
	outMu.RLock()
	defer outMu.RUnlock()
	return stderr
}

// Title prints a styled title. Suppressed in machine mode.
func Title(text string) {
	if GetPersonality().Level == PersonalityMachine {
		return
	}
	fmt.Fprintln(Stdout(), Styles.Title.Render(text))
}

// Success prints a success message with a checkmark.
func Success(text string) {
	switch GetPersonality().Level {
	case PersonalityMachine:
		fmt.Fprintf(Stdout(), "OK: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(Stdout(), "%s %s\n", IconSuccess.Render(), text)
	default:
		fmt.Fprintf(Stdout(), "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	}
}

// Warning prints a warning message.
func Warning(text string) {
	switch GetPersonality().Level {
	case PersonalityMachine:
		fmt.Fprintf(Stderr(), "WARN: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(Stderr(), "%s %s\n", IconWarning.Render(), text)
	default:
		fmt.Fprintf(Stderr(), "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	}
}

// Error prints an error message.
func Error(text string) {
	switch GetPersonality().Level {
	case PersonalityMachine:
		fmt.Fprintf(Stderr(), "ERROR: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(Stderr(), "%s %s\n", IconError.Render(), text)
	default:
		fmt.Fprintf(Stderr(), "%s %s\n", IconError.Render(), Styles.Error.Render(text))
	}
}

// Info prints an informational line.
func Info(text string) {
	if GetPersonality().Level == PersonalityMachine {
		fmt.Fprintln(Stdout(), text)
		return
	}
	fmt.Fprintf(Stdout(), "%s %s\n", Styles.Muted.Render("│"), text)
}

// Muted prints secondary text. Suppressed in machine mode.
func Muted(text string) {
	if GetPersonality().Level == PersonalityMachine {
		return
	}
	fmt.Fprintln(Stdout(), Styles.Muted.Render(text))
}

// Field prints an aligned "label value" line.
func Field(label, value string) {
	if GetPersonality().Level == PersonalityMachine {
		fmt.Fprintf(Stdout(), "%s=%s\n", strings.ToLower(strings.ReplaceAll(label, " ", "_")), value)
		return
	}
	fmt.Fprintf(Stdout(), "%s %s\n", Styles.Label.Render(label), value)
}

// Box prints text in a rounded box.
func Box(title, content string) {
	if GetPersonality().Level == PersonalityMachine {
		fmt.Fprintf(Stdout(), "%s: %s\n", title, content)
		return
	}
	fmt.Fprintln(Stdout(), Styles.Box.Width(72).Render(Styles.Title.Render(title)+"\n"+content))
}

// WarningBox prints text in a warning-styled box.
func WarningBox(title, content string) {
	if GetPersonality().Level == PersonalityMachine {
		fmt.Fprintf(Stderr(), "WARN %s: %s\n", title, content)
		return
	}
	titleLine := Styles.Warning.Bold(true).Render(title)
	fmt.Fprintln(Stderr(), Styles.WarningBox.Width(72).Render(titleLine+"\n"+content))
}

// Block prints verbatim multi-line output, such as test output or a model
// response, with a left rule.
func Block(content string) {
	content = strings.TrimRight(content, "\n")
	if content == "" {
		return
	}
	if GetPersonality().Level == PersonalityMachine {
		fmt.Fprintln(Stdout(), content)
		return
	}
	fmt.Fprintln(Stdout(), Styles.CodeBlock.Render(content))
}
