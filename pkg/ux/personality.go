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
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// PersonalityLevel defines the verbosity and richness of CLI output.
type PersonalityLevel string

const (
	// PersonalityFull enables boxes, spinners and markdown rendering.
	PersonalityFull PersonalityLevel = "full"

	// PersonalityStandard enables colors and icons.
	PersonalityStandard PersonalityLevel = "standard"

	// PersonalityMinimal uses icons and basic formatting only.
	PersonalityMinimal PersonalityLevel = "minimal"

	// PersonalityMachine outputs plain text suitable for scripting.
	PersonalityMachine PersonalityLevel = "machine"
)

// PersonalityEnv overrides the level when no flag is given.
const PersonalityEnv = "TCR_PERSONALITY"

// Personality holds the current UX configuration.
type Personality struct {
	Level PersonalityLevel

	// Interactive allows huh prompts. False forces flag-only input.
	Interactive bool
}

var (
	currentPersonality = DefaultPersonality()
	personalityMu      sync.RWMutex
)

// DefaultPersonality returns full output with prompts enabled.
func DefaultPersonality() Personality {
	return Personality{Level: PersonalityFull, Interactive: true}
}

// GetPersonality returns the current personality settings.
func GetPersonality() Personality {
	personalityMu.RLock()
	defer personalityMu.RUnlock()
	return currentPersonality
}

// SetPersonality replaces the current personality settings.
func SetPersonality(p Personality) {
	personalityMu.Lock()
	defer personalityMu.Unlock()
	currentPersonality = p
}

// ParsePersonalityLevel converts a string to a PersonalityLevel, defaulting
// to standard for anything unknown.
func ParsePersonalityLevel(s string) PersonalityLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full", "f":
		return PersonalityFull
	case "standard", "std", "s":
		return PersonalityStandard
	case "minimal", "min", "m":
		return PersonalityMinimal
	case "machine", "quiet", "q":
		return PersonalityMachine
	default:
		return PersonalityStandard
	}
}

// InitPersonality resolves the level from the flag value, then
// TCR_PERSONALITY, then the terminal: a redirected stdout means machine mode.
func InitPersonality(flagValue string) {
	p := DefaultPersonality()
	p.Interactive = stdinIsTerminal() && stdoutIsTerminal()

	switch {
	case flagValue != "":
		p.Level = ParsePersonalityLevel(flagValue)
	case os.Getenv(PersonalityEnv) != "":
		p.Level = ParsePersonalityLevel(os.Getenv(PersonalityEnv))
	case !stdoutIsTerminal():
		p.Level = PersonalityMachine
	}
	if p.Level == PersonalityMachine {
		p.Interactive = false
	}
	SetPersonality(p)
}

// IsInteractive reports whether prompts may be shown.
func IsInteractive() bool {
	return GetPersonality().Interactive
}

// ShouldShowProgress reports whether spinners are drawn.
func ShouldShowProgress() bool {
	return GetPersonality().Level != PersonalityMachine
}

func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func stdinIsTerminal() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
