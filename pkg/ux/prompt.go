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
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
)

// ErrNotInteractive is returned when a prompt is needed but input is not a
// terminal.
var ErrNotInteractive = errors.New("input required but the terminal is not interactive")

// ErrAborted is returned when the user cancels a prompt.
var ErrAborted = errors.New("aborted")

// NewSessionInput holds the answers to the new-session form.
type NewSessionInput struct {
	Title string
	Body  string
}

// PromptNewSession asks for a title and body. Fields already set in seed are
// used as defaults.
func PromptNewSession(seed NewSessionInput) (NewSessionInput, error) {
	if !IsInteractive() {
		return seed, ErrNotInteractive
	}
	out := seed
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Title").
				Description("Short summary of the change you want").
				Value(&out.Title).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("title is required")
					}
					return nil
				}),
			huh.NewText().
				Title("Prompt").
				Description("What should the model do? Optional.").
				Value(&out.Body),
		),
	)
	if err := form.Run(); err != nil {
		return seed, promptError(err)
	}
	return out, nil
}

// Choice is one selectable option.
type Choice struct {
	Label string
	Value string
}

// PromptSelect asks the user to pick one of choices and returns its Value.
func PromptSelect(title string, choices []Choice, selected string) (string, error) {
	if !IsInteractive() {
		return "", ErrNotInteractive
	}
	if len(choices) == 0 {
		return "", errors.New("nothing to choose from")
	}
	options := make([]huh.Option[string], 0, len(choices))
	for _, c := range choices {
		options = append(options, huh.NewOption(c.Label, c.Value))
	}
	value := selected
	err := huh.NewSelect[string]().
		Title(title).
		Options(options...).
		Value(&value).
		Run()
	if err != nil {
		return "", promptError(err)
	}
	return value, nil
}

// Confirm asks a yes/no question. Non-interactive sessions get def.
func Confirm(question string, def bool) (bool, error) {
	if !IsInteractive() {
		return def, nil
	}
	answer := def
	if err := huh.NewConfirm().Title(question).Value(&answer).Run(); err != nil {
		return def, promptError(err)
	}
	return answer, nil
}

func promptError(err error) error {
	if errors.Is(err, huh.ErrUserAborted) {
		return ErrAborted
	}
	return fmt.Errorf("prompt: %w", err)
}
