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

	"github.com/charmbracelet/glamour"
)

// DefaultWrap is the word-wrap width for rendered markdown.
const DefaultWrap = 100

// RenderMarkdown renders md for the terminal. Machine and minimal levels get
// the raw text back unchanged.
func RenderMarkdown(md string, width int) (string, error) {
	switch GetPersonality().Level {
	case PersonalityMachine, PersonalityMinimal:
		return md, nil
	}
	if width <= 0 {
		width = DefaultWrap
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("create markdown renderer: %w", err)
	}
	out, err := renderer.Render(md)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return out, nil
}

// Markdown prints md through RenderMarkdown, falling back to raw text.
func Markdown(md string) {
	out, err := RenderMarkdown(md, DefaultWrap)
	if err != nil {
		out = md
	}
	fmt.Fprint(Stdout(), out)
}
