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
	"strings"

	"github.com/AleutianAI/tcr/services/tcr/session"
	"github.com/AleutianAI/tcr/services/tcr/snapshot"
)

// patchInstructions precede every generation request.
var patchInstructions = []string{
	"You are writing a unified diff against the workspace root. Requirements:",
	"- Respond ONLY with a unified diff, no code fences, no extra prose.",
	"- Paths must be relative to workspace root.",
	"- Include full file contents in the diff hunks (no placeholders).",
	"- Create files as needed; keep changes minimal and buildable.",
	"- Do not delete unrelated files.",
}

// buildPrompt renders the user instruction for a patch request.
func buildPrompt(sess *session.Session, tree snapshot.Listing, changed []string) string {
	lines := append([]string{}, patchInstructions...)
	lines = append(lines,
		"",
		"Prompt:",
		"Title: "+sess.Title,
		"Body: "+orNA(sess.PromptBody),
		"Baseline commit: "+sess.Baseline.String(),
		"",
	)

	heading := "Workspace file tree:"
	if tree.Truncated {
		heading = "Workspace file tree (truncated):"
	}
	lines = append(lines, heading)
	for _, entry := range tree.Entries {
		lines = append(lines, "- "+entry)
	}

	if len(changed) > 0 {
		lines = append(lines, "", "Paths already changed since baseline:")
		for _, p := range changed {
			lines = append(lines, "- "+p)
		}
	}

	lines = append(lines, "", "Return only unified diffs. No fences. Keep output under token limits.")
	return strings.Join(lines, "\n")
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
