// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ThoughtLog is the narrative file of a single session.
type ThoughtLog struct {
	path string
}

// NewThoughtLog returns a handle on the Thought Log at path.
func NewThoughtLog(path string) *ThoughtLog {
	return &ThoughtLog{path: path}
}

// Path returns the file location.
func (t *ThoughtLog) Path() string {
	return t.path
}

// WriteSkeleton creates the file with the header, prompt, timeline and notes
// sections. Its parent directory is created as needed.
func (t *ThoughtLog) WriteSkeleton(id, title, body string, created time.Time) error {
	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return fmt.Errorf("create thought log dir: %w", err)
	}
	content := strings.Join([]string{
		"# Thought Log – " + id,
		"",
		"## Prompt",
		title,
		"",
		body,
		"",
		"## Timeline",
		fmt.Sprintf("- %s: Prompt created.", Timestamp(created)),
		"",
		"## Notes",
		"- Add Codex interactions here as the session progresses.",
		"",
	}, "\n")
	return writeFileAtomic(t.path, []byte(content), 0o644)
}

// Append writes lines to the end of the file, each newline-terminated.
func (t *ThoughtLog) Append(lines ...string) error {
	if len(lines) == 0 {
		return nil
	}
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open thought log: %w", err)
	}
	if _, err := f.WriteString(strings.Join(lines, "\n") + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("append thought log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close thought log: %w", err)
	}
	return nil
}

// Event appends a timestamped timeline line followed by any detail lines
// and a blank separator.
func (t *ThoughtLog) Event(at time.Time, message string, detail ...string) error {
	lines := []string{fmt.Sprintf("- %s: %s", Timestamp(at), message)}
	for _, d := range detail {
		lines = append(lines, "", d)
	}
	return t.Append(append(lines, "")...)
}

// Section appends a "## heading" followed by a fenced copy of body.
func (t *ThoughtLog) Section(heading, body string) error {
	return t.Append("## "+heading, Fence(body), "")
}

// Read returns the whole file.
func (t *ThoughtLog) Read() (string, error) {
	data, err := os.ReadFile(t.path)
	if err != nil {
		return "", fmt.Errorf("read thought log: %w", err)
	}
	return string(data), nil
}

// Fence wraps body in a Markdown code fence.
func Fence(body string) string {
	return "```\n" + strings.TrimRight(body, "\n") + "\n```"
}
