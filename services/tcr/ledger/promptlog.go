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
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/tcr/services/tcr/session"
)

var (
	// ErrEntryNotFound is returned when no Prompt Log entry carries the id.
	ErrEntryNotFound = errors.New("prompt log entry not found")

	// ErrDuplicateEntry is returned when an id appears in more than one entry.
	ErrDuplicateEntry = errors.New("duplicate prompt log entry")
)

const (
	// PromptLogHeader is the first line of a freshly created Prompt Log.
	PromptLogHeader = "# Prompt Log"

	// CommitPending is the Commit: value of an undecided entry.
	CommitPending = "pending"

	entrySeparator = "---"
	promptMarker   = "Prompt:"
)

// Entry is the content of one Prompt Log block.
type Entry struct {
	CreatedAt  time.Time
	Title      string
	ID         string
	Status     session.Status
	ThoughtLog string
	Commit     string
	Body       string
}

// EntryFor builds the PENDING entry recorded when sess is created.
func EntryFor(sess *session.Session) Entry {
	return Entry{
		CreatedAt:  sess.CreatedAt,
		Title:      sess.Title,
		ID:         sess.ID,
		Status:     session.StatusPending,
		ThoughtLog: sess.ThoughtLogPath,
		Commit:     CommitPending,
		Body:       sess.PromptBody,
	}
}

// render produces the block text, separator and trailing newline included.
func (e Entry) render() string {
	commit := e.Commit
	if commit == "" {
		commit = CommitPending
	}
	status := e.Status
	if status == "" {
		status = session.StatusPending
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## %s – %s\n", Timestamp(e.CreatedAt), singleLine(e.Title))
	fmt.Fprintf(&b, "ID: %s\n", e.ID)
	fmt.Fprintf(&b, "Status: %s\n", status)
	fmt.Fprintf(&b, "ThoughtLog: %s\n", e.ThoughtLog)
	fmt.Fprintf(&b, "Commit: %s\n", commit)
	b.WriteString("\n")
	b.WriteString(promptMarker + "\n")
	b.WriteString(blockQuote(e.Body))
	b.WriteString("\n\n")
	b.WriteString(entrySeparator + "\n")
	return b.String()
}

// Record is the parsed header of one block as it currently sits on disk.
type Record struct {
	ID         string
	Status     session.Status
	Commit     string
	ThoughtLog string

	// line indexes into the parsed document; -1 when absent
	statusLine int
	commitLine int
}

// document is a Prompt Log split into lines with its blocks located.
type document struct {
	lines   []string
	records []Record
}

// parseDocument locates every block. A block runs up to a line that is
// exactly "---"; its header is the part before the "Prompt:" line. Prompt
// bodies are block-quoted, so a body can never contain a bare separator or
// a header key at the start of a line.
func parseDocument(content string) *document {
	doc := &document{lines: strings.Split(content, "\n")}

	start := 0
	for i := 0; i <= len(doc.lines); i++ {
		if i < len(doc.lines) && doc.lines[i] != entrySeparator {
			continue
		}
		if rec, ok := parseHeader(doc.lines, start, i); ok {
			doc.records = append(doc.records, rec)
		}
		start = i + 1
	}
	return doc
}

func parseHeader(lines []string, start, end int) (Record, bool) {
	rec := Record{statusLine: -1, commitLine: -1}
	found := false
	for i := start; i < end; i++ {
		line := lines[i]
		if line == promptMarker {
			break
		}
		switch {
		case strings.HasPrefix(line, "ID:"):
			rec.ID = strings.TrimSpace(strings.TrimPrefix(line, "ID:"))
			found = rec.ID != ""
		case strings.HasPrefix(line, "Status:"):
			rec.Status = session.Status(strings.TrimSpace(strings.TrimPrefix(line, "Status:")))
			rec.statusLine = i
		case strings.HasPrefix(line, "Commit:"):
			rec.Commit = strings.TrimSpace(strings.TrimPrefix(line, "Commit:"))
			rec.commitLine = i
		case strings.HasPrefix(line, "ThoughtLog:"):
			rec.ThoughtLog = strings.TrimSpace(strings.TrimPrefix(line, "ThoughtLog:"))
		}
	}
	return rec, found
}

func (d *document) find(id string) (Record, error) {
	var (
		match Record
		n     int
	)
	for _, rec := range d.records {
		if rec.ID == id {
			match = rec
			n++
		}
	}
	switch n {
	case 0:
		return Record{}, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	case 1:
		return match, nil
	default:
		return Record{}, fmt.Errorf("%w: %s appears %d times", ErrDuplicateEntry, id, n)
	}
}

func (d *document) String() string {
	return strings.Join(d.lines, "\n")
}

// PromptLog is the workspace-wide ledger of sessions, one block per id.
//
// Thread Safety: Not safe for concurrent use. Callers serialize operations
// on a workspace.
type PromptLog struct {
	path string
}

// NewPromptLog returns a handle on the Prompt Log at path.
func NewPromptLog(path string) *PromptLog {
	return &PromptLog{path: path}
}

// Path returns the file location.
func (p *PromptLog) Path() string {
	return p.path
}

// Ensure creates the file with its header when it does not exist yet.
func (p *PromptLog) Ensure() error {
	_, err := os.Stat(p.path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat prompt log: %w", err)
	}
	return writeFileAtomic(p.path, []byte(PromptLogHeader+"\n\n"), 0o644)
}

// Append adds a block for e. An id already present in the log is refused.
func (p *PromptLog) Append(e Entry) error {
	if e.ID == "" {
		return errors.New("prompt log entry requires an id")
	}
	if err := p.Ensure(); err != nil {
		return err
	}
	content, err := p.read()
	if err != nil {
		return err
	}
	for _, rec := range parseDocument(content).records {
		if rec.ID == e.ID {
			return fmt.Errorf("%w: %s", ErrDuplicateEntry, e.ID)
		}
	}

	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += e.render()
	return writeFileAtomic(p.path, []byte(content), 0o644)
}

// Lookup returns the current header of the block for id.
func (p *PromptLog) Lookup(id string) (Record, error) {
	content, err := p.read()
	if err != nil {
		return Record{}, err
	}
	return parseDocument(content).find(id)
}

// Records returns the headers of every block in file order.
func (p *PromptLog) Records() ([]Record, error) {
	content, err := p.read()
	if err != nil {
		return nil, err
	}
	return parseDocument(content).records, nil
}

// SetDecision rewrites the Status and Commit lines of the block for id and
// nothing else. Rewriting to the values already on disk is a no-op.
func (p *PromptLog) SetDecision(id string, status session.Status, commit string) error {
	if !status.Valid() {
		return fmt.Errorf("set decision for %s: invalid status %q", id, status)
	}
	content, err := p.read()
	if err != nil {
		return err
	}
	doc := parseDocument(content)
	rec, err := doc.find(id)
	if err != nil {
		return err
	}
	if rec.statusLine < 0 {
		return fmt.Errorf("prompt log entry %s has no Status line", id)
	}

	changed := false
	if rec.Status != status {
		doc.lines[rec.statusLine] = "Status: " + string(status)
		changed = true
	}
	if commit != "" && rec.Commit != commit {
		if rec.commitLine < 0 {
			return fmt.Errorf("prompt log entry %s has no Commit line", id)
		}
		doc.lines[rec.commitLine] = "Commit: " + commit
		changed = true
	}
	if !changed {
		return nil
	}
	return writeFileAtomic(p.path, []byte(doc.String()), 0o644)
}

func (p *PromptLog) read() (string, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return "", fmt.Errorf("read prompt log: %w", err)
	}
	return string(data), nil
}

func blockQuote(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = "> " + line
	}
	return strings.Join(lines, "\n")
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
