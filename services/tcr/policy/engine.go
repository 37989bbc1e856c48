// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package policy detects and scrubs credential-shaped text before it leaves
// the machine in a model request.
package policy

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Public is the classification of text that matches no pattern.
const Public = "public"

//go:embed secret_patterns.yaml
var defaultPatterns []byte

// Engine holds a compiled, priority-ordered pattern set. It is read-only
// after construction and safe for concurrent use.
type Engine struct {
	classifications []Classification
}

// New returns an Engine over the built-in secret patterns.
func New() (*Engine, error) {
	return NewFromYAML(defaultPatterns)
}

// NewFromYAML parses, compiles and priority-sorts a pattern set.
//
// # Outputs
//
//   - *Engine: Ready to scan.
//   - error: Malformed YAML, an unknown confidence, a missing id or an
//     invalid regex.
func NewFromYAML(data []byte) (*Engine, error) {
	var file RuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the policy patterns: %w", err)
	}
	if err := file.compile(); err != nil {
		return nil, err
	}
	file.sortByPriority()
	return &Engine{classifications: file.Classifications}, nil
}

// Classify returns the name of the highest-priority classification with a
// matching pattern, or Public.
func (e *Engine) Classify(data []byte) string {
	for _, c := range e.classifications {
		for _, p := range c.Patterns {
			if p.compiled.Match(data) {
				return c.Name
			}
		}
	}
	return Public
}

// Scan reports every match in content, line by line.
func (e *Engine) Scan(content string) []Finding {
	var findings []Finding
	for i, line := range strings.Split(content, "\n") {
		for _, c := range e.classifications {
			for _, p := range c.Patterns {
				for _, m := range p.compiled.FindAllString(line, -1) {
					findings = append(findings, Finding{
						Line:           i + 1,
						Match:          strings.TrimSpace(m),
						Classification: c.Name,
						PatternID:      p.ID,
						Description:    p.Description,
						Confidence:     p.Confidence,
					})
				}
			}
		}
	}
	return findings
}

// Redact replaces every match with a "[REDACTED:<pattern id>]" marker.
//
// # Description
//
// Patterns are applied in priority order and, within a classification, in
// file order. Text already replaced by an earlier pattern is not matched
// again because the marker contains none of the pattern alphabets.
//
// # Outputs
//
//   - string: content with matches replaced.
//   - []Finding: One entry per replacement, in application order. Line
//     numbers refer to the original content.
func (e *Engine) Redact(content string) (string, []Finding) {
	lines := strings.Split(content, "\n")
	var findings []Finding
	for _, c := range e.classifications {
		for _, p := range c.Patterns {
			for i, line := range lines {
				if !p.compiled.MatchString(line) {
					continue
				}
				lines[i] = p.compiled.ReplaceAllStringFunc(line, func(m string) string {
					findings = append(findings, Finding{
						Line:           i + 1,
						Match:          strings.TrimSpace(m),
						Classification: c.Name,
						PatternID:      p.ID,
						Description:    p.Description,
						Confidence:     p.Confidence,
					})
					return "[REDACTED:" + p.ID + "]"
				})
			}
		}
	}
	return strings.Join(lines, "\n"), findings
}

// PatternIDs summarizes findings as distinct pattern ids in first-seen order.
func PatternIDs(findings []Finding) []string {
	seen := make(map[string]struct{}, len(findings))
	var ids []string
	for _, f := range findings {
		if _, ok := seen[f.PatternID]; ok {
			continue
		}
		seen[f.PatternID] = struct{}{}
		ids = append(ids, f.PatternID)
	}
	return ids
}
