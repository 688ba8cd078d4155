// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

// Package glsl cleans raw model output into shader source.
package glsl

import "strings"

const (
	fence = "```"

	// Directive is the token whose lines are stripped. WebGL supplies its own
	// version line.
	Directive = "#version"
)

// Clean removes the markdown fence around raw and every line containing a
// #version directive, then trims surrounding whitespace. Clean never fails and
// Clean(Clean(x)) == Clean(x).
func Clean(raw string) string {
	out := strings.TrimSpace(raw)
	for {
		next := strings.TrimSpace(dropDirectives(stripFence(out)))
		if next == out {
			return out
		}
		out = next
	}
}

// stripFence removes one opening fence, with its optional language tag, and
// one closing fence. Fence lines are found anywhere in s so prose around the
// code block does not hide them. A fence sharing a line with code is only
// recognized at the very start or end of s.
func stripFence(s string) string {
	lines := strings.Split(s, "\n")
	open, closing := -1, -1
	for i, line := range lines {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), fence); ok && isLanguageTag(rest) {
			open = i
			break
		}
	}
	for i := len(lines) - 1; i > open; i-- {
		if strings.TrimSpace(lines[i]) == fence {
			closing = i
			break
		}
	}
	if open >= 0 || closing >= 0 {
		kept := make([]string, 0, len(lines))
		for i, line := range lines {
			if i != open && i != closing {
				kept = append(kept, line)
			}
		}
		return strings.Join(kept, "\n")
	}

	if rest, ok := strings.CutPrefix(s, fence); ok {
		s = rest
	}
	trimmed := strings.TrimRightFunc(s, isSpace)
	if body, ok := strings.CutSuffix(trimmed, fence); ok {
		s = body
	}
	return s
}

func dropDirectives(s string) string {
	if !strings.Contains(s, Directive) {
		return s
	}
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.Contains(line, Directive) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func isLanguageTag(tag string) bool {
	for _, r := range tag {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_', r == '-', r == '+', r == '.':
		default:
			return false
		}
	}
	return true
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
