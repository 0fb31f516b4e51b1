// Package validation checks and sanitizes memory bank content before it is
// written. The gate is a pure function: no state, freely parallelizable.
//
// Sanitization is advisory. Content can be valid and still rewritten, e.g.
// line-ending normalization, so callers must prefer SanitizedContent over
// the raw input whenever it is set.
package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Result is the outcome of validating one piece of content. Errors are
// ordered; all violations are collected, not just the first.
type Result struct {
	IsValid          bool
	Errors           []string
	SanitizedContent string
}

// Sanitized reports whether sanitization rewrote the input.
func (r Result) Sanitized() bool { return r.SanitizedContent != "" }

// Gate validates memory bank content.
type Gate struct {
	// MaxBytes caps content size. Zero means no cap.
	MaxBytes int
}

// NewGate returns a gate with the given size cap.
func NewGate(maxBytes int) *Gate {
	return &Gate{MaxBytes: maxBytes}
}

// Validate collects every violation in content and produces sanitized
// content when the cleanup differs from the input.
func (g *Gate) Validate(content string) Result {
	var errs []string

	if !utf8.ValidString(content) {
		errs = append(errs, "content is not valid UTF-8")
	}
	if strings.ContainsRune(content, '\x00') {
		errs = append(errs, "content contains a NUL byte")
	}
	if g.MaxBytes > 0 && len(content) > g.MaxBytes {
		errs = append(errs, fmt.Sprintf("content is %d bytes, limit is %d", len(content), g.MaxBytes))
	}
	if bad := disallowedControls(content); bad != "" {
		errs = append(errs, "content contains control characters: "+bad)
	}

	res := Result{IsValid: len(errs) == 0, Errors: errs}
	if res.IsValid {
		if clean := sanitize(content); clean != content {
			res.SanitizedContent = clean
		}
	}
	return res
}

// disallowedControls lists the C0 control characters present in content,
// excluding tab, newline, and carriage return.
func disallowedControls(content string) string {
	seen := map[rune]bool{}
	var list []string
	for _, r := range content {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' && !seen[r] {
			seen[r] = true
			list = append(list, fmt.Sprintf("U+%04X", r))
		}
	}
	return strings.Join(list, ", ")
}

// sanitize normalizes line endings to LF and strips trailing whitespace
// from each line. It never adds content, so already-clean input round-trips
// byte for byte.
func sanitize(content string) string {
	norm := strings.ReplaceAll(content, "\r\n", "\n")
	norm = strings.ReplaceAll(norm, "\r", "\n")

	lines := strings.Split(norm, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}

	return strings.Join(lines, "\n")
}
