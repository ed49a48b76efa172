// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security redacts credentials from text before it is logged.
package security

import (
	"regexp"
)

// =============================================================================
// REDACTOR INTERFACE
// =============================================================================

// Redactor removes one kind of secret from a string.
type Redactor interface {
	Redact(input string) string
	Name() string
}

// PatternRedactor replaces every match of a regular expression.
type PatternRedactor struct {
	name    string
	pattern *regexp.Regexp
	replace string
}

// NewPatternRedactor creates a redactor for pattern.
func NewPatternRedactor(name string, pattern *regexp.Regexp, replace string) *PatternRedactor {
	return &PatternRedactor{name: name, pattern: pattern, replace: replace}
}

// Redact replaces matches with the replacement string.
func (r *PatternRedactor) Redact(input string) string {
	return r.pattern.ReplaceAllString(input, r.replace)
}

// Name returns the redactor name.
func (r *PatternRedactor) Name() string {
	return r.name
}

// =============================================================================
// BUILT-IN SECRET PATTERNS
// =============================================================================

// secretPatterns are the credentials a gateway or client may echo back.
// Order matters: longer, more specific prefixes run first.
var secretPatterns = []struct {
	name    string
	pattern *regexp.Regexp
	replace string
}{
	{"Bearer", regexp.MustCompile(`Bearer\s+[a-zA-Z0-9\-_.]+`), "Bearer [TOKEN_REDACTED]"},
	{"JWT", regexp.MustCompile(`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`), "[JWT_REDACTED]"},
	{"OpenRouter", regexp.MustCompile(`sk-or-v1-[a-zA-Z0-9]{64}`), "[OPENROUTER_KEY_REDACTED]"},
	{"Anthropic", regexp.MustCompile(`sk-ant-[a-zA-Z0-9\-]{20,}`), "[ANTHROPIC_KEY_REDACTED]"},
	{"OpenAI", regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`), "[OPENAI_KEY_REDACTED]"},
	{"Google", regexp.MustCompile(`AIza[0-9A-Za-z\-_]{35}`), "[GOOGLE_KEY_REDACTED]"},
	{"AWS", regexp.MustCompile(`AKIA[0-9A-Z]{16}`), "[AWS_KEY_REDACTED]"},
	{"Password", regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[=:]\s*\S+`), "[PASSWORD_REDACTED]"},
}

// DefaultRedactors returns the built-in secret redactors.
func DefaultRedactors() []Redactor {
	redactors := make([]Redactor, 0, len(secretPatterns))
	for _, sp := range secretPatterns {
		redactors = append(redactors, NewPatternRedactor(sp.name, sp.pattern, sp.replace))
	}
	return redactors
}

var defaultRedactors = DefaultRedactors()

// RedactSecrets applies every built-in redactor to input.
func RedactSecrets(input string) string {
	return Redact(input, defaultRedactors...)
}

// Redact applies redactors to input in order.
func Redact(input string, redactors ...Redactor) string {
	for _, r := range redactors {
		input = r.Redact(input)
	}
	return input
}
