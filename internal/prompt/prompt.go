// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package prompt owns the system instruction the proxy prepends to every
// conversation.
package prompt

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

// MaxPromptSize bounds an override file (64KB).
const MaxPromptSize = 64 * 1024

// ErrEmptyPrompt is returned when an override file has no usable text.
var ErrEmptyPrompt = errors.New("system prompt file is empty")

// Default is the AdTech educator instruction.
const Default = `You are an expert AdTech educator and explainer. Your role is to help users understand the advertising technology ecosystem in clear, simple terms.

GUIDELINES:
- Explain concepts at the user's level - if they say "like I'm new", use analogies and simple language
- If they mention a role (PM, developer, etc.), tailor your explanation to that perspective
- Use **bold** for key terms and concepts
- Keep responses concise but informative (2-4 paragraphs max)
- Include practical examples when helpful
- Reference how concepts connect to the broader AdTech ecosystem

KEY CONCEPTS YOU KNOW:
- DSP (Demand-Side Platform): Helps advertisers buy ad space programmatically
- SSP (Supply-Side Platform): Helps publishers sell their ad inventory
- Ad Exchange: Marketplace where DSPs and SSPs trade in real-time
- RTB (Real-Time Bidding): Auctions that happen in milliseconds when a page loads
- DMP (Data Management Platform): Collects and segments audience data
- CDP (Customer Data Platform): Unifies first-party customer data
- Programmatic Advertising: Automated buying/selling of digital ads
- CPM/CPC/CPA: Pricing models (per thousand impressions/click/action)
- Header Bidding: Publishers let multiple ad exchanges bid simultaneously
- Cookie deprecation: Shift to privacy-first targeting (contextual, first-party data)
- Attribution: Tracking which ads led to conversions

Be helpful, accurate, and encouraging. Make AdTech accessible to everyone.`

// ContextSentence returns the sentence naming the module the user is viewing.
func ContextSentence(context string) string {
	return fmt.Sprintf(`Current context: The user is viewing the "%s" module in the AdTech Visual Explorer.`, context)
}

// Compose appends the context sentence to base when context is non-empty.
func Compose(base, context string) string {
	if context == "" {
		return base
	}
	return base + "\n\n" + ContextSentence(context)
}

// =============================================================================
// SOURCE
// =============================================================================

// Source supplies the current base prompt. It starts from Default or from an
// override file, and can follow that file as it is edited.
// A Source is safe for concurrent use.
type Source struct {
	mu     sync.RWMutex
	base   string
	path   string
	logger *log.Logger
}

// NewSource returns a Source for the given override file. An empty path uses
// Default and never reloads.
func NewSource(path string) (*Source, error) {
	s := &Source{base: Default, path: path, logger: log.Default()}
	if path == "" {
		return s, nil
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Fixed returns a Source that always yields base.
func Fixed(base string) *Source {
	return &Source{base: base, logger: log.Default()}
}

// WithLogger sets the logger used for reload events.
func (s *Source) WithLogger(logger *log.Logger) *Source {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Path returns the override file path, or "" for a fixed prompt.
func (s *Source) Path() string {
	return s.path
}

// Base returns the current base prompt.
func (s *Source) Base() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base
}

// Compose returns the system instruction for a request with the given
// context label.
func (s *Source) Compose(context string) string {
	return Compose(s.Base(), context)
}

// Reload re-reads the override file. On failure the previous prompt is kept.
func (s *Source) Reload() error {
	if s.path == "" {
		return nil
	}
	text, err := readPrompt(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.base = text
	s.mu.Unlock()
	return nil
}

func readPrompt(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat system prompt: %w", err)
	}
	if info.Size() > MaxPromptSize {
		return "", fmt.Errorf("system prompt %s exceeds %d bytes", path, MaxPromptSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read system prompt: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", ErrEmptyPrompt
	}
	return text, nil
}
