// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package format turns free-form user input into a structured list of paper
// references. The heavy lifting is delegated to a Backend; this package owns
// response validation and the distinction between transient backend failures
// and unparsable model output.
package format

import (
	"context"
	"errors"
	"strings"

	"github.com/pdiddy/paper-agent/pkg/types"
)

// Backend abstracts the model call so tests can supply a mock.
type Backend interface {
	FormatInput(ctx context.Context, input string) ([]types.PaperRef, error)
}

// ParseError marks model output that could not be interpreted as a
// reference list. It is not retryable: the same input produces the same
// garbage, so the batch fails instead of looping.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "unparsable format response: " + e.Reason
}

// IsParseError reports whether err is (or wraps) a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// CleanRefs validates and normalizes a parsed reference list: entries with
// blank titles are dropped, whitespace is trimmed, and duplicate titles
// (after normalization) keep only the first occurrence. A URL on a dropped
// duplicate is preserved when the kept entry has none.
func CleanRefs(refs []types.PaperRef) []types.PaperRef {
	seen := map[string]int{}
	var out []types.PaperRef
	for _, ref := range refs {
		title := strings.TrimSpace(ref.Title)
		if title == "" {
			continue
		}
		key := normalizeKey(title)
		if idx, ok := seen[key]; ok {
			if out[idx].URL == "" && ref.URL != "" {
				out[idx].URL = strings.TrimSpace(ref.URL)
			}
			continue
		}
		seen[key] = len(out)
		out = append(out, types.PaperRef{Title: title, URL: strings.TrimSpace(ref.URL)})
	}
	return out
}

func normalizeKey(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// stripCodeFence removes a surrounding Markdown code fence from model
// output. Models occasionally wrap JSON in ```json blocks despite
// instructions not to.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
