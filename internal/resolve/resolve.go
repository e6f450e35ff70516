// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package resolve turns a paper reference (title, optional URL) into a
// canonical metadata record with a PDF location. A user-supplied URL of a
// recognized shape short-circuits the search APIs entirely; otherwise the
// backends are consulted in order until one produces a confident title
// match.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/pdiddy/paper-agent/pkg/types"
)

// ErrNotFound means no backend produced a confident match for the title.
var ErrNotFound = errors.New("no match found")

// Backend resolves a title against a single academic API. Implementations
// return ErrNotFound when the API answered but nothing matched; any other
// error is a transport or API failure.
type Backend interface {
	Name() string
	Resolve(ctx context.Context, title string) (*types.PaperDetails, error)
}

// Resolver chains the provided-URL fast path with a list of backends.
type Resolver struct {
	Backends []Backend
}

// Resolve returns the canonical record for the reference. The backends are
// tried in order; a backend failure is noted and the next one consulted.
// ErrNotFound is returned only when every backend answered and none
// matched. If every backend failed outright the combined failure is
// returned instead, so transient API outages do not masquerade as a
// missing paper.
func (r *Resolver) Resolve(ctx context.Context, ref types.PaperRef) (*types.PaperDetails, error) {
	if details, ok := FromURL(ref); ok {
		return details, nil
	}

	var failures []error
	answered := false
	for _, b := range r.Backends {
		details, err := b.Resolve(ctx, ref.Title)
		if err == nil {
			return details, nil
		}
		if errors.Is(err, ErrNotFound) {
			answered = true
			continue
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		failures = append(failures, fmt.Errorf("%s: %w", b.Name(), err))
	}

	if !answered && len(failures) > 0 {
		return nil, errors.Join(failures...)
	}
	return nil, ErrNotFound
}

// normalizeTitle lowercases and strips punctuation, collapsing whitespace,
// so titles from different sources compare equal.
func normalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// titlesMatch reports whether a candidate title is the paper the user asked
// for. Exact normalized equality always matches; containment is accepted
// for queries long enough that a substring hit is unlikely to be a
// coincidence (subtitle differences, trailing venue notes).
func titlesMatch(query, candidate string) bool {
	q, c := normalizeTitle(query), normalizeTitle(candidate)
	if q == "" || c == "" {
		return false
	}
	if q == c {
		return true
	}
	if len(q) >= 20 && (strings.Contains(c, q) || strings.Contains(q, c)) {
		return true
	}
	return false
}
