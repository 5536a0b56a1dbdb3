// Copyright 2025 LLManager Authors
// SPDX-License-Identifier: Apache-2.0

// Package permissions evaluates hierarchical permission scope strings.
//
// A permission scope is a colon-delimited hierarchy such as
// "admin:users:read". Granted scopes may contain "*" segments:
//
//   - "*" alone grants everything.
//   - "ns:*" grants every scope under the "ns" namespace, at any depth.
//   - A "*" at any other position matches exactly one segment at that
//     position ("admin:*:read" grants "admin:users:read").
//
// Matching follows a fixed precedence: full wildcard, exact match,
// two-segment namespace wildcard, positional wildcard for equal segment
// counts, then a general left-to-right walk. The precedence matters:
// the namespace form spans arbitrary depth while positional wildcards
// consume exactly one segment each, and evaluating them in the wrong
// order changes the outcome for scopes that mix both shapes.
package permissions

import "strings"

// Separator delimits segments within a permission scope string.
const Separator = ":"

// Wildcard is the segment value that matches any single segment, and,
// as the full granted string, matches every required scope.
const Wildcard = "*"

// Reason codes reported through the optional trace hook. Diagnostic
// only; never part of the matching decision.
const (
	ReasonFullWildcard    = "matched_full_wildcard"
	ReasonExact           = "matched_exact"
	ReasonNamespace       = "matched_namespace"
	ReasonPositional      = "matched_positional"
	ReasonWalk            = "matched_walk"
	ReasonNoMatch         = "unmatched"
	ReasonLengthMismatch  = "unmatched_length"
	ReasonSegmentMismatch = "unmatched_segment"
)

// TraceFunc receives the outcome of each individual match evaluation.
type TraceFunc func(required, granted string, matched bool, reason string)

// Matcher evaluates permission scopes. The zero value is ready to use;
// Trace may be set for observability.
type Matcher struct {
	Trace TraceFunc
}

// Matches reports whether a single granted scope satisfies a single
// required scope.
func (m *Matcher) Matches(required, granted string) bool {
	matched, reason := match(required, granted)
	if m.Trace != nil {
		m.Trace(required, granted, matched, reason)
	}
	return matched
}

// Satisfies reports whether every required scope is matched by at least
// one granted scope. An empty required set is vacuously satisfied.
func (m *Matcher) Satisfies(required, granted []string) bool {
	for _, req := range required {
		ok := false
		for _, grant := range granted {
			if m.Matches(req, grant) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// Matches reports whether granted satisfies required, without tracing.
func Matches(required, granted string) bool {
	matched, _ := match(required, granted)
	return matched
}

// Satisfies reports whether every required scope is matched by at least
// one granted scope, without tracing.
func Satisfies(required, granted []string) bool {
	m := Matcher{}
	return m.Satisfies(required, granted)
}

func match(required, granted string) (bool, string) {
	// Full-access wildcard.
	if granted == Wildcard {
		return true, ReasonFullWildcard
	}

	// Exact match.
	if required == granted {
		return true, ReasonExact
	}

	reqSegs := strings.Split(required, Separator)
	grantSegs := strings.Split(granted, Separator)

	// Simple namespace wildcard ("admin:*"): matches any required scope
	// whose first segment equals the namespace, regardless of depth.
	if len(grantSegs) == 2 && grantSegs[1] == Wildcard {
		if grantSegs[0] == reqSegs[0] {
			return true, ReasonNamespace
		}
		return false, ReasonNoMatch
	}

	// Position-wise wildcard for equal segment counts.
	if len(grantSegs) == len(reqSegs) {
		for i, g := range grantSegs {
			if g != Wildcard && g != reqSegs[i] {
				return false, ReasonSegmentMismatch
			}
		}
		return true, ReasonPositional
	}

	// General walk for differing segment counts. Each granted segment,
	// wildcard or not, consumes exactly one required segment, so a
	// granted scope of a different length can never consume every
	// required segment exactly: a longer grant runs out of required
	// segments, a shorter one leaves some unconsumed. The walk is kept
	// explicit so the invariant stays visible where it is enforced.
	if hasWildcard(grantSegs) {
		i := 0
		for _, g := range grantSegs {
			if i >= len(reqSegs) {
				// Granted segment with nothing left to consume.
				return false, ReasonLengthMismatch
			}
			if g != Wildcard && g != reqSegs[i] {
				return false, ReasonSegmentMismatch
			}
			i++
		}
		if i == len(reqSegs) {
			return true, ReasonWalk
		}
		return false, ReasonLengthMismatch
	}

	return false, ReasonNoMatch
}

func hasWildcard(segs []string) bool {
	for _, s := range segs {
		if s == Wildcard {
			return true
		}
	}
	return false
}
