// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package diag holds the wire-level diagnostic shapes shared by the
// plugin host, the incremental cache, and the per-file pipeline.
package diag

import (
	"cmp"
)

// Span is a half-open byte range [Start, End) into a document's source text.
type Span struct {
	Start int `json:"start" msgpack:"start"`
	End   int `json:"end" msgpack:"end"`
}

// Contains reports whether s fully contains o.
func (s Span) Contains(o Span) bool {
	return s.Start <= o.Start && o.End <= s.End
}

// Shift returns a copy of s moved by delta bytes.
func (s Span) Shift(delta int) Span {
	return Span{Start: s.Start + delta, End: s.End + delta}
}

// Valid reports whether the span is well-formed for a source of length n.
func (s Span) Valid(n int) bool {
	return 0 <= s.Start && s.Start <= s.End && s.End <= n
}

// Position is an editor-facing location derived from a Span plus source.
// Positions are advisory: they may be dropped during a block's span shift
// and recomputed on demand from Span + source.
type Position struct {
	Line   int `json:"line" msgpack:"line"`     // 1-indexed
	Column int `json:"column" msgpack:"column"` // 0-indexed UTF-16 code units
}

// Severity classifies a Diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Fix replaces source[Span] with Text. Span.Start == Span.End is an
// insertion; an empty Text is a deletion.
type Fix struct {
	Span Span   `json:"span" msgpack:"span"`
	Text string `json:"text" msgpack:"text"`
}

// Shift returns a copy of f with its span moved by delta bytes.
func (f Fix) Shift(delta int) Fix {
	f.Span = f.Span.Shift(delta)
	return f
}

// Diagnostic is one lint finding.
type Diagnostic struct {
	RuleID   string    `json:"rule_id" msgpack:"rule_id"`
	Message  string    `json:"message" msgpack:"message"`
	Span     Span      `json:"span" msgpack:"span"`
	Loc      *Position `json:"loc,omitempty" msgpack:"loc,omitempty"`
	Severity Severity  `json:"severity" msgpack:"severity"`
	Fix      *Fix      `json:"fix,omitempty" msgpack:"fix,omitempty"`
}

// Shift returns a copy of d with its span (and fix span, if any) moved by
// delta bytes, and its Loc dropped — callers recompute location from span
// plus source rather than carrying stale line/column data across a shift.
func (d Diagnostic) Shift(delta int) Diagnostic {
	d.Span = d.Span.Shift(delta)
	d.Loc = nil
	if d.Fix != nil {
		f := d.Fix.Shift(delta)
		d.Fix = &f
	}
	return d
}

// Compare imposes the total order required by §3/§8.3: lexicographic over
// span.start, span.end, rule_id, message. Sorting by this order followed by
// adjacent-dedup makes Dedup idempotent and deterministic.
func Compare(a, b Diagnostic) int {
	if c := cmp.Compare(a.Span.Start, b.Span.Start); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Span.End, b.Span.End); c != 0 {
		return c
	}
	if c := cmp.Compare(a.RuleID, b.RuleID); c != 0 {
		return c
	}
	return cmp.Compare(a.Message, b.Message)
}

// Equal reports whether two diagnostics are identical across every field
// that participates in the derived order plus severity and fix. Loc is
// intentionally excluded: it is advisory and may differ across a cached
// vs. freshly-computed diagnostic without changing its identity.
func Equal(a, b Diagnostic) bool {
	if a.RuleID != b.RuleID || a.Message != b.Message || a.Span != b.Span || a.Severity != b.Severity {
		return false
	}
	switch {
	case a.Fix == nil && b.Fix == nil:
		return true
	case a.Fix == nil || b.Fix == nil:
		return false
	default:
		return *a.Fix == *b.Fix
	}
}
