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

// Package blocks extracts a document's top-level blocks and redistributes
// a run's diagnostics into them for the next run's cache (C8). A "block"
// is a direct child of the Document root.
package blocks

import (
	"github.com/kraklabs/tsuzulint/pkg/ast"
	"github.com/kraklabs/tsuzulint/pkg/diag"
	"github.com/kraklabs/tsuzulint/pkg/fingerprint"
	"github.com/kraklabs/tsuzulint/pkg/manifest"
)

// Entry is a cached block: its content hash, its span in the source this
// hash was computed against, and the diagnostics redistributed into it.
type Entry struct {
	Hash        fingerprint.Hash
	Span        diag.Span
	Diagnostics []diag.Diagnostic
}

// Extract returns one Entry per direct child of doc, in document order,
// each hashed over source[span]. doc must be a Document node; a nil or
// non-Document root yields no blocks.
func Extract(doc *ast.Node, source string) []Entry {
	if doc == nil || doc.Type != ast.Document {
		return nil
	}
	entries := make([]Entry, 0, len(doc.Children))
	for _, child := range doc.Children {
		span := child.Span
		entries = append(entries, Entry{
			Hash: fingerprint.Of([]byte(source[span.Start:span.End])),
			Span: span,
		})
	}
	return entries
}

// RuleIsolation resolves a diagnostic's originating rule to its isolation
// level; used by Redistribute to drop Global-isolation findings regardless
// of span.
type RuleIsolation func(ruleID string) manifest.IsolationLevel

// Redistribute assigns each diagnostic in diags to the unique block entry
// whose span fully contains it, mutating that entry's Diagnostics in
// place. A diagnostic with no fully-containing block (it straddles two
// blocks, or targets the whole document) is dropped from every entry — it
// will be regenerated on every run. Diagnostics from Global-isolation
// rules are always dropped, regardless of span, so reconciliation never
// serves a stale Global finding.
func Redistribute(entries []Entry, diags []diag.Diagnostic, isolation RuleIsolation) {
	for i := range entries {
		entries[i].Diagnostics = nil
	}
	for _, d := range diags {
		if isolation(d.RuleID) == manifest.Global {
			continue
		}
		owner := -1
		for i := range entries {
			if entries[i].Span.Contains(d.Span) {
				if owner != -1 {
					owner = -1
					break
				}
				owner = i
			}
		}
		if owner >= 0 {
			entries[owner].Diagnostics = append(entries[owner].Diagnostics, d)
		}
	}
}
