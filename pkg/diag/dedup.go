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

package diag

import "sort"

// DedupSort sorts diags by Compare and collapses adjacent duplicates per
// Equal (§3/§8.3's dedup_sort). Running it twice over its own output is a
// no-op: the sort is stable over an already-sorted, already-deduplicated
// slice, and no two adjacent survivors are ever Equal.
func DedupSort(diags []Diagnostic) []Diagnostic {
	if len(diags) < 2 {
		sorted := append([]Diagnostic(nil), diags...)
		return sorted
	}

	sorted := append([]Diagnostic(nil), diags...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return Compare(sorted[i], sorted[j]) < 0
	})

	out := sorted[:1]
	for _, d := range sorted[1:] {
		if Equal(out[len(out)-1], d) {
			continue
		}
		out = append(out, d)
	}
	return out
}
