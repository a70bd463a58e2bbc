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

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpanContains(t *testing.T) {
	outer := Span{Start: 0, End: 10}
	assert.True(t, outer.Contains(Span{Start: 2, End: 5}))
	assert.True(t, outer.Contains(Span{Start: 0, End: 10}))
	assert.False(t, outer.Contains(Span{Start: 0, End: 11}))
	assert.False(t, outer.Contains(Span{Start: -1, End: 5}))
}

func TestSpanShift(t *testing.T) {
	assert.Equal(t, Span{Start: 5, End: 8}, Span{Start: 2, End: 5}.Shift(3))
	assert.Equal(t, Span{Start: -1, End: 2}, Span{Start: 2, End: 5}.Shift(-3))
}

func TestSpanValid(t *testing.T) {
	assert.True(t, Span{Start: 0, End: 5}.Valid(5))
	assert.True(t, Span{Start: 5, End: 5}.Valid(5))
	assert.False(t, Span{Start: 0, End: 6}.Valid(5))
	assert.False(t, Span{Start: -1, End: 2}.Valid(5))
	assert.False(t, Span{Start: 3, End: 2}.Valid(5))
}

func TestFixShift(t *testing.T) {
	f := Fix{Span: Span{Start: 2, End: 4}, Text: "x"}.Shift(10)
	assert.Equal(t, Span{Start: 12, End: 14}, f.Span)
	assert.Equal(t, "x", f.Text)
}

func TestDiagnosticShiftDropsLocAndShiftsFix(t *testing.T) {
	d := Diagnostic{
		RuleID:  "no-loud-word",
		Message: "too loud",
		Span:    Span{Start: 1, End: 3},
		Loc:     &Position{Line: 1, Column: 1},
		Fix:     &Fix{Span: Span{Start: 1, End: 3}, Text: ""},
	}
	shifted := d.Shift(5)
	assert.Nil(t, shifted.Loc)
	assert.Equal(t, Span{Start: 6, End: 8}, shifted.Span)
	assert.Equal(t, Span{Start: 6, End: 8}, shifted.Fix.Span)
	// original untouched
	assert.NotNil(t, d.Loc)
	assert.Equal(t, Span{Start: 1, End: 3}, d.Span)
}

func TestDiagnosticShiftWithNoFix(t *testing.T) {
	d := Diagnostic{RuleID: "r", Message: "m", Span: Span{Start: 0, End: 1}}
	shifted := d.Shift(2)
	assert.Nil(t, shifted.Fix)
}

func TestCompareOrdersBySpanThenRuleThenMessage(t *testing.T) {
	a := Diagnostic{Span: Span{Start: 0, End: 1}, RuleID: "a", Message: "m1"}
	b := Diagnostic{Span: Span{Start: 0, End: 2}, RuleID: "a", Message: "m1"}
	c := Diagnostic{Span: Span{Start: 0, End: 1}, RuleID: "b", Message: "m1"}
	d := Diagnostic{Span: Span{Start: 0, End: 1}, RuleID: "a", Message: "m2"}

	assert.Negative(t, Compare(a, b))
	assert.Positive(t, Compare(b, a))
	assert.Negative(t, Compare(a, c))
	assert.Negative(t, Compare(a, d))
	assert.Zero(t, Compare(a, a))
}

func TestEqualIgnoresLocButComparesFix(t *testing.T) {
	base := Diagnostic{RuleID: "r", Message: "m", Span: Span{Start: 0, End: 1}, Severity: SeverityError}
	withLoc := base
	withLoc.Loc = &Position{Line: 2, Column: 3}
	assert.True(t, Equal(base, withLoc))

	withFix := base
	withFix.Fix = &Fix{Span: Span{Start: 0, End: 1}, Text: "x"}
	assert.False(t, Equal(base, withFix))

	otherFix := withFix
	otherFix.Fix = &Fix{Span: Span{Start: 0, End: 1}, Text: "y"}
	assert.False(t, Equal(withFix, otherFix))

	sameFix := withFix
	sameFix.Fix = &Fix{Span: Span{Start: 0, End: 1}, Text: "x"}
	assert.True(t, Equal(withFix, sameFix))
}

func TestEqualDetectsSeverityDifference(t *testing.T) {
	a := Diagnostic{RuleID: "r", Message: "m", Span: Span{Start: 0, End: 1}, Severity: SeverityWarning}
	b := a
	b.Severity = SeverityError
	assert.False(t, Equal(a, b))
}
