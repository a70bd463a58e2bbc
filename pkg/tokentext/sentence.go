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

package tokentext

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rivo/uniseg"

	"github.com/kraklabs/tsuzulint/pkg/diag"
)

// Sentence is a sentence-level span over the source text, including its
// trailing punctuation and, where the heuristics below merge soft line
// wraps into the sentence that precedes them, any trailing whitespace.
type Sentence struct {
	Text string    `json:"text" msgpack:"text"`
	Span diag.Span `json:"span" msgpack:"span"`
}

// alwaysSplit holds the terminal punctuation runes that UAX #29 segments
// on and that our heuristics treat as sentence-ending by default. "。"
// always forces a split; the others ("！" "？" "!" "?") only do when
// followed by whitespace or end of text, since Japanese text commonly
// stacks them with no following space ("すごい！！本当に").
var alwaysSplit = map[rune]bool{
	'。': true,
	'！': true,
	'？': true,
	'!': true,
	'?': true,
}

// Split segments source into sentences using UAX #29 boundaries refined by
// Japanese-aware heuristics, while respecting ignoreRanges: no boundary is
// ever placed strictly inside one of those spans (CodeBlock/Code content),
// so a rule never sees a sentence sliced through the middle of inline
// code.
func Split(source string, ignoreRanges []diag.Span) []Sentence {
	if source == "" {
		return nil
	}

	sortedIgnore := append([]diag.Span(nil), ignoreRanges...)
	sort.SliceStable(sortedIgnore, func(i, j int) bool { return sortedIgnore[i].Start < sortedIgnore[j].Start })

	segments := uaxSentenceSegments(source)

	var sentences []Sentence
	start := 0
	for i, seg := range segments {
		if i == len(segments)-1 {
			if text := source[start:seg.End]; strings.TrimSpace(text) != "" {
				sentences = append(sentences, Sentence{Text: text, Span: diag.Span{Start: start, End: seg.End}})
			}
			break
		}

		if shouldSplit(source, seg.End, sortedIgnore) {
			if text := source[start:seg.End]; strings.TrimSpace(text) != "" {
				sentences = append(sentences, Sentence{Text: text, Span: diag.Span{Start: start, End: seg.End}})
			}
			start = seg.End
		}
	}
	return sentences
}

// uaxSentenceSegments partitions text into contiguous, gap-free UAX #29
// sentence segments using uniseg's state-machine boundary scanner.
func uaxSentenceSegments(text string) []diag.Span {
	var segments []diag.Span
	rest := text
	pos := 0
	state := -1
	for len(rest) > 0 {
		sentence, next, newState := uniseg.FirstSentenceInString(rest, state)
		segments = append(segments, diag.Span{Start: pos, End: pos + len(sentence)})
		pos += len(sentence)
		rest = next
		state = newState
	}
	return segments
}

// shouldSplit decides whether the UAX #29 boundary at byte offset idx
// should survive as a sentence split.
func shouldSplit(text string, idx int, sortedIgnore []diag.Span) bool {
	for _, r := range sortedIgnore {
		if r.Start >= idx {
			break
		}
		if r.Start < idx && idx < r.End {
			return false
		}
	}

	prevChar, _ := utf8.DecodeLastRuneInString(text[:idx])
	nextChar, nextSize := utf8.DecodeRuneInString(text[idx:])
	hasNext := idx < len(text)

	if alwaysSplit[prevChar] {
		if prevChar == '。' {
			return true
		}
		if !hasNext {
			return true
		}
		if !unicode.IsSpace(nextChar) {
			return false
		}
		if nextChar != '\n' {
			return true
		}
		afterNewline, _ := utf8.DecodeRuneInString(text[idx+nextSize:])
		return afterNewline == '\n'
	}

	if prevChar == '\n' {
		if strings.HasSuffix(text[:idx], "\n\n") {
			return true
		}
		if hasNext && nextChar == '\n' {
			return false
		}
		if strings.HasSuffix(text[:idx], "\n") {
			return false
		}
		return true
	}

	return true
}
