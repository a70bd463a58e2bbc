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

// Package tokentext holds the text-analysis artifacts (tokens, sentences)
// the per-file pipeline feeds to rules alongside the AST. The morphological
// tokenizer that produces Token values is an external collaborator
// referenced only by this contract; the sentence splitter is implemented
// in full because its behavior is load-bearing for cache correctness
// (ignore ranges must not be split across a sentence boundary).
package tokentext

import "github.com/kraklabs/tsuzulint/pkg/diag"

// POS is a part-of-speech tag: a major category plus up to three
// sub-refinements, e.g. {"Noun", "Proper", "General", ""}.
type POS struct {
	Major      string `json:"major" msgpack:"major"`
	Sub1       string `json:"sub1,omitempty" msgpack:"sub1,omitempty"`
	Sub2       string `json:"sub2,omitempty" msgpack:"sub2,omitempty"`
	Sub3       string `json:"sub3,omitempty" msgpack:"sub3,omitempty"`
}

// Token is a morphological unit produced by the external tokenizer.
type Token struct {
	Surface string    `json:"surface" msgpack:"surface"`
	Span    diag.Span `json:"span" msgpack:"span"`
	POS     []POS     `json:"pos" msgpack:"pos"`
}

// Tokenizer produces Tokens from source text. The concrete morphological
// implementation lives outside this core; this interface is the contract
// the pipeline dispatches against.
type Tokenizer interface {
	Tokenize(source string) ([]Token, error)
}
