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

// Package manifest defines the tsuzulint-rule.json shape (§6) shared by
// the artifact cache, the resolver, and the plugin host.
package manifest

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// IsolationLevel controls whether a rule sees a whole document or a
// single block per invocation.
type IsolationLevel string

const (
	Global IsolationLevel = "Global"
	Block  IsolationLevel = "Block"
)

var nameRe = regexp.MustCompile(`^[^\s\x00-\x1f]{1,64}$`)

// Rule is the "rule" object of a manifest.
type Rule struct {
	Name            string         `json:"name"`
	Version         string         `json:"version"`
	Description     string         `json:"description,omitempty"`
	Fixable         bool           `json:"fixable,omitempty"`
	NodeTypes       []string       `json:"node_types,omitempty"`
	IsolationLevel  IsolationLevel `json:"isolation_level"`
	Languages       []string       `json:"languages,omitempty"`
	Capabilities    []string       `json:"capabilities,omitempty"`
}

// Artifacts is the "artifacts" object of a manifest.
type Artifacts struct {
	Wasm   string `json:"wasm"`
	SHA256 string `json:"sha256"`
}

// Manifest is the full tsuzulint-rule.json document.
type Manifest struct {
	Rule      Rule      `json:"rule"`
	Artifacts Artifacts `json:"artifacts"`
}

var sha256Re = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Validate checks the manifest against §3/§6's structural constraints:
// name length/charset, a recognized isolation level, and a well-formed
// sha256 digest. It does not check that the WASM artifact actually
// matches the digest — that's verify.Verify's job once bytes are in hand.
func (m *Manifest) Validate() error {
	if !nameRe.MatchString(m.Rule.Name) {
		return fmt.Errorf("manifest: rule name %q must be 1..64 chars with no whitespace/control bytes", m.Rule.Name)
	}
	if m.Rule.IsolationLevel != Global && m.Rule.IsolationLevel != Block {
		return fmt.Errorf("manifest: isolation_level must be Global or Block, got %q", m.Rule.IsolationLevel)
	}
	if !sha256Re.MatchString(m.Artifacts.SHA256) {
		return fmt.Errorf("manifest: artifacts.sha256 must be 64 lowercase hex chars")
	}
	if m.Artifacts.Wasm == "" {
		return fmt.Errorf("manifest: artifacts.wasm must not be empty")
	}
	return nil
}

// Parse decodes and validates a manifest document.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: decode: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
