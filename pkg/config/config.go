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

// Package config is the linter's configuration model (§4.13). It is
// deliberately not a JSONC/schema validator: the config file contract in
// §6 names an embedded-schema JSONC loader as an external collaborator;
// this package only covers the YAML-shaped subset the core itself needs
// to construct a Linter, convenient for tests and embedders that already
// have a decoded document.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/tsuzulint/pkg/diag"
)

// RuleDefinition names one rule to load and resolve (§4.4). Source is the
// raw plugin-spec document (github shorthand string, or an object with
// github/url/path) handed to resolver.ParseSpec as-is.
type RuleDefinition struct {
	Source yaml.Node `yaml:"source"`
	As     string    `yaml:"as,omitempty"`
}

// SpecJSON re-encodes Source as JSON for resolver.ParseSpec, which decodes
// plugin specs from JSON regardless of the config document's own format.
func (r RuleDefinition) SpecJSON() ([]byte, error) {
	var v any
	if err := r.Source.Decode(&v); err != nil {
		return nil, fmt.Errorf("config: decode rule source: %w", err)
	}
	return json.Marshal(v)
}

// RuleOption is the enable/severity/object-config union (§4.13). Decoded
// from YAML as whichever shape the document actually contains.
type RuleOption struct {
	raw any
}

// UnmarshalYAML captures whatever shape the node holds without forcing a
// fixed Go type on it.
func (o *RuleOption) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	o.raw = v
	return nil
}

// Enabled reports whether this option turns its rule on: false for the
// bool `false` and the severity string `"off"`; true otherwise, including
// every object-config shape (an object implies the rule is configured,
// hence on).
func (o RuleOption) Enabled() bool {
	switch v := o.raw.(type) {
	case bool:
		return v
	case string:
		return v != "off"
	case nil:
		return true
	default:
		return true
	}
}

// Severity returns the explicit severity override this option carries, if
// it is a severity string.
func (o RuleOption) Severity() (diag.Severity, bool) {
	s, ok := o.raw.(string)
	if !ok {
		return "", false
	}
	switch s {
	case "error":
		return diag.SeverityError, true
	case "warning":
		return diag.SeverityWarning, true
	default:
		return "", false
	}
}

// Object returns the free-form per-rule config this option carries, if it
// is an object shape.
func (o RuleOption) Object() (map[string]any, bool) {
	m, ok := o.raw.(map[string]any)
	return m, ok
}

// MarshalJSON re-exposes the underlying shape (bool, string, or object) —
// used by the linter façade to fold options into the config hash.
func (o RuleOption) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.raw)
}

// CacheConfig is the `cache` field: either a bare bool or {enabled, path}.
type CacheConfig struct {
	Enabled bool
	Path    string
}

// UnmarshalYAML accepts either a bool or a mapping with enabled/path keys.
func (c *CacheConfig) UnmarshalYAML(node *yaml.Node) error {
	var asBool bool
	if err := node.Decode(&asBool); err == nil {
		c.Enabled = asBool
		c.Path = ""
		return nil
	}
	var asObj struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	}
	if err := node.Decode(&asObj); err != nil {
		return fmt.Errorf("config: cache must be a bool or {enabled, path}: %w", err)
	}
	c.Enabled = asObj.Enabled
	c.Path = asObj.Path
	return nil
}

// Config is the linter façade's configuration model.
type Config struct {
	Rules   []RuleDefinition      `yaml:"rules"`
	Options map[string]RuleOption `yaml:"options"`
	Include []string              `yaml:"include"`
	Exclude []string              `yaml:"exclude"`
	Cache   CacheConfig           `yaml:"cache"`
	Timings bool                  `yaml:"timings"`
}

// OptionFor returns the configured option for ruleName, or a default
// enabled-with-no-overrides option when the rule has no explicit entry.
// This is for enumeration/display (a loaded rule with no options entry is
// still listable with a sane default severity) — it is NOT whether the
// rule actually runs; use Enabled for that.
func (c Config) OptionFor(ruleName string) RuleOption {
	if opt, ok := c.Options[ruleName]; ok {
		return opt
	}
	return RuleOption{raw: true}
}

// Enabled reports whether ruleName is currently enabled for dispatch
// (§4.11 step 9): the rule's name must appear in options with an enabled
// value. A loaded rule absent from options is not enabled — it is merely
// loaded and enumerable via OptionFor, but the façade does not dispatch it
// until an explicit options entry turns it on.
func (c Config) Enabled(ruleName string) bool {
	opt, ok := c.Options[ruleName]
	return ok && opt.Enabled()
}

// LoadYAML reads and decodes a Config document from path. This is a
// convenience loader for embedders and tests; it is not the `.tsuzulint.
// jsonc` schema-validated loader named in §6.
func LoadYAML(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}
