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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/tsuzulint/pkg/diag"
)

func mustLoadYAML(t *testing.T, doc string) Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tsuzulint.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	cfg, err := LoadYAML(path)
	require.NoError(t, err)
	return cfg
}

func TestLoadYAMLMissingFileErrors(t *testing.T) {
	_, err := LoadYAML(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestOptionForDefaultsToEnabledWhenAbsent(t *testing.T) {
	cfg := mustLoadYAML(t, "rules: []\noptions: {}\n")
	opt := cfg.OptionFor("no-loud-word")
	assert.True(t, opt.Enabled())
}

func TestEnabledIsFalseForRuleAbsentFromOptions(t *testing.T) {
	cfg := mustLoadYAML(t, "rules:\n  - source: \"kraklabs/loud-word\"\noptions: {}\n")
	assert.False(t, cfg.Enabled("loud-word"), "a rule with no options entry must not be dispatched")
	assert.True(t, cfg.OptionFor("loud-word").Enabled(), "but it is still enumerable via OptionFor")
}

func TestEnabledTrueWhenOptionsExplicitlyTrue(t *testing.T) {
	cfg := mustLoadYAML(t, "options:\n  loud-word: true\n")
	assert.True(t, cfg.Enabled("loud-word"))
}

func TestEnabledFalseWhenOptionsExplicitlyFalse(t *testing.T) {
	cfg := mustLoadYAML(t, "options:\n  loud-word: false\n")
	assert.False(t, cfg.Enabled("loud-word"))
}

func TestEnabledFalseWhenSeverityIsOff(t *testing.T) {
	cfg := mustLoadYAML(t, "options:\n  loud-word: \"off\"\n")
	assert.False(t, cfg.Enabled("loud-word"))
}

func TestEnabledTrueWhenSeverityIsErrorOrWarning(t *testing.T) {
	cfg := mustLoadYAML(t, "options:\n  loud-word: \"error\"\n")
	assert.True(t, cfg.Enabled("loud-word"))

	cfg = mustLoadYAML(t, "options:\n  loud-word: \"warning\"\n")
	assert.True(t, cfg.Enabled("loud-word"))
}

func TestEnabledTrueForObjectConfigShape(t *testing.T) {
	cfg := mustLoadYAML(t, "options:\n  loud-word:\n    max: 3\n")
	assert.True(t, cfg.Enabled("loud-word"))
	obj, ok := cfg.OptionFor("loud-word").Object()
	require.True(t, ok)
	assert.Equal(t, 3, obj["max"])
}

func TestSeverityParsesErrorAndWarning(t *testing.T) {
	cfg := mustLoadYAML(t, "options:\n  r1: \"error\"\n  r2: \"warning\"\n  r3: true\n")
	sev, ok := cfg.OptionFor("r1").Severity()
	require.True(t, ok)
	assert.Equal(t, diag.SeverityError, sev)

	sev, ok = cfg.OptionFor("r2").Severity()
	require.True(t, ok)
	assert.Equal(t, diag.SeverityWarning, sev)

	_, ok = cfg.OptionFor("r3").Severity()
	assert.False(t, ok)
}

func TestCacheConfigAcceptsBareBool(t *testing.T) {
	cfg := mustLoadYAML(t, "cache: true\n")
	assert.True(t, cfg.Cache.Enabled)
	assert.Empty(t, cfg.Cache.Path)
}

func TestCacheConfigAcceptsObjectForm(t *testing.T) {
	cfg := mustLoadYAML(t, "cache:\n  enabled: true\n  path: .tsuzulint-cache\n")
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, ".tsuzulint-cache", cfg.Cache.Path)
}

func TestRuleDefinitionSpecJSONReEncodesShorthandSource(t *testing.T) {
	cfg := mustLoadYAML(t, "rules:\n  - source: \"kraklabs/loud-word\"\n    as: lw\n")
	require.Len(t, cfg.Rules, 1)
	b, err := cfg.Rules[0].SpecJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `"kraklabs/loud-word"`, string(b))
	assert.Equal(t, "lw", cfg.Rules[0].As)
}

func TestRuleDefinitionSpecJSONReEncodesObjectSource(t *testing.T) {
	cfg := mustLoadYAML(t, "rules:\n  - source:\n      github:\n        owner: kraklabs\n        repo: loud-word\n")
	b, err := cfg.Rules[0].SpecJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"github":{"owner":"kraklabs","repo":"loud-word"}}`, string(b))
}

func TestRuleOptionMarshalJSONRoundTripsUnderlyingShape(t *testing.T) {
	cfg := mustLoadYAML(t, "options:\n  r1: true\n  r2: \"off\"\n")
	b, err := cfg.Options["r1"].MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "true", string(b))

	b, err = cfg.Options["r2"].MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `"off"`, string(b))
}
