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

package pluginfs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGitHubDirJoinsOwnerRepoVersion(t *testing.T) {
	c := New("/cache")
	dir, err := c.GitHubDir("kraklabs", "loud-word", "v1.0.0")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/cache", "kraklabs", "loud-word", "v1.0.0"), dir)
}

func TestGitHubDirRejectsPathTraversalSegment(t *testing.T) {
	c := New("/cache")
	_, err := c.GitHubDir("..", "loud-word", "v1.0.0")
	assert.Error(t, err)

	_, err = c.GitHubDir("kraklabs", "a/b", "v1.0.0")
	assert.Error(t, err)
}

func TestURLDirHashesRawURL(t *testing.T) {
	c := New("/cache")
	dir, err := c.URLDir("https://example.com/rule.json", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/cache", "url", sha256Hex("https://example.com/rule.json"), "1.0.0"), dir)
}

func TestStoreThenGetRoundTrips(t *testing.T) {
	root := t.TempDir()
	c := New(root)
	dir := filepath.Join(root, "kraklabs", "loud-word", "v1.0.0")

	manifestJSON := []byte(`{"rule":{"name":"loud-word","version":"1.0.0"},"artifacts":{"wasm":"rule.wasm","sha256":"` + stringOf64Zeros() + `"}}`)
	cached, err := c.Store(dir, []byte("\x00asm"), manifestJSON)
	require.NoError(t, err)
	assert.FileExists(t, cached.WasmPath)
	assert.FileExists(t, cached.ManifestPath)

	got, err := c.Get(dir)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, cached.WasmPath, got.WasmPath)
}

func TestGetReturnsNilWhenNotCached(t *testing.T) {
	c := New(t.TempDir())
	got, err := c.Get(filepath.Join(c.Root, "missing"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetReturnsNilWhenOnlyOneFilePresent(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "partial")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, wasmFilename), []byte("\x00asm"), 0o644))

	c := New(root)
	got, err := c.Get(dir)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStoreRewritesAbsoluteWasmURLToLocalFilename(t *testing.T) {
	root := t.TempDir()
	c := New(root)
	dir := filepath.Join(root, "kraklabs", "loud-word", "v1.0.0")

	manifestJSON := []byte(`{"artifacts":{"wasm":"https://example.com/rule.wasm","sha256":"` + stringOf64Zeros() + `"}}`)
	cached, err := c.Store(dir, []byte("\x00asm"), manifestJSON)
	require.NoError(t, err)

	raw, err := os.ReadFile(cached.ManifestPath)
	require.NoError(t, err)

	var doc struct {
		Artifacts struct {
			Wasm string `json:"wasm"`
		} `json:"artifacts"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, wasmFilename, doc.Artifacts.Wasm)
}

func TestStoreLeavesRelativeWasmFieldUntouched(t *testing.T) {
	root := t.TempDir()
	c := New(root)
	dir := filepath.Join(root, "kraklabs", "loud-word", "v1.0.0")

	manifestJSON := []byte(`{"artifacts":{"wasm":"rule.wasm","sha256":"` + stringOf64Zeros() + `"}}`)
	cached, err := c.Store(dir, []byte("\x00asm"), manifestJSON)
	require.NoError(t, err)

	raw, err := os.ReadFile(cached.ManifestPath)
	require.NoError(t, err)
	var doc struct {
		Artifacts struct {
			Wasm string `json:"wasm"`
		} `json:"artifacts"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "rule.wasm", doc.Artifacts.Wasm)
}

func stringOf64Zeros() string {
	b := make([]byte, 64)
	for i := range b {
		b[i] = '0'
	}
	return string(b)
}
