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

// Package pluginfs is the on-disk, content-addressed artifact cache (C3):
// <root>/<owner>/<repo>/<version>/{rule.wasm, manifest.json} for GitHub
// sources, <root>/url/<sha256(url)>/<version>/{...} for URL sources. Path
// specs are never cached.
package pluginfs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/kraklabs/tsuzulint/pkg/manifest"
)

const (
	wasmFilename     = "rule.wasm"
	manifestFilename = "manifest.json"
)

// ErrPermission distinguishes a permission-denied failure from other I/O
// errors, per §4.3.
var ErrPermission = errors.New("pluginfs: permission denied")

// Cached points at a resolved artifact pair already on disk.
type Cached struct {
	WasmPath     string
	ManifestPath string
}

// Cache is the artifact cache rooted at Root (typically the user's cache
// directory, namespaced by application).
type Cache struct {
	Root string
}

// New returns a Cache rooted at root. root is created lazily on Store.
func New(root string) *Cache {
	return &Cache{Root: root}
}

func sanitizeSegment(s string) error {
	if s == "" || s == "." || s == ".." {
		return fmt.Errorf("pluginfs: invalid path segment %q", s)
	}
	if s != filepath.Base(s) {
		return fmt.Errorf("pluginfs: path segment %q must be a single normal component", s)
	}
	return nil
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// dirFor computes the per-source cache directory, validating every
// segment along the way.
func (c *Cache) dirFor(segments ...string) (string, error) {
	parts := make([]string, 0, len(segments)+1)
	parts = append(parts, c.Root)
	for _, s := range segments {
		if err := sanitizeSegment(s); err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return filepath.Join(parts...), nil
}

// GitHubDir returns the cache directory for a GitHub-sourced rule.
func (c *Cache) GitHubDir(owner, repo, version string) (string, error) {
	return c.dirFor(owner, repo, version)
}

// URLDir returns the cache directory for a URL-sourced rule.
func (c *Cache) URLDir(rawURL, version string) (string, error) {
	return c.dirFor("url", sha256Hex(rawURL), version)
}

// Store writes wasmBytes and manifestJSON under dir, sanitizing the
// target directory and rewriting an absolute-URL artifacts.wasm field to
// the local relative name "rule.wasm" so cached manifests resolve purely
// relatively.
func (c *Cache) Store(dir string, wasmBytes, manifestJSON []byte) (*Cached, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, wrapIOErr(err)
	}

	wasmPath := filepath.Join(dir, wasmFilename)
	if err := os.WriteFile(wasmPath, wasmBytes, 0o644); err != nil {
		return nil, wrapIOErr(err)
	}

	rewritten, err := rewriteWasmFieldIfAbsoluteURL(manifestJSON)
	if err != nil {
		return nil, err
	}
	manifestPath := filepath.Join(dir, manifestFilename)
	if err := os.WriteFile(manifestPath, rewritten, 0o644); err != nil {
		return nil, wrapIOErr(err)
	}

	return &Cached{WasmPath: wasmPath, ManifestPath: manifestPath}, nil
}

// Get returns the cached artifact pair for dir iff both files exist.
func (c *Cache) Get(dir string) (*Cached, error) {
	wasmPath := filepath.Join(dir, wasmFilename)
	manifestPath := filepath.Join(dir, manifestFilename)

	if _, err := os.Stat(wasmPath); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, wrapIOErr(err)
	}
	if _, err := os.Stat(manifestPath); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, wrapIOErr(err)
	}
	return &Cached{WasmPath: wasmPath, ManifestPath: manifestPath}, nil
}

func rewriteWasmFieldIfAbsoluteURL(manifestJSON []byte) ([]byte, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(manifestJSON, &doc); err != nil {
		return nil, fmt.Errorf("pluginfs: decode manifest: %w", err)
	}
	artifactsRaw, ok := doc["artifacts"]
	if !ok {
		return manifestJSON, nil
	}
	var artifacts manifest.Artifacts
	if err := json.Unmarshal(artifactsRaw, &artifacts); err != nil {
		return nil, fmt.Errorf("pluginfs: decode manifest artifacts: %w", err)
	}
	if u, err := url.Parse(artifacts.Wasm); err != nil || u.Scheme == "" {
		return manifestJSON, nil
	}
	artifacts.Wasm = wasmFilename
	rewritten, err := json.Marshal(artifacts)
	if err != nil {
		return nil, err
	}
	doc["artifacts"] = rewritten
	return json.Marshal(doc)
}

func wrapIOErr(err error) error {
	if errors.Is(err, os.ErrPermission) {
		return fmt.Errorf("%w: %v", ErrPermission, err)
	}
	return err
}
