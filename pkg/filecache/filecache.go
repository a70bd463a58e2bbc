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

// Package filecache is the file-level incremental cache (C9): a
// content/config/rule-version gate, plus block-level reconciliation with
// span shifting when the full gate fails but the rule set hasn't changed.
package filecache

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/kraklabs/tsuzulint/pkg/blocks"
	"github.com/kraklabs/tsuzulint/pkg/diag"
	"github.com/kraklabs/tsuzulint/pkg/fingerprint"
)

// Entry is one file's cached lint result.
type Entry struct {
	ContentHash  fingerprint.Hash
	ConfigHash   fingerprint.Hash
	RuleVersions map[string]string
	Diagnostics  []diag.Diagnostic
	Blocks       []blocks.Entry
	CreatedAt    time.Time
}

// Cache holds one process's Map<file-path, Entry>, loaded once at startup
// and persisted on demand (§4.10). A malformed on-disk blob starts the
// cache empty rather than failing the run.
type Cache struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]Entry
}

// Load reads path (gob-encoded map[string]Entry) if it exists. A missing
// file is not an error; a malformed one logs a warning and starts empty.
// path == "" gives an in-memory-only cache (never persisted).
func Load(path string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{path: path, logger: logger, entries: make(map[string]Entry)}
	if path == "" {
		return c
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("filecache.load_failed", "path", path, "error", err)
		}
		return c
	}

	var entries map[string]Entry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entries); err != nil {
		logger.Warn("filecache.load_malformed", "path", path, "error", err)
		return c
	}
	c.entries = entries
	return c
}

// IsValid is the full gate (§4.10): content/config/rule-version hashes all
// match the stored entry for path.
func (c *Cache) IsValid(path string, contentHash, configHash fingerprint.Hash, ruleVersions map[string]string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[path]
	if !ok {
		return Entry{}, false
	}
	if entry.ContentHash != contentHash || entry.ConfigHash != configHash || !ruleVersionsEqual(entry.RuleVersions, ruleVersions) {
		return Entry{}, false
	}
	return entry, true
}

// Set stores entry for path, stamping CreatedAt.
func (c *Cache) Set(path string, entry Entry) {
	entry.CreatedAt = time.Now()
	c.mu.Lock()
	c.entries[path] = entry
	c.mu.Unlock()
}

// ReconcileBlocks reuses block-level diagnostics when the full gate fails
// but config/rule-versions still match (§4.10's "interesting algorithm").
// Cached blocks are grouped by content hash; each current block claims the
// matching cached block whose span.start is closest, its diagnostics
// span-shifted into the current block's coordinates. matched[i] reports
// whether curBlocks[i] was reused; block-scoped rules should only run
// where matched[i] is false.
func (c *Cache) ReconcileBlocks(path string, curBlocks []blocks.Entry, configHash fingerprint.Hash, ruleVersions map[string]string) ([]diag.Diagnostic, []bool) {
	matched := make([]bool, len(curBlocks))

	c.mu.RLock()
	entry, ok := c.entries[path]
	c.mu.RUnlock()
	if !ok || entry.ConfigHash != configHash || !ruleVersionsEqual(entry.RuleVersions, ruleVersions) {
		return nil, matched
	}

	pool := make(map[fingerprint.Hash][]blocks.Entry, len(entry.Blocks))
	for _, b := range entry.Blocks {
		pool[b.Hash] = append(pool[b.Hash], b)
	}

	var reused []diag.Diagnostic
	for i, cur := range curBlocks {
		candidates := pool[cur.Hash]
		if len(candidates) == 0 {
			continue
		}
		bestIdx, bestDist := 0, absInt(candidates[0].Span.Start-cur.Span.Start)
		for j := 1; j < len(candidates); j++ {
			if d := absInt(candidates[j].Span.Start - cur.Span.Start); d < bestDist {
				bestIdx, bestDist = j, d
			}
		}
		claimed := candidates[bestIdx]
		pool[cur.Hash] = append(candidates[:bestIdx], candidates[bestIdx+1:]...)

		matched[i] = true
		shift := cur.Span.Start - claimed.Span.Start
		for _, d := range claimed.Diagnostics {
			reused = append(reused, d.Shift(shift))
		}
	}
	return reused, matched
}

// Persist writes the whole cache to disk in one gob-encoded blob, via a
// temp-file-then-rename to avoid a partial write on crash. A no-op if the
// cache was opened without a path.
func (c *Cache) Persist() error {
	if c.path == "" {
		return nil
	}

	c.mu.RLock()
	snapshot := make(map[string]Entry, len(c.entries))
	for k, v := range c.entries {
		snapshot[k] = v
	}
	c.mu.RUnlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snapshot); err != nil {
		return fmt.Errorf("filecache: encode: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("filecache: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("filecache: rename %s to %s: %w", tmp, c.path, err)
	}
	return nil
}

func ruleVersionsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
