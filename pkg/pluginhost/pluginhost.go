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

// Package pluginhost owns a collection of named, loaded rules (C6): it
// maps public rule names (with aliases) to an executor slot, serializes
// lint requests as MessagePack, and dispatches calls.
package pluginhost

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/kraklabs/tsuzulint/pkg/ast"
	"github.com/kraklabs/tsuzulint/pkg/diag"
	"github.com/kraklabs/tsuzulint/pkg/tokentext"
	"github.com/kraklabs/tsuzulint/pkg/wasmhost"
)

// LintRequest is the MessagePack wire shape a rule module receives.
// Source/Tokens/Sentences are encoded once per node and shared across
// every rule dispatched against it (see PrepareLintRequest).
type LintRequest struct {
	Node      *ast.Node           `msgpack:"node"`
	Config    msgpack.RawMessage  `msgpack:"config"`
	Source    string              `msgpack:"source"`
	Tokens    []tokentext.Token   `msgpack:"tokens"`
	Sentences []tokentext.Sentence `msgpack:"sentences"`
	FilePath  string              `msgpack:"file_path"`
}

// LintResponse is the MessagePack wire shape a rule module returns.
type LintResponse struct {
	Diagnostics []diag.Diagnostic `msgpack:"diagnostics"`
}

// ruleSlot is one loaded rule's bookkeeping: its resolved executor-side
// name (the "real name" an alias ultimately points to) and its config.
type ruleSlot struct {
	realName string
	manifest wasmhost.GuestManifest
	config   msgpack.RawMessage
}

// Host owns a collection of loaded rules against a single Executor.
type Host struct {
	executor wasmhost.Executor
	logger   *slog.Logger

	mu    sync.Mutex
	slots map[string]*ruleSlot // public name -> slot
}

// New returns a Host dispatching through executor. logger defaults to
// slog.Default() when nil.
func New(executor wasmhost.Executor, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{executor: executor, logger: logger, slots: make(map[string]*ruleSlot)}
}

// LoadRule loads wasmBytes and registers it under its guest manifest name.
func (h *Host) LoadRule(ctx context.Context, wasmBytes []byte) (wasmhost.GuestManifest, error) {
	loaded, err := h.executor.Load(ctx, wasmBytes)
	if err != nil {
		return wasmhost.GuestManifest{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.slots[loaded.Name] = &ruleSlot{realName: loaded.Name, manifest: loaded.Manifest}
	h.logger.Info("pluginhost.load_rule", "name", loaded.Name, "version", loaded.Manifest.Version)
	return loaded.Manifest, nil
}

// RenameRule reassigns the public name old to new without reloading the
// underlying module: new now resolves to whatever old resolved to, and old
// is dropped. Enables loading the same module under two distinct aliases.
func (h *Host) RenameRule(oldName, newName string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	slot, ok := h.slots[oldName]
	if !ok {
		return fmt.Errorf("pluginhost: rule %q is not loaded", oldName)
	}
	h.slots[newName] = slot
	delete(h.slots, oldName)
	h.logger.Info("pluginhost.rename_rule", "old", oldName, "new", newName, "real_name", slot.realName)
	return nil
}

// ConfigureRule stores per-rule configuration, applied to every subsequent
// run_rule call against name.
func (h *Host) ConfigureRule(name string, config msgpack.RawMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	slot, ok := h.slots[name]
	if !ok {
		return fmt.Errorf("pluginhost: rule %q is not loaded", name)
	}
	slot.config = config
	return nil
}

func (h *Host) slot(name string) (*ruleSlot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	slot, ok := h.slots[name]
	if !ok {
		return nil, fmt.Errorf("pluginhost: rule %q is not loaded", name)
	}
	return slot, nil
}

// PrepareLintRequest serializes a LintRequest once so it can be replayed
// against many rules for the same node without re-encoding source, tokens,
// and sentences on every call.
func PrepareLintRequest(node *ast.Node, source string, tokens []tokentext.Token, sentences []tokentext.Sentence, filePath string) ([]byte, error) {
	req := LintRequest{Node: node, Source: source, Tokens: tokens, Sentences: sentences, FilePath: filePath}
	return msgpack.Marshal(&req)
}

// RunRuleWithPrepared dispatches a call to name using bytes already built
// by PrepareLintRequest, merging in name's stored config.
func (h *Host) RunRuleWithPrepared(ctx context.Context, name string, prepared []byte) ([]diag.Diagnostic, error) {
	slot, err := h.slot(name)
	if err != nil {
		return nil, err
	}

	request, err := withConfig(prepared, slot.config)
	if err != nil {
		return nil, fmt.Errorf("pluginhost: merge config for %q: %w", name, err)
	}

	respBytes, err := h.executor.CallLint(ctx, slot.realName, request)
	if err != nil {
		return nil, err
	}

	var resp LintResponse
	if err := msgpack.Unmarshal(respBytes, &resp); err != nil {
		return nil, fmt.Errorf("pluginhost: decode response from %q: %w", name, err)
	}
	return resp.Diagnostics, nil
}

// RunRule builds and dispatches a LintRequest in one call; equivalent to
// PrepareLintRequest followed by RunRuleWithPrepared, for callers that
// don't need to share one node's encoding across multiple rules.
func (h *Host) RunRule(ctx context.Context, name string, node *ast.Node, source string, tokens []tokentext.Token, sentences []tokentext.Sentence, filePath string) ([]diag.Diagnostic, error) {
	prepared, err := PrepareLintRequest(node, source, tokens, sentences, filePath)
	if err != nil {
		return nil, fmt.Errorf("pluginhost: encode request for %q: %w", name, err)
	}
	return h.RunRuleWithPrepared(ctx, name, prepared)
}

// LoadedRules lists every public rule name currently registered.
func (h *Host) LoadedRules() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.slots))
	for name := range h.slots {
		names = append(names, name)
	}
	return names
}

// withConfig re-decodes a prepared request just to overwrite its "config"
// field, avoiding a full re-encode of node/source/tokens/sentences.
func withConfig(prepared []byte, config msgpack.RawMessage) ([]byte, error) {
	var req map[string]msgpack.RawMessage
	if err := msgpack.Unmarshal(prepared, &req); err != nil {
		return nil, err
	}
	if config == nil {
		config, _ = msgpack.Marshal(nil)
	}
	req["config"] = config
	return msgpack.Marshal(req)
}
