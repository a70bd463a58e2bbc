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

package pluginhost

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/kraklabs/tsuzulint/pkg/ast"
	"github.com/kraklabs/tsuzulint/pkg/diag"
	"github.com/kraklabs/tsuzulint/pkg/wasmhost"
)

// fakeExecutor is an in-process stand-in for wasmhost.Executor: Load always
// succeeds under a fixed name, and CallLint echoes back the config field it
// was given so tests can assert on what ConfigureRule actually delivers.
type fakeExecutor struct {
	loadName string
	loaded   map[string]bool
	callErr  error
	lastReq  map[string]msgpack.RawMessage
}

func newFakeExecutor(loadName string) *fakeExecutor {
	return &fakeExecutor{loadName: loadName, loaded: make(map[string]bool)}
}

func (f *fakeExecutor) Load(ctx context.Context, wasmBytes []byte) (*wasmhost.Loaded, error) {
	f.loaded[f.loadName] = true
	return &wasmhost.Loaded{Name: f.loadName, Manifest: wasmhost.GuestManifest{Name: f.loadName, Version: "1.0.0"}}, nil
}

func (f *fakeExecutor) CallLint(ctx context.Context, name string, request []byte) ([]byte, error) {
	if f.callErr != nil {
		return nil, f.callErr
	}
	if !f.loaded[name] {
		return nil, fmt.Errorf("fakeExecutor: %q not loaded", name)
	}
	var req map[string]msgpack.RawMessage
	if err := msgpack.Unmarshal(request, &req); err != nil {
		return nil, err
	}
	f.lastReq = req

	resp := LintResponse{Diagnostics: []diag.Diagnostic{{RuleID: name, Message: "seen"}}}
	return msgpack.Marshal(&resp)
}

func (f *fakeExecutor) Unload(name string) bool {
	if !f.loaded[name] {
		return false
	}
	delete(f.loaded, name)
	return true
}

func (f *fakeExecutor) UnloadAll() { f.loaded = make(map[string]bool) }

func (f *fakeExecutor) LoadedRules() []string {
	names := make([]string, 0, len(f.loaded))
	for n := range f.loaded {
		names = append(names, n)
	}
	return names
}

func (f *fakeExecutor) Close(ctx context.Context) error { return nil }

func TestLoadRuleRegistersUnderManifestName(t *testing.T) {
	exec := newFakeExecutor("loud-word")
	h := New(exec, nil)

	manifest, err := h.LoadRule(context.Background(), []byte("\x00asm"))
	require.NoError(t, err)
	assert.Equal(t, "loud-word", manifest.Name)
	assert.Contains(t, h.LoadedRules(), "loud-word")
}

func TestRunRuleDispatchesAndDecodesResponse(t *testing.T) {
	exec := newFakeExecutor("loud-word")
	h := New(exec, nil)
	_, err := h.LoadRule(context.Background(), []byte("\x00asm"))
	require.NoError(t, err)

	node := &ast.Node{Type: ast.Document}
	diags, err := h.RunRule(context.Background(), "loud-word", node, "source text", nil, nil, "doc.md")
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, "loud-word", diags[0].RuleID)
}

func TestRunRuleOnUnloadedRuleErrors(t *testing.T) {
	h := New(newFakeExecutor("loud-word"), nil)
	_, err := h.RunRule(context.Background(), "never-loaded", &ast.Node{}, "x", nil, nil, "")
	assert.Error(t, err)
}

func TestRenameRuleRedirectsPublicName(t *testing.T) {
	exec := newFakeExecutor("real-name")
	h := New(exec, nil)
	_, err := h.LoadRule(context.Background(), []byte("\x00asm"))
	require.NoError(t, err)

	require.NoError(t, h.RenameRule("real-name", "alias-name"))
	assert.Contains(t, h.LoadedRules(), "alias-name")
	assert.NotContains(t, h.LoadedRules(), "real-name")

	diags, err := h.RunRule(context.Background(), "alias-name", &ast.Node{}, "x", nil, nil, "")
	require.NoError(t, err)
	assert.Equal(t, "real-name", diags[0].RuleID, "executor still dispatches under the real loaded name")
}

func TestRenameRuleOnUnknownNameErrors(t *testing.T) {
	h := New(newFakeExecutor("real-name"), nil)
	assert.Error(t, h.RenameRule("missing", "whatever"))
}

func TestConfigureRuleMergesConfigIntoEveryCall(t *testing.T) {
	exec := newFakeExecutor("loud-word")
	h := New(exec, nil)
	_, err := h.LoadRule(context.Background(), []byte("\x00asm"))
	require.NoError(t, err)

	cfg, err := msgpack.Marshal(map[string]any{"max": 3})
	require.NoError(t, err)
	require.NoError(t, h.ConfigureRule("loud-word", cfg))

	_, err = h.RunRule(context.Background(), "loud-word", &ast.Node{}, "x", nil, nil, "")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, msgpack.Unmarshal(exec.lastReq["config"], &got))
	assert.EqualValues(t, 3, got["max"])
}

func TestConfigureRuleOnUnloadedRuleErrors(t *testing.T) {
	h := New(newFakeExecutor("loud-word"), nil)
	cfg, err := msgpack.Marshal(map[string]any{"max": 1})
	require.NoError(t, err)
	assert.Error(t, h.ConfigureRule("never-loaded", cfg))
}

func TestPrepareLintRequestSharesEncodingAcrossRules(t *testing.T) {
	exec := newFakeExecutor("rule-a")
	h := New(exec, nil)
	_, err := h.LoadRule(context.Background(), []byte("\x00asm"))
	require.NoError(t, err)

	node := &ast.Node{Type: ast.Document}
	prepared, err := PrepareLintRequest(node, "shared source", nil, nil, "doc.md")
	require.NoError(t, err)

	diags, err := h.RunRuleWithPrepared(context.Background(), "rule-a", prepared)
	require.NoError(t, err)
	require.Len(t, diags, 1)

	var req map[string]msgpack.RawMessage
	require.NoError(t, msgpack.Unmarshal(prepared, &req))
	var source string
	require.NoError(t, msgpack.Unmarshal(req["source"], &source))
	assert.Equal(t, "shared source", source)
}

func TestRunRuleWithPreparedPropagatesExecutorError(t *testing.T) {
	exec := newFakeExecutor("loud-word")
	exec.callErr = fmt.Errorf("trapped")
	h := New(exec, nil)
	_, err := h.LoadRule(context.Background(), []byte("\x00asm"))
	require.NoError(t, err)

	prepared, err := PrepareLintRequest(&ast.Node{}, "x", nil, nil, "")
	require.NoError(t, err)
	_, err = h.RunRuleWithPrepared(context.Background(), "loud-word", prepared)
	assert.Error(t, err)
}
