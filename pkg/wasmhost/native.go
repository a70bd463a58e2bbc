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

package wasmhost

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// MaxMemoryBytes is the default per-instance linear memory cap (128 MiB,
// matching the Rust original's wasmi StoreLimits).
const MaxMemoryBytes = 128 * 1024 * 1024

// DefaultFuelBudget is the per-call instruction budget the Rust original
// enforces via wasmi's fuel counter (1e9 instructions). wazero has no
// stable equivalent (see Options.CallTimeout), so this core converts the
// budget into a wall-clock timeout using a conservative throughput
// estimate rather than counting instructions directly.
const DefaultFuelBudget = 1_000_000_000

const wasmPageSize = 65536

// instructionsPerSecondEstimate converts DefaultFuelBudget into a
// CallTimeout when the caller doesn't supply one explicitly. It is
// deliberately conservative (slower than any real interpreter) so the
// timeout never fires before a well-behaved rule would have returned.
const instructionsPerSecondEstimate = 200_000_000

var moduleSeq atomic.Uint64

// Options configures a NativeExecutor. The zero value is usable: every
// field defaults per the comments below.
type Options struct {
	// MemoryLimitBytes caps each loaded instance's linear memory. Defaults
	// to MaxMemoryBytes.
	MemoryLimitBytes uint32
	// CallTimeout bounds a single CallLint invocation's wall-clock time,
	// standing in for wasmi's instruction-fuel counter. Defaults to a
	// value derived from DefaultFuelBudget.
	CallTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.MemoryLimitBytes == 0 {
		o.MemoryLimitBytes = MaxMemoryBytes
	}
	if o.CallTimeout == 0 {
		o.CallTimeout = time.Duration(DefaultFuelBudget/instructionsPerSecondEstimate+1) * time.Second
	}
	return o
}

type loadedModule struct {
	mod         api.Module
	mem         api.Memory
	getManifest api.Function
	lint        api.Function
	alloc       api.Function
	manifest    GuestManifest
}

// NativeExecutor sandboxes rule modules with tetratelabs/wazero. Fuel is
// emulated via a per-call context timeout combined with
// wazero.RuntimeConfig.WithCloseOnContextDone(true): a call that overruns
// its budget forcibly closes the offending instance rather than leaving a
// runaway guest spinning in the host process.
type NativeExecutor struct {
	runtime wazero.Runtime
	opts    Options

	mu    sync.Mutex
	rules map[string]*loadedModule
}

// NewNativeExecutor builds a wazero runtime configured per opts and
// registers the minimal "env" host module the Rust original's guests
// expect (an "abort" stub called on a guest-side panic).
func NewNativeExecutor(ctx context.Context, opts Options) (*NativeExecutor, error) {
	opts = opts.withDefaults()

	cfg := wazero.NewRuntimeConfig().
		WithCloseOnContextDone(true).
		WithMemoryLimitPages(opts.MemoryLimitBytes / wasmPageSize)
	runtime := wazero.NewRuntimeWithConfig(ctx, cfg)

	_, err := runtime.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, msg, file, line, col int32) {}).
		Export("abort").
		Instantiate(ctx)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("wasmhost: register env.abort: %w", err)
	}

	return &NativeExecutor{
		runtime: runtime,
		opts:    opts,
		rules:   make(map[string]*loadedModule),
	}, nil
}

func firstExport(mod api.Module, names ...string) api.Function {
	for _, n := range names {
		if fn := mod.ExportedFunction(n); fn != nil {
			return fn
		}
	}
	return nil
}

func decodeI32Pair(res []uint64) (int32, int32) {
	return api.DecodeI32(res[0]), api.DecodeI32(res[1])
}

// Load compiles and instantiates wasmBytes, calls its get_manifest export
// once, and registers the instance under the manifest's declared name.
func (e *NativeExecutor) Load(ctx context.Context, wasmBytes []byte) (*Loaded, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("wasmhost: compile module: %w", err)
	}

	name := fmt.Sprintf("rule-%d", moduleSeq.Add(1))
	mod, err := e.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		return nil, fmt.Errorf("wasmhost: instantiate module: %w", err)
	}

	mem := mod.Memory()
	if mem == nil {
		_ = mod.Close(ctx)
		return nil, fmt.Errorf("wasmhost: module does not export memory")
	}
	getManifestFn := firstExport(mod, "get_manifest", "__get_manifest")
	lintFn := firstExport(mod, "lint", "__lint")
	allocFn := firstExport(mod, "alloc", "__alloc", "malloc")
	if getManifestFn == nil || lintFn == nil || allocFn == nil {
		_ = mod.Close(ctx)
		return nil, fmt.Errorf("wasmhost: module must export get_manifest, lint, and alloc")
	}

	res, err := getManifestFn.Call(ctx)
	if err != nil {
		_ = mod.Close(ctx)
		return nil, &ErrTrap{Rule: name, Err: fmt.Errorf("get_manifest: %w", err)}
	}
	ptr, length := decodeI32Pair(res)
	raw, ok := mem.Read(uint32(ptr), uint32(length))
	if !ok {
		_ = mod.Close(ctx)
		return nil, fmt.Errorf("wasmhost: get_manifest returned an out-of-bounds region")
	}

	var gm GuestManifest
	if err := json.Unmarshal(raw, &gm); err != nil {
		_ = mod.Close(ctx)
		return nil, ErrManifestMalformed
	}

	lm := &loadedModule{mod: mod, mem: mem, getManifest: getManifestFn, lint: lintFn, alloc: allocFn, manifest: gm}

	e.mu.Lock()
	e.rules[gm.Name] = lm
	e.mu.Unlock()

	return &Loaded{Name: gm.Name, Manifest: gm}, nil
}

// CallLint writes request into the named instance's memory, invokes its
// lint export under a CallTimeout-bounded context, and reads back the
// response bytes.
func (e *NativeExecutor) CallLint(ctx context.Context, name string, request []byte) ([]byte, error) {
	e.mu.Lock()
	lm, ok := e.rules[name]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("wasmhost: rule %q is not loaded", name)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer cancel()

	allocRes, err := lm.alloc.Call(callCtx, uint64(len(request)))
	if err != nil {
		return nil, e.wrapCallErr(callCtx, name, "alloc", err)
	}
	inPtr := api.DecodeI32(allocRes[0])
	if !lm.mem.Write(uint32(inPtr), request) {
		return nil, &ErrTrap{Rule: name, Err: fmt.Errorf("write request: out of bounds")}
	}

	lintRes, err := lm.lint.Call(callCtx, uint64(uint32(inPtr)), uint64(len(request)))
	if err != nil {
		return nil, e.wrapCallErr(callCtx, name, "lint", err)
	}
	outPtr, outLen := decodeI32Pair(lintRes)
	data, ok := lm.mem.Read(uint32(outPtr), uint32(outLen))
	if !ok {
		return nil, &ErrTrap{Rule: name, Err: fmt.Errorf("read response: out of bounds")}
	}
	return append([]byte(nil), data...), nil
}

func (e *NativeExecutor) wrapCallErr(callCtx context.Context, name, step string, err error) error {
	if callCtx.Err() == context.DeadlineExceeded {
		return &ErrTrap{Rule: name, Err: ErrFuelExhausted}
	}
	return &ErrTrap{Rule: name, Err: fmt.Errorf("%s: %w", step, err)}
}

// Unload releases name's instance, returning false if it wasn't loaded.
func (e *NativeExecutor) Unload(name string) bool {
	e.mu.Lock()
	lm, ok := e.rules[name]
	if ok {
		delete(e.rules, name)
	}
	e.mu.Unlock()
	if !ok {
		return false
	}
	_ = lm.mod.Close(context.Background())
	return true
}

// UnloadAll releases every loaded instance.
func (e *NativeExecutor) UnloadAll() {
	e.mu.Lock()
	rules := e.rules
	e.rules = make(map[string]*loadedModule)
	e.mu.Unlock()
	for _, lm := range rules {
		_ = lm.mod.Close(context.Background())
	}
}

// LoadedRules lists the currently loaded instance names.
func (e *NativeExecutor) LoadedRules() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.rules))
	for name := range e.rules {
		names = append(names, name)
	}
	return names
}

// Close releases the underlying wazero runtime and every instance in it.
func (e *NativeExecutor) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}
