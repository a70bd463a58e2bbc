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

// Package linter is the public façade (C12): it composes config, resolver,
// the plugin host pool, the incremental cache, the walker, and the
// per-file pipeline behind four entry points — lint_patterns, lint_files,
// lint_content, load_rule.
package linter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"sync"

	"github.com/kraklabs/tsuzulint/pkg/config"
	"github.com/kraklabs/tsuzulint/pkg/diag"
	"github.com/kraklabs/tsuzulint/pkg/filecache"
	"github.com/kraklabs/tsuzulint/pkg/fingerprint"
	"github.com/kraklabs/tsuzulint/pkg/hostpool"
	"github.com/kraklabs/tsuzulint/pkg/manifest"
	"github.com/kraklabs/tsuzulint/pkg/metrics"
	"github.com/kraklabs/tsuzulint/pkg/pipeline"
	"github.com/kraklabs/tsuzulint/pkg/pluginhost"
	"github.com/kraklabs/tsuzulint/pkg/resolver"
	"github.com/kraklabs/tsuzulint/pkg/tokentext"
	"github.com/kraklabs/tsuzulint/pkg/wasmhost"
	"github.com/kraklabs/tsuzulint/pkg/walker"
)

const defaultCachePath = "cache.rkyv"

// ExecutorFactory builds a fresh sandboxing backend for one pooled host.
type ExecutorFactory func(ctx context.Context) (wasmhost.Executor, error)

// Options configures a Linter beyond what's in config.Config.
type Options struct {
	Resolver        *resolver.Resolver // required when cfg.Rules is non-empty
	ExecutorFactory ExecutorFactory    // always required; builds every pooled host
	Parsers         pipeline.ParserSelector
	Tokenizer       tokentext.Tokenizer
	Concurrency     int // 0 means runtime.GOMAXPROCS(0)
	Metrics         *metrics.Collector
	Logger          *slog.Logger
}

// loadedRule is one resolved rule's dispatch-ready state.
type loadedRule struct {
	PublicName string
	WasmBytes  []byte
	Manifest   *manifest.Manifest
}

// Linter is the public façade over the whole core.
type Linter struct {
	cfg  config.Config
	opts Options

	cache *filecache.Cache
	pool  *hostpool.Pool[*pluginhost.Host]

	mu           sync.RWMutex
	loaded       []loadedRule
	rules        []pipeline.Rule
	ruleVersions map[string]string
	configHash   fingerprint.Hash
}

// New resolves cfg.Rules, builds the primary host and the pool, loads the
// cache, and precomputes the config hash.
func New(ctx context.Context, cfg config.Config, opts Options) (*Linter, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.GOMAXPROCS(0)
	}
	if opts.Parsers == nil {
		return nil, fmt.Errorf("linter: Options.Parsers is required")
	}
	if opts.ExecutorFactory == nil {
		return nil, fmt.Errorf("linter: Options.ExecutorFactory is required")
	}
	if len(cfg.Rules) > 0 && opts.Resolver == nil {
		return nil, fmt.Errorf("linter: Options.Resolver is required when cfg.Rules is non-empty")
	}

	cachePath := ""
	if cfg.Cache.Enabled {
		cachePath = cfg.Cache.Path
		if cachePath == "" {
			cachePath = defaultCachePath
		}
	}

	l := &Linter{
		cfg:          cfg,
		opts:         opts,
		cache:        filecache.Load(cachePath, opts.Logger),
		ruleVersions: make(map[string]string),
	}

	for _, def := range cfg.Rules {
		if err := l.resolveAndLoad(ctx, def); err != nil {
			return nil, err
		}
	}

	l.pool = hostpool.New(func() (*pluginhost.Host, error) {
		return l.buildHost(ctx)
	})

	primary, err := l.pool.Acquire()
	if err != nil {
		return nil, fmt.Errorf("linter: build primary host: %w", err)
	}
	primary.Release()

	l.recomputeEnabled()
	return l, nil
}

func (l *Linter) resolveAndLoad(ctx context.Context, def config.RuleDefinition) error {
	raw, err := def.SpecJSON()
	if err != nil {
		return err
	}
	spec, err := resolver.ParseSpec(raw)
	if err != nil {
		return err
	}
	if def.As != "" {
		spec.Alias = def.As
	}

	resolved, err := l.opts.Resolver.Resolve(ctx, spec)
	if err != nil {
		return fmt.Errorf("linter: resolve rule: %w", err)
	}
	wasmBytes, err := os.ReadFile(resolved.WasmPath)
	if err != nil {
		return fmt.Errorf("linter: read resolved wasm %s: %w", resolved.WasmPath, err)
	}

	l.mu.Lock()
	l.loaded = append(l.loaded, loadedRule{PublicName: resolved.Alias, WasmBytes: wasmBytes, Manifest: resolved.Manifest})
	l.ruleVersions[resolved.Alias] = resolved.Manifest.Rule.Version
	l.mu.Unlock()
	return nil
}

// buildHost constructs a fresh Executor-backed Host with every currently
// loaded rule installed under its public alias.
func (l *Linter) buildHost(ctx context.Context) (*pluginhost.Host, error) {
	executor, err := l.opts.ExecutorFactory(ctx)
	if err != nil {
		return nil, fmt.Errorf("linter: build executor: %w", err)
	}
	host := pluginhost.New(executor, l.opts.Logger)

	l.mu.RLock()
	snapshot := append([]loadedRule(nil), l.loaded...)
	l.mu.RUnlock()

	for _, lr := range snapshot {
		if err := installRule(ctx, host, lr); err != nil {
			return nil, err
		}
	}
	return host, nil
}

func installRule(ctx context.Context, host *pluginhost.Host, lr loadedRule) error {
	guestManifest, err := host.LoadRule(ctx, lr.WasmBytes)
	if err != nil {
		return fmt.Errorf("linter: load rule %q: %w", lr.PublicName, err)
	}
	if guestManifest.Name != lr.PublicName {
		if err := host.RenameRule(guestManifest.Name, lr.PublicName); err != nil {
			return fmt.Errorf("linter: alias rule %q: %w", lr.PublicName, err)
		}
	}
	return nil
}

// recomputeEnabled rebuilds the enabled-rule list and the config hash from
// the current loaded set and cfg.Options. Must be called with no
// concurrent dispatch in flight against l.rules/l.configHash (construction
// time and after LoadRule).
func (l *Linter) recomputeEnabled() {
	l.mu.Lock()
	defer l.mu.Unlock()

	rules := make([]pipeline.Rule, 0, len(l.loaded))
	for _, lr := range l.loaded {
		if !l.cfg.Enabled(lr.PublicName) {
			continue
		}
		rules = append(rules, pipeline.Rule{
			Name:           lr.PublicName,
			Version:        lr.Manifest.Rule.Version,
			IsolationLevel: lr.Manifest.Rule.IsolationLevel,
		})
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })
	l.rules = rules

	versions := make(map[string]string, len(l.ruleVersions))
	for k, v := range l.ruleVersions {
		versions[k] = v
	}

	hashInput := struct {
		Options  map[string]any    `json:"options"`
		Versions map[string]string `json:"versions"`
	}{Versions: versions}
	hashInput.Options = make(map[string]any, len(l.cfg.Options))
	for name, opt := range l.cfg.Options {
		hashInput.Options[name] = opt
	}
	encoded, _ := json.Marshal(hashInput)
	l.configHash = fingerprint.Of(encoded)
}

func (l *Linter) snapshot() ([]pipeline.Rule, map[string]string, fingerprint.Hash) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.rules, l.ruleVersions, l.configHash
}

func (l *Linter) newPipeline(cache *filecache.Cache, dispatcher pipeline.Dispatcher) *pipeline.Pipeline {
	_, _, hash := l.snapshot()
	return &pipeline.Pipeline{
		Cache:      cache,
		Dispatcher: dispatcher,
		Tokenizer:  l.opts.Tokenizer,
		Parsers:    l.opts.Parsers,
		Logger:     l.opts.Logger,
		ConfigHash: hash,
		Timings:    l.cfg.Timings,
	}
}

// LintFiles lints exactly the given paths, bypassing discovery.
func (l *Linter) LintFiles(ctx context.Context, paths []string) ([]pipeline.Result, []walker.Outcome[pipeline.Result], error) {
	rules, ruleVersions, _ := l.snapshot()

	outcomes := walker.Dispatch(ctx, paths, l.opts.Concurrency, func(ctx context.Context, path string) (pipeline.Result, error) {
		handle, err := l.pool.Acquire()
		if err != nil {
			return pipeline.Result{}, err
		}
		defer handle.Release()

		p := l.newPipeline(l.cache, handle.Host())
		result, err := p.Run(ctx, path, rules, ruleVersions)
		l.observe(result, err)
		return result, err
	})

	if err := l.cache.Persist(); err != nil {
		l.opts.Logger.Warn("linter.cache_persist_failed", "error", err)
	}

	successes, failures := walker.Partition(outcomes)
	return successes, failures, nil
}

// LintPatterns discovers files under patterns (honoring cfg.Include/
// Exclude as a post-filter) and lints them.
func (l *Linter) LintPatterns(ctx context.Context, patterns []string) ([]pipeline.Result, []walker.Outcome[pipeline.Result], error) {
	paths, err := walker.Discover(patterns, l.cfg.Include, l.cfg.Exclude)
	if err != nil {
		return nil, nil, fmt.Errorf("linter: discover: %w", err)
	}
	return l.LintFiles(ctx, paths)
}

// LintContent lints content synchronously, bypassing the cache entirely —
// the entry point an LSP collaborator would use on an in-editor buffer.
func (l *Linter) LintContent(ctx context.Context, content []byte, pathHint string) ([]diag.Diagnostic, error) {
	rules, _, _ := l.snapshot()

	handle, err := l.pool.Acquire()
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	p := l.newPipeline(filecache.Load("", l.opts.Logger), handle.Host())
	result, err := p.RunContent(ctx, pathHint, content, rules)
	if err != nil {
		return nil, err
	}
	return result.Diagnostics, nil
}

// LoadRule resolves and appends a dynamic rule from a local manifest path,
// installing it on the primary host immediately and on every currently
// idle pooled host so in-flight workers pick it up on their next Acquire.
func (l *Linter) LoadRule(ctx context.Context, manifestPath string) error {
	spec := &resolver.PluginSpec{Path: &resolver.PathSource{Path: manifestPath}}
	resolved, err := l.opts.Resolver.Resolve(ctx, spec)
	if err != nil {
		return fmt.Errorf("linter: resolve dynamic rule: %w", err)
	}
	wasmBytes, err := os.ReadFile(resolved.WasmPath)
	if err != nil {
		return fmt.Errorf("linter: read dynamic rule wasm: %w", err)
	}
	lr := loadedRule{PublicName: resolved.Alias, WasmBytes: wasmBytes, Manifest: resolved.Manifest}

	l.mu.Lock()
	l.loaded = append(l.loaded, lr)
	l.ruleVersions[lr.PublicName] = lr.Manifest.Rule.Version
	l.mu.Unlock()
	l.recomputeEnabled()

	idle := l.pool.Drain()
	for _, host := range idle {
		if err := installRule(ctx, host, lr); err != nil {
			l.opts.Logger.Warn("linter.dynamic_rule_install_failed", "rule", lr.PublicName, "error", err)
		}
		l.pool.Put(host)
	}
	return nil
}

func (l *Linter) observe(result pipeline.Result, err error) {
	if l.opts.Metrics == nil {
		return
	}
	if err != nil {
		return
	}
	if result.FromCache {
		l.opts.Metrics.ObserveCacheHit()
	} else {
		l.opts.Metrics.ObserveCacheMiss()
	}
	for rule, d := range result.Timings {
		l.opts.Metrics.ObserveRule(rule, d.Seconds())
	}
}

// LoadedRules lists every currently loaded rule's public name.
func (l *Linter) LoadedRules() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.loaded))
	for _, lr := range l.loaded {
		names = append(names, lr.PublicName)
	}
	sort.Strings(names)
	return names
}
