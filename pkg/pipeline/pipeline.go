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

// Package pipeline runs the 16-step per-file lint (C10): stat/read, parse,
// tokenize, extract blocks, reconcile against the incremental cache,
// dispatch Global and Block rules, redistribute diagnostics, and write the
// result back to the cache. The Markdown/plain-text parsers and the
// morphological tokenizer are external collaborators referenced only by
// the Parser and tokentext.Tokenizer contracts.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kraklabs/tsuzulint/pkg/ast"
	"github.com/kraklabs/tsuzulint/pkg/blocks"
	"github.com/kraklabs/tsuzulint/pkg/diag"
	"github.com/kraklabs/tsuzulint/pkg/filecache"
	"github.com/kraklabs/tsuzulint/pkg/fingerprint"
	"github.com/kraklabs/tsuzulint/pkg/linterr"
	"github.com/kraklabs/tsuzulint/pkg/manifest"
	"github.com/kraklabs/tsuzulint/pkg/pluginhost"
	"github.com/kraklabs/tsuzulint/pkg/tokentext"
)

// MaxFileSize is the per-file source-size cap (§5).
const MaxFileSize = 10 * 1024 * 1024

// Parser produces an AST from a file's full source text. The concrete
// Markdown and plain-text parsers live outside this core.
type Parser interface {
	Parse(source string) (*ast.Node, error)
}

// ParserSelector picks a Parser by the file's lowercased extension
// (including the leading dot, e.g. ".md").
type ParserSelector interface {
	ParserFor(ext string) Parser
}

// ExtensionParsers is the §4.11 selector: Markdown for .md/.markdown,
// plain text for anything else.
type ExtensionParsers struct {
	Markdown  Parser
	PlainText Parser
}

// ParserFor implements ParserSelector.
func (e ExtensionParsers) ParserFor(ext string) Parser {
	switch strings.ToLower(ext) {
	case ".md", ".markdown":
		return e.Markdown
	default:
		return e.PlainText
	}
}

// Rule is one enabled rule's dispatch-relevant metadata, enumerated by the
// caller (the linter façade) from its loaded manifests and config options.
type Rule struct {
	Name           string
	Version        string
	IsolationLevel manifest.IsolationLevel
}

// Dispatcher runs a prepared lint request against one rule. pluginhost.Host
// satisfies this.
type Dispatcher interface {
	RunRuleWithPrepared(ctx context.Context, name string, prepared []byte) ([]diag.Diagnostic, error)
}

// Result is one file's outcome.
type Result struct {
	Path        string
	Diagnostics []diag.Diagnostic
	FromCache   bool
	Timings     map[string]time.Duration // nil unless timings are enabled
}

// Pipeline runs the per-file lint against a shared cache, dispatcher, and
// tokenizer.
type Pipeline struct {
	Cache      *filecache.Cache
	Dispatcher Dispatcher
	Tokenizer  tokentext.Tokenizer
	Parsers    ParserSelector
	Logger     *slog.Logger

	// ConfigHash fingerprints the resolved rule set + options, invalidating
	// every cache entry when either changes.
	ConfigHash fingerprint.Hash
	// Timings, when true, accumulates per-rule wall-clock duration across
	// every block/document dispatch for that rule in the returned Result.
	Timings bool
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// Run executes the 16-step pipeline against path for the given enabled
// rule set and their versions (used as the cache gate's rule_versions
// component).
func (p *Pipeline) Run(ctx context.Context, path string, rules []Rule, ruleVersions map[string]string) (Result, error) {
	// Step 1: stat, reject non-regular and oversized files.
	info, err := os.Stat(path)
	if err != nil {
		return Result{}, linterr.Wrap(linterr.File, path, err)
	}
	if !info.Mode().IsRegular() {
		return Result{}, linterr.Wrap(linterr.File, path, fmt.Errorf("not a regular file"))
	}
	if info.Size() >= MaxFileSize {
		return Result{}, linterr.Wrap(linterr.File, path, fmt.Errorf("file is %d bytes, exceeds the %d byte cap", info.Size(), MaxFileSize))
	}

	// Step 2: read content.
	raw, err := os.ReadFile(path)
	if err != nil {
		return Result{}, linterr.Wrap(linterr.File, path, err)
	}
	return p.runSource(ctx, path, string(raw), rules, ruleVersions, true)
}

// RunContent lints content directly, bypassing the file-level cache
// entirely (§4.13's lint_content, used by the LSP collaborator). pathHint
// only selects the parser by extension and is echoed back in Result.Path;
// it need not exist on disk.
func (p *Pipeline) RunContent(ctx context.Context, pathHint string, content []byte, rules []Rule) (Result, error) {
	if len(content) >= MaxFileSize {
		return Result{}, linterr.Wrap(linterr.File, pathHint, fmt.Errorf("content is %d bytes, exceeds the %d byte cap", len(content), MaxFileSize))
	}
	return p.runSource(ctx, pathHint, string(content), rules, nil, false)
}

func (p *Pipeline) runSource(ctx context.Context, path, source string, rules []Rule, ruleVersions map[string]string, useCache bool) (Result, error) {
	contentHash := fingerprint.Of([]byte(source))

	// Step 3: cache short-circuit.
	if useCache {
		if entry, ok := p.Cache.IsValid(path, contentHash, p.ConfigHash, ruleVersions); ok {
			return Result{Path: path, Diagnostics: entry.Diagnostics, FromCache: true}, nil
		}
	}

	// Step 4: parse.
	parser := p.Parsers.ParserFor(strings.ToLower(filepath.Ext(path)))
	if parser == nil {
		return Result{}, linterr.Wrap(linterr.Parse, path, fmt.Errorf("no parser registered for %s", filepath.Ext(path)))
	}
	doc, err := parser.Parse(source)
	if err != nil {
		return Result{}, linterr.Wrap(linterr.Parse, path, err)
	}

	// Step 5: ignore ranges (CodeBlock and Code spans).
	var ignoreRanges []diag.Span
	doc.Walk(func(n *ast.Node) bool {
		if n.Type == ast.CodeBlock || n.Type == ast.Code {
			ignoreRanges = append(ignoreRanges, n.Span)
		}
		return true
	})

	// Step 6: tokenize, split sentences.
	var tokens []tokentext.Token
	if p.Tokenizer != nil {
		tokens, err = p.Tokenizer.Tokenize(source)
		if err != nil {
			return Result{}, linterr.Wrap(linterr.Parse, path, fmt.Errorf("tokenize: %w", err))
		}
	}
	sentences := tokentext.Split(source, ignoreRanges)

	// Step 7: extract current blocks.
	curBlocks := blocks.Extract(doc, source)

	// Step 8: reconcile against cached blocks.
	var reused []diag.Diagnostic
	matched := make([]bool, len(curBlocks))
	if useCache {
		reused, matched = p.Cache.ReconcileBlocks(path, curBlocks, p.ConfigHash, ruleVersions)
	}

	// Step 9: partition enabled rules by isolation level.
	var globalRules, blockRules []Rule
	isolation := make(map[string]manifest.IsolationLevel, len(rules))
	for _, r := range rules {
		isolation[r.Name] = r.IsolationLevel
		if r.IsolationLevel == manifest.Global {
			globalRules = append(globalRules, r)
		} else {
			blockRules = append(blockRules, r)
		}
	}

	timings := make(map[string]time.Duration)
	record := func(name string, start time.Time) {
		if p.Timings {
			timings[name] += time.Since(start)
		}
	}

	// Step 10: run Global rules against the whole document, serialized once.
	var globalDiags []diag.Diagnostic
	if len(globalRules) > 0 {
		prepared, err := pluginhost.PrepareLintRequest(doc, source, tokens, sentences, path)
		if err != nil {
			return Result{}, linterr.Wrap(linterr.Internal, path, fmt.Errorf("encode document request: %w", err))
		}
		for _, r := range globalRules {
			start := time.Now()
			diags, err := p.Dispatcher.RunRuleWithPrepared(ctx, r.Name, prepared)
			record(r.Name, start)
			if err != nil {
				p.logger().Warn("pipeline.rule_call_failed", "rule", r.Name, "path", path, "error", err)
				continue
			}
			globalDiags = append(globalDiags, diags...)
		}
	}

	// Step 11: dispatch Block rules against every unreconciled block.
	var blockDiags []diag.Diagnostic
	if len(blockRules) > 0 {
		for i, child := range doc.Children {
			if matched[i] {
				continue
			}
			prepared, err := pluginhost.PrepareLintRequest(child, source, tokens, sentences, path)
			if err != nil {
				return Result{}, linterr.Wrap(linterr.Internal, path, fmt.Errorf("encode block %d request: %w", i, err))
			}
			for _, r := range blockRules {
				start := time.Now()
				diags, err := p.Dispatcher.RunRuleWithPrepared(ctx, r.Name, prepared)
				record(r.Name, start)
				if err != nil {
					p.logger().Warn("pipeline.rule_call_failed", "rule", r.Name, "path", path, "error", err)
					continue
				}
				blockDiags = append(blockDiags, diags...)
			}
		}
	}

	// Step 12: local = dedup_sort(reused ∪ block_diags), stripped of any
	// Global-isolation rule's findings (Global wins; see blocks.Redistribute).
	local := diag.DedupSort(append(append([]diag.Diagnostic{}, reused...), blockDiags...))
	local = stripGlobalIsolation(local, isolation)

	// Step 13: redistribute local into new block cache entries.
	blocks.Redistribute(curBlocks, local, func(ruleID string) manifest.IsolationLevel {
		if lvl, ok := isolation[ruleID]; ok {
			return lvl
		}
		return manifest.Block
	})

	// Step 14: final = dedup_sort(local ∪ global_diags).
	final := diag.DedupSort(append(append([]diag.Diagnostic{}, local...), globalDiags...))

	// Step 15: write back to the in-memory cache.
	if useCache {
		p.Cache.Set(path, filecache.Entry{
			ContentHash:  contentHash,
			ConfigHash:   p.ConfigHash,
			RuleVersions: ruleVersions,
			Diagnostics:  final,
			Blocks:       curBlocks,
		})
	}

	result := Result{Path: path, Diagnostics: final, FromCache: false}
	if p.Timings {
		result.Timings = timings
	}
	return result, nil
}

func stripGlobalIsolation(diags []diag.Diagnostic, isolation map[string]manifest.IsolationLevel) []diag.Diagnostic {
	out := diags[:0:0]
	for _, d := range diags {
		if isolation[d.RuleID] == manifest.Global {
			continue
		}
		out = append(out, d)
	}
	return out
}
