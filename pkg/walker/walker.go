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

// Package walker discovers files (C11) and dispatches them over a bounded
// worker pool: gitignore-aware discovery from glob roots, an include/
// exclude post-filter, and per-file dispatch that never lets one file's
// failure abort the batch.
package walker

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/sync/errgroup"
)

// Discover walks every root in patterns (a file path or a directory to
// recurse into), honoring the `.gitignore` of every directory walked (each
// applies to its own subtree), then applies include/exclude globs as a
// post-filter. Dot-named files met while walking a directory (the
// `.gitignore` files among them) are not returned. The result is a sorted,
// deduplicated list of regular-file paths.
func Discover(patterns, include, exclude []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string

	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			matches = []string{pattern}
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil {
				continue
			}
			if info.IsDir() {
				found, err := walkDir(m)
				if err != nil {
					return nil, err
				}
				for _, f := range found {
					if !seen[f] {
						seen[f] = true
						out = append(out, f)
					}
				}
				continue
			}
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}

	out = filterGlobs(out, include, exclude)
	sort.Strings(out)
	return out, nil
}

// gitignoreScope is a `.gitignore` loaded from one directory in the tree;
// its patterns apply to that directory and everything beneath it.
type gitignoreScope struct {
	dir string
	ign *gitignore.GitIgnore
}

func walkDir(root string) ([]string, error) {
	var scopes []gitignoreScope
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if ign := loadGitignore(path); ign != nil {
				scopes = append(scopes, gitignoreScope{dir: path, ign: ign})
			}
			if path != root && ignoredByAnyScope(scopes, path) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || ignoredByAnyScope(scopes, path) {
			return nil
		}
		if info, err := d.Info(); err == nil && info.Mode().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// ignoredByAnyScope reports whether path is ignored by any `.gitignore`
// found at or above its directory, per §C11: a nested `.gitignore` is
// consulted in addition to the walk root's, not in place of it.
func ignoredByAnyScope(scopes []gitignoreScope, path string) bool {
	for _, s := range scopes {
		rel, err := filepath.Rel(s.dir, path)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		if s.ign.MatchesPath(rel) {
			return true
		}
	}
	return false
}

func loadGitignore(dir string) *gitignore.GitIgnore {
	ign, err := gitignore.CompileIgnoreFile(filepath.Join(dir, ".gitignore"))
	if err != nil {
		return nil
	}
	return ign
}

func filterGlobs(paths, include, exclude []string) []string {
	if len(include) == 0 && len(exclude) == 0 {
		return paths
	}
	var out []string
	for _, p := range paths {
		if len(include) > 0 && !matchesAny(include, p) {
			continue
		}
		if matchesAny(exclude, p) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func matchesAny(globs []string, path string) bool {
	slash := filepath.ToSlash(path)
	for _, g := range globs {
		if ok, _ := doublestar.Match(g, slash); ok {
			return true
		}
	}
	return false
}

// Outcome is one file's per-path dispatch result.
type Outcome[R any] struct {
	Path   string
	Result R
	Err    error
}

// Dispatch runs fn over every path with up to concurrency workers
// in-flight at once. Every path always produces exactly one Outcome; a
// single file's error never aborts the batch (fn's error is captured, not
// returned to the caller). Result order reflects completion order, not
// input order, per §5.
func Dispatch[R any](ctx context.Context, paths []string, concurrency int, fn func(context.Context, string) (R, error)) []Outcome[R] {
	outcomes := make(chan Outcome[R], len(paths))
	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}

	for _, path := range paths {
		path := path
		g.Go(func() error {
			result, err := fn(gctx, path)
			outcomes <- Outcome[R]{Path: path, Result: result, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	close(outcomes)

	out := make([]Outcome[R], 0, len(paths))
	for o := range outcomes {
		out = append(out, o)
	}
	return out
}

// Partition splits outcomes into successes and failures.
func Partition[R any](outcomes []Outcome[R]) (successes []R, failures []Outcome[R]) {
	for _, o := range outcomes {
		if o.Err != nil {
			failures = append(failures, o)
			continue
		}
		successes = append(successes, o.Result)
	}
	return successes, failures
}
