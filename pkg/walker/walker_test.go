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

package walker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDiscoverFindsRegularFilesUnderDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.md"), "a")
	writeFile(t, filepath.Join(root, "sub", "b.md"), "b")

	got, err := Discover([]string{root}, nil, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "a.md"),
		filepath.Join(root, "sub", "b.md"),
	}, got)
}

func TestDiscoverHonorsRootGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "ignored.md\n")
	writeFile(t, filepath.Join(root, "kept.md"), "a")
	writeFile(t, filepath.Join(root, "ignored.md"), "b")

	got, err := Discover([]string{root}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "kept.md")}, got)
}

func TestDiscoverHonorsNestedGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "kept.md"), "a")
	writeFile(t, filepath.Join(root, "sub", ".gitignore"), "skip.md\n")
	writeFile(t, filepath.Join(root, "sub", "skip.md"), "b")
	writeFile(t, filepath.Join(root, "sub", "keep.md"), "c")

	got, err := Discover([]string{root}, nil, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "kept.md"),
		filepath.Join(root, "sub", "keep.md"),
	}, got)
}

func TestDiscoverNestedGitignoreDoesNotAffectSiblingDirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "sub1", ".gitignore"), "*.tmp\n")
	writeFile(t, filepath.Join(root, "sub1", "a.tmp"), "a")
	writeFile(t, filepath.Join(root, "sub2", "a.tmp"), "b")

	got, err := Discover([]string{root}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "sub2", "a.tmp")}, got)
}

func TestDiscoverNestedGitignoreCanIgnoreAWholeSubdirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "sub", ".gitignore"), "vendor/\n")
	writeFile(t, filepath.Join(root, "sub", "vendor", "dep.md"), "a")
	writeFile(t, filepath.Join(root, "sub", "keep.md"), "b")

	got, err := Discover([]string{root}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "sub", "keep.md")}, got)
}

func TestDiscoverAppliesIncludeAndExcludeGlobs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.md"), "a")
	writeFile(t, filepath.Join(root, "b.txt"), "b")

	got, err := Discover([]string{root}, []string{"**/*.md"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "a.md")}, got)

	got, err = Discover([]string{root}, nil, []string{"**/*.txt"})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "a.md")}, got)
}

func TestDiscoverDeduplicatesOverlappingPatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.md"), "a")

	got, err := Discover([]string{root, filepath.Join(root, "a.md")}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "a.md")}, got)
}

func TestDiscoverReturnsSortedResult(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "z.md"), "a")
	writeFile(t, filepath.Join(root, "a.md"), "b")

	got, err := Discover([]string{root}, nil, nil)
	require.NoError(t, err)
	want := append([]string{}, got...)
	sort.Strings(want)
	assert.Equal(t, want, got)
}

func TestDispatchProducesOneOutcomePerPath(t *testing.T) {
	paths := []string{"a", "b", "c"}
	outcomes := Dispatch(context.Background(), paths, 2, func(ctx context.Context, p string) (string, error) {
		return p + "-done", nil
	})
	assert.Len(t, outcomes, len(paths))

	byPath := make(map[string]string, len(outcomes))
	for _, o := range outcomes {
		require.NoError(t, o.Err)
		byPath[o.Path] = o.Result
	}
	for _, p := range paths {
		assert.Equal(t, p+"-done", byPath[p])
	}
}

func TestDispatchCapturesPerFileErrorsWithoutAbortingBatch(t *testing.T) {
	paths := []string{"ok", "bad", "ok2"}
	outcomes := Dispatch(context.Background(), paths, 1, func(ctx context.Context, p string) (string, error) {
		if p == "bad" {
			return "", errors.New("boom")
		}
		return p, nil
	})
	require.Len(t, outcomes, 3)

	var sawErr, sawOK int
	for _, o := range outcomes {
		if o.Err != nil {
			sawErr++
		} else {
			sawOK++
		}
	}
	assert.Equal(t, 1, sawErr)
	assert.Equal(t, 2, sawOK)
}

func TestDispatchRespectsConcurrencyLimit(t *testing.T) {
	const concurrency = 2
	var inFlight, maxSeen atomic.Int64

	paths := make([]string, 10)
	for i := range paths {
		paths[i] = fmt.Sprintf("p%d", i)
	}

	Dispatch(context.Background(), paths, concurrency, func(ctx context.Context, p string) (struct{}, error) {
		n := inFlight.Add(1)
		for {
			prev := maxSeen.Load()
			if n <= prev || maxSeen.CompareAndSwap(prev, n) {
				break
			}
		}
		inFlight.Add(-1)
		return struct{}{}, nil
	})

	assert.LessOrEqual(t, maxSeen.Load(), int64(concurrency))
}

func TestPartitionSplitsSuccessesAndFailures(t *testing.T) {
	outcomes := []Outcome[int]{
		{Path: "a", Result: 1, Err: nil},
		{Path: "b", Result: 0, Err: errors.New("boom")},
		{Path: "c", Result: 3, Err: nil},
	}
	successes, failures := Partition(outcomes)
	assert.Equal(t, []int{1, 3}, successes)
	require.Len(t, failures, 1)
	assert.Equal(t, "b", failures[0].Path)
}
