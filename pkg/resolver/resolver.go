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

package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/kraklabs/tsuzulint/pkg/manifest"
	"github.com/kraklabs/tsuzulint/pkg/pluginfs"
	"github.com/kraklabs/tsuzulint/pkg/verify"
)

// Resolved is a ready-to-load artifact: a verified wasm file on disk plus
// the manifest it was fetched against, under the public name the rule
// should be installed as.
type Resolved struct {
	WasmPath     string
	ManifestPath string
	Alias        string
	Manifest     *manifest.Manifest
}

// GitHubRelease is the subset of the GitHub releases API response this
// resolver needs.
type GitHubRelease struct {
	TagName string `json:"tag_name"`
	Assets  []struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
	} `json:"assets"`
}

// GitHubClient lists a repo's releases, most recent first. The default
// implementation hits api.github.com; tests inject a fake.
type GitHubClient interface {
	ListReleases(ctx context.Context, owner, repo string) ([]GitHubRelease, error)
}

// Resolver turns a PluginSpec into a Resolved artifact (C4): fetch (or
// reuse from cache), verify against the manifest's declared digest, and
// hand back local paths the plugin host can load directly.
type Resolver struct {
	cache  *pluginfs.Cache
	http   verify.Options
	github GitHubClient
}

// New returns a Resolver caching fetched artifacts under cacheRoot, using
// the default HTTPS fetcher and the public api.github.com release API.
// Tests that need a fake GitHubClient or a *http.Client pointed at an
// httptest.Server construct a Resolver literal directly (same package).
func New(cacheRoot string) *Resolver {
	return &Resolver{
		cache:  pluginfs.New(cacheRoot),
		github: &httpGitHubClient{client: http.DefaultClient},
	}
}

// Resolve dispatches spec to its source-specific resolution path.
func (r *Resolver) Resolve(ctx context.Context, spec *PluginSpec) (*Resolved, error) {
	switch {
	case spec.GitHub != nil:
		return r.resolveGitHub(ctx, spec.GitHub, spec.Alias)
	case spec.URL != nil:
		return r.resolveURL(ctx, spec.URL, spec.Alias)
	case spec.Path != nil:
		return r.resolvePath(spec.Path, spec.Alias)
	default:
		return nil, fmt.Errorf("resolver: plugin spec declares no source")
	}
}

// resolveGitHub fetches the release matching src.Version (or the latest
// release when empty), reusing a cached artifact pair when one already
// exists for that tag.
func (r *Resolver) resolveGitHub(ctx context.Context, src *GitHubSource, alias string) (*Resolved, error) {
	releases, err := r.github.ListReleases(ctx, src.Owner, src.Repo)
	if err != nil {
		return nil, fmt.Errorf("resolver: list releases for %s/%s: %w", src.Owner, src.Repo, err)
	}
	release, err := pickRelease(releases, src.Version)
	if err != nil {
		return nil, fmt.Errorf("resolver: %s/%s: %w", src.Owner, src.Repo, err)
	}

	dir, err := r.cache.GitHubDir(src.Owner, src.Repo, release.TagName)
	if err != nil {
		return nil, err
	}
	if cached, err := r.cache.Get(dir); err != nil {
		return nil, err
	} else if cached != nil {
		m, err := readManifest(cached.ManifestPath)
		if err != nil {
			return nil, err
		}
		return &Resolved{WasmPath: cached.WasmPath, ManifestPath: cached.ManifestPath, Alias: resolveAlias(alias, m), Manifest: m}, nil
	}

	manifestAssetURL := findAsset(release, manifestAssetName)
	if manifestAssetURL == "" {
		return nil, fmt.Errorf("resolver: release %s has no %s asset", release.TagName, manifestAssetName)
	}
	manifestDL, err := verify.Download(ctx, manifestAssetURL, release.TagName, r.http)
	if err != nil {
		return nil, fmt.Errorf("resolver: download manifest: %w", err)
	}
	m, err := manifest.Parse(manifestDL.Bytes)
	if err != nil {
		return nil, err
	}

	wasmDL, err := verify.Download(ctx, m.Artifacts.Wasm, release.TagName, r.http)
	if err != nil {
		return nil, fmt.Errorf("resolver: download wasm: %w", err)
	}
	if err := verify.Verify(wasmDL.Bytes, m.Artifacts.SHA256); err != nil {
		return nil, err
	}

	cached, err := r.cache.Store(dir, wasmDL.Bytes, manifestDL.Bytes)
	if err != nil {
		return nil, err
	}
	return &Resolved{WasmPath: cached.WasmPath, ManifestPath: cached.ManifestPath, Alias: resolveAlias(alias, m), Manifest: m}, nil
}

// resolveURL fetches the manifest directly from src.URL, then its artifact,
// caching both under a hash of the URL plus the manifest's declared
// version.
func (r *Resolver) resolveURL(ctx context.Context, src *URLSource, alias string) (*Resolved, error) {
	manifestDL, err := verify.Download(ctx, src.URL, "", r.http)
	if err != nil {
		return nil, fmt.Errorf("resolver: download manifest: %w", err)
	}
	m, err := manifest.Parse(manifestDL.Bytes)
	if err != nil {
		return nil, err
	}

	dir, err := r.cache.URLDir(src.URL, m.Rule.Version)
	if err != nil {
		return nil, err
	}
	if cached, err := r.cache.Get(dir); err != nil {
		return nil, err
	} else if cached != nil {
		return &Resolved{WasmPath: cached.WasmPath, ManifestPath: cached.ManifestPath, Alias: resolveAlias(alias, m), Manifest: m}, nil
	}

	wasmDL, err := verify.Download(ctx, m.Artifacts.Wasm, m.Rule.Version, r.http)
	if err != nil {
		return nil, fmt.Errorf("resolver: download wasm: %w", err)
	}
	if err := verify.Verify(wasmDL.Bytes, m.Artifacts.SHA256); err != nil {
		return nil, err
	}

	cached, err := r.cache.Store(dir, wasmDL.Bytes, manifestDL.Bytes)
	if err != nil {
		return nil, err
	}
	return &Resolved{WasmPath: cached.WasmPath, ManifestPath: cached.ManifestPath, Alias: resolveAlias(alias, m), Manifest: m}, nil
}

// resolvePath loads a manifest and wasm pair directly from the local
// filesystem, uncached (path specs are never written into the artifact
// cache — the caller's own filesystem already is one). artifacts.wasm is
// resolved relative to the manifest's directory; an absolute path or any
// ".." component is rejected.
func (r *Resolver) resolvePath(src *PathSource, alias string) (*Resolved, error) {
	m, err := readManifest(src.Path)
	if err != nil {
		return nil, err
	}

	rel := m.Artifacts.Wasm
	if filepath.IsAbs(rel) {
		return nil, fmt.Errorf("resolver: absolute artifacts.wasm path %q is not allowed", rel)
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if part == ".." {
			return nil, fmt.Errorf("resolver: path traversal in artifacts.wasm %q is not allowed", rel)
		}
	}
	wasmPath := filepath.Join(filepath.Dir(src.Path), rel)
	wasmBytes, err := os.ReadFile(wasmPath)
	if err != nil {
		return nil, fmt.Errorf("resolver: read wasm %s: %w", wasmPath, err)
	}
	if err := verify.Verify(wasmBytes, m.Artifacts.SHA256); err != nil {
		return nil, err
	}

	return &Resolved{WasmPath: wasmPath, ManifestPath: src.Path, Alias: resolveAlias(alias, m), Manifest: m}, nil
}

func readManifest(path string) (*manifest.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("resolver: read manifest %s: %w", path, err)
	}
	return manifest.Parse(data)
}

// resolveAlias prefers the user's explicit "as" override; absent that, a
// rule is installed under its manifest-declared name.
func resolveAlias(explicit string, m *manifest.Manifest) string {
	if explicit != "" {
		return explicit
	}
	return m.Rule.Name
}

const manifestAssetName = "tsuzulint-rule.json"

func findAsset(release GitHubRelease, name string) string {
	for _, a := range release.Assets {
		if a.Name == name {
			return a.BrowserDownloadURL
		}
	}
	return ""
}

// pickRelease selects releases[0] (GitHub lists most-recent-first) when
// version is empty, an exact tag match when version names one directly, or
// the highest release satisfying version as a semver constraint.
func pickRelease(releases []GitHubRelease, version string) (GitHubRelease, error) {
	if len(releases) == 0 {
		return GitHubRelease{}, fmt.Errorf("no releases found")
	}
	if version == "" {
		return releases[0], nil
	}
	for _, rel := range releases {
		if rel.TagName == version || rel.TagName == "v"+version {
			return rel, nil
		}
	}

	constraint, err := semver.NewConstraint(version)
	if err != nil {
		return GitHubRelease{}, fmt.Errorf("no release tagged %q", version)
	}
	var best *GitHubRelease
	var bestVer *semver.Version
	for i := range releases {
		v, err := semver.NewVersion(releases[i].TagName)
		if err != nil {
			continue
		}
		if !constraint.Check(v) {
			continue
		}
		if bestVer == nil || v.GreaterThan(bestVer) {
			bestVer = v
			best = &releases[i]
		}
	}
	if best == nil {
		return GitHubRelease{}, fmt.Errorf("no release satisfies constraint %q", version)
	}
	return *best, nil
}

type httpGitHubClient struct {
	client *http.Client
}

func (c *httpGitHubClient) ListReleases(ctx context.Context, owner, repo string) ([]GitHubRelease, error) {
	apiURL := fmt.Sprintf("https://api.github.com/repos/%s/%s/releases", owner, repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("resolver: github releases %s/%s: status %d", owner, repo, resp.StatusCode)
	}

	var releases []GitHubRelease
	if err := json.NewDecoder(resp.Body).Decode(&releases); err != nil {
		return nil, fmt.Errorf("resolver: decode releases: %w", err)
	}
	return releases, nil
}
