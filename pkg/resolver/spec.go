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

// Package resolver turns a user-declared PluginSpec into a loadable,
// hash-verified artifact (C4): parse the spec, fetch/verify/cache, and
// hand back a Resolved the plugin host can load.
package resolver

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PluginSpec is a parsed user declaration of a rule source.
type PluginSpec struct {
	GitHub *GitHubSource
	URL    *URLSource
	Path   *PathSource
	Alias  string // optional user override; "" means "use the default"
}

// GitHubSource names a rule published as a GitHub release asset. An empty
// Version means "latest release".
type GitHubSource struct {
	Owner, Repo, Version string
}

// URLSource is an HTTPS URL to a manifest. Callers must supply Alias on
// the owning PluginSpec — it's mandatory for this source kind.
type URLSource struct {
	URL string
}

// PathSource is a local manifest path.
type PathSource struct {
	Path string
}

// ParseSpec decodes a user spec from JSON: either the GitHub shorthand
// string "<owner>/<repo>" / "<owner>/<repo>@<version>", or an object with
// exactly one of "github"/"url"/"path" plus an optional "as" alias.
func ParseSpec(raw []byte) (*PluginSpec, error) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return parseGitHubShorthand(asString)
	}

	var obj struct {
		GitHub *struct {
			Owner   string `json:"owner"`
			Repo    string `json:"repo"`
			Version string `json:"version,omitempty"`
		} `json:"github"`
		URL  *string `json:"url"`
		Path *string `json:"path"`
		As   string  `json:"as"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("resolver: decode plugin spec: %w", err)
	}

	count := 0
	if obj.GitHub != nil {
		count++
	}
	if obj.URL != nil {
		count++
	}
	if obj.Path != nil {
		count++
	}
	if count != 1 {
		return nil, fmt.Errorf("resolver: plugin spec must declare exactly one of github/url/path, got %d", count)
	}

	spec := &PluginSpec{Alias: obj.As}
	switch {
	case obj.GitHub != nil:
		spec.GitHub = &GitHubSource{Owner: obj.GitHub.Owner, Repo: obj.GitHub.Repo, Version: obj.GitHub.Version}
	case obj.URL != nil:
		if obj.As == "" {
			return nil, fmt.Errorf("resolver: url-sourced plugin spec requires an explicit alias")
		}
		spec.URL = &URLSource{URL: *obj.URL}
	case obj.Path != nil:
		spec.Path = &PathSource{Path: *obj.Path}
	}
	return spec, nil
}

func parseGitHubShorthand(s string) (*PluginSpec, error) {
	ownerRepo, version, _ := strings.Cut(s, "@")
	owner, repo, ok := strings.Cut(ownerRepo, "/")
	if !ok || owner == "" || repo == "" {
		return nil, fmt.Errorf("resolver: plugin spec %q must be \"<owner>/<repo>\"", s)
	}
	return &PluginSpec{GitHub: &GitHubSource{Owner: owner, Repo: repo, Version: version}}, nil
}
