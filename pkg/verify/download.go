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

package verify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// MaxArtifactBytes caps a single downloaded artifact (§4.2).
const MaxArtifactBytes = 50 * 1024 * 1024

// FetchTimeout bounds a single download's wall-clock time.
const FetchTimeout = 60 * time.Second

// ErrNotFound reports a 404 from the remote server.
var ErrNotFound = errors.New("verify: artifact not found")

// Downloaded holds a fetched artifact's bytes alongside its computed digest,
// so callers that already need the digest (to compare against a manifest)
// don't hash twice.
type Downloaded struct {
	Bytes          []byte
	ComputedSHA256 string
}

// Options configures Download.
type Options struct {
	// AllowLocal disables the SSRF guard that rejects loopback/private/
	// link-local addresses. Tests that serve from 127.0.0.1 need this;
	// production resolution never sets it.
	AllowLocal bool
	// Client, if set, replaces the default http.Client (tests inject one
	// pointed at an httptest.Server).
	Client *http.Client
}

// Download fetches rawURL, substituting the literal "{version}" with
// version if present, enforcing MaxArtifactBytes and FetchTimeout, and
// rejecting non-HTTPS schemes and (unless AllowLocal) private/loopback/
// link-local hosts.
func Download(ctx context.Context, rawURL, version string, opts Options) (*Downloaded, error) {
	resolved := strings.ReplaceAll(rawURL, "{version}", version)

	u, err := url.Parse(resolved)
	if err != nil {
		return nil, fmt.Errorf("verify: parse url %q: %w", resolved, err)
	}
	if !opts.AllowLocal && u.Scheme != "https" {
		return nil, fmt.Errorf("verify: url %q must use https", resolved)
	}
	if !opts.AllowLocal {
		if err := rejectUnsafeHost(u.Hostname()); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolved, nil)
	if err != nil {
		return nil, fmt.Errorf("verify: build request: %w", err)
	}

	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify: fetch %q: %w", resolved, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("verify: fetch %q: unexpected status %d", resolved, resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, MaxArtifactBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("verify: read body: %w", err)
	}
	if len(data) > MaxArtifactBytes {
		return nil, fmt.Errorf("verify: artifact exceeds %d byte cap", MaxArtifactBytes)
	}

	return &Downloaded{Bytes: data, ComputedSHA256: Sum256Hex(data)}, nil
}

// rejectUnsafeHost guards against SSRF by resolving host and rejecting any
// address in a private, loopback, or link-local range.
func rejectUnsafeHost(host string) error {
	ips, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("verify: resolve host %q: %w", host, err)
	}
	for _, ip := range ips {
		if isUnsafeIP(ip) {
			return fmt.Errorf("verify: host %q resolves to a disallowed address %s", host, ip)
		}
	}
	return nil
}

var privateV4Blocks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"127.0.0.0/8",
)

func isUnsafeIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	for _, block := range privateV4Blocks {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		out = append(out, n)
	}
	return out
}
