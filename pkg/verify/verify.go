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

// Package verify hashes and verifies plugin artifacts (C2): SHA-256 of
// downloaded bytes against a manifest-declared digest, with a bounded,
// SSRF-guarded HTTP fetcher for the GitHub/URL resolution paths.
package verify

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// HashMismatch reports that computed content did not match the expected
// digest. It never reveals whether the mismatch occurred in a prefix or
// suffix — only that the two digests as a whole differ.
type HashMismatch struct {
	Expected string
	Actual   string
}

func (e *HashMismatch) Error() string {
	return fmt.Sprintf("sha256 mismatch: expected %s, got %s", e.Expected, e.Actual)
}

// Sum256Hex returns the lowercase hex SHA-256 digest of data.
func Sum256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Verify checks data against expectedHex (lowercase hex SHA-256). The
// comparison is constant-time over the decoded digest bytes; a malformed
// expectedHex is treated as a mismatch, not a distinct error, so callers
// can't probe the verifier with invalid hex to learn anything.
func Verify(data []byte, expectedHex string) error {
	actual := sha256.Sum256(data)
	expected, err := hex.DecodeString(expectedHex)
	if err != nil || len(expected) != len(actual) || subtle.ConstantTimeCompare(expected, actual[:]) != 1 {
		return &HashMismatch{Expected: expectedHex, Actual: hex.EncodeToString(actual[:])}
	}
	return nil
}
