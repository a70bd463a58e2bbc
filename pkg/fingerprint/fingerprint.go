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

// Package fingerprint computes the content-addressed identity used for
// file contents, blocks, and config payloads throughout the core.
package fingerprint

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Size is the digest length in bytes (256 bits).
const Size = 32

// Hash is a 256-bit BLAKE3 digest.
type Hash [Size]byte

// Of hashes bytes and returns the digest.
func Of(data []byte) Hash {
	sum := blake3.Sum256(data)
	return Hash(sum)
}

// String hex-encodes the hash for storage in JSON/text contexts.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Parse decodes a hex-encoded hash produced by String.
func Parse(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(b) != Size {
		return h, errInvalidLength(len(b))
	}
	copy(h[:], b)
	return h, nil
}

type errInvalidLength int

func (e errInvalidLength) Error() string {
	return "fingerprint: invalid hash length"
}
