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

// Package linterr classifies failures per §7's taxonomy so callers can
// branch on errors.Is without parsing message strings.
package linterr

import (
	"errors"
	"fmt"
)

// Sentinel classifications. Wrap one with fmt.Errorf("...: %w", Class) (or
// use Wrap) so errors.Is(err, linterr.File) etc. keeps working after the
// cause is attached.
var (
	Config     = errors.New("config error")
	File       = errors.New("file error")
	Parse      = errors.New("parse error")
	PluginLoad = errors.New("plugin-load error")
	PluginCall = errors.New("plugin-call error")
	Internal   = errors.New("internal error")
)

// Wrap attaches path/cause context to a classification while keeping
// errors.Is(result, class) true.
func Wrap(class error, path string, cause error) error {
	if path == "" {
		return fmt.Errorf("%w: %v", class, cause)
	}
	return fmt.Errorf("%w: %s: %v", class, path, cause)
}

// FileLevel reports whether class is scoped to a single file (vs. fatal
// for the whole command). Per §7: File, Parse, and Internal are
// file-scoped; Config is command-fatal. Plugin-load/call errors never
// reach this boundary as file failures — they are swallowed earlier with
// a log and the file continues linting without that rule.
func FileLevel(class error) bool {
	return errors.Is(class, File) || errors.Is(class, Parse) || errors.Is(class, Internal)
}
