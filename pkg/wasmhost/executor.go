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

// Package wasmhost sandboxes a compiled rule module (C5): load, call_lint,
// unload, with per-instance memory and fuel limits. Executor decouples the
// rest of the plugin host from the concrete sandboxing backend; only the
// native wazero-backed implementation ships in this core.
package wasmhost

import (
	"context"
	"errors"
	"fmt"
)

// GuestManifest is the JSON document a loaded module returns from its own
// get_manifest() export, distinct from the tsuzulint-rule.json file the
// resolver fetched — this one describes the compiled rule itself.
type GuestManifest struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	NodeTypes   []string `json:"node_types,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Loaded pairs a loaded instance's public name with its guest manifest.
type Loaded struct {
	Name     string
	Manifest GuestManifest
}

// ErrTrap distinguishes a sandbox fault (trap, OOB access, fuel exhaustion)
// from ordinary Go errors. Rule is the loaded instance name the fault
// occurred in; callers use errors.As to recover it and keep linting other
// rules.
type ErrTrap struct {
	Rule string
	Err  error
}

func (e *ErrTrap) Error() string {
	return fmt.Sprintf("wasmhost: rule %q trapped: %v", e.Rule, e.Err)
}

func (e *ErrTrap) Unwrap() error { return e.Err }

// ErrFuelExhausted is wrapped into an ErrTrap when a call's fuel budget
// (§4.5: 1e9 instructions/call, emulated here as a wall-clock proxy) runs
// out before the guest returns.
var ErrFuelExhausted = errors.New("fuel exhausted")

// ErrManifestMalformed is returned by Load when get_manifest's bytes don't
// decode as JSON; the module is rejected before it enters the pool.
var ErrManifestMalformed = errors.New("wasmhost: guest manifest is not valid JSON")

// Executor loads and invokes sandboxed rule modules. A second backend
// (e.g. an in-browser interpreter) could satisfy this contract without the
// plugin host knowing; this core ships only the native one.
type Executor interface {
	// Load instantiates wasmBytes, calls get_manifest once, and registers
	// the instance under the manifest's name.
	Load(ctx context.Context, wasmBytes []byte) (*Loaded, error)
	// CallLint invokes name's lint export with a MessagePack-encoded
	// LintRequest and returns the MessagePack-encoded LintResponse bytes.
	CallLint(ctx context.Context, name string, request []byte) ([]byte, error)
	// Unload releases name's instance, returning false if it wasn't loaded.
	Unload(name string) bool
	// UnloadAll releases every loaded instance.
	UnloadAll()
	// LoadedRules lists the currently loaded instance names.
	LoadedRules() []string
	// Close releases the underlying runtime.
	Close(ctx context.Context) error
}
