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

// Package hostpool reuses loaded plugin hosts across files within a worker
// (C7): a LIFO stack guarded by a lock, lazily populated by an initializer
// closure that loads the rule set once per slot.
package hostpool

import "sync"

// Initializer builds a fresh, fully rule-loaded *pluginhost.Host for a new
// pool slot. It is generic over the host type so tests can pool a fake.
type Initializer[H any] func() (H, error)

// Pool is a LIFO stack of lazily-initialized hosts.
type Pool[H any] struct {
	init Initializer[H]

	mu    sync.Mutex
	stack []H
	made  int
}

// New returns a Pool whose slots are built on demand by init.
func New[H any](init Initializer[H]) *Pool[H] {
	return &Pool[H]{init: init}
}

// Handle is a scoped acquisition; callers must call Release exactly once,
// typically via defer immediately after Acquire.
type Handle[H any] struct {
	pool     *Pool[H]
	host     H
	released bool
}

// Host returns the acquired host.
func (h *Handle[H]) Host() H { return h.host }

// Release returns the host to the pool — unless the calling goroutine is
// unwinding from a panic, in which case the host is discarded (it may be
// in an inconsistent mid-call state) and the panic continues propagating.
// Call via defer immediately after Acquire so recover observes an
// in-flight panic correctly.
func (h *Handle[H]) Release() {
	if h.released {
		return
	}
	h.released = true
	if r := recover(); r != nil {
		h.pool.discard()
		panic(r)
	}
	h.pool.put(h.host)
}

// Acquire pops a host off the stack, or builds a new one via Initializer
// if the stack is empty.
func (p *Pool[H]) Acquire() (*Handle[H], error) {
	p.mu.Lock()
	if n := len(p.stack); n > 0 {
		host := p.stack[n-1]
		p.stack = p.stack[:n-1]
		p.mu.Unlock()
		return &Handle[H]{pool: p, host: host}, nil
	}
	p.mu.Unlock()

	host, err := p.init()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.made++
	p.mu.Unlock()
	return &Handle[H]{pool: p, host: host}, nil
}

func (p *Pool[H]) put(host H) {
	p.mu.Lock()
	p.stack = append(p.stack, host)
	p.mu.Unlock()
}

// Put returns a host to the pool outside the normal Acquire/Release flow —
// for a caller that built or reclaimed a host itself (e.g. after mutating
// every idle host drained via Drain).
func (p *Pool[H]) Put(host H) { p.put(host) }

// Drain empties the idle stack and returns its contents, leaving Made
// unchanged (the hosts still exist; they're just no longer parked). Used
// to propagate a dynamically loaded rule into every currently-idle host
// before they're handed back with Put.
func (p *Pool[H]) Drain() []H {
	p.mu.Lock()
	defer p.mu.Unlock()
	drained := p.stack
	p.stack = nil
	return drained
}

func (p *Pool[H]) discard() {
	p.mu.Lock()
	p.made--
	p.mu.Unlock()
}

// Depth reports how many idle hosts currently sit in the stack.
func (p *Pool[H]) Depth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.stack)
}

// Made reports how many hosts have been built (and not discarded) across
// the pool's lifetime — idle plus currently-acquired.
func (p *Pool[H]) Made() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.made
}
