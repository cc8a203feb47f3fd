// Copyright (c) 2024 LevelGraph Go Contributors
//
// Permission is hereby granted, free of charge, to any person
// obtaining a copy of this software and associated documentation
// files (the "Software"), to deal in the Software without
// restriction, including without limitation the rights to use,
// copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the
// Software is furnished to do so, subject to the following
// conditions:
//
// The above copyright notice and this permission notice shall be
// included in all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES
// OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
// NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT
// HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
// WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.

// Package visited implements the per-search visited-tag pool (C2): reusable
// tag arrays over the node id space, each with a monotonic fresh-tag counter,
// lent to searches and returned when the search is done.
package visited

import "sync"

// Tags is one reusable scratch array: tags[id] == current marks id as
// visited in the search that currently holds this Tags.
type Tags struct {
	tags    []uint32
	current uint32
}

// newTags allocates a Tags sized for capacity ids.
func newTags(capacity int) *Tags {
	return &Tags{tags: make([]uint32, capacity)}
}

// FreshTag advances the monotonic counter and returns the new value to tag
// visited ids with for this search pass. When the counter would wrap it
// zeroes the backing array and restarts at 1, so stale tags from before the
// wrap never alias the new counter value.
func (t *Tags) FreshTag() uint32 {
	if t.current == ^uint32(0) {
		for i := range t.tags {
			t.tags[i] = 0
		}
		t.current = 0
	}
	t.current++
	return t.current
}

// Visit marks id as visited under tag.
func (t *Tags) Visit(id int, tag uint32) {
	t.ensure(id)
	t.tags[id] = tag
}

// IsVisited reports whether id carries tag.
func (t *Tags) IsVisited(id int, tag uint32) bool {
	if id < 0 || id >= len(t.tags) {
		return false
	}
	return t.tags[id] == tag
}

// ensure grows the backing array so id is addressable. Growth is append-only;
// it never shrinks, matching the pool's role as reusable scratch space.
func (t *Tags) ensure(id int) {
	if id < len(t.tags) {
		return
	}
	grown := make([]uint32, id+1)
	copy(grown, t.tags)
	t.tags = grown
}

// Pool hands out Tags scratch buffers to concurrent searches, sized to at
// least the index's current id-space capacity. Acquire/Release are O(1)
// under a single mutex (§4.2); the pool grows (never shrinks) to the peak
// number of concurrent searches observed.
type Pool struct {
	mu       sync.Mutex
	free     []*Tags
	capacity int
}

// NewPool creates a pool whose Tags arrays are pre-sized to capacity.
func NewPool(capacity int) *Pool {
	return &Pool{capacity: capacity}
}

// Resize grows the capacity new Tags (and all currently idle ones) will be
// sized to; called by the owning index under its exclusive index-data lock
// each time a new id is allocated.
func (p *Pool) Resize(capacity int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if capacity <= p.capacity {
		return
	}
	p.capacity = capacity
	for _, t := range p.free {
		t.ensure(capacity - 1)
	}
}

// Acquire lends out a Tags scratch buffer. Callers MUST pair every Acquire
// with a Release on every exit path, including panics (use defer).
func (p *Pool) Acquire() *Tags {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.free)
	if n == 0 {
		return newTags(p.capacity)
	}
	t := p.free[n-1]
	p.free = p.free[:n-1]
	return t
}

// Release returns a Tags scratch buffer to the pool for reuse.
func (p *Pool) Release(t *Tags) {
	if t == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, t)
}
