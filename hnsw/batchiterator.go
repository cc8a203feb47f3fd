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

package hnsw

import (
	"container/heap"
	"sort"

	"github.com/vecsim-go/vecsim/internal/distance"
	"github.com/vecsim-go/vecsim/internal/visited"
)

// BatchIterator is the resumable top-K of §4.9: it captures the entry
// point once, keeps a persistent visited tag so it never re-emits a node,
// and keeps both a "spare results" buffer (computed but not yet emitted)
// and a frontier of unexpanded candidates so each Next call continues the
// graph walk rather than restarting it.
type BatchIterator struct {
	g     *Graph
	query []float32

	tags *visited.Tags
	tag  uint32

	frontier      minHeap
	spare         []candidate
	emittedLabels map[int64]struct{}
	depleted      bool
}

// NewBatchIterator starts a resumable top-K search for query, positioned
// at the graph's current entry point.
func (g *Graph) NewBatchIterator(query []float32) *BatchIterator {
	it := &BatchIterator{g: g, query: query}
	it.Reset()
	return it
}

// Reset rewinds the iterator to the entry point and takes a fresh tag,
// per §4.9.
func (it *BatchIterator) Reset() {
	if it.tags != nil {
		it.g.Visited.Release(it.tags)
	}

	it.g.dataMu.RLock()
	entry := it.g.entryPoint
	maxLevel := it.g.maxLevel
	it.g.dataMu.RUnlock()

	it.tags = it.g.Visited.Acquire()
	it.tag = it.tags.FreshTag()
	it.spare = nil
	it.emittedLabels = make(map[int64]struct{})
	it.frontier = nil
	it.depleted = entry == noEntry

	if entry == noEntry {
		return
	}

	current := it.g.greedyDescent(it.query, int32(entry), maxLevel, 0, false)
	it.tags.Visit(int(current), it.tag)
	d := it.g.space.Distance(it.g.nodes[current].vector, it.query)
	it.frontier = minHeap{{dist: d, id: current}}
	heap.Init(&it.frontier)
	if !it.g.nodes[current].deleteMark.Load() {
		it.spare = append(it.spare, candidate{dist: d, id: current})
	}
}

// Close releases the iterator's visited-tag pool lease. Callers MUST call
// Close once done with the iterator (§4.2's pairing rule applies here too).
func (it *BatchIterator) Close() {
	it.g.Visited.Release(it.tags)
}

// HasNext reports whether a subsequent Next call could return results.
func (it *BatchIterator) HasNext() bool {
	return len(it.spare) > 0 || !it.depleted
}

// Next drains the spare heap first, then — if fewer than ef = max(ef_runtime,
// n) candidates are buffered — expands the frontier until ef are buffered or
// the frontier is exhausted, and finally orders the emitted batch by score
// or label id.
func (it *BatchIterator) Next(n int, order Order) ([]Result, StatusCode) {
	if n <= 0 {
		return nil, OK
	}

	ef := it.g.efRuntime
	if n > ef {
		ef = n
	}
	for len(it.spare) < ef && it.frontier.Len() > 0 {
		c := heap.Pop(&it.frontier).(candidate)
		nd := it.g.nodes[c.id]
		nd.mu.Lock()
		neighbors := append([]int32(nil), nd.levels[0].out...)
		nd.mu.Unlock()

		for _, nb := range neighbors {
			if it.tags.IsVisited(int(nb), it.tag) || it.g.nodes[nb].inProcess.Load() {
				continue
			}
			it.tags.Visit(int(nb), it.tag)
			d := it.g.space.Distance(it.g.nodes[nb].vector, it.query)
			heap.Push(&it.frontier, candidate{dist: d, id: nb})
			if !it.g.nodes[nb].deleteMark.Load() {
				it.spare = append(it.spare, candidate{dist: d, id: nb})
			}
		}
		if it.frontier.Len() == 0 {
			it.depleted = true
		}
	}

	sort.Slice(it.spare, func(i, j int) bool { return it.spare[i].dist < it.spare[j].dist })

	out := make([]Result, 0, n)
	remaining := it.spare[:0]
	for _, c := range it.spare {
		if len(out) >= n {
			remaining = append(remaining, c)
			continue
		}
		label := it.g.Labels.LabelOf(c.id)
		if _, done := it.emittedLabels[label]; done {
			continue
		}
		it.emittedLabels[label] = struct{}{}
		out = append(out, Result{Label: label, Distance: c.dist, Score: distance.NormalizeScore(c.dist)})
	}
	it.spare = remaining

	if order == OrderByLabel {
		sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	}
	return out, OK
}
