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
	"math"
	"sort"

	"github.com/vecsim-go/vecsim/internal/visited"
)

// minHeap is a candidate min-heap ordered by ascending distance, the
// traversal frontier of the beam search (§4.4).
type minHeap []candidate

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// maxHeap is the "top results" heap ordered by descending distance, so
// the worst-so-far result is always at the root and can be trimmed
// cheaply once the heap exceeds ef (§4.4).
type maxHeap []candidate

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
func (h maxHeap) max() float32 { return h[0].dist }

// processCandidate implements the C5.beam_step subroutine of §4.4: expand
// current's neighbor list at level, admitting previously-unvisited,
// non-IN_PROCESS neighbors into the traversal frontier and, unless they
// are tombstoned and the caller asked to filter those, into the result
// heap as well.
func (g *Graph) processCandidate(level int, query []float32, tags *visited.Tags, tag uint32, currentID int32, candHeap *minHeap, topHeap *maxHeap, ef int, filterTombstones bool) {
	n := g.nodes[currentID]
	n.mu.Lock()
	neighbors := append([]int32(nil), n.levels[level].out...)
	n.mu.Unlock()

	for _, nb := range neighbors {
		if tags.IsVisited(int(nb), tag) {
			continue
		}
		if g.nodes[nb].inProcess.Load() {
			continue
		}
		tags.Visit(int(nb), tag)

		d := g.space.Distance(g.nodes[nb].vector, query)
		if topHeap.Len() < ef || d < topHeap.max() {
			heap.Push(candHeap, candidate{dist: d, id: nb})
			if !(filterTombstones && g.nodes[nb].deleteMark.Load()) {
				heap.Push(topHeap, candidate{dist: d, id: nb})
				for topHeap.Len() > ef {
					heap.Pop(topHeap)
				}
			}
		}
	}
}

// searchLayer runs the bounded beam search of §4.4 at level, starting from
// entryIDs, returning up to ef results ordered by ascending distance.
// filterTombstones controls whether DELETE_MARK nodes are excluded from
// the returned results (they are always still traversable).
// timedOut may be nil, meaning the search never times out (§5's
// timed_out(ctx) predicate, consulted at each beam-loop iteration).
func (g *Graph) searchLayer(level int, query []float32, entryIDs []int32, ef int, filterTombstones bool, tags *visited.Tags, timedOut func() bool) ([]candidate, bool) {
	tag := tags.FreshTag()
	candHeap := &minHeap{}
	topHeap := &maxHeap{}

	for _, e := range entryIDs {
		d := g.space.Distance(g.nodes[e].vector, query)
		tags.Visit(int(e), tag)
		heap.Push(candHeap, candidate{dist: d, id: e})
		if !(filterTombstones && g.nodes[e].deleteMark.Load()) {
			heap.Push(topHeap, candidate{dist: d, id: e})
		}
	}

	expired := false
	for candHeap.Len() > 0 {
		if timedOut != nil && timedOut() {
			expired = true
			break
		}
		c := heap.Pop(candHeap).(candidate)
		if topHeap.Len() >= ef && c.dist > topHeap.max() {
			break
		}
		g.processCandidate(level, query, tags, tag, c.id, candHeap, topHeap, ef, filterTombstones)
	}

	results := make([]candidate, len(*topHeap))
	copy(results, *topHeap)
	sort.Slice(results, func(i, j int) bool { return results[i].dist < results[j].dist })
	return results, expired
}

// greedyDescent implements C5.greedy (§4.5): from fromID at fromLevel,
// repeatedly move to any strictly closer neighbor at the current level
// until no improvement, then drop a level, stopping once toLevel is
// reached. skipTombstonedCandidates restricts "closer neighbor" choices to
// live, non-IN_PROCESS nodes (the insertion-time behavior); query-time
// descent tolerates tombstoned intermediates by passing false.
func (g *Graph) greedyDescent(query []float32, fromID int32, fromLevel, toLevel int, skipTombstonedCandidates bool) int32 {
	current := fromID
	currentDist := g.space.Distance(g.nodes[current].vector, query)

	for level := fromLevel; level > toLevel; level-- {
		for {
			improved := false
			n := g.nodes[current]
			n.mu.Lock()
			neighbors := append([]int32(nil), n.levels[level].out...)
			n.mu.Unlock()

			for _, nb := range neighbors {
				if skipTombstonedCandidates && (g.nodes[nb].inProcess.Load() || g.nodes[nb].deleteMark.Load()) {
					continue
				}
				d := g.space.Distance(g.nodes[nb].vector, query)
				if d < currentDist {
					current = nb
					currentDist = d
					improved = true
				}
			}
			if !improved {
				break
			}
		}
	}
	return current
}

// dynRange computes the shrinking admission radius of the range-search
// variant (§4.4): max(radius, bestDistance) * (1 + epsilon).
func dynRange(radius, bestDistance float32, epsilon float64) float32 {
	r := radius
	if bestDistance > r {
		r = bestDistance
	}
	return r * float32(1+epsilon)
}

// rangeSearchLayer implements the range-search variant of §4.4 at level:
// a neighbor is admitted into the traversal frontier iff its distance is
// under the dynamically shrinking dyn_range, and into the result set iff
// its distance is within radius outright.
func (g *Graph) rangeSearchLayer(level int, query []float32, entryIDs []int32, radius float32, epsilon float64, tags *visited.Tags, timedOut func() bool) ([]candidate, bool) {
	tag := tags.FreshTag()
	candHeap := &minHeap{}
	var results []candidate
	bestDistance := float32(math.MaxFloat32)

	admit := func(id int32, d float32) {
		if d <= radius && !g.nodes[id].deleteMark.Load() {
			results = append(results, candidate{dist: d, id: id})
		}
	}

	for _, e := range entryIDs {
		d := g.space.Distance(g.nodes[e].vector, query)
		tags.Visit(int(e), tag)
		if d < bestDistance {
			bestDistance = d
		}
		heap.Push(candHeap, candidate{dist: d, id: e})
		admit(e, d)
	}

	expired := false
	for candHeap.Len() > 0 {
		if timedOut != nil && timedOut() {
			expired = true
			break
		}
		c := heap.Pop(candHeap).(candidate)
		if c.dist > dynRange(radius, bestDistance, epsilon) {
			break
		}
		n := g.nodes[c.id]
		n.mu.Lock()
		neighbors := append([]int32(nil), n.levels[level].out...)
		n.mu.Unlock()

		for _, nb := range neighbors {
			if tags.IsVisited(int(nb), tag) || g.nodes[nb].inProcess.Load() {
				continue
			}
			tags.Visit(int(nb), tag)
			d := g.space.Distance(g.nodes[nb].vector, query)
			if d < bestDistance {
				bestDistance = d
			}
			if d < dynRange(radius, bestDistance, epsilon) {
				heap.Push(candHeap, candidate{dist: d, id: nb})
			}
			admit(nb, d)
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].dist < results[j].dist })
	return results, expired
}
