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

// Package flatindex implements the small append-only brute-force buffer
// (C6): exact linear-scan search over just-inserted vectors, fronted by
// the tiered controller to give write-visible-immediately semantics while
// HNSW insertion and repair happen on background workers.
package flatindex

import (
	"container/heap"
	"errors"
	"sort"
	"sync"

	"github.com/vecsim-go/vecsim/internal/distance"
)

var (
	// ErrDimensionMismatch is returned when a vector's length disagrees
	// with the buffer's configured dimensionality.
	ErrDimensionMismatch = errors.New("flatindex: vector dimension mismatch")
	// ErrEmptyVector is returned for a zero-length vector.
	ErrEmptyVector = errors.New("flatindex: empty vector")
	// ErrNotFound is returned when a label has no buffered vectors.
	ErrNotFound = errors.New("flatindex: not found")
)

// Result is a single (label, distance) match (§6), plus the normalized
// ranking Score supplement (SPEC_FULL §4).
type Result struct {
	Label    int64
	Distance float32
	Score    float32
}

// Index is the append-only flat buffer of §4.10: vectors in a
// block-allocated array, a label->ids map, exact linear-scan search
// de-duplicated by label (minimum distance kept in MULTI mode), and
// delete-by-label with compact-last-into-hole.
type Index struct {
	mu sync.RWMutex

	space *distance.Space
	multi bool

	vectors [][]float32
	labels  []int64       // id -> label, parallel to vectors
	byLabel map[int64][]int32
}

// New constructs an empty flat buffer for the given metric space and
// SINGLE/MULTI mode.
func New(space *distance.Space, multi bool) *Index {
	return &Index{space: space, multi: multi, byLabel: make(map[int64][]int32)}
}

// Add appends vector under label, returning its buffer-local id. In
// SINGLE mode a prior vector under the same label is evicted first.
func (idx *Index) Add(vector []float32, label int64) (int32, error) {
	if len(vector) == 0 {
		return 0, ErrEmptyVector
	}
	if len(vector) != idx.space.Dim {
		return 0, ErrDimensionMismatch
	}
	v := make([]float32, len(vector))
	copy(v, vector)
	if idx.space.RequiresNormalization() {
		v = distance.Normalize(v)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if !idx.multi {
		if existing := idx.byLabel[label]; len(existing) > 0 {
			idx.deleteIDLocked(existing[0])
		}
	}

	id := int32(len(idx.vectors))
	idx.vectors = append(idx.vectors, v)
	idx.labels = append(idx.labels, label)
	idx.byLabel[label] = append(idx.byLabel[label], id)
	return id, nil
}

// Search implements the exact linear scan of §4.10: top-k by the
// configured metric, de-duplicated by label (minimum distance per label
// in MULTI mode).
func (idx *Index) Search(query []float32, k int) ([]Result, error) {
	if len(query) != idx.space.Dim {
		return nil, ErrDimensionMismatch
	}
	q := query
	if idx.space.RequiresNormalization() {
		q = distance.NormalizeCopy(query)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	best := make(map[int64]float32, len(idx.byLabel))
	for id, v := range idx.vectors {
		label := idx.labels[id]
		d := idx.space.Distance(v, q)
		if prev, ok := best[label]; !ok || d < prev {
			best[label] = d
		}
	}

	h := &resultHeap{}
	for label, d := range best {
		heap.Push(h, Result{Label: label, Distance: d, Score: distance.NormalizeScore(d)})
		if h.Len() > k {
			heap.Pop(h)
		}
	}
	out := make([]Result, h.Len())
	copy(out, *h)
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out, nil
}

// Range returns every label whose stored vector is within radius of
// query, the minimum distance kept per label.
func (idx *Index) Range(query []float32, radius float32) ([]Result, error) {
	if len(query) != idx.space.Dim {
		return nil, ErrDimensionMismatch
	}
	q := query
	if idx.space.RequiresNormalization() {
		q = distance.NormalizeCopy(query)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	best := make(map[int64]float32)
	for id, v := range idx.vectors {
		d := idx.space.Distance(v, q)
		if d > radius {
			continue
		}
		label := idx.labels[id]
		if prev, ok := best[label]; !ok || d < prev {
			best[label] = d
		}
	}
	out := make([]Result, 0, len(best))
	for label, d := range best {
		out = append(out, Result{Label: label, Distance: d, Score: distance.NormalizeScore(d)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out, nil
}

// Delete removes every vector bound to label, compacting the last element
// into each vacated slot to keep the array dense. Returns the removal
// count; deleting an absent label is a no-op.
func (idx *Index) Delete(label int64) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	ids := append([]int32(nil), idx.byLabel[label]...)
	for _, id := range ids {
		idx.deleteIDLocked(id)
	}
	return len(ids)
}

// DeleteID removes a single buffer-local id, used by the tiered controller
// once an InsertJob has promoted it into HNSW.
func (idx *Index) DeleteID(id int32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.deleteIDLocked(id)
}

func (idx *Index) deleteIDLocked(id int32) {
	last := int32(len(idx.vectors) - 1)
	label := idx.labels[id]
	removeID(idx.byLabel, label, id)

	if id != last {
		idx.vectors[id] = idx.vectors[last]
		idx.labels[id] = idx.labels[last]
		replaceID(idx.byLabel, idx.labels[id], last, id)
	}
	idx.vectors = idx.vectors[:last]
	idx.labels = idx.labels[:last]
}

func removeID(byLabel map[int64][]int32, label int64, id int32) {
	ids := byLabel[label]
	for i, x := range ids {
		if x == id {
			byLabel[label] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(byLabel[label]) == 0 {
		delete(byLabel, label)
	}
}

func replaceID(byLabel map[int64][]int32, label int64, oldID, newID int32) {
	ids := byLabel[label]
	for i, x := range ids {
		if x == oldID {
			ids[i] = newID
			return
		}
	}
}

// VectorAt returns a copy of the vector stored at buffer-local id, or nil
// if id is out of range (it may have been reclaimed by an intervening
// delete's compact-last-into-hole). Used by the tiered controller's
// InsertJob to fetch the vector it must promote into HNSW.
func (idx *Index) VectorAt(id int32) []float32 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if id < 0 || int(id) >= len(idx.vectors) {
		return nil
	}
	out := make([]float32, len(idx.vectors[id]))
	copy(out, idx.vectors[id])
	return out
}

// DistanceFrom computes the minimum metric distance between label's
// buffered vector(s) and probe. Returns ErrNotFound if label has no
// vectors currently in the buffer (they may already have been promoted to
// HNSW and deleted here, or never existed).
func (idx *Index) DistanceFrom(label int64, probe []float32) (float32, error) {
	if len(probe) != idx.space.Dim {
		return 0, ErrDimensionMismatch
	}
	q := probe
	if idx.space.RequiresNormalization() {
		q = distance.NormalizeCopy(probe)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()
	ids := idx.byLabel[label]
	if len(ids) == 0 {
		return 0, ErrNotFound
	}
	best := float32(0)
	for i, id := range ids {
		d := idx.space.Distance(idx.vectors[id], q)
		if i == 0 || d < best {
			best = d
		}
	}
	return best, nil
}

// Len reports the number of vectors currently buffered.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors)
}

type resultHeap []Result

func (h resultHeap) Len() int            { return len(h) }
func (h resultHeap) Less(i, j int) bool  { return h[i].Distance > h[j].Distance }
func (h resultHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *resultHeap) Push(x interface{}) { *h = append(*h, x.(Result)) }
func (h *resultHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
