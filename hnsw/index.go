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
	"sort"

	"github.com/vecsim-go/vecsim/internal/distance"
)

// StatusCode is the error/status code returned by query operations (§6).
type StatusCode int

const (
	// OK indicates the query ran to completion.
	OK StatusCode = iota
	// TimedOut indicates the caller's timeout predicate fired mid-search;
	// the accompanying result is a well-formed partial result (§7).
	TimedOut
)

// Order selects how a batch iterator's emitted page is sorted (§4.9).
type Order int

const (
	// OrderByScore sorts a page by ascending distance.
	OrderByScore Order = iota
	// OrderByLabel sorts a page by ascending label id.
	OrderByLabel
)

// Result is a single (label, distance) pair returned by a query (§6), plus
// the normalized ranking Score supplement (SPEC_FULL §4).
type Result struct {
	Label    int64
	Distance float32
	Score    float32
}

// Index is the public C5 facade: insertion, deletion, top-K/range search,
// the batch iterator, and observability, composed from Graph's lower-level
// pieces. The tiered controller (C7) instead drives Graph directly, so it
// can interleave flat-buffer and HNSW state transitions.
type Index struct {
	*Graph
}

// New constructs an empty HNSW index per cfg.
func New(cfg Config) (*Index, error) {
	g, err := NewGraph(cfg)
	if err != nil {
		return nil, err
	}
	return &Index{Graph: g}, nil
}

// Add implements C5.insert (§4.6): insert vector under label and return
// its freshly allocated id.
func (idx *Index) Add(vector []float32, label int64) (int32, error) {
	return idx.Insert(vector, label)
}

// Delete implements the "in place" mode of §4.8: mark every id bound to
// label as deleted, repair their neighborhoods synchronously, and
// swap-with-last reclaim each id immediately (no jobs enqueued). Returns
// the number of ids removed; deleting an absent label is a no-op, not an
// error (§7).
func (idx *Index) Delete(label int64) int {
	ids := idx.Labels.Unbind(label)
	// Highest id first: swap-with-last only ever moves the current last id,
	// which is then never one of this label's ids still waiting for removal.
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	removed := 0
	for _, id := range ids {
		targets := idx.MarkDeletedInternal(id)
		for _, t := range targets {
			idx.RepairNodeConnections(t.ID, t.Level)
		}
		idx.RemoveAndSwapDeletedElement(id)
		removed++
	}
	return removed
}

// TopK implements the Top-K query of §4.9: greedy-descent to layer 1
// (tolerating tombstoned intermediates), layer-0 beam search with width
// max(ef, k), tombstones filtered from the result.
func (idx *Index) TopK(query []float32, k int, timedOut func() bool) ([]Result, StatusCode, error) {
	if k <= 0 {
		return nil, OK, ErrInvalidK
	}
	if len(query) != idx.space.Dim {
		return nil, OK, ErrDimensionMismatch
	}

	idx.dataMu.RLock()
	entry := idx.entryPoint
	maxLevel := idx.maxLevel
	idx.dataMu.RUnlock()
	if entry == noEntry {
		return nil, OK, nil
	}

	q := query
	if idx.space.RequiresNormalization() {
		q = distance.NormalizeCopy(query)
	}

	ef := idx.efRuntime
	if k > ef {
		ef = k
	}

	current := idx.greedyDescent(q, int32(entry), maxLevel, 0, false)

	tags := idx.Visited.Acquire()
	defer idx.Visited.Release(tags)

	results, expired := idx.searchLayer(0, q, []int32{current}, ef, true, tags, timedOut)
	if len(results) > k {
		results = results[:k]
	}

	out := make([]Result, len(results))
	for i, c := range results {
		out[i] = Result{Label: idx.Labels.LabelOf(c.id), Distance: c.dist, Score: distance.NormalizeScore(c.dist)}
	}
	if expired {
		return out, TimedOut, nil
	}
	return out, OK, nil
}

// Range implements the range query of §4.9: same descent as TopK, then
// §4.4's range-beam variant with dynamic-range shrinking bounded below by
// radius.
func (idx *Index) Range(query []float32, radius float32, timedOut func() bool) ([]Result, StatusCode, error) {
	if len(query) != idx.space.Dim {
		return nil, OK, ErrDimensionMismatch
	}

	idx.dataMu.RLock()
	entry := idx.entryPoint
	maxLevel := idx.maxLevel
	idx.dataMu.RUnlock()
	if entry == noEntry {
		return nil, OK, nil
	}

	q := query
	if idx.space.RequiresNormalization() {
		q = distance.NormalizeCopy(query)
	}

	current := idx.greedyDescent(q, int32(entry), maxLevel, 0, false)

	tags := idx.Visited.Acquire()
	defer idx.Visited.Release(tags)

	results, expired := idx.rangeSearchLayer(0, q, []int32{current}, radius, idx.epsilon, tags, timedOut)

	out := make([]Result, len(results))
	for i, c := range results {
		out[i] = Result{Label: idx.Labels.LabelOf(c.id), Distance: c.dist, Score: distance.NormalizeScore(c.dist)}
	}
	if expired {
		return out, TimedOut, nil
	}
	return out, OK, nil
}

// DistanceFrom computes the direct metric distance between label's stored
// vector(s) and probe, returning the minimum across ids in MULTI mode.
func (idx *Index) DistanceFrom(label int64, probe []float32) (float32, error) {
	if len(probe) != idx.space.Dim {
		return 0, ErrDimensionMismatch
	}
	ids := idx.Labels.IDs(label)
	if len(ids) == 0 {
		return 0, ErrNotFound
	}
	q := probe
	if idx.space.RequiresNormalization() {
		q = distance.NormalizeCopy(probe)
	}
	best := float32(0)
	for i, id := range ids {
		d := idx.space.Distance(idx.nodes[id].vector, q)
		if i == 0 || d < best {
			best = d
		}
	}
	return best, nil
}

// NewIterator starts a resumable top-K batch iterator over query (§4.9).
func (idx *Index) NewIterator(query []float32) (*BatchIterator, error) {
	if len(query) != idx.space.Dim {
		return nil, ErrDimensionMismatch
	}
	q := query
	if idx.space.RequiresNormalization() {
		q = distance.NormalizeCopy(query)
	}
	return idx.NewBatchIterator(q), nil
}

// Tombstones returns the ids currently marked deleted but not yet
// physically reclaimed, for admin/diagnostic tooling (§4.12).
func (idx *Index) Tombstones() []int32 {
	return idx.TombstoneIDs()
}

// Info reports observability counters (§6).
type Info struct {
	Algorithm        string
	Dim              int
	Metric           int
	M                int
	EfConstruction   int
	EfRuntime        int
	Count            int
	Live             int
	MarkedDeleted    int
	MaxLevel         int
}

// Info returns a snapshot of the index's parameters and current counts.
func (idx *Index) Info() Info {
	idx.dataMu.RLock()
	defer idx.dataMu.RUnlock()
	return Info{
		Algorithm:      "HNSW",
		Dim:            idx.space.Dim,
		Metric:         int(idx.space.Metric),
		M:              idx.m,
		EfConstruction: idx.efConstruction,
		EfRuntime:      idx.efRuntime,
		Count:          len(idx.nodes),
		Live:           len(idx.nodes) - idx.numMarkedDeleted,
		MarkedDeleted:  idx.numMarkedDeleted,
		MaxLevel:       idx.maxLevel,
	}
}
