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

// Package vecsim is the public facade (§6): a single Index type that,
// depending on Options, is backed either by a bare hnsw.Index or by a
// tiered.Controller (flat buffer + HNSW + background job pipeline),
// exposing the same Add/Delete/TopK/Range/DistanceFrom/Info surface either
// way; NewIterator (the batch iterator) works in bare mode only.
package vecsim

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/vecsim-go/vecsim/hnsw"
	"github.com/vecsim-go/vecsim/tiered"
)

// StatusCode mirrors hnsw.StatusCode at the facade boundary.
type StatusCode = hnsw.StatusCode

const (
	// OK indicates the query ran to completion.
	OK = hnsw.OK
	// TimedOut indicates the Timeout predicate fired mid-search.
	TimedOut = hnsw.TimedOut
)

// Order mirrors hnsw.Order at the facade boundary.
type Order = hnsw.Order

const (
	// OrderByScore sorts a batch page by ascending distance.
	OrderByScore = hnsw.OrderByScore
	// OrderByLabel sorts a batch page by ascending label id.
	OrderByLabel = hnsw.OrderByLabel
)

// Result is a single (label, distance, score) match (§6).
type Result struct {
	Label    int64
	Distance float32
	Score    float32
}

// Index is the top-level similarity index (§6's external interface),
// composed from either a bare hnsw.Index or a tiered.Controller.
type Index struct {
	opts   Options
	bare   *hnsw.Index
	tiered *tiered.Controller
	closed atomic.Bool
}

// New constructs an Index per the given Options (§6 construction
// parameters). No partially-built index is ever returned on error (§7).
func New(options ...Option) (*Index, error) {
	o := defaultOptions()
	for _, opt := range options {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = noopLogger{}
	}

	cfg := hnsw.Config{
		Dim:             o.Dim,
		Metric:          o.Metric,
		Multi:           o.Multi,
		M:               o.M,
		EfConstruction:  o.EfConstruction,
		EfRuntime:       o.EfRuntime,
		Epsilon:         o.Epsilon,
		BlockSize:       o.BlockSize,
		InitialCapacity: o.InitialCapacity,
		RandomSeed:      o.RandomSeed,
	}

	idx := &Index{opts: o}
	if o.Tiered {
		queue := o.Queue
		if queue == nil {
			queue = tiered.NewWorkerPool(o.Workers)
		}
		c, err := tiered.NewController(cfg, queue)
		if err != nil {
			return nil, fmt.Errorf("vecsim: new: %w", err)
		}
		idx.tiered = c
	} else {
		h, err := hnsw.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("vecsim: new: %w", err)
		}
		idx.bare = h
	}

	o.Logger.Info("vecsim: index opened", "dim", o.Dim, "tiered", o.Tiered)
	return idx, nil
}

// Add inserts vector under label. In tiered mode the vector goes into the
// flat buffer and its promotion into HNSW happens asynchronously.
func (idx *Index) Add(vector []float32, label int64) error {
	if idx.closed.Load() {
		return ErrClosed
	}
	if idx.tiered != nil {
		return idx.tiered.Add(vector, label)
	}
	_, err := idx.bare.Add(vector, label)
	return err
}

// Delete removes every vector bound to label. Deleting an absent label is
// a no-op, not an error (§7).
func (idx *Index) Delete(label int64) (int, error) {
	if idx.closed.Load() {
		return 0, ErrClosed
	}
	if idx.tiered != nil {
		return idx.tiered.Delete(label), nil
	}
	return idx.bare.Delete(label), nil
}

// TopK runs a top-K query (§4.9), consulting Options.Timeout (if set) at
// each beam-search iteration.
func (idx *Index) TopK(query []float32, k int) ([]Result, StatusCode, error) {
	if idx.closed.Load() {
		return nil, OK, ErrClosed
	}
	if k <= 0 {
		return nil, OK, ErrInvalidK
	}
	timedOut := func() bool { return false }
	if idx.opts.Timeout != nil {
		timedOut = idx.opts.Timeout
	}
	if idx.tiered != nil {
		results, status, err := idx.tiered.Query(query, k, timedOut)
		return fromTieredResults(results), status, err
	}
	results, status, err := idx.bare.TopK(query, k, timedOut)
	return fromHNSWResults(results), status, err
}

// Range runs a radius query (§4.9/§4.4).
func (idx *Index) Range(query []float32, radius float32) ([]Result, StatusCode, error) {
	if idx.closed.Load() {
		return nil, OK, ErrClosed
	}
	timedOut := func() bool { return false }
	if idx.opts.Timeout != nil {
		timedOut = idx.opts.Timeout
	}
	if idx.tiered != nil {
		results, status, err := idx.tiered.Range(query, radius, timedOut)
		return fromTieredResults(results), status, err
	}
	results, status, err := idx.bare.Range(query, radius, timedOut)
	return fromHNSWResults(results), status, err
}

// DistanceFrom computes the direct metric distance between label's stored
// vector(s) and probe (SPEC_FULL §4 supplement).
func (idx *Index) DistanceFrom(label int64, probe []float32) (float32, error) {
	if idx.closed.Load() {
		return 0, ErrClosed
	}
	if idx.tiered != nil {
		return idx.tiered.DistanceFrom(label, probe)
	}
	return idx.bare.DistanceFrom(label, probe)
}

// NewIterator starts a resumable top-K batch iterator (§4.9). Only
// supported in bare mode: the tiered architecture's flat buffer is
// write-visible-immediately but has no stable entry point to resume a
// walk from, so batch iteration runs over the HNSW tier alone.
func (idx *Index) NewIterator(query []float32) (*hnsw.BatchIterator, error) {
	if idx.closed.Load() {
		return nil, ErrClosed
	}
	if idx.tiered != nil {
		return nil, fmt.Errorf("vecsim: batch iterator: %w", errTieredUnsupported)
	}
	return idx.bare.NewIterator(query)
}

// Info reports observability counters (§6); the CLI formats them for
// humans via go-humanize.
type Info struct {
	Algorithm      string
	Dim            int
	Metric         int
	M              int
	EfConstruction int
	EfRuntime      int
	Count          int
	Live           int
	MarkedDeleted  int
	MaxLevel       int
	Tiered         bool
	MemoryBytes    int64
	PendingWrites  int
}

// Info returns a snapshot of the index's parameters and current counts.
func (idx *Index) Info() Info {
	if idx.tiered != nil {
		// Only the controller's own counters are reported in tiered mode;
		// the HNSW tier's parameters and counts are left zero.
		return Info{
			Algorithm:     "HNSW+flat",
			Tiered:        true,
			MemoryBytes:   idx.tiered.MemoryUsage(),
			PendingWrites: idx.tiered.PendingWrites(),
		}
	}
	i := idx.bare.Info()
	return Info{
		Algorithm:      i.Algorithm,
		Dim:            i.Dim,
		Metric:         i.Metric,
		M:              i.M,
		EfConstruction: i.EfConstruction,
		EfRuntime:      i.EfRuntime,
		Count:          i.Count,
		Live:           i.Live,
		MarkedDeleted:  i.MarkedDeleted,
		MaxLevel:       i.MaxLevel,
	}
}

// Close marks the index unusable for further operations. Background jobs
// already in flight for a tiered Index are allowed to drain via
// Drain(ctx) before the process exits; Close itself does not block.
func (idx *Index) Close() error {
	idx.closed.Store(true)
	idx.opts.Logger.Info("vecsim: index closed")
	return nil
}

// Drain waits for a tiered Index's background job pipeline to empty, or
// ctx to be done. A no-op for a bare Index, which has no jobs.
func (idx *Index) Drain(ctx context.Context) error {
	if idx.tiered == nil {
		return nil
	}
	return idx.tiered.Drain(ctx)
}

func fromHNSWResults(in []hnsw.Result) []Result {
	out := make([]Result, len(in))
	for i, r := range in {
		out[i] = Result{Label: r.Label, Distance: r.Distance, Score: r.Score}
	}
	return out
}

func fromTieredResults(in []tiered.Result) []Result {
	out := make([]Result, len(in))
	for i, r := range in {
		out[i] = Result{Label: r.Label, Distance: r.Distance, Score: r.Score}
	}
	return out
}
