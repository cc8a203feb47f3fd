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

// Package tiered implements the write-visible-immediately tiered index
// (C7): an append-only flatindex.Index buffer fronting an hnsw.Index,
// reconciled by a background job pipeline (C8) so inserts and deletes
// return as soon as the flat buffer reflects them, with promotion into
// HNSW and neighborhood repair happening asynchronously.
package tiered

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vecsim-go/vecsim/flatindex"
	"github.com/vecsim-go/vecsim/hnsw"
	"github.com/vecsim-go/vecsim/internal/distance"
)

// ErrDimensionMismatch is returned when a vector's length disagrees with
// the controller's configured dimensionality.
var ErrDimensionMismatch = errors.New("tiered: vector dimension mismatch")

// Result is a single (label, distance) match merged across both tiers,
// plus the normalized ranking Score supplement (SPEC_FULL §4).
type Result struct {
	Label    int64
	Distance float32
	Score    float32
}

// JobQueue accepts background Jobs for asynchronous execution (C8). The
// tiered Controller never blocks an Add/Delete call on a Job's completion;
// it only ever waits on a JobQueue in Drain, for graceful shutdown and
// tests.
type JobQueue interface {
	Submit(Job)
	// Drain blocks until every submitted job has been executed, or ctx is
	// done. Tests and graceful shutdown use this; request-serving code
	// paths never do.
	Drain(ctx context.Context) error
}

// errgroupQueue is the default JobQueue: a fixed pool of worker goroutines,
// started through a golang.org/x/sync/errgroup Group, draining a buffered
// channel. Drain waits on a WaitGroup of submitted jobs; the workers are
// never stopped, since nothing closes the channel.
type errgroupQueue struct {
	jobs chan Job
	g    *errgroup.Group
	wg   sync.WaitGroup
}

// NewWorkerPool starts a JobQueue backed by workers goroutines. The workers
// keep running after Drain returns, so jobs can still be submitted.
func NewWorkerPool(workers int) JobQueue {
	if workers <= 0 {
		workers = 1
	}
	q := &errgroupQueue{jobs: make(chan Job, 1024), g: &errgroup.Group{}}
	for i := 0; i < workers; i++ {
		q.g.Go(func() error {
			for job := range q.jobs {
				job.Execute()
				q.wg.Done()
			}
			return nil
		})
	}
	return q
}

// Submit enqueues job for the next free worker. Submit never blocks on
// job execution; it only blocks if the buffered channel is momentarily
// full, applying natural backpressure to callers outrunning the workers.
func (q *errgroupQueue) Submit(job Job) {
	q.wg.Add(1)
	q.jobs <- job
}

// Drain waits for every submitted job to finish executing, or ctx to be
// done, whichever comes first.
func (q *errgroupQueue) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Controller is the tiered index (C7): a flat buffer giving immediate
// write visibility, an HNSW graph giving sublinear query cost at scale,
// and the bookkeeping needed to reconcile the two asynchronously.
type Controller struct {
	flat *flatindex.Index
	hnsw *hnsw.Index
	dim  int
	self weak.Pointer[Controller]

	queue JobQueue

	mu             sync.Mutex
	pendingInserts map[int64][]*InsertJob
	pendingRepairs map[int32]int
	// pendingFlatIDs mirrors the set of flat-buffer ids whose InsertJob has
	// been submitted but not yet executed, a diagnostic of how many writes
	// are in flight behind the async promotion pipeline (§4.11).
	pendingFlatIDs *roaring.Bitmap
	memUsage       atomic.Int64
}

// NewController builds a tiered index over a freshly constructed HNSW
// graph (cfg) and flat buffer, submitting background jobs to queue. Pass
// nil for queue to get a single-worker default pool.
func NewController(cfg hnsw.Config, queue JobQueue) (*Controller, error) {
	idx, err := hnsw.New(cfg)
	if err != nil {
		return nil, err
	}
	if queue == nil {
		queue = NewWorkerPool(1)
	}
	c := &Controller{
		hnsw:           idx,
		flat:           flatindex.New(idx.Space(), cfg.Multi),
		dim:            cfg.Dim,
		queue:          queue,
		pendingInserts: make(map[int64][]*InsertJob),
		pendingRepairs: make(map[int32]int),
		pendingFlatIDs: roaring.New(),
	}
	c.self = weak.Make(c)
	return c, nil
}

// Add writes vector under label into the flat buffer (visible to Query
// immediately) and enqueues an InsertJob to promote it into HNSW in the
// background.
func (c *Controller) Add(vector []float32, label int64) error {
	if len(vector) != c.dim {
		return ErrDimensionMismatch
	}
	flatID, err := c.flat.Add(vector, label)
	if err != nil {
		return err
	}
	job := &InsertJob{Label: label, FlatID: flatID, TraceID: uuid.New(), controller: c.self}

	c.mu.Lock()
	c.pendingInserts[label] = append(c.pendingInserts[label], job)
	c.pendingFlatIDs.Add(uint32(flatID))
	c.mu.Unlock()

	c.queue.Submit(job)
	return nil
}

// removePendingInsert drops job from label's pending-insert bookkeeping
// once it has executed (successfully or not).
func (c *Controller) removePendingInsert(label int64, job *InsertJob) {
	c.mu.Lock()
	defer c.mu.Unlock()
	jobs := c.pendingInserts[label]
	for i, j := range jobs {
		if j == job {
			c.pendingInserts[label] = append(jobs[:i], jobs[i+1:]...)
			break
		}
	}
	if len(c.pendingInserts[label]) == 0 {
		delete(c.pendingInserts, label)
	}
	c.pendingFlatIDs.Remove(uint32(job.FlatID))
}

// PendingWrites reports how many Add calls have a promotion InsertJob
// still in flight, read off the roaring bitmap instead of re-deriving it
// from pendingInserts' per-label slices.
func (c *Controller) PendingWrites() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int(c.pendingFlatIDs.GetCardinality())
}

// Delete removes every vector bound to label from both tiers: the flat
// buffer synchronously, and HNSW by marking its ids deleted and enqueuing
// RepairJobs for every affected neighbor, followed by a SwapDeleteJob once
// repairs complete. Returns the flat-tier removal count plus the number
// of HNSW ids tombstoned.
func (c *Controller) Delete(label int64) int {
	removed := c.flat.Delete(label)

	ids := c.hnsw.Labels.Unbind(label)
	for _, id := range ids {
		targets := c.hnsw.MarkDeletedInternal(id)
		removed++
		if len(targets) == 0 {
			c.enqueueSwapDelete(id)
			continue
		}
		c.mu.Lock()
		c.pendingRepairs[id] = len(targets)
		c.mu.Unlock()
		for _, t := range targets {
			job := &RepairJob{NodeAffected: t.ID, Level: t.Level, Tombstone: id, TraceID: uuid.New(), controller: c.self}
			c.queue.Submit(job)
		}
	}
	return removed
}

// enqueueSwapDelete submits the SwapDeleteJob that physically reclaims
// tombstone id, once every repair targeting it has completed (or
// immediately, if it had no live neighbors to repair).
func (c *Controller) enqueueSwapDelete(id int32) {
	job := &SwapDeleteJob{ID: id, TraceID: uuid.New(), controller: c.self}
	c.queue.Submit(job)
}

// Query searches both tiers and merges results by label, keeping the
// minimum distance seen for a label present in both (the HNSW copy is
// necessarily the same vector, modulo async-promotion race windows, so
// either distance is a valid answer; the minimum is the safer choice
// under floating point jitter). timedOut may be nil.
func (c *Controller) Query(query []float32, k int, timedOut func() bool) ([]Result, hnsw.StatusCode, error) {
	if len(query) != c.dim {
		return nil, hnsw.OK, ErrDimensionMismatch
	}
	flatResults, err := c.flat.Search(query, k)
	if err != nil {
		return nil, hnsw.OK, err
	}
	hnswResults, status, err := c.hnsw.TopK(query, k, timedOut)
	if err != nil {
		return nil, hnsw.OK, err
	}

	best := make(map[int64]float32, len(flatResults)+len(hnswResults))
	for _, r := range flatResults {
		best[r.Label] = r.Distance
	}
	for _, r := range hnswResults {
		if prev, ok := best[r.Label]; !ok || r.Distance < prev {
			best[r.Label] = r.Distance
		}
	}

	out := make([]Result, 0, len(best))
	for label, d := range best {
		out = append(out, Result{Label: label, Distance: d, Score: distance.NormalizeScore(d)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > k {
		out = out[:k]
	}
	return out, status, nil
}

// Range merges a radius search across both tiers the same way Query does
// for top-K. timedOut may be nil.
func (c *Controller) Range(query []float32, radius float32, timedOut func() bool) ([]Result, hnsw.StatusCode, error) {
	if len(query) != c.dim {
		return nil, hnsw.OK, ErrDimensionMismatch
	}
	flatResults, err := c.flat.Range(query, radius)
	if err != nil {
		return nil, hnsw.OK, err
	}
	hnswResults, status, err := c.hnsw.Range(query, radius, timedOut)
	if err != nil {
		return nil, hnsw.OK, err
	}

	best := make(map[int64]float32, len(flatResults)+len(hnswResults))
	for _, r := range flatResults {
		best[r.Label] = r.Distance
	}
	for _, r := range hnswResults {
		if prev, ok := best[r.Label]; !ok || r.Distance < prev {
			best[r.Label] = r.Distance
		}
	}

	out := make([]Result, 0, len(best))
	for label, d := range best {
		out = append(out, Result{Label: label, Distance: d, Score: distance.NormalizeScore(d)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out, status, nil
}

// DistanceFrom computes the minimum metric distance between label's stored
// vector(s) and probe, checking the flat buffer first (it holds the
// freshest copy for anything not yet promoted) and falling back to HNSW.
func (c *Controller) DistanceFrom(label int64, probe []float32) (float32, error) {
	if d, err := c.flat.DistanceFrom(label, probe); err == nil {
		return d, nil
	} else if !errors.Is(err, flatindex.ErrNotFound) {
		return 0, err
	}
	return c.hnsw.DistanceFrom(label, probe)
}

// MemoryUsage reports the controller's tracked byte estimate for vectors
// promoted into HNSW so far, reported through vecsim.Info.
func (c *Controller) MemoryUsage() int64 {
	return c.memUsage.Load()
}

// Drain blocks until every job submitted so far has executed, or ctx is
// done. Intended for graceful shutdown and deterministic tests, never for
// request-serving code paths.
func (c *Controller) Drain(ctx context.Context) error {
	return c.queue.Drain(ctx)
}
