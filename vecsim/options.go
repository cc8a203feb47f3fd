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

package vecsim

import (
	"github.com/vecsim-go/vecsim/internal/config"
	"github.com/vecsim-go/vecsim/internal/distance"
	"github.com/vecsim-go/vecsim/tiered"
)

// Options collects every construction parameter of §6, following the
// teacher's functional-options shape exactly (options.go's WithX pattern).
type Options struct {
	Dim             int
	Metric          distance.Metric
	Multi           bool
	InitialCapacity int
	BlockSize       int
	M               int
	EfConstruction  int
	EfRuntime       int
	Epsilon         float64
	RandomSeed      int64

	Logger  Logger
	Timeout TimeoutFunc

	// Tiered selects the write-visible-immediately architecture (C7): a
	// flat buffer fronting HNSW, reconciled by a background job pipeline.
	// False builds a bare hnsw.Index with synchronous in-place deletes.
	Tiered  bool
	Workers int
	Queue   tiered.JobQueue
}

// Option mutates an Options in place, the teacher's functional-option
// convention (options.go).
type Option func(*Options)

// WithDim sets the vector dimensionality. Required; New returns
// ErrDimensionMismatch-adjacent hnsw.ErrInvalidDim without it.
func WithDim(dim int) Option { return func(o *Options) { o.Dim = dim } }

// WithMetric selects the similarity metric (§4.1).
func WithMetric(m distance.Metric) Option { return func(o *Options) { o.Metric = m } }

// WithMulti allows more than one vector per label (§3.1).
func WithMulti(multi bool) Option { return func(o *Options) { o.Multi = multi } }

// WithInitialCapacity preallocates node storage for the given element count.
func WithInitialCapacity(n int) Option { return func(o *Options) { o.InitialCapacity = n } }

// WithBlockSize records the allocation block size in the HNSW config. Node
// storage is one growable slice; it is not allocated in blocks of this size.
func WithBlockSize(n int) Option { return func(o *Options) { o.BlockSize = n } }

// WithM sets the HNSW degree parameter M (§3.3).
func WithM(m int) Option { return func(o *Options) { o.M = m } }

// WithEfConstruction sets the construction-time beam width.
func WithEfConstruction(ef int) Option { return func(o *Options) { o.EfConstruction = ef } }

// WithEfRuntime sets the default query-time beam width.
func WithEfRuntime(ef int) Option { return func(o *Options) { o.EfRuntime = ef } }

// WithEpsilon sets the range-query dynamic-range slack factor (§4.4).
func WithEpsilon(eps float64) Option { return func(o *Options) { o.Epsilon = eps } }

// WithRandomSeed fixes the level-assignment RNG seed, for reproducible
// tests and fixtures.
func WithRandomSeed(seed int64) Option { return func(o *Options) { o.RandomSeed = seed } }

// WithLogger installs a caller-supplied Logger (§2.2).
func WithLogger(l Logger) Option { return func(o *Options) { o.Logger = l } }

// WithTimeout installs the timed_out(ctx) predicate consulted by beam
// search (§5).
func WithTimeout(fn TimeoutFunc) Option { return func(o *Options) { o.Timeout = fn } }

// WithTiered selects the tiered flat-buffer-plus-HNSW architecture (C7/C8)
// over a bare HNSW index.
func WithTiered(workers int) Option {
	return func(o *Options) { o.Tiered = true; o.Workers = workers }
}

// WithJobQueue supplies a caller-provided JobQueue for the tiered
// architecture, overriding WithTiered's worker-count default pool.
func WithJobQueue(q tiered.JobQueue) Option {
	return func(o *Options) { o.Tiered = true; o.Queue = q }
}

func defaultOptions() Options {
	return Options{Logger: noopLogger{}}
}

// FromConfigFile turns a loaded config.File into the equivalent Option
// slice, so vecsimctl and test fixtures can build an Index from YAML
// (§2.3) without hand-writing a WithX chain.
func FromConfigFile(f config.File) ([]Option, error) {
	metric, err := f.MetricValue()
	if err != nil {
		return nil, err
	}
	opts := []Option{
		WithDim(f.Dim),
		WithMetric(distance.Metric(metric)),
		WithMulti(f.Multi),
		WithInitialCapacity(f.InitialCapacity),
		WithBlockSize(f.BlockSize),
		WithM(f.M),
		WithEfConstruction(f.EfConstruction),
		WithEfRuntime(f.EfRuntime),
		WithEpsilon(f.Epsilon),
		WithRandomSeed(f.RandomSeed),
	}
	if f.Tiered {
		opts = append(opts, WithTiered(f.Workers))
	}
	return opts, nil
}
