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

// Package distance is the metric abstraction (C1): dist(a, b, dim) -> scalar,
// total over all inputs, plus the alignment hint a storage allocator can use
// when laying out vector blobs.
package distance

import (
	"errors"
	"math"
)

// Metric selects the similarity metric a Space computes distances under.
type Metric int

const (
	// L2 is squared Euclidean distance. Always non-negative.
	L2 Metric = iota
	// IP is 1 - inner product.
	IP
	// Cosine is 1 - cosine similarity, computed as IP over normalized vectors.
	Cosine
)

// ErrUnknownMetric is returned by NewSpace for an unrecognized Metric value.
var ErrUnknownMetric = errors.New("distance: unknown metric")

// Fn computes the distance between two same-length vectors. Lower is closer.
// Fn is total: it never errors, by contract (§4.1).
type Fn func(a, b []float32) float32

// Space binds a Metric to its distance function and its preferred byte
// alignment for stored vector blobs (§4.1's "alignment" byte).
type Space struct {
	Metric    Metric
	Dim       int
	fn        Fn
	alignment int
}

// NewSpace builds the distance abstraction for the given metric and
// dimensionality. alignment is the number of bytes the storage allocator
// should align vector blobs to; 0 means no preference.
func NewSpace(metric Metric, dim int) (*Space, error) {
	s := &Space{Metric: metric, Dim: dim, alignment: 32}
	switch metric {
	case L2:
		s.fn = l2Squared
	case IP:
		s.fn = innerProductDistance
	case Cosine:
		s.fn = innerProductDistance // operands are normalized at insert/query time
	default:
		return nil, ErrUnknownMetric
	}
	return s, nil
}

// Distance computes dist(a, b) under this Space's metric.
func (s *Space) Distance(a, b []float32) float32 {
	return s.fn(a, b)
}

// Alignment reports the preferred byte alignment for stored blobs.
func (s *Space) Alignment() int { return s.alignment }

// RequiresNormalization reports whether vectors must be L2-normalized
// before being stored or queried (true only for Cosine).
func (s *Space) RequiresNormalization() bool { return s.Metric == Cosine }

// l2Squared computes squared Euclidean distance. Avoids the sqrt: callers
// that need true Euclidean distance take the square root themselves.
func l2Squared(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// innerProductDistance computes 1 - <a,b>.
func innerProductDistance(a, b []float32) float32 {
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return 1 - dot
}

// Normalize scales v to unit L2 norm in place and returns it. A zero vector
// is left unchanged (there is no direction to normalize to).
func Normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range v {
		v[i] /= norm
	}
	return v
}

// NormalizeCopy returns a normalized copy of v, leaving v untouched.
func NormalizeCopy(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return Normalize(out)
}

// NormalizeScore maps a raw metric distance to a bounded [0,1] ranking
// score, 1 being a perfect match, mirroring the teacher's
// Match.NormalizeScore convention (§4, SUPPLEMENTED FEATURES). Distances
// outside [0,1] are clamped rather than allowed to invert the ordering.
func NormalizeScore(d float32) float32 {
	if d < 0 {
		d = 0
	}
	if d > 1 {
		d = 1
	}
	return 1 - d
}
