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

import "errors"

var (
	// ErrDimensionMismatch is returned when a vector's length disagrees
	// with the index's configured dimensionality.
	ErrDimensionMismatch = errors.New("vecsim: vector dimension mismatch")
	// ErrEmptyVector is returned for a zero-length vector.
	ErrEmptyVector = errors.New("vecsim: empty vector")
	// ErrInvalidK is returned for a non-positive k in TopK.
	ErrInvalidK = errors.New("vecsim: k must be positive")
	// ErrNotFound is returned when a requested label does not exist.
	ErrNotFound = errors.New("vecsim: not found")
	// ErrClosed is returned by Add, Delete, TopK, Range, DistanceFrom and
	// NewIterator on an Index after Close (Info and Drain still work).
	ErrClosed = errors.New("vecsim: index closed")

	// errTieredUnsupported marks an operation bare-mode-only.
	errTieredUnsupported = errors.New("not supported in tiered mode")
)
