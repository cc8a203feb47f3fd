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
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vecsim-go/vecsim/internal/distance"
)

func testConfig(dim int) Config {
	return Config{Dim: dim, Metric: distance.L2, M: 8, EfConstruction: 64, EfRuntime: 32, RandomSeed: 1}
}

func vec(xs ...float32) []float32 { return xs }

func TestNewGraphValidatesConfig(t *testing.T) {
	_, err := NewGraph(Config{Dim: 0, M: 8})
	require.ErrorIs(t, err, ErrInvalidDim)

	_, err = NewGraph(Config{Dim: 4, M: 1})
	require.ErrorIs(t, err, ErrInvalidM)
}

func TestNewGraphAppliesDefaults(t *testing.T) {
	g, err := NewGraph(Config{Dim: 4, Metric: distance.L2})
	require.NoError(t, err)
	assert.Equal(t, 16, g.m)
	assert.Equal(t, 32, g.mMax0)
	assert.Equal(t, 200, g.efConstruction)
	assert.Equal(t, 50, g.efRuntime)
}

func TestInsertFirstNodeBecomesEntryPoint(t *testing.T) {
	g, err := NewGraph(testConfig(2))
	require.NoError(t, err)

	id, err := g.Insert(vec(1, 1), 100)
	require.NoError(t, err)
	assert.Equal(t, int32(0), id)
	assert.Equal(t, 1, g.Len())
	assert.Equal(t, int64(100), g.Labels.LabelOf(id))
}

func TestInsertAndTopKFindsNearest(t *testing.T) {
	g, err := NewGraph(testConfig(2))
	require.NoError(t, err)
	idx := &Index{Graph: g}

	points := map[int64][]float32{
		1: {0, 0},
		2: {10, 10},
		3: {0.5, 0.5},
		4: {20, 20},
	}
	for label, v := range points {
		_, err := idx.Add(v, label)
		require.NoError(t, err)
	}

	results, status, err := idx.TopK([]float32{0, 0}, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, OK, status)
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].Label)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestTopKRejectsBadInput(t *testing.T) {
	g, err := NewGraph(testConfig(2))
	require.NoError(t, err)
	idx := &Index{Graph: g}

	_, _, err = idx.TopK([]float32{0, 0}, 0, nil)
	require.ErrorIs(t, err, ErrInvalidK)

	_, _, err = idx.TopK([]float32{0, 0, 0}, 1, nil)
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestTopKOnEmptyGraph(t *testing.T) {
	g, err := NewGraph(testConfig(2))
	require.NoError(t, err)
	idx := &Index{Graph: g}

	results, status, err := idx.TopK([]float32{0, 0}, 5, nil)
	require.NoError(t, err)
	assert.Equal(t, OK, status)
	assert.Empty(t, results)
}

func TestRangeFindsWithinRadius(t *testing.T) {
	g, err := NewGraph(testConfig(2))
	require.NoError(t, err)
	idx := &Index{Graph: g}

	_, _ = idx.Add(vec(0, 0), 1)
	_, _ = idx.Add(vec(1, 0), 2)
	_, _ = idx.Add(vec(100, 100), 3)

	results, status, err := idx.Range([]float32{0, 0}, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, OK, status)
	labels := make(map[int64]bool)
	for _, r := range results {
		labels[r.Label] = true
	}
	assert.True(t, labels[1])
	assert.True(t, labels[2])
	assert.False(t, labels[3])
}

func TestDeleteRemovesLabelAndReclaimsID(t *testing.T) {
	g, err := NewGraph(testConfig(2))
	require.NoError(t, err)
	idx := &Index{Graph: g}

	for i := int64(0); i < 10; i++ {
		_, err := idx.Add(vec(float32(i), float32(i)), i)
		require.NoError(t, err)
	}
	before := idx.Count()

	removed := idx.Delete(3)
	assert.Equal(t, 1, removed)
	assert.Equal(t, before-1, idx.Count())
	assert.Equal(t, 0, idx.TombstoneCount())

	results, _, err := idx.TopK(vec(3, 3), 10, nil)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, int64(3), r.Label)
	}
}

func TestDeleteAbsentLabelIsNoop(t *testing.T) {
	g, err := NewGraph(testConfig(2))
	require.NoError(t, err)
	idx := &Index{Graph: g}

	_, _ = idx.Add(vec(0, 0), 1)
	removed := idx.Delete(999)
	assert.Equal(t, 0, removed)
	assert.Equal(t, 1, idx.Len())
}

func TestMarkDeletedInternalTwiceIsNoop(t *testing.T) {
	g, err := NewGraph(testConfig(2))
	require.NoError(t, err)

	id, err := g.StoreNewElement(vec(0, 0), 1)
	require.NoError(t, err)
	g.Connect(id)

	targets := g.MarkDeletedInternal(id)
	_ = targets
	again := g.MarkDeletedInternal(id)
	assert.Nil(t, again)
	assert.Equal(t, 1, g.TombstoneCount())
}

func TestReplaceEntryPointOnDeleteOfEntry(t *testing.T) {
	g, err := NewGraph(testConfig(2))
	require.NoError(t, err)
	idx := &Index{Graph: g}

	for i := int64(0); i < 20; i++ {
		_, err := idx.Add(vec(float32(i), float32(i)), i)
		require.NoError(t, err)
	}

	entry := g.entryPoint
	require.NotEqual(t, noEntry, entry)
	label := g.Labels.LabelOf(int32(entry))
	idx.Delete(label)

	assert.NotEqual(t, noEntry, g.entryPoint)
	assert.NotEqual(t, int32(entry), int32(g.entryPoint))
}

func TestRemoveAndSwapDeletedElementRewritesEdges(t *testing.T) {
	g, err := NewGraph(testConfig(2))
	require.NoError(t, err)
	idx := &Index{Graph: g}

	for i := int64(0); i < 30; i++ {
		_, err := idx.Add(vec(float32(i)*0.1, float32(i)*0.1), i)
		require.NoError(t, err)
	}

	idx.Delete(5)
	idx.Delete(10)

	for i := int64(0); i < 30; i++ {
		if i == 5 || i == 10 {
			continue
		}
		ids := g.Labels.IDs(i)
		require.Len(t, ids, 1, "label %d should still resolve to exactly one id", i)
	}

	results, _, err := idx.TopK(vec(0, 0), 28, nil)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, int64(5), r.Label)
		assert.NotEqual(t, int64(10), r.Label)
	}
}

func TestConcurrentInsertAndQuery(t *testing.T) {
	g, err := NewGraph(testConfig(4))
	require.NoError(t, err)
	idx := &Index{Graph: g}

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v := []float32{float32(i), float32(i % 7), float32(i % 3), float32(i % 5)}
			_, err := idx.Add(v, int64(i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n, idx.Len())

	var qwg sync.WaitGroup
	for i := 0; i < 32; i++ {
		qwg.Add(1)
		go func() {
			defer qwg.Done()
			_, status, err := idx.TopK([]float32{1, 2, 0, 1}, 5, nil)
			assert.NoError(t, err)
			assert.Equal(t, OK, status)
		}()
	}
	qwg.Wait()
}

func TestConcurrentInsertAndDelete(t *testing.T) {
	g, err := NewGraph(testConfig(3))
	require.NoError(t, err)
	idx := &Index{Graph: g}

	const n = 150
	for i := 0; i < n; i++ {
		_, err := idx.Add([]float32{float32(i), float32(i), float32(i)}, int64(i))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i += 2 {
		wg.Add(1)
		go func(label int64) {
			defer wg.Done()
			idx.Delete(label)
		}(int64(i))
	}
	for i := n; i < n+50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := idx.Add([]float32{float32(i), float32(i), float32(i)}, int64(i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i += 2 {
		assert.Empty(t, g.Labels.IDs(int64(i)), "label %d should be gone", i)
	}
}

func TestLockAscendingDedupesAndOrders(t *testing.T) {
	g, err := NewGraph(testConfig(2))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := g.StoreNewElement(vec(0, 0), int64(i))
		require.NoError(t, err)
		g.Connect(int32(i))
	}
	unlock := g.lockAscending(3, 1, 3, 0)
	unlock()
}

func TestContainsOutAndRemoveOut(t *testing.T) {
	lvl := levelData{out: []int32{1, 2, 3}}
	assert.True(t, containsOut(lvl.out, 2))
	assert.False(t, containsOut(lvl.out, 9))
	removeOut(&lvl, 2)
	assert.Equal(t, []int32{1, 3}, lvl.out)
}

func TestHighVolumeRecallSanity(t *testing.T) {
	g, err := NewGraph(testConfig(8))
	require.NoError(t, err)
	idx := &Index{Graph: g}

	for i := 0; i < 500; i++ {
		v := make([]float32, 8)
		for d := range v {
			v[d] = float32((i*7+d*13)%97) / 97
		}
		_, err := idx.Add(v, int64(i))
		require.NoError(t, err)
	}

	target := make([]float32, 8)
	for d := range target {
		target[d] = float32((42*7+d*13)%97) / 97
	}
	results, _, err := idx.TopK(target, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(42), results[0].Label, fmt.Sprintf("expected exact self-match for label 42, got %d", results[0].Label))
}
