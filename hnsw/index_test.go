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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vecsim-go/vecsim/internal/distance"
)

func TestIndexInfoReportsCounters(t *testing.T) {
	cfg := testConfig(3)
	g, err := NewGraph(cfg)
	require.NoError(t, err)
	idx := &Index{Graph: g}

	for i := 0; i < 5; i++ {
		_, err := idx.Add(vec(float32(i), float32(i), float32(i)), int64(i))
		require.NoError(t, err)
	}
	idx.Delete(0)

	info := idx.Info()
	assert.Equal(t, "HNSW", info.Algorithm)
	assert.Equal(t, 3, info.Dim)
	assert.Equal(t, 4, info.Count)
	assert.Equal(t, 4, info.Live)
	assert.Equal(t, 0, info.MarkedDeleted)
}

func TestIndexDistanceFromMatchesStoredVector(t *testing.T) {
	g, err := NewGraph(testConfig(2))
	require.NoError(t, err)
	idx := &Index{Graph: g}

	_, err = idx.Add(vec(3, 4), 1)
	require.NoError(t, err)

	d, err := idx.DistanceFrom(1, vec(0, 0))
	require.NoError(t, err)
	assert.InDelta(t, 25.0, d, 1e-5)
}

func TestIndexDistanceFromUnknownLabel(t *testing.T) {
	g, err := NewGraph(testConfig(2))
	require.NoError(t, err)
	idx := &Index{Graph: g}

	_, err = idx.DistanceFrom(99, vec(0, 0))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestIndexMultiModeDistanceFromTakesMinimum(t *testing.T) {
	cfg := testConfig(2)
	cfg.Multi = true
	g, err := NewGraph(cfg)
	require.NoError(t, err)
	idx := &Index{Graph: g}

	_, err = idx.Add(vec(0, 0), 1)
	require.NoError(t, err)
	_, err = idx.Add(vec(10, 10), 1)
	require.NoError(t, err)

	d, err := idx.DistanceFrom(1, vec(0, 0))
	require.NoError(t, err)
	assert.InDelta(t, 0.0, d, 1e-5)
}

func TestIndexTombstonesExposesUnreclaimedIDs(t *testing.T) {
	cfg := testConfig(2)
	cfg.Multi = true
	g, err := NewGraph(cfg)
	require.NoError(t, err)
	idx := &Index{Graph: g}

	for i := int64(0); i < 5; i++ {
		_, err := idx.Add(vec(float32(i), float32(i)), i)
		require.NoError(t, err)
	}
	// MarkDeletedInternal without the swap-reclaim step leaves a tombstone
	// visible so RepairJob consumers can still look it up mid-pipeline.
	id := g.Labels.IDs(2)[0]
	g.MarkDeletedInternal(id)

	assert.Contains(t, idx.Tombstones(), id)
	assert.Equal(t, 1, g.TombstoneCount())
}

func TestCosineMetricNormalizesOnInsertAndQuery(t *testing.T) {
	cfg := Config{Dim: 3, Metric: distance.Cosine, M: 8, EfConstruction: 32, EfRuntime: 16, RandomSeed: 3}
	g, err := NewGraph(cfg)
	require.NoError(t, err)
	idx := &Index{Graph: g}

	_, err = idx.Add(vec(3, 4, 0), 1)
	require.NoError(t, err)
	_, err = idx.Add(vec(0, 0, 5), 2)
	require.NoError(t, err)

	results, _, err := idx.TopK(vec(6, 8, 0), 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(1), results[0].Label)
}
