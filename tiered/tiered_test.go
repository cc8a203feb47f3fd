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

package tiered

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vecsim-go/vecsim/hnsw"
	"github.com/vecsim-go/vecsim/internal/distance"
)

func newController(t *testing.T, workers int) *Controller {
	t.Helper()
	cfg := hnsw.Config{Dim: 2, Metric: distance.L2, M: 8, EfConstruction: 32, EfRuntime: 16, RandomSeed: 5}
	c, err := NewController(cfg, NewWorkerPool(workers))
	require.NoError(t, err)
	return c
}

func drain(t *testing.T, c *Controller) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Drain(ctx))
}

func TestAddIsVisibleBeforeDrain(t *testing.T) {
	c := newController(t, 2)
	require.NoError(t, c.Add([]float32{1, 1}, 1))

	results, status, err := c.Query([]float32{1, 1}, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, hnsw.OK, status)
	require.Len(t, results, 1)
	assert.Equal(t, int64(1), results[0].Label)
}

func TestAddPromotesIntoHNSWAfterDrain(t *testing.T) {
	c := newController(t, 2)
	for i := int64(0); i < 20; i++ {
		require.NoError(t, c.Add([]float32{float32(i), float32(i)}, i))
	}
	drain(t, c)

	assert.Equal(t, 0, c.PendingWrites())
	assert.Equal(t, 0, c.flat.Len())
	assert.Equal(t, 20, c.hnsw.Len())

	results, _, err := c.Query([]float32{5, 5}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(5), results[0].Label)
}

func TestPendingWritesTracksInFlightInserts(t *testing.T) {
	c := newController(t, 1)
	require.NoError(t, c.Add([]float32{1, 1}, 1))
	require.NoError(t, c.Add([]float32{2, 2}, 2))
	drain(t, c)
	assert.Equal(t, 0, c.PendingWrites())
}

func TestDeleteReclaimsAcrossBothTiers(t *testing.T) {
	c := newController(t, 2)
	for i := int64(0); i < 15; i++ {
		require.NoError(t, c.Add([]float32{float32(i), float32(i)}, i))
	}
	drain(t, c)

	removed := c.Delete(7)
	assert.Equal(t, 1, removed)
	drain(t, c)

	assert.Equal(t, 0, c.hnsw.TombstoneCount())
	results, _, err := c.Query([]float32{7, 7}, 15, nil)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, int64(7), r.Label)
	}
}

func TestDeleteBeforePromotionDropsFlatEntry(t *testing.T) {
	c := newController(t, 1)
	require.NoError(t, c.Add([]float32{1, 1}, 1))
	removed := c.Delete(1)
	assert.Equal(t, 1, removed, "the buffered (or just promoted) vector counts as one removal")
	drain(t, c)

	results, _, err := c.Query([]float32{1, 1}, 5, nil)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, int64(1), r.Label)
	}
}

func TestDistanceFromPrefersFlatThenFallsBackToHNSW(t *testing.T) {
	c := newController(t, 1)
	require.NoError(t, c.Add([]float32{3, 4}, 1))

	d, err := c.DistanceFrom(1, []float32{0, 0})
	require.NoError(t, err)
	assert.InDelta(t, 25.0, d, 1e-5)

	drain(t, c)
	d, err = c.DistanceFrom(1, []float32{0, 0})
	require.NoError(t, err)
	assert.InDelta(t, 25.0, d, 1e-5)
}

func TestRangeMergesBothTiers(t *testing.T) {
	c := newController(t, 2)
	require.NoError(t, c.Add([]float32{0, 0}, 1))
	drain(t, c)
	require.NoError(t, c.Add([]float32{1, 0}, 2))

	results, _, err := c.Range([]float32{0, 0}, 2, nil)
	require.NoError(t, err)
	labels := map[int64]bool{}
	for _, r := range results {
		labels[r.Label] = true
	}
	assert.True(t, labels[1])
	assert.True(t, labels[2])
}

func TestMemoryUsageGrowsAfterPromotion(t *testing.T) {
	c := newController(t, 1)
	require.NoError(t, c.Add([]float32{1, 1}, 1))
	drain(t, c)
	assert.Greater(t, c.MemoryUsage(), int64(0))
}

func TestQueryRejectsDimensionMismatch(t *testing.T) {
	c := newController(t, 1)
	_, _, err := c.Query([]float32{1, 1, 1}, 1, nil)
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestControllerGCDropsJobsSilently(t *testing.T) {
	// A job holding only a weak reference must not keep the controller
	// alive or panic when executed after the controller is gone.
	c := newController(t, 1)
	job := &InsertJob{Label: 1, FlatID: 0, controller: c.self}
	c = nil
	runtime.GC()
	runtime.GC()
	assert.NotPanics(t, func() { job.Execute() })
}
