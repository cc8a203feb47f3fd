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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelMapSingleModeReplacesOnRebind(t *testing.T) {
	lm := NewLabelMap(false)
	displaced := lm.Bind(1, 10)
	assert.Nil(t, displaced)
	displaced = lm.Bind(1, 20)
	assert.Equal(t, []int32{10}, displaced)
	assert.Equal(t, []int32{20}, lm.IDs(1))
	assert.Equal(t, int64(1), lm.LabelOf(20))
}

func TestLabelMapMultiModeAccumulates(t *testing.T) {
	lm := NewLabelMap(true)
	lm.Bind(1, 10)
	lm.Bind(1, 11)
	lm.Bind(1, 12)
	assert.Equal(t, []int32{10, 11, 12}, lm.IDs(1))
}

func TestLabelMapUnbind(t *testing.T) {
	lm := NewLabelMap(true)
	lm.Bind(1, 10)
	lm.Bind(1, 11)
	ids := lm.Unbind(1)
	assert.ElementsMatch(t, []int32{10, 11}, ids)
	assert.Empty(t, lm.IDs(1))
}

func TestLabelMapUnbindID(t *testing.T) {
	lm := NewLabelMap(true)
	lm.Bind(1, 10)
	lm.Bind(1, 11)
	lm.UnbindID(1, 10)
	assert.Equal(t, []int32{11}, lm.IDs(1))
	lm.UnbindID(1, 11)
	assert.Empty(t, lm.IDs(1))
}

func TestLabelMapRebindRewritesBothDirections(t *testing.T) {
	lm := NewLabelMap(false)
	lm.Bind(1, 5)
	lm.Rebind(5, 2)
	assert.Equal(t, []int32{2}, lm.IDs(1))
	assert.Equal(t, int64(1), lm.LabelOf(2))
}

func TestLabelMapLabelOfUnknownIDIsZero(t *testing.T) {
	lm := NewLabelMap(false)
	assert.Equal(t, int64(0), lm.LabelOf(7))
}

func TestLabelMapConcurrentBind(t *testing.T) {
	lm := NewLabelMap(true)
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			lm.Bind(int64(i%8), int32(i))
		}(i)
	}
	wg.Wait()

	total := 0
	for label := int64(0); label < 8; label++ {
		total += len(lm.IDs(label))
	}
	require.Equal(t, 64, total)
}
