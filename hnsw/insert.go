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

// Insert implements C5.insert (§4.6) end to end: it is the composition of
// StoreNewElement and Connect. The tiered controller (C7) instead calls
// the two phases separately, so it can delete the flat-buffer entry for
// the id between id allocation and graph connection.
func (g *Graph) Insert(vector []float32, label int64) (int32, error) {
	id, err := g.StoreNewElement(vector, label)
	if err != nil {
		return 0, err
	}
	g.Connect(id)
	return id, nil
}

// StoreNewElement implements §4.6 step 1: under the exclusive index-data
// lock, allocate the next id, copy (and, for cosine, normalize) the
// vector, draw its level, install IN_PROCESS, and promote it to entry
// point if its level exceeds the current max. Registers label<->id in the
// label map. The returned id is not yet connected to the graph; callers
// MUST follow with Connect(id) on every path, including error recovery.
func (g *Graph) StoreNewElement(vector []float32, label int64) (int32, error) {
	if len(vector) == 0 {
		return 0, ErrEmptyVector
	}
	if len(vector) != g.space.Dim {
		return 0, ErrDimensionMismatch
	}
	v := make([]float32, len(vector))
	copy(v, vector)
	if g.space.RequiresNormalization() {
		v = distance.Normalize(v)
	}

	level := g.randomLevel()

	g.dataMu.Lock()
	id := int32(len(g.nodes))
	n := newNode(v, level)
	n.entryAtInsert = g.entryPoint
	n.maxLevelAtInsert = g.maxLevel
	g.nodes = append(g.nodes, n)
	g.Visited.Resize(len(g.nodes))
	if level > g.maxLevel {
		g.entryPoint = int(id)
		g.maxLevel = level
	}
	g.dataMu.Unlock()

	g.Labels.Bind(label, id)
	return id, nil
}

// Connect implements §4.6 steps 2-4: greedy-descend from the entry point
// snapshotted at allocation time, beam-search and heuristically connect
// at every level from min(new_level, prior_max_level) down to 0, then
// clear IN_PROCESS.
func (g *Graph) Connect(id int32) {
	n := g.nodes[id]
	defer n.inProcess.Store(false)

	if n.entryAtInsert == noEntry {
		return // first node in the graph: nothing to connect to.
	}

	startLevel := n.maxLevelAtInsert
	if n.topLevel < startLevel {
		startLevel = n.topLevel
	}
	current := int32(n.entryAtInsert)
	if n.maxLevelAtInsert > startLevel {
		current = g.greedyDescent(n.vector, current, n.maxLevelAtInsert, startLevel, true)
	}

	tags := g.Visited.Acquire()
	defer g.Visited.Release(tags)

	for level := startLevel; level >= 0; level-- {
		results, _ := g.searchLayer(level, n.vector, []int32{current}, g.efConstruction, true, tags, nil)
		cands := make([]candidate, len(results))
		copy(cands, results)
		accepted, _ := g.selectNeighbors(cands, g.mMax(level))
		if len(accepted) == 0 {
			continue
		}
		current = accepted[0].id

		sort.Slice(accepted, func(i, j int) bool { return accepted[i].id < accepted[j].id })
		for _, a := range accepted {
			neighbor := g.nodes[a.id]
			unlock := g.lockAscending(id, a.id)
			room := len(neighbor.levels[level].out) < g.mMax(level)
			if room {
				neighbor.levels[level].out = append(neighbor.levels[level].out, id)
				n.levels[level].out = append(n.levels[level].out, a.id)
			}
			unlock()
			if !room {
				g.revisitNeighborConnections(level, a.id, id)
			}
		}
	}
}
