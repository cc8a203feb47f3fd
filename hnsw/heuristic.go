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

import "sort"

// candidate is a (distance-to-center, id) pair used throughout the
// neighbor-selection heuristic and beam search (§4.3, §4.4). "Center" is
// whatever point the distances were computed against: the query during
// insertion, or the neighbor itself during a revisit (§4.7).
type candidate struct {
	dist float32
	id   int32
}

// selectNeighbors implements the §4.3 diversity heuristic: sort candidates
// ascending by distance to the center, then walk them in order and accept
// c iff, for every already-accepted s, c is strictly farther from s than
// from the center (dist(c, s) > c.dist). Stops accepting once m have been
// accepted. Returns the accepted set and the remainder,
// in that order, so callers on repair/revisit paths know which edges to
// drop (I5, P4).
func (g *Graph) selectNeighbors(candidates []candidate, m int) (accepted, rejected []candidate) {
	sorted := make([]candidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].dist < sorted[j].dist })

	accepted = make([]candidate, 0, m)
	for _, c := range sorted {
		if len(accepted) >= m {
			rejected = append(rejected, c)
			continue
		}
		keep := true
		for _, s := range accepted {
			if g.space.Distance(g.nodes[c.id].vector, g.nodes[s.id].vector) <= c.dist {
				keep = false
				break
			}
		}
		if keep {
			accepted = append(accepted, c)
		} else {
			rejected = append(rejected, c)
		}
	}
	return accepted, rejected
}

// revisitNeighborConnections implements §4.7: invoked during insertion when
// a chosen neighbor is already at its degree cap. It reruns the heuristic
// centered on the neighbor over its current out-edges plus the candidate
// new node, then reconciles the neighbor's out-list — and the I3
// uni/bi-directional bookkeeping of every node whose edge to the neighbor
// changed — with the result.
//
// Reconciliation note: spec.md §4.7 phrases the incoming-set update as "if
// x is in incoming_edges(neighbor)"; that can never hold for an edge
// neighbor->x that still exists (I3 forbids recording a bidirectional edge
// in either incoming set, and an edge about to be dropped is, by
// definition, currently an outgoing edge of neighbor). This implementation
// instead checks the ground truth — whether x currently points back to
// neighbor — which is the self-consistent reading; see DESIGN.md.
func (g *Graph) revisitNeighborConnections(level int, neighborID, newID int32) {
	unlock := g.lockAscending(neighborID, newID)
	neighborVec := g.nodes[neighborID].vector
	oldOut := append([]int32(nil), g.nodes[neighborID].levels[level].out...)
	cands := make([]candidate, 0, len(oldOut)+1)
	for _, x := range oldOut {
		cands = append(cands, candidate{dist: g.space.Distance(g.nodes[x].vector, neighborVec), id: x})
	}
	newDist := g.space.Distance(g.nodes[newID].vector, neighborVec)
	cands = append(cands, candidate{dist: newDist, id: newID})
	unlock()

	accepted, rejected := g.selectNeighbors(cands, g.mMax(level))
	newAccepted := false
	for _, c := range accepted {
		if c.id == newID {
			newAccepted = true
			break
		}
	}

	toLock := make([]int32, 0, len(oldOut)+2)
	toLock = append(toLock, neighborID, newID)
	toLock = append(toLock, oldOut...)
	unlock = g.lockAscending(toLock...)
	defer unlock()

	nLvl := &g.nodes[neighborID].levels[level]
	newOut := make([]int32, 0, len(accepted))
	for _, c := range accepted {
		newOut = append(newOut, c.id)
	}
	nLvl.out = newOut

	for _, c := range rejected {
		if c.id == newID {
			continue
		}
		xLvl := &g.nodes[c.id].levels[level]
		if containsOut(xLvl.out, neighborID) {
			// x still points back to neighbor: the surviving x->neighbor
			// edge is now uni-directional.
			nLvl.incoming[c.id] = struct{}{}
		} else {
			// neighbor->x was uni-directional; clear its bookkeeping.
			delete(xLvl.incoming, neighborID)
		}
	}

	newLvl := &g.nodes[newID].levels[level]
	if len(newLvl.out) < g.mMax(level) && !g.nodes[newID].deleteMark.Load() && !g.nodes[neighborID].deleteMark.Load() {
		newLvl.out = append(newLvl.out, neighborID)
		if !newAccepted {
			// neighbor did not reciprocate: new_node->neighbor is uni-directional.
			newLvl.incoming[neighborID] = struct{}{}
		}
	}
}
