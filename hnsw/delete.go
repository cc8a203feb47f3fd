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

// MarkDeletedInternal implements the "marked (async)" half of §4.8: sets
// DELETE_MARK, and if the node was the entry point, walks down levels
// looking for a live replacement (I7: the entry point is never deleted).
// Returns the (level, id) pairs that need a RepairJob — every outgoing and
// incoming neighbor of the tombstone, at every level it existed on.
func (g *Graph) MarkDeletedInternal(id int32) []RepairTarget {
	n := g.nodes[id]
	if !n.deleteMark.CompareAndSwap(false, true) {
		return nil // already deleted; no-op (§7 semantic no-op class)
	}

	g.dataMu.Lock()
	g.numMarkedDeleted++
	g.tombstones.Add(uint32(id))
	if g.entryPoint == int(id) {
		g.replaceEntryPointLocked(id)
	}
	g.dataMu.Unlock()

	var targets []RepairTarget
	seen := make(map[repairKey]struct{})
	n.mu.Lock()
	for level, lvl := range n.levels {
		for _, out := range lvl.out {
			k := repairKey{id: out, level: level}
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				targets = append(targets, RepairTarget{ID: out, Level: level})
			}
		}
		for in := range lvl.incoming {
			k := repairKey{id: in, level: level}
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				targets = append(targets, RepairTarget{ID: in, Level: level})
			}
		}
	}
	n.mu.Unlock()
	return targets
}

// repairKey deduplicates repair targets across a tombstone's outgoing and
// incoming edges at a level.
type repairKey struct {
	id    int32
	level int
}

// RepairTarget names a (id, level) pair whose neighbor set must be
// re-derived after one of its neighbors became a tombstone (§4.8); this is
// the payload spec.md's RepairJob carries (C8).
type RepairTarget struct {
	ID    int32
	Level int
}

// replaceEntryPointLocked scans down from the current max level for a
// live non-deleted node and installs it as the new entry point, per I7.
// Caller must hold dataMu exclusively.
func (g *Graph) replaceEntryPointLocked(deletedID int32) {
	for level := g.maxLevel; level >= 0; level-- {
		for id := range g.nodes {
			if int32(id) == deletedID {
				continue
			}
			cand := g.nodes[id]
			if cand.topLevel < level || cand.deleteMark.Load() {
				continue
			}
			g.entryPoint = id
			g.maxLevel = cand.topLevel
			return
		}
	}
	g.entryPoint = noEntry
	g.maxLevel = noEntry
}

// RepairNodeConnections implements the repair subroutine shared by both
// deletion modes (§4.8 "Repair of a single node n at level ℓ"): collect
// n's live neighbors, pull in second-hop candidates through any tombstoned
// neighbor, and if the candidate set exceeds the degree cap, rerun the
// heuristic and apply the mutual updates under ascending-id locks.
func (g *Graph) RepairNodeConnections(id int32, level int) {
	n := g.nodes[id]
	if level > n.topLevel {
		return
	}

	n.mu.Lock()
	liveOut := make([]int32, 0, len(n.levels[level].out))
	var deletedOut []int32
	for _, x := range n.levels[level].out {
		if g.nodes[x].deleteMark.Load() || g.nodes[x].inProcess.Load() {
			deletedOut = append(deletedOut, x)
		} else {
			liveOut = append(liveOut, x)
		}
	}
	n.mu.Unlock()

	if len(deletedOut) == 0 {
		return // nothing tombstoned among n's out-edges at this level.
	}

	candSet := make(map[int32]struct{}, len(liveOut))
	for _, x := range liveOut {
		candSet[x] = struct{}{}
	}
	for _, dead := range deletedOut {
		dn := g.nodes[dead]
		dn.mu.Lock()
		secondHop := append([]int32(nil), dn.levels[level].out...)
		dn.mu.Unlock()
		for _, x := range secondHop {
			if x == id {
				continue
			}
			if _, ok := candSet[x]; ok {
				continue
			}
			if g.nodes[x].deleteMark.Load() || g.nodes[x].inProcess.Load() {
				continue
			}
			candSet[x] = struct{}{}
			liveOut = append(liveOut, x)
		}
	}

	degreeCap := g.mMax(level)
	if len(liveOut) <= degreeCap {
		g.applyRepairedOutSet(id, level, liveOut, nil)
		return
	}

	nVec := n.vector
	cands := make([]candidate, 0, len(liveOut))
	for _, x := range liveOut {
		cands = append(cands, candidate{dist: g.space.Distance(g.nodes[x].vector, nVec), id: x})
	}
	accepted, rejected := g.selectNeighbors(cands, degreeCap)
	newOut := make([]int32, 0, len(accepted))
	for _, c := range accepted {
		newOut = append(newOut, c.id)
	}
	g.applyRepairedOutSet(id, level, newOut, rejected)
}

// applyRepairedOutSet installs newOut as n's out-list at level and fixes
// up I3 bookkeeping for every edge that was dropped (either the tombstoned
// originals, implicitly, or ones the heuristic rejected).
func (g *Graph) applyRepairedOutSet(id int32, level int, newOut []int32, explicitlyRejected []candidate) {
	n := g.nodes[id]
	// Lock n's current out-neighbors as well: every dropped edge, including
	// one to a tombstone, updates the far end's bookkeeping.
	n.mu.Lock()
	ids := append([]int32{id}, n.levels[level].out...)
	n.mu.Unlock()
	ids = append(ids, newOut...)
	for _, c := range explicitlyRejected {
		ids = append(ids, c.id)
	}
	unlock := g.lockAscending(ids...)
	defer unlock()

	oldOut := n.levels[level].out
	oldSet := make(map[int32]struct{}, len(oldOut))
	for _, x := range oldOut {
		oldSet[x] = struct{}{}
	}
	newSet := make(map[int32]struct{}, len(newOut))
	for _, x := range newOut {
		newSet[x] = struct{}{}
	}

	for _, x := range oldOut {
		if _, keep := newSet[x]; keep {
			continue
		}
		xLvl := &g.nodes[x].levels[level]
		if containsOut(xLvl.out, id) {
			n.levels[level].incoming[x] = struct{}{}
		} else {
			delete(xLvl.incoming, id)
		}
	}

	n.levels[level].out = newOut
	for _, x := range newOut {
		if _, already := oldSet[x]; already {
			continue
		}
		// a fresh edge gained via second-hop recovery; record direction.
		xLvl := &g.nodes[x].levels[level]
		if containsOut(xLvl.out, id) {
			delete(n.levels[level].incoming, x)
		} else {
			xLvl.incoming[id] = struct{}{}
		}
	}
}

// RemoveAndSwapDeletedElement implements the swap-with-last reclamation of
// §4.8: move the last id into k's now-vacant slot, rewrite every edge and
// label-map entry that referenced it, and shrink the id space by one,
// preserving I1's contiguous-prefix invariant.
func (g *Graph) RemoveAndSwapDeletedElement(k int32) {
	g.dataMu.Lock()
	defer g.dataMu.Unlock()

	last := int32(len(g.nodes) - 1)
	lastWasTombstoned := g.tombstones.Contains(uint32(last))
	g.tombstones.Remove(uint32(k))
	g.tombstones.Remove(uint32(last))
	if k != last && lastWasTombstoned {
		g.tombstones.Add(uint32(k))
	}
	if k != last {
		moved := g.nodes[last]
		for level := range moved.levels {
			for _, out := range moved.levels[level].out {
				if out == last {
					continue
				}
				xLvl := &g.nodes[out].levels[level]
				if _, ok := xLvl.incoming[last]; ok {
					delete(xLvl.incoming, last)
					xLvl.incoming[k] = struct{}{}
				}
				// bidirectional edge: out points back at last.
				replaceOut(xLvl, last, k)
			}
			for in := range moved.levels[level].incoming {
				replaceOut(&g.nodes[in].levels[level], last, k)
			}
		}
		g.Labels.Rebind(last, k)
		g.nodes[k] = moved
		if g.entryPoint == int(last) {
			g.entryPoint = int(k)
		}
	}

	g.nodes = g.nodes[:last]
	g.numMarkedDeleted--
}

func replaceOut(lvl *levelData, oldID, newID int32) {
	for i, x := range lvl.out {
		if x == oldID {
			lvl.out[i] = newID
			return
		}
	}
}
