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

// Package hnsw implements the concurrent Hierarchical Navigable Small-World
// graph index (C3 graph storage, C4 label map, C5 HNSW core): a multi-layer
// proximity graph with fine-grained per-node locking, supporting parallel
// insertion, lazy and in-place deletion with repair, top-K/range search, and
// a resumable batch iterator.
//
// Reference: Malkov & Yashunin, "Efficient and robust approximate nearest
// neighbor search using Hierarchical Navigable Small World graphs".
package hnsw

import (
	"errors"
	"math"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/vecsim-go/vecsim/internal/distance"
	"github.com/vecsim-go/vecsim/internal/visited"
)

// noEntry marks an empty entry point / absent id.
const noEntry = -1

var (
	// ErrDimensionMismatch is returned when a vector's length disagrees
	// with the graph's configured dimensionality.
	ErrDimensionMismatch = errors.New("hnsw: vector dimension mismatch")
	// ErrEmptyVector is returned for a zero-length vector.
	ErrEmptyVector = errors.New("hnsw: empty vector")
	// ErrInvalidM is returned by NewGraph when M <= 1.
	ErrInvalidM = errors.New("hnsw: M must be greater than 1")
	// ErrInvalidDim is returned by NewGraph for a non-positive dimension.
	ErrInvalidDim = errors.New("hnsw: dim must be positive")
	// ErrNotFound is returned when an id or label does not exist.
	ErrNotFound = errors.New("hnsw: not found")
	// ErrInvalidK is returned for a non-positive k in TopK.
	ErrInvalidK = errors.New("hnsw: k must be positive")
)

// levelData is one level's worth of a node's edges (§3.3): a bounded
// outgoing list and the set of ids that point in without reciprocation
// (the materialization of I3's uni/bi-directional distinction).
type levelData struct {
	out      []int32
	incoming map[int32]struct{}
}

// node is one graph element (ElementGraphData, §3.3). Its id is its index
// into Graph.nodes; ids are dense and recycled via swap-with-last (I1), so
// a node's identity is purely positional.
type node struct {
	mu         sync.Mutex
	vector     []float32
	levels     []levelData
	topLevel   int
	inProcess  atomic.Bool
	deleteMark atomic.Bool

	// entryAtInsert/maxLevelAtInsert snapshot the graph's entry point and
	// max level at the instant this node's id was allocated (§4.6 step 1),
	// for the connection phase (Connect) to descend from.
	entryAtInsert    int
	maxLevelAtInsert int
}

func newNode(vector []float32, topLevel int) *node {
	n := &node{vector: vector, topLevel: topLevel, levels: make([]levelData, topLevel+1)}
	for l := range n.levels {
		n.levels[l].incoming = make(map[int32]struct{})
	}
	n.inProcess.Store(true)
	return n
}

// Config collects the HNSW construction parameters recognized by §6.
type Config struct {
	Dim             int
	Metric          distance.Metric
	Multi           bool
	M               int
	EfConstruction  int
	EfRuntime       int
	Epsilon         float64
	BlockSize       int
	InitialCapacity int
	RandomSeed      int64
}

// withDefaults fills unset fields with the teacher's balanced preset.
func (c Config) withDefaults() Config {
	if c.M == 0 {
		c.M = 16
	}
	if c.EfConstruction == 0 {
		c.EfConstruction = 200
	}
	if c.EfRuntime == 0 {
		c.EfRuntime = 50
	}
	if c.Epsilon == 0 {
		c.Epsilon = 0.01
	}
	if c.BlockSize == 0 {
		c.BlockSize = 1024
	}
	return c
}

// Graph is the HNSW graph storage plus the core algorithm (C3/C5): a dense
// id-keyed array of nodes, each carrying its own per-level neighbor lists
// and per-node mutex, plus the small set of global fields guarded by
// dataMu, the index_data_guard of §3.4/§5.
type Graph struct {
	dataMu sync.RWMutex

	space *distance.Space

	m, mMax0       int
	efConstruction int
	efRuntime      int
	epsilon        float64
	blockSize      int

	nodes            []*node
	entryPoint       int
	maxLevel         int
	numMarkedDeleted int
	// tombstones mirrors DELETE_MARK ids as a compact bitmap (guarded by
	// dataMu alongside numMarkedDeleted), so callers that want the actual
	// tombstone set rather than just its count don't have to scan every
	// node's atomic flag.
	tombstones *roaring.Bitmap

	levelMult float64
	rng       *rand.Rand
	rngMu     sync.Mutex

	Visited *visited.Pool
	Labels  *LabelMap
}

// NewGraph constructs an empty graph honoring cfg (§6 construction
// parameters, §7 parameter validation: no partially-built index is ever
// returned on error).
func NewGraph(cfg Config) (*Graph, error) {
	cfg = cfg.withDefaults()
	if cfg.Dim <= 0 {
		return nil, ErrInvalidDim
	}
	if cfg.M <= 1 {
		return nil, ErrInvalidM
	}
	space, err := distance.NewSpace(cfg.Metric, cfg.Dim)
	if err != nil {
		return nil, err
	}
	seed := cfg.RandomSeed
	if seed == 0 {
		seed = rand.Int63()
	}
	g := &Graph{
		space:          space,
		m:              cfg.M,
		mMax0:          cfg.M * 2,
		efConstruction: cfg.EfConstruction,
		efRuntime:      cfg.EfRuntime,
		epsilon:        cfg.Epsilon,
		blockSize:      cfg.BlockSize,
		entryPoint:     noEntry,
		maxLevel:       noEntry,
		levelMult:      1.0 / math.Log(float64(cfg.M)),
		rng:            rand.New(rand.NewSource(seed)),
		tombstones:     roaring.New(),
		Visited:        visited.NewPool(cfg.InitialCapacity),
		Labels:         NewLabelMap(cfg.Multi),
	}
	if cfg.InitialCapacity > 0 {
		g.nodes = make([]*node, 0, cfg.InitialCapacity)
	}
	return g, nil
}

// Dim reports the graph's configured vector dimensionality.
func (g *Graph) Dim() int { return g.space.Dim }

// Space exposes the metric abstraction backing this graph's distances.
func (g *Graph) Space() *distance.Space { return g.space }

// Len reports the number of live (non-tombstoned) ids, a shared-lock
// snapshot of the index-data guard.
func (g *Graph) Len() int {
	g.dataMu.RLock()
	defer g.dataMu.RUnlock()
	return len(g.nodes) - g.numMarkedDeleted
}

// Count reports the total id-space size, including tombstones not yet
// physically reclaimed.
func (g *Graph) Count() int {
	g.dataMu.RLock()
	defer g.dataMu.RUnlock()
	return len(g.nodes)
}

// TombstoneCount reports the number of ids currently marked deleted but
// not yet physically reclaimed, via the roaring bitmap's cardinality.
func (g *Graph) TombstoneCount() int {
	g.dataMu.RLock()
	defer g.dataMu.RUnlock()
	return int(g.tombstones.GetCardinality())
}

// TombstoneIDs returns the ids currently marked deleted but not yet
// physically reclaimed, read off the bitmap instead of scanning every
// node's atomic DELETE_MARK flag.
func (g *Graph) TombstoneIDs() []int32 {
	g.dataMu.RLock()
	defer g.dataMu.RUnlock()
	u32 := g.tombstones.ToArray()
	out := make([]int32, len(u32))
	for i, x := range u32 {
		out[i] = int32(x)
	}
	return out
}

// mMax returns the degree cap for level (I4): 2M at layer 0, M above it.
func (g *Graph) mMax(level int) int {
	if level == 0 {
		return g.mMax0
	}
	return g.m
}

// randomLevel draws top_level from an exponential distribution with mean
// 1/ln(M) (§3.3).
func (g *Graph) randomLevel() int {
	g.rngMu.Lock()
	defer g.rngMu.Unlock()
	r := g.rng.Float64()
	for r == 0 {
		r = g.rng.Float64()
	}
	return int(math.Floor(-math.Log(r) * g.levelMult))
}

// lockAscending locks the node mutexes for the given ids in ascending
// order, the sole deadlock-avoidance mechanism of §5, and returns a
// function that releases them all in reverse order. Duplicate ids are
// locked once.
func (g *Graph) lockAscending(ids ...int32) func() {
	seen := make(map[int32]struct{}, len(ids))
	uniq := make([]int32, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i] < uniq[j] })
	for _, id := range uniq {
		g.nodes[id].mu.Lock()
	}
	return func() {
		for i := len(uniq) - 1; i >= 0; i-- {
			g.nodes[uniq[i]].mu.Unlock()
		}
	}
}

func containsOut(out []int32, id int32) bool {
	for _, x := range out {
		if x == id {
			return true
		}
	}
	return false
}

func removeOut(lvl *levelData, id int32) {
	for i, x := range lvl.out {
		if x == id {
			lvl.out = append(lvl.out[:i], lvl.out[i+1:]...)
			return
		}
	}
}
