package index

import (
	"container/heap"
	"math"
	"math/rand/v2"
	"sort"
)

// Graph parameters shared with every store the engine has shipped. M is the
// build fan-out, ef values are beam widths for construction and search.
const (
	defaultM              = 16
	defaultEfConstruction = 200
	defaultEfSearch       = 32
)

// HNSWConfig tunes the graph index. Zero values are replaced by defaults.
type HNSWConfig struct {
	M              int     // neighbors selected per node at insertion
	MMax           int     // neighbor cap on layers above 0
	MMax0          int     // neighbor cap on layer 0
	EfConstruction int     // beam width while inserting
	EfSearch       int     // minimum beam width while searching
	LevelMult      float64 // layer sampling multiplier
	Capacity       int     // arena preallocation hint
}

// defaults fills zero values with the standard graph parameters.
func (c *HNSWConfig) defaults() {
	if c.M <= 0 {
		c.M = defaultM
	}
	if c.MMax <= 0 {
		c.MMax = c.M
	}
	if c.MMax0 <= 0 {
		c.MMax0 = c.M
	}
	if c.EfConstruction <= 0 {
		c.EfConstruction = defaultEfConstruction
	}
	if c.EfSearch <= 0 {
		c.EfSearch = defaultEfSearch
	}
	if c.LevelMult <= 0 {
		c.LevelMult = 1 / math.Log(float64(c.M))
	}
}

// hnswNode is one arena entry. links[l] holds the neighbor slots on layer l;
// the node participates in layers 0..len(links)-1. Removed nodes stay in the
// arena as tombstones so the graph keeps routing through them.
type hnswNode struct {
	key     uint32
	vec     []float32
	deleted bool
	links   [][]int
}

// HNSW is a hierarchical navigable small-world graph over an arena of nodes
// addressed by integer slot. Search recall is bounded by the ef parameters;
// results may omit true nearest neighbors, which is the accepted tradeoff
// against the exact index.
type HNSW struct {
	cfg   HNSWConfig
	rng   *rand.Rand
	nodes []hnswNode
	slots map[uint32]int
	entry int
	top   int
	live  int
}

// Compile-time interface check.
var _ Backend = (*HNSW)(nil)

// NewHNSW creates an empty graph index. The generator is seeded with a fixed
// value so the same insertion sequence always builds the same graph, which
// keeps save/load rebuilds equivalent.
func NewHNSW(cfg HNSWConfig) *HNSW {
	cfg.defaults()
	h := &HNSW{
		cfg:   cfg,
		rng:   rand.New(rand.NewPCG(0x5eed, 0x1357)),
		slots: make(map[uint32]int),
		entry: -1,
	}
	if cfg.Capacity > 0 {
		h.nodes = make([]hnswNode, 0, cfg.Capacity)
	}
	return h
}

// randomLevel samples the layer count for a new node from the standard
// exponential distribution.
func (h *HNSW) randomLevel() int {
	u := 1 - h.rng.Float64() // (0, 1]
	return int(-math.Log(u) * h.cfg.LevelMult)
}

// Insert implements Backend.
func (h *HNSW) Insert(key uint32, vec []float32) {
	level := h.randomLevel()
	slot := len(h.nodes)
	h.nodes = append(h.nodes, hnswNode{key: key, vec: vec, links: make([][]int, level+1)})
	h.slots[key] = slot
	h.live++

	if h.entry < 0 {
		h.entry = slot
		h.top = level
		return
	}

	// Greedy descent through the layers the new node does not reach.
	cur := h.entry
	for layer := h.top; layer > level; layer-- {
		cur = h.descend(vec, cur, layer)
	}

	// Connect on every shared layer, top-down.
	for layer := min(level, h.top); layer >= 0; layer-- {
		found := h.searchLayer(vec, cur, h.cfg.EfConstruction, layer)
		take := min(h.cfg.M, len(found))
		for _, c := range found[:take] {
			h.connect(slot, c.slot, layer)
			h.connect(c.slot, slot, layer)
		}
		if len(found) > 0 {
			cur = found[0].slot
		}
	}

	if level > h.top {
		h.top = level
		h.entry = slot
	}
}

// connect adds a directed edge from -> to on the given layer, shrinking the
// neighbor list back to its cap by keeping the closest nodes.
func (h *HNSW) connect(from, to, layer int) {
	if from == to {
		return
	}
	links := h.nodes[from].links[layer]
	for _, s := range links {
		if s == to {
			return
		}
	}
	links = append(links, to)

	maxLinks := h.cfg.MMax
	if layer == 0 {
		maxLinks = h.cfg.MMax0
	}
	if len(links) > maxLinks {
		base := h.nodes[from].vec
		sort.Slice(links, func(i, j int) bool {
			return L2(base, h.nodes[links[i]].vec) < L2(base, h.nodes[links[j]].vec)
		})
		links = links[:maxLinks]
	}
	h.nodes[from].links[layer] = links
}

// descend hill-climbs toward the query on one layer and returns the slot of
// the local minimum.
func (h *HNSW) descend(q []float32, start, layer int) int {
	cur := start
	curDist := L2(q, h.nodes[cur].vec)
	for {
		improved := false
		for _, nb := range h.nodes[cur].links[layer] {
			if d := L2(q, h.nodes[nb].vec); d < curDist {
				cur, curDist = nb, d
				improved = true
			}
		}
		if !improved {
			return cur
		}
	}
}

// scored pairs an arena slot with its distance to the current query.
type scored struct {
	slot int
	dist float32
}

// searchLayer runs a beam search of width ef on one layer and returns the
// best slots ordered by ascending distance. Tombstoned nodes are traversed
// and returned; callers filter them.
func (h *HNSW) searchLayer(q []float32, entry, ef, layer int) []scored {
	visited := make([]bool, len(h.nodes))
	visited[entry] = true

	start := scored{slot: entry, dist: L2(q, h.nodes[entry].vec)}
	cand := &minQueue{start}
	res := &maxQueue{start}

	for cand.Len() > 0 {
		c := heap.Pop(cand).(scored)
		if res.Len() >= ef && c.dist > (*res)[0].dist {
			break
		}
		for _, nb := range h.nodes[c.slot].links[layer] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			d := L2(q, h.nodes[nb].vec)
			if res.Len() < ef || d < (*res)[0].dist {
				heap.Push(cand, scored{slot: nb, dist: d})
				heap.Push(res, scored{slot: nb, dist: d})
				if res.Len() > ef {
					heap.Pop(res)
				}
			}
		}
	}

	out := make([]scored, res.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(res).(scored)
	}
	return out
}

// Search implements Backend.
func (h *HNSW) Search(query []float32, k int) []Candidate {
	if k <= 0 || h.entry < 0 || h.live == 0 {
		return nil
	}

	ef := max(h.cfg.EfSearch, k)

	cur := h.entry
	for layer := h.top; layer >= 1; layer-- {
		cur = h.descend(query, cur, layer)
	}

	found := h.searchLayer(query, cur, ef, 0)
	out := make([]Candidate, 0, min(k, len(found)))
	for _, c := range found {
		n := &h.nodes[c.slot]
		if n.deleted {
			continue
		}
		out = append(out, Candidate{Key: n.key, Distance: c.dist})
		if len(out) == k {
			break
		}
	}
	return out
}

// Remove implements Backend. The node is tombstoned, not unlinked: it keeps
// routing traffic but never appears in results. Bulk removal callers should
// rebuild instead.
func (h *HNSW) Remove(key uint32) bool {
	slot, ok := h.slots[key]
	if !ok {
		return false
	}
	delete(h.slots, key)
	h.nodes[slot].deleted = true
	h.live--
	return true
}

// Len implements Backend. Tombstones are not counted.
func (h *HNSW) Len() int {
	return h.live
}

// minQueue pops the closest slot first.
type minQueue []scored

func (q minQueue) Len() int { return len(q) }
func (q minQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].slot < q[j].slot
}
func (q minQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *minQueue) Push(x any)   { *q = append(*q, x.(scored)) }
func (q *minQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}

// maxQueue pops the farthest slot first, so the root is the eviction point
// of the bounded result set.
type maxQueue []scored

func (q maxQueue) Len() int { return len(q) }
func (q maxQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist > q[j].dist
	}
	return q[i].slot > q[j].slot
}
func (q maxQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *maxQueue) Push(x any)   { *q = append(*q, x.(scored)) }
func (q *maxQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}
