package index

import "sort"

// Exact is the brute-force index: every search scans all vectors. O(n) per
// query, exhaustive and deterministic. The correctness oracle for the graph
// index and the default for small or disk-backed stores.
type Exact struct {
	keys []uint32
	vecs [][]float32
	pos  map[uint32]int
}

// Compile-time interface check.
var _ Backend = (*Exact)(nil)

// NewExact creates an empty exact index.
func NewExact() *Exact {
	return &Exact{pos: make(map[uint32]int)}
}

// Insert implements Backend.
func (x *Exact) Insert(key uint32, vec []float32) {
	x.pos[key] = len(x.keys)
	x.keys = append(x.keys, key)
	x.vecs = append(x.vecs, vec)
}

// Remove implements Backend using swap-delete: the last entry fills the
// vacated position so the slices stay dense.
func (x *Exact) Remove(key uint32) bool {
	i, ok := x.pos[key]
	if !ok {
		return false
	}

	last := len(x.keys) - 1
	if i != last {
		x.keys[i] = x.keys[last]
		x.vecs[i] = x.vecs[last]
		x.pos[x.keys[i]] = i
	}
	x.keys = x.keys[:last]
	x.vecs[last] = nil
	x.vecs = x.vecs[:last]
	delete(x.pos, key)
	return true
}

// Search implements Backend. Scans every vector, sorts by distance, then key.
func (x *Exact) Search(query []float32, k int) []Candidate {
	if k <= 0 || len(x.keys) == 0 {
		return nil
	}

	out := make([]Candidate, len(x.keys))
	for i, vec := range x.vecs {
		out[i] = Candidate{Key: x.keys[i], Distance: L2(query, vec)}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Key < out[j].Key
	})
	if k < len(out) {
		out = out[:k]
	}
	return out
}

// Len implements Backend.
func (x *Exact) Len() int {
	return len(x.keys)
}
