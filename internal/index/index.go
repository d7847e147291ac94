// Package index provides the pluggable vector index backends used by the
// memory store: a brute-force exact index and a navigable small-world graph
// for approximate search. Both rank by Euclidean (L2) distance so a query
// produces comparable orderings regardless of backend.
//
// Backends are not safe for concurrent use; the owning store serializes
// access.
package index

import "math"

// Candidate is one search hit: the caller-assigned key and its L2 distance
// to the query vector.
type Candidate struct {
	Key      uint32
	Distance float32
}

// Backend is the contract shared by the exact and approximate indexes.
// Keys are assigned by the caller and must be unique per index instance.
type Backend interface {
	// Insert adds a vector under the given key. The backend keeps a
	// reference to vec; callers must not mutate it afterwards.
	Insert(key uint32, vec []float32)

	// Remove drops the key from the index. Returns false when the key is
	// not present.
	Remove(key uint32) bool

	// Search returns up to k candidates ordered by ascending distance,
	// ties broken by ascending key. Approximate backends may miss true
	// nearest neighbors; the exact backend never does.
	Search(query []float32, k int) []Candidate

	// Len returns the number of vectors currently in the index.
	Len() int
}

// L2 returns the Euclidean distance between two equal-length vectors.
func L2(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}
