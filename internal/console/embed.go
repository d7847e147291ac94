package console

import (
	"crypto/md5"
	"encoding/binary"
	"math"
	"strings"
)

// embed maps text to a deterministic unit vector: each word contributes
// bit-sampled noise from its md5 hash. No embedding model or API key;
// similar phrasings land near each other, which is all the console needs.
func embed(text string, dim int) []float32 {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if len(w) > 1 {
			words = append(words, w)
		}
	}

	vec := make([]float32, dim)
	for i, w := range words {
		sum := md5.Sum([]byte(w))
		h := uint64(binary.BigEndian.Uint32(sum[:4]))
		for j := 0; j < dim; j++ {
			bit := (h >> uint(j+i)) & 1
			vec[j] += float32(bit)*0.2 - 0.1
		}
	}

	var norm float64
	for _, x := range vec {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	if norm > 1e-6 {
		for j := range vec {
			vec[j] = float32(float64(vec[j]) / norm)
		}
	}
	return vec
}
