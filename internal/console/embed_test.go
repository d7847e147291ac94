package console

import (
	"math"
	"testing"
)

func TestEmbed_Deterministic(t *testing.T) {
	t.Parallel()

	a := embed("I prefer dark mode", 16)
	b := embed("I prefer dark mode", 16)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("component %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestEmbed_Normalized(t *testing.T) {
	t.Parallel()

	vec := embed("remember this preference", 16)
	var norm float64
	for _, x := range vec {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	if math.Abs(norm-1) > 1e-3 {
		t.Errorf("norm = %v, want 1", norm)
	}
}

func TestEmbed_NoUsableWordsIsZero(t *testing.T) {
	t.Parallel()

	// Single-character words carry no signal and are skipped.
	for _, text := range []string{"", "a b c", "I"} {
		vec := embed(text, 16)
		if len(vec) != 16 {
			t.Fatalf("len = %d, want 16", len(vec))
		}
		for i, x := range vec {
			if x != 0 {
				t.Errorf("embed(%q)[%d] = %v, want 0", text, i, x)
			}
		}
	}
}

func TestEmbed_DistinctTextsDiffer(t *testing.T) {
	t.Parallel()

	a := embed("dark mode display", 16)
	b := embed("vegetarian lunch options", 16)
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("distinct texts produced identical embeddings")
	}
}
