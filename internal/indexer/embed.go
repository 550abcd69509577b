package indexer

import "math"

// EmbeddingDim matches the vector(64) column.
const EmbeddingDim = 64

// Embed maps image bytes to an L2-normalized byte histogram. Identical
// images always land on the same vector, so replays of one template image
// fall into one cluster.
func Embed(data []byte) []float32 {
	v := make([]float32, EmbeddingDim)
	for _, b := range data {
		v[int(b)*EmbeddingDim/256]++
	}
	normalize(v)
	return v
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
}
