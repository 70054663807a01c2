package utils

import (
	"fmt"
	"math"
	"sort"
)

// dotProduct calculates the dot product of two vectors.
func dotProduct(vec1, vec2 []float32) (float64, error) {
	if len(vec1) != len(vec2) {
		return 0, fmt.Errorf("vectors must have the same dimension")
	}
	var product float64
	for i := range vec1 {
		product += float64(vec1[i]) * float64(vec2[i])
	}
	return product, nil
}

// magnitude calculates the L2 norm (magnitude) of a vector.
func magnitude(vec []float32) float64 {
	var sumOfSquares float64
	for _, val := range vec {
		sumOfSquares += float64(val) * float64(val)
	}
	return math.Sqrt(sumOfSquares)
}

// CosineSimilarity calculates the cosine similarity between two vectors.
func CosineSimilarity(vec1, vec2 []float32) (float32, error) {
	if len(vec1) == 0 || len(vec2) == 0 {
		return 0, fmt.Errorf("vectors cannot be empty")
	}
	dotProduct, err := dotProduct(vec1, vec2)
	if err != nil {
		return 0, err
	}

	mag1 := magnitude(vec1)
	mag2 := magnitude(vec2)

	if mag1 == 0 || mag2 == 0 {
		return 0, nil
	}

	return float32(dotProduct / (mag1 * mag2)), nil
}

// Similarity is CosineSimilarity for ranking: empty, zero or mismatched vectors score 0.
func Similarity(vec1, vec2 []float32) float32 {
	sim, err := CosineSimilarity(vec1, vec2)
	if err != nil {
		return 0
	}
	return sim
}

// Ranked is a candidate key with its similarity to the query.
type Ranked struct {
	Key   string
	Score float32
}

// RankBySimilarity orders keys by descending similarity to query and keeps the first n.
// Keys without a vector rank as if compared to the zero vector. Equal scores keep input order.
func RankBySimilarity(query []float32, keys []string, lookup func(string) ([]float32, bool), n int) []Ranked {
	ranked := make([]Ranked, 0, len(keys))
	for _, key := range keys {
		vec, _ := lookup(key)
		ranked = append(ranked, Ranked{Key: key, Score: Similarity(query, vec)})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if n >= 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
