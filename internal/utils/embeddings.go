package utils

import (
	"errors"
	"math"
	"sort"
)

var (
	ErrEmptyVector       = errors.New("embedding vector is empty")
	ErrDimensionMismatch = errors.New("embedding dimensions differ")
)

// CosineSimilarity compares two embeddings. A zero vector has similarity 0
// with everything.
func CosineSimilarity(a, b []float32) (float32, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, ErrEmptyVector
	}
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB))), nil
}

// Match is a candidate index and its similarity to the query.
type Match struct {
	Index int
	Score float32
}

// RankBySimilarity keeps the candidates scoring at least threshold, best
// first, capped at limit. Candidates that cannot be compared are skipped.
func RankBySimilarity(query []float32, candidates [][]float32, threshold float32, limit int) []Match {
	var matches []Match
	for i, candidate := range candidates {
		score, err := CosineSimilarity(query, candidate)
		if err != nil || score < threshold {
			continue
		}
		matches = append(matches, Match{Index: i, Score: score})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
