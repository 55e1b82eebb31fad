package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	sim, err := CosineSimilarity([]float32{1, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-6)

	sim, err = CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, sim, 1e-6)

	sim, err = CosineSimilarity([]float32{0, 0}, []float32{1, 1})
	require.NoError(t, err)
	assert.Zero(t, sim)

	_, err = CosineSimilarity([]float32{1}, []float32{1, 2})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	_, err = CosineSimilarity(nil, []float32{1})
	assert.ErrorIs(t, err, ErrEmptyVector)
}

func TestRankBySimilarity(t *testing.T) {
	candidates := [][]float32{
		{0, 1},
		{1, 0.1},
		nil,
		{1, 0},
		{1, 2, 3},
		{0.9, 0.5},
	}
	matches := RankBySimilarity([]float32{1, 0}, candidates, 0.7, 2)
	require.Len(t, matches, 2)
	assert.Equal(t, 3, matches[0].Index)
	assert.Equal(t, 1, matches[1].Index)
	assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)

	assert.Len(t, RankBySimilarity([]float32{1, 0}, candidates, 0.7, 0), 3)
	assert.Empty(t, RankBySimilarity([]float32{1, 0}, candidates, 1.1, 3))
}

func TestSanitizeInput(t *testing.T) {
	tests := map[string]string{
		"Bonjour !":                   "Bonjour",
		"  horaires de la mairie ?  ": "horaires de la mairie",
		"<script>alert('x')</script>": "scriptalertxscript",
		"Où est l'hôtel de ville":     "Où est lhôtel de ville",
		"rendez-vous_urbanisme 2025":  "rendez-vous_urbanisme 2025",
		"":                            "",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeInput(in), in)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "court", Truncate("court", 50))

	exact := strings.Repeat("a", 50)
	assert.Equal(t, exact, Truncate(exact, 50))

	long := strings.Repeat("é", 60)
	got := Truncate(long, 50)
	assert.Equal(t, strings.Repeat("é", 50)+"...", got)
}
