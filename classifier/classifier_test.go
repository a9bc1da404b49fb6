package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlnvch/garden/models"
)

func probs(values ...float64) []float64 {
	p := make([]float64, len(Labels))
	copy(p, values)
	return p
}

func TestNewResult_LabelMismatch(t *testing.T) {
	_, err := NewResult([]float64{0.5, 0.5})
	assert.ErrorIs(t, err, ErrLabelMismatch)
}

func TestNewResult_InvalidProbability(t *testing.T) {
	_, err := NewResult(probs(1.5))
	assert.Error(t, err)
}

func TestVerdict(t *testing.T) {
	tests := []struct {
		name         string
		probs        []float64
		wantFlower   bool
		wantEggplant bool
		want         Verdict
	}{
		{"Flower sum over threshold", probs(0.5, 0.3, 0.2), true, false, VerdictFlower},
		{"Flower strong single label", probs(0.95, 0.02, 0.01), true, false, VerdictFlower},
		{"Flower sum just below threshold", probs(0.4, 0.3, 0.2, 0, 0.1), false, false, VerdictRejected},
		{"Eggplant", probs(0.05, 0.03, 0.02, 0.97), false, true, VerdictEggplant},
		{"Eggplant at threshold", probs(0.0, 0.0, 0.0, 0.95, 0.05), false, false, VerdictRejected},
		{"Neither", probs(0.1, 0.1, 0.1, 0.1, 0.6), false, false, VerdictRejected},
		{"Disallowed top label", probs(0.1, 0, 0, 0, 0, 0, 0.9), false, false, VerdictRejected},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, err := NewResult(tc.probs)
			require.NoError(t, err)
			assert.Equal(t, tc.wantFlower, r.IsFlower())
			assert.Equal(t, tc.wantEggplant, r.IsEggplant())
			assert.Equal(t, tc.want, r.Verdict())
		})
	}
}

func TestVerdict_FlowerTakesPrecedence(t *testing.T) {
	// Unnormalised scores can exceed both thresholds at once.
	r, err := NewResult(probs(0.6, 0.3, 0.1, 0.99))
	require.NoError(t, err)

	assert.True(t, r.IsFlower())
	assert.True(t, r.IsEggplant())
	assert.Equal(t, VerdictFlower, r.Verdict())

	category, ok := r.Verdict().Category()
	assert.True(t, ok)
	assert.Equal(t, models.CategoryFlowers, category)
}

func TestIsDisallowed(t *testing.T) {
	for _, label := range []string{"a swastika", "handwriting", "text", "the word flower"} {
		p := probs()
		for i, l := range Labels {
			if l == label {
				p[i] = 0.8
			}
		}
		r, err := NewResult(p)
		require.NoError(t, err)
		assert.True(t, r.IsDisallowed(), label)
	}
}

func TestConfidence(t *testing.T) {
	flower, _ := NewResult(probs(0.5, 0.3, 0.2))
	assert.InDelta(t, 1.0, flower.Confidence(), 1e-9)

	eggplant, _ := NewResult(probs(0.01, 0.0, 0.0, 0.99))
	assert.InDelta(t, 0.99, eggplant.Confidence(), 1e-9)

	rejected, _ := NewResult(probs(0.1))
	assert.Zero(t, rejected.Confidence())
}

func TestProbabilities(t *testing.T) {
	r, err := NewResult(probs(0.95, 0.02, 0.01))
	require.NoError(t, err)

	m := r.Probabilities()
	assert.Len(t, m, len(Labels))
	assert.Equal(t, 0.95, m["a doodle of a flower"])
	assert.Equal(t, 0.02, r.Probability("a sketch of a flower"))
	assert.Zero(t, r.Probability("not a label"))
}

func TestNewRequest(t *testing.T) {
	req := NewRequest("data:image/png;base64,AAAA")
	assert.Equal(t, "data:image/png;base64,AAAA", req.Image)
	assert.Contains(t, req.Text, "a doodle of a flower | a sketch of a flower")
}
