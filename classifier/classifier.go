package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/zlnvch/garden/models"
)

// Request is the scoring boundary payload: a pipe-joined label list and the
// artifact as a data URI.
type Request struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

func NewRequest(imageDataURI string) Request {
	return Request{Text: LabelText(), Image: imageDataURI}
}

// Scorer is the opaque classification function. It returns one probability
// per entry of Labels, in the same order.
type Scorer interface {
	Score(ctx context.Context, req Request) ([]float64, error)
}

var ErrLabelMismatch = errors.New("probability count does not match label table")

type Verdict int

const (
	VerdictRejected Verdict = iota
	VerdictFlower
	VerdictEggplant
)

func (v Verdict) String() string {
	switch v {
	case VerdictFlower:
		return "flower"
	case VerdictEggplant:
		return "eggplant"
	default:
		return "rejected"
	}
}

// Category returns the collection a verdict admits into.
func (v Verdict) Category() (models.Category, bool) {
	switch v {
	case VerdictFlower:
		return models.CategoryFlowers, true
	case VerdictEggplant:
		return models.CategoryEggplants, true
	}
	return "", false
}

// Result is an immutable set of per-label probabilities.
type Result struct {
	probabilities []float64
}

func NewResult(probabilities []float64) (Result, error) {
	if len(probabilities) != len(Labels) {
		return Result{}, fmt.Errorf("%w: got %d, want %d", ErrLabelMismatch, len(probabilities), len(Labels))
	}
	for i, p := range probabilities {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return Result{}, fmt.Errorf("invalid probability %v for label %q", p, Labels[i])
		}
	}
	probs := make([]float64, len(probabilities))
	copy(probs, probabilities)
	return Result{probabilities: probs}, nil
}

func (r Result) Probability(label string) float64 {
	for i, l := range Labels {
		if l == label && i < len(r.probabilities) {
			return r.probabilities[i]
		}
	}
	return 0
}

func (r Result) Probabilities() map[string]float64 {
	m := make(map[string]float64, len(r.probabilities))
	for i, p := range r.probabilities {
		m[Labels[i]] = p
	}
	return m
}

func (r Result) FlowerProbability() float64 {
	var sum float64
	for _, i := range flowerLabels {
		sum += r.at(i)
	}
	return sum
}

func (r Result) EggplantProbability() float64 {
	return r.at(labelPenisDoodle)
}

func (r Result) IsFlower() bool {
	return r.FlowerProbability() > FlowerThreshold
}

func (r Result) IsEggplant() bool {
	return r.EggplantProbability() > EggplantThreshold
}

// IsDisallowed reports whether the most likely label is one of the explicit
// reject labels.
func (r Result) IsDisallowed() bool {
	if len(r.probabilities) == 0 {
		return false
	}
	best := 0
	for i, p := range r.probabilities {
		if p > r.probabilities[best] {
			best = i
		}
	}
	_, ok := disallowedLabels[best]
	return ok
}

// Verdict applies the admission rules. Disallowed content is rejected
// outright; otherwise the flower check runs first, so a result above both
// thresholds is a flower.
func (r Result) Verdict() Verdict {
	switch {
	case r.IsDisallowed():
		return VerdictRejected
	case r.IsFlower():
		return VerdictFlower
	case r.IsEggplant():
		return VerdictEggplant
	default:
		return VerdictRejected
	}
}

// Confidence is the score stored with an admitted record.
func (r Result) Confidence() float64 {
	switch r.Verdict() {
	case VerdictFlower:
		return r.FlowerProbability()
	case VerdictEggplant:
		return r.EggplantProbability()
	}
	return 0
}

func (r Result) at(i int) float64 {
	if i < len(r.probabilities) {
		return r.probabilities[i]
	}
	return 0
}
