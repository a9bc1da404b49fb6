package layout

import (
	"math"
	"math/rand/v2"

	"github.com/zlnvch/garden/models"
)

const (
	// MaxTop bounds the sampled vertical position, in percent.
	MaxTop = 65.0

	// MinDistance is the spacing required on at least one axis.
	MinDistance = 8.0

	MaxAttempts = 50

	minScale   = 0.5
	scaleRange = 0.3
)

// band is a horizontal range [Offset, Offset+Width) used for items whose top
// is below Below.
type band struct {
	Below  float64
	Offset float64
	Width  float64
}

// Bands produce the island outline: wide near the horizon, shifted right in
// the middle, shifted left at the front.
var bands = []band{
	{Below: 20, Offset: 10, Width: 60},
	{Below: 50, Offset: 40, Width: 30},
	{Below: math.Inf(1), Offset: 10, Width: 40},
}

// Layout returns n sprite positions using the global random source.
func Layout(n int) []models.Position {
	return layout(n, rand.Float64)
}

// LayoutWithRand is Layout with a caller-supplied source, for reproducible
// placement.
func LayoutWithRand(n int, r *rand.Rand) []models.Position {
	return layout(n, r.Float64)
}

func layout(n int, random func() float64) []models.Position {
	if n <= 0 {
		return []models.Position{}
	}

	positions := make([]models.Position, 0, n)
	for i := 0; i < n; i++ {
		var candidate models.Position
		for attempt := 0; attempt < MaxAttempts; attempt++ {
			candidate = sample(random)
			if spaced(positions, candidate) {
				break
			}
		}
		// Out of attempts: the last candidate is kept even if it overlaps
		positions = append(positions, candidate)
	}
	return positions
}

func sample(random func() float64) models.Position {
	top := random() * MaxTop

	var left float64
	for _, b := range bands {
		if top < b.Below {
			left = b.Offset + random()*b.Width
			break
		}
	}

	return models.Position{
		Left:  left,
		Top:   top,
		Scale: Scale(top),
	}
}

// Scale grows linearly from 0.5 at the back to 0.8 at the front.
func Scale(top float64) float64 {
	return minScale + (top/MaxTop)*scaleRange
}

// spaced reports whether p is at least MinDistance from every placed position
// on one axis or the other.
func spaced(placed []models.Position, p models.Position) bool {
	for _, q := range placed {
		if math.Abs(p.Left-q.Left) < MinDistance && math.Abs(p.Top-q.Top) < MinDistance {
			return false
		}
	}
	return true
}
