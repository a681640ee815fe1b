package colorscale

import (
	"fmt"
	"math"
)

// Scale maps a mutation value onto a continuous viridis ramp. All views share
// one Scale per refresh so a point renders the same color everywhere.
type Scale struct {
	min float64
	max float64
}

// Viridis control stops, dark purple to yellow.
var stops = [][3]float64{
	{68, 1, 84},
	{59, 82, 139},
	{33, 145, 140},
	{94, 201, 98},
	{253, 231, 37},
}

// New builds a scale over [min,max]. Degenerate or inverted domains widen to
// the unit interval so every value still maps to a color.
func New(min, max float64) Scale {
	if math.IsNaN(min) || math.IsNaN(max) || max <= min {
		return Scale{min: 0, max: 1}
	}
	return Scale{min: min, max: max}
}

// FromValues derives a scale from observed mutation values.
func FromValues(values []float64) Scale {
	if len(values) == 0 {
		return New(0, 1)
	}
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return New(min, max)
}

// Domain returns the scale bounds.
func (s Scale) Domain() (float64, float64) {
	return s.min, s.max
}

// Hex returns the ramp color for v as "#rrggbb". Values outside the domain
// clamp to the endpoints.
func (s Scale) Hex(v float64) string {
	t := (v - s.min) / (s.max - s.min)
	if math.IsNaN(t) || t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}

	pos := t * float64(len(stops)-1)
	i := int(pos)
	if i >= len(stops)-1 {
		i = len(stops) - 2
	}
	frac := pos - float64(i)

	lo, hi := stops[i], stops[i+1]
	r := uint8(math.Round(lo[0] + (hi[0]-lo[0])*frac))
	g := uint8(math.Round(lo[1] + (hi[1]-lo[1])*frac))
	b := uint8(math.Round(lo[2] + (hi[2]-lo[2])*frac))
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}
