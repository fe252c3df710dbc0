package bandit

import "math/rand/v2"

// mathRandSource adapts math/rand/v2 as a UniformSource for production use.
type mathRandSource struct{}

func (mathRandSource) Float64() float64 {
	return rand.Float64()
}

// DefaultUniformSource is the production UniformSource, backed by
// math/rand/v2's global generator.
var DefaultUniformSource UniformSource = mathRandSource{}

// FixedSequence is a deterministic UniformSource that replays a fixed
// slice of values, wrapping around when exhausted. Used by tests to make
// Thompson sampling reproducible.
type FixedSequence struct {
	values []float64
	pos    int
}

// NewFixedSequence builds a FixedSequence over values. With no values it
// replays 0.5.
func NewFixedSequence(values ...float64) *FixedSequence {
	if len(values) == 0 {
		values = []float64{0.5}
	}
	return &FixedSequence{values: values}
}

func (f *FixedSequence) Float64() float64 {
	v := f.values[f.pos%len(f.values)]
	f.pos++
	return v
}
