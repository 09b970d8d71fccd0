// Package noise holds the coherent noise samplers the height field is built
// from. One Field carries three independently seeded octaves.
package noise

import "balloonworld.dev/internal/terrain/prng"

type Octave int

const (
	Region Octave = iota
	Low
	High
)

func (o Octave) String() string {
	switch o {
	case Region:
		return "region"
	case Low:
		return "low"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

// Field is immutable after NewField and may be shared between goroutines.
// The zero value and nil are valid and sample as 0 everywhere.
type Field struct {
	seed    string
	octaves [3]*Simplex3
}

// NewField derives the three octave samplers from seed. The high-frequency
// octave uses the seed itself, the others the "-low" and "-region" suffixes.
func NewField(seed string) *Field {
	return &Field{
		seed: seed,
		octaves: [3]*Simplex3{
			Region: NewSimplex3(prng.Func(seed + "-region")),
			Low:    NewSimplex3(prng.Func(seed + "-low")),
			High:   NewSimplex3(prng.Func(seed)),
		},
	}
}

func (f *Field) Ready() bool {
	return f != nil && f.octaves[High] != nil
}

func (f *Field) Seed() string {
	if f == nil {
		return ""
	}
	return f.seed
}

// Sample evaluates one octave. Unknown octaves and unseeded fields yield 0.
func (f *Field) Sample(o Octave, x, y, z float64) float64 {
	if !f.Ready() || o < Region || o > High {
		return 0
	}
	return f.octaves[o].Eval(x, y, z)
}
