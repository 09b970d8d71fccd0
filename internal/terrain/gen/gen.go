// Package gen turns the noise field into terrain: one continuous height per
// (x, z) plus a coarse biome class derived from that height.
package gen

import (
	"math"

	"balloonworld.dev/internal/terrain/noise"
)

// Layer configures one octave's contribution. The amplitude of the low and
// high layers is modulated by the normalized region value r as
// Height * (Base + r*Span); the region layer ignores Base and Span.
type Layer struct {
	Scale  float64
	Height float64
	Base   float64
	Span   float64
}

type Params struct {
	Region Layer
	Low    Layer
	High   Layer

	// RegionPower sharpens region transitions (> 1).
	RegionPower float64
	// SampleZ is the fixed third coordinate every 2D lookup is taken at.
	SampleZ float64

	WaterLevel float64
	SandLevel  float64
}

func DefaultParams() Params {
	return Params{
		Region:      Layer{Scale: 0.015, Height: 10},
		Low:         Layer{Scale: 0.04, Height: 8, Base: 0.4, Span: 0.8},
		High:        Layer{Scale: 0.08, Height: 2.5, Base: 0.6, Span: 0.6},
		RegionPower: 1.8,
		SampleZ:     0.1,
		WaterLevel:  2.0,
		SandLevel:   2.7,
	}
}

type Synthesizer struct {
	field  *noise.Field
	params Params
}

// NewSynthesizer binds params to a field. A nil field gives a synthesizer
// that answers 0 everywhere.
func NewSynthesizer(field *noise.Field, p Params) *Synthesizer {
	return &Synthesizer{field: field, params: p}
}

func (s *Synthesizer) Params() Params { return s.params }

func (s *Synthesizer) Ready() bool {
	return s != nil && s.field.Ready()
}

// HeightAt is pure for a given field and safe for concurrent use.
func (s *Synthesizer) HeightAt(x, z float64) float64 {
	if !s.Ready() {
		return 0
	}
	p := &s.params

	r := normalize(s.field.Sample(noise.Region, x*p.Region.Scale, z*p.Region.Scale, p.SampleZ))
	regionHeight := math.Pow(r, p.RegionPower) * p.Region.Height

	low := normalize(s.field.Sample(noise.Low, x*p.Low.Scale, z*p.Low.Scale, p.SampleZ))
	lowHeight := low * (p.Low.Height * (p.Low.Base + r*p.Low.Span))

	high := normalize(s.field.Sample(noise.High, x*p.High.Scale, z*p.High.Scale, p.SampleZ))
	highHeight := high * (p.High.Height * (p.High.Base + r*p.High.Span))

	return regionHeight + lowHeight + highHeight
}

func (s *Synthesizer) Sample(x, z float64) TerrainSample {
	h := s.HeightAt(x, z)
	return TerrainSample{Height: h, Biome: s.Classify(h)}
}

func (s *Synthesizer) Classify(height float64) Biome {
	return Classify(height, s.params.WaterLevel, s.params.SandLevel)
}

func normalize(v float64) float64 {
	return (v + 1) / 2
}
