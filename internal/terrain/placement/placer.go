// Package placement decides where discrete objects (trees) stand on the
// generated terrain. Every decision is drawn from streams keyed by the seed
// and the quantized vertex coordinates, so the result depends only on the
// seed, the grid and its traversal order.
package placement

import (
	"math"
	"strconv"

	"github.com/go-gl/mathgl/mgl64"

	"balloonworld.dev/internal/mathx"
	"balloonworld.dev/internal/terrain/gen"
	"balloonworld.dev/internal/terrain/prng"
)

type Params struct {
	HeightThreshold float64
	Density         float64
	MinSeparation   float64
	MaxObjects      int

	ScaleMin  float64
	ScaleSpan float64
}

func DefaultParams() Params {
	return Params{
		HeightThreshold: 8.2,
		Density:         0.045,
		MinSeparation:   1.5,
		MaxObjects:      45000,
		ScaleMin:        0.8,
		ScaleSpan:       0.4,
	}
}

// Vertex is one grid point as seen by the placer.
type Vertex struct {
	X, Z   float64
	Height float64
	Biome  gen.Biome
}

type Placer struct {
	seed   string
	params Params
}

func New(seed string, p Params) *Placer {
	return &Placer{seed: seed, params: p}
}

func (p *Placer) Params() Params { return p.params }

// Eligible reports whether a vertex may host an object at all.
func (p *Placer) Eligible(v Vertex) bool {
	return v.Biome == gen.Land && v.Height >= p.params.HeightThreshold
}

// Candidate draws the acceptance roll for the vertex at (x, z). It touches no
// shared state and may run on any goroutine.
func (p *Placer) Candidate(x, z float64) bool {
	r := prng.New(p.seed + "-placement-" + mathx.Fixed(x, 2) + "-" + mathx.Fixed(z, 2))
	return r.Float64() < p.params.Density
}

// Place runs the full pass over vertices in order.
func (p *Placer) Place(vertices []Vertex) []PlacedObject {
	if p.seed == "" {
		return nil
	}
	candidates := make([]bool, len(vertices))
	for i, v := range vertices {
		candidates[i] = p.Eligible(v) && p.Candidate(v.X, v.Z)
	}
	return p.Resolve(vertices, candidates)
}

// Resolve accepts candidates sequentially in traversal order: a candidate
// closer than MinSeparation to an earlier acceptance is rejected, and once
// MaxObjects are accepted the remainder is skipped. candidates[i] marks
// vertices[i].
func (p *Placer) Resolve(vertices []Vertex, candidates []bool) []PlacedObject {
	if p.seed == "" || p.params.MaxObjects <= 0 {
		return nil
	}
	minDist := p.params.MinSeparation
	minDistSq := minDist * minDist

	var hash *spatialHash
	if minDist > 0 {
		hash = newSpatialHash(minDist, 256)
	}

	var accepted []Vertex
	for i, v := range vertices {
		if i >= len(candidates) || !candidates[i] {
			continue
		}
		if hash != nil && hash.near(v.X, v.Z, minDistSq) {
			continue
		}
		accepted = append(accepted, v)
		if hash != nil {
			hash.insert(v.X, v.Z)
		}
		if len(accepted) >= p.params.MaxObjects {
			break
		}
	}

	out := make([]PlacedObject, len(accepted))
	for i, v := range accepted {
		out[i] = p.vary(i, v)
	}
	return out
}

func (p *Placer) vary(i int, v Vertex) PlacedObject {
	r := prng.New(p.seed + "-variation-" + strconv.Itoa(i) + "-" + mathx.Fixed(v.X, 1) + "-" + mathx.Fixed(v.Z, 1))
	rot := r.Float64() * math.Pi * 2
	scale := p.params.ScaleMin + r.Float64()*p.params.ScaleSpan
	return PlacedObject{
		Position:  mgl64.Vec3{v.X, v.Height, v.Z},
		RotationY: rot,
		Scale:     scale,
	}
}
