// Package terrain owns the generated world for one seed: the height field,
// the biome map and the placed objects. A World is created once per seed and
// disposed when the seed goes away.
package terrain

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math"
	"sync/atomic"

	"balloonworld.dev/internal/terrain/gen"
	"balloonworld.dev/internal/terrain/mesh"
	"balloonworld.dev/internal/terrain/noise"
	"balloonworld.dev/internal/terrain/placement"
)

var ErrNoSeed = errors.New("terrain: empty seed")

type Config struct {
	Grid      mesh.Grid
	Gen       gen.Params
	Placement placement.Params
	// Workers bounds the generation pass; <= 0 means GOMAXPROCS.
	Workers int
}

func DefaultConfig() Config {
	return Config{
		Grid:      mesh.Grid{Size: 1000},
		Gen:       gen.DefaultParams(),
		Placement: placement.DefaultParams(),
	}
}

// World is safe for concurrent readers. All query methods are total: a nil
// or disposed World answers zero heights and no placements.
type World struct {
	seed     string
	synth    *gen.Synthesizer
	geo      *mesh.Geometry
	disposed atomic.Bool
}

// New derives the noise field from seed and runs the generation pass.
func New(ctx context.Context, seed string, cfg Config) (*World, error) {
	if seed == "" {
		return nil, ErrNoSeed
	}
	synth := gen.NewSynthesizer(noise.NewField(seed), cfg.Gen)
	placer := placement.New(seed, cfg.Placement)
	geo, err := mesh.Build(ctx, cfg.Grid, synth, placer, cfg.Workers)
	if err != nil {
		return nil, err
	}
	return &World{seed: seed, synth: synth, geo: geo}, nil
}

func (w *World) live() bool {
	return w != nil && !w.disposed.Load()
}

func (w *World) Seed() string {
	if !w.live() {
		return ""
	}
	return w.seed
}

// HeightAt answers for any (x, z), on or off the grid.
func (w *World) HeightAt(x, z float64) float64 {
	if !w.live() {
		return 0
	}
	return w.synth.HeightAt(x, z)
}

func (w *World) Sample(x, z float64) gen.TerrainSample {
	if !w.live() {
		return gen.TerrainSample{}
	}
	return w.synth.Sample(x, z)
}

// Placements returns the shared, read-only placement sequence.
func (w *World) Placements() []placement.PlacedObject {
	if !w.live() {
		return nil
	}
	return w.geo.Placements
}

// Geometry returns the shared, read-only grid description.
func (w *World) Geometry() *mesh.Geometry {
	if !w.live() {
		return nil
	}
	return w.geo
}

func (w *World) Params() gen.Params {
	if w == nil {
		return gen.Params{}
	}
	return w.synth.Params()
}

// Dispose releases the world. It is idempotent.
func (w *World) Dispose() {
	if w == nil {
		return
	}
	w.disposed.Store(true)
}

// Digest fingerprints heights and placements so two runs can be compared.
func (w *World) Digest() string {
	if !w.live() {
		return ""
	}
	h := sha256.New()
	var buf [8]byte
	for _, v := range w.geo.Heights {
		binary.LittleEndian.PutUint32(buf[:4], math.Float32bits(v))
		h.Write(buf[:4])
	}
	for _, p := range w.geo.Placements {
		for _, f := range [...]float64{p.Position.X(), p.Position.Y(), p.Position.Z(), p.RotationY, p.Scale} {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
			h.Write(buf[:])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
